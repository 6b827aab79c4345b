// Package version хранит версию приложения, прошиваемую в паспорт устройства MTProto.
package version

// Version — текущая версия session manager.
const Version = "1.2.0"
