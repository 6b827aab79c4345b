// Package accounts — доменные операции над аккаунтом Telegram: устройства,
// контакты, диалоги, профиль, коды подтверждения, 2FA и проверка статуса.
// Операции не знают про CLI и хранилища: им передаётся Invoker — подключённый
// клиент с политикой ретраев, и они возвращают доменные снимки.
package accounts

import (
	"context"
	"encoding/json"
	"time"

	"github.com/gotd/td/tg"
)

// Invoker — контракт подключённого клиента сессии. Реализуется tgclient.Client.
type Invoker interface {
	API() *tg.Client
	Execute(ctx context.Context, fn func(ctx context.Context) error) error
	Self() *tg.User
	Phone() string
}

// Authorization — снимок одной авторизации (устройства) аккаунта.
type Authorization struct {
	Hash        int64
	Current     bool
	DeviceModel string
	Platform    string
	AppName     string
	Country     string
	DateCreated time.Time
	DateActive  time.Time
}

// Contact — запись адресной книги.
type Contact struct {
	UserID     int64
	AccessHash int64
	FirstName  string
	LastName   string
	Username   string
	Phone      string
}

// DialogKind — тип собеседника диалога.
type DialogKind int

// Виды диалогов.
const (
	DialogUser DialogKind = iota
	DialogChat
	DialogChannel
)

// Dialog — снимок одного диалога с данными, достаточными для удаления.
type Dialog struct {
	Kind       DialogKind
	Title      string
	PeerID     int64
	AccessHash int64
}

// OTP — извлечённый из служебного чата код подтверждения.
type OTP struct {
	Code string
	Text string
	Date time.Time
}

// Metadata — JSON-снимок аккаунта, сохраняемый в реестре.
type Metadata struct {
	ID        int64  `json:"id"`
	Username  string `json:"username,omitempty"`
	FirstName string `json:"first_name,omitempty"`
	LastName  string `json:"last_name,omitempty"`
	Phone     string `json:"phone,omitempty"`
	Premium   bool   `json:"premium"`
	Verified  bool   `json:"verified"`
}

// MetadataFromUser строит снимок из tg.User.
func MetadataFromUser(u *tg.User) Metadata {
	if u == nil {
		return Metadata{}
	}
	username, _ := u.GetUsername()
	return Metadata{
		ID:        u.ID,
		Username:  username,
		FirstName: u.FirstName,
		LastName:  u.LastName,
		Phone:     u.Phone,
		Premium:   u.Premium,
		Verified:  u.Verified,
	}
}

// MetadataFromJSON разбирает снимок, сохранённый в реестре.
func MetadataFromJSON(raw string) (Metadata, error) {
	var m Metadata
	if err := json.Unmarshal([]byte(raw), &m); err != nil {
		return Metadata{}, err
	}
	return m, nil
}

// JSON сериализует снимок для хранения в реестре.
func (m Metadata) JSON() string {
	raw, err := json.Marshal(m)
	if err != nil {
		return ""
	}
	return string(raw)
}

// DisplayName возвращает имя для списков: username, иначе имя и фамилия.
func (m Metadata) DisplayName() string {
	if m.Username != "" {
		return "@" + m.Username
	}
	name := m.FirstName
	if m.LastName != "" {
		if name != "" {
			name += " "
		}
		name += m.LastName
	}
	if name == "" {
		return m.Phone
	}
	return name
}
