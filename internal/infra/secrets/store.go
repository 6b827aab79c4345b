// Файл store.go — файловое хранилище секретов сессий. Каждой сессии соответствует
// ровно один файл в каталоге хранилища: <телефон>.session (plaintext) либо
// <телефон>.session.enc (зашифрован). Суффикс — косметика для оператора; источником
// истины о шифровании служит флаг в реестре. Persist гарантирует инвариант
// «один вариант на телефон», удаляя противоположный файл после успешной записи.

package secrets

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-faster/errors"

	"telegram-sessman/internal/infra/logger"
	"telegram-sessman/internal/infra/storage"
)

// ErrCorruptSecret означает, что файл секрета не удаётся прочитать в текущей
// конфигурации: зашифрованный файл без ключа, либо расшифровка не прошла
// проверку аутентификационного тега.
var ErrCorruptSecret = errors.New("secrets: secret file is corrupt or key mismatch")

// Суффиксы файлов секретов.
const (
	SuffixPlain     = ".session"
	SuffixEncrypted = ".session.enc"
)

// backupTimeLayout — формат имени каталога бэкапа.
const backupTimeLayout = "20060102_150405"

// Store — файловое хранилище секретов. При ненулевом cipher новые секреты
// пишутся зашифрованными; nil означает plaintext-режим.
type Store struct {
	dir    string
	cipher *Cipher
}

// NewStore создаёт хранилище в каталоге dir. Каталог создаётся с владельческими
// правами, если его ещё нет.
func NewStore(dir string, cipher *Cipher) (*Store, error) {
	if dir == "" {
		return nil, errors.New("secrets: empty store directory")
	}
	if err := os.MkdirAll(dir, storage.DefaultDirPerm); err != nil {
		return nil, errors.Wrap(err, "create store directory")
	}
	return &Store{dir: dir, cipher: cipher}, nil
}

// Dir возвращает каталог хранилища.
func (s *Store) Dir() string {
	return s.dir
}

// Encrypting сообщает, пишет ли хранилище новые секреты зашифрованными.
func (s *Store) Encrypting() bool {
	return s.cipher != nil
}

// PathFor возвращает путь файла секрета для телефона в текущем режиме хранилища.
func (s *Store) PathFor(phone string) string {
	if s.cipher != nil {
		return filepath.Join(s.dir, phone+SuffixEncrypted)
	}
	return filepath.Join(s.dir, phone+SuffixPlain)
}

// Persist сохраняет секрет сессии для телефона атомарной записью и удаляет
// противоположный вариант файла, если тот остался от прежнего режима.
// Возвращает путь записанного файла.
func (s *Store) Persist(secret []byte, phone string) (string, error) {
	data := secret
	if s.cipher != nil {
		sealed, err := s.cipher.Seal(secret)
		if err != nil {
			return "", errors.Wrap(err, "encrypt secret")
		}
		data = sealed
	}

	path := s.PathFor(phone)
	if err := storage.AtomicWriteFile(path, data); err != nil {
		return "", errors.Wrap(err, "write secret")
	}

	// Инвариант «один вариант на телефон»: стираем файл другого режима.
	other := filepath.Join(s.dir, phone+SuffixPlain)
	if s.cipher == nil {
		other = filepath.Join(s.dir, phone+SuffixEncrypted)
	}
	if err := os.Remove(other); err != nil && !os.IsNotExist(err) {
		logger.Warnf("secrets: remove stale variant %s: %v", other, err)
	}
	return path, nil
}

// Load читает секрет сессии по пути файла. Режим чтения определяется суффиксом:
// .enc расшифровывается (без ключа — ErrCorruptSecret), остальное читается как есть.
func (s *Store) Load(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "read secret")
	}
	if !strings.HasSuffix(path, SuffixEncrypted) {
		return data, nil
	}
	if s.cipher == nil {
		return nil, errors.Wrapf(ErrCorruptSecret, "%s is encrypted but no key is configured", filepath.Base(path))
	}
	plain, err := s.cipher.Open(data)
	if err != nil {
		return nil, errors.Wrapf(ErrCorruptSecret, "decrypt %s: %v", filepath.Base(path), err)
	}
	return plain, nil
}

// LoadByPhone читает секрет телефона, пробуя оба варианта файла.
func (s *Store) LoadByPhone(phone string) ([]byte, string, error) {
	for _, suffix := range []string{SuffixEncrypted, SuffixPlain} {
		path := filepath.Join(s.dir, phone+suffix)
		if _, err := os.Stat(path); err != nil {
			continue
		}
		data, err := s.Load(path)
		if err != nil {
			return nil, "", err
		}
		return data, path, nil
	}
	return nil, "", errors.Errorf("secrets: no secret file for %s", phone)
}

// Remove удаляет оба варианта файла секрета телефона. Отсутствие файлов не ошибка.
func (s *Store) Remove(phone string) error {
	var firstErr error
	for _, suffix := range []string{SuffixPlain, SuffixEncrypted} {
		path := filepath.Join(s.dir, phone+suffix)
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) && firstErr == nil {
			firstErr = errors.Wrapf(err, "remove %s", path)
		}
	}
	return firstErr
}

// Discover сканирует каталог хранилища и возвращает пути всех файлов секретов.
func (s *Store) Discover() ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, errors.Wrap(err, "read store directory")
	}
	var paths []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if strings.HasSuffix(name, SuffixPlain) || strings.HasSuffix(name, SuffixEncrypted) {
			paths = append(paths, filepath.Join(s.dir, name))
		}
	}
	return paths, nil
}

// Backup копирует перечисленные файлы секретов в свежий каталог
// backups/backup_<метка времени> внутри каталога хранилища. Возвращает путь
// каталога бэкапа и число скопированных файлов; файлы, которые не удалось
// скопировать, пропускаются с предупреждением.
func (s *Store) Backup(paths []string) (string, int, error) {
	dir := filepath.Join(s.dir, "backups", "backup_"+time.Now().Format(backupTimeLayout))
	if err := os.MkdirAll(dir, storage.DefaultDirPerm); err != nil {
		return "", 0, errors.Wrap(err, "create backup directory")
	}

	copied := 0
	for _, src := range paths {
		dst := filepath.Join(dir, filepath.Base(src))
		if err := storage.CopyFile(src, dst); err != nil {
			logger.Warnf("secrets: backup %s: %v", src, err)
			continue
		}
		copied++
	}
	return dir, copied, nil
}

// PhoneFromPath извлекает телефон из имени файла секрета.
func PhoneFromPath(path string) string {
	name := filepath.Base(path)
	name = strings.TrimSuffix(name, SuffixEncrypted)
	name = strings.TrimSuffix(name, SuffixPlain)
	return name
}

// IsEncryptedPath сообщает, указывает ли суффикс пути на зашифрованный файл.
func IsEncryptedPath(path string) bool {
	return strings.HasSuffix(path, SuffixEncrypted)
}
