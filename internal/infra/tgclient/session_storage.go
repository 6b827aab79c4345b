// Файл session_storage.go — адаптер tdsession.Storage поверх файлового хранилища
// секретов. Загрузка прозрачно расшифровывает секрет по суффиксу файла; сохранение
// шифрует в текущем режиме хранилища, поддерживает инвариант «один вариант на
// телефон» и обновляет отпечаток секрета в реестре.

package tgclient

import (
	"context"
	"sync"

	"github.com/go-faster/errors"
	tdsession "github.com/gotd/td/session"

	"telegram-sessman/internal/infra/logger"
	"telegram-sessman/internal/infra/registry"
	"telegram-sessman/internal/infra/secrets"
)

// SecretStorage реализует tdsession.Storage для одной сессии (одного телефона).
// Потокобезопасен: Load/Store защищены мьютексом.
type SecretStorage struct {
	Phone    string
	Store    *secrets.Store
	Registry *registry.Registry // nil — без обновления реестра

	mux sync.Mutex
}

// Компиляторная проверка соответствия интерфейсу tdsession.Storage.
var _ tdsession.Storage = (*SecretStorage)(nil)

// LoadSession читает и при необходимости расшифровывает секрет сессии.
func (s *SecretStorage) LoadSession(_ context.Context) ([]byte, error) {
	if s == nil {
		return nil, errors.New("nil session storage is invalid")
	}
	s.mux.Lock()
	defer s.mux.Unlock()

	data, _, err := s.Store.LoadByPhone(s.Phone)
	if err != nil {
		if errors.Is(err, secrets.ErrCorruptSecret) {
			return nil, err
		}
		return nil, tdsession.ErrNotFound
	}
	return data, nil
}

// StoreSession сохраняет секрет в текущем режиме хранилища и синхронизирует
// путь, отпечаток и флаг шифрования в реестре. Ошибка обновления реестра
// не фатальна: секрет на диске — источник истины для переподключения.
func (s *SecretStorage) StoreSession(_ context.Context, data []byte) error {
	if s == nil {
		return errors.New("nil session storage is invalid")
	}
	s.mux.Lock()
	defer s.mux.Unlock()

	path, err := s.Store.Persist(data, s.Phone)
	if err != nil {
		return errors.Wrap(err, "persist session secret")
	}

	if s.Registry != nil {
		hash := secrets.Hash(data)
		if regErr := s.Registry.SetEncrypted(s.Phone, s.Store.Encrypting(), path, hash); regErr != nil {
			logger.Warnf("session storage: update registry for %s: %v", s.Phone, regErr)
		}
	}
	return nil
}
