// Файл login.go — создание новой сессии: интерактивная авторизация по номеру
// телефона с вводом кода подтверждения и, при необходимости, облачного пароля.
// После успешного логина сессия регистрируется в реестре.

package cli

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/gotd/td/telegram/auth"
	"github.com/gotd/td/tg"

	"telegram-sessman/internal/domain/accounts"
	"telegram-sessman/internal/infra/logger"
	"telegram-sessman/internal/infra/pr"
	"telegram-sessman/internal/infra/registry"
	"telegram-sessman/internal/infra/secrets"
	"telegram-sessman/internal/infra/tgclient"
)

// terminalAuth поставляет данные авторизации из интерактивных промптов.
type terminalAuth struct {
	phone string
}

// Компиляторная проверка соответствия интерфейсу gotd.
var _ auth.UserAuthenticator = terminalAuth{}

// Phone возвращает заранее введённый номер.
func (a terminalAuth) Phone(_ context.Context) (string, error) {
	return a.phone, nil
}

// Code запрашивает код подтверждения у оператора.
func (a terminalAuth) Code(_ context.Context, _ *tg.AuthSentCode) (string, error) {
	code, err := promptLine("confirmation code: ")
	if err != nil {
		return "", err
	}
	if code == "" {
		return "", errors.New("empty confirmation code")
	}
	return code, nil
}

// Password запрашивает облачный пароль (2FA), если он установлен на аккаунте.
func (a terminalAuth) Password(_ context.Context) (string, error) {
	return promptPassword("2FA password: ")
}

// AcceptTermsOfService молча принимает условия сервиса.
func (a terminalAuth) AcceptTermsOfService(_ context.Context, _ tg.HelpTermsOfService) error {
	return nil
}

// SignUp не поддерживается: менеджер работает только с существующими аккаунтами.
func (a terminalAuth) SignUp(_ context.Context) (auth.UserInfo, error) {
	return auth.UserInfo{}, errors.New("sign up of new accounts is not supported")
}

// handleCreateSession авторизует новую сессию и регистрирует её в реестре.
func (s *Service) handleCreateSession(ctx context.Context) {
	phone, err := promptPhone()
	if err != nil {
		pr.ErrPrintln(err)
		return
	}

	if existing, getErr := s.reg.Get(phone); getErr == nil && existing != nil {
		if !confirm("session for " + phone + " already exists, re-login") {
			pr.Println("Canceled.")
			return
		}
	}

	cred, err := s.pool.Acquire()
	if err != nil {
		pr.ErrPrintln("acquire credential:", err)
		return
	}
	client := tgclient.New(phone, cred, tgclient.Deps{
		Env:      &s.env,
		Store:    s.store,
		Registry: s.reg,
	})

	pr.Println("Sending confirmation code...")
	self, err := client.Login(ctx, terminalAuth{phone: phone})
	if err != nil {
		pr.ErrPrintln("login:", err)
		return
	}

	// Секрет уже на диске (его сохранил auth-поток); регистрируем сессию.
	secretHash := ""
	path := s.store.PathFor(phone)
	if data, loadedPath, loadErr := s.store.LoadByPhone(phone); loadErr == nil {
		secretHash = secrets.Hash(data)
		path = loadedPath
	}

	meta := accounts.MetadataFromUser(self)
	rec := registry.Record{
		Phone:      phone,
		Path:       path,
		CreatedAt:  time.Now().UTC(),
		LastUsed:   time.Now().UTC(),
		Metadata:   meta.JSON(),
		SecretHash: secretHash,
		Encrypted:  s.store.Encrypting(),
		Status:     registry.StatusActive,
	}
	if err = s.reg.Upsert(rec); err != nil {
		pr.ErrPrintln("register session:", err)
		return
	}

	logger.Infof("session %s created (account id=%d)", phone, self.ID)
	pr.Printf("Session created: %s as %s\n", phone, meta.DisplayName())
}
