// Package app — сборка и жизненный цикл приложения. Init поднимает подсистемы
// в порядке зависимостей: реестр, шифрование и хранилище секретов, пул учёток,
// троттлер и CLI; Run блокируется до остановки; Close освобождает ресурсы в
// обратном порядке.
package app

import (
	"context"
	"encoding/hex"
	"path/filepath"
	"time"

	"github.com/go-faster/errors"

	"telegram-sessman/internal/adapters/cli"
	"telegram-sessman/internal/infra/config"
	"telegram-sessman/internal/infra/credpool"
	"telegram-sessman/internal/infra/logger"
	"telegram-sessman/internal/infra/pr"
	"telegram-sessman/internal/infra/registry"
	"telegram-sessman/internal/infra/secrets"
	"telegram-sessman/internal/infra/tgclient"
	"telegram-sessman/internal/infra/throttle"
)

// App агрегирует подсистемы приложения.
type App struct {
	cfg *config.Config

	mainCtx context.Context
	stopApp context.CancelFunc

	reg   *registry.Registry
	store *secrets.Store
	pool  *credpool.Pool
	th    *throttle.Throttler
	cli   *cli.Service
}

// NewApp создаёт пустое приложение поверх загруженной конфигурации.
func NewApp(cfg *config.Config) *App {
	return &App{cfg: cfg}
}

// Init собирает подсистемы. stop — внешняя остановка приложения (сигналы, exit).
func (a *App) Init(ctx context.Context, stop context.CancelFunc) error {
	a.mainCtx = ctx
	a.stopApp = stop
	env := a.cfg.Env()

	reg, err := registry.Open(env.RegistryFile)
	if err != nil {
		return errors.Wrap(err, "open registry")
	}
	a.reg = reg

	cipher, err := buildCipher(env)
	if err != nil {
		return errors.Wrap(err, "init encryption")
	}
	if cipher == nil {
		logger.Warn("session secrets are stored in PLAINTEXT; set SESSION_KEY or SESSION_ENCRYPT to encrypt at rest")
	}

	store, err := secrets.NewStore(env.SessionDir, cipher)
	if err != nil {
		return errors.Wrap(err, "init secret store")
	}
	a.store = store

	pool, err := credpool.Open(env.Credentials, env.CredUsageCeiling, env.CredCooldown, env.CredStateFile)
	if err != nil {
		return errors.Wrap(err, "open credential pool")
	}
	a.pool = pool

	a.th = throttle.New(env.Concurrency, env.MaxRetries, env.RetryBaseDelay, env.MaxFloodWait,
		throttle.WithWaitExtractors(tgclient.FloodWaitExtractor),
		throttle.WithOnRetry(func(attempt int, err error, wait time.Duration) {
			logger.Debugf("api retry: attempt=%d wait=%v cause=%v", attempt, wait, err)
		}),
	)

	a.cli = cli.NewService(env, pool, reg, store, a.th, stop)
	return nil
}

// Run запускает CLI и блокируется до отмены контекста жизненного цикла.
func (a *App) Run() error {
	a.cli.Start(a.mainCtx)
	<-a.mainCtx.Done()
	a.shutdown()
	return nil
}

// shutdown останавливает подсистемы в обратном порядке сборки.
func (a *App) shutdown() {
	logger.Info("Shutting down...")
	if a.cli != nil {
		a.cli.Stop()
	}
	if a.pool != nil {
		if err := a.pool.Close(); err != nil {
			logger.Warnf("close credential pool: %v", err)
		}
	}
	if a.reg != nil {
		if err := a.reg.Close(); err != nil {
			logger.Warnf("close registry: %v", err)
		}
	}
	pr.Close()
}

// buildCipher выбирает режим шифрования секретов:
//   - SESSION_KEY задан — 64 hex-символа используются как готовый ключ
//     (так возвращается ключ, показанный при генерации), иное значение —
//     парольная фраза для argon2id (соль хранится рядом с секретами);
//   - SESSION_ENCRYPT=true без ключа — генерируется случайный ключ и один раз
//     показывается оператору (без него секреты не расшифровать);
//   - иначе — plaintext-режим (nil).
func buildCipher(env config.EnvConfig) (*secrets.Cipher, error) {
	switch {
	case env.SessionKey != "":
		key, err := secrets.LoadKey(env.SessionKey, filepath.Join(env.SessionDir, ".salt"))
		if err != nil {
			return nil, err
		}
		return secrets.NewCipher(key)

	case env.SessionEncrypt:
		key, err := secrets.GenerateKey()
		if err != nil {
			return nil, err
		}
		pr.Println("Generated session encryption key (set SESSION_KEY to this value to reuse it; shown once):")
		pr.Println("  " + hex.EncodeToString(key))
		return secrets.NewCipher(key)

	default:
		return nil, nil
	}
}
