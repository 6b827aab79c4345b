// Package tgclient — устойчивый клиент Telegram для одной сессии. Оборачивает
// gotd-клиент политикой ретраев (throttle.Throttler), выбором API-учётки из пула
// и жизненным циклом фонового соединения через bg.Connect. Видимое состояние
// клиента проходит путь Disconnected → Connecting → Authenticated, с заходами
// в Retrying на время пауз между повторными попытками.
package tgclient

import (
	"context"
	"os"
	"sync"
	"time"

	"github.com/go-faster/errors"
	"github.com/gotd/contrib/bg"
	"github.com/gotd/contrib/middleware/ratelimit"
	"github.com/gotd/td/telegram"
	"github.com/gotd/td/telegram/dcs"
	"github.com/gotd/td/tg"
	"golang.org/x/time/rate"

	"telegram-sessman/internal/infra/config"
	"telegram-sessman/internal/infra/logger"
	"telegram-sessman/internal/infra/registry"
	"telegram-sessman/internal/infra/secrets"
	"telegram-sessman/internal/support/version"
)

// State — видимое состояние клиента.
type State int32

// Состояния жизненного цикла.
const (
	StateDisconnected State = iota
	StateConnecting
	StateRetrying
	StateAuthenticated
)

// String возвращает человекочитаемое имя состояния.
func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateRetrying:
		return "retrying"
	case StateAuthenticated:
		return "authenticated"
	default:
		return "disconnected"
	}
}

// Deps — зависимости клиента, собираемые на уровне приложения.
type Deps struct {
	Env       *config.EnvConfig
	Store     *secrets.Store
	Registry  *registry.Registry
	Throttler Throttler
}

// Throttler — контракт движка ретраев. Реализуется throttle.Throttler.
type Throttler interface {
	Do(ctx context.Context, fn func() error) error
}

// Client — подключение одной сессии. Не потокобезопасен для Connect/Disconnect,
// но Execute может вызываться конкурентно после подключения.
type Client struct {
	phone string
	cred  config.Credential
	deps  Deps

	mu    sync.Mutex
	tg    *telegram.Client
	stop  bg.StopFunc
	state State
	self  *tg.User
}

// New создаёт клиент для телефона phone с учёткой cred.
func New(phone string, cred config.Credential, deps Deps) *Client {
	return &Client{
		phone: phone,
		cred:  cred,
		deps:  deps,
		state: StateDisconnected,
	}
}

// Phone возвращает телефон сессии.
func (c *Client) Phone() string { return c.phone }

// State возвращает текущее видимое состояние клиента.
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// MarkRetrying переводит состояние в Retrying на время паузы между попытками.
// Формат throttle.OnRetryFunc.
func (c *Client) MarkRetrying(attempt int, err error, wait time.Duration) {
	c.mu.Lock()
	if c.state == StateAuthenticated || c.state == StateConnecting {
		c.state = StateRetrying
	}
	c.mu.Unlock()
	logger.Debugf("tgclient %s: retry attempt=%d wait=%v: %v", c.phone, attempt, wait, err)
}

// API возвращает RPC-интерфейс подключённого клиента. Паника при вызове до Connect
// исключена: возвращается nil, вызывающий обязан проверить состояние.
func (c *Client) API() *tg.Client {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.tg == nil {
		return nil
	}
	return c.tg.API()
}

// Telegram возвращает нижележащий gotd-клиент (nil до Connect). Нужен операциям,
// которым мало RPC-интерфейса, например управлению облачным паролем.
func (c *Client) Telegram() *telegram.Client {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.tg
}

// Self возвращает снимок собственного пользователя, полученный при подключении.
func (c *Client) Self() *tg.User {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.self
}

// Connect устанавливает фоновое MTProto-соединение и проверяет авторизацию.
// Возвращает authorized=false без ошибки, если сервер считает сессию отозванной:
// это терминальное состояние, ретраи не выполняются, запись в реестре переводится
// в inactive. Сетевые сбои подключения отдаются ошибкой для ретрая вызывающим.
func (c *Client) Connect(ctx context.Context) (authorized bool, err error) {
	c.mu.Lock()
	if c.stop != nil {
		c.mu.Unlock()
		return true, nil
	}
	c.state = StateConnecting
	c.mu.Unlock()

	client := c.buildClient()

	stop, err := bg.Connect(client, bg.WithContext(ctx))
	if err != nil {
		c.setState(StateDisconnected)
		return false, errors.Wrapf(err, "connect %s", c.phone)
	}

	status, err := client.Auth().Status(ctx)
	if err != nil {
		_ = stop()
		c.setState(StateDisconnected)
		if IsAuthError(err) {
			c.markInactive()
			return false, nil
		}
		return false, errors.Wrapf(err, "auth status %s", c.phone)
	}
	if !status.Authorized {
		_ = stop()
		c.setState(StateDisconnected)
		c.markInactive()
		return false, nil
	}

	self, err := client.Self(ctx)
	if err != nil {
		_ = stop()
		c.setState(StateDisconnected)
		return false, errors.Wrapf(err, "fetch self %s", c.phone)
	}

	c.mu.Lock()
	c.tg = client
	c.stop = stop
	c.self = self
	c.state = StateAuthenticated
	c.mu.Unlock()

	if c.deps.Registry != nil {
		if regErr := c.deps.Registry.Touch(c.phone, time.Now()); regErr != nil {
			logger.Warnf("tgclient %s: touch registry: %v", c.phone, regErr)
		}
	}
	logger.Infof("tgclient %s: authenticated (id=%d)", c.phone, self.ID)
	return true, nil
}

// Execute выполняет fn под политикой ретраев троттлера. Ошибки потери авторизации
// заворачиваются в AuthError (терминальны), запись реестра переводится в inactive.
func (c *Client) Execute(ctx context.Context, fn func(ctx context.Context) error) error {
	if c.deps.Throttler == nil {
		return c.call(ctx, fn)
	}
	return c.deps.Throttler.Do(ctx, func() error {
		return c.call(ctx, fn)
	})
}

// call — одна попытка вызова с нормализацией ошибок авторизации.
func (c *Client) call(ctx context.Context, fn func(ctx context.Context) error) error {
	err := fn(ctx)
	if err == nil {
		c.setState(StateAuthenticated)
		return nil
	}
	if IsAuthError(err) {
		c.markInactive()
		c.setState(StateDisconnected)
		return &AuthError{Phone: c.phone, Err: err}
	}
	return err
}

// Disconnect останавливает фоновое соединение. Идемпотентен: повторные вызовы
// и вызов до Connect безопасны. Ошибка остановки логируется и не возвращается.
func (c *Client) Disconnect() {
	c.mu.Lock()
	stop := c.stop
	c.stop = nil
	c.tg = nil
	c.self = nil
	c.state = StateDisconnected
	c.mu.Unlock()

	if stop == nil {
		return
	}
	if err := stop(); err != nil {
		logger.Debugf("tgclient %s: stop: %v", c.phone, err)
	}
}

// buildClient собирает gotd-клиент: хранилище сессии поверх secrets.Store,
// ограничитель скорости запросов и паспорт устройства.
func (c *Client) buildClient() *telegram.Client {
	host, _ := os.Hostname()
	if host == "" {
		host = "unknown"
	}

	rps := 1
	if c.deps.Env != nil && c.deps.Env.ThrottleRPS > 0 {
		rps = c.deps.Env.ThrottleRPS
	}

	options := telegram.Options{
		SessionStorage: &SecretStorage{
			Phone:    c.phone,
			Store:    c.deps.Store,
			Registry: c.deps.Registry,
		},
		NoUpdates: true,
		Middlewares: []telegram.Middleware{
			ratelimit.New(rate.Limit(rps), rps*2),
		},
		Device: telegram.DeviceConfig{
			DeviceModel:   "SessionManager-" + host,
			SystemVersion: "Linux",
			AppVersion:    version.Version,
		},
	}
	if c.deps.Env != nil && c.deps.Env.TestDC {
		options.DCList = dcs.Test()
	}

	return telegram.NewClient(c.cred.ID, c.cred.Hash, options)
}

// setState — атомарная смена видимого состояния.
func (c *Client) setState(s State) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
}

// markInactive помечает запись сессии в реестре как inactive. Файл секрета
// не удаляется: решение об удалении остаётся за оператором.
func (c *Client) markInactive() {
	if c.deps.Registry == nil {
		return
	}
	if err := c.deps.Registry.SetStatus(c.phone, registry.StatusInactive); err != nil {
		logger.Warnf("tgclient %s: mark inactive: %v", c.phone, err)
	}
}
