// Файл errors.go — нормализация ошибок Telegram API для политики ретраев.
// Ошибки авторизации терминальны: сессия отозвана или ключ деактивирован, повторять
// вызов бессмысленно. Такие ошибки заворачиваются в AuthError, который реализует
// StopRetryer и немедленно прекращает повторные попытки в throttle.Do.

package tgclient

import (
	"errors"
	"fmt"
	"time"

	"github.com/gotd/td/tgerr"
)

// ErrAuthExpired — маркер отозванной авторизации. Сессия помечается inactive,
// файл секрета не трогается.
var ErrAuthExpired = errors.New("tgclient: authorization expired or revoked")

// Коды ошибок Telegram, означающие потерю авторизации.
var authErrorTypes = []string{
	"AUTH_KEY_UNREGISTERED",
	"AUTH_KEY_INVALID",
	"SESSION_REVOKED",
	"SESSION_EXPIRED",
	"USER_DEACTIVATED",
	"USER_DEACTIVATED_BAN",
}

// AuthError оборачивает исходную ошибку авторизации и прекращает ретраи.
type AuthError struct {
	Phone string
	Err   error
}

// Error реализует error.
func (e *AuthError) Error() string {
	return fmt.Sprintf("tgclient: authorization lost for %s: %v", e.Phone, e.Err)
}

// Unwrap отдаёт исходную ошибку для errors.Is/As.
func (e *AuthError) Unwrap() error { return e.Err }

// Is сопоставляет AuthError с маркером ErrAuthExpired.
func (e *AuthError) Is(target error) bool { return target == ErrAuthExpired }

// StopRetry сигнализирует троттлеру, что повторять вызов нельзя.
func (e *AuthError) StopRetry() bool { return true }

// IsAuthError распознаёт ошибки потери авторизации: код 401 либо известный тип.
func IsAuthError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrAuthExpired) {
		return true
	}
	if tgerr.Is(err, authErrorTypes...) {
		return true
	}
	var rpcErr *tgerr.Error
	if errors.As(err, &rpcErr) && rpcErr.Code == 401 {
		return true
	}
	return false
}

// FloodWaitExtractor извлекает предписанную сервером паузу из FLOOD_WAIT-ошибок.
// Формат throttle.WaitExtractor.
func FloodWaitExtractor(err error) (time.Duration, bool) {
	return tgerr.AsFloodWait(err)
}
