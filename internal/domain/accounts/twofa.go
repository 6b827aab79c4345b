// Файл twofa.go — управление облачным паролем (2FA): статус, установка, смена
// и отключение. Установка и смена идут через высокоуровневый auth-клиент gotd,
// отключение — через SRP-проверку текущего пароля и пустые настройки.

package accounts

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/gotd/td/telegram"
	"github.com/gotd/td/telegram/auth"
	"github.com/gotd/td/tg"
)

// TwoFAStatus — состояние облачного пароля аккаунта.
type TwoFAStatus struct {
	Enabled bool
	Hint    string
}

// TwoFA управляет облачным паролем. Требует доступ к полному telegram.Client,
// а не только к RPC-интерфейсу, поэтому оформлен отдельным типом.
type TwoFA struct {
	client *telegram.Client
	inv    Invoker
}

// NewTwoFA создаёт менеджер 2FA поверх подключённого клиента.
func NewTwoFA(client *telegram.Client, inv Invoker) *TwoFA {
	return &TwoFA{client: client, inv: inv}
}

// Status возвращает, включён ли облачный пароль, и его подсказку.
func (t *TwoFA) Status(ctx context.Context) (TwoFAStatus, error) {
	var status TwoFAStatus
	err := t.inv.Execute(ctx, func(ctx context.Context) error {
		pwd, err := t.inv.API().AccountGetPassword(ctx)
		if err != nil {
			return errors.Wrap(err, "get password settings")
		}
		status.Enabled = pwd.HasPassword
		status.Hint, _ = pwd.GetHint()
		return nil
	})
	return status, err
}

// Set устанавливает или меняет облачный пароль. current нужен только при смене
// уже установленного пароля; hint — подсказка нового.
func (t *TwoFA) Set(ctx context.Context, current, newPassword, hint string) error {
	return t.inv.Execute(ctx, func(ctx context.Context) error {
		err := t.client.Auth().UpdatePassword(ctx, newPassword, auth.UpdatePasswordOptions{
			Hint: hint,
			Password: func(ctx context.Context) (string, error) {
				if current == "" {
					return "", errors.New("current password required")
				}
				return current, nil
			},
		})
		if err != nil {
			return errors.Wrap(err, "update password")
		}
		return nil
	})
}

// Disable отключает облачный пароль, подтверждая владение текущим паролем по SRP.
func (t *TwoFA) Disable(ctx context.Context, current string) error {
	return t.inv.Execute(ctx, func(ctx context.Context) error {
		pwd, err := t.inv.API().AccountGetPassword(ctx)
		if err != nil {
			return errors.Wrap(err, "get password settings")
		}
		if !pwd.HasPassword {
			return nil
		}

		srp, err := auth.PasswordHash([]byte(current), pwd.SRPID, pwd.SRPB, pwd.SecureRandom, pwd.CurrentAlgo)
		if err != nil {
			return errors.Wrap(err, "compute srp")
		}

		settings := tg.AccountPasswordInputSettings{}
		settings.SetNewAlgo(&tg.PasswordKdfAlgoUnknown{})
		settings.SetNewPasswordHash([]byte{})
		settings.SetHint("")

		_, err = t.inv.API().AccountUpdatePasswordSettings(ctx, &tg.AccountUpdatePasswordSettingsRequest{
			Password:    srp,
			NewSettings: settings,
		})
		if err != nil {
			return errors.Wrap(err, "disable password")
		}
		return nil
	})
}
