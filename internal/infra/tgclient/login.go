// Файл login.go — интерактивная авторизация новой сессии. Поток кода/пароля
// отдаёт стандартный auth.Flow gotd; ввод кода и облачного пароля поставляет
// вызывающий через auth.UserAuthenticator. Секрет сессии сохраняется хранилищем
// SecretStorage по ходу авторизации.

package tgclient

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/gotd/td/telegram/auth"
	"github.com/gotd/td/tg"
)

// Login проводит авторизацию сессии и возвращает снимок пользователя.
// Клиент работает только на время вызова: после возврата соединение закрыто,
// для работы с аккаунтом сессию нужно подключать через Connect.
func (c *Client) Login(ctx context.Context, authenticator auth.UserAuthenticator) (*tg.User, error) {
	client := c.buildClient()
	flow := auth.NewFlow(authenticator, auth.SendCodeOptions{})

	var self *tg.User
	err := client.Run(ctx, func(ctx context.Context) error {
		if err := client.Auth().IfNecessary(ctx, flow); err != nil {
			return errors.Wrap(err, "auth flow")
		}
		me, err := client.Self(ctx)
		if err != nil {
			return errors.Wrap(err, "fetch self")
		}
		self = me
		return nil
	})
	if err != nil {
		return nil, errors.Wrapf(err, "login %s", c.phone)
	}
	return self, nil
}
