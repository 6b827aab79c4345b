// Файл authorizations.go — просмотр и завершение авторизаций (устройств) аккаунта.

package accounts

import (
	"context"
	"time"

	"github.com/go-faster/errors"

	"telegram-sessman/internal/infra/logger"
)

// Authorizations возвращает список авторизаций аккаунта. Текущая сессия идёт
// первой, как её отдаёт сервер.
func Authorizations(ctx context.Context, inv Invoker) ([]Authorization, error) {
	var result []Authorization
	err := inv.Execute(ctx, func(ctx context.Context) error {
		auths, err := inv.API().AccountGetAuthorizations(ctx)
		if err != nil {
			return errors.Wrap(err, "get authorizations")
		}
		result = result[:0]
		for _, a := range auths.Authorizations {
			result = append(result, Authorization{
				Hash:        a.Hash,
				Current:     a.Current,
				DeviceModel: a.DeviceModel,
				Platform:    a.Platform,
				AppName:     a.AppName,
				Country:     a.Country,
				DateCreated: time.Unix(int64(a.DateCreated), 0),
				DateActive:  time.Unix(int64(a.DateActive), 0),
			})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// TerminateOthers завершает все авторизации, кроме текущей. Возвращает число
// завершённых. Отказ сервера по одной авторизации не прерывает обход остальных.
func TerminateOthers(ctx context.Context, inv Invoker) (int, error) {
	auths, err := Authorizations(ctx, inv)
	if err != nil {
		return 0, err
	}

	terminated := 0
	for _, a := range auths {
		if a.Current {
			continue
		}
		hash := a.Hash
		err = inv.Execute(ctx, func(ctx context.Context) error {
			_, resetErr := inv.API().AccountResetAuthorization(ctx, hash)
			return resetErr
		})
		if err != nil {
			logger.Warnf("accounts %s: terminate authorization %d: %v", inv.Phone(), hash, err)
			continue
		}
		terminated++
	}
	return terminated, nil
}
