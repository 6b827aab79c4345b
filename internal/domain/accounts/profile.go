// Файл profile.go — обновление профиля аккаунта и генерация случайных имён
// для массовой «обезлички» сессий.

package accounts

import (
	"context"
	"math/rand"
	"strconv"

	"github.com/go-faster/errors"
	"github.com/gotd/td/tg"
)

// Profile — запрошенные изменения профиля. nil-поле означает «не менять».
type Profile struct {
	FirstName *string
	LastName  *string
	About     *string
}

// UpdateProfile применяет изменения профиля. Пустой запрос (все поля nil)
// не выполняет RPC.
func UpdateProfile(ctx context.Context, inv Invoker, p Profile) error {
	if p.FirstName == nil && p.LastName == nil && p.About == nil {
		return nil
	}
	return inv.Execute(ctx, func(ctx context.Context) error {
		req := &tg.AccountUpdateProfileRequest{}
		if p.FirstName != nil {
			req.SetFirstName(*p.FirstName)
		}
		if p.LastName != nil {
			req.SetLastName(*p.LastName)
		}
		if p.About != nil {
			req.SetAbout(*p.About)
		}
		if _, err := inv.API().AccountUpdateProfile(ctx, req); err != nil {
			return errors.Wrap(err, "update profile")
		}
		return nil
	})
}

// Словари генератора имён.
var (
	nameAdjectives = []string{
		"Swift", "Silent", "Bright", "Calm", "Lucky",
		"Brave", "Quiet", "Clever", "Gentle", "Rapid",
	}
	nameNouns = []string{
		"Falcon", "River", "Maple", "Comet", "Harbor",
		"Summit", "Meadow", "Cedar", "Aurora", "Drift",
	}
)

// RandomName возвращает пару (имя, фамилия) вида Adjective / Noun####.
// Криптографическая стойкость не нужна: имена только маскируют аккаунты.
func RandomName(rng *rand.Rand) (first, last string) {
	first = nameAdjectives[rng.Intn(len(nameAdjectives))]
	last = nameNouns[rng.Intn(len(nameNouns))] + strconv.Itoa(1000+rng.Intn(9000))
	return first, last
}
