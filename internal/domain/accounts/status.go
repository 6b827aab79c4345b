// Файл status.go — проверка работоспособности сессии. Лёгкая проверка читает
// собственный профиль; глубокая дополнительно прогоняет пробное сообщение через
// «Избранное» и сразу удаляет его, подтверждая право аккаунта писать.

package accounts

import (
	"context"
	"math/rand"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/gotd/td/tg"
)

// Health — результат проверки сессии.
type Health struct {
	Alive    bool
	CanWrite bool
	TTLDays  int  // срок автоудаления аккаунта при неактивности
	TwoFA    bool // установлен ли облачный пароль
	Detail   string
}

// probeText — текст пробного сообщения в «Избранное».
const probeText = "session health probe"

// CheckHealth выполняет проверку сессии. deep=true добавляет пробу записи.
func CheckHealth(ctx context.Context, inv Invoker, deep bool) (Health, error) {
	var h Health

	err := inv.Execute(ctx, func(ctx context.Context) error {
		if _, err := inv.API().UsersGetFullUser(ctx, &tg.InputUserSelf{}); err != nil {
			return errors.Wrap(err, "get self")
		}
		return nil
	})
	if err != nil {
		h.Detail = err.Error()
		return h, err
	}
	h.Alive = true

	// Срок жизни аккаунта и состояние облачного пароля — справочные поля,
	// их недоступность не делает сессию мёртвой.
	err = inv.Execute(ctx, func(ctx context.Context) error {
		ttl, ttlErr := inv.API().AccountGetAccountTTL(ctx)
		if ttlErr != nil {
			return errors.Wrap(ttlErr, "get account ttl")
		}
		h.TTLDays = ttl.Days

		pwd, pwdErr := inv.API().AccountGetPassword(ctx)
		if pwdErr != nil {
			return errors.Wrap(pwdErr, "get password state")
		}
		h.TwoFA = pwd.HasPassword
		return nil
	})
	if err != nil {
		h.Detail = err.Error()
		return h, nil
	}

	if !deep {
		return h, nil
	}

	if err = writeProbe(ctx, inv); err != nil {
		h.Detail = err.Error()
		return h, nil
	}
	h.CanWrite = true
	return h, nil
}

// writeProbe отправляет сообщение в «Избранное» и удаляет его с отзывом.
func writeProbe(ctx context.Context, inv Invoker) error {
	var msgID int
	err := inv.Execute(ctx, func(ctx context.Context) error {
		updates, sendErr := inv.API().MessagesSendMessage(ctx, &tg.MessagesSendMessageRequest{
			Peer:     &tg.InputPeerSelf{},
			Message:  probeText,
			RandomID: rand.Int63(),
		})
		if sendErr != nil {
			return errors.Wrap(sendErr, "send probe")
		}
		msgID = sentMessageID(updates)
		return nil
	})
	if err != nil {
		return err
	}
	if msgID == 0 {
		return nil
	}

	return inv.Execute(ctx, func(ctx context.Context) error {
		_, delErr := inv.API().MessagesDeleteMessages(ctx, &tg.MessagesDeleteMessagesRequest{
			ID:     []int{msgID},
			Revoke: true,
		})
		if delErr != nil {
			return errors.Wrap(delErr, "delete probe")
		}
		return nil
	})
}

const (
	// spamBotUsername — официальный бот Telegram, сообщающий о спам-ограничениях.
	spamBotUsername = "SpamBot"
	// spamBotReplyWait — пауза перед чтением ответа бота.
	spamBotReplyWait = 2 * time.Second
	// spamBotHistoryLimit — сколько последних сообщений диалога просматривается.
	spamBotHistoryLimit = 5
)

// CheckRestriction спрашивает у @SpamBot, наложены ли на аккаунт спам-ограничения:
// отправляет /start, выжидает ответ и трактует вердикт. Возвращает признак
// ограничения и первую строку вердикта. Ограниченный аккаунт может писать в
// «Избранное», поэтому проба записи ограничение не выявляет — только бот.
func CheckRestriction(ctx context.Context, inv Invoker) (restricted bool, verdict string, err error) {
	var bot *tg.User
	err = inv.Execute(ctx, func(ctx context.Context) error {
		resolved, rErr := inv.API().ContactsResolveUsername(ctx, &tg.ContactsResolveUsernameRequest{
			Username: spamBotUsername,
		})
		if rErr != nil {
			return errors.Wrap(rErr, "resolve spam bot")
		}
		for _, u := range resolved.Users {
			if user, ok := u.(*tg.User); ok {
				bot = user
				break
			}
		}
		if bot == nil {
			return errors.New("spam bot not found")
		}
		return nil
	})
	if err != nil {
		return false, "", err
	}

	peer := &tg.InputPeerUser{UserID: bot.ID, AccessHash: bot.AccessHash}
	err = inv.Execute(ctx, func(ctx context.Context) error {
		_, sendErr := inv.API().MessagesSendMessage(ctx, &tg.MessagesSendMessageRequest{
			Peer:     peer,
			Message:  "/start",
			RandomID: rand.Int63(),
		})
		if sendErr != nil {
			return errors.Wrap(sendErr, "start spam bot")
		}
		return nil
	})
	if err != nil {
		return false, "", err
	}

	// Боту нужно время на ответ.
	timer := time.NewTimer(spamBotReplyWait)
	select {
	case <-ctx.Done():
		timer.Stop()
		return false, "", ctx.Err()
	case <-timer.C:
	}

	err = inv.Execute(ctx, func(ctx context.Context) error {
		history, hErr := inv.API().MessagesGetHistory(ctx, &tg.MessagesGetHistoryRequest{
			Peer:  peer,
			Limit: spamBotHistoryLimit,
		})
		if hErr != nil {
			return errors.Wrap(hErr, "read spam bot reply")
		}
		for _, m := range historyMessages(history) {
			msg, ok := m.(*tg.Message)
			if !ok || msg.Out || msg.Message == "" {
				continue
			}
			verdict = msg.Message
			return nil
		}
		return errors.New("spam bot did not reply")
	})
	if err != nil {
		return false, "", err
	}
	return parseSpamVerdict(verdict), firstLine(verdict), nil
}

// parseSpamVerdict трактует ответ @SpamBot: упоминание отсутствия ограничений
// означает свободный аккаунт, любой другой вердикт — ограничение.
func parseSpamVerdict(text string) bool {
	lower := strings.ToLower(text)
	for _, marker := range []string{"no limits", "free as a bird", "good news"} {
		if strings.Contains(lower, marker) {
			return false
		}
	}
	return true
}

// sentMessageID извлекает ID отправленного сообщения из ответа сервера.
func sentMessageID(raw tg.UpdatesClass) int {
	switch u := raw.(type) {
	case *tg.UpdateShortSentMessage:
		return u.ID
	case *tg.Updates:
		for _, upd := range u.Updates {
			if m, ok := upd.(*tg.UpdateMessageID); ok {
				return m.ID
			}
		}
	}
	return 0
}
