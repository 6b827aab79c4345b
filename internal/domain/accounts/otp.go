// Файл otp.go — чтение кодов подтверждения из служебного чата Telegram.
// Сервер присылает коды логина от имени служебного аккаунта; мы резолвим его
// по username, читаем последние сообщения и выбираем те, что похожи на код.

package accounts

import (
	"context"
	"strings"
	"time"
	"unicode"

	"github.com/go-faster/errors"
	"github.com/gotd/td/tg"
)

const (
	// serviceUsername — username служебного аккаунта Telegram.
	serviceUsername = "telegram"
	// otpHistoryLimit — сколько последних сообщений просматривается.
	otpHistoryLimit = 10
	// otpMaxResults — сколько свежих кодов возвращается оператору.
	otpMaxResults = 3
)

// ReadOTP возвращает до otpMaxResults свежих кодов подтверждения из служебного
// чата, от новых к старым.
func ReadOTP(ctx context.Context, inv Invoker) ([]OTP, error) {
	var result []OTP
	err := inv.Execute(ctx, func(ctx context.Context) error {
		resolved, err := inv.API().ContactsResolveUsername(ctx, &tg.ContactsResolveUsernameRequest{
			Username: serviceUsername,
		})
		if err != nil {
			return errors.Wrap(err, "resolve service peer")
		}
		var service *tg.User
		for _, u := range resolved.Users {
			if user, ok := u.(*tg.User); ok {
				service = user
				break
			}
		}
		if service == nil {
			return errors.New("service peer not found")
		}

		history, err := inv.API().MessagesGetHistory(ctx, &tg.MessagesGetHistoryRequest{
			Peer:  &tg.InputPeerUser{UserID: service.ID, AccessHash: service.AccessHash},
			Limit: otpHistoryLimit,
		})
		if err != nil {
			return errors.Wrap(err, "get service history")
		}

		result = extractOTPs(historyMessages(history))
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// historyMessages разворачивает варианты ответа MessagesGetHistory в плоский список.
func historyMessages(raw tg.MessagesMessagesClass) []tg.MessageClass {
	switch h := raw.(type) {
	case *tg.MessagesMessages:
		return h.Messages
	case *tg.MessagesMessagesSlice:
		return h.Messages
	case *tg.MessagesChannelMessages:
		return h.Messages
	default:
		return nil
	}
}

// extractOTPs выбирает из сообщений те, что содержат код логина (новые первыми).
func extractOTPs(messages []tg.MessageClass) []OTP {
	var out []OTP
	for _, m := range messages {
		msg, ok := m.(*tg.Message)
		if !ok {
			continue
		}
		code, found := ExtractLoginCode(msg.Message)
		if !found {
			continue
		}
		out = append(out, OTP{
			Code: code,
			Text: firstLine(msg.Message),
			Date: time.Unix(int64(msg.Date), 0),
		})
		if len(out) == otpMaxResults {
			break
		}
	}
	return out
}

// ExtractLoginCode ищет в тексте сообщение о коде логина и извлекает код:
// первую последовательность из 5-6 цифр после упоминания "login code"
// либо "code" в первой строке. Возвращает (код, найден ли).
func ExtractLoginCode(text string) (string, bool) {
	lower := strings.ToLower(text)
	if !strings.Contains(lower, "code") {
		return "", false
	}

	idx := strings.Index(lower, "login code")
	if idx < 0 {
		idx = strings.Index(lower, "code")
	}

	// idx указывает в приведённую строку; для рун с более длинной строчной
	// формой в UTF-8 он невалиден для исходного текста. Цифры приведение не
	// меняет, поэтому сканируем lower.
	digits := make([]rune, 0, 6)
	for _, r := range lower[idx:] {
		if unicode.IsDigit(r) {
			digits = append(digits, r)
			continue
		}
		if len(digits) >= 5 {
			break
		}
		digits = digits[:0]
	}
	if len(digits) < 5 || len(digits) > 6 {
		return "", false
	}
	return string(digits), true
}

// firstLine возвращает первую строку текста (для компактного вывода оператору).
func firstLine(text string) string {
	if i := strings.IndexByte(text, '\n'); i >= 0 {
		return text[:i]
	}
	return text
}
