// Файл dialogs.go — перечисление и массовое удаление диалогов. Каналы и
// супергруппы покидаются (ChannelsLeaveChannel), личные чаты и обычные группы
// зачищаются через MessagesDeleteHistory с отзывом у собеседника.

package accounts

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/gotd/td/tg"

	"telegram-sessman/internal/infra/logger"
)

// dialogsFetchLimit — верхняя граница числа диалогов, запрашиваемых за раз.
const dialogsFetchLimit = 500

// Dialogs возвращает снимок диалогов аккаунта (не более dialogsFetchLimit).
func Dialogs(ctx context.Context, inv Invoker) ([]Dialog, error) {
	var result []Dialog
	err := inv.Execute(ctx, func(ctx context.Context) error {
		raw, err := inv.API().MessagesGetDialogs(ctx, &tg.MessagesGetDialogsRequest{
			OffsetPeer: &tg.InputPeerEmpty{},
			Limit:      dialogsFetchLimit,
		})
		if err != nil {
			return errors.Wrap(err, "get dialogs")
		}

		var (
			dialogs []tg.DialogClass
			chats   []tg.ChatClass
			users   []tg.UserClass
		)
		switch d := raw.(type) {
		case *tg.MessagesDialogs:
			dialogs, chats, users = d.Dialogs, d.Chats, d.Users
		case *tg.MessagesDialogsSlice:
			dialogs, chats, users = d.Dialogs, d.Chats, d.Users
		default:
			return errors.Errorf("unexpected dialogs type %T", raw)
		}

		result = buildDialogs(dialogs, chats, users)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// buildDialogs сопоставляет записи диалогов с объектами чатов и пользователей.
func buildDialogs(dialogs []tg.DialogClass, chats []tg.ChatClass, users []tg.UserClass) []Dialog {
	userByID := make(map[int64]*tg.User, len(users))
	for _, u := range users {
		if user, ok := u.(*tg.User); ok {
			userByID[user.ID] = user
		}
	}
	chatByID := make(map[int64]tg.ChatClass, len(chats))
	for _, c := range chats {
		switch chat := c.(type) {
		case *tg.Chat:
			chatByID[chat.ID] = chat
		case *tg.Channel:
			chatByID[chat.ID] = chat
		}
	}

	var out []Dialog
	for _, d := range dialogs {
		dlg, ok := d.(*tg.Dialog)
		if !ok {
			continue
		}
		switch peer := dlg.Peer.(type) {
		case *tg.PeerUser:
			user := userByID[peer.UserID]
			if user == nil || user.Self {
				continue
			}
			title := user.FirstName
			if user.LastName != "" {
				title += " " + user.LastName
			}
			out = append(out, Dialog{
				Kind:       DialogUser,
				Title:      title,
				PeerID:     user.ID,
				AccessHash: user.AccessHash,
			})
		case *tg.PeerChat:
			chat, okChat := chatByID[peer.ChatID].(*tg.Chat)
			if !okChat {
				continue
			}
			out = append(out, Dialog{
				Kind:   DialogChat,
				Title:  chat.Title,
				PeerID: chat.ID,
			})
		case *tg.PeerChannel:
			channel, okChan := chatByID[peer.ChannelID].(*tg.Channel)
			if !okChan {
				continue
			}
			out = append(out, Dialog{
				Kind:       DialogChannel,
				Title:      channel.Title,
				PeerID:     channel.ID,
				AccessHash: channel.AccessHash,
			})
		}
	}
	return out
}

// DeleteDialogs удаляет перечисленные диалоги чанками по chunkSize с паузой
// delay между чанками. Возвращает число удалённых; отказ по одному диалогу
// логируется и не прерывает остальные.
func DeleteDialogs(ctx context.Context, inv Invoker, dialogs []Dialog,
	chunkSize int, delay time.Duration) (int, error) {
	deleted := 0
	err := eachChunk(ctx, dialogs, chunkSize, delay, func(chunk []Dialog) error {
		for _, d := range chunk {
			if err := ctx.Err(); err != nil {
				return err
			}
			if err := deleteDialog(ctx, inv, d); err != nil {
				logger.Warnf("accounts %s: delete dialog %q: %v", inv.Phone(), d.Title, err)
				continue
			}
			deleted++
		}
		return nil
	})
	return deleted, err
}

// deleteDialog удаляет один диалог сообразно его типу.
func deleteDialog(ctx context.Context, inv Invoker, d Dialog) error {
	return inv.Execute(ctx, func(ctx context.Context) error {
		switch d.Kind {
		case DialogChannel:
			_, err := inv.API().ChannelsLeaveChannel(ctx, &tg.InputChannel{
				ChannelID:  d.PeerID,
				AccessHash: d.AccessHash,
			})
			return err
		case DialogChat:
			_, err := inv.API().MessagesDeleteHistory(ctx, &tg.MessagesDeleteHistoryRequest{
				Peer:   &tg.InputPeerChat{ChatID: d.PeerID},
				Revoke: true,
			})
			return err
		default:
			_, err := inv.API().MessagesDeleteHistory(ctx, &tg.MessagesDeleteHistoryRequest{
				Peer:   &tg.InputPeerUser{UserID: d.PeerID, AccessHash: d.AccessHash},
				Revoke: true,
			})
			return err
		}
	})
}
