// Файл contacts.go — чтение и массовая очистка адресной книги аккаунта.

package accounts

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/gotd/td/tg"
)

// Contacts возвращает адресную книгу аккаунта.
func Contacts(ctx context.Context, inv Invoker) ([]Contact, error) {
	var result []Contact
	err := inv.Execute(ctx, func(ctx context.Context) error {
		raw, err := inv.API().ContactsGetContacts(ctx, 0)
		if err != nil {
			return errors.Wrap(err, "get contacts")
		}
		full, ok := raw.(*tg.ContactsContacts)
		if !ok {
			// ContactsContactsNotModified при hash=0 не приходит; пустая книга.
			result = nil
			return nil
		}

		users := make(map[int64]*tg.User, len(full.Users))
		for _, u := range full.Users {
			if user, userOK := u.(*tg.User); userOK {
				users[user.ID] = user
			}
		}

		result = result[:0]
		for _, c := range full.Contacts {
			user := users[c.UserID]
			if user == nil {
				continue
			}
			username, _ := user.GetUsername()
			result = append(result, Contact{
				UserID:     user.ID,
				AccessHash: user.AccessHash,
				FirstName:  user.FirstName,
				LastName:   user.LastName,
				Username:   username,
				Phone:      user.Phone,
			})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// ClearContacts удаляет всю адресную книгу чанками по chunkSize с паузой delay
// между чанками. Возвращает число удалённых контактов.
func ClearContacts(ctx context.Context, inv Invoker, chunkSize int, delay time.Duration) (int, error) {
	contacts, err := Contacts(ctx, inv)
	if err != nil {
		return 0, err
	}
	if len(contacts) == 0 {
		return 0, nil
	}

	deleted := 0
	err = eachChunk(ctx, contacts, chunkSize, delay, func(chunk []Contact) error {
		ids := make([]tg.InputUserClass, 0, len(chunk))
		for _, c := range chunk {
			ids = append(ids, &tg.InputUser{UserID: c.UserID, AccessHash: c.AccessHash})
		}
		chunkErr := inv.Execute(ctx, func(ctx context.Context) error {
			_, delErr := inv.API().ContactsDeleteContacts(ctx, ids)
			return delErr
		})
		if chunkErr != nil {
			return errors.Wrap(chunkErr, "delete contacts chunk")
		}
		deleted += len(chunk)
		return nil
	})
	return deleted, err
}
