// Файл account_ops.go — действия меню, требующие подключённой сессии: проверка
// живости, завершение чужих устройств, профиль, контакты, диалоги, коды логина
// и облачный пароль. Каждое действие выбирает сессию, подключает её через
// withClient и после успеха обновляет метаданные в реестре.

package cli

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"telegram-sessman/internal/domain/accounts"
	"telegram-sessman/internal/infra/logger"
	"telegram-sessman/internal/infra/pr"
	"telegram-sessman/internal/infra/registry"
	"telegram-sessman/internal/infra/tgclient"
)

// refreshMetadata сохраняет в реестре свежий снимок аккаунта подключённой сессии.
func (s *Service) refreshMetadata(client *tgclient.Client) {
	self := client.Self()
	if self == nil {
		return
	}
	meta := accounts.MetadataFromUser(self)
	if err := s.reg.SetMetadata(client.Phone(), meta.JSON(), ""); err != nil {
		logger.Warnf("refresh metadata for %s: %v", client.Phone(), err)
	}
}

// handleCheckHealth проверяет одну сессию; по запросу выполняется и проба записи.
func (s *Service) handleCheckHealth(ctx context.Context) {
	rec, err := s.selectSession("")
	if err != nil {
		pr.ErrPrintln(err)
		return
	}
	deep := confirm("run deep check (send and revoke a probe message)")

	err = s.withClient(ctx, rec.Phone, func(client *tgclient.Client) error {
		health, hErr := accounts.CheckHealth(ctx, client, deep)
		if hErr != nil {
			return hErr
		}
		s.refreshMetadata(client)
		pr.Printf("Session %s: alive=%t", rec.Phone, health.Alive)
		if deep {
			pr.Printf(", can write=%t", health.CanWrite)
		}
		pr.Println("")
		if health.Alive {
			pr.Printf("Account TTL: %d day(s), 2FA: %t\n", health.TTLDays, health.TwoFA)

			// Ограничения видит только @SpamBot: в «Избранное» пишет и
			// ограниченный аккаунт.
			restricted, verdict, rErr := accounts.CheckRestriction(ctx, client)
			switch {
			case rErr != nil:
				pr.ErrPrintln("restriction check:", rErr)
			case restricted:
				pr.Printf("Restricted: yes (%s)\n", truncate(verdict, 80))
			default:
				pr.Println("Restricted: no")
			}
		}
		if health.Detail != "" {
			pr.Println("detail:", health.Detail)
		}
		return nil
	})
	if err != nil {
		pr.ErrPrintln("health check:", err)
	}
}

// handleTerminateDevices завершает все авторизации сессии, кроме текущей.
func (s *Service) handleTerminateDevices(ctx context.Context) {
	rec, err := s.selectSession(registry.StatusActive)
	if err != nil {
		pr.ErrPrintln(err)
		return
	}

	err = s.withClient(ctx, rec.Phone, func(client *tgclient.Client) error {
		auths, listErr := accounts.Authorizations(ctx, client)
		if listErr != nil {
			return listErr
		}
		for _, a := range auths {
			current := ""
			if a.Current {
				current = " (current)"
			}
			pr.Printf("  %s / %s / %s, active %s%s\n",
				a.DeviceModel, a.Platform, a.Country, humanTime(a.DateActive), current)
		}
		if len(auths) <= 1 {
			pr.Println("No other devices.")
			return nil
		}
		if !confirm(fmt.Sprintf("terminate %d other device(s)", len(auths)-1)) {
			pr.Println("Canceled.")
			return nil
		}

		terminated, termErr := accounts.TerminateOthers(ctx, client)
		if termErr != nil {
			return termErr
		}
		pr.Printf("Terminated %d device(s).\n", terminated)
		return nil
	})
	if err != nil {
		pr.ErrPrintln("terminate devices:", err)
	}
}

// handleUpdateProfile меняет имя и описание профиля. Пустой ввод оставляет поле
// как есть; ввод "random" генерирует случайную пару имя+фамилия.
func (s *Service) handleUpdateProfile(ctx context.Context) {
	rec, err := s.selectSession(registry.StatusActive)
	if err != nil {
		pr.ErrPrintln(err)
		return
	}

	first, err := promptLine("first name (empty=keep, 'random'=generate): ")
	if err != nil {
		pr.ErrPrintln(err)
		return
	}
	var profile accounts.Profile
	if first == "random" {
		rng := rand.New(rand.NewSource(time.Now().UnixNano()))
		f, l := accounts.RandomName(rng)
		profile.FirstName, profile.LastName = &f, &l
		pr.Printf("Generated name: %s %s\n", f, l)
	} else {
		if first != "" {
			profile.FirstName = &first
		}
		last, lastErr := promptLine("last name (empty=keep): ")
		if lastErr != nil {
			pr.ErrPrintln(lastErr)
			return
		}
		if last != "" {
			profile.LastName = &last
		}
	}
	about, err := promptLine("about (empty=keep): ")
	if err != nil {
		pr.ErrPrintln(err)
		return
	}
	if about != "" {
		profile.About = &about
	}

	err = s.withClient(ctx, rec.Phone, func(client *tgclient.Client) error {
		if upErr := accounts.UpdateProfile(ctx, client, profile); upErr != nil {
			return upErr
		}
		s.refreshMetadata(client)
		pr.Println("Profile updated.")
		return nil
	})
	if err != nil {
		pr.ErrPrintln("update profile:", err)
	}
}

// handleClearContacts удаляет адресную книгу сессии чанками.
func (s *Service) handleClearContacts(ctx context.Context) {
	rec, err := s.selectSession(registry.StatusActive)
	if err != nil {
		pr.ErrPrintln(err)
		return
	}

	err = s.withClient(ctx, rec.Phone, func(client *tgclient.Client) error {
		contacts, listErr := accounts.Contacts(ctx, client)
		if listErr != nil {
			return listErr
		}
		if len(contacts) == 0 {
			pr.Println("Address book is empty.")
			return nil
		}
		if !confirm(fmt.Sprintf("delete all %d contact(s)", len(contacts))) {
			pr.Println("Canceled.")
			return nil
		}

		deleted, clearErr := accounts.ClearContacts(ctx, client, s.env.BatchSize, s.env.BatchDelay)
		if clearErr != nil {
			return clearErr
		}
		pr.Printf("Deleted %d contact(s).\n", deleted)
		return nil
	})
	if err != nil {
		pr.ErrPrintln("clear contacts:", err)
	}
}

// handleDeleteDialogs удаляет все диалоги сессии: каналы покидаются, остальное
// зачищается с отзывом истории.
func (s *Service) handleDeleteDialogs(ctx context.Context) {
	rec, err := s.selectSession(registry.StatusActive)
	if err != nil {
		pr.ErrPrintln(err)
		return
	}

	err = s.withClient(ctx, rec.Phone, func(client *tgclient.Client) error {
		dialogs, listErr := accounts.Dialogs(ctx, client)
		if listErr != nil {
			return listErr
		}
		if len(dialogs) == 0 {
			pr.Println("No dialogs.")
			return nil
		}
		for _, d := range dialogs {
			pr.Printf("  %s\n", d.Title)
		}
		if !confirm(fmt.Sprintf("delete all %d dialog(s)", len(dialogs))) {
			pr.Println("Canceled.")
			return nil
		}

		deleted, delErr := accounts.DeleteDialogs(ctx, client, dialogs, s.env.BatchSize, s.env.BatchDelay)
		if delErr != nil {
			return delErr
		}
		pr.Printf("Deleted %d dialog(s).\n", deleted)
		return nil
	})
	if err != nil {
		pr.ErrPrintln("delete dialogs:", err)
	}
}

// handleReadOTP печатает свежие коды логина из служебного чата.
func (s *Service) handleReadOTP(ctx context.Context) {
	rec, err := s.selectSession(registry.StatusActive)
	if err != nil {
		pr.ErrPrintln(err)
		return
	}

	err = s.withClient(ctx, rec.Phone, func(client *tgclient.Client) error {
		codes, otpErr := accounts.ReadOTP(ctx, client)
		if otpErr != nil {
			return otpErr
		}
		if len(codes) == 0 {
			pr.Println("No login codes in the service chat.")
			return nil
		}
		for _, otp := range codes {
			pr.Printf("  %s  %s  (%s)\n", otp.Code, humanTime(otp.Date), truncate(otp.Text, 50))
		}
		return nil
	})
	if err != nil {
		pr.ErrPrintln("read login codes:", err)
	}
}

// handleManage2FA показывает статус облачного пароля и позволяет установить,
// сменить или отключить его.
func (s *Service) handleManage2FA(ctx context.Context) {
	rec, err := s.selectSession(registry.StatusActive)
	if err != nil {
		pr.ErrPrintln(err)
		return
	}

	err = s.withClient(ctx, rec.Phone, func(client *tgclient.Client) error {
		twofa := accounts.NewTwoFA(client.Telegram(), client)

		status, stErr := twofa.Status(ctx)
		if stErr != nil {
			return stErr
		}
		if status.Enabled {
			pr.Printf("2FA is enabled (hint: %q)\n", status.Hint)
		} else {
			pr.Println("2FA is disabled.")
		}

		choice, chErr := promptLine("action (set/disable/skip): ")
		if chErr != nil {
			return chErr
		}
		switch choice {
		case "set":
			current := ""
			if status.Enabled {
				current, chErr = promptPassword("current password: ")
				if chErr != nil {
					return chErr
				}
			}
			newPassword, pwErr := promptPassword("new password: ")
			if pwErr != nil {
				return pwErr
			}
			hint, hintErr := promptLine("hint (optional): ")
			if hintErr != nil {
				return hintErr
			}
			if setErr := twofa.Set(ctx, current, newPassword, hint); setErr != nil {
				return setErr
			}
			pr.Println("Password updated.")
		case "disable":
			if !status.Enabled {
				pr.Println("Nothing to disable.")
				return nil
			}
			current, pwErr := promptPassword("current password: ")
			if pwErr != nil {
				return pwErr
			}
			if disErr := twofa.Disable(ctx, current); disErr != nil {
				return disErr
			}
			pr.Println("Password disabled.")
		default:
			pr.Println("Skipped.")
		}
		return nil
	})
	if err != nil {
		pr.ErrPrintln("manage 2fa:", err)
	}
}
