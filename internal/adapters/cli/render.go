// Файл render.go — примитивы ввода-вывода меню: строчные промпты, подтверждения,
// скрытый ввод пароля и табличный вывод списков через tabwriter.

package cli

import (
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/go-faster/errors"
	"golang.org/x/term"

	"telegram-sessman/internal/domain/accounts"
	"telegram-sessman/internal/infra/config"
	"telegram-sessman/internal/infra/pr"
	"telegram-sessman/internal/infra/registry"
)

// promptLine читает одну строку с заданным промптом, возвращая обрезанный ввод.
// Промпт меню восстанавливается после чтения.
func promptLine(label string) (string, error) {
	rl := pr.Rl()
	if rl == nil {
		return "", errors.New("readline is not initialized")
	}
	pr.SetPrompt(label)
	defer pr.SetPrompt("> ")

	line, err := rl.Readline()
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(line), nil
}

// promptPhone запрашивает номер телефона в каноническом формате.
func promptPhone() (string, error) {
	phone, err := promptLine("phone (+countrycode...): ")
	if err != nil {
		return "", err
	}
	if !config.ValidatePhone(phone) {
		return "", errors.Errorf("invalid phone %q: expected +<10-14 digits>", phone)
	}
	return phone, nil
}

// promptPassword читает пароль без эха. Терминал обязателен: скрытый ввод из
// пайпа не поддерживается.
func promptPassword(label string) (string, error) {
	pr.Print(label)
	raw, err := term.ReadPassword(int(os.Stdin.Fd()))
	pr.Println("")
	if err != nil {
		return "", errors.Wrap(err, "read password")
	}
	return strings.TrimSpace(string(raw)), nil
}

// confirm запрашивает подтверждение y/n. Любой ввод, кроме "y"/"yes", — отказ.
func confirm(label string) bool {
	answer, err := promptLine(label + " [y/N]: ")
	if err != nil {
		return false
	}
	answer = strings.ToLower(answer)
	return answer == "y" || answer == "yes"
}

// renderSessions печатает таблицу записей реестра.
func renderSessions(recs []registry.Record) {
	if len(recs) == 0 {
		pr.Println("No sessions registered.")
		return
	}

	w := tabwriter.NewWriter(pr.Stdout(), 2, 4, 2, ' ', 0)
	_, _ = w.Write([]byte("#\tPHONE\tSTATUS\tENC\tNAME\tLAST USED\tNOTES\n"))
	for i, rec := range recs {
		name := "-"
		if meta, ok := decodeMetadata(rec.Metadata); ok {
			name = meta.DisplayName()
		}
		enc := "no"
		if rec.Encrypted {
			enc = "yes"
		}
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%s\t%s\n",
			i+1, rec.Phone, rec.Status, enc, name,
			humanTime(rec.LastUsed), truncate(rec.Notes, 30))
	}
	_ = w.Flush()
	pr.Printf("Total: %d\n", len(recs))
}

// selectSession показывает список сессий и просит оператора выбрать одну
// по номеру строки либо по телефону. status ограничивает список.
func (s *Service) selectSession(status string) (*registry.Record, error) {
	recs, err := s.reg.List(status)
	if err != nil {
		return nil, err
	}
	if len(recs) == 0 {
		return nil, errors.New("no sessions registered")
	}
	renderSessions(recs)

	input, err := promptLine("session (# or phone): ")
	if err != nil {
		return nil, err
	}
	if input == "" {
		return nil, errors.New("nothing selected")
	}

	for i := range recs {
		if recs[i].Phone == input {
			return &recs[i], nil
		}
	}
	var idx int
	if _, scanErr := parseIndex(input, len(recs), &idx); scanErr != nil {
		return nil, scanErr
	}
	return &recs[idx], nil
}

// parseIndex разбирает порядковый номер строки таблицы (1-based).
func parseIndex(input string, total int, out *int) (bool, error) {
	n := 0
	for _, r := range input {
		if r < '0' || r > '9' {
			return false, errors.Errorf("no session matches %q", input)
		}
		n = n*10 + int(r-'0')
	}
	if n < 1 || n > total {
		return false, errors.Errorf("index %d out of range 1..%d", n, total)
	}
	*out = n - 1
	return true, nil
}

// decodeMetadata разбирает JSON-снимок аккаунта из записи реестра.
func decodeMetadata(raw string) (accounts.Metadata, bool) {
	if strings.TrimSpace(raw) == "" {
		return accounts.Metadata{}, false
	}
	meta, err := accounts.MetadataFromJSON(raw)
	if err != nil {
		return accounts.Metadata{}, false
	}
	return meta, true
}

// humanTime форматирует временную метку для таблиц; нулевое время — прочерк.
func humanTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Local().Format("2006-01-02 15:04")
}

// truncate обрезает строку до max рун с многоточием.
func truncate(s string, max int) string {
	if s == "" {
		return "-"
	}
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max-1]) + "…"
}
