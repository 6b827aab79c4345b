// Файл sessions.go — действия меню над реестром и файловым хранилищем:
// списки, карточка сессии, заметки, удаление, зачистка, бэкап, экспорт CSV,
// статистика и массовая проверка живости.

package cli

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"sort"
	"strconv"
	"sync"
	"time"

	"telegram-sessman/internal/domain/accounts"
	"telegram-sessman/internal/infra/logger"
	"telegram-sessman/internal/infra/pr"
	"telegram-sessman/internal/infra/registry"
	"telegram-sessman/internal/infra/secrets"
	"telegram-sessman/internal/infra/tgclient"
)

// handleListSessions печатает все записи реестра.
func (s *Service) handleListSessions() {
	recs, err := s.reg.List("")
	if err != nil {
		pr.ErrPrintln("list sessions:", err)
		return
	}
	renderSessions(recs)
}

// handleShowSession печатает карточку одной сессии.
func (s *Service) handleShowSession() {
	rec, err := s.selectSession("")
	if err != nil {
		pr.ErrPrintln(err)
		return
	}

	pr.Printf("Phone:      %s\n", rec.Phone)
	pr.Printf("Status:     %s\n", rec.Status)
	pr.Printf("File:       %s\n", rec.Path)
	pr.Printf("Encrypted:  %t\n", rec.Encrypted)
	pr.Printf("Created:    %s\n", humanTime(rec.CreatedAt))
	pr.Printf("Last used:  %s\n", humanTime(rec.LastUsed))
	if rec.SecretHash != "" {
		pr.Printf("Secret:     %s\n", rec.SecretHash)
	}
	if meta, ok := decodeMetadata(rec.Metadata); ok {
		pr.Printf("Account:    %s (id=%d, premium=%t, verified=%t)\n",
			meta.DisplayName(), meta.ID, meta.Premium, meta.Verified)
	}
	if rec.Notes != "" {
		pr.Printf("Notes:      %s\n", rec.Notes)
	}
	if _, statErr := os.Stat(rec.Path); statErr != nil {
		pr.ErrPrintf("warning: secret file is missing: %v\n", statErr)
	}
}

// handleEditNotes замещает заметки оператора для сессии.
func (s *Service) handleEditNotes() {
	rec, err := s.selectSession("")
	if err != nil {
		pr.ErrPrintln(err)
		return
	}
	if rec.Notes != "" {
		pr.Println("Current notes:", rec.Notes)
	}
	notes, err := promptLine("new notes (empty to clear): ")
	if err != nil {
		pr.ErrPrintln(err)
		return
	}
	if err = s.reg.SetNotes(rec.Phone, notes); err != nil {
		pr.ErrPrintln("save notes:", err)
		return
	}
	pr.Println("Notes updated.")
}

// handleDeleteSession удаляет сессию: запись реестра и файл секрета.
func (s *Service) handleDeleteSession() {
	rec, err := s.selectSession("")
	if err != nil {
		pr.ErrPrintln(err)
		return
	}
	if !confirm(fmt.Sprintf("delete session %s and its secret file", rec.Phone)) {
		pr.Println("Canceled.")
		return
	}

	if err = s.store.Remove(rec.Phone); err != nil {
		pr.ErrPrintln("remove secret file:", err)
		return
	}
	if _, err = s.reg.Delete(rec.Phone); err != nil {
		pr.ErrPrintln("remove registry record:", err)
		return
	}
	logger.Infof("session %s deleted", rec.Phone)
	pr.Println("Session deleted.")
}

// handleCleanup сверяет реестр с каталогом хранилища: записи без файла удаляются,
// файлы без записи регистрируются как обнаруженные сессии (и то и другое —
// после подтверждения).
func (s *Service) handleCleanup(_ context.Context) {
	recs, err := s.reg.List("")
	if err != nil {
		pr.ErrPrintln("list sessions:", err)
		return
	}

	var dangling []registry.Record
	known := make(map[string]struct{}, len(recs))
	for _, rec := range recs {
		known[rec.Phone] = struct{}{}
		if _, statErr := os.Stat(rec.Path); statErr != nil {
			dangling = append(dangling, rec)
		}
	}

	paths, err := s.store.Discover()
	if err != nil {
		pr.ErrPrintln("scan store:", err)
		return
	}
	var orphans []string
	for _, path := range paths {
		if _, ok := known[secrets.PhoneFromPath(path)]; !ok {
			orphans = append(orphans, path)
		}
	}

	if len(dangling) == 0 && len(orphans) == 0 {
		pr.Println("Registry and store are consistent.")
		return
	}

	if len(orphans) > 0 {
		for _, path := range orphans {
			pr.Printf("orphan file (no registry record): %s\n", path)
		}
		if confirm(fmt.Sprintf("register %d orphan file(s) in the registry", len(orphans))) {
			registered := 0
			for _, path := range orphans {
				rec := registry.Record{
					Phone:     secrets.PhoneFromPath(path),
					Path:      path,
					Encrypted: secrets.IsEncryptedPath(path),
				}
				if upErr := s.reg.Upsert(rec); upErr != nil {
					pr.ErrPrintf("register %s: %v\n", path, upErr)
					continue
				}
				registered++
			}
			pr.Printf("Registered %d session(s).\n", registered)
		}
	}
	if len(dangling) > 0 {
		for _, rec := range dangling {
			pr.Printf("dangling record (file missing): %s -> %s\n", rec.Phone, rec.Path)
		}
		if confirm(fmt.Sprintf("remove %d dangling record(s)", len(dangling))) {
			removed := 0
			for _, rec := range dangling {
				if _, delErr := s.reg.Delete(rec.Phone); delErr != nil {
					pr.ErrPrintf("remove record %s: %v\n", rec.Phone, delErr)
					continue
				}
				removed++
			}
			pr.Printf("Removed %d record(s).\n", removed)
		}
	}
}

// handleBackup копирует файлы секретов активных сессий в каталог бэкапа.
func (s *Service) handleBackup() {
	recs, err := s.reg.List(registry.StatusActive)
	if err != nil {
		pr.ErrPrintln("list sessions:", err)
		return
	}
	if len(recs) == 0 {
		pr.Println("Nothing to back up.")
		return
	}

	paths := make([]string, 0, len(recs))
	for _, rec := range recs {
		paths = append(paths, rec.Path)
	}
	dir, copied, err := s.store.Backup(paths)
	if err != nil {
		pr.ErrPrintln("backup:", err)
		return
	}
	pr.Printf("Backed up %d of %d file(s) to %s\n", copied, len(paths), dir)
}

// handleExportCSV выгружает реестр в CSV-файл рядом с реестром.
func (s *Service) handleExportCSV() {
	recs, err := s.reg.List("")
	if err != nil {
		pr.ErrPrintln("list sessions:", err)
		return
	}

	name := "sessions_export_" + time.Now().Format("20060102_150405") + ".csv"
	f, err := os.Create(name)
	if err != nil {
		pr.ErrPrintln("create export file:", err)
		return
	}
	defer func() { _ = f.Close() }()

	w := csv.NewWriter(f)
	header := []string{"phone", "status", "encrypted", "created_at", "last_used",
		"username", "first_name", "last_name", "premium", "notes"}
	if err = w.Write(header); err != nil {
		pr.ErrPrintln("write export:", err)
		return
	}
	for _, rec := range recs {
		meta, _ := decodeMetadata(rec.Metadata)
		row := []string{
			rec.Phone, rec.Status, strconv.FormatBool(rec.Encrypted),
			rec.CreatedAt.Format(time.RFC3339), rec.LastUsed.Format(time.RFC3339),
			meta.Username, meta.FirstName, meta.LastName,
			strconv.FormatBool(meta.Premium), rec.Notes,
		}
		if err = w.Write(row); err != nil {
			pr.ErrPrintln("write export:", err)
			return
		}
	}
	w.Flush()
	if err = w.Error(); err != nil {
		pr.ErrPrintln("flush export:", err)
		return
	}
	pr.Printf("Exported %d session(s) to %s\n", len(recs), name)
}

// handleStats печатает агрегаты реестра.
func (s *Service) handleStats() {
	stats, err := s.reg.Stats()
	if err != nil {
		pr.ErrPrintln("stats:", err)
		return
	}
	pr.Printf("Sessions:   %d total, %d active, %d inactive\n", stats.Total, stats.Active, stats.Inactive)
	pr.Printf("Encrypted:  %d\n", stats.Encrypted)
	pr.Printf("Premium:    %d\n", stats.Premium)
	pr.Printf("Used <24h:  %d\n", stats.UsedLast24h)
	pr.Printf("Used <7d:   %d\n", stats.UsedLast7d)
	if !stats.OldestCreated.IsZero() {
		pr.Printf("Oldest:     %s\n", humanTime(stats.OldestCreated))
		pr.Printf("Newest:     %s\n", humanTime(stats.NewestCreated))
	}
}

// handlePoolUsage печатает счётчики пула учёток приложения.
func (s *Service) handlePoolUsage() {
	for _, cred := range s.env.Credentials {
		count, lastUsed := s.pool.Usage(cred.ID)
		pr.Printf("credential %d: used %d/%d, last used %s\n",
			cred.ID, count, s.env.CredUsageCeiling, humanTime(lastUsed))
	}
}

// bulkResult — исход проверки одной сессии.
type bulkResult struct {
	phone  string
	alive  bool
	detail string
}

// handleBulkCheck проверяет живость всех активных сессий. Конкурентность
// ограничена семафором троттлера: каждая проверка идёт через withClient.
func (s *Service) handleBulkCheck(ctx context.Context) {
	recs, err := s.reg.List(registry.StatusActive)
	if err != nil {
		pr.ErrPrintln("list sessions:", err)
		return
	}
	if len(recs) == 0 {
		pr.Println("No active sessions.")
		return
	}
	pr.Printf("Checking %d session(s)...\n", len(recs))

	var (
		mu      sync.Mutex
		results []bulkResult
		wg      sync.WaitGroup
	)
	for _, rec := range recs {
		phone := rec.Phone
		wg.Add(1)
		go func() {
			defer wg.Done()
			res := bulkResult{phone: phone}
			checkErr := s.withClient(ctx, phone, func(client *tgclient.Client) error {
				health, hErr := accounts.CheckHealth(ctx, client, false)
				res.alive = health.Alive
				res.detail = health.Detail
				return hErr
			})
			if checkErr != nil {
				res.alive = false
				res.detail = checkErr.Error()
			}
			mu.Lock()
			results = append(results, res)
			mu.Unlock()
		}()
	}
	wg.Wait()

	sort.Slice(results, func(i, j int) bool { return results[i].phone < results[j].phone })
	alive := 0
	for _, res := range results {
		mark := "DEAD"
		if res.alive {
			mark = "OK"
			alive++
		}
		if res.detail != "" && !res.alive {
			pr.Printf("  %-16s %-4s %s\n", res.phone, mark, truncate(res.detail, 60))
			continue
		}
		pr.Printf("  %-16s %s\n", res.phone, mark)
	}
	pr.Printf("Alive: %d of %d\n", alive, len(results))
}
