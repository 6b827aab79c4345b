package registry

import (
	"database/sql"
	"path/filepath"
	"sync"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

func openTestRegistry(t *testing.T) *Registry {
	t.Helper()
	r, err := Open(filepath.Join(t.TempDir(), "sessions.db"))
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { _ = r.Close() })
	return r
}

func TestUpsertGetRoundTrip(t *testing.T) {
	t.Parallel()

	r := openTestRegistry(t)
	created := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

	rec := Record{
		Phone:      "+79990001122",
		Path:       "/data/sessions/+79990001122.session",
		CreatedAt:  created,
		LastUsed:   created,
		Metadata:   `{"id":42,"premium":true}`,
		SecretHash: "deadbeefdeadbeef",
		Encrypted:  true,
		Status:     StatusActive,
		Notes:      "main farm account",
	}
	if err := r.Upsert(rec); err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}

	got, err := r.Get(rec.Phone)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got == nil {
		t.Fatal("Get() = nil, want record")
	}
	if got.Path != rec.Path || got.Metadata != rec.Metadata || got.SecretHash != rec.SecretHash ||
		!got.Encrypted || got.Status != rec.Status || got.Notes != rec.Notes {
		t.Fatalf("Get() = %+v, want %+v", *got, rec)
	}
	if !got.CreatedAt.Equal(created) || !got.LastUsed.Equal(created) {
		t.Fatalf("timestamps = %v/%v, want %v", got.CreatedAt, got.LastUsed, created)
	}

	// Повторная регистрация того же телефона замещает строку.
	rec.Notes = "rotated"
	if err = r.Upsert(rec); err != nil {
		t.Fatalf("second Upsert() error = %v", err)
	}
	got, err = r.Get(rec.Phone)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.Notes != "rotated" {
		t.Fatalf("Notes = %q, want %q", got.Notes, "rotated")
	}
}

func TestGetMissingReturnsNil(t *testing.T) {
	t.Parallel()

	r := openTestRegistry(t)
	got, err := r.Get("+70000000000")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got != nil {
		t.Fatalf("Get() = %+v, want nil", got)
	}
}

func TestMigrationAddsColumnsPreservingRows(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "sessions.db")

	// Имитируем реестр ранней версии: только базовые колонки и одна строка.
	legacy, err := sql.Open("sqlite3", "file:"+path)
	if err != nil {
		t.Fatalf("open legacy db: %v", err)
	}
	_, err = legacy.Exec(`CREATE TABLE sessions (
		phone TEXT PRIMARY KEY,
		path TEXT UNIQUE NOT NULL,
		created_at TEXT NOT NULL,
		last_used TEXT NOT NULL
	)`)
	if err != nil {
		t.Fatalf("create legacy table: %v", err)
	}
	_, err = legacy.Exec(
		`INSERT INTO sessions (phone, path, created_at, last_used) VALUES (?, ?, ?, ?)`,
		"+79990001122", "/old/path.session", "2025-01-01T00:00:00Z", "2025-01-02T00:00:00Z")
	if err != nil {
		t.Fatalf("insert legacy row: %v", err)
	}
	if err = legacy.Close(); err != nil {
		t.Fatalf("close legacy db: %v", err)
	}

	r, err := Open(path)
	if err != nil {
		t.Fatalf("Open() over legacy schema error = %v", err)
	}
	defer func() { _ = r.Close() }()

	got, err := r.Get("+79990001122")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got == nil {
		t.Fatal("legacy row lost after migration")
	}
	if got.Path != "/old/path.session" {
		t.Fatalf("Path = %q, want legacy value", got.Path)
	}
	// Новые колонки получили значения по умолчанию.
	if got.Status != StatusActive {
		t.Fatalf("Status = %q, want %q", got.Status, StatusActive)
	}
	if got.Encrypted {
		t.Fatal("Encrypted = true, want default false")
	}
	if got.Notes != "" || got.Metadata != "" {
		t.Fatalf("Notes/Metadata = %q/%q, want empty defaults", got.Notes, got.Metadata)
	}

	// Новые операции работают поверх мигрированной строки.
	if err = r.SetNotes("+79990001122", "migrated"); err != nil {
		t.Fatalf("SetNotes() error = %v", err)
	}
}

func TestListFiltersByStatus(t *testing.T) {
	t.Parallel()

	r := openTestRegistry(t)
	for i, status := range []string{StatusActive, StatusInactive, StatusActive} {
		rec := Record{
			Phone:  "+7999000112" + string(rune('0'+i)),
			Path:   "/s/" + string(rune('a'+i)),
			Status: status,
		}
		if err := r.Upsert(rec); err != nil {
			t.Fatalf("Upsert() error = %v", err)
		}
	}

	active, err := r.List(StatusActive)
	if err != nil {
		t.Fatalf("List(active) error = %v", err)
	}
	if len(active) != 2 {
		t.Fatalf("List(active) = %d records, want 2", len(active))
	}
	all, err := r.List("")
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("List() = %d records, want 3", len(all))
	}
}

func TestDeleteTouchStatus(t *testing.T) {
	t.Parallel()

	r := openTestRegistry(t)
	rec := Record{Phone: "+79990001122", Path: "/s/a"}
	if err := r.Upsert(rec); err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}

	at := time.Date(2026, 8, 20, 10, 30, 0, 0, time.UTC)
	if err := r.Touch(rec.Phone, at); err != nil {
		t.Fatalf("Touch() error = %v", err)
	}
	if err := r.SetStatus(rec.Phone, StatusInactive); err != nil {
		t.Fatalf("SetStatus() error = %v", err)
	}

	got, err := r.Get(rec.Phone)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if !got.LastUsed.Equal(at) {
		t.Fatalf("LastUsed = %v, want %v", got.LastUsed, at)
	}
	if got.Status != StatusInactive {
		t.Fatalf("Status = %q, want %q", got.Status, StatusInactive)
	}

	existed, err := r.Delete(rec.Phone)
	if err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if !existed {
		t.Fatal("Delete() = false, want true for existing record")
	}
	existed, err = r.Delete(rec.Phone)
	if err != nil {
		t.Fatalf("second Delete() error = %v", err)
	}
	if existed {
		t.Fatal("second Delete() = true, want false")
	}
}

func TestStatsAggregates(t *testing.T) {
	t.Parallel()

	r := openTestRegistry(t)
	now := time.Now().UTC()

	fixtures := []Record{
		{Phone: "+71", Path: "/s/1", Status: StatusActive, Encrypted: true,
			Metadata: `{"id":1,"premium":true}`, LastUsed: now.Add(-time.Hour)},
		{Phone: "+72", Path: "/s/2", Status: StatusActive,
			Metadata: `{"id":2,"premium":false}`, LastUsed: now.Add(-48 * time.Hour)},
		{Phone: "+73", Path: "/s/3", Status: StatusInactive,
			LastUsed: now.Add(-30 * 24 * time.Hour)},
	}
	for _, rec := range fixtures {
		if err := r.Upsert(rec); err != nil {
			t.Fatalf("Upsert(%s) error = %v", rec.Phone, err)
		}
	}

	stats, err := r.Stats()
	if err != nil {
		t.Fatalf("Stats() error = %v", err)
	}
	if stats.Total != 3 || stats.Active != 2 || stats.Inactive != 1 {
		t.Fatalf("Stats counts = %+v, want total=3 active=2 inactive=1", stats)
	}
	if stats.Encrypted != 1 {
		t.Fatalf("Encrypted = %d, want 1", stats.Encrypted)
	}
	if stats.Premium != 1 {
		t.Fatalf("Premium = %d, want 1", stats.Premium)
	}
	if stats.UsedLast24h != 1 {
		t.Fatalf("UsedLast24h = %d, want 1", stats.UsedLast24h)
	}
	if stats.UsedLast7d != 2 {
		t.Fatalf("UsedLast7d = %d, want 2", stats.UsedLast7d)
	}
	if stats.OldestCreated.IsZero() || stats.NewestCreated.Before(stats.OldestCreated) {
		t.Fatalf("created range = %v..%v, want non-zero ordered pair",
			stats.OldestCreated, stats.NewestCreated)
	}
}

func TestStatsEmptyRegistry(t *testing.T) {
	t.Parallel()

	r := openTestRegistry(t)
	stats, err := r.Stats()
	if err != nil {
		t.Fatalf("Stats() on empty registry error = %v", err)
	}
	if stats.Total != 0 || stats.Active != 0 || stats.Inactive != 0 ||
		stats.Encrypted != 0 || stats.Premium != 0 {
		t.Fatalf("Stats() on empty registry = %+v, want zeros", stats)
	}
	if !stats.OldestCreated.IsZero() || !stats.NewestCreated.IsZero() {
		t.Fatalf("created range = %v..%v, want zero times", stats.OldestCreated, stats.NewestCreated)
	}
}

func TestConcurrentUpserts(t *testing.T) {
	t.Parallel()

	r := openTestRegistry(t)

	var wg sync.WaitGroup
	errs := make(chan error, 10)
	for i := range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			rec := Record{
				Phone: "+7999000" + string(rune('0'+i)) + "000",
				Path:  "/s/c" + string(rune('0'+i)),
			}
			errs <- r.Upsert(rec)
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		if err != nil {
			t.Fatalf("concurrent Upsert() error = %v", err)
		}
	}
	all, err := r.List("")
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(all) != 10 {
		t.Fatalf("List() = %d records, want 10", len(all))
	}
}
