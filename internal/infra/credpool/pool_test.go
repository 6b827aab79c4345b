package credpool

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"telegram-sessman/internal/infra/config"
)

var testCreds = []config.Credential{
	{ID: 11, Hash: "aaa"},
	{ID: 22, Hash: "bbb"},
	{ID: 33, Hash: "ccc"},
}

// manualClock — управляемый источник времени для проверок остывания.
type manualClock struct {
	now time.Time
}

func (c *manualClock) Now() time.Time { return c.now }

func TestAcquireFirstFitOrder(t *testing.T) {
	t.Parallel()

	p := New(testCreds, 2, time.Hour)

	// Потолок 2: первая учётка выдаётся дважды, затем очередь второй.
	for _, wantID := range []int{11, 11, 22, 22, 33, 33} {
		cred, err := p.Acquire()
		if err != nil {
			t.Fatalf("Acquire() error = %v", err)
		}
		if cred.ID != wantID {
			t.Fatalf("Acquire() id = %d, want %d", cred.ID, wantID)
		}
	}
}

func TestAcquireExhausted(t *testing.T) {
	t.Parallel()

	p := New(testCreds[:1], 1, time.Hour)

	if _, err := p.Acquire(); err != nil {
		t.Fatalf("first Acquire() error = %v", err)
	}
	_, err := p.Acquire()
	if !errors.Is(err, ErrPoolExhausted) {
		t.Fatalf("second Acquire() error = %v, want ErrPoolExhausted", err)
	}
}

func TestAcquireCooldownResetsCounter(t *testing.T) {
	t.Parallel()

	clock := &manualClock{now: time.Unix(1_700_000_000, 0)}
	p := New(testCreds[:1], 1, time.Hour, WithClock(clock.Now))

	if _, err := p.Acquire(); err != nil {
		t.Fatalf("first Acquire() error = %v", err)
	}
	if _, err := p.Acquire(); !errors.Is(err, ErrPoolExhausted) {
		t.Fatalf("Acquire() before cooldown error = %v, want ErrPoolExhausted", err)
	}

	// Окно остывания прошло: счётчик сбрасывается, выдача после сброса равна 1.
	clock.now = clock.now.Add(time.Hour + time.Second)
	cred, err := p.Acquire()
	if err != nil {
		t.Fatalf("Acquire() after cooldown error = %v", err)
	}
	if cred.ID != 11 {
		t.Fatalf("Acquire() id = %d, want 11", cred.ID)
	}
	count, _ := p.Usage(11)
	if count != 1 {
		t.Fatalf("Usage(11) count = %d, want 1 after reset", count)
	}
}

func TestOpenPersistsCountersAcrossRestart(t *testing.T) {
	t.Parallel()

	statePath := filepath.Join(t.TempDir(), "creds.bbolt")

	p, err := Open(testCreds, 10, time.Hour, statePath)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	for range 3 {
		if _, acqErr := p.Acquire(); acqErr != nil {
			t.Fatalf("Acquire() error = %v", acqErr)
		}
	}
	if err = p.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	reopened, err := Open(testCreds, 10, time.Hour, statePath)
	if err != nil {
		t.Fatalf("reopen error = %v", err)
	}
	defer func() { _ = reopened.Close() }()

	count, lastUsed := reopened.Usage(11)
	if count != 3 {
		t.Fatalf("Usage(11) count = %d, want 3 after restart", count)
	}
	if lastUsed.IsZero() {
		t.Fatal("Usage(11) lastUsed is zero, want persisted timestamp")
	}
}

func TestOpenIgnoresUnknownCredentials(t *testing.T) {
	t.Parallel()

	statePath := filepath.Join(t.TempDir(), "creds.bbolt")

	p, err := Open(testCreds, 10, time.Hour, statePath)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	if _, err = p.Acquire(); err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}
	_ = p.Close()

	// Первая учётка выведена из конфигурации: её сохранённый счётчик игнорируется.
	reopened, err := Open(testCreds[1:], 10, time.Hour, statePath)
	if err != nil {
		t.Fatalf("reopen error = %v", err)
	}
	defer func() { _ = reopened.Close() }()

	if reopened.Size() != 2 {
		t.Fatalf("Size() = %d, want 2", reopened.Size())
	}
	count, _ := reopened.Usage(11)
	if count != 0 {
		t.Fatalf("Usage(11) count = %d, want 0 for removed credential", count)
	}
}
