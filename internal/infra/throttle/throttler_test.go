package throttle

import (
	"context"
	"errors"
	"testing"
	"time"
)

// fakeSleeper записывает запрошенные паузы вместо реального ожидания.
type fakeSleeper struct {
	waits []time.Duration
}

func (f *fakeSleeper) sleep(_ context.Context, d time.Duration) error {
	f.waits = append(f.waits, d)
	return nil
}

// stopErr — терминальная ошибка для проверки StopRetryer.
type stopErr struct{}

func (stopErr) Error() string   { return "terminal" }
func (stopErr) StopRetry() bool { return true }

// waitErr — ошибка с серверной паузой, распознаваемой экстрактором в тестах.
type waitErr struct {
	wait time.Duration
}

func (e waitErr) Error() string { return "server says wait" }

func testExtractor(err error) (time.Duration, bool) {
	var w waitErr
	if errors.As(err, &w) {
		return w.wait, true
	}
	return 0, false
}

func TestDoServerWaitIsExactAndFree(t *testing.T) {
	t.Parallel()

	sleeper := &fakeSleeper{}
	th := New(1, 0, time.Second, time.Hour,
		WithWaitExtractors(testExtractor),
		WithSleeper(sleeper.sleep),
	)

	calls := 0
	err := th.Do(context.Background(), func() error {
		calls++
		if calls == 1 {
			return waitErr{wait: 5 * time.Second}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Do() error = %v, want nil", err)
	}
	// Бюджет ретраев нулевой, но серверная пауза его не расходует.
	if calls != 2 {
		t.Fatalf("calls = %d, want 2", calls)
	}
	if len(sleeper.waits) != 1 || sleeper.waits[0] != 5*time.Second {
		t.Fatalf("waits = %v, want [5s]", sleeper.waits)
	}
}

func TestDoServerWaitCappedByMaxWait(t *testing.T) {
	t.Parallel()

	sleeper := &fakeSleeper{}
	th := New(1, 0, time.Second, 10*time.Second,
		WithWaitExtractors(testExtractor),
		WithSleeper(sleeper.sleep),
	)

	calls := 0
	err := th.Do(context.Background(), func() error {
		calls++
		if calls == 1 {
			return waitErr{wait: time.Hour}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Do() error = %v, want nil", err)
	}
	if len(sleeper.waits) != 1 || sleeper.waits[0] != 10*time.Second {
		t.Fatalf("waits = %v, want [10s]", sleeper.waits)
	}
}

func TestDoExponentialBackoff(t *testing.T) {
	t.Parallel()

	sleeper := &fakeSleeper{}
	th := New(1, 5, 2*time.Second, time.Hour, WithSleeper(sleeper.sleep))

	transient := errors.New("transient")
	calls := 0
	err := th.Do(context.Background(), func() error {
		calls++
		if calls <= 2 {
			return transient
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Do() error = %v, want nil", err)
	}

	want := []time.Duration{2 * time.Second, 4 * time.Second}
	if len(sleeper.waits) != len(want) {
		t.Fatalf("waits = %v, want %v", sleeper.waits, want)
	}
	for i := range want {
		if sleeper.waits[i] != want[i] {
			t.Fatalf("waits[%d] = %v, want %v", i, sleeper.waits[i], want[i])
		}
	}
}

func TestDoStopRetryerReturnsImmediately(t *testing.T) {
	t.Parallel()

	sleeper := &fakeSleeper{}
	th := New(1, 5, time.Second, time.Hour, WithSleeper(sleeper.sleep))

	calls := 0
	err := th.Do(context.Background(), func() error {
		calls++
		return stopErr{}
	})

	var se stopErr
	if !errors.As(err, &se) {
		t.Fatalf("Do() error = %v, want stopErr", err)
	}
	if calls != 1 {
		t.Fatalf("calls = %d, want 1", calls)
	}
	if len(sleeper.waits) != 0 {
		t.Fatalf("waits = %v, want none", sleeper.waits)
	}
}

func TestDoMaxRetriesExhausted(t *testing.T) {
	t.Parallel()

	sleeper := &fakeSleeper{}
	th := New(1, 2, time.Second, time.Hour, WithSleeper(sleeper.sleep))

	transient := errors.New("transient")
	calls := 0
	err := th.Do(context.Background(), func() error {
		calls++
		return transient
	})
	if err == nil {
		t.Fatal("Do() error = nil, want retry exhaustion")
	}
	if !errors.Is(err, transient) {
		t.Fatalf("Do() error = %v, want wrapped transient", err)
	}
	// 1 исходный вызов + 2 ретрая.
	if calls != 3 {
		t.Fatalf("calls = %d, want 3", calls)
	}
}

func TestDoContextCanceled(t *testing.T) {
	t.Parallel()

	th := New(1, 5, time.Second, time.Hour)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := th.Do(ctx, func() error {
		t.Fatal("fn must not be called with canceled context")
		return nil
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Do() error = %v, want context.Canceled", err)
	}
}

func TestDoOnRetryCallback(t *testing.T) {
	t.Parallel()

	sleeper := &fakeSleeper{}
	var attempts []int
	th := New(1, 3, time.Second, time.Hour,
		WithSleeper(sleeper.sleep),
		WithOnRetry(func(attempt int, _ error, _ time.Duration) {
			attempts = append(attempts, attempt)
		}),
	)

	transient := errors.New("transient")
	calls := 0
	_ = th.Do(context.Background(), func() error {
		calls++
		if calls <= 2 {
			return transient
		}
		return nil
	})
	if len(attempts) != 2 || attempts[0] != 0 || attempts[1] != 1 {
		t.Fatalf("attempts = %v, want [0 1]", attempts)
	}
}
