package throttle

// Package throttle — общий механизм ограничения конкурентности и повторных попыток
// для вызовов внешнего сервиса. В основе — ограниченный семафор (permits) и
// экспоненциальный backoff base×2^attempt с верхней границей. Серверные указания
// подождать (FLOOD_WAIT и т.п.) извлекаются через настраиваемые WaitExtractor и
// соблюдаются ровно, без джиттера: такие паузы не расходуют бюджет ретраев, но
// ограничены сверху maxWait. Интерфейс StopRetryer позволяет немедленно прекращать
// ретраи (например, для терминальных ошибок авторизации).
// Троттлер потокобезопасен: Do может вызываться параллельно из многих горутин.

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// WaitExtractor анализирует ошибку и, при необходимости, возвращает длительность
// ожидания, предписанную сервером. Булев флаг показывает, что экстрактор распознал
// формат ошибки. Экстракторы вызываются в порядке регистрации, первый совпавший
// определяет паузу.
type WaitExtractor func(err error) (time.Duration, bool)

// StopRetryer объявляет необходимость немедленно прекратить повторные попытки.
// Любая ошибка, реализующая этот интерфейс, возвращается вызывающему коду без задержек.
type StopRetryer interface {
	StopRetry() bool
}

// Sleeper приостанавливает вызывающего на d с уважением к контексту.
// Подменяется в тестах для детерминированного измерения пауз.
type Sleeper func(ctx context.Context, d time.Duration) error

// OnRetryFunc уведомляет о предстоящей повторной попытке: номер попытки,
// вызвавшая её ошибка и выбранная пауза. Используется для логирования и
// переключения видимого состояния клиента в Retrying.
type OnRetryFunc func(attempt int, err error, wait time.Duration)

// Option задаёт дополнительные параметры троттлера при создании.
type Option func(*Throttler)

// WithWaitExtractors регистрирует набор экстракторов серверных задержек.
func WithWaitExtractors(extractors ...WaitExtractor) Option {
	return func(t *Throttler) {
		if len(extractors) == 0 {
			return
		}
		cloned := make([]WaitExtractor, len(extractors))
		copy(cloned, extractors)
		t.waitExtractors = append(t.waitExtractors, cloned...)
	}
}

// WithSleeper подменяет функцию ожидания. Используется в тестах.
func WithSleeper(s Sleeper) Option {
	return func(t *Throttler) {
		if s != nil {
			t.sleep = s
		}
	}
}

// WithOnRetry регистрирует колбэк, вызываемый перед каждой паузой-ретраем.
func WithOnRetry(fn OnRetryFunc) Option {
	return func(t *Throttler) {
		t.onRetry = fn
	}
}

// Throttler инкапсулирует семафор конкурентности и стратегию повторных попыток.
// Один permit удерживается на весь вызов Do, включая паузы между ретраями:
// «занятая» сессия не освобождает слот, пока её вызов не завершится.
type Throttler struct {
	sem chan struct{} // ограниченный семафор; ёмкость = граница конкурентности

	maxRetries int           // бюджет повторов для транзиентных ошибок
	baseDelay  time.Duration // базовая пауза экспоненциального backoff
	maxWait    time.Duration // потолок любой паузы (и backoff, и серверной)

	waitExtractors []WaitExtractor
	sleep          Sleeper
	onRetry        OnRetryFunc
}

// New создаёт троттлер с ограничением конкурентности concurrency, бюджетом
// maxRetries и базовой паузой baseDelay. maxWait ограничивает сверху и
// экспоненциальный backoff, и серверные паузы.
func New(concurrency, maxRetries int, baseDelay, maxWait time.Duration, opts ...Option) *Throttler {
	if concurrency <= 0 {
		concurrency = 1
	}
	if maxRetries < 0 {
		maxRetries = 0
	}
	if baseDelay <= 0 {
		baseDelay = time.Second
	}
	if maxWait <= 0 {
		maxWait = time.Hour
	}

	t := &Throttler{
		sem:        make(chan struct{}, concurrency),
		maxRetries: maxRetries,
		baseDelay:  baseDelay,
		maxWait:    maxWait,
		sleep:      sleepCtx,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Do выполняет функцию fn под permit'ом семафора и с политикой ретраев.
// Алгоритм:
//  1. берём permit (с уважением к ctx);
//  2. вызываем fn;
//  3. если err: StopRetryer → вернуть сразу; контекст сорван → вернуть;
//     extractor дал серверную паузу → подождать min(пауза, maxWait) и повторить,
//     не расходуя бюджет; иначе backoff base×2^attempt (cap maxWait) до maxRetries.
//
// Возвращает nil при успехе либо последнюю ошибку при исчерпании стратегии.
func (t *Throttler) Do(ctx context.Context, fn func() error) error {
	if ctx == nil {
		ctx = context.Background()
	}

	select {
	case t.sem <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}
	defer func() { <-t.sem }()

	attempt := 0
	for {
		callErr := fn()
		if callErr == nil {
			return nil
		}

		var stopper StopRetryer
		waitDur, hasWait := t.extractWait(callErr)

		switch {
		case errors.As(callErr, &stopper) && stopper.StopRetry():
			// Терминальная ошибка: отдаём без ретраев.
			return callErr

		case errors.Is(callErr, context.Canceled) || errors.Is(callErr, context.DeadlineExceeded):
			return callErr

		case hasWait:
			// Сервер велел подождать. Пауза соблюдается ровно (без джиттера),
			// ограничена maxWait и не расходует бюджет ретраев.
			if waitDur > t.maxWait {
				waitDur = t.maxWait
			}
			if t.onRetry != nil {
				t.onRetry(attempt, callErr, waitDur)
			}
			if wErr := t.sleep(ctx, waitDur); wErr != nil {
				return wErr
			}
			continue
		}

		if attempt >= t.maxRetries {
			return fmt.Errorf("throttle: max retries reached (%d): last error: %w", t.maxRetries, callErr)
		}

		sleep := t.expBackoff(attempt)
		if t.onRetry != nil {
			t.onRetry(attempt, callErr, sleep)
		}
		attempt++
		if wErr := t.sleep(ctx, sleep); wErr != nil {
			return wErr
		}
	}
}

// extractWait запускает WaitExtractor по цепочке и возвращает первую распознанную паузу.
func (t *Throttler) extractWait(err error) (time.Duration, bool) {
	for _, extractor := range t.waitExtractors {
		if extractor == nil {
			continue
		}
		if wait, ok := extractor(err); ok {
			return wait, true
		}
	}
	return 0, false
}

// expBackoff вычисляет паузу baseDelay×2^attempt, ограниченную maxWait.
// Джиттер не применяется: паузы должны быть воспроизводимы.
func (t *Throttler) expBackoff(attempt int) time.Duration {
	const maxShift = 30 // защита от переполнения сдвига
	if attempt > maxShift {
		attempt = maxShift
	}
	d := t.baseDelay << uint(attempt)
	if d > t.maxWait || d <= 0 {
		d = t.maxWait
	}
	return d
}

// sleepCtx ждёт duration или отмену контекста.
func sleepCtx(ctx context.Context, duration time.Duration) error {
	if duration <= 0 {
		return nil
	}

	timer := time.NewTimer(duration)
	defer stopTimer(timer)

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// stopTimer безопасно останавливает таймер и дренирует его канал, если тик уже произошёл.
func stopTimer(timer *time.Timer) {
	if timer == nil {
		return
	}
	if !timer.Stop() {
		select {
		case <-timer.C:
		default:
		}
	}
}
