// Файл batch.go — нарезка пакетных операций на чанки с паузой между ними.
// Пауза размазывает нагрузку на API: массовые удаления без неё быстро приводят
// к FLOOD_WAIT даже под клиентским ограничителем скорости.

package accounts

import (
	"context"
	"time"
)

// Chunks нарезает items на куски размером не более size. Последний кусок может
// быть короче. size <= 0 трактуется как «всё одним куском».
func Chunks[T any](items []T, size int) [][]T {
	if size <= 0 || len(items) <= size {
		if len(items) == 0 {
			return nil
		}
		return [][]T{items}
	}
	out := make([][]T, 0, (len(items)+size-1)/size)
	for start := 0; start < len(items); start += size {
		end := start + size
		if end > len(items) {
			end = len(items)
		}
		out = append(out, items[start:end])
	}
	return out
}

// eachChunk прогоняет fn по чанкам items, выдерживая паузу delay между чанками
// (но не после последнего). Отмена контекста прерывает обход.
func eachChunk[T any](ctx context.Context, items []T, size int, delay time.Duration,
	fn func(chunk []T) error) error {
	chunks := Chunks(items, size)
	for i, chunk := range chunks {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := fn(chunk); err != nil {
			return err
		}
		if delay > 0 && i < len(chunks)-1 {
			timer := time.NewTimer(delay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return ctx.Err()
			case <-timer.C:
			}
		}
	}
	return nil
}
