// Package worker содержит пул обработки групп изображений.
package worker

import (
	"context"

	"golang.org/x/sync/semaphore"
)

// MemoryLimiter ограничивает суммарную память одновременных перекодирований.
type MemoryLimiter struct {
	// sem - семафор, вес которого измеряется в байтах.
	sem *semaphore.Weighted

	// maxMemoryBytes - максимальное использование памяти в байтах.
	maxMemoryBytes int64
}

// NewMemoryLimiter создаёт новый MemoryLimiter.
// maxMemoryMB - ограничение в мегабайтах (0 = без ограничения).
func NewMemoryLimiter(maxMemoryMB int) *MemoryLimiter {
	if maxMemoryMB <= 0 {
		return &MemoryLimiter{}
	}
	limit := int64(maxMemoryMB) * 1024 * 1024
	return &MemoryLimiter{
		sem:            semaphore.NewWeighted(limit),
		maxMemoryBytes: limit,
	}
}

// Acquire резервирует estimated байт и блокируется, пока их не станет достаточно.
// Оценка больше лимита урезается до лимита: такой файл обрабатывается в одиночку.
// Возвращает функцию для освобождения памяти.
func (ml *MemoryLimiter) Acquire(ctx context.Context, estimated int64) (release func(), err error) {
	if ml.sem == nil || estimated <= 0 {
		return func() {}, nil
	}
	if estimated > ml.maxMemoryBytes {
		estimated = ml.maxMemoryBytes
	}
	if err := ml.sem.Acquire(ctx, estimated); err != nil {
		return nil, err
	}
	return func() { ml.sem.Release(estimated) }, nil
}

// IsEnabled возвращает true если ограничение включено.
func (ml *MemoryLimiter) IsEnabled() bool {
	return ml.sem != nil
}

// MaxMemory возвращает максимальное ограничение памяти.
func (ml *MemoryLimiter) MaxMemory() int64 {
	return ml.maxMemoryBytes
}
