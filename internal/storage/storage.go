// Package storage содержит хранилище записей дедупликации.
//
// Запись - ключ (строковый id поста) и время вставки в секундах unix.
// Запись удаляется только очисткой по возрасту: now - T > window.
package storage

import (
	"context"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/artemshloyda/popularfeed/internal/config"
)

// DedupStore - постоянное отображение ключ -> время вставки.
// Все методы безопасны для конкурентного вызова.
type DedupStore interface {
	// Contains проверяет наличие ключа.
	Contains(ctx context.Context, key string) (bool, error)

	// Insert записывает ключ с текущим временем. Повторная вставка сбрасывает возраст.
	Insert(ctx context.Context, key string) error

	// EvictOlderThan удаляет записи старше window и возвращает их количество.
	// window <= 0 удаляет все записи.
	EvictOlderThan(ctx context.Context, window time.Duration) (int64, error)

	// Count возвращает количество записей.
	Count(ctx context.Context) (int64, error)

	// Close освобождает ресурсы.
	Close() error
}

// Option настраивает хранилище.
type Option func(*options)

type options struct {
	now func() time.Time
}

// WithClock подменяет источник текущего времени.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		o.now = now
	}
}

func buildOptions(opts []Option) options {
	o := options{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// expired реализует правило очистки для бэкендов, сравнивающих записи в Go.
func expired(insertedAt, now int64, window time.Duration) bool {
	if window <= 0 {
		return true
	}
	return time.Duration(now-insertedAt)*time.Second > window
}

// cutoff возвращает границу для SQL-бэкендов: удаляются записи с inserted_at < cutoff.
func cutoff(now int64, window time.Duration) float64 {
	return float64(now) - window.Seconds()
}

// Open открывает хранилище, выбранное в конфигурации.
func Open(ctx context.Context, cfg *config.Config, logger *zap.Logger, opts ...Option) (DedupStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	switch cfg.StoreBackend {
	case config.BackendSQLite, "":
		if err := os.MkdirAll(cfg.DBDir(), 0755); err != nil {
			return nil, fmt.Errorf("не удалось создать директорию для БД: %w", err)
		}
		return NewSQLite(SQLitePath(cfg.DBDir()), opts...)
	case config.BackendBadger:
		return NewBadger(cfg.DBDir(), logger, opts...)
	case config.BackendRedis:
		return NewRedis(ctx, cfg.RedisURL, opts...)
	case config.BackendPostgres:
		return NewPostgres(ctx, cfg.PostgresDSN, opts...)
	default:
		return nil, fmt.Errorf("неизвестное хранилище: %s", cfg.StoreBackend)
	}
}
