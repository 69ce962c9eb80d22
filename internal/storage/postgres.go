package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/artemshloyda/popularfeed/internal/apperr"
)

const postgresSchema = `CREATE TABLE IF NOT EXISTS popularfeed_dedup (
	key TEXT PRIMARY KEY,
	inserted_at BIGINT NOT NULL
);
CREATE INDEX IF NOT EXISTS ix_popularfeed_dedup_inserted_at ON popularfeed_dedup (inserted_at);`

// Postgres хранит записи в таблице popularfeed_dedup.
type Postgres struct {
	pool *pgxpool.Pool
	now  func() time.Time
}

// NewPostgres открывает пул соединений и создаёт таблицу.
func NewPostgres(ctx context.Context, dsn string, opts ...Option) (*Postgres, error) {
	o := buildOptions(opts)

	pc, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("некорректный DSN PostgreSQL: %w", err)
	}
	pc.MaxConns = 4
	pc.ConnConfig.RuntimeParams["application_name"] = "popularfeed"

	dialCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	pool, err := pgxpool.NewWithConfig(dialCtx, pc)
	if err != nil {
		return nil, fmt.Errorf("не удалось подключиться к PostgreSQL: %w", err)
	}
	if err := pool.Ping(dialCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("не удалось подключиться к PostgreSQL: %w", err)
	}
	if _, err := pool.Exec(dialCtx, postgresSchema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("не удалось создать таблицу: %w", err)
	}

	return &Postgres{pool: pool, now: o.now}, nil
}

// Contains проверяет наличие ключа.
func (p *Postgres) Contains(ctx context.Context, key string) (bool, error) {
	var one int
	err := p.pool.QueryRow(ctx, "SELECT 1 FROM popularfeed_dedup WHERE key = $1", key).Scan(&one)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, apperr.Store("storage.postgres.contains", err)
	}
	return true, nil
}

// Insert записывает ключ с текущим временем.
func (p *Postgres) Insert(ctx context.Context, key string) error {
	_, err := p.pool.Exec(ctx,
		`INSERT INTO popularfeed_dedup (key, inserted_at) VALUES ($1, $2)
		 ON CONFLICT (key) DO UPDATE SET inserted_at = EXCLUDED.inserted_at`,
		key, p.now().Unix(),
	)
	if err != nil {
		return apperr.Store("storage.postgres.insert", err)
	}
	return nil
}

// EvictOlderThan удаляет устаревшие записи одним запросом.
func (p *Postgres) EvictOlderThan(ctx context.Context, window time.Duration) (int64, error) {
	var (
		tag pgconn.CommandTag
		err error
	)
	if window <= 0 {
		tag, err = p.pool.Exec(ctx, "DELETE FROM popularfeed_dedup")
	} else {
		tag, err = p.pool.Exec(ctx, "DELETE FROM popularfeed_dedup WHERE inserted_at < $1",
			cutoff(p.now().Unix(), window))
	}
	if err != nil {
		return 0, apperr.Store("storage.postgres.evict", err)
	}
	return tag.RowsAffected(), nil
}

// Count возвращает количество записей.
func (p *Postgres) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := p.pool.QueryRow(ctx, "SELECT COUNT(*) FROM popularfeed_dedup").Scan(&n); err != nil {
		return 0, apperr.Store("storage.postgres.count", err)
	}
	return n, nil
}

// Close закрывает пул.
func (p *Postgres) Close() error {
	p.pool.Close()
	return nil
}
