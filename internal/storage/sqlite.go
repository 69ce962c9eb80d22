// Package storage содержит SQLite-реализацию хранилища.
package storage

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/artemshloyda/popularfeed/internal/apperr"
)

// SQLite хранит записи дедупликации и журнал доставки в одном файле.
type SQLite struct {
	db  *sql.DB
	now func() time.Time
}

// SQLitePath возвращает путь к файлу БД внутри директории хранилища.
func SQLitePath(dir string) string {
	return filepath.Join(dir, "dedup.sqlite")
}

// NewSQLite создаёт новое подключение к SQLite и выполняет миграции.
func NewSQLite(dbPath string, opts ...Option) (*SQLite, error) {
	o := buildOptions(opts)

	// Создаём директорию для БД, если не существует
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("не удалось создать директорию для БД: %w", err)
	}

	// Открываем/создаём БД с параметрами для concurrent доступа
	dsn := fmt.Sprintf("%s?_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL", dbPath)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("не удалось открыть БД: %w", err)
	}

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("не удалось подключиться к БД: %w", err)
	}

	// SQLite не поддерживает concurrent writes
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	s := &SQLite{db: db, now: o.now}

	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("не удалось выполнить миграции: %w", err)
	}

	return s, nil
}

// migrate выполняет все SQL-миграции.
func (s *SQLite) migrate() error {
	for i, m := range GetMigrations() {
		if _, err := s.db.Exec(m); err != nil {
			return fmt.Errorf("миграция %d: %w", i+1, err)
		}
	}
	return nil
}

// Close закрывает подключение к БД.
func (s *SQLite) Close() error {
	return s.db.Close()
}

// Contains проверяет наличие ключа.
func (s *SQLite) Contains(ctx context.Context, key string) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx, "SELECT 1 FROM dedup WHERE key = ?", key).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, apperr.Store("storage.sqlite.contains", err)
	}
	return true, nil
}

// Insert записывает ключ с текущим временем.
func (s *SQLite) Insert(ctx context.Context, key string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO dedup (key, inserted_at) VALUES (?, ?)
		 ON CONFLICT(key) DO UPDATE SET inserted_at = excluded.inserted_at`,
		key, s.now().Unix(),
	)
	if err != nil {
		return apperr.Store("storage.sqlite.insert", err)
	}
	return nil
}

// EvictOlderThan удаляет устаревшие записи и журнал того же возраста.
func (s *SQLite) EvictOlderThan(ctx context.Context, window time.Duration) (int64, error) {
	now := s.now().Unix()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, apperr.Store("storage.sqlite.evict", err)
	}
	defer func() { _ = tx.Rollback() }()

	var res sql.Result
	if window <= 0 {
		res, err = tx.ExecContext(ctx, "DELETE FROM dedup")
	} else {
		res, err = tx.ExecContext(ctx, "DELETE FROM dedup WHERE inserted_at < ?", cutoff(now, window))
	}
	if err != nil {
		return 0, apperr.Store("storage.sqlite.evict", err)
	}
	removed, err := res.RowsAffected()
	if err != nil {
		return 0, apperr.Store("storage.sqlite.evict", err)
	}

	if window > 0 {
		if _, err := tx.ExecContext(ctx, "DELETE FROM deliveries WHERE finished_at < ?", cutoff(now, window)); err != nil {
			return 0, apperr.Store("storage.sqlite.evict", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, apperr.Store("storage.sqlite.evict", err)
	}
	return removed, nil
}

// Count возвращает количество записей.
func (s *SQLite) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM dedup").Scan(&n); err != nil {
		return 0, apperr.Store("storage.sqlite.count", err)
	}
	return n, nil
}

// RecordDelivery добавляет запись в журнал доставки.
func (s *SQLite) RecordDelivery(ctx context.Context, d Delivery) error {
	finished := d.FinishedAt
	if finished.IsZero() {
		finished = s.now()
	}
	var errMsg *string
	if d.Error != "" {
		errMsg = &d.Error
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO deliveries (member_id, group_id, status, transformed, error, finished_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		d.MemberID, d.GroupID, d.Status, d.Transformed, errMsg, finished.Unix(),
	)
	if err != nil {
		return apperr.Store("storage.sqlite.record_delivery", err)
	}
	return nil
}

// DeliveryStats возвращает сводку журнала.
func (s *SQLite) DeliveryStats(ctx context.Context) (DeliveryStats, error) {
	var st DeliveryStats
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*),
		        COALESCE(SUM(CASE WHEN status = ? THEN 1 ELSE 0 END), 0),
		        COALESCE(SUM(CASE WHEN status = ? THEN 1 ELSE 0 END), 0)
		 FROM deliveries`,
		StatusOK, StatusFailed,
	).Scan(&st.Total, &st.OK, &st.Failed)
	if err != nil {
		return st, apperr.Store("storage.sqlite.delivery_stats", err)
	}
	return st, nil
}
