package storage

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"time"

	badgerdb "github.com/dgraph-io/badger/v3"
	"go.uber.org/zap"

	"github.com/artemshloyda/popularfeed/internal/apperr"
)

// keyPrefix отделяет записи дедупликации от прочих ключей.
var keyPrefix = []byte("dedup/")

// Badger хранит записи во встроенной BadgerDB.
// Значение - время вставки, big-endian uint64.
type Badger struct {
	db       *badgerdb.DB
	now      func() time.Time
	inMemory bool
}

// NewBadger открывает BadgerDB в dir. Пустой dir открывает базу в памяти.
func NewBadger(dir string, logger *zap.Logger, opts ...Option) (*Badger, error) {
	o := buildOptions(opts)
	if logger == nil {
		logger = zap.NewNop()
	}

	var bopts badgerdb.Options
	if dir == "" {
		bopts = badgerdb.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(dir, 0700); err != nil {
			return nil, fmt.Errorf("не удалось создать директорию BadgerDB: %w", err)
		}
		bopts = badgerdb.DefaultOptions(dir)
	}

	// Записей немного, большие кэши не нужны
	bopts.BlockCacheSize = 8 << 20
	bopts.IndexCacheSize = 8 << 20
	bopts.NumMemtables = 2
	bopts.ValueLogFileSize = 64 << 20
	bopts.Logger = &badgerLogger{l: logger.Sugar()}

	db, err := badgerdb.Open(bopts)
	if err != nil {
		return nil, fmt.Errorf("не удалось открыть BadgerDB: %w", err)
	}
	return &Badger{db: db, now: o.now, inMemory: dir == ""}, nil
}

func dedupKey(key string) []byte {
	return append(append([]byte{}, keyPrefix...), key...)
}

// Contains проверяет наличие ключа.
func (b *Badger) Contains(_ context.Context, key string) (bool, error) {
	err := b.db.View(func(txn *badgerdb.Txn) error {
		_, err := txn.Get(dedupKey(key))
		return err
	})
	if errors.Is(err, badgerdb.ErrKeyNotFound) {
		return false, nil
	}
	if err != nil {
		return false, apperr.Store("storage.badger.contains", err)
	}
	return true, nil
}

// Insert записывает ключ с текущим временем.
func (b *Badger) Insert(_ context.Context, key string) error {
	var ts [8]byte
	binary.BigEndian.PutUint64(ts[:], uint64(b.now().Unix()))

	err := b.db.Update(func(txn *badgerdb.Txn) error {
		return txn.Set(dedupKey(key), ts[:])
	})
	if err != nil {
		return apperr.Store("storage.badger.insert", err)
	}
	return nil
}

// EvictOlderThan проходит по всем записям один раз и удаляет устаревшие.
func (b *Badger) EvictOlderThan(ctx context.Context, window time.Duration) (int64, error) {
	now := b.now().Unix()

	var stale [][]byte
	err := b.db.View(func(txn *badgerdb.Txn) error {
		it := txn.NewIterator(badgerdb.IteratorOptions{Prefix: keyPrefix, PrefetchValues: true, PrefetchSize: 100})
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			item := it.Item()
			var insertedAt int64
			err := item.Value(func(v []byte) error {
				if len(v) != 8 {
					return fmt.Errorf("некорректное значение ключа %q: %d байт", item.Key(), len(v))
				}
				insertedAt = int64(binary.BigEndian.Uint64(v))
				return nil
			})
			if err != nil {
				return err
			}
			if expired(insertedAt, now, window) {
				stale = append(stale, item.KeyCopy(nil))
			}
		}
		return nil
	})
	if err != nil {
		return 0, apperr.Store("storage.badger.evict", err)
	}

	if len(stale) == 0 {
		return 0, nil
	}

	wb := b.db.NewWriteBatch()
	defer wb.Cancel()
	for _, k := range stale {
		if err := wb.Delete(k); err != nil {
			return 0, apperr.Store("storage.badger.evict", err)
		}
	}
	if err := wb.Flush(); err != nil {
		return 0, apperr.Store("storage.badger.evict", err)
	}
	if !b.inMemory {
		if err := b.db.Sync(); err != nil {
			return 0, apperr.Store("storage.badger.evict", err)
		}
	}
	return int64(len(stale)), nil
}

// Count возвращает количество записей.
func (b *Badger) Count(_ context.Context) (int64, error) {
	var n int64
	err := b.db.View(func(txn *badgerdb.Txn) error {
		it := txn.NewIterator(badgerdb.IteratorOptions{Prefix: keyPrefix})
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			n++
		}
		return nil
	})
	if err != nil {
		return 0, apperr.Store("storage.badger.count", err)
	}
	return n, nil
}

// Close закрывает базу.
func (b *Badger) Close() error {
	return b.db.Close()
}

// badgerLogger направляет логи BadgerDB в zap.
type badgerLogger struct {
	l *zap.SugaredLogger
}

func (b *badgerLogger) Errorf(f string, v ...interface{})   { b.l.Errorf(f, v...) }
func (b *badgerLogger) Warningf(f string, v ...interface{}) { b.l.Warnf(f, v...) }
func (b *badgerLogger) Infof(f string, v ...interface{})    { b.l.Debugf(f, v...) }
func (b *badgerLogger) Debugf(f string, v ...interface{})   { b.l.Debugf(f, v...) }
