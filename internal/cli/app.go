package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/artemshloyda/popularfeed/internal/admin"
	"github.com/artemshloyda/popularfeed/internal/config"
	"github.com/artemshloyda/popularfeed/internal/converter"
	"github.com/artemshloyda/popularfeed/internal/forwarder"
	"github.com/artemshloyda/popularfeed/internal/metrics"
	"github.com/artemshloyda/popularfeed/internal/scheduler"
	"github.com/artemshloyda/popularfeed/internal/source"
	"github.com/artemshloyda/popularfeed/internal/storage"
	"github.com/artemshloyda/popularfeed/internal/worker"
)

// app - собранный конвейер. Все компоненты создаются один раз в buildApp
// и передаются зависимым явно.
type app struct {
	cfg       *config.Config
	logger    *zap.Logger
	store     storage.DedupStore
	journal   storage.Journal
	metrics   *metrics.Metrics
	pool      *worker.Pool
	scheduler *scheduler.Scheduler
	admin     *admin.Server
}

// buildApp создаёт директории и все компоненты конвейера.
// Конфигурация должна быть уже проверена.
func buildApp(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*app, error) {
	tmpDir := cfg.TmpDir()
	if err := os.MkdirAll(tmpDir, 0755); err != nil {
		return nil, fmt.Errorf("не удалось создать временную директорию: %w", err)
	}
	if n, err := cleanTmp(tmpDir); err != nil {
		logger.Warn("не удалось очистить временную директорию", zap.Error(err))
	} else if n > 0 {
		logger.Info("удалены файлы прерванной обработки", zap.Int("files", n))
	}

	store, err := storage.Open(ctx, cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("не удалось открыть хранилище: %w", err)
	}

	a := &app{
		cfg:     cfg,
		logger:  logger,
		store:   store,
		journal: storage.JournalOf(store),
		metrics: metrics.New(),
	}

	client, err := source.NewClient(cfg, logger)
	if err != nil {
		a.Close()
		return nil, err
	}

	transcoder, err := converter.New(ctx, cfg, logger)
	if err != nil {
		a.Close()
		return nil, err
	}

	fwd, err := forwarder.New(cfg, logger)
	if err != nil {
		a.Close()
		return nil, err
	}

	a.pool = worker.New(worker.Options{
		Workers:     cfg.Workers,
		MaxMemoryMB: cfg.MaxMemoryMB,
		PostURL:     func(id int64) string { return client.URL(source.PostPath(id)) },
	},
		converter.NewDownloader(client, tmpDir, logger),
		transcoder,
		fwd,
		a.journal,
		a.metrics,
		logger)

	a.scheduler = scheduler.New(scheduler.Options{
		Listings:       cfg.Listings(),
		ScoreThreshold: cfg.ScoreThreshold,
		Retention:      cfg.Retention,
		PollInterval:   cfg.PollInterval,
	}, client, source.NewResolver(client, logger), store, a.pool, a.metrics, logger)

	if cfg.MetricsAddr != "" {
		a.admin = admin.New(cfg.MetricsAddr, admin.Deps{
			Metrics: a.metrics,
			Status:  a.scheduler,
			Store:   store,
			Journal: a.journal,
			Workers: a.pool.GetStats,
		}, logger)
	}

	logger.Info("конвейер собран",
		zap.String("transcoder", transcoder.Name()),
		zap.String("store", string(cfg.StoreBackend)),
		zap.String("forwarder", string(cfg.Forwarder)))
	return a, nil
}

// Close закрывает хранилище.
func (a *app) Close() {
	if err := a.store.Close(); err != nil {
		a.logger.Warn("не удалось закрыть хранилище", zap.Error(err))
	}
}

// cleanTmp удаляет файлы, оставшиеся от прерванной обработки.
func cleanTmp(dir string) (int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0, err
	}
	removed := 0
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if err := os.Remove(filepath.Join(dir, e.Name())); err != nil {
			return removed, err
		}
		removed++
	}
	return removed, nil
}
