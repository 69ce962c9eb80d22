package cli

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/artemshloyda/popularfeed/internal/config"
	"github.com/artemshloyda/popularfeed/internal/progress"
	"github.com/artemshloyda/popularfeed/internal/storage"
)

// newOnceCmd создаёт команду once.
func newOnceCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "once",
		Short: "Выполнить один цикл и выйти",
		RunE:  runOnce,
	}
}

// runOnce выполняет один цикл с прогресс-баром.
func runOnce(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("ошибка конфигурации: %w", err)
	}

	logger, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	ctx, cancel := signalContext()
	defer cancel()

	a, err := buildApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	bar := progress.New(progress.Options{
		Description: "Доставка",
		Disabled:    cfg.NoProgress,
	})
	a.pool.SetProgressBar(bar)

	report, err := a.scheduler.RunCycle(ctx)
	bar.Finish()
	if err != nil {
		return err
	}

	stats := a.pool.GetStats()
	fmt.Println()
	fmt.Printf("📊 Результаты цикла %s:\n", report.ID)
	fmt.Printf("   Кандидатов: %d\n", report.Candidates)
	fmt.Printf("   Уже доставлены: %d\n", report.AlreadySeen+report.Duplicates)
	fmt.Printf("   Ниже порога: %d\n", report.BelowThreshold)
	fmt.Printf("   Ошибок разрешения: %d\n", report.ResolveFailed)
	fmt.Printf("   Отправлено групп: %d\n", report.Dispatched)
	fmt.Printf("   Доставлено файлов: %d (ошибок: %d, без перекодирования: %d)\n",
		stats.Delivered, stats.Failed, stats.Fallbacks)
	if stats.InputBytes > 0 {
		fmt.Printf("   Загружено: %s, отправлено: %s\n",
			humanize.Bytes(uint64(stats.InputBytes)), humanize.Bytes(uint64(stats.OutputBytes)))
	}
	fmt.Printf("   Удалено старых записей: %d\n", report.Evicted)
	fmt.Printf("   Время: %s\n", report.Duration.Round(time.Millisecond))

	if stats.Failed > 0 {
		return fmt.Errorf("завершено с %d ошибками доставки", stats.Failed)
	}
	return nil
}

// openStore открывает только хранилище, без остального конвейера.
func openStore(cmd *cobra.Command) (storage.DedupStore, *config.Config, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, nil, err
	}
	logger, err := newLogger(cfg)
	if err != nil {
		return nil, nil, err
	}
	store, err := storage.Open(cmd.Context(), cfg, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("не удалось открыть хранилище: %w", err)
	}
	return store, cfg, nil
}

// newStatsCmd создаёт команду stats.
func newStatsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Показать статистику хранилища и журнала доставки",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, cfg, err := openStore(cmd)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			ctx := cmd.Context()
			count, err := store.Count(ctx)
			if err != nil {
				return fmt.Errorf("не удалось получить статистику: %w", err)
			}
			deliveries, err := storage.JournalOf(store).DeliveryStats(ctx)
			if err != nil {
				return fmt.Errorf("не удалось получить журнал доставки: %w", err)
			}

			fmt.Printf("📊 Статистика (%s):\n\n", cfg.StoreBackend)
			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintf(w, "Записей дедупликации\t%d\n", count)
			fmt.Fprintf(w, "Срок хранения\t%s\n", cfg.Retention)
			fmt.Fprintf(w, "Доставок в журнале\t%d\n", deliveries.Total)
			fmt.Fprintf(w, "Успешно\t%d\n", deliveries.OK)
			fmt.Fprintf(w, "Ошибок\t%d\n", deliveries.Failed)
			return w.Flush()
		},
	}
}

// newEvictCmd создаёт команду evict.
func newEvictCmd() *cobra.Command {
	var window time.Duration

	cmd := &cobra.Command{
		Use:   "evict",
		Short: "Удалить записи дедупликации старше срока хранения",
		Long: `Удаляет записи дедупликации старше --window (по умолчанию срок хранения).
--window 0 удаляет все записи: все посты станут снова доступны для доставки.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, cfg, err := openStore(cmd)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			if !cmd.Flags().Changed("window") {
				window = cfg.Retention
			}
			removed, err := store.EvictOlderThan(context.WithoutCancel(cmd.Context()), window)
			if err != nil {
				return fmt.Errorf("очистка не удалась: %w", err)
			}
			fmt.Printf("🧹 Удалено записей: %d (старше %s)\n", removed, window)
			return nil
		},
	}

	cmd.Flags().DurationVar(&window, "window", config.DefaultRetention, "Возраст записей для удаления")
	return cmd
}
