// Package cli содержит CLI интерфейс приложения.
package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/artemshloyda/popularfeed/internal/config"
	"github.com/artemshloyda/popularfeed/internal/logging"
)

var (
	// Version будет установлена при сборке.
	Version = "dev"

	// BuildTime будет установлена при сборке.
	BuildTime = "unknown"
)

// flagCfg принимает значения флагов; в итоговую конфигурацию
// переносятся только явно указанные флаги.
var flagCfg = config.DefaultConfig()

// configPath - явный путь к файлу конфигурации.
var configPath string

// preset - набор листингов.
var preset string

// NewRootCmd создаёт корневую команду CLI.
func NewRootCmd() *cobra.Command {
	flagCfg = config.DefaultConfig()
	configPath, preset = "", ""

	rootCmd := &cobra.Command{
		Use:   "popularfeed",
		Short: "Пересылка популярных изображений в чат",
		Long: `popularfeed периодически опрашивает листинги популярных постов,
собирает группы связанных изображений, уменьшает их и пересылает в канал чата.

Доставленные посты запоминаются в хранилище дедупликации и не отправляются
повторно до истечения срока хранения.

Примеры:
  # Запуск демона с настройками из окружения
  CHANNEL_ID=2 API_KEY=secret SERVER_DOMAIN=https://chat.example.com popularfeed

  # Один цикл без отправки, только лог
  popularfeed once --forwarder log

  # Статистика хранилища
  popularfeed stats

  # Пример файла конфигурации
  popularfeed config init`,
		SilenceUsage: true,
		RunE:         runDaemon,
	}

	flags := rootCmd.PersistentFlags()

	flags.StringVarP(&configPath, "config", "c", "", "Путь к файлу конфигурации YAML")
	flags.StringVar(&preset, "preset", "", "Набор листингов: recent, daily, weekly, all")

	// Источник
	flags.StringVar(&flagCfg.SourceBaseURL, "source", flagCfg.SourceBaseURL, "Базовый URL сайта-источника")
	flags.StringVar(&flagCfg.PrimaryListing, "listing", flagCfg.PrimaryListing, "Основной листинг")
	flags.StringSliceVar(&flagCfg.AuxListings, "aux-listing", flagCfg.AuxListings, "Дополнительные листинги через запятую")
	flags.Float64Var(&flagCfg.RequestRPS, "rps", flagCfg.RequestRPS, "Запросов к источнику в секунду (0 = без ограничения)")

	// Получатель
	forwarder := flags.String("forwarder", string(flagCfg.Forwarder), "Получатель: vocechat или log")
	flags.StringVar(&flagCfg.ChannelID, "channel-id", "", "Идентификатор канала")
	flags.StringVar(&flagCfg.APIKey, "api-key", "", "Ключ API бота")
	flags.StringVar(&flagCfg.ServerDomain, "server-domain", "", "Адрес сервера VoceChat")

	// Обработка
	flags.StringVar(&flagCfg.DataDir, "data-dir", flagCfg.DataDir, "Директория данных")
	flags.IntVar(&flagCfg.Workers, "workers", flagCfg.Workers, "Количество одновременно обрабатываемых групп")
	flags.DurationVar(&flagCfg.PollInterval, "interval", flagCfg.PollInterval, "Период опроса")
	flags.DurationVar(&flagCfg.Retention, "retention", flagCfg.Retention, "Срок хранения записей дедупликации")
	flags.Int64Var(&flagCfg.ScoreThreshold, "threshold", flagCfg.ScoreThreshold, "Минимальный рейтинг группы")
	flags.IntVar(&flagCfg.MaxDimension, "max-dimension", flagCfg.MaxDimension, "Максимальная длина стороны в пикселях")
	flags.IntVar(&flagCfg.Quality, "quality", flagCfg.Quality, "Качество сжатия (1-100)")
	transcoder := flags.String("transcoder", string(flagCfg.Transcoder), "Перекодировщик: auto, native, vips")
	flags.StringVar(&flagCfg.VipsPath, "vips-path", "", "Путь к бинарнику vips")
	flags.IntVar(&flagCfg.MaxMemoryMB, "max-memory", 0, "Ограничение памяти на перекодирование в МБ (0 = без ограничения)")

	// Хранилище
	store := flags.String("store", string(flagCfg.StoreBackend), "Хранилище: sqlite, badger, redis, postgres")
	flags.StringVar(&flagCfg.RedisURL, "redis-url", "", "URL Redis")
	flags.StringVar(&flagCfg.PostgresDSN, "pg-dsn", "", "DSN PostgreSQL")

	// Вывод
	flags.StringVar(&flagCfg.LogLevel, "log-level", flagCfg.LogLevel, "Уровень логов: debug, info, warn, error")
	flags.StringVar(&flagCfg.LogFormat, "log-format", flagCfg.LogFormat, "Формат логов: console, json")
	flags.StringVar(&flagCfg.LogFile, "log-file", "", "Файл логов с ротацией")
	flags.StringVar(&flagCfg.MetricsAddr, "metrics-addr", "", "Адрес /metrics, /healthz, /stats")
	flags.BoolVar(&flagCfg.NoProgress, "no-progress", false, "Отключить прогресс-бар")

	// Парсинг enum-флагов
	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		flagCfg.Forwarder = config.ForwarderKind(*forwarder)
		flagCfg.Transcoder = config.TranscoderKind(*transcoder)
		flagCfg.StoreBackend = config.StoreBackend(*store)
		return nil
	}

	// Подкоманды
	rootCmd.AddCommand(newOnceCmd())
	rootCmd.AddCommand(newStatsCmd())
	rootCmd.AddCommand(newEvictCmd())
	rootCmd.AddCommand(newConfigCmd())
	rootCmd.AddCommand(newVersionCmd())

	return rootCmd
}

// loadConfig собирает конфигурацию: умолчания, файл, окружение, флаги.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg := config.DefaultConfig()

	fc, path, err := config.FindAndLoadConfig(configPath)
	if err != nil {
		return nil, err
	}
	if err := fc.ApplyToConfig(cfg); err != nil {
		return nil, err
	}
	if err := cfg.ApplyEnv(); err != nil {
		return nil, err
	}
	if preset != "" && !cfg.ApplyPreset(preset) {
		return nil, fmt.Errorf("неизвестный пресет: %s (доступны: %v)", preset, config.ValidPresets())
	}
	applyFlags(cmd, cfg)

	if path != "" {
		fmt.Fprintf(os.Stderr, "📄 Конфигурация: %s\n", path)
	}
	return cfg, nil
}

// applyFlags переносит явно указанные флаги в cfg.
func applyFlags(cmd *cobra.Command, cfg *config.Config) {
	set := map[string]func(){
		"source":        func() { cfg.SourceBaseURL = flagCfg.SourceBaseURL },
		"listing":       func() { cfg.PrimaryListing = flagCfg.PrimaryListing },
		"aux-listing":   func() { cfg.AuxListings = flagCfg.AuxListings },
		"rps":           func() { cfg.RequestRPS = flagCfg.RequestRPS },
		"forwarder":     func() { cfg.Forwarder = flagCfg.Forwarder },
		"channel-id":    func() { cfg.ChannelID = flagCfg.ChannelID },
		"api-key":       func() { cfg.APIKey = flagCfg.APIKey },
		"server-domain": func() { cfg.ServerDomain = flagCfg.ServerDomain },
		"data-dir":      func() { cfg.DataDir = flagCfg.DataDir },
		"workers":       func() { cfg.Workers = flagCfg.Workers },
		"interval":      func() { cfg.PollInterval = flagCfg.PollInterval },
		"retention":     func() { cfg.Retention = flagCfg.Retention },
		"threshold":     func() { cfg.ScoreThreshold = flagCfg.ScoreThreshold },
		"max-dimension": func() { cfg.MaxDimension = flagCfg.MaxDimension },
		"quality":       func() { cfg.Quality = flagCfg.Quality },
		"transcoder":    func() { cfg.Transcoder = flagCfg.Transcoder },
		"vips-path":     func() { cfg.VipsPath = flagCfg.VipsPath },
		"max-memory":    func() { cfg.MaxMemoryMB = flagCfg.MaxMemoryMB },
		"store":         func() { cfg.StoreBackend = flagCfg.StoreBackend },
		"redis-url":     func() { cfg.RedisURL = flagCfg.RedisURL },
		"pg-dsn":        func() { cfg.PostgresDSN = flagCfg.PostgresDSN },
		"log-level":     func() { cfg.LogLevel = flagCfg.LogLevel },
		"log-format":    func() { cfg.LogFormat = flagCfg.LogFormat },
		"log-file":      func() { cfg.LogFile = flagCfg.LogFile },
		"metrics-addr":  func() { cfg.MetricsAddr = flagCfg.MetricsAddr },
		"no-progress":   func() { cfg.NoProgress = flagCfg.NoProgress },
	}
	for name, apply := range set {
		if cmd.Flags().Changed(name) {
			apply()
		}
	}
}

func newLogger(cfg *config.Config) (*zap.Logger, error) {
	return logging.New(logging.Options{
		Level:  cfg.LogLevel,
		Format: cfg.LogFormat,
		File:   cfg.LogFile,
	})
}

// signalContext отменяется по SIGINT или SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

// runDaemon выполняет циклы до получения сигнала завершения.
func runDaemon(cmd *cobra.Command, args []string) error {
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

	if a.admin != nil {
		a.admin.Start()
		defer func() {
			if err := a.admin.Stop(context.Background()); err != nil {
				logger.Warn("служебный сервер остановлен с ошибкой", zap.Error(err))
			}
		}()
	}

	logger.Info("запуск", zap.String("version", Version), zap.Stringer("config", cfg))
	if err := a.scheduler.Run(ctx); err != nil {
		return err
	}
	logger.Info("остановлено по сигналу")
	return nil
}

// newVersionCmd создаёт команду version.
func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Показать версию",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("popularfeed %s (built %s)\n", Version, BuildTime)
		},
	}
}

// Execute запускает CLI.
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		// Не выводим ошибку, cobra уже вывела
		os.Exit(1)
	}
}
