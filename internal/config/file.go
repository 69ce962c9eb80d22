// Package config содержит конфигурацию приложения.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// FileConfig представляет структуру конфигурационного файла YAML.
// Все поля опциональны - если не указаны, используются значения по умолчанию.
type FileConfig struct {
	// Source - настройки источника.
	Source *SourceConfig `yaml:"source,omitempty"`

	// Forwarder - настройки получателя.
	Forwarder *ForwarderConfig `yaml:"forwarder,omitempty"`

	// Processing - настройки обработки.
	Processing *ProcessingConfig `yaml:"processing,omitempty"`

	// Store - настройки хранилища дедупликации.
	Store *StoreConfig `yaml:"store,omitempty"`

	// Log - настройки логирования и метрик.
	Log *LogConfig `yaml:"log,omitempty"`
}

// SourceConfig содержит настройки сайта-источника.
type SourceConfig struct {
	// Preset - набор листингов (recent, daily, weekly, all); явные листинги имеют приоритет.
	Preset         string   `yaml:"preset,omitempty"`
	BaseURL        string   `yaml:"base_url,omitempty"`
	PrimaryListing string   `yaml:"primary_listing,omitempty"`
	AuxListings    []string `yaml:"aux_listings,omitempty"`
	UserAgent      string   `yaml:"user_agent,omitempty"`
	RequestRPS     *float64 `yaml:"request_rps,omitempty"`
	HTTPTimeout    string   `yaml:"http_timeout,omitempty"`
}

// ForwarderConfig содержит настройки получателя.
type ForwarderConfig struct {
	// Kind - vocechat или log.
	Kind         string `yaml:"kind,omitempty"`
	ChannelID    string `yaml:"channel_id,omitempty"`
	APIKey       string `yaml:"api_key,omitempty"`
	ServerDomain string `yaml:"server_domain,omitempty"`
}

// ProcessingConfig содержит настройки обработки.
type ProcessingConfig struct {
	DataDir        string `yaml:"data_dir,omitempty"`
	Workers        int    `yaml:"workers,omitempty"`
	PollInterval   string `yaml:"poll_interval,omitempty"`
	Retention      string `yaml:"retention,omitempty"`
	ScoreThreshold *int64 `yaml:"score_threshold,omitempty"`
	MaxDimension   int    `yaml:"max_dimension,omitempty"`
	Quality        int    `yaml:"quality,omitempty"`
	Transcoder     string `yaml:"transcoder,omitempty"`
	VipsPath       string `yaml:"vips_path,omitempty"`
	MaxMemoryMB    int    `yaml:"max_memory_mb,omitempty"`
}

// StoreConfig содержит настройки хранилища.
type StoreConfig struct {
	Backend     string `yaml:"backend,omitempty"`
	RedisURL    string `yaml:"redis_url,omitempty"`
	PostgresDSN string `yaml:"postgres_dsn,omitempty"`
}

// LogConfig содержит настройки логирования.
type LogConfig struct {
	Level       string `yaml:"level,omitempty"`
	Format      string `yaml:"format,omitempty"`
	File        string `yaml:"file,omitempty"`
	MetricsAddr string `yaml:"metrics_addr,omitempty"`
}

// DefaultConfigPaths возвращает список путей для поиска конфигурационного файла.
// Поиск выполняется в следующем порядке:
// 1. ./popularfeed.yaml (текущая директория)
// 2. ./popularfeed.yml
// 3. ~/.config/popularfeed/config.yaml
// 4. ~/.config/popularfeed/config.yml
func DefaultConfigPaths() []string {
	paths := []string{
		"popularfeed.yaml",
		"popularfeed.yml",
	}

	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths,
			filepath.Join(home, ".config", "popularfeed", "config.yaml"),
			filepath.Join(home, ".config", "popularfeed", "config.yml"),
		)
	}

	return paths
}

// LoadFromFile загружает конфигурацию из указанного файла.
// Возвращает nil, nil если файл не существует.
func LoadFromFile(path string) (*FileConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("не удалось прочитать файл конфигурации %s: %w", path, err)
	}

	var fc FileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return nil, fmt.Errorf("ошибка парсинга YAML в %s: %w", path, err)
	}

	return &fc, nil
}

// FindAndLoadConfig ищет и загружает конфигурационный файл из стандартных путей.
// Если configPath указан явно, использует только его.
// Возвращает nil, nil если файл не найден.
func FindAndLoadConfig(configPath string) (*FileConfig, string, error) {
	if configPath != "" {
		fc, err := LoadFromFile(configPath)
		if err != nil {
			return nil, "", err
		}
		if fc == nil {
			return nil, "", fmt.Errorf("файл конфигурации не найден: %s", configPath)
		}
		return fc, configPath, nil
	}

	for _, path := range DefaultConfigPaths() {
		fc, err := LoadFromFile(path)
		if err != nil {
			return nil, "", err
		}
		if fc != nil {
			return fc, path, nil
		}
	}

	return nil, "", nil
}

// ApplyToConfig применяет настройки из файла к основной конфигурации.
// Возвращает ошибку, если длительность в файле записана некорректно.
func (fc *FileConfig) ApplyToConfig(cfg *Config) error {
	if fc == nil {
		return nil
	}

	if s := fc.Source; s != nil {
		if s.Preset != "" && !cfg.ApplyPreset(s.Preset) {
			return fmt.Errorf("неизвестный пресет листингов в source.preset: %s", s.Preset)
		}
		setString(&cfg.SourceBaseURL, s.BaseURL)
		setString(&cfg.PrimaryListing, s.PrimaryListing)
		setString(&cfg.UserAgent, s.UserAgent)
		if len(s.AuxListings) > 0 {
			cfg.AuxListings = s.AuxListings
		}
		if s.RequestRPS != nil {
			cfg.RequestRPS = *s.RequestRPS
		}
		if err := setDuration(&cfg.HTTPTimeout, s.HTTPTimeout, "source.http_timeout"); err != nil {
			return err
		}
	}

	if f := fc.Forwarder; f != nil {
		if f.Kind != "" {
			cfg.Forwarder = ForwarderKind(f.Kind)
		}
		setString(&cfg.ChannelID, f.ChannelID)
		setString(&cfg.APIKey, f.APIKey)
		setString(&cfg.ServerDomain, f.ServerDomain)
	}

	if p := fc.Processing; p != nil {
		setString(&cfg.DataDir, p.DataDir)
		setString(&cfg.VipsPath, p.VipsPath)
		if p.Workers > 0 {
			cfg.Workers = p.Workers
		}
		if p.ScoreThreshold != nil {
			cfg.ScoreThreshold = *p.ScoreThreshold
		}
		if p.MaxDimension > 0 {
			cfg.MaxDimension = p.MaxDimension
		}
		if p.Quality > 0 {
			cfg.Quality = p.Quality
		}
		if p.Transcoder != "" {
			cfg.Transcoder = TranscoderKind(p.Transcoder)
		}
		if p.MaxMemoryMB > 0 {
			cfg.MaxMemoryMB = p.MaxMemoryMB
		}
		if err := setDuration(&cfg.PollInterval, p.PollInterval, "processing.poll_interval"); err != nil {
			return err
		}
		if err := setDuration(&cfg.Retention, p.Retention, "processing.retention"); err != nil {
			return err
		}
	}

	if s := fc.Store; s != nil {
		if s.Backend != "" {
			cfg.StoreBackend = StoreBackend(s.Backend)
		}
		setString(&cfg.RedisURL, s.RedisURL)
		setString(&cfg.PostgresDSN, s.PostgresDSN)
	}

	if l := fc.Log; l != nil {
		setString(&cfg.LogLevel, l.Level)
		setString(&cfg.LogFormat, l.Format)
		setString(&cfg.LogFile, l.File)
		setString(&cfg.MetricsAddr, l.MetricsAddr)
	}

	return nil
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func setDuration(dst *time.Duration, v, field string) error {
	if v == "" {
		return nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fmt.Errorf("некорректная длительность %s=%q: %w", field, v, err)
	}
	*dst = d
	return nil
}

// GenerateExampleConfig генерирует пример конфигурационного файла.
func GenerateExampleConfig() string {
	return `# popularfeed configuration file
# Все параметры опциональны - если не указаны, используются значения по умолчанию.
# Переменные окружения и CLI флаги имеют приоритет над этим файлом.

source:
  base_url: "https://yande.re"
  # Набор листингов: recent, daily, weekly, all
  # preset: daily
  # Ошибка основного листинга прерывает цикл
  primary_listing: "/post/popular_recent"
  # Ошибки дополнительных листингов пропускаются
  aux_listings: []
  # Запросов к источнику в секунду (0 = без ограничения)
  request_rps: 2
  http_timeout: 1m

forwarder:
  # vocechat или log (только запись в лог)
  kind: vocechat
  channel_id: ""
  api_key: ""
  server_domain: "https://chat.example.com"

processing:
  data_dir: "data"
  # Одновременно обрабатываемых групп
  workers: 4
  poll_interval: 1h
  # Срок хранения записей дедупликации
  retention: 168h
  score_threshold: 50
  max_dimension: 1920
  quality: 85
  # auto, native или vips
  transcoder: auto
  vips_path: ""
  max_memory_mb: 0

store:
  # sqlite, badger, redis или postgres
  backend: sqlite
  redis_url: ""
  postgres_dsn: ""

log:
  level: info
  # console или json
  format: console
  file: ""
  # Адрес /metrics, /healthz, /stats (пусто = выключено)
  metrics_addr: ""
`
}
