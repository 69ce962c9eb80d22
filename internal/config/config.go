// Package config содержит конфигурацию приложения.
package config

import (
	"fmt"
	"net/url"
	"path/filepath"
	"strings"
	"time"

	"github.com/artemshloyda/popularfeed/internal/apperr"
)

// StoreBackend определяет реализацию хранилища дедупликации.
type StoreBackend string

const (
	// BackendSQLite - SQLite файл в <data_dir>/db (по умолчанию).
	BackendSQLite StoreBackend = "sqlite"
	// BackendBadger - встроенное KV-хранилище BadgerDB в <data_dir>/db.
	BackendBadger StoreBackend = "badger"
	// BackendRedis - внешний Redis.
	BackendRedis StoreBackend = "redis"
	// BackendPostgres - внешний PostgreSQL.
	BackendPostgres StoreBackend = "postgres"
)

// ForwarderKind определяет получателя сообщений.
type ForwarderKind string

const (
	// ForwarderVoceChat - бот VoceChat.
	ForwarderVoceChat ForwarderKind = "vocechat"
	// ForwarderLog - только запись в лог (dry-run).
	ForwarderLog ForwarderKind = "log"
)

// TranscoderKind определяет способ перекодирования изображений.
type TranscoderKind string

const (
	// TranscoderAuto - vips, если найден, иначе встроенный.
	TranscoderAuto TranscoderKind = "auto"
	// TranscoderNative - встроенный Go-перекодировщик (JPEG).
	TranscoderNative TranscoderKind = "native"
	// TranscoderVips - внешний vips (WebP).
	TranscoderVips TranscoderKind = "vips"
)

// Config содержит все настройки сервиса.
type Config struct {
	// ChannelID - идентификатор канала получателя.
	ChannelID string

	// APIKey - ключ API бота.
	APIKey string

	// ServerDomain - базовый URL сервера получателя.
	ServerDomain string

	// Forwarder - тип получателя.
	Forwarder ForwarderKind

	// SourceBaseURL - базовый URL сайта-источника.
	SourceBaseURL string

	// PrimaryListing - путь основного листинга; его ошибка прерывает цикл.
	PrimaryListing string

	// AuxListings - дополнительные листинги; ошибки пропускаются.
	AuxListings []string

	// UserAgent - заголовок User-Agent для запросов к источнику.
	UserAgent string

	// RequestRPS - ограничение запросов к источнику в секунду (0 = без ограничения).
	RequestRPS float64

	// HTTPTimeout - таймаут одного HTTP-запроса.
	HTTPTimeout time.Duration

	// DataDir - директория данных: db и tmp.
	DataDir string

	// Workers - количество одновременно обрабатываемых групп.
	Workers int

	// PollInterval - период опроса листинга.
	PollInterval time.Duration

	// Retention - срок хранения записей дедупликации.
	Retention time.Duration

	// ScoreThreshold - минимальный рейтинг группы.
	ScoreThreshold int64

	// MaxDimension - максимальная длина стороны изображения в пикселях.
	MaxDimension int

	// Quality - качество сжатия (1-100).
	Quality int

	// Transcoder - способ перекодирования.
	Transcoder TranscoderKind

	// VipsPath - путь к vips бинарнику (опционально).
	VipsPath string

	// MaxMemoryMB - ограничение памяти на перекодирование (0 = без ограничения).
	MaxMemoryMB int

	// StoreBackend - реализация хранилища дедупликации.
	StoreBackend StoreBackend

	// RedisURL - URL Redis для BackendRedis.
	RedisURL string

	// PostgresDSN - DSN PostgreSQL для BackendPostgres.
	PostgresDSN string

	// LogLevel - уровень логирования (debug, info, warn, error).
	LogLevel string

	// LogFormat - формат логов (json, console).
	LogFormat string

	// LogFile - файл логов с ротацией (пусто = только stderr).
	LogFile string

	// MetricsAddr - адрес HTTP-сервера /metrics, /healthz, /stats (пусто = выключен).
	MetricsAddr string

	// NoProgress - отключить прогресс-бар в команде once.
	NoProgress bool
}

// Значения, зафиксированные исходным поведением сервиса.
const (
	DefaultPollInterval   = time.Hour
	DefaultRetention      = 7 * 24 * time.Hour
	DefaultScoreThreshold = 50
	DefaultMaxDimension   = 1920
	DefaultQuality        = 85
	DefaultWorkers        = 4

	defaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/117.0.0.0 Safari/537.36 Edg/117.0.2045.47"
)

// DefaultConfig возвращает конфигурацию по умолчанию.
func DefaultConfig() *Config {
	return &Config{
		Forwarder:      ForwarderVoceChat,
		SourceBaseURL:  "https://yande.re",
		PrimaryListing: ListingRecent,
		UserAgent:      defaultUserAgent,
		RequestRPS:     2,
		HTTPTimeout:    time.Minute,
		DataDir:        "data",
		Workers:        DefaultWorkers,
		PollInterval:   DefaultPollInterval,
		Retention:      DefaultRetention,
		ScoreThreshold: DefaultScoreThreshold,
		MaxDimension:   DefaultMaxDimension,
		Quality:        DefaultQuality,
		Transcoder:     TranscoderAuto,
		StoreBackend:   BackendSQLite,
		LogLevel:       "info",
		LogFormat:      "console",
	}
}

// Validate проверяет корректность конфигурации.
func (c *Config) Validate() error {
	switch c.Forwarder {
	case ForwarderVoceChat:
		if c.ChannelID == "" {
			return apperr.Config("не указан канал (--channel-id / CHANNEL_ID)")
		}
		if c.APIKey == "" {
			return apperr.Config("не указан ключ API (--api-key / API_KEY)")
		}
		if c.ServerDomain == "" {
			return apperr.Config("не указан сервер (--server-domain / SERVER_DOMAIN)")
		}
		if _, err := url.ParseRequestURI(c.ServerDomain); err != nil {
			return apperr.Config("некорректный адрес сервера %q: %v", c.ServerDomain, err)
		}
	case ForwarderLog:
	default:
		return apperr.Config("неизвестный получатель: %s (доступны: vocechat, log)", c.Forwarder)
	}

	if _, err := url.ParseRequestURI(c.SourceBaseURL); err != nil {
		return apperr.Config("некорректный адрес источника %q: %v", c.SourceBaseURL, err)
	}
	if c.PrimaryListing == "" {
		return apperr.Config("не указан основной листинг")
	}
	if c.DataDir == "" {
		return apperr.Config("не указана директория данных (--data-dir)")
	}
	if c.Workers < 1 {
		return apperr.Config("количество воркеров должно быть >= 1, получено: %d", c.Workers)
	}
	if c.PollInterval <= 0 {
		return apperr.Config("период опроса должен быть > 0, получено: %s", c.PollInterval)
	}
	if c.Retention < 0 {
		return apperr.Config("срок хранения не может быть отрицательным: %s", c.Retention)
	}
	if c.MaxDimension < 1 {
		return apperr.Config("максимальный размер должен быть >= 1, получено: %d", c.MaxDimension)
	}
	if c.Quality < 1 || c.Quality > 100 {
		return apperr.Config("качество должно быть от 1 до 100, получено: %d", c.Quality)
	}
	if c.RequestRPS < 0 {
		return apperr.Config("ограничение запросов не может быть отрицательным: %v", c.RequestRPS)
	}

	switch c.Transcoder {
	case TranscoderAuto, TranscoderNative, TranscoderVips:
	default:
		return apperr.Config("неизвестный перекодировщик: %s (доступны: auto, native, vips)", c.Transcoder)
	}

	switch c.StoreBackend {
	case BackendSQLite, BackendBadger:
	case BackendRedis:
		if c.RedisURL == "" {
			return apperr.Config("для хранилища redis нужен --redis-url / REDIS_URL")
		}
	case BackendPostgres:
		if c.PostgresDSN == "" {
			return apperr.Config("для хранилища postgres нужен --pg-dsn / PG_DSN")
		}
	default:
		return apperr.Config("неизвестное хранилище: %s (доступны: sqlite, badger, redis, postgres)", c.StoreBackend)
	}

	return nil
}

// DBDir возвращает директорию хранилища дедупликации.
func (c *Config) DBDir() string {
	return filepath.Join(c.DataDir, "db")
}

// TmpDir возвращает директорию временных файлов.
func (c *Config) TmpDir() string {
	return filepath.Join(c.DataDir, "tmp")
}

// Listings возвращает основной и дополнительные листинги, основной первым.
func (c *Config) Listings() []string {
	out := make([]string, 0, 1+len(c.AuxListings))
	out = append(out, c.PrimaryListing)
	for _, l := range c.AuxListings {
		l = strings.TrimSpace(l)
		if l != "" && l != c.PrimaryListing {
			out = append(out, l)
		}
	}
	return out
}

// String возвращает краткое описание конфигурации без секретов.
func (c *Config) String() string {
	return fmt.Sprintf("source=%s listings=%v workers=%d interval=%s retention=%s threshold=%d max=%dpx q=%d store=%s forwarder=%s",
		c.SourceBaseURL, c.Listings(), c.Workers, c.PollInterval, c.Retention,
		c.ScoreThreshold, c.MaxDimension, c.Quality, c.StoreBackend, c.Forwarder)
}
