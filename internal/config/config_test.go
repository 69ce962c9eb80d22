package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/artemshloyda/popularfeed/internal/apperr"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg == nil {
		t.Fatal("DefaultConfig() returned nil")
	}

	// Значения, зафиксированные исходным поведением
	if cfg.PollInterval != time.Hour {
		t.Errorf("PollInterval = %v, want 1h", cfg.PollInterval)
	}
	if cfg.Retention != 7*24*time.Hour {
		t.Errorf("Retention = %v, want 168h", cfg.Retention)
	}
	if cfg.ScoreThreshold != 50 {
		t.Errorf("ScoreThreshold = %d, want 50", cfg.ScoreThreshold)
	}
	if cfg.MaxDimension != 1920 {
		t.Errorf("MaxDimension = %d, want 1920", cfg.MaxDimension)
	}
	if cfg.Quality != 85 {
		t.Errorf("Quality = %d, want 85", cfg.Quality)
	}
	if cfg.Workers != 4 {
		t.Errorf("Workers = %d, want 4", cfg.Workers)
	}
	if cfg.StoreBackend != BackendSQLite {
		t.Errorf("StoreBackend = %v, want %v", cfg.StoreBackend, BackendSQLite)
	}
}

func validConfig() *Config {
	cfg := DefaultConfig()
	cfg.ChannelID = "2"
	cfg.APIKey = "secret"
	cfg.ServerDomain = "https://chat.example.com"
	return cfg
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
	}{
		{name: "valid config", mutate: func(c *Config) {}},
		{name: "log forwarder needs no credentials", mutate: func(c *Config) {
			c.Forwarder = ForwarderLog
			c.ChannelID, c.APIKey, c.ServerDomain = "", "", ""
		}},
		{name: "missing channel", mutate: func(c *Config) { c.ChannelID = "" }, wantErr: true},
		{name: "missing api key", mutate: func(c *Config) { c.APIKey = "" }, wantErr: true},
		{name: "missing server", mutate: func(c *Config) { c.ServerDomain = "" }, wantErr: true},
		{name: "unknown forwarder", mutate: func(c *Config) { c.Forwarder = "matrix" }, wantErr: true},
		{name: "invalid workers", mutate: func(c *Config) { c.Workers = 0 }, wantErr: true},
		{name: "invalid quality low", mutate: func(c *Config) { c.Quality = 0 }, wantErr: true},
		{name: "invalid quality high", mutate: func(c *Config) { c.Quality = 101 }, wantErr: true},
		{name: "invalid interval", mutate: func(c *Config) { c.PollInterval = 0 }, wantErr: true},
		{name: "invalid dimension", mutate: func(c *Config) { c.MaxDimension = 0 }, wantErr: true},
		{name: "unknown backend", mutate: func(c *Config) { c.StoreBackend = "sled" }, wantErr: true},
		{name: "redis without url", mutate: func(c *Config) { c.StoreBackend = BackendRedis }, wantErr: true},
		{name: "postgres without dsn", mutate: func(c *Config) { c.StoreBackend = BackendPostgres }, wantErr: true},
		{name: "unknown transcoder", mutate: func(c *Config) { c.Transcoder = "magick" }, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, apperr.ErrConfig) {
				t.Errorf("Validate() error = %v, want kind ErrConfig", err)
			}
		})
	}
}

func TestConfig_Paths(t *testing.T) {
	cfg := &Config{DataDir: "/var/lib/popularfeed"}

	if got := cfg.DBDir(); got != filepath.Join("/var/lib/popularfeed", "db") {
		t.Errorf("DBDir() = %q", got)
	}
	if got := cfg.TmpDir(); got != filepath.Join("/var/lib/popularfeed", "tmp") {
		t.Errorf("TmpDir() = %q", got)
	}
}

func TestConfig_Listings(t *testing.T) {
	cfg := &Config{
		PrimaryListing: "/post/popular_recent",
		AuxListings:    []string{" /post/popular_by_day ", "", "/post/popular_recent"},
	}

	got := cfg.Listings()
	want := []string{"/post/popular_recent", "/post/popular_by_day"}
	if len(got) != len(want) {
		t.Fatalf("Listings() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Listings()[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestConfig_ApplyEnv(t *testing.T) {
	env := map[string]string{
		"CHANNEL_ID":    "7",
		"API_KEY":       "k",
		"SERVER_DOMAIN": "https://chat",
		"THREADS":       "2",
		"STORE_BACKEND": "badger",
		"AUX_LISTINGS":  "/a,/b",
		"POLL_INTERVAL": "30m",
	}
	cfg := DefaultConfig()
	err := cfg.applyEnv(func(key string) (string, bool) {
		v, ok := env[key]
		return v, ok
	})
	if err != nil {
		t.Fatalf("applyEnv() error = %v", err)
	}

	if cfg.ChannelID != "7" || cfg.APIKey != "k" || cfg.ServerDomain != "https://chat" {
		t.Errorf("credentials not applied: %+v", cfg)
	}
	if cfg.Workers != 2 {
		t.Errorf("Workers = %d, want 2", cfg.Workers)
	}
	if cfg.StoreBackend != BackendBadger {
		t.Errorf("StoreBackend = %v, want badger", cfg.StoreBackend)
	}
	if len(cfg.AuxListings) != 2 {
		t.Errorf("AuxListings = %v", cfg.AuxListings)
	}
	if cfg.PollInterval != 30*time.Minute {
		t.Errorf("PollInterval = %v, want 30m", cfg.PollInterval)
	}
}

func TestConfig_ApplyEnvInvalid(t *testing.T) {
	cfg := DefaultConfig()
	err := cfg.applyEnv(func(key string) (string, bool) {
		if key == "THREADS" {
			return "many", true
		}
		return "", false
	})
	if err == nil {
		t.Error("applyEnv() expected error for THREADS=many")
	}
}

func TestFileConfig_ApplyToConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "popularfeed.yaml")
	content := `
source:
  aux_listings: ["/post/popular_by_week"]
  request_rps: 0
forwarder:
  kind: log
processing:
  workers: 2
  retention: 24h
  score_threshold: 10
store:
  backend: badger
log:
  level: debug
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	fc, err := LoadFromFile(path)
	if err != nil {
		t.Fatalf("LoadFromFile() error = %v", err)
	}

	cfg := DefaultConfig()
	if err := fc.ApplyToConfig(cfg); err != nil {
		t.Fatalf("ApplyToConfig() error = %v", err)
	}

	if cfg.Forwarder != ForwarderLog {
		t.Errorf("Forwarder = %v, want log", cfg.Forwarder)
	}
	if cfg.Workers != 2 {
		t.Errorf("Workers = %d, want 2", cfg.Workers)
	}
	if cfg.Retention != 24*time.Hour {
		t.Errorf("Retention = %v, want 24h", cfg.Retention)
	}
	if cfg.ScoreThreshold != 10 {
		t.Errorf("ScoreThreshold = %d, want 10", cfg.ScoreThreshold)
	}
	if cfg.RequestRPS != 0 {
		t.Errorf("RequestRPS = %v, want 0", cfg.RequestRPS)
	}
	if cfg.StoreBackend != BackendBadger {
		t.Errorf("StoreBackend = %v, want badger", cfg.StoreBackend)
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("LogLevel = %q, want debug", cfg.LogLevel)
	}
	// Незаданные поля остаются по умолчанию
	if cfg.Quality != 85 {
		t.Errorf("Quality = %d, want 85", cfg.Quality)
	}
}

func TestFileConfig_InvalidDuration(t *testing.T) {
	fc := &FileConfig{Processing: &ProcessingConfig{PollInterval: "hourly"}}
	if err := fc.ApplyToConfig(DefaultConfig()); err == nil {
		t.Error("ApplyToConfig() expected error for invalid duration")
	}
}

func TestLoadFromFile_Missing(t *testing.T) {
	fc, err := LoadFromFile(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil || fc != nil {
		t.Errorf("LoadFromFile() = %v, %v; want nil, nil", fc, err)
	}
}

func TestGenerateExampleConfig_Parses(t *testing.T) {
	path := filepath.Join(t.TempDir(), "example.yaml")
	if err := os.WriteFile(path, []byte(GenerateExampleConfig()), 0644); err != nil {
		t.Fatal(err)
	}
	fc, err := LoadFromFile(path)
	if err != nil {
		t.Fatalf("example config does not parse: %v", err)
	}
	cfg := DefaultConfig()
	if err := fc.ApplyToConfig(cfg); err != nil {
		t.Fatalf("ApplyToConfig() error = %v", err)
	}
	if cfg.Retention != 168*time.Hour {
		t.Errorf("Retention = %v, want 168h", cfg.Retention)
	}
}

func TestFileConfig_Preset(t *testing.T) {
	cfg := DefaultConfig()
	fc := &FileConfig{Source: &SourceConfig{Preset: "weekly"}}
	if err := fc.ApplyToConfig(cfg); err != nil {
		t.Fatalf("ApplyToConfig() error = %v", err)
	}
	if got := cfg.Listings(); len(got) != 2 || got[1] != ListingByWeek {
		t.Errorf("Listings() = %v, want [%s %s]", got, ListingRecent, ListingByWeek)
	}

	// Явные листинги перекрывают пресет
	cfg = DefaultConfig()
	fc = &FileConfig{Source: &SourceConfig{Preset: "all", AuxListings: []string{"/custom"}}}
	if err := fc.ApplyToConfig(cfg); err != nil {
		t.Fatalf("ApplyToConfig() error = %v", err)
	}
	if got := cfg.Listings(); len(got) != 2 || got[1] != "/custom" {
		t.Errorf("Listings() = %v, want explicit aux listing", got)
	}

	fc = &FileConfig{Source: &SourceConfig{Preset: "monthly"}}
	if err := fc.ApplyToConfig(DefaultConfig()); err == nil {
		t.Error("ApplyToConfig() expected error for unknown preset")
	}
}
