package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// LookupFunc возвращает значение переменной окружения.
type LookupFunc func(key string) (string, bool)

// ApplyEnv применяет переменные окружения поверх конфигурации.
func (c *Config) ApplyEnv() error {
	return c.applyEnv(os.LookupEnv)
}

func (c *Config) applyEnv(lookup LookupFunc) error {
	get := func(key string) string {
		v, ok := lookup(key)
		if !ok {
			return ""
		}
		return strings.TrimSpace(v)
	}

	setString(&c.ChannelID, get("CHANNEL_ID"))
	setString(&c.APIKey, get("API_KEY"))
	setString(&c.ServerDomain, get("SERVER_DOMAIN"))
	setString(&c.SourceBaseURL, get("SOURCE_BASE_URL"))
	setString(&c.DataDir, get("DATA_DIR"))
	setString(&c.RedisURL, get("REDIS_URL"))
	setString(&c.PostgresDSN, get("PG_DSN"))
	setString(&c.LogLevel, get("LOG_LEVEL"))
	setString(&c.LogFile, get("LOG_FILE"))
	setString(&c.MetricsAddr, get("METRICS_ADDR"))
	setString(&c.VipsPath, get("POPULARFEED_VIPS"))

	if v := get("FORWARDER"); v != "" {
		c.Forwarder = ForwarderKind(v)
	}
	if v := get("STORE_BACKEND"); v != "" {
		c.StoreBackend = StoreBackend(v)
	}
	if v := get("AUX_LISTINGS"); v != "" {
		c.AuxListings = strings.Split(v, ",")
	}
	if v := get("THREADS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("некорректное значение THREADS=%q: %w", v, err)
		}
		c.Workers = n
	}
	if v := get("REQUEST_RPS"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("некорректное значение REQUEST_RPS=%q: %w", v, err)
		}
		c.RequestRPS = f
	}
	if v := get("POLL_INTERVAL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("некорректное значение POLL_INTERVAL=%q: %w", v, err)
		}
		c.PollInterval = d
	}

	return nil
}
