package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"

	"pricestream/internal/infrastructure/ratelimit"
)

type Config struct {
	App struct {
		LogLevel  string `toml:"log_level"`
		LogFormat string `toml:"log_format"` // console | json
	} `toml:"app"`

	Server struct {
		Addr               string   `toml:"addr"`
		AllowedOrigins     []string `toml:"allowed_origins"`
		ShutdownTimeoutSec int      `toml:"shutdown_timeout_sec"`
		PongWaitSec        int      `toml:"pong_wait_sec"`
		PingEverySec       int      `toml:"ping_every_sec"`
	} `toml:"server"`

	Stream struct {
		IntervalMs     int `toml:"interval_ms"`
		WriteTimeoutMs int `toml:"write_timeout_ms"`
	} `toml:"stream"`

	Cache struct {
		PriceTTLSec   int `toml:"price_ttl_sec"`
		DetailsTTLSec int `toml:"details_ttl_sec"`
		ReapEverySec  int `toml:"reap_every_sec"`
	} `toml:"cache"`

	RateLimit struct {
		MinIntervalMs int    `toml:"min_interval_ms"`
		Mode          string `toml:"mode"` // per_symbol | global
	} `toml:"ratelimit"`

	Provider struct {
		Name        string `toml:"name"`
		APIKey      string `toml:"api_key"`
		BaseURL     string `toml:"base_url"`
		TimeoutMs   int    `toml:"timeout_ms"`
		HistoryDays int    `toml:"history_days"`
	} `toml:"provider"`

	Search struct {
		CacheTTLSec int `toml:"cache_ttl_sec"`
	} `toml:"search"`

	Storage struct {
		Redis struct {
			Enabled    bool   `toml:"enabled"`
			Addr       string `toml:"addr"`
			Password   string `toml:"password"`
			DB         int    `toml:"db"`
			Prefix     string `toml:"prefix"`
			TTLSeconds int    `toml:"ttl_seconds"`
			Channel    string `toml:"channel"`
		} `toml:"redis"`

		SQLite struct {
			Enabled bool   `toml:"enabled"`
			Path    string `toml:"path"`
		} `toml:"sqlite"`

		Postgres struct {
			Enabled bool   `toml:"enabled"`
			DSN     string `toml:"dsn"`
		} `toml:"postgres"`
	} `toml:"storage"`
}

// Load reads the TOML file at path. An empty path means defaults plus
// environment only. A .env file, when present, is loaded before the
// environment overrides are applied.
func Load(path string) (*Config, error) {
	var cfg Config
	if path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return nil, fmt.Errorf("decode %s: %w", path, err)
		}
	}
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}
	applyEnv(&cfg, os.Getenv)
	applyDefaults(&cfg)
	if err := validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns the built-in values without reading a file or the environment.
func Default() *Config {
	var cfg Config
	applyDefaults(&cfg)
	return &cfg
}

// applyEnv lets the environment win over the file.
func applyEnv(cfg *Config, getenv func(string) string) {
	if v := getenv("PRICESTREAM_ADDR"); v != "" {
		cfg.Server.Addr = v
	}
	if v := getenv("ALPHAVANTAGE_API_KEY"); v != "" {
		cfg.Provider.APIKey = v
	}
	if v := getenv("PRICESTREAM_API_KEY"); v != "" {
		cfg.Provider.APIKey = v
	}
	if v := getenv("PRICESTREAM_PROVIDER"); v != "" {
		cfg.Provider.Name = v
	}
	if v := getenv("REDIS_ADDR"); v != "" {
		cfg.Storage.Redis.Enabled = true
		cfg.Storage.Redis.Addr = v
	}
	if v := getenv("PRICESTREAM_ALLOWED_ORIGINS"); v != "" {
		cfg.Server.AllowedOrigins = splitList(v)
	}
	if v := getenv("PRICESTREAM_LOG_LEVEL"); v != "" {
		cfg.App.LogLevel = v
	}
}

func applyDefaults(cfg *Config) {
	if cfg.App.LogLevel == "" {
		cfg.App.LogLevel = "info"
	}
	if cfg.App.LogFormat == "" {
		cfg.App.LogFormat = "console"
	}
	if cfg.Server.Addr == "" {
		cfg.Server.Addr = ":8000"
	}
	if cfg.Server.ShutdownTimeoutSec <= 0 {
		cfg.Server.ShutdownTimeoutSec = 10
	}
	if cfg.Server.PongWaitSec <= 0 {
		cfg.Server.PongWaitSec = 60
	}
	if cfg.Server.PingEverySec <= 0 {
		cfg.Server.PingEverySec = 25
	}
	if cfg.Stream.IntervalMs <= 0 {
		cfg.Stream.IntervalMs = 5000
	}
	if cfg.Stream.WriteTimeoutMs <= 0 {
		cfg.Stream.WriteTimeoutMs = 5000
	}
	if cfg.Cache.PriceTTLSec <= 0 {
		cfg.Cache.PriceTTLSec = 10
	}
	if cfg.Cache.DetailsTTLSec <= 0 {
		cfg.Cache.DetailsTTLSec = 300
	}
	if cfg.Cache.ReapEverySec <= 0 {
		cfg.Cache.ReapEverySec = 60
	}
	if cfg.RateLimit.MinIntervalMs <= 0 {
		cfg.RateLimit.MinIntervalMs = 12000
	}
	if cfg.RateLimit.Mode == "" {
		cfg.RateLimit.Mode = string(ratelimit.PerSymbol)
	}
	if cfg.Provider.Name == "" {
		cfg.Provider.Name = "alphavantage"
	}
	if cfg.Provider.TimeoutMs <= 0 {
		cfg.Provider.TimeoutMs = 10000
	}
	if cfg.Provider.HistoryDays <= 0 {
		cfg.Provider.HistoryDays = 30
	}
	if cfg.Search.CacheTTLSec <= 0 {
		cfg.Search.CacheTTLSec = 3600
	}
	if cfg.Storage.Redis.Prefix == "" {
		cfg.Storage.Redis.Prefix = "pricestream"
	}
	if cfg.Storage.Redis.TTLSeconds <= 0 {
		cfg.Storage.Redis.TTLSeconds = 86400
	}
	if cfg.Storage.SQLite.Path == "" {
		cfg.Storage.SQLite.Path = "data/pricestream.db"
	}
}

func validate(cfg *Config) error {
	cfg.Provider.Name = strings.ToLower(strings.TrimSpace(cfg.Provider.Name))
	if cfg.Provider.Name == "alphavantage" && strings.TrimSpace(cfg.Provider.APIKey) == "" {
		return errors.New("provider.api_key empty (set ALPHAVANTAGE_API_KEY)")
	}
	if _, err := ratelimit.ParseMode(cfg.RateLimit.Mode); err != nil {
		return fmt.Errorf("ratelimit.mode: %w", err)
	}
	switch cfg.App.LogFormat {
	case "console", "json":
	default:
		return fmt.Errorf("app.log_format %q must be console or json", cfg.App.LogFormat)
	}
	if cfg.Server.PingEverySec >= cfg.Server.PongWaitSec {
		return errors.New("server.ping_every_sec must be less than server.pong_wait_sec")
	}
	if cfg.Storage.Redis.Enabled && strings.TrimSpace(cfg.Storage.Redis.Addr) == "" {
		return errors.New("storage.redis.addr empty but enabled")
	}
	if cfg.Storage.Postgres.Enabled && strings.TrimSpace(cfg.Storage.Postgres.DSN) == "" {
		return errors.New("storage.postgres.dsn empty but enabled")
	}
	cfg.Server.AllowedOrigins = normalizeOrigins(cfg.Server.AllowedOrigins)
	return nil
}

func splitList(s string) []string {
	return strings.FieldsFunc(s, func(r rune) bool { return r == ',' || r == ' ' || r == ';' })
}

func normalizeOrigins(in []string) []string {
	out := make([]string, 0, len(in))
	seen := map[string]struct{}{}
	for _, o := range in {
		o = strings.TrimSpace(o)
		if o == "" {
			continue
		}
		if _, ok := seen[o]; ok {
			continue
		}
		seen[o] = struct{}{}
		out = append(out, o)
	}
	return out
}

func ms(n int) time.Duration  { return time.Duration(n) * time.Millisecond }
func sec(n int) time.Duration { return time.Duration(n) * time.Second }

func (c *Config) StreamInterval() time.Duration  { return ms(c.Stream.IntervalMs) }
func (c *Config) WriteTimeout() time.Duration    { return ms(c.Stream.WriteTimeoutMs) }
func (c *Config) PriceTTL() time.Duration        { return sec(c.Cache.PriceTTLSec) }
func (c *Config) DetailsTTL() time.Duration      { return sec(c.Cache.DetailsTTLSec) }
func (c *Config) ReapEvery() time.Duration       { return sec(c.Cache.ReapEverySec) }
func (c *Config) MinInterval() time.Duration     { return ms(c.RateLimit.MinIntervalMs) }
func (c *Config) ProviderTimeout() time.Duration { return ms(c.Provider.TimeoutMs) }
func (c *Config) SearchTTL() time.Duration       { return sec(c.Search.CacheTTLSec) }
func (c *Config) ShutdownTimeout() time.Duration { return sec(c.Server.ShutdownTimeoutSec) }
func (c *Config) PongWait() time.Duration        { return sec(c.Server.PongWaitSec) }
func (c *Config) PingEvery() time.Duration       { return sec(c.Server.PingEverySec) }
