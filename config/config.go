// Package config loads service settings from .env files, an optional YAML file and the environment.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v2"
)

// Config holds every service setting.
type Config struct {
	Port    string `yaml:"port"`
	GinMode string `yaml:"gin_mode"`
	DevMode bool   `yaml:"dev_mode"`
	DataDir string `yaml:"data_dir"`

	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`

	StoreDriver string        `yaml:"store_driver"`
	SQLitePath  string        `yaml:"sqlite_path"`
	CacheTTL    time.Duration `yaml:"cache_ttl"`
	RateLimit   int           `yaml:"rate_limit_per_minute"`

	PageSpeedAPIKey   string `yaml:"pagespeed_api_key"`
	PageSpeedEndpoint string `yaml:"pagespeed_endpoint"`
	BuiltWithAPIKey   string `yaml:"builtwith_api_key"`
	BuiltWithEndpoint string `yaml:"builtwith_endpoint"`

	FetchProxyEndpoint  string `yaml:"fetch_proxy_endpoint"`
	OutboundProxy       string `yaml:"outbound_proxy"`
	AllowPrivateTargets bool   `yaml:"allow_private_targets"`

	MaxRecommendations int `yaml:"max_recommendations"`
	ProbeConcurrency   int `yaml:"probe_concurrency"`

	// BurstRate is in requests per second per client. A BurstSize of 0 disables the guard.
	BurstRate            float64 `yaml:"burst_rate"`
	BurstSize            float64 `yaml:"burst_size"`
	StatsRetentionMonths int     `yaml:"stats_retention_months"`
}

// Default returns the built-in settings.
func Default() Config {
	return Config{
		Port:               "8082",
		GinMode:            "release",
		DataDir:            "./data",
		LogLevel:           "info",
		LogFormat:          "text",
		StoreDriver:        "memory",
		CacheTTL:           2 * time.Hour,
		RateLimit:          5,
		MaxRecommendations: 8,
		ProbeConcurrency:   8,

		BurstRate:            2,
		BurstSize:            5,
		StatsRetentionMonths: 12,
	}
}

// LoadEnvFiles loads .env.development, falling back to .env. It reports whether a file was found.
func LoadEnvFiles() bool {
	if err := godotenv.Load(".env.development"); err != nil {
		if err := godotenv.Load(); err != nil {
			return false
		}
	}
	return true
}

// Load builds the configuration: defaults, then the YAML file named by CONFIG_FILE, then
// environment variables. Call LoadEnvFiles first to pick up .env files.
func Load() (Config, error) {
	cfg := Default()

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	if err := applyEnv(&cfg); err != nil {
		return cfg, err
	}
	if cfg.SQLitePath == "" {
		cfg.SQLitePath = strings.TrimRight(cfg.DataDir, "/") + "/siteaudit.db"
	}
	return cfg, nil
}

func applyEnv(cfg *Config) error {
	str := func(key string, dst *string) {
		if v, ok := os.LookupEnv(key); ok && v != "" {
			*dst = v
		}
	}
	str("PORT", &cfg.Port)
	str("GIN_MODE", &cfg.GinMode)
	str("DATA_DIR", &cfg.DataDir)
	str("LOG_LEVEL", &cfg.LogLevel)
	str("LOG_FORMAT", &cfg.LogFormat)
	str("STORE_DRIVER", &cfg.StoreDriver)
	str("SQLITE_PATH", &cfg.SQLitePath)
	str("PAGESPEED_API_KEY", &cfg.PageSpeedAPIKey)
	str("PAGESPEED_ENDPOINT", &cfg.PageSpeedEndpoint)
	str("BUILTWITH_API_KEY", &cfg.BuiltWithAPIKey)
	str("BUILTWITH_ENDPOINT", &cfg.BuiltWithEndpoint)
	str("FETCH_PROXY_ENDPOINT", &cfg.FetchProxyEndpoint)
	str("OUTBOUND_PROXY", &cfg.OutboundProxy)

	if v := os.Getenv("DEV_MODE"); v != "" {
		cfg.DevMode = v == "true"
	}
	if v := os.Getenv("ALLOW_PRIVATE_TARGETS"); v != "" {
		cfg.AllowPrivateTargets = v == "true"
	}
	if v := os.Getenv("CACHE_TTL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid CACHE_TTL %q: %w", v, err)
		}
		cfg.CacheTTL = d
	}

	ints := []struct {
		key string
		dst *int
	}{
		{"RATE_LIMIT_PER_MINUTE", &cfg.RateLimit},
		{"MAX_RECOMMENDATIONS", &cfg.MaxRecommendations},
		{"PROBE_CONCURRENCY", &cfg.ProbeConcurrency},
		{"STATS_RETENTION_MONTHS", &cfg.StatsRetentionMonths},
	}
	for _, i := range ints {
		v := os.Getenv(i.key)
		if v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid %s %q: %w", i.key, v, err)
		}
		*i.dst = n
	}

	floats := []struct {
		key string
		dst *float64
	}{
		{"BURST_RATE", &cfg.BurstRate},
		{"BURST_SIZE", &cfg.BurstSize},
	}
	for _, f := range floats {
		v := os.Getenv(f.key)
		if v == "" {
			continue
		}
		n, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("invalid %s %q: %w", f.key, v, err)
		}
		*f.dst = n
	}
	return nil
}
