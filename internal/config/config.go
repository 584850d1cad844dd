package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	DataForSEO DataForSEOConfig `yaml:"dataforseo" mapstructure:"dataforseo"`
	Resolver   ResolverConfig   `yaml:"resolver" mapstructure:"resolver"`
	Store      StoreConfig      `yaml:"store" mapstructure:"store"`
	Redis      RedisConfig      `yaml:"redis" mapstructure:"redis"`
	Server     ServerConfig     `yaml:"server" mapstructure:"server"`
	Monitoring MonitoringConfig `yaml:"monitoring" mapstructure:"monitoring"`
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
}

// DataForSEOConfig holds DataForSEO API credentials and the parameters sent
// with live Lighthouse audits.
type DataForSEOConfig struct {
	Login           string  `yaml:"login" mapstructure:"login"`
	Password        string  `yaml:"password" mapstructure:"password"`
	BaseURL         string  `yaml:"base_url" mapstructure:"base_url"`
	Device          string  `yaml:"device" mapstructure:"device"`
	LocationName    string  `yaml:"location_name" mapstructure:"location_name"`
	LanguageName    string  `yaml:"language_name" mapstructure:"language_name"`
	Version         string  `yaml:"version" mapstructure:"version"`
	TimeoutSecs     int     `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	RateLimitPerSec float64 `yaml:"rate_limit_per_sec" mapstructure:"rate_limit_per_sec"`
}

// ResolverConfig tunes the retry wrapper around every provider call and the
// fan-out of multi-task commands.
type ResolverConfig struct {
	MaxRetries     int     `yaml:"max_retries" mapstructure:"max_retries"`
	BaseDelayMs    int     `yaml:"base_delay_ms" mapstructure:"base_delay_ms"`
	JitterFraction float64 `yaml:"jitter_fraction" mapstructure:"jitter_fraction"`
	Concurrency    int     `yaml:"concurrency" mapstructure:"concurrency"`
}

// StoreConfig configures the task history backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// RedisConfig configures the result cache. An empty address disables it.
type RedisConfig struct {
	Address    string `yaml:"address" mapstructure:"address"`
	Password   string `yaml:"password" mapstructure:"password"`
	DB         int    `yaml:"db" mapstructure:"db"`
	TTLMinutes int    `yaml:"ttl_minutes" mapstructure:"ttl_minutes"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Port                int      `yaml:"port" mapstructure:"port"`
	ShutdownTimeoutSecs int      `yaml:"shutdown_timeout_secs" mapstructure:"shutdown_timeout_secs"`
	CORSOrigins         []string `yaml:"cors_origins" mapstructure:"cors_origins"`
}

// MonitoringConfig configures the background resolution health checker.
type MonitoringConfig struct {
	Enabled              bool    `yaml:"enabled" mapstructure:"enabled"`
	WebhookURL           string  `yaml:"webhook_url" mapstructure:"webhook_url"`
	CheckIntervalSecs    int     `yaml:"check_interval_secs" mapstructure:"check_interval_secs"`
	LookbackWindowHours  int     `yaml:"lookback_window_hours" mapstructure:"lookback_window_hours"`
	FailureRateThreshold float64 `yaml:"failure_rate_threshold" mapstructure:"failure_rate_threshold"`
	PendingThreshold     int     `yaml:"pending_threshold" mapstructure:"pending_threshold"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("SEO")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults. Secrets default to empty so AutomaticEnv can bind them.
	v.SetDefault("dataforseo.login", "")
	v.SetDefault("dataforseo.password", "")
	v.SetDefault("dataforseo.base_url", "https://api.dataforseo.com/v3/on_page/lighthouse")
	v.SetDefault("dataforseo.device", "desktop")
	v.SetDefault("dataforseo.location_name", "United States")
	v.SetDefault("dataforseo.language_name", "English")
	v.SetDefault("dataforseo.version", "9.6.8")
	v.SetDefault("dataforseo.timeout_secs", 120)
	v.SetDefault("dataforseo.rate_limit_per_sec", 0)
	v.SetDefault("resolver.max_retries", 3)
	v.SetDefault("resolver.base_delay_ms", 1000)
	v.SetDefault("resolver.jitter_fraction", 0)
	v.SetDefault("resolver.concurrency", 4)
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "seo.db")
	v.SetDefault("redis.address", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.ttl_minutes", 60)
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.shutdown_timeout_secs", 30)
	v.SetDefault("server.cors_origins", []string{"*"})
	v.SetDefault("monitoring.enabled", false)
	v.SetDefault("monitoring.webhook_url", "")
	v.SetDefault("monitoring.check_interval_secs", 300)
	v.SetDefault("monitoring.lookback_window_hours", 24)
	v.SetDefault("monitoring.failure_rate_threshold", 0.5)
	v.SetDefault("monitoring.pending_threshold", 50)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// Validate checks the settings a command mode depends on. Modes: serve,
// resolve, submit, history, migrate.
func (c *Config) Validate(mode string) error {
	var errs []string

	needsProvider := false
	needsStore := false
	switch mode {
	case "serve":
		needsProvider, needsStore = true, true
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, "server.port must be > 0 and <= 65535")
		}
		if c.Monitoring.Enabled && c.Monitoring.WebhookURL == "" {
			errs = append(errs, "monitoring.webhook_url is required when monitoring is enabled")
		}
	case "resolve", "submit":
		needsProvider, needsStore = true, true
	case "history", "migrate":
		needsStore = true
	default:
		return eris.Errorf("config: unknown validation mode %q", mode)
	}

	if needsProvider {
		if c.DataForSEO.Login == "" {
			errs = append(errs, "dataforseo.login is required")
		}
		if c.DataForSEO.Password == "" {
			errs = append(errs, "dataforseo.password is required")
		}
		if c.Resolver.MaxRetries < 0 {
			errs = append(errs, "resolver.max_retries must be >= 0")
		}
		if c.Resolver.BaseDelayMs < 0 {
			errs = append(errs, "resolver.base_delay_ms must be >= 0")
		}
		if c.Resolver.JitterFraction < 0 || c.Resolver.JitterFraction > 1 {
			errs = append(errs, "resolver.jitter_fraction must be between 0 and 1")
		}
		if c.DataForSEO.RateLimitPerSec < 0 {
			errs = append(errs, "dataforseo.rate_limit_per_sec must be >= 0")
		}
	}

	if needsStore {
		switch c.Store.Driver {
		case "sqlite", "postgres":
		default:
			errs = append(errs, "store.driver must be sqlite or postgres")
		}
		if c.Store.DatabaseURL == "" {
			errs = append(errs, "store.database_url is required")
		}
	}

	if len(errs) > 0 {
		return eris.Errorf("config validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
