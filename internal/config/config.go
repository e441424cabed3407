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
	API      APIConfig      `yaml:"api" mapstructure:"api"`
	Retry    RetryConfig    `yaml:"retry" mapstructure:"retry"`
	Circuit  CircuitConfig  `yaml:"circuit" mapstructure:"circuit"`
	Centers  CentersConfig  `yaml:"centers" mapstructure:"centers"`
	Location LocationConfig `yaml:"location" mapstructure:"location"`
	Store    StoreConfig    `yaml:"store" mapstructure:"store"`
	Server   ServerConfig   `yaml:"server" mapstructure:"server"`
	Maps     MapsConfig     `yaml:"maps" mapstructure:"maps"`
	Log      LogConfig      `yaml:"log" mapstructure:"log"`
}

// APIConfig configures the Eco-Collect backend client.
type APIConfig struct {
	BaseURL      string  `yaml:"base_url" mapstructure:"base_url"`
	TimeoutSecs  int     `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	RateLimitRPS float64 `yaml:"rate_limit_rps" mapstructure:"rate_limit_rps"`
	UserAgent    string  `yaml:"user_agent" mapstructure:"user_agent"`
}

// RetryConfig configures retries of backend calls.
type RetryConfig struct {
	MaxAttempts      int `yaml:"max_attempts" mapstructure:"max_attempts"`
	InitialBackoffMs int `yaml:"initial_backoff_ms" mapstructure:"initial_backoff_ms"`
	MaxBackoffMs     int `yaml:"max_backoff_ms" mapstructure:"max_backoff_ms"`
}

// CircuitConfig configures the backend circuit breaker.
type CircuitConfig struct {
	FailureThreshold int `yaml:"failure_threshold" mapstructure:"failure_threshold"`
	ResetTimeoutSecs int `yaml:"reset_timeout_secs" mapstructure:"reset_timeout_secs"`
}

// CentersConfig configures center loading and filtering.
type CentersConfig struct {
	// FixturePath optionally replaces the built-in demo list with a YAML file.
	FixturePath string `yaml:"fixture_path" mapstructure:"fixture_path"`
	// OpenNowMode is "schedule" (parse each center's hours) or "fixed"
	// (08:00-17:00 for every center with hours).
	OpenNowMode         string `yaml:"open_now_mode" mapstructure:"open_now_mode"`
	SnapshotMaxAgeHours int    `yaml:"snapshot_max_age_hours" mapstructure:"snapshot_max_age_hours"`
}

// LocationConfig configures how the user's position is resolved.
type LocationConfig struct {
	// Provider is "none", "static" or "ip".
	Provider    string  `yaml:"provider" mapstructure:"provider"`
	Latitude    float64 `yaml:"latitude" mapstructure:"latitude"`
	Longitude   float64 `yaml:"longitude" mapstructure:"longitude"`
	LookupURL   string  `yaml:"lookup_url" mapstructure:"lookup_url"`
	TimeoutSecs int     `yaml:"timeout_secs" mapstructure:"timeout_secs"`
}

// StoreConfig configures the local snapshot/session store.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Port        int      `yaml:"port" mapstructure:"port"`
	CORSOrigins []string `yaml:"cors_origins" mapstructure:"cors_origins"`
}

// MapsConfig configures directions links.
type MapsConfig struct {
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	v.SetEnvPrefix("ECOCOLLECT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("api.base_url", "http://localhost:8000/api")
	v.SetDefault("api.timeout_secs", 15)
	v.SetDefault("api.rate_limit_rps", 10)
	v.SetDefault("api.user_agent", "ecocollect-cli")
	v.SetDefault("retry.max_attempts", 3)
	v.SetDefault("retry.initial_backoff_ms", 250)
	v.SetDefault("retry.max_backoff_ms", 5000)
	v.SetDefault("circuit.failure_threshold", 5)
	v.SetDefault("circuit.reset_timeout_secs", 30)
	v.SetDefault("centers.open_now_mode", "schedule")
	v.SetDefault("centers.snapshot_max_age_hours", 72)
	v.SetDefault("location.provider", "none")
	v.SetDefault("location.lookup_url", "http://ip-api.com/json")
	v.SetDefault("location.timeout_secs", 5)
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "ecocollect.db")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.cors_origins", []string{"http://localhost:3000"})
	v.SetDefault("maps.base_url", "https://www.google.com/maps")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

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
