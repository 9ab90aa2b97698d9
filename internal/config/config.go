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
	Server   ServerConfig   `yaml:"server" mapstructure:"server"`
	Analyzer AnalyzerConfig `yaml:"analyzer" mapstructure:"analyzer"`
	Billing  BillingConfig  `yaml:"billing" mapstructure:"billing"`
	Store    StoreConfig    `yaml:"store" mapstructure:"store"`
	Export   ExportConfig   `yaml:"export" mapstructure:"export"`
	Advice   AdviceConfig   `yaml:"advice" mapstructure:"advice"`
	Sentry   SentryConfig   `yaml:"sentry" mapstructure:"sentry"`
	Log      LogConfig      `yaml:"log" mapstructure:"log"`
}

// ServerConfig configures the hub HTTP server.
type ServerConfig struct {
	Port           int      `yaml:"port" mapstructure:"port"`
	AllowedOrigins []string `yaml:"allowed_origins" mapstructure:"allowed_origins"`
	RateLimitRPS   float64  `yaml:"rate_limit_rps" mapstructure:"rate_limit_rps"`
	RateLimitBurst int      `yaml:"rate_limit_burst" mapstructure:"rate_limit_burst"`
}

// AnalyzerConfig configures the scan backend client.
type AnalyzerConfig struct {
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`
}

// BillingConfig configures the payment backend client.
type BillingConfig struct {
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`
}

// StoreConfig configures the report database backend.
type StoreConfig struct {
	Driver      string     `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string     `yaml:"database_url" mapstructure:"database_url"`
	Pool        PoolConfig `yaml:"pool" mapstructure:"pool"`
}

// PoolConfig tunes the postgres connection pool. Ignored for sqlite.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// ExportConfig configures report export output.
type ExportConfig struct {
	ReportsDir string `yaml:"reports_dir" mapstructure:"reports_dir"`
}

// AdviceConfig points at an optional guidance catalog override.
type AdviceConfig struct {
	Path string `yaml:"path" mapstructure:"path"`
}

// SentryConfig configures crash reporting. Empty DSN disables it.
type SentryConfig struct {
	DSN         string `yaml:"dsn" mapstructure:"dsn"`
	Environment string `yaml:"environment" mapstructure:"environment"`
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
	v.SetEnvPrefix("PERFHUB")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.allowed_origins", []string{"*"})
	v.SetDefault("server.rate_limit_rps", 5.0)
	v.SetDefault("server.rate_limit_burst", 10)
	v.SetDefault("analyzer.base_url", "http://localhost:3001")
	v.SetDefault("billing.base_url", "http://localhost:3001")
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "perfhub.db")
	v.SetDefault("export.reports_dir", "reports")
	v.SetDefault("sentry.environment", "production")
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

// Validate checks the fields a command mode actually uses. Modes map to
// commands: serve needs everything, scan only talks to the analyzer,
// export and reports only read the store, status pings both backends.
func (c *Config) Validate(mode string) error {
	var needServer, needAnalyzer, needBilling, needStore bool
	switch mode {
	case "serve":
		needServer, needAnalyzer, needBilling, needStore = true, true, true, true
	case "scan":
		needAnalyzer = true
	case "export", "reports":
		needStore = true
	case "status":
		needAnalyzer, needBilling, needStore = true, true, true
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	var problems []string
	if needServer {
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			problems = append(problems, "server.port must be between 1 and 65535")
		}
		if c.Server.RateLimitRPS < 0 {
			problems = append(problems, "server.rate_limit_rps must be >= 0")
		}
		if c.Server.RateLimitRPS > 0 && c.Server.RateLimitBurst < 1 {
			problems = append(problems, "server.rate_limit_burst must be >= 1")
		}
	}
	if needAnalyzer && c.Analyzer.BaseURL == "" {
		problems = append(problems, "analyzer.base_url is required")
	}
	if needBilling && c.Billing.BaseURL == "" {
		problems = append(problems, "billing.base_url is required")
	}
	if needStore {
		switch c.Store.Driver {
		case "sqlite", "postgres":
		default:
			problems = append(problems, `store.driver must be "sqlite" or "postgres"`)
		}
		if c.Store.DatabaseURL == "" {
			problems = append(problems, "store.database_url is required")
		}
	}

	if len(problems) > 0 {
		return eris.New("config: " + strings.Join(problems, "; "))
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
