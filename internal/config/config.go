package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment override, e.g.
// WEATHERHUB_AUTH_JWT_SECRET for auth.jwt_secret.
const EnvPrefix = "WEATHERHUB"

// AppConfig is the resolved configuration, built once at startup and passed to
// constructors.
type AppConfig struct {
	DataDir  string         `mapstructure:"data_dir"`
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Auth     AuthConfig     `mapstructure:"auth"`
	APIKey   APIKeyConfig   `mapstructure:"api_key"`
	Crawler  CrawlerConfig  `mapstructure:"crawler"`
	MCP      MCPConfig      `mapstructure:"mcp"`
	Log      LogConfig      `mapstructure:"log"`
}

// ServerConfig controls the HTTP server behavior.
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	CORSOrigins     []string      `mapstructure:"cors_origins"`
	MaxBodySize     int64         `mapstructure:"max_body_size"`
}

// DatabaseConfig selects the store backend. An empty DSN with the sqlite
// driver means <data_dir>/weatherhub.db.
type DatabaseConfig struct {
	Driver string `mapstructure:"driver"`
	DSN    string `mapstructure:"dsn"`
}

// AuthConfig controls session tokens and login throttling.
type AuthConfig struct {
	JWTSecret          string        `mapstructure:"jwt_secret"`
	JWTAlgorithm       string        `mapstructure:"jwt_algorithm"`
	TokenTTL           time.Duration `mapstructure:"token_ttl"`
	LoginRatePerMinute int           `mapstructure:"login_rate_per_minute"`
}

// APIKeyConfig controls key generation and per-key throttling.
type APIKeyConfig struct {
	Prefix        string `mapstructure:"prefix"`
	DefaultQuota  int64  `mapstructure:"default_quota"`
	RatePerMinute int    `mapstructure:"rate_per_minute"`
}

// CrawlerConfig controls the history page crawler.
type CrawlerConfig struct {
	BaseURL   string        `mapstructure:"base_url"`
	Timeout   time.Duration `mapstructure:"timeout"`
	UserAgent string        `mapstructure:"user_agent"`
}

// MCPConfig controls the MCP server started by `weatherhub mcp`.
type MCPConfig struct {
	Transport string `mapstructure:"transport"`
	Port      int    `mapstructure:"port"`
}

// LogConfig controls log output.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// defaults holds every known key with its default value. It is the single
// source for viper defaults and for `config init`.
var defaults = map[string]interface{}{
	"data_dir":                   "",
	"server.host":                "0.0.0.0",
	"server.port":                8000,
	"server.shutdown_timeout":    30 * time.Second,
	"server.cors_origins":        []string{"*"},
	"server.max_body_size":       int64(1 << 20),
	"database.driver":            "sqlite",
	"database.dsn":               "",
	"auth.jwt_secret":            "",
	"auth.jwt_algorithm":         "HS256",
	"auth.token_ttl":             24 * time.Hour,
	"auth.login_rate_per_minute": 20,
	"api_key.prefix":             "sk-",
	"api_key.default_quota":      int64(1000),
	"api_key.rate_per_minute":    600,
	"crawler.base_url":           "http://www.tianqihoubao.com/lishi",
	"crawler.timeout":            8 * time.Second,
	"crawler.user_agent":         "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0 Safari/537.36",
	"mcp.transport":              "stdio",
	"mcp.port":                   3001,
	"log.level":                  "info",
	"log.format":                 "text",
}

// SetDefaults registers defaults and environment binding on v.
func SetDefaults(v *viper.Viper) {
	for k, val := range defaults {
		v.SetDefault(k, val)
	}
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
}

// Load resolves an AppConfig from v and validates it.
func Load(v *viper.Viper) (*AppConfig, error) {
	var cfg AppConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks values that would otherwise fail late at request time.
func (c *AppConfig) Validate() error {
	var errs []error
	switch c.Database.Driver {
	case "sqlite", "postgres":
	default:
		errs = append(errs, fmt.Errorf("database.driver must be sqlite or postgres, got %q", c.Database.Driver))
	}
	if c.Database.Driver == "postgres" && c.Database.DSN == "" {
		errs = append(errs, errors.New("database.dsn is required for postgres"))
	}
	switch c.Auth.JWTAlgorithm {
	case "HS256", "HS384", "HS512":
	default:
		errs = append(errs, fmt.Errorf("auth.jwt_algorithm must be HS256, HS384 or HS512, got %q", c.Auth.JWTAlgorithm))
	}
	if c.Auth.TokenTTL <= 0 {
		errs = append(errs, errors.New("auth.token_ttl must be positive"))
	}
	if c.APIKey.DefaultQuota < 0 {
		errs = append(errs, errors.New("api_key.default_quota must not be negative"))
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port out of range: %d", c.Server.Port))
	}
	return errors.Join(errs...)
}
