package cli

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"

	"github.com/weatherhub/weatherhub/internal/config"
	"github.com/weatherhub/weatherhub/internal/service"
	"github.com/weatherhub/weatherhub/internal/store"
)

// loadConfig resolves the effective configuration from defaults, the config
// file, WEATHERHUB_* variables and bound flags.
func loadConfig() (*config.AppConfig, error) {
	cfg, err := config.Load(viper.GetViper())
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	cfg.DataDir = resolveDataDir(cfg.DataDir)
	return cfg, nil
}

// resolveDataDir returns dir, or ~/.weatherhub when it is empty.
func resolveDataDir(dir string) string {
	if dir != "" {
		return dir
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".weatherhub")
}

// openStore opens the configured database. SQLite without an explicit DSN
// lives in <data_dir>/weatherhub.db.
func openStore(cfg *config.AppConfig) (*store.Store, error) {
	switch {
	case cfg.Database.Driver == string(store.DialectPostgres):
		return store.Open(store.DialectPostgres, cfg.Database.DSN)
	case cfg.Database.DSN != "":
		return store.Open(store.DialectSQLite, cfg.Database.DSN)
	default:
		return store.NewStore(cfg.DataDir)
	}
}

// newLogger builds the process logger. dev forces debug level.
func newLogger(cfg config.LogConfig, dev bool) *slog.Logger {
	level := slog.LevelInfo
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		level = slog.LevelInfo
	}
	if dev {
		level = slog.LevelDebug
	}
	opts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(cfg.Format, "json") {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}

// newTokenCodec builds the session codec. An unset secret is only tolerated
// in dev mode, where a throwaway one is generated per process.
func newTokenCodec(cfg *config.AppConfig, dev bool, logger *slog.Logger) (*service.TokenCodec, error) {
	secret := cfg.Auth.JWTSecret
	if secret == "" {
		if !dev {
			return nil, fmt.Errorf("auth.jwt_secret is not set (export %s_AUTH_JWT_SECRET or use --dev)", config.EnvPrefix)
		}
		raw, _, err := service.GenerateAPIKey("dev-")
		if err != nil {
			return nil, err
		}
		secret = raw
		logger.Warn("auth.jwt_secret not set, using an ephemeral secret; sessions will not survive a restart")
	}
	return service.NewTokenCodec(secret, cfg.Auth.JWTAlgorithm, cfg.Auth.TokenTTL)
}

// versionString returns a display version string.
func versionString() string {
	if appVersion == "" || appVersion == "dev" {
		return "dev"
	}
	if strings.HasPrefix(appVersion, "v") {
		return appVersion
	}
	return "v" + appVersion
}
