package cli

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/weatherhub/weatherhub/internal/config"
	"github.com/weatherhub/weatherhub/internal/crawler"
	"github.com/weatherhub/weatherhub/internal/server"
	"github.com/weatherhub/weatherhub/internal/service"
	"github.com/weatherhub/weatherhub/internal/store"
	"github.com/weatherhub/weatherhub/internal/telemetry"
)

const banner = `
__      __         _   _             _  _      _
\ \    / /__ __ _ | |_| |_  ___ _ _ | || |_  _| |__
 \ \/\/ / -_) _' ||  _| ' \/ -_) '_|| __ | || | '_ \
  \_/\_/\___\__,_| \__|_||_\___|_|  |_||_|\_,_|_.__/
`

func newServeCmd() *cobra.Command {
	var (
		dev  bool
		seed bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the WeatherHub API server",
		Long:  "Start the HTTP server that exposes the auth, admin, agent and quota-gated weather APIs.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(dev, seed)
		},
	}

	cmd.Flags().IntP("port", "p", 8000, "HTTP listen port")
	cmd.Flags().String("host", "0.0.0.0", "HTTP listen host")
	cmd.Flags().BoolVar(&dev, "dev", false, "Enable development mode (debug logging, ephemeral JWT secret)")
	cmd.Flags().BoolVar(&seed, "seed", false, "Create the default agent settings if they are missing")

	viper.BindPFlag("server.port", cmd.Flags().Lookup("port"))
	viper.BindPFlag("server.host", cmd.Flags().Lookup("host"))

	return cmd
}

func runServe(dev, seed bool) error {
	fmt.Print(banner)
	fmt.Println()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger := newLogger(cfg.Log, dev)

	st, err := openStore(cfg)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	logger.Info("store opened", "dialect", st.Dialect(), "data_dir", cfg.DataDir)

	if err := telemetry.RegisterDBStats(st.DB(), "weatherhub"); err != nil {
		logger.Warn("failed to register db stats collector", "error", err)
	}

	ctx := context.Background()
	if seed {
		n, err := st.SeedDefaultSettings(ctx)
		if err != nil {
			st.Close()
			return fmt.Errorf("seed settings: %w", err)
		}
		logger.Info("default settings seeded", "created", n)
	}

	services, err := buildServices(cfg, st, dev, logger)
	if err != nil {
		st.Close()
		return err
	}

	hasAdmin, err := st.HasAnyAdmin(ctx)
	if err != nil {
		logger.Warn("failed to check for admin", "error", err)
	}
	if !hasAdmin {
		logger.Warn("no admin account found - run: weatherhub user create --admin --username <name>")
	}

	srvCfg := server.Config{
		Host:                cfg.Server.Host,
		Port:                cfg.Server.Port,
		ShutdownTimeout:     cfg.Server.ShutdownTimeout,
		CORSOrigins:         cfg.Server.CORSOrigins,
		MaxBodySize:         cfg.Server.MaxBodySize,
		Version:             versionString(),
		LoginRatePerMinute:  cfg.Auth.LoginRatePerMinute,
		APIKeyRatePerMinute: cfg.APIKey.RatePerMinute,
		DefaultQuota:        cfg.APIKey.DefaultQuota,
	}
	srv := server.New(srvCfg, st, services, logger)

	fmt.Printf("→ WeatherHub %s\n", versionString())
	fmt.Printf("→ Listening on http://%s:%d\n", srvCfg.Host, srvCfg.Port)
	fmt.Printf("→ OpenAPI:    http://%s:%d/openapi.json\n", srvCfg.Host, srvCfg.Port)
	fmt.Printf("→ Health:     http://%s:%d/healthz\n", srvCfg.Host, srvCfg.Port)
	fmt.Printf("→ Metrics:    http://%s:%d/metrics\n", srvCfg.Host, srvCfg.Port)
	fmt.Println()

	return srv.ListenAndServe()
}

// buildServices wires the application services on top of st.
func buildServices(cfg *config.AppConfig, st *store.Store, dev bool, logger *slog.Logger) (server.Services, error) {
	codec, err := newTokenCodec(cfg, dev, logger)
	if err != nil {
		return server.Services{}, err
	}
	return server.Services{
		Auth:    service.NewAuthService(st, codec),
		Keys:    service.NewKeyService(st, cfg.APIKey.Prefix),
		Weather: service.NewWeatherService(st, newCrawler(cfg, logger), logger),
	}, nil
}

func newCrawler(cfg *config.AppConfig, logger *slog.Logger) *crawler.Crawler {
	return crawler.New(crawler.Config{
		BaseURL:   cfg.Crawler.BaseURL,
		Timeout:   cfg.Crawler.Timeout,
		UserAgent: cfg.Crawler.UserAgent,
	}, logger)
}
