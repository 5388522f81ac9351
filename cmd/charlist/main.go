package main

import (
	"context"
	"log"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/wowdash/charlist/pkg/api"
	"github.com/wowdash/charlist/pkg/auth"
	"github.com/wowdash/charlist/pkg/battlenet"
	"github.com/wowdash/charlist/pkg/config"
	"github.com/wowdash/charlist/pkg/prettylog"
	"github.com/wowdash/charlist/pkg/raiderio"
	"github.com/wowdash/charlist/pkg/roster"
	"github.com/wowdash/charlist/pkg/secrets"
)

func getEnv(name, defaultValue string) string {
	if value := os.Getenv(name); value != "" {
		return value
	}
	return defaultValue
}

func main() {
	godotenv.Load()

	if os.Getenv("PRETTY_LOGS") != "false" {
		logger := slog.New(prettylog.NewHandler(slog.LevelDebug))
		slog.SetDefault(logger)
	}

	configPath := getEnv("CHARLIST_CONFIG_PATH", "config/charlist.yaml")
	slog.Info("Loading config", "config_path", configPath)
	cfg, err := config.LoadConfigFile(configPath)
	if err != nil {
		log.Fatal(err)
	}

	secretsProvider := secrets.Cached(secrets.EnvProvider{})

	authManager, err := auth.NewManager(auth.Config{
		ProviderIssuer: cfg.ProviderIssuer,
		BaseDomain:     cfg.BaseDomain,
		Scopes:         cfg.Scopes,
	}, secretsProvider)
	if err != nil {
		log.Fatal(err)
	}

	raiderIOKey, err := secretsProvider.Get(context.Background(), secrets.NameRaiderIOKey)
	if err != nil {
		log.Fatal(err)
	}

	aggregator := roster.NewAggregator(
		battlenet.NewClient(),
		raiderio.NewClient(raiderIOKey),
		roster.WithMaxLevel(cfg.MaxLevel),
		roster.WithExpansionID(cfg.ExpansionID),
		roster.WithFanoutLimit(cfg.FanoutLimit),
	)

	var opts []api.Option
	if cfg.RequireOriginSecret {
		opts = append(opts, api.WithOriginCheck())
	}
	server := api.NewServer(authManager, aggregator, secretsProvider, opts...)

	root := echo.New()
	root.HideBanner = true
	root.Use(middleware.Recover())
	server.MountRoutes(root.Group("/api"))

	slog.Info("Starting character list API", "address", cfg.Address, "base_domain", cfg.BaseDomain)
	log.Fatal(root.Start(cfg.Address))
}
