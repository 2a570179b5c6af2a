package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"

	"github.com/simcheck/simcheck/internal/broker"
	"github.com/simcheck/simcheck/internal/config"
	"github.com/simcheck/simcheck/internal/infra"
	"github.com/simcheck/simcheck/internal/logging"
	"github.com/simcheck/simcheck/internal/provider"
	"github.com/simcheck/simcheck/internal/routes"
	"github.com/simcheck/simcheck/internal/server"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	logger := logging.New(cfg.LogLevel)

	ctx := context.Background()

	var cache *redis.Client
	if cfg.RedisURL != "" {
		cache, err = infra.NewRedisClient(ctx, infra.RedisOptions{URL: cfg.RedisURL, Timeout: cfg.RedisTimeout})
		if err != nil {
			logger.Error("connect redis", "error", err)
			os.Exit(1)
		}
		defer func() {
			if err := cache.Close(); err != nil {
				logger.Warn("close redis", "error", err)
			}
		}()
	} else {
		logger.Warn("REDIS_URL not set, idempotency disabled")
	}

	deps := routes.Deps{Cfg: cfg, Cache: cache, Logger: logger}
	if err := cfg.RequireProviderCredentials(); err != nil {
		if !cfg.IsDev() {
			logger.Error("provider credentials", "error", err)
			os.Exit(1)
		}
		static := broker.NewStaticProvider("http://localhost" + cfg.Address())
		deps.Provider, deps.Static = static, static
		logger.Warn("provider credentials missing, using static provider", "reason", err.Error())
	} else {
		deps.Provider = provider.New(provider.Config{
			BaseURL:      cfg.ProviderBaseURL,
			ClientID:     cfg.ProviderClientID,
			ClientSecret: cfg.ProviderClientSecret,
			CheckVersion: cfg.CheckAPIVersion,
			Timeout:      cfg.RequestTimeout,
		}, logger)
		logger.Info("provider configured", slog.String("base_url", cfg.ProviderBaseURL), slog.String("check_version", cfg.CheckAPIVersion))
	}

	srv, err := server.New(deps)
	if err != nil {
		logger.Error("build server", "error", err)
		os.Exit(1)
	}

	srvErrCh := make(chan error, 1)
	go func() {
		srvErrCh <- srv.Listen()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Info("shutdown signal received", "signal", sig.String())
	case err := <-srvErrCh:
		if err != nil {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
		return
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownPeriod)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", "error", err)
		os.Exit(1)
	}

	logger.Info("server exited cleanly")
}
