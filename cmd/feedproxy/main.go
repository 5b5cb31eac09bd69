package main

import (
	"context"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/echoloc/regioncache/internal/core/config"
	"github.com/echoloc/regioncache/internal/core/httpclient"
	"github.com/echoloc/regioncache/internal/core/observability"
	"github.com/echoloc/regioncache/internal/dedup"
	"github.com/echoloc/regioncache/internal/fetch"
	"github.com/echoloc/regioncache/internal/invalidation/kafkaconsumer"
	"github.com/echoloc/regioncache/internal/logger"
	"github.com/echoloc/regioncache/internal/server"
	"github.com/echoloc/regioncache/internal/store"
)

var Version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	cfg := config.FromEnv()

	zl := logger.Build(logger.Config{
		Level:     cfg.LogLevel,
		Console:   strings.ToLower(os.Getenv("LOG_CONSOLE")) == "true",
		Component: "feedproxy",
	}, os.Stdout)
	appLog := logger.NewSlog(&zl)

	observability.SetBackend(cfg.StoreBackend)
	observability.ExposeBuildInfo(Version)
	appLog.Info("starting feedproxy",
		"addr", cfg.Addr,
		"version", Version,
		"upstream", cfg.UpstreamURL,
		"store", cfg.StoreBackend,
		"expire", cfg.CacheExpireTime.String())

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st, err := store.New(ctx, cfg, appLog)
	if err != nil {
		appLog.Error("store setup failed", "err", err)
		return 1
	}

	engine, err := dedup.New(cfg, appLog, st)
	if err != nil {
		appLog.Error("engine setup failed", "err", err)
		return 1
	}
	defer engine.Cleanup(context.Background())

	fetcher, err := fetch.New(appLog, httpclient.NewOutbound(), cfg.UpstreamURL)
	if err != nil {
		appLog.Error("fetch client setup failed", "err", err)
		return 1
	}

	if cfg.Invalidation.Enabled {
		consumer := kafkaconsumer.New(kafkaconsumer.FromConfig(cfg), appLog, engine)
		go func() {
			if err := consumer.Start(ctx); err != nil {
				appLog.Error("invalidation consumer exited", "err", err)
			}
		}()
	}

	svc := server.NewService(appLog, engine, fetcher)
	if err := server.Run(ctx, cfg, appLog, svc); err != nil {
		appLog.Error("server exited with error", "err", err)
		return 1
	}
	appLog.Info("server stopped")
	return 0
}
