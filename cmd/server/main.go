package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"github.com/oggyb/campus-connect/internal/app"
	"github.com/oggyb/campus-connect/internal/cache"
	"github.com/oggyb/campus-connect/internal/config"
	"github.com/oggyb/campus-connect/internal/db"
	"github.com/oggyb/campus-connect/internal/httpapi"
	"github.com/oggyb/campus-connect/internal/logger"
	"github.com/oggyb/campus-connect/internal/server"
	"github.com/oggyb/campus-connect/internal/service/campus"
)

func main() {
	// .env is optional; real deployments set the environment directly
	_ = godotenv.Load()

	cfg := config.New()

	// Init logger (global singleton)
	logger.InitFromConfig(cfg)
	log := logger.L()

	if err := cfg.Validate(); err != nil {
		log.Error("invalid config", "err", err)
		os.Exit(1)
	}

	// Init DB
	database, err := db.NewDB(cfg)
	if err != nil {
		log.Error("failed to init db", "err", err)
		os.Exit(1)
	}

	// Init Redis
	redisCache := cache.NewRedisCache(cfg)
	if err := redisCache.Ping(context.Background()); err != nil {
		log.Error("failed to connect to redis", "err", err)
		os.Exit(1)
	}
	defer redisCache.Close()

	appCtx := app.New(cfg, database, redisCache, log)

	if cfg.App.ENV == "development" {
		if _, err := db.SeedTestData(database, log); err != nil {
			log.Error("failed to seed", "err", err)
		}
	}

	grpcServer := server.NewGRPCServer(cfg, appCtx.Auth, log.With("component", "grpc"),
		campus.NewRegistrar(appCtx),
	)
	httpServer := server.NewHTTPServer(cfg, httpapi.NewHandler(appCtx).Routes(), log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return grpcServer.Run(ctx) })
	g.Go(func() error { return httpServer.Run(ctx) })
	if appCtx.Relay != nil {
		g.Go(func() error { return appCtx.Relay.Run(ctx) })
	}

	if err := g.Wait(); err != nil {
		log.Error("server stopped", "err", err)
		os.Exit(1)
	}
	log.Info("server stopped")
}
