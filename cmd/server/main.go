package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/jonboulle/clockwork"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"

	"github.com/oggyb/survey-exchange/internal/app"
	"github.com/oggyb/survey-exchange/internal/auth"
	"github.com/oggyb/survey-exchange/internal/cache"
	"github.com/oggyb/survey-exchange/internal/config"
	"github.com/oggyb/survey-exchange/internal/db"
	"github.com/oggyb/survey-exchange/internal/logger"
	"github.com/oggyb/survey-exchange/internal/server"
	"github.com/oggyb/survey-exchange/internal/service/exchange"
	"github.com/oggyb/survey-exchange/internal/service/expiry"
)

func main() {
	cfg := config.New()

	// Init logger (global singleton)
	logger.InitFromConfig(cfg)
	log := logger.L() // slog.Logger pointer

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Init DB (migrates)
	database, err := db.NewDB(cfg)
	if err != nil {
		log.Error("failed to init db", "err", err)
		os.Exit(1)
	}

	// Init Redis
	redisCache := cache.NewRedisCache(cfg)
	redisCache.Logger = log
	if err := redisCache.Ping(ctx); err != nil {
		log.Error("failed to connect to redis", "err", err)
		os.Exit(1)
	}
	defer redisCache.Close()

	clock := clockwork.NewRealClock()
	appCtx := app.New(cfg, database, redisCache, clock, log)
	engines := app.BuildEngines(appCtx)

	if cfg.App.ENV == "development" {
		if err := db.SeedTestData(database, clock.Now()); err != nil {
			log.Error("failed to seed", "err", err)
		}
	}

	sweeps, err := expiry.NewScheduler(engines.Sweeper, clock, cfg.Exchange.SweepInterval, log)
	if err != nil {
		log.Error("failed to create expiry scheduler", "err", err)
		os.Exit(1)
	}
	if err := sweeps.Start(ctx); err != nil {
		log.Error("failed to start expiry scheduler", "err", err)
		os.Exit(1)
	}
	defer sweeps.Stop()

	grpcServer := server.NewGRPCServer(
		[]grpc.UnaryServerInterceptor{auth.UnaryInterceptor(appCtx.Tokens)},
		exchange.NewRegistrar(appCtx, engines),
	)
	router := exchange.NewHTTPHandler(appCtx, engines).Router()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("starting gRPC server", "addr", cfg.GRPC.Host+":"+cfg.GRPC.Port)
		return server.StartGRPCServer(gctx, cfg, grpcServer)
	})
	g.Go(func() error {
		log.Info("starting HTTP server", "addr", cfg.HTTP.Host+":"+cfg.HTTP.Port, "public_url", cfg.HTTP.PublicURL)
		return server.StartHTTPServer(gctx, cfg, router)
	})

	if err := g.Wait(); err != nil {
		log.Error("server stopped", "err", err)
		os.Exit(1)
	}
	log.Info("shutdown complete")
}
