package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/angelmondragon/rifa-backend/api/routes"
	"github.com/angelmondragon/rifa-backend/internal/allocation"
	"github.com/angelmondragon/rifa-backend/internal/orders"
	"github.com/angelmondragon/rifa-backend/internal/raffles"
	"github.com/angelmondragon/rifa-backend/pkg/config"
	"github.com/angelmondragon/rifa-backend/pkg/db"
	"github.com/angelmondragon/rifa-backend/pkg/env"
	"github.com/angelmondragon/rifa-backend/pkg/instance"
	"github.com/angelmondragon/rifa-backend/pkg/logger"
	"github.com/angelmondragon/rifa-backend/pkg/metrics"
	"github.com/angelmondragon/rifa-backend/pkg/migrate"
	"github.com/angelmondragon/rifa-backend/pkg/outbox"
	"github.com/angelmondragon/rifa-backend/pkg/paypal"
	"github.com/angelmondragon/rifa-backend/pkg/redis"
)

const shutdownTimeout = 15 * time.Second

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "api",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
		Format:      cfg.App.LogFormat,
	})

	dbClient, err := db.New(context.Background(), cfg.DB, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(context.Background(), cfg, logg, dbClient); err != nil {
		logg.Error(context.Background(), "failed to run dev migrations", err)
		os.Exit(1)
	}

	var redisStore routes.RedisStore
	if cfg.Redis.Enabled() {
		redisClient, err := redis.New(context.Background(), cfg.Redis, logg)
		if err != nil {
			logg.Error(context.Background(), "failed to bootstrap redis", err)
			os.Exit(1)
		}
		defer func() {
			if err := redisClient.Close(); err != nil {
				logg.Error(context.Background(), "error closing redis", err)
			}
		}()
		redisStore = redisClient
	} else {
		logg.Warn(context.Background(), "redis not configured; idempotency keys and rate limits disabled")
	}

	paypalClient, err := paypal.NewClient(context.Background(), cfg.PayPal, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create paypal client", err)
		os.Exit(1)
	}
	gateway, err := orders.NewPayPalGateway(paypalClient)
	if err != nil {
		logg.Error(context.Background(), "failed to create payment gateway", err)
		os.Exit(1)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	handler, err := buildHandler(cfg, logg, dbClient, redisStore, gateway, reg)
	if err != nil {
		logg.Error(context.Background(), "failed to wire services", err)
		os.Exit(1)
	}

	addr := ":" + env.Get("PORT", cfg.App.Port)
	ctx := logg.WithFields(context.Background(), map[string]any{
		"env":      cfg.App.Env,
		"addr":     addr,
		"instance": instance.GetID("local"),
	})
	logg.Info(ctx, "starting api server")

	server := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	sigCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- server.ListenAndServe()
	}()

	select {
	case err := <-serveErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logg.Error(ctx, "api server stopped unexpectedly", err)
			os.Exit(1)
		}
	case <-sigCtx.Done():
		logg.Info(ctx, "shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logg.Error(ctx, "graceful shutdown failed", err)
		}
	}
	logg.Info(ctx, "api server stopped")
}

// buildHandler wires repositories, services and the router.
func buildHandler(cfg *config.Config, logg *logger.Logger, dbClient *db.Client, redisStore routes.RedisStore, gateway orders.PaymentGateway, reg *prometheus.Registry) (http.Handler, error) {
	gormDB := dbClient.DB()
	publisher := outbox.NewService(outbox.NewRepository(gormDB), logg)
	raffleRepo := raffles.NewRepository(gormDB)
	orderRepo := orders.NewRepository(gormDB)

	raffleSvc, err := raffles.NewService(dbClient, raffleRepo, publisher)
	if err != nil {
		return nil, err
	}

	engine, err := allocation.NewEngine(allocation.EngineParams{
		DB:          dbClient,
		Outbox:      publisher,
		Logger:      logg,
		Metrics:     metrics.NewAllocationMetrics(reg),
		MaxAttempts: cfg.Allocation.MaxAttempts,
		BaseBackoff: cfg.Allocation.BaseBackoff,
	})
	if err != nil {
		return nil, err
	}

	intake, err := orders.NewIntake(orders.IntakeParams{
		DB:      dbClient,
		Raffles: raffleRepo,
		Orders:  orderRepo,
		Gateway: gateway,
		Outbox:  publisher,
		Logger:  logg,
		MaxQty:  cfg.Allocation.MaxQty,
	})
	if err != nil {
		return nil, err
	}

	capturer, err := orders.NewCapturer(orders.CapturerParams{
		DB:        dbClient,
		Orders:    orderRepo,
		Gateway:   gateway,
		Allocator: engine,
		Outbox:    publisher,
		Logger:    logg,
	})
	if err != nil {
		return nil, err
	}

	query, err := orders.NewQuery(orderRepo, raffleRepo)
	if err != nil {
		return nil, err
	}

	return routes.NewRouter(cfg, logg, routes.Dependencies{
		DB:          dbClient,
		Redis:       redisStore,
		Gatherer:    reg,
		HTTPMetrics: metrics.NewHTTPMetrics(reg),
		Raffles:     raffleSvc,
		Intake:      intake,
		Capturer:    capturer,
		Query:       query,
	}), nil
}
