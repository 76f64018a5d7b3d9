package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/angelmondragon/millflow-backend/api/routes"
	"github.com/angelmondragon/millflow-backend/internal/audit"
	"github.com/angelmondragon/millflow-backend/internal/authz"
	"github.com/angelmondragon/millflow-backend/internal/ledger"
	"github.com/angelmondragon/millflow-backend/internal/orders"
	"github.com/angelmondragon/millflow-backend/internal/production"
	"github.com/angelmondragon/millflow-backend/pkg/auth"
	"github.com/angelmondragon/millflow-backend/pkg/config"
	"github.com/angelmondragon/millflow-backend/pkg/db"
	"github.com/angelmondragon/millflow-backend/pkg/idempotency"
	"github.com/angelmondragon/millflow-backend/pkg/logger"
	"github.com/angelmondragon/millflow-backend/pkg/metrics"
	"github.com/angelmondragon/millflow-backend/pkg/migrate"
	"github.com/angelmondragon/millflow-backend/pkg/outbox"
	"github.com/angelmondragon/millflow-backend/pkg/redis"
)

const shutdownTimeout = 20 * time.Second

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

	var redisClient *redis.Client
	if cfg.Redis.Enabled() {
		redisClient, err = redis.New(context.Background(), cfg.Redis, logg)
		if err != nil {
			logg.Error(context.Background(), "failed to bootstrap redis", err)
			os.Exit(1)
		}
		defer func() {
			if err := redisClient.Close(); err != nil {
				logg.Error(context.Background(), "error closing redis", err)
			}
		}()
	} else {
		logg.Warn(context.Background(), "redis not configured, idempotency replay and rate limits disabled")
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	policy, err := authz.NewPolicy(cfg.Authorization)
	if err != nil {
		logg.Error(context.Background(), "failed to build confirmation policy", err)
		os.Exit(1)
	}

	ledgerSvc, err := ledger.NewService(ledger.NewRepository(dbClient.DB()))
	if err != nil {
		logg.Error(context.Background(), "failed to create ledger service", err)
		os.Exit(1)
	}
	outboxSvc := outbox.NewService(outbox.NewRepository(dbClient.DB()), logg)
	recorder := audit.NewRecorder(dbClient.DB(), logg)
	tasksRepo := production.NewRepository(dbClient.DB())
	confirmation := metrics.NewConfirmationMetrics(registry)

	ordersParams := orders.ServiceParams{
		Repo:      orders.NewRepository(dbClient.DB()),
		Tasks:     tasksRepo,
		Builder:   production.NewBuilder(cfg.Scheduling),
		Ledger:    ledgerSvc,
		Tx:        dbClient,
		Outbox:    outboxSvc,
		Audit:     recorder,
		Policy:    policy,
		Metrics:   confirmation,
		Validator: validator.New(),
		Logger:    logg,
	}
	if redisClient != nil {
		guard, err := idempotency.NewManager(redisClient, cfg.Eventing.ConfirmationGuardTTL)
		if err != nil {
			logg.Error(context.Background(), "failed to create confirmation guard", err)
			os.Exit(1)
		}
		ordersParams.Guard = guard
	}
	ordersSvc, err := orders.NewService(ordersParams)
	if err != nil {
		logg.Error(context.Background(), "failed to create orders service", err)
		os.Exit(1)
	}

	productionSvc, err := production.NewService(production.ServiceParams{
		Repo:    tasksRepo,
		Lines:   production.NewLineStore(dbClient.DB()),
		Ledger:  ledgerSvc,
		Tx:      dbClient,
		Outbox:  outboxSvc,
		Audit:   recorder,
		Metrics: confirmation,
		Logger:  logg,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create production service", err)
		os.Exit(1)
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	id := os.Getenv("DYNO")
	if id == "" {
		id = "local"
	}
	ctx := logg.WithFields(context.Background(), map[string]any{
		"env":      cfg.App.Env,
		"addr":     addr,
		"instance": id,
		"db":       dbClient.Dialect(),
		"redis":    redisClient != nil,
	})

	tokens, err := auth.NewIssuer(cfg.JWT)
	if err != nil {
		logg.Error(ctx, "invalid jwt config", err)
		os.Exit(1)
	}

	params := routes.Params{
		Config:     cfg,
		Logger:     logg,
		Tokens:     tokens,
		DB:         dbClient,
		Redis:      redisClient,
		Gatherer:   registry,
		HTTP:       metrics.NewHTTPMetrics(registry),
		Orders:     ordersSvc,
		Ledger:     ledgerSvc,
		Production: productionSvc,
	}

	server := &http.Server{
		Addr:         addr,
		Handler:      routes.NewRouter(params),
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
	}

	sigCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logg.Info(ctx, "starting api server")
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logg.Error(ctx, "api server stopped unexpectedly", err)
			os.Exit(1)
		}
	case <-sigCtx.Done():
		logg.Info(ctx, "api server shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logg.Error(ctx, "graceful shutdown failed", err)
		}
	}
}
