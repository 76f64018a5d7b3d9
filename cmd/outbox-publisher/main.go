package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/google/uuid"
	"github.com/joho/godotenv"

	"github.com/angelmondragon/millflow-backend/pkg/config"
	"github.com/angelmondragon/millflow-backend/pkg/db"
	"github.com/angelmondragon/millflow-backend/pkg/logger"
	"github.com/angelmondragon/millflow-backend/pkg/migrate"
	"github.com/angelmondragon/millflow-backend/pkg/outbox"
	"github.com/angelmondragon/millflow-backend/pkg/outbox/registry"
)

func main() {
	requeue := flag.String("requeue", "", "comma separated event ids to move from the DLQ back into the outbox, then exit")
	listDLQ := flag.Int("list-dlq", 0, "print the newest N dead letters and exit")
	flag.Parse()

	logg := logger.New(logger.Options{ServiceName: "outbox-publisher"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	cfg.Service.Kind = "outbox-publisher"

	logg = logger.New(logger.Options{
		ServiceName: "outbox-publisher",
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

	dlqRepo := outbox.NewDLQRepository(dbClient.DB())
	if *listDLQ > 0 {
		if err := printDLQ(context.Background(), dlqRepo, *listDLQ); err != nil {
			logg.Error(context.Background(), "failed to list dead letters", err)
			os.Exit(1)
		}
		return
	}
	if *requeue != "" {
		if err := requeueEvents(context.Background(), logg, dlqRepo, *requeue); err != nil {
			logg.Error(context.Background(), "requeue failed", err)
			os.Exit(1)
		}
		return
	}

	brk, brokerName, err := newBroker(context.Background(), cfg, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap broker", err)
		os.Exit(1)
	}
	defer func() {
		if err := brk.Close(); err != nil {
			logg.Error(context.Background(), "error closing broker", err)
		}
	}()

	eventRegistry, err := registry.NewEventRegistry(cfg.PubSub)
	if err != nil {
		logg.Error(context.Background(), "failed to build event registry", err)
		os.Exit(1)
	}
	service, err := NewService(ServiceParams{
		Config:        cfg,
		Logger:        logg,
		DB:            dbClient,
		Broker:        brk,
		BrokerName:    brokerName,
		Repository:    outbox.NewRepository(dbClient.DB()),
		Registry:      eventRegistry,
		DLQRepository: dlqRepo,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create outbox publisher", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":         cfg.App.Env,
		"serviceKind": cfg.Service.Kind,
		"broker":      brokerName,
		"topics":      eventRegistry.Topics(),
	})
	logg.Info(ctx, "starting outbox publisher")

	if err := service.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "outbox publisher stopped unexpectedly", err)
		os.Exit(1)
	}

	logg.Info(ctx, "outbox publisher shutting down gracefully")
}

func printDLQ(ctx context.Context, repo *outbox.DLQRepository, limit int) error {
	rows, err := repo.ListRecent(ctx, limit)
	if err != nil {
		return err
	}
	for _, row := range rows {
		msg := ""
		if row.ErrorMessage != nil {
			msg = *row.ErrorMessage
		}
		fmt.Printf("%s\t%s\t%s\t%d\t%s\t%s\n",
			row.EventID, row.EventType, row.ErrorReason, row.AttemptCount,
			row.FailedAt.UTC().Format("2006-01-02T15:04:05Z"), msg)
	}
	return nil
}

func requeueEvents(ctx context.Context, logg *logger.Logger, repo *outbox.DLQRepository, raw string) error {
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := uuid.Parse(part)
		if err != nil {
			return fmt.Errorf("invalid event id %q: %w", part, err)
		}
		if err := repo.Requeue(ctx, id); err != nil {
			return fmt.Errorf("requeue %s: %w", id, err)
		}
		logg.Info(logg.WithField(ctx, "eventId", id.String()), "event requeued")
	}
	return nil
}
