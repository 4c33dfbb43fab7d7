package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"farm-ledger/internal/adapters/cli"
	"farm-ledger/internal/app"
	"farm-ledger/internal/config"
	"farm-ledger/internal/core"
	"farm-ledger/internal/db"
	"farm-ledger/internal/events"
	"farm-ledger/internal/logger"
	"farm-ledger/migrations"

	"go.uber.org/zap"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		if errors.Is(err, cli.ErrUsage) {
			os.Exit(2)
		}
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	log := logger.New(&logger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: cfg.Log.Output,
	}).With(zap.String("app", cfg.App.Name), zap.String("env", cfg.App.Env))
	defer func() { _ = log.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	args := os.Args[1:]
	if len(args) == 0 {
		return fmt.Errorf("%w: farmledger <command>\n  migrate, watch\n%s", cli.ErrUsage, cli.Usage)
	}

	pool, err := db.NewPool(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("unable to connect to database: %w", err)
	}
	defer pool.Close()

	if args[0] == "migrate" {
		result, err := db.Migrate(ctx, pool, migrations.FS, log)
		if err != nil {
			return err
		}
		log.Info("migrations complete", zap.Strings("applied", result.Applied), zap.Int("skipped", len(result.Skipped)))
		return nil
	}

	var publisher *events.RedisPublisher
	if cfg.Events.RedisURL != "" {
		publisher, err = events.NewRedisPublisherFromURL(ctx, cfg.Events.RedisURL,
			events.WithChannel(cfg.Events.Channel),
			events.WithRedisLogger(log.Named("redis")))
		if err != nil {
			return err
		}
		defer publisher.Close()
	}

	if args[0] == "watch" {
		return watch(ctx, publisher, cfg.Events.Buffer, log)
	}

	opts := []core.Option{core.WithLogger(log)}
	if publisher != nil {
		opts = append(opts, core.WithNotifier(publisher))
	}
	svc := app.NewAppService(pool, cfg.Engine.DefaultActor, opts...)
	return cli.Run(ctx, svc, cfg.Engine.DefaultActor, os.Stdout, args)
}

// watch prints change events published by other engine processes until interrupted.
// Events pass through a Broadcaster so a slow terminal drops lines instead of
// stalling the Redis subscription.
func watch(ctx context.Context, publisher *events.RedisPublisher, buffer int, log *zap.Logger) error {
	if publisher == nil {
		return errors.New("watch needs events.redis_url (FARM_EVENTS_REDIS_URL) to be set")
	}
	broadcaster := events.NewBroadcaster(buffer, log.Named("events"))
	ch, unsubscribe := broadcaster.Subscribe()
	defer unsubscribe()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for ev := range ch {
			fmt.Printf("%s  %-8s %-14s %-16s by %s\n",
				ev.At.Local().Format("2006-01-02 15:04:05"), ev.Entity, ev.Kind, ev.ID, ev.Actor)
		}
	}()

	log.Info("watching change events")
	err := publisher.Subscribe(ctx, func(ev core.ChangeEvent) {
		broadcaster.NotifyChange(ctx, ev)
	})
	broadcaster.Close()
	<-done
	if n := broadcaster.Dropped(); n > 0 {
		log.Warn("change events dropped while watching", zap.Int64("dropped", n))
	}
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
