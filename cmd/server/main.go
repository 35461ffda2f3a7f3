// Command server runs the pmohub dossier service: it wires the storage
// backend, runs the one-time legacy migration, and exposes the document,
// scope, and progress operations over HTTP. Business logic lives in the
// internal services packages.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"pmohub/internal/dossier"
	"pmohub/internal/events"
	"pmohub/internal/kv"
	"pmohub/internal/migration"
	"pmohub/internal/platform/config"
	"pmohub/internal/platform/httpserver"
	"pmohub/internal/platform/logger"
	"pmohub/internal/platform/metrics"
	"pmohub/internal/platform/middleware"
	"pmohub/internal/platform/postgres"
	platformredis "pmohub/internal/platform/redis"
	"pmohub/internal/platform/token"
	"pmohub/internal/progress"
	"pmohub/internal/scope"
	"pmohub/internal/subform"
	httptransport "pmohub/internal/transport/http"
)

const eventBufferSize = 256

func main() {
	if err := run(); err != nil {
		slog.Error("server exited", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg := config.FromEnv()
	log := logger.New()
	m := metrics.New()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, cleanup, err := buildStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	bus := events.NewBus(log, m, eventBufferSize)
	schemas := subform.NewRegistry()

	registry, err := dossier.NewRegistry(store, bus, log, m)
	if err != nil {
		return err
	}
	payloads, err := dossier.NewPayloadStore(store, registry, schemas, bus, log, m, cfg.MaxArtifactBytes)
	if err != nil {
		return err
	}
	scopes, err := scope.NewService(store, registry, bus, log)
	if err != nil {
		return err
	}
	tracker, err := progress.NewTracker(store, registry, schemas, bus, log, m)
	if err != nil {
		return err
	}
	registry.AddCascade(payloads)
	registry.AddCascade(scopes)
	registry.AddCascade(tracker)

	engine, err := migration.NewEngine(store, registry, payloads, bus, log, m)
	if err != nil {
		return err
	}
	// Migration failures keep the legacy data untouched; retry next boot
	// rather than refuse to serve.
	if err := engine.Run(ctx); err != nil {
		log.ErrorContext(ctx, "legacy migration failed, will retry on next start", "error", err)
	}

	var auth func(http.Handler) http.Handler
	if cfg.JWTSigningKey != "" {
		auth = middleware.RequireAuth(token.NewValidator(cfg.JWTSigningKey), log)
	}

	handler := httptransport.NewHandler(registry, payloads, scopes, tracker, log)
	srv := httpserver.New(cfg.Addr, httptransport.NewRouter(handler, auth))

	group, ctx := errgroup.WithContext(ctx)

	if len(cfg.KafkaBrokers) > 0 {
		sink, err := events.NewKafkaSink(ctx, cfg.KafkaBrokers, cfg.KafkaTopic)
		if err != nil {
			return fmt.Errorf("kafka sink: %w", err)
		}
		defer sink.Close()
		worker := events.NewWorker(sink, bus.Outbox(), log)
		group.Go(func() error {
			if err := worker.Run(ctx); !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		})
	}

	group.Go(func() error {
		log.Info("starting pmohub", "addr", cfg.Addr, "store", cfg.Store)
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	group.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return group.Wait()
}

func buildStore(ctx context.Context, cfg config.Config) (kv.Store, func(), error) {
	noop := func() {}
	switch cfg.Store {
	case config.StoreMemory:
		return kv.NewMemory(cfg.StoreQuotaBytes), noop, nil

	case config.StoreRedis:
		client, err := platformredis.New(cfg.RedisURL)
		if err != nil {
			return nil, noop, fmt.Errorf("redis store: %w", err)
		}
		if client == nil {
			return nil, noop, errors.New("redis store selected but PMOHUB_REDIS_URL is empty")
		}
		return kv.NewRedis(client.Client), func() { _ = client.Close() }, nil

	case config.StorePostgres:
		pool, err := postgres.New(ctx, cfg.PostgresURL)
		if err != nil {
			return nil, noop, fmt.Errorf("postgres store: %w", err)
		}
		if pool == nil {
			return nil, noop, errors.New("postgres store selected but PMOHUB_POSTGRES_URL is empty")
		}
		store := kv.NewPostgres(pool)
		if err := store.EnsureSchema(ctx); err != nil {
			pool.Close()
			return nil, noop, err
		}
		return store, pool.Close, nil

	default:
		return nil, noop, fmt.Errorf("unknown store backend %q", cfg.Store)
	}
}
