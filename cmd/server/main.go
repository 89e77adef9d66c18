// main wires high-level dependencies, exposes the HTTP router, and keeps the
// server lifecycle small. Business logic lives in internal service packages.
package main

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"golang.org/x/sync/errgroup"

	"identity-link/internal/audit"
	contacthandler "identity-link/internal/contact/handler"
	"identity-link/internal/contact/lock"
	contactmetrics "identity-link/internal/contact/metrics"
	"identity-link/internal/contact/service"
	contactstore "identity-link/internal/contact/store"
	"identity-link/internal/platform/config"
	"identity-link/internal/platform/httpserver"
	"identity-link/internal/platform/logger"
	platformmetrics "identity-link/internal/platform/metrics"
	"identity-link/internal/platform/middleware"
	platformredis "identity-link/internal/platform/redis"
	httptransport "identity-link/internal/transport/http"
)

func main() {
	cfg := config.FromEnv()
	log := logger.New()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Error("server exited", "error", err.Error())
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config, log *slog.Logger) error {
	checks := map[string]httptransport.HealthCheck{}

	// Contact store: PostgreSQL when configured, in-memory otherwise.
	var tx contactstore.Tx
	if cfg.Postgres.URL != "" {
		db, err := sql.Open("postgres", cfg.Postgres.URL)
		if err != nil {
			return err
		}
		defer db.Close()
		if err := db.PingContext(ctx); err != nil {
			return err
		}
		pg := contactstore.NewPostgresStore(db)
		if err := pg.EnsureSchema(ctx); err != nil {
			return err
		}
		tx = pg
		checks["postgres"] = db.PingContext
		log.Info("using postgres contact store")
	} else {
		tx = contactstore.NewShardedTx(contactstore.NewInMemoryStore())
		log.Info("using in-memory contact store")
	}

	// Optional cross-replica identifier lock.
	var locker lock.Locker
	redisClient, err := platformredis.New(cfg.Redis)
	if err != nil {
		return err
	}
	if redisClient != nil {
		defer redisClient.Close()
		locker = lock.NewRedisLocker(redisClient.Client)
		checks["redis"] = redisClient.Health
		log.Info("identifier lock enabled")
	}

	// Audit trail: Kafka when brokers are configured, in-memory otherwise.
	var sink audit.Sink
	if len(cfg.Kafka.Brokers) > 0 {
		kafkaSink, err := audit.NewKafkaSink(cfg.Kafka.Brokers, cfg.Kafka.Topic)
		if err != nil {
			return err
		}
		defer kafkaSink.Close()
		if err := kafkaSink.EnsureTopic(ctx); err != nil {
			return err
		}
		sink = kafkaSink
		log.Info("audit trail publishing to kafka", "topic", cfg.Kafka.Topic)
	} else {
		sink = audit.NewInMemorySink()
	}
	publisher := audit.NewPublisher(log)
	worker := audit.NewWorker(sink, publisher.Inbox(), log)

	contacts := service.New(tx,
		service.WithLogger(log),
		service.WithMetrics(contactmetrics.New()),
		service.WithAudit(publisher),
		service.WithLocker(locker),
	)

	var validator middleware.JWTValidator
	if cfg.Server.JWTSigningKey != "" {
		validator = middleware.NewHS256Validator(cfg.Server.JWTSigningKey)
	}
	handler := contacthandler.New(contacts, log, platformmetrics.New(), validator, cfg.Server.RequestTimeout)
	router := httptransport.NewRouter(handler, checks)
	srv := httpserver.New(cfg.Server.Addr, router, cfg.Server.RequestTimeout)

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		log.Info("starting identity-link", "addr", cfg.Server.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}
