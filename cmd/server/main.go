package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"calsync/internal/calendar/handler"
	"calsync/internal/calendar/metrics"
	"calsync/internal/calendar/normalize"
	"calsync/internal/calendar/reconcile"
	"calsync/internal/calendar/session"
	eventstore "calsync/internal/calendar/store/event"
	jobrunstore "calsync/internal/calendar/store/jobrun"
	"calsync/internal/calendar/store/snapshot"
	"calsync/internal/calendar/timezone"
	"calsync/internal/platform/config"
	"calsync/internal/platform/httpserver"
	"calsync/internal/platform/logger"
	"calsync/internal/platform/postgres"
	platformredis "calsync/internal/platform/redis"
	"calsync/internal/review"
	httptransport "calsync/internal/transport/http"
)

// main wires high-level dependencies, exposes the HTTP router, and keeps the
// server lifecycle small. Business logic lives in the internal packages.
func main() {
	cfg := config.FromEnv()
	log := logger.New()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := postgres.Open(ctx, cfg.Postgres)
	if err != nil {
		log.Error("postgres connection failed", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	policy, err := loadPolicy(cfg.Session.TimezonePolicyPath)
	if err != nil {
		log.Error("timezone policy load failed", "path", cfg.Session.TimezonePolicyPath, "error", err)
		os.Exit(1)
	}

	ingestMetrics := metrics.New()
	events := eventstore.NewPostgres(db)
	runs := jobrunstore.NewPostgres(db)
	engine := reconcile.New(events,
		reconcile.WithLogger(log),
		reconcile.WithMetrics(ingestMetrics),
		reconcile.WithConcurrency(cfg.Session.Concurrency),
	)

	runnerOpts := []session.Option{
		session.WithLogger(log),
		session.WithMetrics(ingestMetrics),
	}
	checks := map[string]httptransport.HealthCheck{
		"postgres": db.PingContext,
	}

	redisClient, err := platformredis.New(cfg.Redis)
	if err != nil {
		log.Error("redis connection failed", "error", err)
		os.Exit(1)
	}
	if redisClient != nil {
		defer redisClient.Close()
		runnerOpts = append(runnerOpts, session.WithSnapshotCache(
			snapshot.New(redisClient.Client, snapshot.WithLogger(log))))
		checks["redis"] = redisClient.Health
	}

	if len(cfg.Kafka.Brokers) > 0 {
		publisher, err := review.NewKafka(ctx, cfg.Kafka.Brokers, cfg.Kafka.ReviewTopic,
			review.WithLogger(log))
		if err != nil {
			log.Error("kafka connection failed", "brokers", cfg.Kafka.Brokers, "error", err)
			os.Exit(1)
		}
		defer publisher.Close()
		runnerOpts = append(runnerOpts, session.WithReviewPublisher(publisher))
	}

	runner := session.New(
		timezone.NewVerifier(policy),
		normalize.New(policy),
		engine,
		runs,
		runnerOpts...,
	)

	api := handler.New(runner, events, runs, handler.WithLogger(log))
	router := httptransport.NewRouter(log, api, checks)
	srv := httpserver.New(cfg.Server.Addr, router)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("starting calsync server", "addr", cfg.Server.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		log.Error("server exited", "error", err)
		os.Exit(1)
	}
	log.Info("server stopped")
}

func loadPolicy(path string) (timezone.Policy, error) {
	if path == "" {
		return timezone.DefaultPolicy(), nil
	}
	return timezone.LoadPolicy(path)
}
