// Command contextd serves knowledge lookups and unit annotation over HTTP.
//
// It loads the corpus (embedded, file or Postgres), builds the in-memory
// index and exposes the lookup, annotate, documents, analytics and cache
// endpoints. Redis caching and Kafka analytics publishing are optional.
//
// Usage:
//
//	go run ./cmd/contextd [-config configs/development.yaml] [-seed]
package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"github.com/Adithya-Monish-Kumar-K/voice-context-engine/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/voice-context-engine/internal/analytics/store"
	"github.com/Adithya-Monish-Kumar-K/voice-context-engine/internal/api"
	"github.com/Adithya-Monish-Kumar-K/voice-context-engine/internal/knowledge/cache"
	"github.com/Adithya-Monish-Kumar-K/voice-context-engine/internal/knowledge/corpus"
	"github.com/Adithya-Monish-Kumar-K/voice-context-engine/internal/knowledge/engine"
	"github.com/Adithya-Monish-Kumar-K/voice-context-engine/internal/knowledge/index"
	"github.com/Adithya-Monish-Kumar-K/voice-context-engine/internal/pipeline"
	"github.com/Adithya-Monish-Kumar-K/voice-context-engine/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/voice-context-engine/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/voice-context-engine/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/voice-context-engine/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/voice-context-engine/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/voice-context-engine/pkg/middleware"
	"github.com/Adithya-Monish-Kumar-K/voice-context-engine/pkg/postgres"
	pkgredis "github.com/Adithya-Monish-Kumar-K/voice-context-engine/pkg/redis"
)

func main() {
	configPath := flag.String("config", "configs/development.yaml", "path to config file")
	seed := flag.Bool("seed", false, "write the embedded corpus to the postgres corpus table and exit")
	flag.Parse()

	_ = godotenv.Load()
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if *seed {
		if err := seedCorpus(ctx, cfg); err != nil {
			slog.Error("seeding corpus failed", "error", err)
			os.Exit(1)
		}
		return
	}
	if err := run(ctx, cfg); err != nil {
		slog.Error("context service failed", "error", err)
		os.Exit(1)
	}
	slog.Info("context service stopped")
}

func run(ctx context.Context, cfg *config.Config) error {
	slog.Info("starting context service", "port", cfg.Server.Port, "corpus_source", cfg.Corpus.Source)
	m := metrics.New(prometheus.DefaultRegisterer)
	checker := health.NewChecker()

	var db *postgres.Client
	if cfg.Corpus.Source == config.CorpusPostgres || cfg.Analytics.Persist {
		var err error
		db, err = postgres.New(ctx, cfg.Postgres)
		if err != nil {
			return fmt.Errorf("connecting to postgres: %w", err)
		}
		defer db.Close()
		checker.Register("postgres", health.PingCheck(db.Ping, health.StatusDegraded))
	}

	var querier corpus.Querier
	if db != nil {
		querier = db.DB
	}
	docs, err := corpus.Load(ctx, cfg.Corpus, querier)
	if err != nil {
		return fmt.Errorf("loading corpus: %w", err)
	}
	idx, err := index.Build(docs)
	if err != nil {
		return fmt.Errorf("building index: %w", err)
	}
	eng := engine.New(idx, engine.Options{
		TopN:         cfg.Knowledge.TopN,
		Threshold:    cfg.Knowledge.Threshold,
		KeywordBoost: cfg.Knowledge.KeywordBoost,
		Metrics:      m,
	})
	slog.Info("knowledge index built",
		"documents", idx.Len(),
		"terms", idx.Vocabulary(),
		"fingerprint", idx.Fingerprint(),
	)
	checker.Register("index", health.Static(health.StatusUp, fmt.Sprintf("%d documents", idx.Len())))

	var lookupCache *cache.LookupCache
	var lookup pipeline.Lookuper = eng
	if cfg.Cache.Enabled {
		redisClient, err := pkgredis.NewClient(ctx, cfg.Redis)
		if err != nil {
			slog.Warn("redis unavailable, lookup caching disabled", "error", err)
			checker.Register("redis", health.Static(health.StatusDegraded, err.Error()))
		} else {
			defer redisClient.Close()
			lookupCache = cache.New(redisClient, eng, cfg.Cache, m)
			lookup = lookupCache
			checker.Register("redis", health.PingCheck(redisClient.Ping, health.StatusDegraded))
			slog.Info("lookup cache enabled", "addr", cfg.Redis.Addr, "ttl", cfg.Cache.TTL)
		}
	}
	injector := pipeline.NewInjector(lookup, pipeline.Options{
		Timeout: cfg.Knowledge.LookupTimeout,
		Metrics: m,
	})

	aggregator := analytics.NewAggregator(cfg.Analytics.TopK)
	var publisher analytics.Publisher
	if cfg.Kafka.Enabled {
		producer := kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.AnalyticsEvents)
		defer producer.Close()
		publisher = producer
		slog.Info("publishing lookup analytics", "topic", cfg.Kafka.Topics.AnalyticsEvents)
	}
	collector := analytics.NewCollector(publisher, aggregator, 10000)
	collector.Start(ctx)
	defer collector.Close()

	if cfg.Analytics.Persist && db != nil {
		snapshots := store.New(db.DB)
		if err := snapshots.Migrate(ctx); err != nil {
			return err
		}
		snapshots.StartPeriodicSave(ctx, aggregator, cfg.Analytics.SnapshotInterval)
	}

	h := api.New(eng, lookupCache, injector, collector)
	mux := http.NewServeMux()
	h.Register(mux)
	mux.HandleFunc("GET /api/v1/analytics", analytics.NewHandler(aggregator).Stats)
	mux.HandleFunc("GET /health/live", checker.LiveHandler())
	mux.HandleFunc("GET /health/ready", checker.ReadyHandler())

	var chain http.Handler = mux
	chain = middleware.Timeout(cfg.Server.RequestTimeout)(chain)
	chain = middleware.Metrics(m, mux)(chain)
	chain = middleware.RequestID(chain)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      chain,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)
	if cfg.Metrics.Enabled {
		shutdownMetrics := metrics.StartServer(cfg.Metrics.Port)
		g.Go(func() error {
			<-gctx.Done()
			return shutdown(cfg.Server.ShutdownTimeout, shutdownMetrics)
		})
	}
	g.Go(func() error {
		slog.Info("context service listening", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		slog.Info("shutdown signal received")
		return shutdown(cfg.Server.ShutdownTimeout, server.Shutdown)
	})
	return g.Wait()
}

func shutdown(timeout time.Duration, fn func(context.Context) error) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := fn(ctx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

func seedCorpus(ctx context.Context, cfg *config.Config) error {
	docs, err := corpus.Default()
	if err != nil {
		return err
	}
	db, err := postgres.New(ctx, cfg.Postgres)
	if err != nil {
		return fmt.Errorf("connecting to postgres: %w", err)
	}
	defer db.Close()
	if err := db.InTx(ctx, func(tx *sql.Tx) error {
		return corpus.Seed(ctx, tx, cfg.Corpus.Table, docs)
	}); err != nil {
		return err
	}
	slog.Info("corpus seeded", "table", cfg.Corpus.Table, "documents", len(docs))
	return nil
}
