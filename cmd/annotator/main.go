// Command annotator runs the context-injection stage on a Kafka stream.
//
// It consumes transcript units from the transcripts topic, appends
// retrieved knowledge to text units and publishes every unit, in partition
// order, to the annotated topic. Lookup events go to the analytics topic.
//
// Usage:
//
//	go run ./cmd/annotator [-config configs/development.yaml]
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"github.com/Adithya-Monish-Kumar-K/voice-context-engine/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/voice-context-engine/internal/annotator"
	"github.com/Adithya-Monish-Kumar-K/voice-context-engine/internal/knowledge/cache"
	"github.com/Adithya-Monish-Kumar-K/voice-context-engine/internal/knowledge/corpus"
	"github.com/Adithya-Monish-Kumar-K/voice-context-engine/internal/knowledge/engine"
	"github.com/Adithya-Monish-Kumar-K/voice-context-engine/internal/knowledge/index"
	"github.com/Adithya-Monish-Kumar-K/voice-context-engine/internal/pipeline"
	"github.com/Adithya-Monish-Kumar-K/voice-context-engine/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/voice-context-engine/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/voice-context-engine/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/voice-context-engine/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/voice-context-engine/pkg/postgres"
	pkgredis "github.com/Adithya-Monish-Kumar-K/voice-context-engine/pkg/redis"
)

func main() {
	configPath := flag.String("config", "configs/development.yaml", "path to config file")
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

	if err := run(ctx, cfg); err != nil {
		slog.Error("annotator failed", "error", err)
		os.Exit(1)
	}
	slog.Info("annotator stopped")
}

func run(ctx context.Context, cfg *config.Config) error {
	slog.Info("starting annotator",
		"brokers", cfg.Kafka.Brokers,
		"input", cfg.Kafka.Topics.Transcripts,
		"output", cfg.Kafka.Topics.Annotated,
	)
	m := metrics.New(prometheus.DefaultRegisterer)

	var querier corpus.Querier
	if cfg.Corpus.Source == config.CorpusPostgres {
		db, err := postgres.New(ctx, cfg.Postgres)
		if err != nil {
			return fmt.Errorf("connecting to postgres: %w", err)
		}
		defer db.Close()
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

	var lookup pipeline.Lookuper = eng
	if cfg.Cache.Enabled {
		redisClient, err := pkgredis.NewClient(ctx, cfg.Redis)
		if err != nil {
			slog.Warn("redis unavailable, lookup caching disabled", "error", err)
		} else {
			defer redisClient.Close()
			lookup = cache.New(redisClient, eng, cfg.Cache, m)
		}
	}
	injector := pipeline.NewInjector(lookup, pipeline.Options{
		Timeout: cfg.Knowledge.LookupTimeout,
		Metrics: m,
	})

	analyticsProducer := kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.AnalyticsEvents)
	defer analyticsProducer.Close()
	collector := analytics.NewCollector(analyticsProducer, nil, 10000)
	collector.Start(ctx)
	defer collector.Close()

	output := kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.Annotated)
	defer output.Close()
	a := annotator.New(injector, output, collector, m)
	consumer := kafka.NewConsumer(cfg.Kafka, cfg.Kafka.Topics.Transcripts, a.Handle)

	g, gctx := errgroup.WithContext(ctx)
	if cfg.Metrics.Enabled {
		shutdownMetrics := metrics.StartServer(cfg.Metrics.Port)
		g.Go(func() error {
			<-gctx.Done()
			return shutdownMetrics(context.Background())
		})
	}
	g.Go(func() error {
		return annotator.Run(gctx, consumer)
	})
	return g.Wait()
}
