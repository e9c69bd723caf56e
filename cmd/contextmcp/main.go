// Command contextmcp serves the knowledge_lookup MCP tool over stdio, or
// over SSE when -sse is given. Logs go to stderr so they never corrupt the
// stdio protocol stream.
//
// Usage:
//
//	go run ./cmd/contextmcp [-config configs/development.yaml] [-sse :8090]
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/mark3labs/mcp-go/server"

	"github.com/Adithya-Monish-Kumar-K/voice-context-engine/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/voice-context-engine/internal/knowledge/cache"
	"github.com/Adithya-Monish-Kumar-K/voice-context-engine/internal/knowledge/corpus"
	"github.com/Adithya-Monish-Kumar-K/voice-context-engine/internal/knowledge/engine"
	"github.com/Adithya-Monish-Kumar-K/voice-context-engine/internal/knowledge/index"
	"github.com/Adithya-Monish-Kumar-K/voice-context-engine/internal/mcpserver"
	"github.com/Adithya-Monish-Kumar-K/voice-context-engine/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/voice-context-engine/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/voice-context-engine/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/voice-context-engine/pkg/postgres"
	pkgredis "github.com/Adithya-Monish-Kumar-K/voice-context-engine/pkg/redis"
)

func main() {
	_ = godotenv.Load()

	configPath := flag.String("config", "configs/development.yaml", "path to config file")
	sseAddr := flag.String("sse", "", "serve over SSE on this address instead of stdio")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger.SetupWriter(os.Stderr, cfg.Logging.Level, cfg.Logging.Format)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	tool, cleanup, err := buildTool(ctx, cfg)
	if err != nil {
		slog.Error("failed to build lookup tool", "error", err)
		os.Exit(1)
	}
	defer cleanup()
	srv := mcpserver.New(tool)

	if *sseAddr != "" {
		sse := server.NewSSEServer(srv, server.WithBaseURL(fmt.Sprintf("http://%s", *sseAddr)))
		slog.Info("mcp server listening", "transport", "sse", "addr", *sseAddr)
		if err := sse.Start(*sseAddr); err != nil {
			slog.Error("sse server error", "error", err)
			os.Exit(1)
		}
		return
	}
	slog.Info("mcp server started", "transport", "stdio", "tool", mcpserver.ToolName)
	if err := server.ServeStdio(srv); err != nil {
		slog.Error("stdio server error", "error", err)
		os.Exit(1)
	}
}

// buildTool wires the engine, the optional Redis cache and analytics
// publishing. cleanup releases whatever was opened.
func buildTool(ctx context.Context, cfg *config.Config) (*mcpserver.LookupTool, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	var querier corpus.Querier
	if cfg.Corpus.Source == config.CorpusPostgres {
		db, err := postgres.New(ctx, cfg.Postgres)
		if err != nil {
			return nil, cleanup, err
		}
		closers = append(closers, func() { db.Close() })
		querier = db.DB
	}
	docs, err := corpus.Load(ctx, cfg.Corpus, querier)
	if err != nil {
		return nil, cleanup, err
	}
	idx, err := index.Build(docs)
	if err != nil {
		return nil, cleanup, err
	}
	eng := engine.New(idx, engine.Options{
		TopN:         cfg.Knowledge.TopN,
		Threshold:    cfg.Knowledge.Threshold,
		KeywordBoost: cfg.Knowledge.KeywordBoost,
	})

	resolver := mcpserver.EngineResolver(eng)
	if cfg.Cache.Enabled {
		redisClient, err := pkgredis.NewClient(ctx, cfg.Redis)
		if err != nil {
			slog.Warn("redis unavailable, lookup caching disabled", "error", err)
		} else {
			closers = append(closers, func() { redisClient.Close() })
			resolver = cache.New(redisClient, eng, cfg.Cache, nil)
		}
	}

	var tracker mcpserver.Tracker
	if cfg.Kafka.Enabled {
		producer := kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.AnalyticsEvents)
		collector := analytics.NewCollector(producer, nil, 1000)
		collector.Start(ctx)
		closers = append(closers, func() { producer.Close() }, collector.Close)
		tracker = collector
	}
	return mcpserver.NewLookupTool(resolver, eng.TopN(), eng.Index().Len(), tracker), cleanup, nil
}
