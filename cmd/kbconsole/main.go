// Command kbconsole opens a terminal console over an in-process knowledge
// engine. Type what a caller might say and see the ranked documents and
// the unit the injection stage would forward.
//
// Usage:
//
//	go run ./cmd/kbconsole [-config configs/development.yaml] [-corpus docs.yaml] [-log console.log]
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/joho/godotenv"

	"github.com/Adithya-Monish-Kumar-K/voice-context-engine/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/voice-context-engine/internal/console"
	"github.com/Adithya-Monish-Kumar-K/voice-context-engine/internal/knowledge/corpus"
	"github.com/Adithya-Monish-Kumar-K/voice-context-engine/internal/knowledge/engine"
	"github.com/Adithya-Monish-Kumar-K/voice-context-engine/internal/knowledge/index"
	"github.com/Adithya-Monish-Kumar-K/voice-context-engine/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/voice-context-engine/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/voice-context-engine/pkg/postgres"
)

func main() {
	_ = godotenv.Load()

	configPath := flag.String("config", "configs/development.yaml", "path to config file")
	corpusPath := flag.String("corpus", "", "YAML corpus file; overrides the configured source")
	logPath := flag.String("log", "", "write logs to this file instead of discarding them")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	if *corpusPath != "" {
		cfg.Corpus = config.CorpusConfig{Source: config.CorpusFile, Path: *corpusPath}
	}

	var logOut io.Writer = io.Discard
	if *logPath != "" {
		f, err := os.OpenFile(*logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to open log file: %v\n", err)
			os.Exit(1)
		}
		defer f.Close()
		logOut = f
	}
	logger.SetupWriter(logOut, cfg.Logging.Level, cfg.Logging.Format)

	eng, err := buildEngine(context.Background(), cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to build knowledge engine: %v\n", err)
		os.Exit(1)
	}

	p := tea.NewProgram(console.New(eng, analytics.NewAggregator(cfg.Analytics.TopK)), tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "console error: %v\n", err)
		os.Exit(1)
	}
}

func buildEngine(ctx context.Context, cfg *config.Config) (*engine.Engine, error) {
	var querier corpus.Querier
	if cfg.Corpus.Source == config.CorpusPostgres {
		db, err := postgres.New(ctx, cfg.Postgres)
		if err != nil {
			return nil, err
		}
		defer db.Close()
		querier = db.DB
	}
	docs, err := corpus.Load(ctx, cfg.Corpus, querier)
	if err != nil {
		return nil, err
	}
	idx, err := index.Build(docs)
	if err != nil {
		return nil, err
	}
	return engine.New(idx, engine.Options{
		TopN:         cfg.Knowledge.TopN,
		Threshold:    cfg.Knowledge.Threshold,
		KeywordBoost: cfg.Knowledge.KeywordBoost,
	}), nil
}
