package corpus

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/Adithya-Monish-Kumar-K/voice-context-engine/internal/knowledge/index"
	"github.com/Adithya-Monish-Kumar-K/voice-context-engine/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/voice-context-engine/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/voice-context-engine/pkg/resilience"
)

// Load resolves the configured source to documents. db is only consulted
// for the postgres source and may be nil otherwise. Postgres reads are
// retried; a malformed corpus is not.
func Load(ctx context.Context, cfg config.CorpusConfig, db Querier) ([]index.Document, error) {
	logger := slog.Default().With("component", "corpus", "source", cfg.Source)
	var (
		docs []index.Document
		err  error
	)
	switch cfg.Source {
	case config.CorpusEmbedded, "":
		docs, err = Default()
	case config.CorpusFile:
		docs, err = LoadFile(cfg.Path)
	case config.CorpusPostgres:
		if db == nil {
			return nil, fmt.Errorf("%w: postgres corpus source without a database", apperrors.ErrInvalidInput)
		}
		err = resilience.Retry(ctx, "load-corpus", resilience.RetryConfig{
			MaxAttempts: 5,
			Retryable: func(err error) bool {
				return !errors.Is(err, apperrors.ErrInvalidInput)
			},
		}, func() error {
			var loadErr error
			docs, loadErr = LoadPostgres(ctx, db, cfg.Table)
			return loadErr
		})
	default:
		return nil, fmt.Errorf("%w: unknown corpus source %q", apperrors.ErrInvalidInput, cfg.Source)
	}
	if err != nil {
		return nil, err
	}
	logger.Info("corpus loaded", "documents", len(docs))
	return docs, nil
}
