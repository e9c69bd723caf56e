// Package engine answers knowledge lookups against an immutable index. An
// Engine holds no per-call state and is safe for concurrent use by every
// session that shares it.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/Adithya-Monish-Kumar-K/voice-context-engine/internal/knowledge/index"
	"github.com/Adithya-Monish-Kumar-K/voice-context-engine/internal/knowledge/ranker"
	"github.com/Adithya-Monish-Kumar-K/voice-context-engine/pkg/metrics"
)

// ContextSeparator joins matched document texts into one context block.
const ContextSeparator = "\n\n"

const DefaultTopN = 2

type Options struct {
	TopN         int
	Threshold    float64
	KeywordBoost float64
	// Metrics is optional.
	Metrics *metrics.Metrics
}

func DefaultOptions() Options {
	return Options{
		TopN:         DefaultTopN,
		Threshold:    ranker.DefaultThreshold,
		KeywordBoost: ranker.DefaultKeywordBoost,
	}
}

type Engine struct {
	idx     *index.Index
	opts    Options
	logger  *slog.Logger
	metrics *metrics.Metrics
}

func New(idx *index.Index, opts Options) *Engine {
	if opts.TopN < 1 {
		opts.TopN = DefaultTopN
	}
	e := &Engine{
		idx:     idx,
		opts:    opts,
		logger:  slog.Default().With("component", "knowledge-engine"),
		metrics: opts.Metrics,
	}
	if e.metrics != nil {
		e.metrics.CorpusDocuments.Set(float64(idx.Len()))
		e.metrics.CorpusTerms.Set(float64(idx.Vocabulary()))
	}
	return e
}

// Index returns the shared index the engine ranks against.
func (e *Engine) Index() *index.Index {
	return e.idx
}

// TopN returns the default number of documents joined per lookup.
func (e *Engine) TopN() int {
	return e.opts.TopN
}

// Search returns up to topN documents scoring above the threshold, best
// first. topN < 1 uses the configured default.
func (e *Engine) Search(text string, topN int) []ranker.ScoredDoc {
	if topN < 1 {
		topN = e.opts.TopN
	}
	start := time.Now()
	matches := ranker.Rank(e.idx, text, ranker.Params{
		KeywordBoost: e.opts.KeywordBoost,
		Threshold:    e.opts.Threshold,
		Limit:        topN,
	})
	e.observe(len(matches), time.Since(start))
	return matches
}

// Result is the outcome of one lookup. Context is empty when Found is false.
type Result struct {
	Context string             `json:"context,omitempty"`
	Found   bool               `json:"found"`
	Matches []ranker.ScoredDoc `json:"matches,omitempty"`
}

// IDs returns the matched document ids in ranked order.
func (r Result) IDs() []string {
	if len(r.Matches) == 0 {
		return nil
	}
	ids := make([]string, len(r.Matches))
	for i, m := range r.Matches {
		ids[i] = m.DocID
	}
	return ids
}

// Resolve ranks text and joins the surviving documents.
func (e *Engine) Resolve(text string, topN int) Result {
	matches := e.Search(text, topN)
	if len(matches) == 0 {
		e.logger.Debug("no context found")
		return Result{}
	}
	block := e.Join(matches)
	e.logger.Debug("context found", "chars", len(block), "matches", len(matches))
	return Result{Context: block, Found: true, Matches: matches}
}

// Query joins the texts of the best matches with a blank line. It reports
// false when the text has no usable terms or nothing clears the threshold.
func (e *Engine) Query(text string, topN int) (string, bool) {
	res := e.Resolve(text, topN)
	return res.Context, res.Found
}

// Signature identifies the corpus and ranking parameters. Results computed
// under one signature are valid for any engine with the same signature.
func (e *Engine) Signature() string {
	return fmt.Sprintf("%s:t%g:b%g", e.idx.Fingerprint(), e.opts.Threshold, e.opts.KeywordBoost)
}

// Lookup is Query with the default top N. It never returns an error; the
// signature lets it stand in for cached or remote lookups.
func (e *Engine) Lookup(ctx context.Context, text string) (string, bool, error) {
	e.logger.Debug("knowledge lookup", "query", text)
	block, ok := e.Query(text, e.opts.TopN)
	return block, ok, nil
}

// LookupMatches is Lookup that also returns the matched document ids.
func (e *Engine) LookupMatches(ctx context.Context, text string) (string, []string, error) {
	res := e.Resolve(text, e.opts.TopN)
	return res.Context, res.IDs(), nil
}

// Join concatenates the texts of matches in ranked order.
func (e *Engine) Join(matches []ranker.ScoredDoc) string {
	texts := make([]string, len(matches))
	for i, m := range matches {
		texts[i] = e.idx.Text(m.Position)
	}
	return strings.Join(texts, ContextSeparator)
}

func (e *Engine) observe(matches int, took time.Duration) {
	if e.metrics == nil {
		return
	}
	result := metrics.ResultHit
	if matches == 0 {
		result = metrics.ResultNoSignal
	}
	e.metrics.LookupsTotal.WithLabelValues(result).Inc()
	e.metrics.LookupLatency.Observe(took.Seconds())
	e.metrics.LookupMatches.Observe(float64(matches))
}
