// Package pipeline holds the context-injection stage that sits between
// speech recognition and the language model. It annotates recognized text
// with retrieved knowledge and forwards every unit, in order, whatever
// happens to the lookup.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/Adithya-Monish-Kumar-K/voice-context-engine/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/voice-context-engine/pkg/resilience"
)

// ContextHeader introduces the retrieved context appended to a text unit.
const ContextHeader = "\n\n[Relevant Knowledge Context]:\n"

// Lookuper retrieves context for a piece of recognized text. A false
// result means there is nothing relevant to add.
type Lookuper interface {
	Lookup(ctx context.Context, text string) (string, bool, error)
}

// LookupFunc adapts a function to Lookuper.
type LookupFunc func(ctx context.Context, text string) (string, bool, error)

func (f LookupFunc) Lookup(ctx context.Context, text string) (string, bool, error) {
	return f(ctx, text)
}

// MatchLookuper is implemented by lookupers that can also report the ids
// of the documents behind a result, in ranked order. No ids means nothing
// relevant was found.
type MatchLookuper interface {
	LookupMatches(ctx context.Context, text string) (string, []string, error)
}

type Options struct {
	// Timeout bounds a single lookup. Zero waits for the lookup to return.
	Timeout time.Duration
	// Metrics is optional.
	Metrics *metrics.Metrics
}

// Injector annotates text units with retrieved context. One Injector may
// serve many sessions; it keeps no per-session state.
type Injector struct {
	lookup  Lookuper
	opts    Options
	logger  *slog.Logger
	metrics *metrics.Metrics
}

func NewInjector(lookup Lookuper, opts Options) *Injector {
	return &Injector{
		lookup:  lookup,
		opts:    opts,
		logger:  slog.Default().With("component", "context-injector"),
		metrics: opts.Metrics,
	}
}

// Annotation is what the injector did with one unit.
type Annotation struct {
	Unit Unit
	// Found is true when context was appended.
	Found bool
	// Matches holds the matched document ids when the lookuper reports them.
	Matches []string
}

// Process returns the unit to forward. Text units with a lookup result get
// the context appended under ContextHeader; anything else, including a
// failed, panicking or slow lookup, is returned unchanged.
func (in *Injector) Process(ctx context.Context, unit Unit) Unit {
	return in.Annotate(ctx, unit).Unit
}

// Annotate is Process that also reports which documents were injected.
func (in *Injector) Annotate(ctx context.Context, unit Unit) Annotation {
	text, ok := unit.TextPayload()
	if !ok {
		in.count(metrics.OutcomePassthrough)
		return Annotation{Unit: unit}
	}

	var (
		block   string
		found   bool
		matches []string
	)
	err := resilience.WithTimeout(ctx, in.opts.Timeout, "knowledge-lookup", func(ctx context.Context) error {
		var err error
		if ml, ok := in.lookup.(MatchLookuper); ok {
			block, matches, err = ml.LookupMatches(ctx, text)
			found = len(matches) > 0
			return err
		}
		block, found, err = in.lookup.Lookup(ctx, text)
		return err
	})
	if err != nil {
		in.logger.Warn("lookup failed, forwarding unit unchanged",
			"unit_id", unit.ID,
			"session", unit.Session,
			"error", err,
		)
		in.count(metrics.OutcomeFailedOpen)
		return Annotation{Unit: unit}
	}
	if !found || block == "" {
		in.count(metrics.OutcomeUnannotated)
		return Annotation{Unit: unit}
	}
	in.count(metrics.OutcomeAnnotated)
	return Annotation{
		Unit:    unit.WithText(text + ContextHeader + block),
		Found:   true,
		Matches: matches,
	}
}

// Run forwards every unit from src to dst in arrival order until src is
// closed or ctx is done. It returns ctx.Err() when cancelled and nil once
// src is drained.
func (in *Injector) Run(ctx context.Context, src <-chan Unit, dst chan<- Unit) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case unit, ok := <-src:
			if !ok {
				return nil
			}
			out := in.Process(ctx, unit)
			select {
			case dst <- out:
			case <-ctx.Done():
				return fmt.Errorf("forwarding unit %s: %w", unit.ID, ctx.Err())
			}
		}
	}
}

func (in *Injector) count(outcome string) {
	if in.metrics != nil {
		in.metrics.UnitsProcessedTotal.WithLabelValues(outcome).Inc()
	}
}
