// Package annotator bridges the context-injection stage onto Kafka. It reads
// transcript units from one topic, annotates them and publishes every unit,
// annotated or not, to the downstream topic under the same key.
package annotator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Adithya-Monish-Kumar-K/voice-context-engine/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/voice-context-engine/internal/pipeline"
	"github.com/Adithya-Monish-Kumar-K/voice-context-engine/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/voice-context-engine/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/voice-context-engine/pkg/resilience"
)

const (
	statusProcessed    = "processed"
	statusMalformed    = "malformed"
	statusPublishError = "publish_error"
)

// Publisher is satisfied by *kafka.Producer.
type Publisher interface {
	Publish(ctx context.Context, event kafka.Event) error
}

// Tracker receives one analytics event per annotated text unit.
type Tracker interface {
	Track(event analytics.LookupEvent)
}

type Annotator struct {
	injector  *pipeline.Injector
	publisher Publisher
	tracker   Tracker
	retry     resilience.RetryConfig
	logger    *slog.Logger
	metrics   *metrics.Metrics
}

// New wires an injector to a downstream publisher. tracker and m may be nil.
func New(injector *pipeline.Injector, publisher Publisher, tracker Tracker, m *metrics.Metrics) *Annotator {
	return &Annotator{
		injector:  injector,
		publisher: publisher,
		tracker:   tracker,
		retry: resilience.RetryConfig{
			MaxAttempts:  5,
			InitialDelay: 50 * time.Millisecond,
			MaxDelay:     2 * time.Second,
		},
		logger:  slog.Default().With("component", "annotator"),
		metrics: m,
	}
}

// Handle is the kafka.MessageHandler for the transcript topic. Malformed
// units are skipped; a unit that cannot be published after retries stops
// the consumer so nothing downstream is reordered or lost.
func (a *Annotator) Handle(ctx context.Context, key []byte, value []byte) error {
	unit, err := pipeline.DecodeUnit(value)
	if err != nil {
		a.count(statusMalformed)
		return fmt.Errorf("%w: %v", kafka.ErrSkip, err)
	}
	if unit.Session == "" {
		unit.Session = string(key)
	}

	start := time.Now()
	ann := a.injector.Annotate(ctx, unit)
	out := ann.Unit
	a.track(unit, ann, time.Since(start))

	err = resilience.Retry(ctx, "publish-annotated-unit", a.retry, func() error {
		return a.publisher.Publish(ctx, kafka.Event{Key: string(key), Value: out})
	})
	if err != nil {
		a.count(statusPublishError)
		return fmt.Errorf("publishing unit %s: %w", unit.ID, err)
	}
	a.count(statusProcessed)
	return nil
}

func (a *Annotator) track(in pipeline.Unit, ann pipeline.Annotation, took time.Duration) {
	if a.tracker == nil {
		return
	}
	text, ok := in.TextPayload()
	if !ok {
		return
	}
	a.tracker.Track(analytics.LookupEvent{
		Type:      analytics.EventLookup,
		Query:     text,
		Found:     ann.Found,
		Matches:   ann.Matches,
		LatencyUs: took.Microseconds(),
		Source:    analytics.SourceStream,
		Session:   in.Session,
		Timestamp: time.Now().UTC(),
	})
}

func (a *Annotator) count(status string) {
	if a.metrics != nil {
		a.metrics.StreamMessagesTotal.WithLabelValues(status).Inc()
	}
}

// Run consumes until ctx is cancelled or a unit cannot be delivered.
func Run(ctx context.Context, consumer *kafka.Consumer) error {
	if err := consumer.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("annotator consumer: %w", err)
	}
	return nil
}
