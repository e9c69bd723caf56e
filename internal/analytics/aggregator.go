package analytics

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/Adithya-Monish-Kumar-K/voice-context-engine/pkg/kafka"
)

const (
	latencyWindow = 10000
	// trackedKeys caps the distinct queries and documents counted per
	// table. Spoken utterances are mostly unique.
	trackedKeys = 1000
)

type AggregatedStats struct {
	TotalLookups     int64            `json:"total_lookups"`
	Found            int64            `json:"found"`
	NoSignal         int64            `json:"no_signal"`
	HitRate          float64          `json:"hit_rate"`
	CacheHits        int64            `json:"cache_hits"`
	AvgLatencyUs     float64          `json:"avg_latency_us"`
	P50LatencyUs     int64            `json:"p50_latency_us"`
	P95LatencyUs     int64            `json:"p95_latency_us"`
	P99LatencyUs     int64            `json:"p99_latency_us"`
	TopQueries       []QueryCount     `json:"top_queries"`
	NoSignalQueries  []QueryCount     `json:"no_signal_queries"`
	DocumentMatches  []QueryCount     `json:"document_matches"`
	BySource         map[string]int64 `json:"by_source"`
	LookupsPerMinute float64          `json:"lookups_per_minute"`
}

type QueryCount struct {
	Query string `json:"query"`
	Count int64  `json:"count"`
}

// Aggregator keeps running lookup statistics in memory. No-signal queries
// show what the corpus is missing; document matches show what it is used
// for.
type Aggregator struct {
	mu              sync.RWMutex
	total           int64
	found           int64
	cacheHits       int64
	latencies       []int64
	latencyNext     int
	queryCounts     *boundedCounts
	noSignalQueries *boundedCounts
	docMatches      *boundedCounts
	bySource        map[string]int64
	topK            int
	startTime       time.Time
	logger          *slog.Logger
}

func NewAggregator(topK int) *Aggregator {
	if topK <= 0 {
		topK = 10
	}
	return &Aggregator{
		latencies:       make([]int64, 0, 1024),
		queryCounts:     newBoundedCounts(trackedKeys),
		noSignalQueries: newBoundedCounts(trackedKeys),
		docMatches:      newBoundedCounts(trackedKeys),
		bySource:        make(map[string]int64),
		topK:            topK,
		startTime:       time.Now(),
		logger:          slog.Default().With("component", "analytics-aggregator"),
	}
}

// HandleEvent decodes lookup events from Kafka into agg. Undecodable
// events are skipped.
func HandleEvent(agg *Aggregator) kafka.MessageHandler {
	return func(ctx context.Context, key []byte, value []byte) error {
		event, err := kafka.DecodeJSON[LookupEvent](value)
		if err != nil || event.Type != EventLookup {
			agg.logger.Error("failed to decode analytics event", "error", err, "type", event.Type)
			return kafka.ErrSkip
		}
		agg.Record(event)
		return nil
	}
}

func (a *Aggregator) Record(event LookupEvent) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.total++
	if event.Found {
		a.found++
	} else {
		a.noSignalQueries.inc(event.Query)
	}
	if event.CacheHit {
		a.cacheHits++
	}
	if len(a.latencies) < latencyWindow {
		a.latencies = append(a.latencies, event.LatencyUs)
	} else {
		a.latencies[a.latencyNext] = event.LatencyUs
		a.latencyNext = (a.latencyNext + 1) % latencyWindow
	}
	a.queryCounts.inc(event.Query)
	for _, id := range event.Matches {
		a.docMatches.inc(id)
	}
	source := event.Source
	if source == "" {
		source = "unknown"
	}
	a.bySource[source]++
}

func (a *Aggregator) Stats() AggregatedStats {
	a.mu.RLock()
	defer a.mu.RUnlock()

	stats := AggregatedStats{
		TotalLookups: a.total,
		Found:        a.found,
		NoSignal:     a.total - a.found,
		CacheHits:    a.cacheHits,
		BySource:     make(map[string]int64, len(a.bySource)),
	}
	if a.total > 0 {
		stats.HitRate = float64(a.found) / float64(a.total)
	}
	if len(a.latencies) > 0 {
		sorted := make([]int64, len(a.latencies))
		copy(sorted, a.latencies)
		sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

		var sum int64
		for _, l := range sorted {
			sum += l
		}
		stats.AvgLatencyUs = float64(sum) / float64(len(sorted))
		stats.P50LatencyUs = percentile(sorted, 50)
		stats.P95LatencyUs = percentile(sorted, 95)
		stats.P99LatencyUs = percentile(sorted, 99)
	}
	stats.TopQueries = topN(a.queryCounts.counts, a.topK)
	stats.NoSignalQueries = topN(a.noSignalQueries.counts, a.topK)
	stats.DocumentMatches = topN(a.docMatches.counts, a.topK)
	for k, v := range a.bySource {
		stats.BySource[k] = v
	}
	elapsed := time.Since(a.startTime).Minutes()
	if elapsed > 0 {
		stats.LookupsPerMinute = float64(stats.TotalLookups) / elapsed
	}
	return stats
}

func percentile(sorted []int64, pct int) int64 {
	if len(sorted) == 0 {
		return 0
	}
	idx := (pct * len(sorted)) / 100
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}

// topN ranks counts descending; equal counts sort by key so output is
// stable between calls.
func topN(counts map[string]int64, n int) []QueryCount {
	result := make([]QueryCount, 0, len(counts))
	for query, count := range counts {
		result = append(result, QueryCount{Query: query, Count: count})
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].Count != result[j].Count {
			return result[i].Count > result[j].Count
		}
		return result[i].Query < result[j].Query
	})
	if len(result) > n {
		result = result[:n]
	}
	return result
}

// boundedCounts counts at most limit distinct keys. A new key arriving when
// full replaces the least-frequent entry, so repeated queries stay ranked
// while one-off utterances churn.
type boundedCounts struct {
	counts map[string]int64
	limit  int
}

func newBoundedCounts(limit int) *boundedCounts {
	return &boundedCounts{counts: make(map[string]int64), limit: limit}
}

func (b *boundedCounts) inc(key string) {
	if _, ok := b.counts[key]; !ok && len(b.counts) >= b.limit {
		b.evictMin()
	}
	b.counts[key]++
}

func (b *boundedCounts) evictMin() {
	var victim string
	minCount := int64(-1)
	for k, c := range b.counts {
		if minCount < 0 || c < minCount || (c == minCount && k > victim) {
			victim, minCount = k, c
		}
	}
	delete(b.counts, victim)
}

func (b *boundedCounts) len() int {
	return len(b.counts)
}
