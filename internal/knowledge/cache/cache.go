package cache

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/Adithya-Monish-Kumar-K/voice-context-engine/internal/knowledge/engine"
	"github.com/Adithya-Monish-Kumar-K/voice-context-engine/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/voice-context-engine/pkg/metrics"
	pkgredis "github.com/Adithya-Monish-Kumar-K/voice-context-engine/pkg/redis"
	"github.com/Adithya-Monish-Kumar-K/voice-context-engine/pkg/resilience"
)

const keyPrefix = "kctx:"

// Store is the subset of pkg/redis.Client the cache uses.
type Store interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	FlushByPattern(ctx context.Context, pattern string) (int64, error)
}

// LookupCache memoizes engine results in Redis. Redis trouble never fails
// a lookup: errors are counted against a circuit breaker and the engine
// answers directly.
type LookupCache struct {
	store   Store
	engine  *engine.Engine
	ttl     time.Duration
	breaker *resilience.CircuitBreaker
	group   singleflight.Group
	logger  *slog.Logger
	metrics *metrics.Metrics
	hits    atomic.Int64
	misses  atomic.Int64
}

// New wraps eng with a Redis-backed cache. m may be nil.
func New(store Store, eng *engine.Engine, cfg config.CacheConfig, m *metrics.Metrics) *LookupCache {
	cbCfg := resilience.CircuitBreakerConfig{
		FailureThreshold: cfg.FailureThreshold,
		ResetTimeout:     cfg.ResetTimeout,
	}
	if m != nil {
		cbCfg.OnStateChange = func(name string, s resilience.State) {
			m.CircuitBreakerState.WithLabelValues(name).Set(float64(s))
		}
	}
	return &LookupCache{
		store:   store,
		engine:  eng,
		ttl:     cfg.TTL,
		breaker: resilience.NewCircuitBreaker("lookup-cache-redis", cbCfg),
		logger:  slog.Default().With("component", "lookup-cache"),
		metrics: m,
	}
}

// Resolve returns the lookup result for text, and whether it came from the
// cache. Concurrent misses for the same key are computed once.
func (c *LookupCache) Resolve(ctx context.Context, text string, topN int) (engine.Result, bool, error) {
	if topN < 1 {
		topN = c.engine.TopN()
	}
	key := c.buildKey(text, topN)
	if res, ok := c.get(ctx, key); ok {
		return res, true, nil
	}
	val, _, _ := c.group.Do(key, func() (any, error) {
		if res, ok := c.peek(ctx, key); ok {
			return res, nil
		}
		res := c.engine.Resolve(text, topN)
		c.set(ctx, key, res)
		return res, nil
	})
	return val.(engine.Result), false, nil
}

// Lookup implements pipeline.Lookuper with the engine's default top N.
func (c *LookupCache) Lookup(ctx context.Context, text string) (string, bool, error) {
	res, _, err := c.Resolve(ctx, text, c.engine.TopN())
	if err != nil {
		return "", false, err
	}
	return res.Context, res.Found, nil
}

// LookupMatches implements pipeline.MatchLookuper.
func (c *LookupCache) LookupMatches(ctx context.Context, text string) (string, []string, error) {
	res, _, err := c.Resolve(ctx, text, c.engine.TopN())
	if err != nil {
		return "", nil, err
	}
	return res.Context, res.IDs(), nil
}

// Invalidate drops every cached lookup.
func (c *LookupCache) Invalidate(ctx context.Context) (int64, error) {
	deleted, err := c.store.FlushByPattern(ctx, keyPrefix+"*")
	if err != nil {
		return deleted, fmt.Errorf("invalidating lookup cache: %w", err)
	}
	c.logger.Info("cache invalidated", "keys_deleted", deleted)
	return deleted, nil
}

func (c *LookupCache) Stats() (hits, misses int64) {
	return c.hits.Load(), c.misses.Load()
}

// BreakerState reports whether Redis is currently being bypassed.
func (c *LookupCache) BreakerState() resilience.State {
	return c.breaker.GetState()
}

// get reads key and counts the outcome as a hit or a miss.
func (c *LookupCache) get(ctx context.Context, key string) (engine.Result, bool) {
	res, ok := c.peek(ctx, key)
	if !ok {
		c.miss()
		return engine.Result{}, false
	}
	c.hits.Add(1)
	if c.metrics != nil {
		c.metrics.CacheHitsTotal.Inc()
	}
	return res, true
}

// peek reads key without touching the hit and miss counters.
func (c *LookupCache) peek(ctx context.Context, key string) (engine.Result, bool) {
	var data string
	err := c.breaker.Execute(func() error {
		var err error
		data, err = c.store.Get(ctx, key)
		if pkgredis.IsNilError(err) {
			return nil
		}
		return err
	})
	if err != nil {
		c.recordError("get", key, err)
		return engine.Result{}, false
	}
	if data == "" {
		return engine.Result{}, false
	}
	var res engine.Result
	if err := json.Unmarshal([]byte(data), &res); err != nil {
		c.logger.Error("cache unmarshal failed", "key", key, "error", err)
		return engine.Result{}, false
	}
	return res, true
}

func (c *LookupCache) set(ctx context.Context, key string, res engine.Result) {
	data, err := json.Marshal(res)
	if err != nil {
		c.logger.Error("cache marshal failed", "key", key, "error", err)
		return
	}
	err = c.breaker.Execute(func() error {
		return c.store.Set(ctx, key, data, c.ttl)
	})
	if err != nil {
		c.recordError("set", key, err)
	}
}

func (c *LookupCache) miss() {
	c.misses.Add(1)
	if c.metrics != nil {
		c.metrics.CacheMissesTotal.Inc()
	}
}

func (c *LookupCache) recordError(op, key string, err error) {
	if errors.Is(err, resilience.ErrCircuitOpen) {
		return
	}
	c.logger.Warn("cache "+op+" failed, using engine", "key", key, "error", err)
	if c.metrics != nil {
		c.metrics.CacheErrorsTotal.Inc()
	}
}

// buildKey scopes keys to the engine signature, so a corpus or ranking
// change never serves stale context. Ranking depends on the query only
// through its lower-cased form.
func (c *LookupCache) buildKey(text string, topN int) string {
	hash := sha256.Sum256([]byte(strings.ToLower(text)))
	sig := sha256.Sum256([]byte(c.engine.Signature()))
	return fmt.Sprintf("%s%x:%x:n=%d", keyPrefix, sig[:6], hash[:16], topN)
}
