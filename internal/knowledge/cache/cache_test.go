package cache

import (
	"context"
	"errors"
	"os"
	"path"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/voice-context-engine/internal/knowledge/corpus"
	"github.com/Adithya-Monish-Kumar-K/voice-context-engine/internal/knowledge/engine"
	"github.com/Adithya-Monish-Kumar-K/voice-context-engine/internal/knowledge/index"
	"github.com/Adithya-Monish-Kumar-K/voice-context-engine/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/voice-context-engine/pkg/metrics"
	pkgredis "github.com/Adithya-Monish-Kumar-K/voice-context-engine/pkg/redis"
	"github.com/Adithya-Monish-Kumar-K/voice-context-engine/pkg/resilience"
)

type memStore struct {
	mu      sync.Mutex
	data    map[string]string
	gets    atomic.Int32
	failing atomic.Bool
}

func newMemStore() *memStore {
	return &memStore{data: make(map[string]string)}
}

var errDown = errors.New("connection refused")

func (s *memStore) Get(_ context.Context, key string) (string, error) {
	s.gets.Add(1)
	if s.failing.Load() {
		return "", errDown
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.data[key]
	if !ok {
		return "", goredis.Nil
	}
	return v, nil
}

func (s *memStore) Set(_ context.Context, key string, value any, _ time.Duration) error {
	if s.failing.Load() {
		return errDown
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	switch v := value.(type) {
	case []byte:
		s.data[key] = string(v)
	case string:
		s.data[key] = v
	}
	return nil
}

func (s *memStore) FlushByPattern(_ context.Context, pattern string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for k := range s.data {
		if ok, _ := path.Match(pattern, k); ok {
			delete(s.data, k)
			n++
		}
	}
	return n, nil
}

func newEngine(t *testing.T) *engine.Engine {
	t.Helper()
	docs, err := corpus.Default()
	require.NoError(t, err)
	idx, err := index.Build(docs)
	require.NoError(t, err)
	return engine.New(idx, engine.DefaultOptions())
}

func cacheConfig() config.CacheConfig {
	return config.CacheConfig{Enabled: true, TTL: time.Minute, FailureThreshold: 2, ResetTimeout: time.Hour}
}

func TestResolveMissThenHit(t *testing.T) {
	eng := newEngine(t)
	c := New(newMemStore(), eng, cacheConfig(), nil)
	ctx := context.Background()

	first, hit, err := c.Resolve(ctx, "Who are you, Maya?", 2)
	require.NoError(t, err)
	assert.False(t, hit)
	assert.True(t, first.Found)

	second, hit, err := c.Resolve(ctx, "WHO ARE YOU, MAYA?", 2)
	require.NoError(t, err)
	assert.True(t, hit)
	assert.Equal(t, first, second)

	direct := eng.Resolve("Who are you, Maya?", 2)
	assert.Equal(t, direct.Context, second.Context)

	hits, misses := c.Stats()
	assert.EqualValues(t, 1, hits)
	assert.EqualValues(t, 1, misses)
}

func TestColdResolveCountsOneMiss(t *testing.T) {
	m := metrics.New(prometheus.NewRegistry())
	c := New(newMemStore(), newEngine(t), cacheConfig(), m)

	_, hit, err := c.Resolve(context.Background(), "tell me about the voice agent", 2)
	require.NoError(t, err)
	assert.False(t, hit)

	hits, misses := c.Stats()
	assert.EqualValues(t, 0, hits)
	assert.EqualValues(t, 1, misses)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CacheMissesTotal))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.CacheHitsTotal))
}

func TestResolveCachesNoSignal(t *testing.T) {
	c := New(newMemStore(), newEngine(t), cacheConfig(), nil)
	ctx := context.Background()

	res, _, err := c.Resolve(ctx, "a is an", 2)
	require.NoError(t, err)
	assert.False(t, res.Found)

	res, hit, err := c.Resolve(ctx, "a is an", 2)
	require.NoError(t, err)
	assert.True(t, hit)
	assert.False(t, res.Found)
}

func TestKeysSeparateTopN(t *testing.T) {
	c := New(newMemStore(), newEngine(t), cacheConfig(), nil)
	assert.NotEqual(t, c.buildKey("voice agent", 1), c.buildKey("voice agent", 2))
	assert.Equal(t, c.buildKey("Voice Agent", 2), c.buildKey("voice agent", 2))
	assert.NotEqual(t, c.buildKey("voice  agent", 2), c.buildKey("voice agent", 2))
}

func TestResolveFailsOpenAndTripsBreaker(t *testing.T) {
	store := newMemStore()
	store.failing.Store(true)
	eng := newEngine(t)
	c := New(store, eng, cacheConfig(), nil)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		block, found, err := c.Lookup(ctx, "tell me about the rag chatbot")
		require.NoError(t, err)
		assert.True(t, found)
		want, _ := eng.Query("tell me about the rag chatbot", 2)
		assert.Equal(t, want, block)
	}
	assert.Equal(t, resilience.StateOpen, c.BreakerState())

	// once open, redis is no longer called
	before := store.gets.Load()
	_, _, err := c.Lookup(ctx, "voice latency")
	require.NoError(t, err)
	assert.Equal(t, before, store.gets.Load())
}

func TestInvalidate(t *testing.T) {
	store := newMemStore()
	c := New(store, newEngine(t), cacheConfig(), nil)
	ctx := context.Background()

	_, _, _ = c.Resolve(ctx, "voice agent", 2)
	_, _, _ = c.Resolve(ctx, "sql platform", 2)
	store.data["unrelated"] = "keep"

	deleted, err := c.Invalidate(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 2, deleted)
	assert.Contains(t, store.data, "unrelated")
}

func TestResolveSingleflight(t *testing.T) {
	store := newMemStore()
	c := New(store, newEngine(t), cacheConfig(), nil)

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, _, err := c.Resolve(context.Background(), "what are his skills", 2)
			assert.NoError(t, err)
			assert.True(t, res.Found)
		}()
	}
	wg.Wait()
	assert.Len(t, store.data, 1)
}

func TestRedisRoundTrip(t *testing.T) {
	addr := os.Getenv("VCE_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skipf("VCE_TEST_REDIS_ADDR not set, skipping redis cache test")
	}
	client, err := pkgredis.NewClient(context.Background(), config.RedisConfig{Addr: addr, PoolSize: 2})
	require.NoError(t, err)
	defer client.Close()

	c := New(client, newEngine(t), cacheConfig(), nil)
	ctx := context.Background()
	_, err = c.Invalidate(ctx)
	require.NoError(t, err)

	_, hit, err := c.Resolve(ctx, "Who are you, Maya?", 2)
	require.NoError(t, err)
	assert.False(t, hit)
	res, hit, err := c.Resolve(ctx, "Who are you, Maya?", 2)
	require.NoError(t, err)
	assert.True(t, hit)
	assert.True(t, res.Found)
}
