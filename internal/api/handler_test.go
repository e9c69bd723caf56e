package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/voice-context-engine/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/voice-context-engine/internal/knowledge/cache"
	"github.com/Adithya-Monish-Kumar-K/voice-context-engine/internal/knowledge/corpus"
	"github.com/Adithya-Monish-Kumar-K/voice-context-engine/internal/knowledge/engine"
	"github.com/Adithya-Monish-Kumar-K/voice-context-engine/internal/knowledge/index"
	"github.com/Adithya-Monish-Kumar-K/voice-context-engine/internal/pipeline"
	"github.com/Adithya-Monish-Kumar-K/voice-context-engine/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/voice-context-engine/pkg/middleware"
)

type mapStore struct {
	mu   sync.Mutex
	data map[string]string
}

func (s *mapStore) Get(_ context.Context, key string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.data[key]
	if !ok {
		return "", goredis.Nil
	}
	return v, nil
}

func (s *mapStore) Set(_ context.Context, key string, value any, _ time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if b, ok := value.([]byte); ok {
		s.data[key] = string(b)
	}
	return nil
}

func (s *mapStore) FlushByPattern(_ context.Context, _ string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := int64(len(s.data))
	s.data = make(map[string]string)
	return n, nil
}

type recordingTracker struct {
	mu     sync.Mutex
	events []analytics.LookupEvent
}

func (r *recordingTracker) Track(event analytics.LookupEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
}

func newEngine(t *testing.T) *engine.Engine {
	t.Helper()
	docs, err := corpus.Default()
	require.NoError(t, err)
	idx, err := index.Build(docs)
	require.NoError(t, err)
	return engine.New(idx, engine.DefaultOptions())
}

func newServer(t *testing.T, withCache bool) (http.Handler, *recordingTracker) {
	t.Helper()
	eng := newEngine(t)
	var lc *cache.LookupCache
	var lookup pipeline.Lookuper = eng
	if withCache {
		lc = cache.New(&mapStore{data: make(map[string]string)}, eng, config.CacheConfig{TTL: time.Minute}, nil)
		lookup = lc
	}
	tracker := &recordingTracker{}
	h := New(eng, lc, pipeline.NewInjector(lookup, pipeline.Options{Timeout: time.Second}), tracker)
	mux := http.NewServeMux()
	h.Register(mux)
	return middleware.RequestID(mux), tracker
}

func do(t *testing.T, srv http.Handler, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	return rec
}

func TestLookup_Found(t *testing.T) {
	srv, tracker := newServer(t, false)
	rec := do(t, srv, http.MethodGet, "/api/v1/lookup?q=Who+are+you%2C+Maya%3F", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp LookupResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.Found)
	assert.Equal(t, "Who are you, Maya?", resp.Query)
	require.NotEmpty(t, resp.Matches)
	assert.Equal(t, "about_maya", resp.Matches[0].ID)
	assert.NotEmpty(t, resp.Context)
	assert.False(t, resp.CacheHit)

	require.Len(t, tracker.events, 1)
	ev := tracker.events[0]
	assert.Equal(t, analytics.SourceHTTP, ev.Source)
	assert.Equal(t, analytics.EventLookup, ev.Type)
	assert.Equal(t, rec.Header().Get(middleware.RequestIDHeader), ev.RequestID)
	assert.Contains(t, ev.Matches, "about_maya")
}

func TestLookup_NoSignal(t *testing.T) {
	srv, _ := newServer(t, false)
	rec := do(t, srv, http.MethodGet, "/api/v1/lookup?q=xylophone", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp LookupResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.False(t, resp.Found)
	assert.Empty(t, resp.Context)
	assert.NotNil(t, resp.Matches)
	assert.Empty(t, resp.Matches)
}

func TestLookup_BadInput(t *testing.T) {
	srv, tracker := newServer(t, false)
	for _, target := range []string{
		"/api/v1/lookup",
		"/api/v1/lookup?q=maya&top_n=0",
		"/api/v1/lookup?q=maya&top_n=two",
	} {
		rec := do(t, srv, http.MethodGet, target, "")
		assert.Equal(t, http.StatusBadRequest, rec.Code, target)
		assert.Contains(t, rec.Body.String(), `"error"`)
	}
	assert.Empty(t, tracker.events)
}

func TestLookup_TopNClampedToCorpus(t *testing.T) {
	srv, _ := newServer(t, false)
	rec := do(t, srv, http.MethodGet, "/api/v1/lookup?q=what+did+he+build+at+genxcellence+with+sql&top_n=500", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var resp LookupResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.NotEmpty(t, resp.Matches)
	assert.Equal(t, "project_text_to_sql", resp.Matches[0].ID)
	assert.LessOrEqual(t, len(resp.Matches), 9)
}

func TestLookup_CachedSecondTime(t *testing.T) {
	srv, _ := newServer(t, true)
	first := do(t, srv, http.MethodGet, "/api/v1/lookup?q=maya", "")
	second := do(t, srv, http.MethodGet, "/api/v1/lookup?q=MAYA", "")

	var a, b LookupResponse
	require.NoError(t, json.Unmarshal(first.Body.Bytes(), &a))
	require.NoError(t, json.Unmarshal(second.Body.Bytes(), &b))
	assert.False(t, a.CacheHit)
	assert.True(t, b.CacheHit)
	assert.Equal(t, a.Context, b.Context)

	stats := do(t, srv, http.MethodGet, "/api/v1/cache/stats", "")
	assert.Contains(t, stats.Body.String(), `"hits":1`)

	inv := do(t, srv, http.MethodDelete, "/api/v1/cache", "")
	assert.Equal(t, http.StatusOK, inv.Code)
	assert.Contains(t, inv.Body.String(), `"keys_deleted":1`)
}

func TestAnnotate(t *testing.T) {
	srv, tracker := newServer(t, false)

	rec := do(t, srv, http.MethodPost, "/api/v1/annotate", `{"id":"u1","kind":"text","text":"Who are you, Maya?"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	var out pipeline.Unit
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	assert.True(t, strings.HasPrefix(out.Text, "Who are you, Maya?"+pipeline.ContextHeader))
	assert.Equal(t, pipeline.Downstream, out.Direction)

	rec = do(t, srv, http.MethodPost, "/api/v1/annotate", `{"id":"u2","kind":"opaque","data":{"audio":"AAAA"}}`)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	assert.Equal(t, pipeline.KindOpaque, out.Kind)
	assert.JSONEq(t, `{"audio":"AAAA"}`, string(out.Data))

	require.Len(t, tracker.events, 1)
	assert.True(t, tracker.events[0].Found)
	assert.Equal(t, "about_maya", tracker.events[0].Matches[0])
}

func TestAnnotate_CachedReportsMatches(t *testing.T) {
	srv, tracker := newServer(t, true)
	for i := 0; i < 2; i++ {
		rec := do(t, srv, http.MethodPost, "/api/v1/annotate", `{"id":"u1","kind":"text","text":"Who are you, Maya?"}`)
		require.Equal(t, http.StatusOK, rec.Code)
	}

	require.Len(t, tracker.events, 2)
	for _, ev := range tracker.events {
		require.NotEmpty(t, ev.Matches)
		assert.Equal(t, "about_maya", ev.Matches[0])
	}
}

func TestAnnotate_Rejects(t *testing.T) {
	srv, _ := newServer(t, false)
	assert.Equal(t, http.StatusBadRequest, do(t, srv, http.MethodPost, "/api/v1/annotate", `{broken`).Code)
	assert.Equal(t, http.StatusBadRequest, do(t, srv, http.MethodPost, "/api/v1/annotate", `{"kind":"video"}`).Code)
}

func TestDocuments(t *testing.T) {
	srv, _ := newServer(t, false)
	rec := do(t, srv, http.MethodGet, "/api/v1/documents", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Count     int            `json:"count"`
		Documents []DocumentView `json:"documents"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, 9, body.Count)
	assert.Equal(t, "about_prajwal", body.Documents[0].ID)
	assert.Empty(t, body.Documents[0].Text)

	rec = do(t, srv, http.MethodGet, "/api/v1/documents/about_maya", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var doc DocumentView
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &doc))
	assert.NotEmpty(t, doc.Text)

	assert.Equal(t, http.StatusNotFound, do(t, srv, http.MethodGet, "/api/v1/documents/nope", "").Code)
}

func TestCache_Disabled(t *testing.T) {
	srv, _ := newServer(t, false)
	assert.Contains(t, do(t, srv, http.MethodGet, "/api/v1/cache/stats", "").Body.String(), "disabled")
	assert.Equal(t, http.StatusServiceUnavailable, do(t, srv, http.MethodDelete, "/api/v1/cache", "").Code)
}
