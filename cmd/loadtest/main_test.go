package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPercentile(t *testing.T) {
	sorted := []time.Duration{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}
	assert.Equal(t, time.Duration(5), percentile(sorted, 50))
	assert.Equal(t, time.Duration(10), percentile(sorted, 99))
	assert.Equal(t, time.Duration(1), percentile(sorted, 0))
	assert.Zero(t, percentile(nil, 50))
}

func TestLookupURL(t *testing.T) {
	cfg := Config{BaseURL: "http://localhost:8080"}
	assert.Equal(t, "http://localhost:8080/api/v1/lookup?q=Who+are+you%2C+Maya%3F", lookupURL(cfg, "Who are you, Maya?"))
	cfg.TopN = 3
	assert.Equal(t, "http://localhost:8080/api/v1/lookup?q=maya&top_n=3", lookupURL(cfg, "maya"))
}

func TestRecordRequest(t *testing.T) {
	s := NewStats()
	s.RecordRequest(time.Millisecond, 200, &lookupBody{Found: true, CacheHit: true}, nil)
	s.RecordRequest(time.Millisecond, 200, &lookupBody{}, nil)
	s.RecordRequest(time.Millisecond, 400, nil, nil)
	assert.Equal(t, int64(3), s.totalRequests.Load())
	assert.Equal(t, int64(2), s.successCount.Load())
	assert.Equal(t, int64(1), s.errorCount.Load())
	assert.Equal(t, int64(1), s.foundCount.Load())
	assert.Equal(t, int64(1), s.cacheHits.Load())
	assert.Len(t, s.latencies, 3)
}

func TestLoadQueries(t *testing.T) {
	path := filepath.Join(t.TempDir(), "queries.txt")
	require.NoError(t, os.WriteFile(path, []byte("maya\n\n  voice agent  \n"), 0o644))
	queries, err := loadQueries(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"maya", "voice agent"}, queries)

	empty := filepath.Join(t.TempDir(), "empty.txt")
	require.NoError(t, os.WriteFile(empty, []byte("\n"), 0o644))
	_, err = loadQueries(empty)
	assert.Error(t, err)
}
