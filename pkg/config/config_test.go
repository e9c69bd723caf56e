package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/Adithya-Monish-Kumar-K/voice-context-engine/pkg/errors"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 2, cfg.Knowledge.TopN)
	assert.InDelta(t, 0.05, cfg.Knowledge.Threshold, 1e-12)
	assert.InDelta(t, 0.2, cfg.Knowledge.KeywordBoost, 1e-12)
	assert.Equal(t, CorpusEmbedded, cfg.Corpus.Source)
	assert.Equal(t, 8080, cfg.Server.Port)
}

func TestLoadFileAndEnvOverride(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "cfg.yaml")
	body := `
server:
  port: 9000
knowledge:
  topN: 3
  lookupTimeout: 80ms
corpus:
  source: file
  path: ./corpus.yaml
kafka:
  brokers: ["kafka-a:9092"]
`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	t.Setenv("VCE_SERVER_PORT", "9100")
	t.Setenv("VCE_KAFKA_BROKERS", "k1:9092,k2:9092")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9100, cfg.Server.Port)
	assert.Equal(t, 3, cfg.Knowledge.TopN)
	assert.Equal(t, 80*time.Millisecond, cfg.Knowledge.LookupTimeout)
	assert.Equal(t, CorpusFile, cfg.Corpus.Source)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Kafka.Brokers)
	// untouched fields keep their defaults
	assert.InDelta(t, 0.05, cfg.Knowledge.Threshold, 1e-12)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero topN", func(c *Config) { c.Knowledge.TopN = 0 }},
		{"negative threshold", func(c *Config) { c.Knowledge.Threshold = -0.1 }},
		{"negative boost", func(c *Config) { c.Knowledge.KeywordBoost = -1 }},
		{"unknown source", func(c *Config) { c.Corpus.Source = "s3" }},
		{"file without path", func(c *Config) { c.Corpus.Source = CorpusFile }},
		{"postgres without table", func(c *Config) { c.Corpus.Source = CorpusPostgres; c.Corpus.Table = "" }},
		{"bad port", func(c *Config) { c.Server.Port = 70000 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := defaultConfig()
			tt.mutate(cfg)
			assert.ErrorIs(t, cfg.Validate(), apperrors.ErrInvalidInput)
		})
	}
}

func TestPostgresDSN(t *testing.T) {
	p := PostgresConfig{Host: "db", Port: 5432, User: "u", Password: "p", Database: "d", SSLMode: "disable"}
	assert.Equal(t, "host=db port=5432 user=u password=p dbname=d sslmode=disable", p.DSN())
}
