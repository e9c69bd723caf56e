// Package config loads and validates application configuration from YAML files
// with environment-variable overrides. It provides typed structs for every
// subsystem (Server, Knowledge, Corpus, Postgres, Redis, Kafka, Analytics, etc.).
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	apperrors "github.com/Adithya-Monish-Kumar-K/voice-context-engine/pkg/errors"
)

// Corpus sources understood by the corpus loaders.
const (
	CorpusEmbedded = "embedded"
	CorpusFile     = "file"
	CorpusPostgres = "postgres"
)

// Config is the top-level application configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Knowledge KnowledgeConfig `yaml:"knowledge"`
	Corpus    CorpusConfig    `yaml:"corpus"`
	Postgres  PostgresConfig  `yaml:"postgres"`
	Kafka     KafkaConfig     `yaml:"kafka"`
	Redis     RedisConfig     `yaml:"redis"`
	Cache     CacheConfig     `yaml:"cache"`
	Analytics AnalyticsConfig `yaml:"analytics"`
	Logging   LoggingConfig   `yaml:"logging"`
	Metrics   MetricsConfig   `yaml:"metrics"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"readTimeout"`
	WriteTimeout    time.Duration `yaml:"writeTimeout"`
	RequestTimeout  time.Duration `yaml:"requestTimeout"`
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout"`
}

// KnowledgeConfig tunes ranking and the context-injection stage.
type KnowledgeConfig struct {
	TopN          int           `yaml:"topN"`
	Threshold     float64       `yaml:"threshold"`
	KeywordBoost  float64       `yaml:"keywordBoost"`
	LookupTimeout time.Duration `yaml:"lookupTimeout"`
}

// CorpusConfig selects where the knowledge documents come from.
type CorpusConfig struct {
	Source string `yaml:"source"`
	Path   string `yaml:"path"`
	Table  string `yaml:"table"`
}

// PostgresConfig holds PostgreSQL connection parameters.
type PostgresConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	Database        string        `yaml:"database"`
	User            string        `yaml:"user"`
	Password        string        `yaml:"password"`
	SSLMode         string        `yaml:"sslMode"`
	MaxOpenConns    int           `yaml:"maxOpenConns"`
	MaxIdleConns    int           `yaml:"maxIdleConns"`
	ConnMaxLifetime time.Duration `yaml:"connMaxLifetime"`
}

// DSN returns a lib/pq-compatible data source name.
func (p PostgresConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.Database, p.SSLMode,
	)
}

// KafkaConfig holds Kafka broker and topic settings.
type KafkaConfig struct {
	Enabled       bool        `yaml:"enabled"`
	Brokers       []string    `yaml:"brokers"`
	ConsumerGroup string      `yaml:"consumerGroup"`
	Topics        KafkaTopics `yaml:"topics"`
}

// KafkaTopics maps logical topic names to their Kafka topic strings.
type KafkaTopics struct {
	Transcripts     string `yaml:"transcripts"`
	Annotated       string `yaml:"annotated"`
	AnalyticsEvents string `yaml:"analyticsEvents"`
}

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	PoolSize int    `yaml:"poolSize"`
}

// CacheConfig controls the Redis-backed lookup cache.
type CacheConfig struct {
	Enabled          bool          `yaml:"enabled"`
	TTL              time.Duration `yaml:"ttl"`
	FailureThreshold int           `yaml:"failureThreshold"`
	ResetTimeout     time.Duration `yaml:"resetTimeout"`
}

// AnalyticsConfig controls lookup analytics aggregation and persistence.
type AnalyticsConfig struct {
	TopK             int           `yaml:"topK"`
	Persist          bool          `yaml:"persist"`
	SnapshotInterval time.Duration `yaml:"snapshotInterval"`
}

// LoggingConfig controls structured logging level and output format.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// MetricsConfig controls the Prometheus metrics server.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
	Port    int  `yaml:"port"`
}

// Load reads a YAML config file (if provided), applies environment-variable
// overrides and validates the result.
func Load(path string) (*Config, error) {
	cfg := defaultConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file %s: %w", path, err)
		}
	}
	applyEnvOverrides(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects settings the services cannot start with.
func (c *Config) Validate() error {
	if c.Knowledge.TopN < 1 {
		return fmt.Errorf("%w: knowledge.topN must be >= 1, got %d", apperrors.ErrInvalidInput, c.Knowledge.TopN)
	}
	if c.Knowledge.Threshold < 0 {
		return fmt.Errorf("%w: knowledge.threshold must be >= 0, got %g", apperrors.ErrInvalidInput, c.Knowledge.Threshold)
	}
	if c.Knowledge.KeywordBoost < 0 {
		return fmt.Errorf("%w: knowledge.keywordBoost must be >= 0, got %g", apperrors.ErrInvalidInput, c.Knowledge.KeywordBoost)
	}
	switch c.Corpus.Source {
	case CorpusEmbedded:
	case CorpusFile:
		if c.Corpus.Path == "" {
			return fmt.Errorf("%w: corpus.path is required for the file source", apperrors.ErrInvalidInput)
		}
	case CorpusPostgres:
		if c.Corpus.Table == "" {
			return fmt.Errorf("%w: corpus.table is required for the postgres source", apperrors.ErrInvalidInput)
		}
	default:
		return fmt.Errorf("%w: unknown corpus.source %q", apperrors.ErrInvalidInput, c.Corpus.Source)
	}
	for name, port := range map[string]int{"server.port": c.Server.Port, "metrics.port": c.Metrics.Port} {
		if port < 1 || port > 65535 {
			return fmt.Errorf("%w: %s out of range: %d", apperrors.ErrInvalidInput, name, port)
		}
	}
	return nil
}

func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     10 * time.Second,
			WriteTimeout:    10 * time.Second,
			RequestTimeout:  2 * time.Second,
			ShutdownTimeout: 15 * time.Second,
		},
		Knowledge: KnowledgeConfig{
			TopN:          2,
			Threshold:     0.05,
			KeywordBoost:  0.2,
			LookupTimeout: 150 * time.Millisecond,
		},
		Corpus: CorpusConfig{
			Source: CorpusEmbedded,
			Table:  "knowledge_documents",
		},
		Postgres: PostgresConfig{
			Host:            "localhost",
			Port:            5432,
			Database:        "voicecontext",
			User:            "voicecontext",
			Password:        "localdev",
			SSLMode:         "disable",
			MaxOpenConns:    10,
			MaxIdleConns:    2,
			ConnMaxLifetime: 5 * time.Minute,
		},
		Kafka: KafkaConfig{
			Brokers:       []string{"localhost:9092"},
			ConsumerGroup: "context-annotator",
			Topics: KafkaTopics{
				Transcripts:     "transcripts.text",
				Annotated:       "transcripts.annotated",
				AnalyticsEvents: "knowledge.lookups",
			},
		},
		Redis: RedisConfig{
			Addr:     "localhost:6379",
			PoolSize: 10,
		},
		Cache: CacheConfig{
			TTL:              5 * time.Minute,
			FailureThreshold: 5,
			ResetTimeout:     30 * time.Second,
		},
		Analytics: AnalyticsConfig{
			TopK:             10,
			SnapshotInterval: time.Minute,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Port:    9090,
		},
	}
}

// applyEnvOverrides reads VCE_* environment variables and overrides the
// corresponding config fields.
func applyEnvOverrides(cfg *Config) {
	setInt("VCE_SERVER_PORT", &cfg.Server.Port)
	setInt("VCE_METRICS_PORT", &cfg.Metrics.Port)
	setInt("VCE_KNOWLEDGE_TOP_N", &cfg.Knowledge.TopN)
	setFloat("VCE_KNOWLEDGE_THRESHOLD", &cfg.Knowledge.Threshold)
	setFloat("VCE_KNOWLEDGE_KEYWORD_BOOST", &cfg.Knowledge.KeywordBoost)
	setDuration("VCE_KNOWLEDGE_LOOKUP_TIMEOUT", &cfg.Knowledge.LookupTimeout)
	setString("VCE_CORPUS_SOURCE", &cfg.Corpus.Source)
	setString("VCE_CORPUS_PATH", &cfg.Corpus.Path)
	setString("VCE_CORPUS_TABLE", &cfg.Corpus.Table)
	setString("VCE_POSTGRES_HOST", &cfg.Postgres.Host)
	setInt("VCE_POSTGRES_PORT", &cfg.Postgres.Port)
	setString("VCE_POSTGRES_DATABASE", &cfg.Postgres.Database)
	setString("VCE_POSTGRES_USER", &cfg.Postgres.User)
	setString("VCE_POSTGRES_PASSWORD", &cfg.Postgres.Password)
	setString("VCE_POSTGRES_SSLMODE", &cfg.Postgres.SSLMode)
	setBool("VCE_KAFKA_ENABLED", &cfg.Kafka.Enabled)
	if v := os.Getenv("VCE_KAFKA_BROKERS"); v != "" {
		cfg.Kafka.Brokers = strings.Split(v, ",")
	}
	setString("VCE_REDIS_ADDR", &cfg.Redis.Addr)
	setString("VCE_REDIS_PASSWORD", &cfg.Redis.Password)
	setBool("VCE_CACHE_ENABLED", &cfg.Cache.Enabled)
	setBool("VCE_ANALYTICS_PERSIST", &cfg.Analytics.Persist)
	setString("VCE_LOGGING_LEVEL", &cfg.Logging.Level)
	setString("VCE_LOGGING_FORMAT", &cfg.Logging.Format)
}

func setString(key string, dst *string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(key string, dst *int) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setFloat(key string, dst *float64) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setBool(key string, dst *bool) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(key string, dst *time.Duration) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = d
		}
	}
}
