// Package config loads process configuration once at startup from
// environment variables: typed getEnv* helpers, sensible defaults, optional .env loading left
// to main.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

func generateWorkerID() string {
	hostname, _ := os.Hostname()
	if hostname == "" {
		hostname = "mailrouter"
	}
	return fmt.Sprintf("%s-%d", hostname, os.Getpid())
}

type Config struct {
	WorkerID string

	// Broker (Redis Streams)
	RedisURL      string
	ConsumerGroup string

	// IMAP
	IMAPServer           string
	IMAPUser             string
	IMAPPassword         string
	IMAPProviderOverride string
	IMAPInitialScanDays  int

	// Storage
	DatabaseURL string

	// LLM
	OpenAIAPIKey string
	LLMModel     string

	// Embedding
	EmbeddingAPIKey string
	EmbeddingModel  string

	// SemanticFilter
	WatcherCacheOnly bool
	WatcherCacheTTL  time.Duration
	TopK             int

	// Subject gate
	SubjectGateEnabled bool

	// Poller
	ScanBatchCap        int
	PollInterval        time.Duration
	InitialPollInterval time.Duration

	// Per-stage worker pools
	PoolMinWorkers map[string]int
	PoolMaxWorkers map[string]int

	// RPC timeouts
	IMAPTimeout      time.Duration
	LLMTimeout       time.Duration
	EmbeddingTimeout time.Duration
	BrokerTimeout    time.Duration

	// DLQ
	MaxRedeliveries int
}

func Load() (*Config, error) {
	cfg := &Config{
		WorkerID: getEnv("WORKER_ID", generateWorkerID()),

		RedisURL:      getEnv("REDIS_URL", "redis://localhost:6379/0"),
		ConsumerGroup: getEnv("CONSUMER_GROUP", "mailrouter-stages"),

		IMAPServer:           getEnv("IMAP_SERVER", ""),
		IMAPUser:             getEnv("IMAP_USER", ""),
		IMAPPassword:         getEnv("IMAP_PASSWORD", ""),
		IMAPProviderOverride: getEnv("IMAP_PROVIDER_OVERRIDE", ""),
		IMAPInitialScanDays:  getEnvInt("IMAP_INITIAL_SCAN_DAYS", 450),

		DatabaseURL: getEnv("DATABASE_URL", ""),

		OpenAIAPIKey: getEnv("OPENAI_API_KEY", ""),
		LLMModel:     getEnv("LLM_MODEL", "gpt-4o-mini"),

		EmbeddingAPIKey: getEnv("EMBEDDING_API_KEY", getEnv("OPENAI_API_KEY", "")),
		EmbeddingModel:  getEnv("EMBEDDING_MODEL", "text-embedding-3-small"),

		WatcherCacheOnly: getEnvBool("WATCHER_CACHE_ONLY", false),
		WatcherCacheTTL:  time.Duration(getEnvInt("WATCHER_CACHE_TTL_SEC", 60)) * time.Second,
		TopK:             getEnvInt("WATCHER_TOP_K", 5),

		SubjectGateEnabled: getEnvBool("SUBJECT_GATE_ENABLED", false),

		ScanBatchCap:        getEnvInt("SCAN_BATCH_CAP", 100),
		PollInterval:        time.Duration(getEnvInt("POLL_INTERVAL_SEC", 30)) * time.Second,
		InitialPollInterval: time.Duration(getEnvInt("INITIAL_POLL_INTERVAL_SEC", 60)) * time.Second,

		PoolMinWorkers: map[string]int{
			"poller":         getEnvInt("POOL_MIN_POLLER", 1),
			"normalizer":     getEnvInt("POOL_MIN_NORMALIZER", 2),
			"semanticfilter": getEnvInt("POOL_MIN_SEMANTICFILTER", 4),
			"classifier":     getEnvInt("POOL_MIN_CLASSIFIER", 4),
			"persister":      getEnvInt("POOL_MIN_PERSISTER", 2),
		},
		PoolMaxWorkers: map[string]int{
			"poller":         getEnvInt("POOL_MAX_POLLER", 2),
			"normalizer":     getEnvInt("POOL_MAX_NORMALIZER", 8),
			"semanticfilter": getEnvInt("POOL_MAX_SEMANTICFILTER", 16),
			"classifier":     getEnvInt("POOL_MAX_CLASSIFIER", 16),
			"persister":      getEnvInt("POOL_MAX_PERSISTER", 8),
		},

		IMAPTimeout:      time.Duration(getEnvInt("IMAP_TIMEOUT_SEC", 10)) * time.Second,
		LLMTimeout:       time.Duration(getEnvInt("LLM_TIMEOUT_SEC", 30)) * time.Second,
		EmbeddingTimeout: time.Duration(getEnvInt("EMBEDDING_TIMEOUT_SEC", 5)) * time.Second,
		BrokerTimeout:    time.Duration(getEnvInt("BROKER_TIMEOUT_SEC", 5)) * time.Second,

		MaxRedeliveries: getEnvInt("MAX_REDELIVERIES", 5),
	}
	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if v := os.Getenv(key); v != "" {
		if iv, err := strconv.Atoi(v); err == nil {
			return iv
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if v := os.Getenv(key); v != "" {
		if bv, err := strconv.ParseBool(v); err == nil {
			return bv
		}
	}
	return defaultValue
}
