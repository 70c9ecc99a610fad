package ingest

import (
	"os"
	"runtime"
	"strconv"
	"time"
)

// Config holds ingestion pipeline configuration
type Config struct {
	Workers       int
	QueueSize     int
	PollInterval  time.Duration
	LeaseTTL      time.Duration
	FetchTimeout  time.Duration
	FetchRetries  int
	FetchBackoff  time.Duration
	ChunkDuration time.Duration
	DownloadDir   string
	ChunksDir     string
	SplitPoolSize int
}

// DefaultConfig returns the default ingestion configuration, overridable via
// environment variables. The split pool is sized to available cores since
// media cutting is CPU-bound, decoupled from the I/O-bound fetch workers.
func DefaultConfig() *Config {
	return &Config{
		Workers:       envInt("INGEST_WORKERS", 5),
		QueueSize:     envInt("INGEST_QUEUE_SIZE", 100),
		PollInterval:  envDuration("INGEST_POLL_INTERVAL", 10*time.Second),
		LeaseTTL:      envDuration("INGEST_LEASE_TTL", 5*time.Minute),
		FetchTimeout:  envDuration("INGEST_FETCH_TIMEOUT", 10*time.Minute),
		FetchRetries:  3,
		FetchBackoff:  envDuration("INGEST_FETCH_BACKOFF", 2*time.Second),
		ChunkDuration: envDuration("INGEST_CHUNK_DURATION", 60*time.Second),
		DownloadDir:   envString("INGEST_DOWNLOAD_DIR", os.TempDir()),
		ChunksDir:     envString("INGEST_CHUNKS_DIR", "./chunks"),
		SplitPoolSize: envInt("INGEST_SPLIT_POOL_SIZE", runtime.NumCPU()),
	}
}

func envString(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func envInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil && n > 0 {
			return n
		}
	}
	return defaultValue
}

func envDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil && d > 0 {
			return d
		}
	}
	return defaultValue
}
