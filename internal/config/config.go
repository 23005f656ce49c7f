package config

import (
	"os"
	"strconv"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/cockroachdb/errors"
)

type Config struct {
	Port string `toml:"port"`

	// Auth
	APIKey string `toml:"api_key"`

	// Image descriptions; disabled without a key.
	AnthropicAPIKey string        `toml:"anthropic_api_key"`
	AnthropicModel  string        `toml:"anthropic_model"`
	DescribeRPS     float64       `toml:"describe_rps"`
	DescribeTimeout time.Duration `toml:"describe_timeout"`

	// Worker pool
	WorkerCount          int `toml:"worker_count"`
	MaxQueueSize         int `toml:"max_queue_size"`
	MaxConcurrentConvert int `toml:"max_concurrent_convert"`

	// Limits
	MaxUploadBytes       int64 `toml:"max_upload_bytes"`
	MaxUncompressedBytes int64 `toml:"max_uncompressed_bytes"`
	MaxZipEntries        int   `toml:"max_zip_entries"`
	MaxImageBytes        int64 `toml:"max_image_bytes"`
	MaxXMLDepth          int   `toml:"max_xml_depth"`

	CacheEntries int `toml:"cache_entries"`

	// Chunking defaults
	DefaultChunkSize    int `toml:"default_chunk_size"`
	DefaultChunkOverlap int `toml:"default_chunk_overlap"`

	// Job state
	JobTTL time.Duration `toml:"job_ttl"`
}

func defaults() Config {
	return Config{
		Port:                 "8090",
		AnthropicModel:       "claude-sonnet-4-5-20250929",
		DescribeRPS:          5,
		DescribeTimeout:      60 * time.Second,
		WorkerCount:          4,
		MaxQueueSize:         100,
		MaxConcurrentConvert: 4,
		MaxUploadBytes:       100 << 20,
		MaxUncompressedBytes: 500 << 20,
		MaxZipEntries:        10000,
		MaxImageBytes:        50 << 20,
		MaxXMLDepth:          256,
		CacheEntries:         256,
		DefaultChunkSize:     1500,
		DefaultChunkOverlap:  200,
		JobTTL:               1 * time.Hour,
	}
}

// Load reads defaults, then the TOML file named by DOCMARK_CONFIG if set,
// then environment overrides.
func Load() (Config, error) {
	cfg := defaults()
	if path := os.Getenv("DOCMARK_CONFIG"); path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return cfg, errors.Wrapf(err, "read config %s", path)
		}
	}

	cfg.Port = envOr("PORT", cfg.Port)
	cfg.APIKey = envOr("DOCMARK_API_KEY", cfg.APIKey)

	cfg.AnthropicAPIKey = envOr("ANTHROPIC_API_KEY", cfg.AnthropicAPIKey)
	cfg.AnthropicModel = envOr("ANTHROPIC_MODEL", cfg.AnthropicModel)
	cfg.DescribeRPS = envFloat("DESCRIBE_RPS", cfg.DescribeRPS)
	cfg.DescribeTimeout = envDuration("DESCRIBE_TIMEOUT", cfg.DescribeTimeout)

	cfg.WorkerCount = envInt("WORKER_COUNT", cfg.WorkerCount)
	cfg.MaxQueueSize = envInt("MAX_QUEUE_SIZE", cfg.MaxQueueSize)
	cfg.MaxConcurrentConvert = envInt("MAX_CONCURRENT_CONVERT", cfg.MaxConcurrentConvert)

	cfg.MaxUploadBytes = envInt64("MAX_UPLOAD_BYTES", cfg.MaxUploadBytes)
	cfg.MaxUncompressedBytes = envInt64("MAX_UNCOMPRESSED_BYTES", cfg.MaxUncompressedBytes)
	cfg.MaxZipEntries = envInt("MAX_ZIP_ENTRIES", cfg.MaxZipEntries)
	cfg.MaxImageBytes = envInt64("MAX_IMAGE_BYTES", cfg.MaxImageBytes)
	cfg.MaxXMLDepth = envInt("MAX_XML_DEPTH", cfg.MaxXMLDepth)

	cfg.CacheEntries = envInt("CACHE_ENTRIES", cfg.CacheEntries)

	cfg.DefaultChunkSize = envInt("DEFAULT_CHUNK_SIZE", cfg.DefaultChunkSize)
	cfg.DefaultChunkOverlap = envInt("DEFAULT_CHUNK_OVERLAP", cfg.DefaultChunkOverlap)

	cfg.JobTTL = envDuration("JOB_TTL", cfg.JobTTL)

	d := defaults()
	if cfg.WorkerCount <= 0 {
		cfg.WorkerCount = d.WorkerCount
	}
	if cfg.MaxQueueSize <= 0 {
		cfg.MaxQueueSize = d.MaxQueueSize
	}
	if cfg.MaxConcurrentConvert <= 0 {
		cfg.MaxConcurrentConvert = d.MaxConcurrentConvert
	}
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = d.MaxUploadBytes
	}
	if cfg.MaxUncompressedBytes <= 0 {
		cfg.MaxUncompressedBytes = d.MaxUncompressedBytes
	}
	if cfg.MaxZipEntries <= 0 {
		cfg.MaxZipEntries = d.MaxZipEntries
	}
	if cfg.MaxImageBytes <= 0 {
		cfg.MaxImageBytes = d.MaxImageBytes
	}
	if cfg.MaxXMLDepth <= 0 {
		cfg.MaxXMLDepth = d.MaxXMLDepth
	}
	if cfg.DefaultChunkSize <= 0 {
		cfg.DefaultChunkSize = d.DefaultChunkSize
	}
	if cfg.DefaultChunkOverlap <= 0 {
		cfg.DefaultChunkOverlap = d.DefaultChunkOverlap
	}
	if cfg.JobTTL <= 0 {
		cfg.JobTTL = d.JobTTL
	}

	return cfg, nil
}

// DescribeEnabled reports whether image descriptions can be requested.
func (c Config) DescribeEnabled() bool {
	return c.AnthropicAPIKey != ""
}

func (c Config) Validate() error {
	if c.APIKey == "" {
		return errors.New("DOCMARK_API_KEY is required")
	}
	if c.DefaultChunkOverlap >= c.DefaultChunkSize {
		return errors.Newf("DEFAULT_CHUNK_OVERLAP (%d) must be smaller than DEFAULT_CHUNK_SIZE (%d)",
			c.DefaultChunkOverlap, c.DefaultChunkSize)
	}
	if c.MaxUploadBytes > c.MaxUncompressedBytes {
		return errors.WithHint(
			errors.Newf("MAX_UPLOAD_BYTES (%d) exceeds MAX_UNCOMPRESSED_BYTES (%d)", c.MaxUploadBytes, c.MaxUncompressedBytes),
			"the uncompressed budget should be at least the upload size")
	}
	return nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envInt64(key string, fallback int64) int64 {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return n
		}
	}
	return fallback
}

func envFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
