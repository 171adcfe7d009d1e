package model

import "time"

// Config holds the full runtime configuration. Values are filled from
// defaults, then the config file, then QUAERO_* environment variables,
// then CLI flags.
type Config struct {
	LLM         LLMConfig         `yaml:"llm"`
	Store       StoreConfig       `yaml:"store"`
	Cache       CacheConfig       `yaml:"cache"`
	Pipeline    PipelineConfig    `yaml:"pipeline"`
	Concurrency ConcurrencyConfig `yaml:"concurrency"`
	Server      ServerConfig      `yaml:"server"`
	Log         LogConfig         `yaml:"log"`
}

// LLMConfig configures the language model backend used for planning,
// reasoning, verification and query embeddings.
type LLMConfig struct {
	Provider          string  `yaml:"provider"` // "openai", "ollama", "" (disabled)
	Model             string  `yaml:"model"`
	EmbeddingModel    string  `yaml:"embedding_model"`
	APIKey            string  `yaml:"api_key"`
	BaseURL           string  `yaml:"base_url"`
	Timeout           int     `yaml:"timeout"` // seconds per call
	MaxTokens         int     `yaml:"max_tokens"`
	RequestsPerSecond float64 `yaml:"requests_per_second"`
	Burst             int     `yaml:"burst"`

	// Proxy settings
	HTTPProxy  string `yaml:"http_proxy"`
	HTTPSProxy string `yaml:"https_proxy"`
	NoProxy    string `yaml:"no_proxy"`
}

// StoreConfig configures the three evidence sources.
type StoreConfig struct {
	Documents  DocumentStoreConfig `yaml:"documents"`
	Structured StructuredConfig    `yaml:"structured"`
	Feed       FeedConfig          `yaml:"feed"`
}

// DocumentStoreConfig points at the vector similarity index (Qdrant REST).
type DocumentStoreConfig struct {
	URL        string        `yaml:"url"`
	APIKey     string        `yaml:"api_key"`
	Collection string        `yaml:"collection"`
	TopK       int           `yaml:"top_k"`
	Timeout    time.Duration `yaml:"timeout"`
}

// StructuredConfig points at the yaml manifest of registered tables.
type StructuredConfig struct {
	ManifestPath string `yaml:"manifest_path"`
	MaxRows      int    `yaml:"max_rows"` // head rows returned per table
}

// FeedConfig configures the live bibliographic feed (arXiv API).
type FeedConfig struct {
	BaseURL           string        `yaml:"base_url"`
	MaxResults        int           `yaml:"max_results"`
	Timeout           time.Duration `yaml:"timeout"`
	UserAgent         string        `yaml:"user_agent"`
	RequestsPerSecond float64       `yaml:"requests_per_second"`
}

// CacheConfig configures the evidence cache.
type CacheConfig struct {
	Enabled   bool          `yaml:"enabled"`
	Dir       string        `yaml:"dir"` // disk layer directory; empty = memory only
	MemoryTTL time.Duration `yaml:"memory_ttl"`
	DiskTTL   time.Duration `yaml:"disk_ttl"`
}

// PipelineConfig holds the per-stage budgets and the query backpressure limit.
type PipelineConfig struct {
	PlanningTimeout      time.Duration `yaml:"planning_timeout"`
	RetrievalTimeout     time.Duration `yaml:"retrieval_timeout"`
	ReasoningTimeout     time.Duration `yaml:"reasoning_timeout"`
	VerificationTimeout  time.Duration `yaml:"verification_timeout"`
	QueryTimeout         time.Duration `yaml:"query_timeout"`
	MaxConcurrentQueries int64         `yaml:"max_concurrent_queries"`
}

// ConcurrencyConfig bounds fan-out inside one query.
type ConcurrencyConfig struct {
	RetrievalWorkers int `yaml:"retrieval_workers"`
}

// ServerConfig configures the HTTP query API.
type ServerConfig struct {
	Addr string `yaml:"addr"`
}

// LogConfig configures structured logging.
type LogConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // "json" or "text"
}

// DefaultConfig returns the built-in defaults.
func DefaultConfig() *Config {
	return &Config{
		LLM: LLMConfig{
			Provider:          "",
			Model:             "",
			EmbeddingModel:    "text-embedding-3-small",
			Timeout:           60,
			MaxTokens:         1500,
			RequestsPerSecond: 2,
			Burst:             4,
		},
		Store: StoreConfig{
			Documents: DocumentStoreConfig{
				URL:        "http://localhost:6333",
				Collection: "documents",
				TopK:       5,
				Timeout:    15 * time.Second,
			},
			Structured: StructuredConfig{
				ManifestPath: "data/sources.yaml",
				MaxRows:      20,
			},
			Feed: FeedConfig{
				BaseURL:           "http://export.arxiv.org/api/query",
				MaxResults:        15,
				Timeout:           30 * time.Second,
				UserAgent:         "Quaero/0.1 (+https://github.com/avolkov/quaero)",
				RequestsPerSecond: 0.33, // arXiv asks for ~3s between requests
			},
		},
		Cache: CacheConfig{
			Enabled:   true,
			MemoryTTL: 30 * time.Minute,
			DiskTTL:   24 * time.Hour,
		},
		Pipeline: PipelineConfig{
			PlanningTimeout:      30 * time.Second,
			RetrievalTimeout:     30 * time.Second,
			ReasoningTimeout:     60 * time.Second,
			VerificationTimeout:  30 * time.Second,
			QueryTimeout:         2 * time.Minute,
			MaxConcurrentQueries: 10,
		},
		Concurrency: ConcurrencyConfig{
			RetrievalWorkers: 4,
		},
		Server: ServerConfig{
			Addr: ":8080",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}
