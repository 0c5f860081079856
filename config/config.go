package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Agent chain selectors.
const (
	ChainZeroShot = "zs"
	ChainDocstore = "ds"
	ChainDirect   = "os"
)

// Config represents the main configuration structure for the orchestrator
type Config struct {
	LLM       LLMConfig       `json:"llm" yaml:"llm"`
	Tokens    TokenConfig     `json:"tokens" yaml:"tokens"`
	Agent     AgentConfig     `json:"agent" yaml:"agent"`
	Features  FeatureConfig   `json:"features" yaml:"features"`
	Cache     CacheConfig     `json:"cache" yaml:"cache"`
	Keyword   KeywordConfig   `json:"keyword" yaml:"keyword"`
	Index     IndexConfig     `json:"index" yaml:"index"`
	Embedding EmbeddingConfig `json:"embedding" yaml:"embedding"`
	VectorDB  VectorDBConfig  `json:"vectordb" yaml:"vectordb"`
	Web       WebConfig       `json:"web" yaml:"web"`
	Storage   StorageConfig   `json:"storage" yaml:"storage"`
	HTTP      HTTPConfig      `json:"http" yaml:"http"`
	Log       LogConfig       `json:"log" yaml:"log"`
	// PoolWidth bounds the number of back-end calls in flight across the process.
	PoolWidth int `json:"pool_width,omitempty" yaml:"pool_width,omitempty"`
}

// LLMConfig defines configuration for the completion service
type LLMConfig struct {
	Provider       string  `json:"provider" yaml:"provider"` // Available options: openai
	APIKey         string  `json:"api_key,omitempty" yaml:"api_key"`
	BaseURL        string  `json:"base_url,omitempty" yaml:"base_url,omitempty"`
	Model          string  `json:"model" yaml:"model"`
	Temperature    float64 `json:"temperature,omitempty" yaml:"temperature,omitempty"`
	MaxRetries     int     `json:"max_retries,omitempty" yaml:"max_retries,omitempty"`
	TimeoutSeconds int     `json:"timeout_seconds,omitempty" yaml:"timeout_seconds,omitempty"`
}

// TokenConfig holds every cap used in token-budget computations.
type TokenConfig struct {
	MaxOutput  int `json:"max_output" yaml:"max_output"`
	MaxQuery   int `json:"max_query" yaml:"max_query"`
	MaxHistory int `json:"max_history" yaml:"max_history"`
}

// AgentConfig selects the rung-0 chain and bounds the reasoning loop.
type AgentConfig struct {
	Chain         string `json:"chain" yaml:"chain"` // zs, ds or os
	MaxIterations int    `json:"max_iterations,omitempty" yaml:"max_iterations,omitempty"`
}

// FeatureConfig toggles tools and the corresponding code paths.
type FeatureConfig struct {
	UnifiedSearch  bool `json:"unified_search" yaml:"unified_search"`
	KeywordSearch  bool `json:"keyword_search" yaml:"keyword_search"`
	SemanticLookup bool `json:"semantic_lookup" yaml:"semantic_lookup"`
	IndexSearch    bool `json:"index_search" yaml:"index_search"`
	WebSearch      bool `json:"web_search" yaml:"web_search"`
	EvaluateStep   bool `json:"evaluate_step" yaml:"evaluate_step"`
	CheckAdequacy  bool `json:"check_adequacy" yaml:"check_adequacy"`
}

// CacheConfig defines the cache store backing every (namespace, field) entry
type CacheConfig struct {
	Store      string      `json:"store" yaml:"store"` // Available options: redis, memory
	TTLSeconds int         `json:"ttl_seconds" yaml:"ttl_seconds"`
	Capacity   int         `json:"capacity,omitempty" yaml:"capacity,omitempty"`
	Redis      RedisConfig `json:"redis" yaml:"redis"`
}

// RedisConfig is shared by the cache store and the keyword back-end.
type RedisConfig struct {
	Address  string `json:"address" yaml:"address"`
	Password string `json:"password,omitempty" yaml:"password,omitempty"`
	DB       int    `json:"db,omitempty" yaml:"db,omitempty"`
}

// KeywordConfig configures the RediSearch keyword back-end.
type KeywordConfig struct {
	Index        string `json:"index" yaml:"index"`
	TopK         int    `json:"top_k,omitempty" yaml:"top_k,omitempty"`
	ContentField string `json:"content_field,omitempty" yaml:"content_field,omitempty"`
}

// IndexConfig configures the Elasticsearch-compatible index back-end.
type IndexConfig struct {
	Endpoint string `json:"endpoint" yaml:"endpoint"`
	Index    string `json:"index" yaml:"index"`
	APIKey   string `json:"api_key,omitempty" yaml:"api_key,omitempty"`
	TopK     int    `json:"top_k,omitempty" yaml:"top_k,omitempty"`
}

// EmbeddingConfig defines configuration for embedding models
type EmbeddingConfig struct {
	Provider   string `json:"provider" yaml:"provider"` // Available options: openai
	APIKey     string `json:"api_key,omitempty" yaml:"api_key,omitempty"`
	BaseURL    string `json:"base_url,omitempty" yaml:"base_url,omitempty"`
	Model      string `json:"model,omitempty" yaml:"model,omitempty"`
	Dimensions int    `json:"dimensions,omitempty" yaml:"dimensions,omitempty"`
}

// VectorDBConfig defines configuration for the semantic lookup store
type VectorDBConfig struct {
	Provider    string `json:"provider" yaml:"provider"` // Available options: milvus
	Host        string `json:"host,omitempty" yaml:"host,omitempty"`
	Port        int    `json:"port,omitempty" yaml:"port,omitempty"`
	Database    string `json:"database,omitempty" yaml:"database,omitempty"`
	Collection  string `json:"collection,omitempty" yaml:"collection,omitempty"`
	Username    string `json:"username,omitempty" yaml:"username,omitempty"`
	Password    string `json:"password,omitempty" yaml:"password,omitempty"`
	VectorField string `json:"vector_field,omitempty" yaml:"vector_field,omitempty"`
	TopK        int    `json:"top_k,omitempty" yaml:"top_k,omitempty"`
	EF          int    `json:"ef,omitempty" yaml:"ef,omitempty"`
}

// WebConfig configures the online search back-end.
type WebConfig struct {
	Provider string `json:"provider" yaml:"provider"` // Available options: bing, duckduckgo
	Endpoint string `json:"endpoint,omitempty" yaml:"endpoint,omitempty"`
	APIKey   string `json:"api_key,omitempty" yaml:"api_key,omitempty"`
	TopK     int    `json:"top_k,omitempty" yaml:"top_k,omitempty"`
}

// StorageConfig configures signed links for blob citations.
type StorageConfig struct {
	AccountName    string `json:"account_name" yaml:"account_name"`
	AccountKey     string `json:"account_key,omitempty" yaml:"account_key,omitempty"`
	LinkTTLMinutes int    `json:"link_ttl_minutes,omitempty" yaml:"link_ttl_minutes,omitempty"`
	EndpointSuffix string `json:"endpoint_suffix,omitempty" yaml:"endpoint_suffix,omitempty"`
}

// HTTPConfig defines outbound HTTP client behavior for HTTP back-ends
type HTTPConfig struct {
	TimeoutMs              int      `json:"timeout_ms,omitempty" yaml:"timeout_ms,omitempty"`
	Retry                  int      `json:"retry,omitempty" yaml:"retry,omitempty"`
	BackoffMinMs           int      `json:"backoff_min_ms,omitempty" yaml:"backoff_min_ms,omitempty"`
	BackoffMaxMs           int      `json:"backoff_max_ms,omitempty" yaml:"backoff_max_ms,omitempty"`
	MaxConsecutiveFailures int      `json:"max_consecutive_failures,omitempty" yaml:"max_consecutive_failures,omitempty"`
	CircuitOpenSeconds     int      `json:"circuit_open_seconds,omitempty" yaml:"circuit_open_seconds,omitempty"`
	HostAllowlist          []string `json:"host_allowlist,omitempty" yaml:"host_allowlist,omitempty"`
}

// LogConfig controls the zap backend of the logger package.
type LogConfig struct {
	Level       string `json:"level,omitempty" yaml:"level,omitempty"`
	Development bool   `json:"development,omitempty" yaml:"development,omitempty"`
}

// Default returns a configuration with the production defaults applied.
func Default() *Config {
	return &Config{
		LLM: LLMConfig{
			Provider:       "openai",
			Model:          "gpt-35-turbo",
			Temperature:    0,
			MaxRetries:     5,
			TimeoutSeconds: 30,
		},
		Tokens: TokenConfig{
			MaxOutput:  750,
			MaxQuery:   500,
			MaxHistory: 1000,
		},
		Agent: AgentConfig{
			Chain:         ChainZeroShot,
			MaxIterations: 8,
		},
		Features: FeatureConfig{
			UnifiedSearch:  true,
			KeywordSearch:  true,
			SemanticLookup: true,
			IndexSearch:    true,
			EvaluateStep:   true,
			CheckAdequacy:  true,
		},
		Cache: CacheConfig{
			Store:      "redis",
			TTLSeconds: 3600,
			Capacity:   4096,
			Redis:      RedisConfig{Address: "localhost:6379"},
		},
		Keyword: KeywordConfig{
			Index:        "kmoai_index",
			TopK:         5,
			ContentField: "text_en",
		},
		Index: IndexConfig{TopK: 5},
		Embedding: EmbeddingConfig{
			Provider:   "openai",
			Model:      "text-embedding-ada-002",
			Dimensions: 1536,
		},
		VectorDB: VectorDBConfig{
			Provider:    "milvus",
			Port:        19530,
			Collection:  "kmoai",
			VectorField: "vector",
			TopK:        5,
			EF:          64,
		},
		Web: WebConfig{
			Provider: "bing",
			Endpoint: "https://api.bing.microsoft.com/v7.0/search",
			TopK:     10,
		},
		Storage: StorageConfig{
			LinkTTLMinutes: 60,
			EndpointSuffix: "core.windows.net",
		},
		Log:       LogConfig{Level: "info"},
		PoolWidth: 6,
	}
}

// Load builds a configuration from defaults, an optional YAML file and
// environment overrides, then validates it.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnv overrides fields from environment variables. lookup has the
// signature of os.LookupEnv so tests can supply a map.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	num := func(key string, dst *int) error {
		v, ok := lookup(key)
		if !ok || v == "" {
			return nil
		}
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("env %s: %w", key, err)
		}
		*dst = n
		return nil
	}

	str("CHOSEN_COMP_MODEL", &c.LLM.Model)
	str("OPENAI_API_KEY", &c.LLM.APIKey)
	str("OPENAI_BASE_URL", &c.LLM.BaseURL)
	str("REDIS_ADDR", &c.Cache.Redis.Address)
	str("REDIS_PASSWORD", &c.Cache.Redis.Password)
	str("BING_SUBSCRIPTION_KEY", &c.Web.APIKey)
	str("BLOB_ACCOUNT_NAME", &c.Storage.AccountName)
	str("BLOB_ACCOUNT_KEY", &c.Storage.AccountKey)
	str("KMOAI_AGENT_CHAIN", &c.Agent.Chain)

	for key, dst := range map[string]*int{
		"MAX_OUTPUT_TOKENS":     &c.Tokens.MaxOutput,
		"MAX_QUERY_TOKENS":      &c.Tokens.MaxQuery,
		"MAX_HISTORY_TOKENS":    &c.Tokens.MaxHistory,
		"CONVERSATION_TTL_SECS": &c.Cache.TTLSeconds,
	} {
		if err := num(key, dst); err != nil {
			return err
		}
	}

	if v, ok := lookup("USE_BING"); ok && v != "" {
		c.Features.WebSearch = strings.EqualFold(strings.TrimSpace(v), "yes")
	}
	return nil
}

// TTL is the process-wide expiry applied to every cache write.
func (c *Config) TTL() time.Duration {
	return time.Duration(c.Cache.TTLSeconds) * time.Second
}

// RequestTimeout bounds a single completion call.
func (c *Config) RequestTimeout() time.Duration {
	if c.LLM.TimeoutSeconds <= 0 {
		return 30 * time.Second
	}
	return time.Duration(c.LLM.TimeoutSeconds) * time.Second
}

// MilvusAddress joins host and port for the milvus client.
func (c VectorDBConfig) MilvusAddress() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
