package config

import (
	"fmt"
	"strings"
)

// ValidationError represents a configuration validation error
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("config validation error [%s]: %s", e.Field, e.Message)
}

// ValidationErrors is a collection of validation errors
type ValidationErrors []ValidationError

func (errs ValidationErrors) Error() string {
	if len(errs) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString(fmt.Sprintf("found %d configuration error(s):\n", len(errs)))
	for i, err := range errs {
		b.WriteString(fmt.Sprintf("  %d. %s\n", i+1, err.Message))
	}
	return b.String()
}

// Validate validates the complete configuration
func (c *Config) Validate() error {
	var errs ValidationErrors

	errs = append(errs, c.validateLLM()...)
	errs = append(errs, c.validateTokens()...)
	errs = append(errs, c.validateAgent()...)
	errs = append(errs, c.validateCache()...)
	errs = append(errs, c.validateBackends()...)

	if c.PoolWidth <= 0 {
		errs = append(errs, ValidationError{
			Field:   "pool_width",
			Message: fmt.Sprintf("pool_width must be positive, got %d", c.PoolWidth),
		})
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}

func (c *Config) validateLLM() ValidationErrors {
	var errs ValidationErrors

	if c.LLM.Model == "" {
		errs = append(errs, ValidationError{
			Field:   "llm.model",
			Message: "completion model is required",
		})
	}

	switch strings.ToLower(c.LLM.Provider) {
	case "openai":
	default:
		errs = append(errs, ValidationError{
			Field:   "llm.provider",
			Message: fmt.Sprintf("unsupported llm provider %q", c.LLM.Provider),
		})
	}

	if c.LLM.Temperature < 0 || c.LLM.Temperature > 2 {
		errs = append(errs, ValidationError{
			Field:   "llm.temperature",
			Message: fmt.Sprintf("llm.temperature must be in [0, 2], got %.2f", c.LLM.Temperature),
		})
	}

	return errs
}

func (c *Config) validateTokens() ValidationErrors {
	var errs ValidationErrors

	for field, v := range map[string]int{
		"tokens.max_output":  c.Tokens.MaxOutput,
		"tokens.max_query":   c.Tokens.MaxQuery,
		"tokens.max_history": c.Tokens.MaxHistory,
	} {
		if v <= 0 {
			errs = append(errs, ValidationError{
				Field:   field,
				Message: fmt.Sprintf("%s must be positive, got %d", field, v),
			})
		}
	}

	return errs
}

func (c *Config) validateAgent() ValidationErrors {
	var errs ValidationErrors

	switch c.Agent.Chain {
	case ChainZeroShot, ChainDocstore, ChainDirect:
	default:
		errs = append(errs, ValidationError{
			Field:   "agent.chain",
			Message: fmt.Sprintf("agent.chain must be one of zs, ds, os; got %q", c.Agent.Chain),
		})
	}

	if c.Agent.MaxIterations <= 0 {
		errs = append(errs, ValidationError{
			Field:   "agent.max_iterations",
			Message: fmt.Sprintf("agent.max_iterations must be positive, got %d", c.Agent.MaxIterations),
		})
	}

	return errs
}

func (c *Config) validateCache() ValidationErrors {
	var errs ValidationErrors

	switch strings.ToLower(c.Cache.Store) {
	case "redis":
		if c.Cache.Redis.Address == "" {
			errs = append(errs, ValidationError{
				Field:   "cache.redis.address",
				Message: "redis address is required for the redis cache store",
			})
		}
	case "memory":
	default:
		errs = append(errs, ValidationError{
			Field:   "cache.store",
			Message: fmt.Sprintf("unsupported cache store %q", c.Cache.Store),
		})
	}

	if c.Cache.TTLSeconds <= 0 {
		errs = append(errs, ValidationError{
			Field:   "cache.ttl_seconds",
			Message: fmt.Sprintf("cache.ttl_seconds must be positive, got %d", c.Cache.TTLSeconds),
		})
	}

	return errs
}

// validateBackends checks only the back-ends that are switched on.
func (c *Config) validateBackends() ValidationErrors {
	var errs ValidationErrors

	if c.Features.KeywordSearch && c.Keyword.Index == "" {
		errs = append(errs, ValidationError{
			Field:   "keyword.index",
			Message: "keyword.index is required when keyword search is enabled",
		})
	}

	if c.Features.SemanticLookup {
		if !strings.EqualFold(c.VectorDB.Provider, "milvus") {
			errs = append(errs, ValidationError{
				Field:   "vectordb.provider",
				Message: fmt.Sprintf("unsupported vectordb provider %q", c.VectorDB.Provider),
			})
		}
		if c.VectorDB.Collection == "" {
			errs = append(errs, ValidationError{
				Field:   "vectordb.collection",
				Message: "collection name is required for milvus provider",
			})
		}
		if c.Embedding.Model == "" {
			errs = append(errs, ValidationError{
				Field:   "embedding.model",
				Message: "embedding model is required when semantic lookup is enabled",
			})
		}
	}

	if c.Features.IndexSearch && c.Index.Endpoint != "" && c.Index.Index == "" {
		errs = append(errs, ValidationError{
			Field:   "index.index",
			Message: "index name is required when an index endpoint is set",
		})
	}

	if c.Features.WebSearch {
		switch strings.ToLower(c.Web.Provider) {
		case "bing":
			if c.Web.APIKey == "" {
				errs = append(errs, ValidationError{
					Field:   "web.api_key",
					Message: "bing subscription key is required when web search is enabled",
				})
			}
		case "duckduckgo":
		default:
			errs = append(errs, ValidationError{
				Field:   "web.provider",
				Message: fmt.Sprintf("unsupported web search provider %q", c.Web.Provider),
			})
		}
	}

	return errs
}
