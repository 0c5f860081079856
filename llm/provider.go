package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/kmoai/kmoai/config"
)

// EndOfTurn is the chat-markup token some deployments leak into completions.
const EndOfTurn = "<|im_end|>"

// Provider generates text for a prompt.
type Provider interface {
	GenerateCompletion(ctx context.Context, prompt string, opts ...Option) (string, error)
	GetProviderType() string
}

// CallOptions are the per-call overrides a Provider honors.
type CallOptions struct {
	MaxTokens int
	Stop      []string
}

// Option mutates CallOptions.
type Option func(*CallOptions)

// WithMaxTokens caps the completion length.
func WithMaxTokens(n int) Option {
	return func(o *CallOptions) { o.MaxTokens = n }
}

// WithStop adds stop sequences.
func WithStop(stop ...string) Option {
	return func(o *CallOptions) { o.Stop = append(o.Stop, stop...) }
}

// ApplyOptions folds opts over the defaults.
func ApplyOptions(defaults CallOptions, opts ...Option) CallOptions {
	out := defaults
	out.Stop = append([]string(nil), defaults.Stop...)
	for _, o := range opts {
		o(&out)
	}
	return out
}

// StripEndOfTurn removes every end-of-turn marker and surrounding space.
func StripEndOfTurn(s string) string {
	return strings.TrimSpace(strings.ReplaceAll(s, EndOfTurn, ""))
}

// NewLLMProvider builds the provider named in cfg.
func NewLLMProvider(cfg config.LLMConfig, maxOutput int) (Provider, error) {
	switch strings.ToLower(cfg.Provider) {
	case "openai":
		return NewOpenAIProvider(cfg, maxOutput), nil
	default:
		return nil, fmt.Errorf("unsupported llm provider: %s", cfg.Provider)
	}
}
