package llm

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/option"

	"github.com/kmoai/kmoai/common/logger"
	"github.com/kmoai/kmoai/config"
)

// OpenAIProvider calls an OpenAI-compatible chat completion endpoint.
type OpenAIProvider struct {
	client      openai.Client
	model       string
	temperature float64
	retries     uint
	timeout     time.Duration
	retryDelay  time.Duration
	defaults    CallOptions
}

// NewOpenAIProvider builds a provider. Retries are handled here rather
// than by the SDK so every attempt gets its own timeout.
func NewOpenAIProvider(cfg config.LLMConfig, maxOutput int) *OpenAIProvider {
	opts := []option.RequestOption{option.WithMaxRetries(0)}
	if cfg.APIKey != "" {
		opts = append(opts, option.WithAPIKey(cfg.APIKey))
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	retries := cfg.MaxRetries
	if retries <= 0 {
		retries = 5
	}
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &OpenAIProvider{
		client:      openai.NewClient(opts...),
		model:       cfg.Model,
		temperature: cfg.Temperature,
		retries:     uint(retries),
		timeout:     timeout,
		retryDelay:  time.Second,
		defaults:    CallOptions{MaxTokens: maxOutput, Stop: []string{EndOfTurn}},
	}
}

func (p *OpenAIProvider) GetProviderType() string { return "openai" }

func (p *OpenAIProvider) GenerateCompletion(ctx context.Context, prompt string, opts ...Option) (string, error) {
	co := ApplyOptions(p.defaults, opts...)
	params := openai.ChatCompletionNewParams{
		Model:       openai.ChatModel(p.model),
		Messages:    []openai.ChatCompletionMessageParamUnion{openai.UserMessage(prompt)},
		Temperature: openai.Float(p.temperature),
	}
	if co.MaxTokens > 0 {
		params.MaxTokens = openai.Int(int64(co.MaxTokens))
	}
	if len(co.Stop) > 0 {
		// the API accepts at most four stop sequences
		stop := co.Stop
		if len(stop) > 4 {
			stop = stop[:4]
		}
		params.Stop = openai.ChatCompletionNewParamsStopUnion{OfStringArray: stop}
	}

	var out string
	err := retry.Do(
		func() error {
			cctx, cancel := context.WithTimeout(ctx, p.timeout)
			defer cancel()
			resp, err := p.client.Chat.Completions.New(cctx, params)
			if err != nil {
				return err
			}
			if len(resp.Choices) == 0 {
				return retry.Unrecoverable(errors.New("completion returned no choices"))
			}
			out = resp.Choices[0].Message.Content
			return nil
		},
		retry.Context(ctx),
		retry.Attempts(p.retries),
		retry.Delay(p.retryDelay),
		retry.MaxDelay(10*time.Second),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(n uint, err error) {
			logger.Warnf("llm: completion attempt %d failed: %v", n+1, err)
		}),
	)
	if err != nil {
		return "", fmt.Errorf("openai completion (%s): %w", p.model, err)
	}
	return out, nil
}
