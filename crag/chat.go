package crag

import (
	"context"
	"fmt"

	"github.com/kmoai/kmoai/common/logger"
	"github.com/kmoai/kmoai/llm"
)

// ChitChat answers small talk without touching the knowledge base.
type ChitChat struct {
	Provider  llm.Provider
	MaxOutput int
}

// Reply returns the trimmed, marker-free response.
func (c *ChitChat) Reply(ctx context.Context, query string) (string, error) {
	response, err := c.Provider.GenerateCompletion(ctx, fmt.Sprintf(chitChatPrompt, query), llm.WithMaxTokens(c.MaxOutput))
	if err != nil {
		logger.Warnf("ChitChat: failed to call LLM: %v", err)
		return "", err
	}
	return llm.StripEndOfTurn(response), nil
}

// Summarizer condenses conversation history.
type Summarizer struct {
	Provider  llm.Provider
	MaxOutput int
}

// Summarize returns a summary of history, or history itself when the call fails.
func (s *Summarizer) Summarize(ctx context.Context, history string) (string, error) {
	if s.Provider == nil {
		return history, nil
	}
	response, err := s.Provider.GenerateCompletion(ctx, fmt.Sprintf(summarizePrompt, history), llm.WithMaxTokens(s.MaxOutput))
	if err != nil {
		logger.Warnf("Summarizer: failed to summarize history, keeping original: %v", err)
		return history, err
	}
	summary := llm.StripEndOfTurn(response)
	if summary == "" {
		return history, nil
	}
	logger.Debugf("Summarizer: %d -> %d chars", len(history), len(summary))
	return summary, nil
}
