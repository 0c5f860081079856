package crag

import (
	"context"
	"fmt"

	"github.com/kmoai/kmoai/common/logger"
	"github.com/kmoai/kmoai/llm"
)

// Grounder uses an LLM to condense retrieved passages into the context the
// agent answers from. The passages are cut to fit the model window first.
type Grounder struct {
	Provider  llm.Provider
	Tokenizer llm.Tokenizer
	Model     string
	MaxOutput int
	// Disabled turns Evaluate into a pass-through.
	Disabled bool
}

// Allowance is the number of context tokens the grounding prompt can carry
// for query.
func (g *Grounder) Allowance(query string) int {
	empty := llm.Count(g.Tokenizer, fmt.Sprintf(groundingPrompt, "", ""))
	allowance := g.Tokenizer.ModelLimit(g.Model) - empty - g.MaxOutput - llm.Count(g.Tokenizer, query)
	if allowance < 0 {
		return 0
	}
	return allowance
}

// Evaluate implements the Evaluator interface.
func (g *Grounder) Evaluate(ctx context.Context, query string, rawContext string) (string, error) {
	if g.Disabled {
		return rawContext, nil
	}

	allowance := g.Allowance(query)
	contextText := llm.Head(g.Tokenizer, rawContext, allowance)
	prompt := fmt.Sprintf(groundingPrompt, contextText, query)

	response, err := g.Provider.GenerateCompletion(ctx, prompt, llm.WithMaxTokens(g.MaxOutput))
	if err != nil {
		logger.Warnf("Grounder: failed to call LLM: %v", err)
		return "", fmt.Errorf("grounding: %w", err)
	}

	logger.Debugf("Grounder: allowance=%d, context_tokens=%d", allowance, llm.Count(g.Tokenizer, contextText))
	return llm.StripEndOfTurn(response), nil
}
