package agent

import (
	"context"
	"fmt"
	"strings"

	"github.com/kmoai/kmoai/llm"
)

// DirectSearch is the os strategy: one search, then one answer completion.
// No tool selection takes place.
type DirectSearch struct {
	Provider  llm.Provider
	Tokenizer llm.Tokenizer
	Model     string
	MaxOutput int
	Search    Tool
}

func (d *DirectSearch) Name() string { return "os" }

func (d *DirectSearch) Run(ctx context.Context, in Input) (string, error) {
	if d.Search.Run == nil {
		return "", fmt.Errorf("direct search: no search tool enabled")
	}
	found, err := d.Search.Run(ctx, in.Query)
	if err != nil {
		return "", fmt.Errorf("direct search: %w", err)
	}

	found = llm.Head(d.Tokenizer, found, d.contextAllowance(in))
	prompt := d.render(in, found)
	out, err := d.Provider.GenerateCompletion(ctx, prompt, llm.WithMaxTokens(d.MaxOutput))
	if err != nil {
		return "", fmt.Errorf("direct search completion: %w", err)
	}
	return llm.StripEndOfTurn(out), nil
}

func (d *DirectSearch) contextAllowance(in Input) int {
	empty := llm.Count(d.Tokenizer, d.render(Input{}, ""))
	n := d.Tokenizer.ModelLimit(d.Model) - d.MaxOutput - empty -
		llm.Count(d.Tokenizer, in.Query) -
		llm.Count(d.Tokenizer, in.History) -
		llm.Count(d.Tokenizer, in.PreContext)
	if n < 0 {
		return 0
	}
	return n
}

func (d *DirectSearch) render(in Input, found string) string {
	return strings.NewReplacer(
		"{history}", in.History,
		"{pre_context}", in.PreContext,
		"{context}", found,
		"{input}", in.Query,
	).Replace(directTemplate)
}
