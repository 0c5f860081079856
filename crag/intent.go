package crag

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/kmoai/kmoai/common/logger"
	"github.com/kmoai/kmoai/llm"
)

// IntentExtractor classifies a query and pulls out its topic keywords.
type IntentExtractor struct {
	Provider  llm.Provider
	MaxOutput int
}

var (
	intentLine   = regexp.MustCompile(`(?im)^\s*intent:\s*(.+)$`)
	keywordsLine = regexp.MustCompile(`(?im)^\s*keywords:\s*(.+)$`)
	intentClean  = strings.NewReplacer(",", "", ".", "", llm.EndOfTurn, "")
)

// fallbackIntent is used whenever extraction fails.
var fallbackIntent = Intent{Label: LabelKnowledgeBase}

// Extract never fails: any error yields the knowledge-base intent with no
// keywords.
func (e *IntentExtractor) Extract(ctx context.Context, query string) Intent {
	response, err := e.Provider.GenerateCompletion(ctx, fmt.Sprintf(intentPrompt, query), llm.WithMaxTokens(e.MaxOutput))
	if err != nil {
		logger.Warnf("IntentExtractor: failed to call LLM: %v", err)
		return fallbackIntent
	}
	intent, ok := ParseIntent(response)
	if !ok {
		logger.Warnf("IntentExtractor: no intent line in response: %q", response)
		return fallbackIntent
	}
	return intent
}

// ParseIntent reads the "Intent:" and "Keywords:" lines of a reply.
func ParseIntent(response string) (Intent, bool) {
	im := intentLine.FindStringSubmatch(response)
	km := keywordsLine.FindStringSubmatch(response)
	if im == nil || km == nil {
		return Intent{}, false
	}
	label := strings.ToLower(strings.TrimSpace(intentClean.Replace(im[1])))
	if label == "" {
		return Intent{}, false
	}
	return Intent{
		Label:    label,
		Keywords: strings.TrimSpace(intentClean.Replace(km[1])),
	}, true
}
