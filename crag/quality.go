package crag

import (
	"context"
	"fmt"
	"strings"

	"github.com/kmoai/kmoai/common/logger"
	"github.com/kmoai/kmoai/llm"
)

// QualityChecker asks the LLM whether an answer addresses its question.
type QualityChecker struct {
	Provider  llm.Provider
	MaxOutput int
}

var verdictCleaner = strings.NewReplacer(",", "", ".", "", llm.EndOfTurn, "")

// NormalizeVerdict reduces a raw QC reply to a bare lowercase word.
func NormalizeVerdict(raw string) string {
	return strings.TrimSpace(strings.ToLower(verdictCleaner.Replace(strings.TrimSpace(raw))))
}

// Check returns VerdictInadequate only when the model says "no". A failed
// call is reported as adequate together with the error.
func (q *QualityChecker) Check(ctx context.Context, question, answer string) (Verdict, error) {
	prompt := fmt.Sprintf(qualityPrompt, question, answer)
	response, err := q.Provider.GenerateCompletion(ctx, prompt, llm.WithMaxTokens(q.MaxOutput))
	if err != nil {
		logger.Warnf("QualityChecker: failed to call LLM, accepting answer: %v", err)
		return VerdictAdequate, err
	}

	reply := NormalizeVerdict(response)
	if reply == "no" {
		logger.Infof("QualityChecker: answer rejected")
		return VerdictInadequate, nil
	}
	return VerdictAdequate, nil
}
