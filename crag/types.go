package crag

import "context"

// Verdict is the quality checker's judgement of an answer.
type Verdict int

const (
	VerdictAdequate Verdict = iota
	VerdictInadequate
)

// String returns the string representation of Verdict
func (v Verdict) String() string {
	switch v {
	case VerdictAdequate:
		return "adequate"
	case VerdictInadequate:
		return "inadequate"
	default:
		return "unknown"
	}
}

// Evaluator condenses retrieved passages into a grounded context for query.
type Evaluator interface {
	Evaluate(ctx context.Context, query string, rawContext string) (string, error)
}

// Intent is the resolved purpose of a query. Keywords double as the cache
// namespace for cross-turn pre-context.
type Intent struct {
	Label    string
	Keywords string
}

// LabelChitChat marks small talk that bypasses retrieval entirely.
const LabelChitChat = "chit chat"

// LabelKnowledgeBase is the fallback label when extraction fails.
const LabelKnowledgeBase = "knowledge base"

// IsChitChat reports whether the intent short-circuits to the chit-chat responder.
func (i Intent) IsChitChat() bool { return i.Label == LabelChitChat }
