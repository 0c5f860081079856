package memory

import "context"

// ConversationRound is one question/answer exchange.
type ConversationRound struct {
	Question string `json:"question"`
	Answer   string `json:"answer"`
}

// String renders the round in conversation buffer format.
func (r ConversationRound) String() string {
	return "Human: " + r.Question + "\nAI: " + r.Answer
}

// Summarizer condenses a history that has grown past the soft budget.
type Summarizer interface {
	Summarize(ctx context.Context, history string) (string, error)
}
