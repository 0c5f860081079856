package crag

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kmoai/kmoai/llm"
)

// MockLLMProvider is a mock implementation of llm.Provider for testing
type MockLLMProvider struct {
	response string
	err      error
	prompts  []string
	opts     []llm.CallOptions
}

func (m *MockLLMProvider) GenerateCompletion(ctx context.Context, prompt string, opts ...llm.Option) (string, error) {
	m.prompts = append(m.prompts, prompt)
	m.opts = append(m.opts, llm.ApplyOptions(llm.CallOptions{}, opts...))
	if m.err != nil {
		return "", m.err
	}
	return m.response, nil
}

func (m *MockLLMProvider) GetProviderType() string {
	return "mock"
}

func TestGrounderEvaluate(t *testing.T) {
	tok := llm.RuneTokenizer{}
	mock := &MockLLMProvider{response: "Grounded facts [hr/leave.pdf]<|im_end|>"}
	g := &Grounder{Provider: mock, Tokenizer: tok, Model: "gpt-35-turbo", MaxOutput: 100}

	got, err := g.Evaluate(context.Background(), "leave?", "Leave is 25 days [hr/leave.pdf]")
	require.NoError(t, err)
	assert.Equal(t, "Grounded facts [hr/leave.pdf]", got)
	require.Len(t, mock.prompts, 1)
	assert.Contains(t, mock.prompts[0], "Leave is 25 days [hr/leave.pdf]")
	assert.Contains(t, mock.prompts[0], "Question: leave?")
	assert.Equal(t, 100, mock.opts[0].MaxTokens)
}

func TestGrounderAllowance(t *testing.T) {
	tok := llm.RuneTokenizer{}
	g := &Grounder{Tokenizer: tok, Model: "gpt-35-turbo", MaxOutput: 750}
	empty := llm.Count(tok, fmt.Sprintf(groundingPrompt, "", ""))

	assert.Equal(t, tok.ModelLimit("gpt-35-turbo")-empty-750-5, g.Allowance("query"))

	g.MaxOutput = 1 << 20
	assert.Equal(t, 0, g.Allowance("query"))
}

func TestGrounderTruncatesContext(t *testing.T) {
	tok := llm.RuneTokenizer{}
	mock := &MockLLMProvider{response: "ok"}
	g := &Grounder{Provider: mock, Tokenizer: tok, Model: "gpt-35-turbo", MaxOutput: 100}
	allowance := g.Allowance("q")

	raw := strings.Repeat("a", allowance) + strings.Repeat("#", 500)
	_, err := g.Evaluate(context.Background(), "q", raw)
	require.NoError(t, err)
	assert.Contains(t, mock.prompts[0], strings.Repeat("a", allowance))
	assert.NotContains(t, mock.prompts[0], "#")
}

func TestGrounderDisabledIsPassThrough(t *testing.T) {
	mock := &MockLLMProvider{response: "never"}
	g := &Grounder{Provider: mock, Tokenizer: llm.RuneTokenizer{}, Disabled: true}

	got, err := g.Evaluate(context.Background(), "q", "raw passages")
	require.NoError(t, err)
	assert.Equal(t, "raw passages", got)
	assert.Empty(t, mock.prompts)
}

func TestGrounderError(t *testing.T) {
	g := &Grounder{Provider: &MockLLMProvider{err: errors.New("timeout")}, Tokenizer: llm.RuneTokenizer{}, Model: "gpt-4"}
	_, err := g.Evaluate(context.Background(), "q", "ctx")
	assert.ErrorContains(t, err, "timeout")
}

func TestQualityChecker(t *testing.T) {
	tests := []struct {
		name     string
		response string
		err      error
		expected Verdict
	}{
		{name: "plain no", response: "no", expected: VerdictInadequate},
		{name: "no with punctuation and marker", response: " No.<|im_end|>", expected: VerdictInadequate},
		{name: "yes", response: "Yes", expected: VerdictAdequate},
		{name: "anything else is adequate", response: "not sure", expected: VerdictAdequate},
		{name: "error fails open", err: errors.New("boom"), expected: VerdictAdequate},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q := &QualityChecker{Provider: &MockLLMProvider{response: tt.response, err: tt.err}}
			verdict, err := q.Check(context.Background(), "question", "answer")
			assert.Equal(t, tt.expected, verdict)
			if tt.err != nil {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestParseIntent(t *testing.T) {
	tests := []struct {
		name     string
		response string
		expected Intent
		ok       bool
	}{
		{
			name:     "both lines",
			response: "Intent: Vacation Policy.\nKeywords: vacation, days, carry over",
			expected: Intent{Label: "vacation policy", Keywords: "vacation days carry over"},
			ok:       true,
		},
		{
			name:     "case insensitive with preamble",
			response: "Sure!\n  INTENT: Chit Chat\nkeywords: hello",
			expected: Intent{Label: "chit chat", Keywords: "hello"},
			ok:       true,
		},
		{name: "missing keywords", response: "Intent: expenses"},
		{name: "unstructured", response: "I cannot help with that."},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ParseIntent(tt.response)
			assert.Equal(t, tt.ok, ok)
			if tt.ok {
				assert.Equal(t, tt.expected, got)
			}
		})
	}
}

func TestIntentExtractorFallback(t *testing.T) {
	e := &IntentExtractor{Provider: &MockLLMProvider{err: errors.New("down")}}
	assert.Equal(t, Intent{Label: LabelKnowledgeBase}, e.Extract(context.Background(), "hi"))

	e = &IntentExtractor{Provider: &MockLLMProvider{response: "gibberish"}}
	assert.Equal(t, Intent{Label: LabelKnowledgeBase}, e.Extract(context.Background(), "hi"))

	e = &IntentExtractor{Provider: &MockLLMProvider{response: "Intent: chit chat\nKeywords: greeting"}}
	assert.True(t, e.Extract(context.Background(), "hi").IsChitChat())
}

func TestChitChatReply(t *testing.T) {
	c := &ChitChat{Provider: &MockLLMProvider{response: "  Hello There!<|im_end|> "}}
	got, err := c.Reply(context.Background(), "hi")
	require.NoError(t, err)
	assert.Equal(t, "Hello There!", got)
}

func TestSummarizer(t *testing.T) {
	s := &Summarizer{Provider: &MockLLMProvider{response: "short summary<|im_end|>"}}
	got, err := s.Summarize(context.Background(), "Human: a\nAI: b")
	require.NoError(t, err)
	assert.Equal(t, "short summary", got)

	s = &Summarizer{Provider: &MockLLMProvider{err: errors.New("down")}}
	got, err = s.Summarize(context.Background(), "Human: a\nAI: b")
	assert.Error(t, err)
	assert.Equal(t, "Human: a\nAI: b", got)
}
