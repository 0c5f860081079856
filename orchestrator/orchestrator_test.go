package orchestrator

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kmoai/kmoai/agent"
	"github.com/kmoai/kmoai/cache"
	"github.com/kmoai/kmoai/config"
	"github.com/kmoai/kmoai/crag"
	"github.com/kmoai/kmoai/llm"
	"github.com/kmoai/kmoai/memory"
	"github.com/kmoai/kmoai/post"
)

type chainFunc func(ctx context.Context, in agent.Input) (string, error)

type fakeChain struct {
	name string
	run  chainFunc
}

func (c fakeChain) Name() string { return c.name }

func (c fakeChain) Run(ctx context.Context, in agent.Input) (string, error) {
	return c.run(ctx, in)
}

// fakeChains scripts each chain by name; a chain without a script fails.
type fakeChains struct {
	mu      sync.Mutex
	scripts map[string][]chainFunc
	calls   []string
	inputs  []agent.Input
	filters []string
}

func (f *fakeChains) New(name, filter string) (agent.Chain, error) {
	return fakeChain{name: name, run: func(ctx context.Context, in agent.Input) (string, error) {
		f.mu.Lock()
		f.calls = append(f.calls, name)
		f.inputs = append(f.inputs, in)
		f.filters = append(f.filters, filter)
		script := f.scripts[name]
		var fn chainFunc
		if len(script) > 0 {
			fn = script[0]
			if len(script) > 1 {
				f.scripts[name] = script[1:]
			}
		}
		f.mu.Unlock()
		if fn == nil {
			return "", errors.New(name + " failed")
		}
		return fn(ctx, in)
	}}, nil
}

func answer(s string) chainFunc {
	return func(context.Context, agent.Input) (string, error) { return s, nil }
}

func fail(msg string) chainFunc {
	return func(context.Context, agent.Input) (string, error) { return "", errors.New(msg) }
}

type fixedIntent struct {
	intent crag.Intent
}

func (f fixedIntent) Extract(context.Context, string) crag.Intent { return f.intent }

type scriptedQuality struct {
	verdicts []crag.Verdict
	err      error
	calls    int
}

func (q *scriptedQuality) Check(context.Context, string, string) (crag.Verdict, error) {
	q.calls++
	if q.err != nil {
		return crag.VerdictAdequate, q.err
	}
	i := q.calls - 1
	if i >= len(q.verdicts) {
		i = len(q.verdicts) - 1
	}
	return q.verdicts[i], nil
}

type stubResponder struct {
	reply string
	err   error
}

func (s stubResponder) Reply(context.Context, string) (string, error) { return s.reply, s.err }

type stubSigner struct{}

func (stubSigner) SignedLink(container, blob string) (string, error) {
	return "https://files/" + container + "/" + blob + "?sig=x", nil
}

type fixture struct {
	o       *Orchestrator
	chains  *fakeChains
	quality *scriptedQuality
	store   *cache.MemoryStore
}

func newFixture(t *testing.T, intent crag.Intent, scripts map[string][]chainFunc) *fixture {
	t.Helper()
	cfg := config.Default()
	cfg.Agent.Chain = config.ChainZeroShot
	store := cache.NewMemoryStore(64)
	chains := &fakeChains{scripts: scripts}
	quality := &scriptedQuality{verdicts: []crag.Verdict{crag.VerdictAdequate}}

	o := New(cfg)
	o.Cache = store
	o.Chains = chains
	o.Intent = fixedIntent{intent: intent}
	o.ChitChat = stubResponder{reply: "Hello! How can I help?"}
	o.Quality = quality
	o.History = &memory.History{Cache: store, Tokenizer: llm.RuneTokenizer{}, Budget: 1000, TTL: time.Hour}
	o.Post = post.NewProcessor(stubSigner{}, agent.ToolNames()...)
	o.newID = func() string { return "generated-id" }
	return &fixture{o: o, chains: chains, quality: quality, store: store}
}

var kb = crag.Intent{Label: crag.LabelKnowledgeBase, Keywords: "vpn reset"}

func TestRunAnswersFromPrimary(t *testing.T) {
	f := newFixture(t, kb, map[string][]chainFunc{
		config.ChainZeroShot: {answer("Reset it in the portal [it/vpn.pdf]")},
	})

	res := f.o.Run(context.Background(), "how do I reset my vpn?", "", "@team:{it}")
	assert.Equal(t, "Reset it in the portal", res.Answer)
	assert.Equal(t, []string{"https://files/it/vpn.pdf?sig=x"}, res.Sources)
	assert.Equal(t, "generated-id", res.PromptID)
	assert.Equal(t, []string{config.ChainZeroShot}, f.chains.calls)
	assert.Equal(t, []string{"@team:{it}"}, f.chains.filters)

	hist, ok, err := f.store.Get(context.Background(), "generated-id", cache.FieldHistory)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "Human: how do I reset my vpn?\nAI: Reset it in the portal", hist)

	got, ok, _ := f.store.Get(context.Background(), "vpn reset", cache.FieldAnswer)
	require.True(t, ok)
	assert.Equal(t, "Reset it in the portal", got)
	got, _, _ = f.store.Get(context.Background(), "vpn reset", cache.FieldSources)
	assert.Equal(t, "https://files/it/vpn.pdf?sig=x", got)
}

func TestRunLoadsHistoryForKnownPrompt(t *testing.T) {
	f := newFixture(t, crag.Intent{Label: crag.LabelKnowledgeBase}, map[string][]chainFunc{
		config.ChainZeroShot: {answer("second")},
	})
	require.NoError(t, f.store.Set(context.Background(), "p1", cache.FieldHistory, "Human: first\nAI: one", time.Hour))

	res := f.o.Run(context.Background(), "next?", "p1", "")
	assert.Equal(t, "p1", res.PromptID)
	require.Len(t, f.chains.inputs, 1)
	assert.Equal(t, "Human: first\nAI: one", f.chains.inputs[0].History)

	hist, _, _ := f.store.Get(context.Background(), "p1", cache.FieldHistory)
	assert.Equal(t, "Human: first\nAI: one\nHuman: next?\nAI: second", hist)

	// no keywords, nothing cached for pre-context
	_, ok, _ := f.store.Get(context.Background(), "", cache.FieldAnswer)
	assert.False(t, ok)
}

func TestRunNewPromptIgnoresStoredHistory(t *testing.T) {
	f := newFixture(t, kb, map[string][]chainFunc{config.ChainZeroShot: {answer("a")}})
	require.NoError(t, f.store.Set(context.Background(), "generated-id", cache.FieldHistory, "stale", time.Hour))

	f.o.Run(context.Background(), "q", "", "")
	assert.Equal(t, "", f.chains.inputs[0].History)
}

func TestRunChitChatBypassesPipeline(t *testing.T) {
	f := newFixture(t, crag.Intent{Label: crag.LabelChitChat, Keywords: "hello"}, nil)

	res := f.o.Run(context.Background(), "Hello there", "p9", "")
	assert.Equal(t, "Hello! How can I help?", res.Answer)
	assert.Empty(t, res.Sources)
	assert.NotNil(t, res.Sources)
	assert.Empty(t, f.chains.calls)
	assert.Equal(t, 0, f.quality.calls)
	_, ok, _ := f.store.Get(context.Background(), "p9", cache.FieldHistory)
	assert.False(t, ok)
	_, ok, _ = f.store.Get(context.Background(), "hello", cache.FieldAnswer)
	assert.False(t, ok)
}

func TestRunChitChatFailureReturnsDefault(t *testing.T) {
	f := newFixture(t, crag.Intent{Label: crag.LabelChitChat}, nil)
	f.o.ChitChat = stubResponder{err: errors.New("llm down")}

	res := f.o.Run(context.Background(), "hi", "", "")
	assert.Equal(t, DefaultResponse, res.Answer)
}

func TestPreContextReachesChain(t *testing.T) {
	f := newFixture(t, kb, map[string][]chainFunc{config.ChainZeroShot: {answer("ok")}})
	ctx := context.Background()
	require.NoError(t, f.store.Set(ctx, "vpn reset", cache.FieldAnswer, "Use the portal", time.Hour))
	require.NoError(t, f.store.Set(ctx, "vpn reset", cache.FieldSources, "https://a,https://b", time.Hour))

	f.o.Run(ctx, "vpn?", "", "")
	assert.Equal(t, "[https://a,https://b] Use the portal", f.chains.inputs[0].PreContext)
}

func TestPreContext(t *testing.T) {
	f := newFixture(t, kb, nil)
	ctx := context.Background()
	assert.Equal(t, "", f.o.PreContext(ctx, ""))
	assert.Equal(t, "", f.o.PreContext(ctx, "unknown"))

	require.NoError(t, f.store.Set(ctx, "k", cache.FieldAnswer, "answer only", time.Hour))
	assert.Equal(t, "[] answer only", f.o.PreContext(ctx, "k"))
}

func TestFallbackLadder(t *testing.T) {
	parseFail := func(out string) chainFunc {
		return func(context.Context, agent.Input) (string, error) { return "", &agent.ParseError{Output: out} }
	}
	panics := func(context.Context, agent.Input) (string, error) { panic("boom") }

	tests := []struct {
		name    string
		scripts map[string][]chainFunc
		want    string
		calls   []string
	}{
		{
			name:    "primary answers",
			scripts: map[string][]chainFunc{"zs": {answer("one")}},
			want:    "one",
			calls:   []string{"zs"},
		},
		{
			name:    "parse error is recovered without another chain",
			scripts: map[string][]chainFunc{"zs": {parseFail("Action: None The office opens at 9.<|im_end|>")}},
			want:    "The office opens at 9.",
			calls:   []string{"zs"},
		},
		{
			name:    "empty recovery retries primary",
			scripts: map[string][]chainFunc{"zs": {parseFail("Action: <|im_end|>"), answer("retried")}},
			want:    "retried",
			calls:   []string{"zs", "zs"},
		},
		{
			name:    "other error retries primary",
			scripts: map[string][]chainFunc{"zs": {fail("timeout"), answer("second try")}},
			want:    "second try",
			calls:   []string{"zs", "zs"},
		},
		{
			name:    "direct search after two failures",
			scripts: map[string][]chainFunc{"zs": {fail("a"), fail("b")}, "os": {answer("direct")}},
			want:    "direct",
			calls:   []string{"zs", "zs", "os"},
		},
		{
			name:    "docstore is the last strategy",
			scripts: map[string][]chainFunc{"zs": {fail("a"), fail("b")}, "os": {fail("c")}, "ds": {answer("docstore")}},
			want:    "docstore",
			calls:   []string{"zs", "zs", "os", "ds"},
		},
		{
			name:    "panics are contained",
			scripts: map[string][]chainFunc{"zs": {panics, panics}, "os": {answer("survived")}},
			want:    "survived",
			calls:   []string{"zs", "zs", "os"},
		},
		{
			name:    "exhausted ladder",
			scripts: map[string][]chainFunc{},
			want:    DefaultResponse,
			calls:   []string{"zs", "zs", "os", "ds"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, kb, tt.scripts)
			got, _ := f.o.control(context.Background(), agent.Input{Query: "q"}, "")
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.calls, f.chains.calls)
			assert.LessOrEqual(t, len(f.chains.calls), 5)
		})
	}
}

func TestFallbackUsesConfiguredPrimary(t *testing.T) {
	f := newFixture(t, kb, map[string][]chainFunc{"ds": {fail("x"), answer("ds again")}})
	f.o.Cfg.Agent.Chain = config.ChainDocstore

	got, _ := f.o.control(context.Background(), agent.Input{Query: "q"}, "")
	assert.Equal(t, "ds again", got)
	assert.Equal(t, []string{"ds", "ds"}, f.chains.calls)
}

func TestAdequacyLoop(t *testing.T) {
	tests := []struct {
		name      string
		verdicts  []crag.Verdict
		err       error
		want      string
		runs      int
		committed bool
	}{
		{
			name:      "accepted first time",
			verdicts:  []crag.Verdict{crag.VerdictAdequate},
			want:      "answer 1",
			runs:      1,
			committed: true,
		},
		{
			name:      "accepted on third attempt",
			verdicts:  []crag.Verdict{crag.VerdictInadequate, crag.VerdictInadequate, crag.VerdictAdequate},
			want:      "answer 3",
			runs:      3,
			committed: true,
		},
		{
			name:     "never adequate",
			verdicts: []crag.Verdict{crag.VerdictInadequate},
			want:     DefaultResponse,
			runs:     3,
		},
		{
			name:      "check failure accepts",
			err:       errors.New("llm down"),
			want:      "answer 1",
			runs:      1,
			committed: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, kb, map[string][]chainFunc{
				"zs": {answer("answer 1"), answer("answer 2"), answer("answer 3"), answer("answer 4")},
			})
			f.quality.verdicts = tt.verdicts
			f.quality.err = tt.err

			res := f.o.Run(context.Background(), "q", "p", "")
			assert.Equal(t, tt.want, res.Answer)
			assert.Len(t, f.chains.calls, tt.runs)
			_, ok, _ := f.store.Get(context.Background(), "p", cache.FieldHistory)
			assert.Equal(t, tt.committed, ok)
			if !tt.committed {
				assert.Empty(t, res.Sources)
			}
		})
	}
}

func TestAdequacyDisabledStillCommits(t *testing.T) {
	f := newFixture(t, kb, map[string][]chainFunc{"zs": {answer("only")}})
	f.o.Cfg.Features.CheckAdequacy = false

	res := f.o.Run(context.Background(), "q", "p", "")
	assert.Equal(t, "only", res.Answer)
	assert.Equal(t, 0, f.quality.calls)
	hist, ok, _ := f.store.Get(context.Background(), "p", cache.FieldHistory)
	require.True(t, ok)
	assert.True(t, strings.HasSuffix(hist, "AI: only"))
}

func TestExhaustedLadderIsNotCommitted(t *testing.T) {
	for _, checkAdequacy := range []bool{true, false} {
		f := newFixture(t, kb, map[string][]chainFunc{})
		f.o.Cfg.Features.CheckAdequacy = checkAdequacy

		res := f.o.Run(context.Background(), "q", "p", "")
		assert.Equal(t, DefaultResponse, res.Answer)
		assert.Empty(t, res.Sources)

		_, ok, _ := f.store.Get(context.Background(), "p", cache.FieldHistory)
		assert.False(t, ok, "history committed with adequacy check %v", checkAdequacy)
		_, ok, _ = f.store.Get(context.Background(), "vpn reset", cache.FieldAnswer)
		assert.False(t, ok, "answer cached with adequacy check %v", checkAdequacy)
		assert.Empty(t, f.o.PreContext(context.Background(), "vpn reset"))
	}
}

func TestUnifiedSearchDisabled(t *testing.T) {
	f := newFixture(t, kb, nil)
	_, err := f.o.UnifiedSearch(context.Background(), "q", "")
	assert.Error(t, err)
}

func TestRunCapsLongQueries(t *testing.T) {
	f := newFixture(t, kb, map[string][]chainFunc{"zs": {answer("ok")}})
	f.o.Tokenizer = llm.RuneTokenizer{}
	f.o.Cfg.Tokens.MaxQuery = 5

	f.o.Run(context.Background(), "abcdefghij", "", "")
	require.Len(t, f.chains.inputs, 1)
	assert.Equal(t, "abcde", f.chains.inputs[0].Query)
}
