package orchestrator

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/kmoai/kmoai/agent"
	"github.com/kmoai/kmoai/cache"
	"github.com/kmoai/kmoai/common/logger"
	"github.com/kmoai/kmoai/config"
	"github.com/kmoai/kmoai/crag"
	"github.com/kmoai/kmoai/llm"
	"github.com/kmoai/kmoai/memory"
	"github.com/kmoai/kmoai/metrics"
	"github.com/kmoai/kmoai/post"
)

// DefaultResponse is returned whenever no usable answer could be produced.
const DefaultResponse = post.DefaultResponse

// MaxAdequacyAttempts bounds how many times the controller runs per request.
const MaxAdequacyAttempts = 3

// Result is the outcome of one request.
type Result struct {
	Answer   string   `json:"answer"`
	Sources  []string `json:"sources"`
	PromptID string   `json:"prompt_id"`
}

// ChainFactory builds the strategy chains tried by the fallback controller.
type ChainFactory interface {
	New(name string, filter string) (agent.Chain, error)
}

// IntentExtractor classifies a query and pulls its keywords.
type IntentExtractor interface {
	Extract(ctx context.Context, query string) crag.Intent
}

// Responder answers chit-chat directly.
type Responder interface {
	Reply(ctx context.Context, query string) (string, error)
}

// QualityChecker judges whether an answer addresses the question.
type QualityChecker interface {
	Check(ctx context.Context, question, answer string) (crag.Verdict, error)
}

// HistoryManager loads and commits conversation history.
type HistoryManager interface {
	Load(ctx context.Context, sessionID string) string
	Manage(ctx context.Context, prior, newTurn, sessionID string) (string, error)
}

// AnswerProcessor turns a raw chain answer into clean text plus sources.
type AnswerProcessor interface {
	Process(raw string) (string, []string)
}

// UnifiedSearcher is the grounded multi-back-end search.
type UnifiedSearcher interface {
	Search(ctx context.Context, query string, filter string) (string, error)
}

// Orchestrator runs the answer pipeline for a request: intent, history,
// the fallback controller and the adequacy loop.
type Orchestrator struct {
	Cfg      *config.Config
	Cache    cache.Store
	Chains   ChainFactory
	Intent   IntentExtractor
	ChitChat Responder
	Quality  QualityChecker
	History  HistoryManager
	Post     AnswerProcessor
	Unified  UnifiedSearcher

	// Tokenizer caps incoming queries at Cfg.Tokens.MaxQuery when set.
	Tokenizer llm.Tokenizer

	newID func() string
}

// New returns an orchestrator with the request id generator set.
func New(cfg *config.Config) *Orchestrator {
	return &Orchestrator{Cfg: cfg, newID: uuid.NewString}
}

// Run answers query within conversation promptID. An empty promptID starts a
// new conversation. Run never fails: every error path ends in DefaultResponse.
func (o *Orchestrator) Run(ctx context.Context, query, promptID, filter string) Result {
	start := time.Now()
	query = o.capQuery(query)
	var prior string
	if promptID == "" {
		promptID = o.generateID()
	} else if o.History != nil {
		prior = o.History.Load(ctx, promptID)
	}

	rm := metrics.FromContext(ctx)
	if rm == nil {
		rm = metrics.NewRequestMetrics(query, promptID, filter)
		ctx = metrics.WithRequest(ctx, rm)
	}
	defer rm.Log()

	res := o.answer(ctx, query, promptID, prior, filter)
	res.PromptID = promptID
	if res.Sources == nil {
		res.Sources = []string{}
	}
	rm.Finish(res.Answer != DefaultResponse, "")
	logger.Infof("orchestrator: prompt=%s sources=%d latency_ms=%d", promptID, len(res.Sources), time.Since(start).Milliseconds())
	return res
}

func (o *Orchestrator) answer(ctx context.Context, query, promptID, prior, filter string) Result {
	intent := o.extractIntent(ctx, query)
	rm := metrics.FromContext(ctx)
	rm.RecordIntent(intent.Label, intent.Keywords, intent.IsChitChat())

	if intent.IsChitChat() {
		return o.chitChat(ctx, query)
	}

	in := agent.Input{
		Query:      query,
		History:    prior,
		PreContext: o.PreContext(ctx, intent.Keywords),
	}
	for attempt := 1; attempt <= MaxAdequacyAttempts; attempt++ {
		answer, sources := o.control(ctx, in, filter)
		if !o.adequate(ctx, query, answer) {
			logger.Infof("orchestrator: attempt %d judged inadequate, retrying", attempt)
			rm.RecordAdequacy(attempt, false)
			continue
		}
		rm.RecordAdequacy(attempt, true)
		if answer == DefaultResponse {
			return Result{Answer: DefaultResponse}
		}
		o.commit(ctx, promptID, prior, query, answer, sources, intent.Keywords)
		return Result{Answer: answer, Sources: sources}
	}
	logger.Warnf("orchestrator: no adequate answer after %d attempts", MaxAdequacyAttempts)
	return Result{Answer: DefaultResponse}
}

func (o *Orchestrator) chitChat(ctx context.Context, query string) Result {
	if o.ChitChat == nil {
		return Result{Answer: DefaultResponse}
	}
	reply, err := o.ChitChat.Reply(ctx, query)
	if err != nil || strings.TrimSpace(reply) == "" {
		if err != nil {
			logger.Warnf("orchestrator: chit chat failed: %v", err)
		}
		return Result{Answer: DefaultResponse}
	}
	return Result{Answer: reply}
}

// adequate reports whether answer may be returned. A failed check lets the
// answer through.
func (o *Orchestrator) adequate(ctx context.Context, query, answer string) bool {
	if o.Quality == nil || o.Cfg == nil || !o.Cfg.Features.CheckAdequacy {
		return true
	}
	verdict, err := o.Quality.Check(ctx, query, answer)
	if err != nil {
		logger.Warnf("orchestrator: quality check failed, accepting answer: %v", err)
	}
	metrics.IncAdequacyVerdict(verdict.String())
	return verdict != crag.VerdictInadequate
}

// commit records the accepted turn in history and caches the answer under
// the query keywords for later pre-context.
func (o *Orchestrator) commit(ctx context.Context, promptID, prior, query, answer string, sources []string, keywords string) {
	if o.History != nil {
		turn := memory.ConversationRound{Question: query, Answer: answer}.String()
		if _, err := o.History.Manage(ctx, prior, turn, promptID); err != nil {
			logger.Warnf("orchestrator: history for %s not persisted: %v", promptID, err)
		}
	}
	if o.Cache == nil || keywords == "" {
		return
	}
	ttl := o.ttl()
	if err := o.Cache.Set(ctx, keywords, cache.FieldAnswer, answer, ttl); err != nil {
		logger.Warnf("orchestrator: cache answer: %v", err)
	}
	if err := o.Cache.Set(ctx, keywords, cache.FieldSources, strings.Join(sources, ","), ttl); err != nil {
		logger.Warnf("orchestrator: cache sources: %v", err)
	}
}

// UnifiedSearch exposes the grounded multi-back-end search on its own.
func (o *Orchestrator) UnifiedSearch(ctx context.Context, query, filter string) (string, error) {
	if o.Unified == nil {
		return "", errUnifiedDisabled
	}
	return o.Unified.Search(ctx, query, filter)
}

func (o *Orchestrator) capQuery(query string) string {
	if o.Tokenizer == nil || o.Cfg == nil || o.Cfg.Tokens.MaxQuery <= 0 {
		return query
	}
	if llm.Count(o.Tokenizer, query) <= o.Cfg.Tokens.MaxQuery {
		return query
	}
	logger.Warnf("orchestrator: query over %d tokens, truncating", o.Cfg.Tokens.MaxQuery)
	return llm.Head(o.Tokenizer, query, o.Cfg.Tokens.MaxQuery)
}

func (o *Orchestrator) generateID() string {
	if o.newID == nil {
		return uuid.NewString()
	}
	return o.newID()
}

func (o *Orchestrator) ttl() time.Duration {
	if o.Cfg == nil {
		return 0
	}
	return o.Cfg.TTL()
}
