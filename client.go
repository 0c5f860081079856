package kmoai

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/go-redis/redis/v8"
	"github.com/hashicorp/go-multierror"
	"golang.org/x/sync/semaphore"

	"github.com/kmoai/kmoai/agent"
	"github.com/kmoai/kmoai/cache"
	"github.com/kmoai/kmoai/common/httpx"
	"github.com/kmoai/kmoai/common/logger"
	"github.com/kmoai/kmoai/config"
	"github.com/kmoai/kmoai/crag"
	"github.com/kmoai/kmoai/llm"
	"github.com/kmoai/kmoai/memory"
	"github.com/kmoai/kmoai/orchestrator"
	"github.com/kmoai/kmoai/post"
	"github.com/kmoai/kmoai/retrieval"
	"github.com/kmoai/kmoai/retriever"
	"github.com/kmoai/kmoai/storage"
	"github.com/kmoai/kmoai/vectordb"
)

// Client owns every long-lived collaborator of the process and the
// orchestrator built on top of them.
type Client struct {
	config       *config.Config
	orchestrator *orchestrator.Orchestrator
	closers      []io.Closer
}

// Option overrides a collaborator NewClient would otherwise build from config.
type Option func(*options)

type options struct {
	provider  llm.Provider
	tokenizer llm.Tokenizer
	store     cache.Store
	embedder  llm.Embedder
	vectors   vectordb.Store
	redis     redis.UniversalClient
}

// WithProvider sets the completion provider.
func WithProvider(p llm.Provider) Option { return func(o *options) { o.provider = p } }

// WithTokenizer sets the tokenizer used for every budget.
func WithTokenizer(t llm.Tokenizer) Option { return func(o *options) { o.tokenizer = t } }

// WithCacheStore sets the cache store. The client does not close it.
func WithCacheStore(s cache.Store) Option { return func(o *options) { o.store = s } }

// WithSemantic sets the embedder and vector store used by semantic lookup.
func WithSemantic(e llm.Embedder, v vectordb.Store) Option {
	return func(o *options) { o.embedder, o.vectors = e, v }
}

// WithRedis sets the connection used by the keyword back-end.
func WithRedis(rc redis.UniversalClient) Option { return func(o *options) { o.redis = rc } }

// NewClient wires the collaborators selected by cfg.
func NewClient(ctx context.Context, cfg *config.Config, opts ...Option) (*Client, error) {
	o := &options{}
	for _, opt := range opts {
		opt(o)
	}
	c := &Client{config: cfg}
	if err := c.build(ctx, o); err != nil {
		if cerr := c.Close(); cerr != nil {
			logger.Warnf("client: cleanup after failed build: %v", cerr)
		}
		return nil, err
	}
	return c, nil
}

func (c *Client) build(ctx context.Context, o *options) error {
	cfg := c.config

	provider := o.provider
	if provider == nil {
		p, err := llm.NewLLMProvider(cfg.LLM, cfg.Tokens.MaxOutput)
		if err != nil {
			return fmt.Errorf("create llm provider failed, err: %w", err)
		}
		provider = p
	}
	tok := o.tokenizer
	if tok == nil {
		tok = llm.NewTokenizer(cfg.LLM.Model)
	}

	store := o.store
	if store == nil {
		s, err := cache.NewStore(cfg.Cache)
		if err != nil {
			return fmt.Errorf("create cache store failed, err: %w", err)
		}
		store = s
		c.closers = append(c.closers, s)
	}

	retrievers, err := c.buildRetrievers(ctx, cfg, store, o)
	if err != nil {
		return err
	}

	grounding := &retrieval.Grounding{
		Cache: store,
		Evaluator: &crag.Grounder{
			Provider:  provider,
			Tokenizer: tok,
			Model:     cfg.LLM.Model,
			MaxOutput: cfg.Tokens.MaxOutput,
			Disabled:  !cfg.Features.EvaluateStep,
		},
		TTL: cfg.TTL(),
	}
	width := cfg.PoolWidth
	if width <= 0 {
		width = retrieval.DefaultPoolWidth
	}
	pool := semaphore.NewWeighted(int64(width))

	backends := agent.Backends{Single: retrieval.NewToolbox(grounding, retrievers...)}
	var unified orchestrator.UnifiedSearcher
	if cfg.Features.UnifiedSearch && len(retrievers) > 0 {
		agg := retrieval.NewAggregator(grounding, pool, retrievers...)
		backends.Unified = agg
		unified = agg
	}

	var signer storage.Signer
	if s, err := storage.NewBlobSigner(cfg.Storage); err == nil {
		signer = s
	} else if errors.Is(err, storage.ErrNotConfigured) {
		logger.Warnf("client: %v, blob citations will be dropped", err)
	} else {
		return fmt.Errorf("create blob signer failed, err: %w", err)
	}

	orch := orchestrator.New(cfg)
	orch.Cache = store
	orch.Tokenizer = tok
	orch.Unified = unified
	orch.Chains = &agent.Factory{
		Provider:      provider,
		Tokenizer:     tok,
		Model:         cfg.LLM.Model,
		MaxOutput:     cfg.Tokens.MaxOutput,
		MaxIterations: cfg.Agent.MaxIterations,
		Backends:      backends,
	}
	orch.Intent = &crag.IntentExtractor{Provider: provider, MaxOutput: cfg.Tokens.MaxOutput}
	orch.ChitChat = &crag.ChitChat{Provider: provider, MaxOutput: cfg.Tokens.MaxOutput}
	orch.Quality = &crag.QualityChecker{Provider: provider, MaxOutput: cfg.Tokens.MaxOutput}
	orch.History = &memory.History{
		Cache:      store,
		Tokenizer:  tok,
		Summarizer: &crag.Summarizer{Provider: provider, MaxOutput: cfg.Tokens.MaxOutput},
		Budget:     cfg.Tokens.MaxHistory,
		TTL:        cfg.TTL(),
	}
	orch.Post = post.NewProcessor(signer, agent.ToolNames()...)
	c.orchestrator = orch

	logger.Infof("client: chain=%s retrievers=%d unified=%v pool=%d", cfg.Agent.Chain, len(retrievers), unified != nil, width)
	return nil
}

// buildRetrievers returns the enabled back-ends in enablement order.
func (c *Client) buildRetrievers(ctx context.Context, cfg *config.Config, store cache.Store, o *options) ([]retriever.Retriever, error) {
	var out []retriever.Retriever
	httpClient := httpx.NewFromConfig(&cfg.HTTP)

	if cfg.Features.KeywordSearch {
		rc := o.redis
		if rc == nil {
			if rs, ok := store.(*cache.RedisStore); ok {
				rc = rs.Client()
			} else {
				nc := redis.NewClient(&redis.Options{
					Addr:     cfg.Cache.Redis.Address,
					Password: cfg.Cache.Redis.Password,
					DB:       cfg.Cache.Redis.DB,
				})
				c.closers = append(c.closers, nc)
				rc = nc
			}
		}
		out = append(out, &retriever.KeywordRetriever{
			Client:       rc,
			Index:        cfg.Keyword.Index,
			ContentField: cfg.Keyword.ContentField,
			TopK:         cfg.Keyword.TopK,
		})
	}

	if cfg.Features.SemanticLookup {
		embed, vectors := o.embedder, o.vectors
		if embed == nil {
			e, err := llm.NewEmbedder(cfg.Embedding)
			if err != nil {
				return nil, fmt.Errorf("create embedding provider failed, err: %w", err)
			}
			embed = e
		}
		if vectors == nil {
			v, err := vectordb.NewStore(ctx, cfg.VectorDB)
			if err != nil {
				return nil, fmt.Errorf("create vector store provider failed, err: %w", err)
			}
			c.closers = append(c.closers, v)
			vectors = v
		}
		out = append(out, &retriever.SemanticRetriever{Embed: embed, Store: vectors, TopK: cfg.VectorDB.TopK})
	}

	if cfg.Features.IndexSearch && cfg.Index.Endpoint != "" {
		out = append(out, &retriever.IndexRetriever{
			Endpoint: cfg.Index.Endpoint,
			Index:    cfg.Index.Index,
			APIKey:   cfg.Index.APIKey,
			Client:   httpClient,
			TopK:     cfg.Index.TopK,
		})
	}

	if cfg.Features.WebSearch {
		out = append(out, &retriever.WebRetriever{
			Provider: cfg.Web.Provider,
			Endpoint: cfg.Web.Endpoint,
			APIKey:   cfg.Web.APIKey,
			Client:   httpClient,
			TopK:     cfg.Web.TopK,
		})
	}
	return out, nil
}

// Ask answers one question. It never fails; see orchestrator.Run.
func (c *Client) Ask(ctx context.Context, query, promptID, filter string) orchestrator.Result {
	return c.orchestrator.Run(ctx, query, promptID, filter)
}

// UnifiedSearch returns the grounded context of every enabled back-end.
func (c *Client) UnifiedSearch(ctx context.Context, query, filter string) (string, error) {
	return c.orchestrator.UnifiedSearch(ctx, query, filter)
}

// Close releases every connection the client opened.
func (c *Client) Close() error {
	var result *multierror.Error
	for i := len(c.closers) - 1; i >= 0; i-- {
		if err := c.closers[i].Close(); err != nil {
			result = multierror.Append(result, err)
		}
	}
	c.closers = nil
	return result.ErrorOrNil()
}
