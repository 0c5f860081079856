package retriever

import (
	"context"

	"github.com/kmoai/kmoai/llm"
	"github.com/kmoai/kmoai/vectordb"
)

// SemanticRetriever implements Retriever using embedding+vector store backend.
type SemanticRetriever struct {
	Embed llm.Embedder
	Store vectordb.Store
	TopK  int
}

func (r *SemanticRetriever) Kind() Kind { return KindSemantic }

func (r *SemanticRetriever) Search(ctx context.Context, query string, filter string) ([]string, error) {
	topK := r.TopK
	if topK <= 0 {
		topK = 5
	}
	v, err := r.Embed.Embed(ctx, query)
	if err != nil {
		return nil, err
	}
	docs, err := r.Store.Search(ctx, v, topK, filter)
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(docs))
	for _, d := range docs {
		if d.Content == "" {
			continue
		}
		out = append(out, Passage(d.Content, BlobSource(d.Container, d.Filename)))
	}
	return out, nil
}
