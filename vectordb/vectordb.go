package vectordb

import (
	"context"
	"fmt"
	"strings"

	"github.com/kmoai/kmoai/config"
)

// Doc is one stored chunk returned by a similarity search.
type Doc struct {
	Content   string
	Container string
	Filename  string
	Score     float32
}

// Store answers nearest-neighbour queries. expr is a provider-native boolean
// filter; "" means none.
type Store interface {
	Search(ctx context.Context, vector []float32, topK int, expr string) ([]Doc, error)
	Close() error
}

// NewStore builds the store named in cfg.
func NewStore(ctx context.Context, cfg config.VectorDBConfig) (Store, error) {
	switch strings.ToLower(cfg.Provider) {
	case "milvus":
		return NewMilvusStore(ctx, cfg)
	default:
		return nil, fmt.Errorf("unsupported vectordb provider: %s", cfg.Provider)
	}
}
