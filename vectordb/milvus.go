package vectordb

import (
	"context"
	"fmt"

	"github.com/milvus-io/milvus-sdk-go/v2/client"
	"github.com/milvus-io/milvus-sdk-go/v2/entity"

	"github.com/kmoai/kmoai/config"
)

const (
	fieldContent   = "content"
	fieldContainer = "container"
	fieldFilename  = "filename"
)

// MilvusStore searches an HNSW collection with inner-product similarity.
type MilvusStore struct {
	client      client.Client
	collection  string
	vectorField string
	ef          int
}

func NewMilvusStore(ctx context.Context, cfg config.VectorDBConfig) (*MilvusStore, error) {
	c, err := client.NewClient(ctx, client.Config{
		Address:  cfg.MilvusAddress(),
		Username: cfg.Username,
		Password: cfg.Password,
		DBName:   cfg.Database,
	})
	if err != nil {
		return nil, fmt.Errorf("connect milvus %s: %w", cfg.MilvusAddress(), err)
	}
	return NewMilvusStoreFromClient(c, cfg), nil
}

// NewMilvusStoreFromClient wraps an existing client.
func NewMilvusStoreFromClient(c client.Client, cfg config.VectorDBConfig) *MilvusStore {
	vf := cfg.VectorField
	if vf == "" {
		vf = "vector"
	}
	ef := cfg.EF
	if ef <= 0 {
		ef = 64
	}
	return &MilvusStore{client: c, collection: cfg.Collection, vectorField: vf, ef: ef}
}

func (s *MilvusStore) Search(ctx context.Context, vector []float32, topK int, expr string) ([]Doc, error) {
	sp, err := entity.NewIndexHNSWSearchParam(s.ef)
	if err != nil {
		return nil, err
	}
	results, err := s.client.Search(ctx, s.collection, []string{}, expr,
		[]string{fieldContent, fieldContainer, fieldFilename},
		[]entity.Vector{entity.FloatVector(vector)},
		s.vectorField, entity.IP, topK, sp,
	)
	if err != nil {
		return nil, fmt.Errorf("milvus search %s: %w", s.collection, err)
	}

	var docs []Doc
	for _, rs := range results {
		content := rs.Fields.GetColumn(fieldContent)
		if content == nil {
			return nil, fmt.Errorf("milvus search %s: missing %s field", s.collection, fieldContent)
		}
		container := rs.Fields.GetColumn(fieldContainer)
		filename := rs.Fields.GetColumn(fieldFilename)
		for i := 0; i < rs.ResultCount; i++ {
			d := Doc{}
			if d.Content, err = content.GetAsString(i); err != nil {
				return nil, err
			}
			if container != nil {
				d.Container, _ = container.GetAsString(i)
			}
			if filename != nil {
				d.Filename, _ = filename.GetAsString(i)
			}
			if i < len(rs.Scores) {
				d.Score = rs.Scores[i]
			}
			docs = append(docs, d)
		}
	}
	return docs, nil
}

func (s *MilvusStore) Close() error {
	return s.client.Close()
}
