package cache

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kmoai/kmoai/config"
)

func TestMemoryStoreGetSet(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore(8)

	_, ok, err := s.Get(ctx, "what is x", FieldResponse)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.Set(ctx, "what is x", FieldResponse, "grounded", time.Minute))
	v, ok, err := s.Get(ctx, "what is x", FieldResponse)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "grounded", v)

	// same namespace, other field
	_, ok, _ = s.Get(ctx, "what is x", "redis_search_response")
	assert.False(t, ok)
}

func TestMemoryStoreExpiry(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore(8)
	now := time.Unix(1_000, 0)
	s.now = func() time.Time { return now }

	require.NoError(t, s.Set(ctx, "p1", FieldHistory, "Human: hi", 10*time.Second))
	now = now.Add(11 * time.Second)

	_, ok, err := s.Get(ctx, "p1", FieldHistory)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, 0, s.Len())
}

func TestMemoryStoreEvictsLeastRecentlyUsed(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore(2)

	require.NoError(t, s.Set(ctx, "a", FieldAnswer, "1", 0))
	require.NoError(t, s.Set(ctx, "b", FieldAnswer, "2", 0))
	_, _, _ = s.Get(ctx, "a", FieldAnswer)
	require.NoError(t, s.Set(ctx, "c", FieldAnswer, "3", 0))

	_, ok, _ := s.Get(ctx, "b", FieldAnswer)
	assert.False(t, ok, "b should have been evicted")
	for _, ns := range []string{"a", "c"} {
		_, ok, _ := s.Get(ctx, ns, FieldAnswer)
		assert.True(t, ok, ns)
	}
}

func TestRedisStore(t *testing.T) {
	mr := miniredis.RunT(t)
	ctx := context.Background()
	s := NewRedisStore(config.RedisConfig{Address: mr.Addr()})
	defer s.Close()

	_, ok, err := s.Get(ctx, "kw", FieldAnswer)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.Set(ctx, "kw", FieldAnswer, "forty-two", time.Minute))
	require.NoError(t, s.Set(ctx, "kw", FieldSources, "https://a,https://b", time.Minute))

	v, ok, err := s.Get(ctx, "kw", FieldAnswer)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "forty-two", v)

	assert.Equal(t, "https://a,https://b", mr.HGet("kw", FieldSources))
	assert.Equal(t, time.Minute, mr.TTL("kw"))

	mr.FastForward(2 * time.Minute)
	_, ok, err = s.Get(ctx, "kw", FieldAnswer)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestNewStore(t *testing.T) {
	s, err := NewStore(config.CacheConfig{Store: "memory", Capacity: 4})
	require.NoError(t, err)
	assert.IsType(t, &MemoryStore{}, s)

	_, err = NewStore(config.CacheConfig{Store: "disk"})
	assert.Error(t, err)
}

func BenchmarkMemoryStoreSet(b *testing.B) {
	ctx := context.Background()
	s := NewMemoryStore(1024)
	for i := 0; i < b.N; i++ {
		_ = s.Set(ctx, fmt.Sprintf("q%d", i%2048), FieldResponse, "v", time.Minute)
	}
}
