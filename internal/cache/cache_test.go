package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/howard-nolan/aigateway/internal/provider"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func newTestCache(t *testing.T) (*Cache, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return New(rdb, time.Hour, true), mr
}

func sampleReq() *provider.ChatRequest {
	return &provider.ChatRequest{
		Model:    "gpt-4o-mini",
		Messages: []provider.Message{{Role: "user", Content: "hi"}},
	}
}

func sampleResp() *provider.ChatResponse {
	return &provider.ChatResponse{
		ID: "resp-1",
		Choices: []provider.Choice{
			{Index: 0, Message: provider.Message{Role: "assistant", Content: "hello"}, FinishReason: provider.FinishStop},
		},
	}
}

func TestCache_MissThenHit(t *testing.T) {
	c, _ := newTestCache(t)
	req := sampleReq()
	ctx := context.Background()

	_, ok := c.Lookup(ctx, req)
	require.False(t, ok)

	c.Store(ctx, req, sampleResp())

	got, ok := c.Lookup(ctx, req)
	require.True(t, ok)
	require.Equal(t, "resp-1", got.ID)
	require.True(t, got.Gateway.Cached)
}

func TestCache_StreamingNeverCached(t *testing.T) {
	c, _ := newTestCache(t)
	req := sampleReq()
	req.Stream = true
	ctx := context.Background()

	c.Store(ctx, req, sampleResp())

	_, ok := c.Lookup(ctx, req)
	require.False(t, ok)
}

func TestCache_Disabled(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	c := New(rdb, time.Hour, false)

	ctx := context.Background()
	req := sampleReq()
	c.Store(ctx, req, sampleResp())

	_, ok := c.Lookup(ctx, req)
	require.False(t, ok)
	require.False(t, c.Enabled())
}

func TestCache_Invalidate(t *testing.T) {
	c, _ := newTestCache(t)
	ctx := context.Background()

	req1 := sampleReq()
	req2 := sampleReq()
	req2.Model = "gpt-4o"

	c.Store(ctx, req1, sampleResp())
	c.Store(ctx, req2, sampleResp())

	cleared, err := c.Invalidate(ctx, "ai:cache:*")
	require.NoError(t, err)
	require.Equal(t, 2, cleared)

	_, ok := c.Lookup(ctx, req1)
	require.False(t, ok)
}

func TestCache_TTLExpiry(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	c := New(rdb, time.Second, true)

	ctx := context.Background()
	req := sampleReq()
	c.Store(ctx, req, sampleResp())

	mr.FastForward(2 * time.Second)

	_, ok := c.Lookup(ctx, req)
	require.False(t, ok)
}
