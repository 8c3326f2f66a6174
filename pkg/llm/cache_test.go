package llm

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/labinsight-engine/internal/domain"
)

func TestCompletionCache_MemoryTier(t *testing.T) {
	cache, err := NewCompletionCache(domain.CacheConfig{MemorySize: 8, DefaultTTL: time.Minute}, testLogger())
	require.NoError(t, err)
	defer cache.Close()

	ctx := context.Background()
	opts := CallOptions{Temperature: 0.2, JSONMode: true}

	_, found := cache.Get(ctx, "gpt-4o", "sys", "user", opts)
	assert.False(t, found)

	require.NoError(t, cache.Set(ctx, "gpt-4o", "sys", "user", opts, "completion"))

	text, found := cache.Get(ctx, "gpt-4o", "sys", "user", opts)
	require.True(t, found)
	assert.Equal(t, "completion", text)
}

func TestCompletionCache_KeyComponents(t *testing.T) {
	cache, err := NewCompletionCache(domain.CacheConfig{MemorySize: 8, DefaultTTL: time.Minute}, testLogger())
	require.NoError(t, err)
	defer cache.Close()

	ctx := context.Background()
	base := CallOptions{Temperature: 0.2}
	require.NoError(t, cache.Set(ctx, "gpt-4o", "sys", "user", base, "completion"))

	tests := []struct {
		name   string
		model  string
		system string
		user   string
		opts   CallOptions
	}{
		{name: "different model", model: "gemini-2.0-flash", system: "sys", user: "user", opts: base},
		{name: "different system prompt", model: "gpt-4o", system: "other", user: "user", opts: base},
		{name: "different user prompt", model: "gpt-4o", system: "sys", user: "other", opts: base},
		{name: "different temperature", model: "gpt-4o", system: "sys", user: "user", opts: CallOptions{Temperature: 0.5}},
		{name: "different json mode", model: "gpt-4o", system: "sys", user: "user", opts: CallOptions{Temperature: 0.2, JSONMode: true}},
		{name: "different max tokens", model: "gpt-4o", system: "sys", user: "user", opts: CallOptions{Temperature: 0.2, MaxTokens: 100}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, found := cache.Get(ctx, tt.model, tt.system, tt.user, tt.opts)
			assert.False(t, found)
		})
	}
}

func TestCompletionCache_InvalidRedisURL(t *testing.T) {
	_, err := NewCompletionCache(domain.CacheConfig{RedisURL: "not-a-url"}, testLogger())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse Redis URL")
}

func TestCompletionCache_UnreachableRedisFallsBackToMemory(t *testing.T) {
	cache, err := NewCompletionCache(domain.CacheConfig{
		MemorySize: 8,
		DefaultTTL: time.Minute,
		RedisURL:   "redis://127.0.0.1:1",
	}, testLogger())
	require.NoError(t, err)
	defer cache.Close()

	ctx := context.Background()
	require.NoError(t, cache.Set(ctx, "gpt-4o", "sys", "user", CallOptions{}, "completion"))

	text, found := cache.Get(ctx, "gpt-4o", "sys", "user", CallOptions{})
	require.True(t, found)
	assert.Equal(t, "completion", text)
}
