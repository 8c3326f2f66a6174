package llm

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/labinsight-engine/internal/domain"
)

// CompletionCache caches raw model completions keyed by the full invocation.
// Tier 1 is an in-memory expirable LRU; tier 2 is an optional shared Redis
// instance so repeated panels across processes reuse model output.
type CompletionCache struct {
	memory     *expirable.LRU[string, string]
	redis      *redis.Client
	defaultTTL time.Duration
	logger     *logrus.Logger
}

// CachedCompletion represents a cached completion with metadata
type CachedCompletion struct {
	Text      string    `json:"text"`
	Model     string    `json:"model"`
	CachedAt  time.Time `json:"cached_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// NewCompletionCache creates a completion cache. Redis is optional: when the
// URL is empty or unreachable the cache runs memory-only.
func NewCompletionCache(config domain.CacheConfig, logger *logrus.Logger) (*CompletionCache, error) {
	size := config.MemorySize
	if size <= 0 {
		size = 512
	}
	ttl := config.DefaultTTL
	if ttl == 0 {
		ttl = time.Hour
	}

	cache := &CompletionCache{
		memory:     expirable.NewLRU[string, string](size, nil, ttl),
		defaultTTL: ttl,
		logger:     logger,
	}

	if config.RedisURL != "" {
		opts, err := redis.ParseURL(config.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
		}
		opts.PoolSize = config.PoolSize
		opts.MaxRetries = config.MaxRetries

		client := redis.NewClient(opts)

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := client.Ping(ctx).Err(); err != nil {
			logger.WithError(err).Warn("Redis unreachable, completion cache running memory-only")
		} else {
			cache.redis = client
		}
	}

	return cache, nil
}

// Get retrieves a cached completion for an invocation
func (c *CompletionCache) Get(ctx context.Context, model, systemPrompt, userPrompt string, opts CallOptions) (string, bool) {
	key := c.generateKey(model, systemPrompt, userPrompt, opts)

	if text, ok := c.memory.Get(key); ok {
		return text, true
	}

	if c.redis == nil {
		return "", false
	}

	val, err := c.redis.Get(ctx, key).Result()
	if err == redis.Nil {
		return "", false // Cache miss
	}
	if err != nil {
		c.logger.WithError(err).Debug("Redis get failed, treating as miss")
		return "", false
	}

	var cached CachedCompletion
	if err := json.Unmarshal([]byte(val), &cached); err != nil {
		// Remove corrupted cache entry
		c.redis.Del(ctx, key)
		return "", false
	}
	if time.Now().After(cached.ExpiresAt) {
		c.redis.Del(ctx, key)
		return "", false
	}

	// Promote to the memory tier
	c.memory.Add(key, cached.Text)

	return cached.Text, true
}

// Set caches a completion in both tiers
func (c *CompletionCache) Set(ctx context.Context, model, systemPrompt, userPrompt string, opts CallOptions, text string) error {
	key := c.generateKey(model, systemPrompt, userPrompt, opts)

	c.memory.Add(key, text)

	if c.redis == nil {
		return nil
	}

	cached := CachedCompletion{
		Text:      text,
		Model:     model,
		CachedAt:  time.Now(),
		ExpiresAt: time.Now().Add(c.defaultTTL),
	}

	jsonData, err := json.Marshal(cached)
	if err != nil {
		return fmt.Errorf("failed to marshal cached completion: %w", err)
	}

	return c.redis.Set(ctx, key, jsonData, c.defaultTTL).Err()
}

// Close closes the Redis connection if one is open
func (c *CompletionCache) Close() error {
	if c.redis == nil {
		return nil
	}
	return c.redis.Close()
}

// generateKey creates a standardized cache key for an invocation
func (c *CompletionCache) generateKey(model, systemPrompt, userPrompt string, opts CallOptions) string {
	data := fmt.Sprintf("%s\x00%s\x00%s\x00%.3f\x00%d\x00%t",
		model, systemPrompt, userPrompt, opts.Temperature, opts.MaxTokens, opts.JSONMode)

	hash := sha256.Sum256([]byte(data))
	return fmt.Sprintf("completion:%x", hash[:16])
}
