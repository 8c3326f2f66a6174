package domain

import (
	"time"
)

// Configuration Models

// Config represents the main application configuration
type Config struct {
	Models    ModelsConfig    `mapstructure:"models"`
	Pipeline  PipelineConfig  `mapstructure:"pipeline"`
	Consensus ConsensusConfig `mapstructure:"consensus"`
	Cache     CacheConfig     `mapstructure:"cache"`
	Breaker   BreakerConfig   `mapstructure:"breaker"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

// ModelConfig represents a single configured LLM backend
type ModelConfig struct {
	ID        string        `mapstructure:"id"`
	Provider  string        `mapstructure:"provider"` // "openai" or "gemini"
	APIKey    string        `mapstructure:"api_key"`
	BaseURL   string        `mapstructure:"base_url"`
	Timeout   time.Duration `mapstructure:"timeout"`
	RateLimit int           `mapstructure:"rate_limit"` // requests per second
	MaxTokens int           `mapstructure:"max_tokens"`
}

// ModelsConfig assigns backends to pipeline roles. An empty challenger ID
// disables dual-model consensus and the pipeline runs in single-model mode.
type ModelsConfig struct {
	Primary    ModelConfig `mapstructure:"primary"`
	Challenger ModelConfig `mapstructure:"challenger"`
}

// PipelineConfig represents per-layer pipeline tuning
type PipelineConfig struct {
	TriageTemperature     float64 `mapstructure:"triage_temperature"`
	SpecialtyTemperature  float64 `mapstructure:"specialty_temperature"`
	FusionTemperature     float64 `mapstructure:"fusion_temperature"`
	ValidationTemperature float64 `mapstructure:"validation_temperature"`
	FallbackConfidence    int     `mapstructure:"fallback_confidence"`
}

// ConsensusConfig represents the consensus aggregator tuning. The rank-gap
// thresholds have no stated empirical basis in the literature, so they are
// kept configurable rather than hard-coded.
type ConsensusConfig struct {
	TopN                int     `mapstructure:"top_n"`
	MaxScoredRank       int     `mapstructure:"max_scored_rank"`
	ModerateRankGap     int     `mapstructure:"moderate_rank_gap"`
	WeakRankGap         int     `mapstructure:"weak_rank_gap"`
	StrongMultiplier    float64 `mapstructure:"strong_multiplier"`
	ModerateMultiplier  float64 `mapstructure:"moderate_multiplier"`
	WeakMultiplier      float64 `mapstructure:"weak_multiplier"`
	SingleMultiplier    float64 `mapstructure:"single_multiplier"`
	DivergentMultiplier float64 `mapstructure:"divergent_multiplier"`
	MaxConfidence       int     `mapstructure:"max_confidence"`
}

// CacheConfig represents the completion cache configuration
type CacheConfig struct {
	Enabled    bool          `mapstructure:"enabled"`
	RedisURL   string        `mapstructure:"redis_url"`
	DefaultTTL time.Duration `mapstructure:"default_ttl"`
	MemorySize int           `mapstructure:"memory_size"`
	PoolSize   int           `mapstructure:"pool_size"`
	MaxRetries int           `mapstructure:"max_retries"`
}

// BreakerConfig represents circuit breaker settings for model calls
type BreakerConfig struct {
	MaxRequests  uint32        `mapstructure:"max_requests"`
	Interval     time.Duration `mapstructure:"interval"`
	Timeout      time.Duration `mapstructure:"timeout"`
	MinRequests  uint32        `mapstructure:"min_requests"`
	FailureRatio float64       `mapstructure:"failure_ratio"`
}

// LoggingConfig represents logging configuration
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}
