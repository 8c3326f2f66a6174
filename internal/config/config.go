package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"

	"github.com/labinsight-engine/internal/domain"
)

// Manager loads and validates application configuration using Viper
type Manager struct {
	config *domain.Config
}

// NewManager creates a new configuration manager
func NewManager() (*Manager, error) {
	m := &Manager{}
	if err := m.loadConfig(); err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	return m, nil
}

// loadConfig loads configuration from various sources
func (m *Manager) loadConfig() error {
	// Set configuration file name and paths
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")
	viper.AddConfigPath("/etc/labinsight-engine/")

	// Set environment variable prefix and enable automatic env binding
	viper.SetEnvPrefix("LABINSIGHT")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	// Set default values
	m.setDefaults()

	// Read configuration file (optional - will use defaults and env vars if not found)
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return fmt.Errorf("error reading config file: %w", err)
		}
		// Config file not found; using defaults and environment variables
	}

	// Unmarshal configuration into struct
	config := &domain.Config{}
	if err := viper.Unmarshal(config); err != nil {
		return fmt.Errorf("error unmarshaling config: %w", err)
	}

	m.config = config
	return nil
}

// setDefaults sets default configuration values
func (m *Manager) setDefaults() {
	// Model defaults
	viper.SetDefault("models.primary.id", "gpt-4o")
	viper.SetDefault("models.primary.provider", "openai")
	viper.SetDefault("models.primary.base_url", "https://api.openai.com/v1")
	viper.SetDefault("models.primary.timeout", "60s")
	viper.SetDefault("models.primary.rate_limit", 5)
	viper.SetDefault("models.primary.max_tokens", 4096)

	viper.SetDefault("models.challenger.id", "gemini-2.0-flash")
	viper.SetDefault("models.challenger.provider", "gemini")
	viper.SetDefault("models.challenger.timeout", "60s")
	viper.SetDefault("models.challenger.rate_limit", 5)
	viper.SetDefault("models.challenger.max_tokens", 4096)

	// Pipeline defaults
	viper.SetDefault("pipeline.triage_temperature", 0.1)
	viper.SetDefault("pipeline.specialty_temperature", 0.3)
	viper.SetDefault("pipeline.fusion_temperature", 0.2)
	viper.SetDefault("pipeline.validation_temperature", 0.0)
	viper.SetDefault("pipeline.fallback_confidence", 30)

	// Consensus defaults
	viper.SetDefault("consensus.top_n", 5)
	viper.SetDefault("consensus.max_scored_rank", 10)
	viper.SetDefault("consensus.moderate_rank_gap", 1)
	viper.SetDefault("consensus.weak_rank_gap", 2)
	viper.SetDefault("consensus.strong_multiplier", 1.10)
	viper.SetDefault("consensus.moderate_multiplier", 1.00)
	viper.SetDefault("consensus.weak_multiplier", 0.90)
	viper.SetDefault("consensus.single_multiplier", 0.80)
	viper.SetDefault("consensus.divergent_multiplier", 0.70)
	viper.SetDefault("consensus.max_confidence", 99)

	// Cache defaults
	viper.SetDefault("cache.enabled", false)
	viper.SetDefault("cache.redis_url", "redis://localhost:6379")
	viper.SetDefault("cache.default_ttl", "1h")
	viper.SetDefault("cache.memory_size", 512)
	viper.SetDefault("cache.pool_size", 10)
	viper.SetDefault("cache.max_retries", 3)

	// Breaker defaults
	viper.SetDefault("breaker.max_requests", 3)
	viper.SetDefault("breaker.interval", "30s")
	viper.SetDefault("breaker.timeout", "60s")
	viper.SetDefault("breaker.min_requests", 3)
	viper.SetDefault("breaker.failure_ratio", 0.6)

	// Logging defaults
	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.format", "json")
}

// GetConfig returns the complete configuration
func (m *Manager) GetConfig() *domain.Config {
	return m.config
}

// GetModelsConfig returns the model backend assignments
func (m *Manager) GetModelsConfig() *domain.ModelsConfig {
	return &m.config.Models
}

// GetConsensusConfig returns the consensus aggregator tuning
func (m *Manager) GetConsensusConfig() *domain.ConsensusConfig {
	return &m.config.Consensus
}

// Reload reloads the configuration
func (m *Manager) Reload() error {
	return m.loadConfig()
}

// Validate validates the configuration
func (m *Manager) Validate() error {
	config := m.config

	// A primary model is mandatory; the challenger is optional
	if config.Models.Primary.ID == "" {
		return fmt.Errorf("primary model ID is required")
	}
	if config.Models.Primary.Provider == "" {
		return fmt.Errorf("primary model provider is required")
	}
	if config.Models.Challenger.ID != "" && config.Models.Challenger.Provider == "" {
		return fmt.Errorf("challenger model provider is required when challenger is enabled")
	}

	validProviders := map[string]bool{"openai": true, "gemini": true}
	if !validProviders[config.Models.Primary.Provider] {
		return fmt.Errorf("unknown provider: %s", config.Models.Primary.Provider)
	}
	if config.Models.Challenger.ID != "" && !validProviders[config.Models.Challenger.Provider] {
		return fmt.Errorf("unknown provider: %s", config.Models.Challenger.Provider)
	}

	// Validate consensus configuration
	if config.Consensus.TopN <= 0 {
		return fmt.Errorf("consensus top_n must be positive: %d", config.Consensus.TopN)
	}
	if config.Consensus.MaxScoredRank <= 0 {
		return fmt.Errorf("consensus max_scored_rank must be positive: %d", config.Consensus.MaxScoredRank)
	}
	if config.Consensus.ModerateRankGap > config.Consensus.WeakRankGap {
		return fmt.Errorf("moderate_rank_gap (%d) cannot exceed weak_rank_gap (%d)",
			config.Consensus.ModerateRankGap, config.Consensus.WeakRankGap)
	}
	multipliers := []float64{
		config.Consensus.StrongMultiplier,
		config.Consensus.ModerateMultiplier,
		config.Consensus.WeakMultiplier,
		config.Consensus.SingleMultiplier,
		config.Consensus.DivergentMultiplier,
	}
	for _, mult := range multipliers {
		if mult <= 0 {
			return fmt.Errorf("consensus multipliers must be positive")
		}
	}
	if config.Consensus.MaxConfidence <= 0 || config.Consensus.MaxConfidence > 99 {
		return fmt.Errorf("consensus max_confidence must be in (0, 99]: %d", config.Consensus.MaxConfidence)
	}

	// Validate cache configuration
	if config.Cache.Enabled && config.Cache.RedisURL == "" {
		return fmt.Errorf("redis URL is required when cache is enabled")
	}

	// Validate logging configuration
	validLogLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true, "fatal": true, "panic": true,
	}
	if !validLogLevels[strings.ToLower(config.Logging.Level)] {
		return fmt.Errorf("invalid log level: %s", config.Logging.Level)
	}

	return nil
}
