// Package llm provides a uniform adapter over the LLM provider backends the
// reasoning pipeline calls. Each call is independently awaitable and
// independently failable; provider failures surface as *domain.ModelCallError.
package llm

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/labinsight-engine/internal/domain"
)

// CallOptions represents per-call invocation parameters
type CallOptions struct {
	Temperature float64 `json:"temperature"`
	MaxTokens   int     `json:"max_tokens,omitempty"`
	JSONMode    bool    `json:"json_mode"`
}

// ModelClient is the uniform interface to invoke a named LLM with a system
// prompt, a user prompt and call options, returning raw text or a typed error
type ModelClient interface {
	Invoke(ctx context.Context, model, systemPrompt, userPrompt string, opts CallOptions) (string, error)
}

// Registry routes invocations to the provider client configured for each
// model ID
type Registry struct {
	clients map[string]ModelClient
	logger  *logrus.Logger
}

// NewRegistry creates an empty model registry
func NewRegistry(logger *logrus.Logger) *Registry {
	return &Registry{
		clients: make(map[string]ModelClient),
		logger:  logger,
	}
}

// Register binds a model ID to a provider client
func (r *Registry) Register(modelID string, client ModelClient) {
	r.clients[modelID] = client
}

// Invoke dispatches to the provider registered for the model ID
func (r *Registry) Invoke(ctx context.Context, model, systemPrompt, userPrompt string, opts CallOptions) (string, error) {
	client, ok := r.clients[model]
	if !ok {
		return "", domain.NewModelCallError(model, "no provider registered for model", nil)
	}
	return client.Invoke(ctx, model, systemPrompt, userPrompt, opts)
}

// NewRegistryFromConfig builds a registry with a provider client for each
// configured model role. The challenger entry is skipped when its ID is empty.
func NewRegistryFromConfig(cfg *domain.ModelsConfig, logger *logrus.Logger) (*Registry, error) {
	registry := NewRegistry(logger)

	for _, mc := range []domain.ModelConfig{cfg.Primary, cfg.Challenger} {
		if mc.ID == "" {
			continue
		}
		client, err := newProviderClient(mc, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to create client for model %s: %w", mc.ID, err)
		}
		registry.Register(mc.ID, client)
	}

	return registry, nil
}

// newProviderClient constructs the concrete provider client for a model config
func newProviderClient(mc domain.ModelConfig, logger *logrus.Logger) (ModelClient, error) {
	switch mc.Provider {
	case "openai":
		return NewOpenAIClient(mc, logger), nil
	case "gemini":
		return NewGeminiClient(mc, logger)
	default:
		return nil, fmt.Errorf("unknown provider: %s", mc.Provider)
	}
}
