package llm

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"
	"google.golang.org/genai"

	"github.com/labinsight-engine/internal/domain"
)

// GeminiClient invokes Google Gemini models through the genai SDK
type GeminiClient struct {
	client    *genai.Client
	maxTokens int
	logger    *logrus.Logger
}

// NewGeminiClient creates a new Gemini client
func NewGeminiClient(config domain.ModelConfig, logger *logrus.Logger) (*GeminiClient, error) {
	if config.APIKey == "" {
		return nil, fmt.Errorf("gemini API key is required")
	}

	client, err := genai.NewClient(context.Background(), &genai.ClientConfig{
		APIKey: config.APIKey,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create genai client: %w", err)
	}

	return &GeminiClient{
		client:    client,
		maxTokens: config.MaxTokens,
		logger:    logger,
	}, nil
}

// Invoke performs a single content generation call
func (c *GeminiClient) Invoke(ctx context.Context, model, systemPrompt, userPrompt string, opts CallOptions) (string, error) {
	genConfig := &genai.GenerateContentConfig{
		Temperature: genai.Ptr(float32(opts.Temperature)),
	}
	if systemPrompt != "" {
		genConfig.SystemInstruction = genai.NewContentFromText(systemPrompt, genai.RoleUser)
	}
	if opts.JSONMode {
		genConfig.ResponseMIMEType = "application/json"
	}
	if opts.MaxTokens > 0 {
		genConfig.MaxOutputTokens = int32(opts.MaxTokens)
	} else if c.maxTokens > 0 {
		genConfig.MaxOutputTokens = int32(c.maxTokens)
	}

	contents := []*genai.Content{
		genai.NewContentFromText(userPrompt, genai.RoleUser),
	}

	resp, err := c.client.Models.GenerateContent(ctx, model, contents, genConfig)
	if err != nil {
		return "", domain.NewModelCallError(model, "generate content failed", err)
	}

	text := resp.Text()
	if text == "" {
		return "", domain.NewModelCallError(model, "provider returned empty response", nil)
	}

	c.logger.WithField("model", model).Debug("Content generation finished")

	return text, nil
}
