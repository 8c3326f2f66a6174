package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/labinsight-engine/internal/domain"
)

// OpenAIClient invokes OpenAI-compatible chat-completions endpoints
type OpenAIClient struct {
	baseURL    string
	apiKey     string
	maxTokens  int
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     *logrus.Logger
}

// NewOpenAIClient creates a new OpenAI-compatible API client
func NewOpenAIClient(config domain.ModelConfig, logger *logrus.Logger) *OpenAIClient {
	timeout := config.Timeout
	if timeout == 0 {
		timeout = 60 * time.Second
	}
	rps := config.RateLimit
	if rps <= 0 {
		rps = 5
	}

	return &OpenAIClient{
		baseURL:   config.BaseURL,
		apiKey:    config.APIKey,
		maxTokens: config.MaxTokens,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		limiter: rate.NewLimiter(rate.Limit(rps), rps),
		logger:  logger,
	}
}

// chatRequest represents a chat-completions request body
type chatRequest struct {
	Model          string          `json:"model"`
	Messages       []chatMessage   `json:"messages"`
	Temperature    float64         `json:"temperature"`
	MaxTokens      int             `json:"max_tokens,omitempty"`
	ResponseFormat *responseFormat `json:"response_format,omitempty"`
}

// chatMessage represents a single conversation message
type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// responseFormat selects structured output mode
type responseFormat struct {
	Type string `json:"type"`
}

// chatResponse represents a chat-completions response body
type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error,omitempty"`
}

// Invoke performs a single chat completion against the configured endpoint
func (c *OpenAIClient) Invoke(ctx context.Context, model, systemPrompt, userPrompt string, opts CallOptions) (string, error) {
	// Rate limiting
	if err := c.limiter.Wait(ctx); err != nil {
		return "", domain.NewModelCallError(model, "rate limiter wait aborted", err)
	}

	reqBody := chatRequest{
		Model: model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: userPrompt},
		},
		Temperature: opts.Temperature,
	}
	if opts.MaxTokens > 0 {
		reqBody.MaxTokens = opts.MaxTokens
	} else if c.maxTokens > 0 {
		reqBody.MaxTokens = c.maxTokens
	}
	if opts.JSONMode {
		reqBody.ResponseFormat = &responseFormat{Type: "json_object"}
	}

	payload, err := json.Marshal(reqBody)
	if err != nil {
		return "", domain.NewModelCallError(model, "failed to encode request", err)
	}

	url := fmt.Sprintf("%s/chat/completions", c.baseURL)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return "", domain.NewModelCallError(model, "failed to create request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", domain.NewModelCallError(model, "request failed", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", domain.NewModelCallError(model, "failed to read response", err)
	}

	if resp.StatusCode != http.StatusOK {
		return "", domain.NewModelCallError(model,
			fmt.Sprintf("provider returned status %d", resp.StatusCode), nil)
	}

	var parsed chatResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", domain.NewModelCallError(model, "failed to decode response", err)
	}
	if parsed.Error != nil {
		return "", domain.NewModelCallError(model, parsed.Error.Message, nil)
	}
	if len(parsed.Choices) == 0 {
		return "", domain.NewModelCallError(model, "provider returned no choices", nil)
	}

	c.logger.WithFields(logrus.Fields{
		"model":       model,
		"duration_ms": time.Since(start).Milliseconds(),
		"json_mode":   opts.JSONMode,
	}).Debug("Chat completion finished")

	return parsed.Choices[0].Message.Content, nil
}
