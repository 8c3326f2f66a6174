package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/labinsight-engine/internal/domain"
)

func chatCompletionReply(content string) string {
	return `{"choices": [{"message": {"content": ` + jsonString(content) + `}, "finish_reason": "stop"}]}`
}

func jsonString(s string) string {
	data, _ := json.Marshal(s)
	return string(data)
}

func TestOpenAIClient_Invoke(t *testing.T) {
	var captured chatRequest
	var authHeader string

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		authHeader = r.Header.Get("Authorization")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&captured))

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(chatCompletionReply(`{"urgency": "routine"}`)))
	}))
	defer server.Close()

	client := NewOpenAIClient(domain.ModelConfig{
		BaseURL:   server.URL + "/v1",
		APIKey:    "sk-test",
		RateLimit: 100,
		MaxTokens: 4096,
	}, testLogger())

	text, err := client.Invoke(context.Background(), "gpt-4o", "system prompt", "user prompt",
		CallOptions{Temperature: 0.2, JSONMode: true})
	require.NoError(t, err)
	assert.Equal(t, `{"urgency": "routine"}`, text)

	assert.Equal(t, "Bearer sk-test", authHeader)
	assert.Equal(t, "gpt-4o", captured.Model)
	require.Len(t, captured.Messages, 2)
	assert.Equal(t, "system", captured.Messages[0].Role)
	assert.Equal(t, "system prompt", captured.Messages[0].Content)
	assert.Equal(t, "user", captured.Messages[1].Role)
	assert.InDelta(t, 0.2, captured.Temperature, 1e-9)
	assert.Equal(t, 4096, captured.MaxTokens)
	require.NotNil(t, captured.ResponseFormat)
	assert.Equal(t, "json_object", captured.ResponseFormat.Type)
}

func TestOpenAIClient_CallOptionsOverrideMaxTokens(t *testing.T) {
	var captured chatRequest

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&captured))
		w.Write([]byte(chatCompletionReply("ok")))
	}))
	defer server.Close()

	client := NewOpenAIClient(domain.ModelConfig{
		BaseURL: server.URL, APIKey: "sk-test", RateLimit: 100, MaxTokens: 4096,
	}, testLogger())

	_, err := client.Invoke(context.Background(), "gpt-4o", "sys", "user",
		CallOptions{MaxTokens: 256})
	require.NoError(t, err)
	assert.Equal(t, 256, captured.MaxTokens)
	assert.Nil(t, captured.ResponseFormat)
}

func TestOpenAIClient_ErrorPaths(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
		message string
	}{
		{
			name: "non-200 status",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusTooManyRequests)
			},
			message: "status 429",
		},
		{
			name: "provider error payload",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte(`{"error": {"message": "model overloaded", "type": "server_error"}}`))
			},
			message: "model overloaded",
		},
		{
			name: "no choices",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte(`{"choices": []}`))
			},
			message: "no choices",
		},
		{
			name: "malformed body",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte(`not json`))
			},
			message: "failed to decode response",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(tt.handler)
			defer server.Close()

			client := NewOpenAIClient(domain.ModelConfig{
				BaseURL: server.URL, APIKey: "sk-test", RateLimit: 100,
			}, testLogger())

			_, err := client.Invoke(context.Background(), "gpt-4o", "sys", "user", CallOptions{})

			var mcErr *domain.ModelCallError
			require.ErrorAs(t, err, &mcErr)
			assert.Equal(t, "gpt-4o", mcErr.Model)
			assert.Contains(t, mcErr.Error(), tt.message)
		})
	}
}

func TestOpenAIClient_UnreachableEndpoint(t *testing.T) {
	client := NewOpenAIClient(domain.ModelConfig{
		BaseURL: "http://127.0.0.1:1", APIKey: "sk-test", RateLimit: 100,
	}, testLogger())

	_, err := client.Invoke(context.Background(), "gpt-4o", "sys", "user", CallOptions{})

	var mcErr *domain.ModelCallError
	require.ErrorAs(t, err, &mcErr)
}
