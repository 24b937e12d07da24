package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/joho/godotenv"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const chatOK = `{
	"id": "test-id",
	"object": "chat.completion",
	"created": 1234567890,
	"model": "test-model",
	"choices": [{
		"index": 0,
		"message": {
			"role": "assistant",
			"content": "  Hello! This is a test response.\n"
		},
		"finish_reason": "stop"
	}],
	"usage": {
		"prompt_tokens": 10,
		"completion_tokens": 20,
		"total_tokens": 30
	}
}`

func testConfig(url string) *Config {
	return &Config{
		APIKey:      "test-key",
		APIURL:      url,
		Model:       "test-model",
		MaxTokens:   2000,
		Temperature: 0.3,
		Timeout:     30,
	}
}

func TestNewClient(t *testing.T) {
	config := testConfig("https://api.example.com/v1/")

	client, err := NewClient(config)
	require.NoError(t, err)
	assert.Equal(t, config, client.config)
	assert.Equal(t, "https://api.example.com/v1", client.baseURL)
	assert.NotNil(t, client.httpClient)

	_, err = NewClient(&Config{})
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "invalid configuration")
}

func TestConfig_Validate(t *testing.T) {
	base := Config{APIURL: DefaultAPIURL, MaxTokens: 2000, Temperature: 0.3, Timeout: 120}

	tests := []struct {
		name   string
		mutate func(*Config)
		ok     bool
	}{
		{name: "no key and no model is fine", mutate: func(c *Config) {}, ok: true},
		{name: "missing url", mutate: func(c *Config) { c.APIURL = " " }},
		{name: "zero max tokens", mutate: func(c *Config) { c.MaxTokens = 0 }},
		{name: "temperature too high", mutate: func(c *Config) { c.Temperature = 2.5 }},
		{name: "zero timeout", mutate: func(c *Config) { c.Timeout = 0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}

func TestConfig_GetHeaders(t *testing.T) {
	cfg := Config{}
	headers := cfg.GetHeaders()
	assert.NotContains(t, headers, "Authorization")
	assert.Equal(t, "application/json", headers["Content-Type"])

	cfg = Config{APIKey: "k", SiteURL: "https://example.com", AppName: "srt"}
	headers = cfg.GetHeaders()
	assert.Equal(t, "Bearer k", headers["Authorization"])
	assert.Equal(t, "https://example.com", headers["HTTP-Referer"])
	assert.Equal(t, "srt", headers["X-Title"])
}

func TestClientWithMockServer(t *testing.T) {
	var got ChatRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(chatOK))
	}))
	defer server.Close()

	client, err := NewClient(testConfig(server.URL))
	require.NoError(t, err)

	response, err := client.ChatCompletion(context.Background(), []Message{{Role: "user", Content: "Hello"}},
		NewChatCompletionOptions().WithSystemPrompt("be brief"))
	require.NoError(t, err)
	require.Len(t, response.Choices, 1)
	assert.Equal(t, 30, response.Usage.TotalTokens)

	assert.Equal(t, "test-model", got.Model)
	assert.Equal(t, 2000, got.MaxTokens)
	assert.InDelta(t, 0.3, got.Temperature, 1e-9)
	assert.False(t, got.Stream)
	require.Len(t, got.Messages, 2)
	assert.Equal(t, Message{Role: "system", Content: "be brief"}, got.Messages[0])
	assert.Equal(t, Message{Role: "user", Content: "Hello"}, got.Messages[1])
}

func TestClientErrorHandling(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error": {"message": "Invalid API key", "type": "authentication_error", "code": "401"}}`))
	}))
	defer server.Close()

	client, err := NewClient(testConfig(server.URL))
	require.NoError(t, err)

	_, err = client.ChatCompletion(context.Background(), []Message{{Role: "user", Content: "Hello"}}, nil)
	require.Error(t, err)

	var apiErr *Error
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, "Invalid API key", apiErr.Message)
	assert.Contains(t, err.Error(), "401")
}

func TestClientStatusError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not loaded", http.StatusServiceUnavailable)
	}))
	defer server.Close()

	client, err := NewClient(testConfig(server.URL))
	require.NoError(t, err)

	_, err = client.SimpleChat(context.Background(), "Hello", "")
	require.Error(t, err)

	var statusErr *StatusError
	require.True(t, errors.As(err, &statusErr))
	assert.Equal(t, http.StatusServiceUnavailable, statusErr.StatusCode)
	assert.Equal(t, "model not loaded", statusErr.Body)
}

func TestSimpleChat(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(chatOK))
	}))
	defer server.Close()

	client, err := NewClient(testConfig(server.URL))
	require.NoError(t, err)

	response, err := client.SimpleChat(context.Background(), "Hello", "You are a helpful assistant.")
	require.NoError(t, err)
	assert.Equal(t, "Hello! This is a test response.", response)
}

func TestSimpleChat_NoChoices(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"id": "x", "choices": []}`))
	}))
	defer server.Close()

	client, err := NewClient(testConfig(server.URL))
	require.NoError(t, err)

	_, err = client.SimpleChat(context.Background(), "Hello", "")
	assert.ErrorContains(t, err, "no choices")
}

func TestClientGetModels(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/models", r.URL.Path)
		_, _ = w.Write([]byte(`{"object": "list", "data": [
			{"id": "qwen2.5-7b-instruct", "object": "model", "owned_by": "organization_owner"},
			{"id": "llama-3.1-8b", "object": "model", "owned_by": "organization_owner"}
		]}`))
	}))
	defer server.Close()

	client, err := NewClient(testConfig(server.URL))
	require.NoError(t, err)

	models, err := client.GetModels(context.Background())
	require.NoError(t, err)
	require.Len(t, models, 2)
	assert.Equal(t, "qwen2.5-7b-instruct", models[0].ID)
	assert.Equal(t, "organization_owner", models[0].OwnedBy)
}

func TestClientModel_ResolvesFirstListedOnce(t *testing.T) {
	var listCalls atomic.Int32
	var chatModel atomic.Value
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/models":
			listCalls.Add(1)
			_, _ = w.Write([]byte(`{"data": [{"id": ""}, {"id": "first"}, {"id": "second"}]}`))
		case "/chat/completions":
			var req ChatRequest
			_ = json.NewDecoder(r.Body).Decode(&req)
			chatModel.Store(req.Model)
			_, _ = w.Write([]byte(chatOK))
		}
	}))
	defer server.Close()

	cfg := testConfig(server.URL)
	cfg.Model = ""
	client, err := NewClient(cfg)
	require.NoError(t, err)

	for range 2 {
		_, err = client.SimpleChat(context.Background(), "Hello", "")
		require.NoError(t, err)
	}
	assert.Equal(t, "first", chatModel.Load())
	assert.Equal(t, int32(1), listCalls.Load())
}

func TestClientModel_NoModels(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"data": []}`))
	}))
	defer server.Close()

	cfg := testConfig(server.URL)
	cfg.Model = ""
	client, err := NewClient(cfg)
	require.NoError(t, err)

	_, err = client.Model(context.Background())
	assert.ErrorIs(t, err, ErrNoModels)
}

func TestClientConcurrentRequests(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(chatOK))
	}))
	defer server.Close()

	client, err := NewClient(testConfig(server.URL))
	require.NoError(t, err)

	ctx := context.Background()
	messages := []Message{
		{Role: "user", Content: "Hello"},
	}

	var wg sync.WaitGroup
	for range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := client.ChatCompletion(ctx, messages, nil)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()
}

func TestInvalidJSONResponse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte("invalid json"))
	}))
	defer server.Close()

	client, err := NewClient(testConfig(server.URL))
	require.NoError(t, err)

	_, err = client.ChatCompletion(context.Background(), []Message{{Role: "user", Content: "Hello"}}, nil)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse response")
}

// TestLocalServerIntegration talks to a real OpenAI-compatible server.
// It is skipped unless LLM_API_URL is set (a .env file is honoured).
func TestLocalServerIntegration(t *testing.T) {
	_ = godotenv.Load("./.env")
	apiURL := os.Getenv("LLM_API_URL")
	if apiURL == "" {
		t.Skip("LLM_API_URL environment variable not set, skipping integration test")
	}

	client, err := NewClient(&Config{
		APIKey:      os.Getenv("LLM_API_KEY"),
		APIURL:      apiURL,
		Model:       os.Getenv("LLM_MODEL"),
		MaxTokens:   50,
		Temperature: 0.3,
		Timeout:     60,
	})
	require.NoError(t, err)

	ctx := context.Background()
	models, err := client.GetModels(ctx)
	require.NoError(t, err)
	assert.NotEmpty(t, models)

	response, err := client.SimpleChat(ctx, "Say 'test passed' if you can see this message", "")
	require.NoError(t, err)
	assert.NotEmpty(t, response)
}
