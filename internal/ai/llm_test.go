package ai

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/IshaanNene/CivicScrape/internal/config"
	"github.com/IshaanNene/CivicScrape/internal/types"
)

var testLogger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))

// fakeGen records prompts and replays a fixed reply.
type fakeGen struct {
	mu      sync.Mutex
	out     string
	err     error
	prompts []string
}

func (f *fakeGen) Generate(_ context.Context, prompt string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.prompts = append(f.prompts, prompt)
	return f.out, f.err
}

func (f *fakeGen) lastPrompt() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.prompts) == 0 {
		return ""
	}
	return f.prompts[len(f.prompts)-1]
}

func TestLLMClientOpenAI(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))

		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "gpt-4o-mini", body["model"])

		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"Congress passed a budget bill."}}]}`))
	}))
	defer srv.Close()

	c := NewLLMClient(LLMConfig{Provider: ProviderOpenAI, Endpoint: srv.URL, Model: "gpt-4o-mini", APIKey: "sk-test"}, testLogger)
	out, err := c.Generate(context.Background(), "summarize")
	require.NoError(t, err)
	assert.Equal(t, "Congress passed a budget bill.", out)
}

func TestLLMClientClassifiesFailures(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Header.Get("X-Case") {
		case "limited":
			w.WriteHeader(http.StatusTooManyRequests)
			_, _ = w.Write([]byte(`{"error":{"type":"rate_limit_exceeded"}}`))
		case "policy":
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"error":{"code":"content_policy_violation"}}`))
		default:
			w.WriteHeader(http.StatusInternalServerError)
		}
	}))
	defer srv.Close()

	c := NewLLMClient(LLMConfig{Provider: ProviderOpenAI, Endpoint: srv.URL, APIKey: "k"}, testLogger)
	c.client.Transport = headerTransport{key: "X-Case"}

	_, err := c.Generate(withCase(context.Background(), "limited"), "p")
	assert.True(t, types.IsRateLimited(err), "429 should be rate limited: %v", err)

	_, err = c.Generate(withCase(context.Background(), "policy"), "p")
	assert.True(t, types.IsContentPolicy(err), "policy body should be content policy: %v", err)

	_, err = c.Generate(withCase(context.Background(), "other"), "p")
	var ge *types.GenerationError
	require.ErrorAs(t, err, &ge)
	assert.Equal(t, types.GenerationOther, ge.Kind)
	assert.Equal(t, http.StatusInternalServerError, ge.StatusCode)
}

func TestLLMClientMissingKey(t *testing.T) {
	c := NewLLMClient(LLMConfig{Provider: ProviderAnthropic}, testLogger)
	_, err := c.Generate(context.Background(), "p")
	assert.True(t, errors.Is(err, types.ErrNotConfigured))

	var ce *types.ConfigurationError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, "ANTHROPIC_API_KEY", ce.Setting)
}

func TestLLMClientOllama(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/generate", r.URL.Path)
		_, _ = w.Write([]byte(`{"response":"local reply"}`))
	}))
	defer srv.Close()

	c := NewLLMClient(LLMConfig{Provider: ProviderOllama, Endpoint: srv.URL, Model: "llama3"}, testLogger)
	out, err := c.Generate(context.Background(), "p")
	require.NoError(t, err)
	assert.Equal(t, "local reply", out)
}

func TestLLMClientAnthropic(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/messages", r.URL.Path)
		assert.Equal(t, "sk-ant", r.Header.Get("X-Api-Key"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"id": "msg_1",
			"type": "message",
			"role": "assistant",
			"model": "claude-sonnet-4-5",
			"content": [{"type": "text", "text": "An article."}],
			"stop_reason": "end_turn",
			"usage": {"input_tokens": 10, "output_tokens": 3}
		}`))
	}))
	defer srv.Close()

	c := NewLLMClient(LLMConfig{Provider: ProviderAnthropic, Endpoint: srv.URL, Model: "claude-sonnet-4-5", APIKey: "sk-ant", MaxTokens: 256}, testLogger)
	out, err := c.Generate(context.Background(), "p")
	require.NoError(t, err)
	assert.Equal(t, "An article.", out)
}

func TestLLMConfigFrom(t *testing.T) {
	cfg := config.DefaultConfig().AI
	cfg.OpenAIAPIKey = "sk-openai"
	cfg.AnthropicAPIKey = "sk-ant"

	assert.Equal(t, "sk-openai", LLMConfigFrom(cfg).APIKey)

	cfg.Provider = "anthropic"
	assert.Equal(t, "sk-ant", LLMConfigFrom(cfg).APIKey)
}

func TestExtractJSON(t *testing.T) {
	in := "Sure! Here it is:\n```json\n{\"title\": \"Budget {deal}\", \"n\": {\"a\": 1}}\n```"
	assert.Equal(t, `{"title": "Budget {deal}", "n": {"a": 1}}`, extractJSON(in))
	assert.Equal(t, "{}", extractJSON("no json"))
}

type caseKey struct{}

func withCase(ctx context.Context, c string) context.Context {
	return context.WithValue(ctx, caseKey{}, c)
}

// headerTransport copies the test case from the context into a header.
type headerTransport struct{ key string }

func (h headerTransport) RoundTrip(r *http.Request) (*http.Response, error) {
	if c, ok := r.Context().Value(caseKey{}).(string); ok {
		r = r.Clone(r.Context())
		r.Header.Set(h.key, c)
	}
	return http.DefaultTransport.RoundTrip(r)
}
