package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/IshaanNene/CivicScrape/internal/config"
	"github.com/IshaanNene/CivicScrape/internal/types"
)

// LLMProvider specifies which LLM backend to use.
type LLMProvider string

const (
	ProviderOllama    LLMProvider = "ollama"
	ProviderOpenAI    LLMProvider = "openai"
	ProviderAnthropic LLMProvider = "anthropic"
	ProviderCustom    LLMProvider = "custom"
)

const contentPolicyMarker = "content_policy_violation"

// LLMConfig configures the LLM integration.
type LLMConfig struct {
	Provider    LLMProvider
	Endpoint    string // e.g. "http://localhost:11434" for Ollama
	Model       string // e.g. "gpt-4o-mini", "claude-sonnet-4-5"
	APIKey      string
	MaxTokens   int
	Temperature float64
	Timeout     time.Duration
}

// LLMConfigFrom picks the API key matching the configured provider.
func LLMConfigFrom(cfg config.AIConfig) LLMConfig {
	out := LLMConfig{
		Provider:    LLMProvider(cfg.Provider),
		Endpoint:    cfg.Endpoint,
		Model:       cfg.Model,
		MaxTokens:   cfg.MaxTokens,
		Temperature: cfg.Temperature,
		Timeout:     cfg.Timeout,
	}
	switch out.Provider {
	case ProviderAnthropic:
		out.APIKey = cfg.AnthropicAPIKey
	case ProviderOpenAI, ProviderCustom:
		out.APIKey = cfg.OpenAIAPIKey
	}
	return out
}

// Generator produces text for a prompt. LLMClient is the production
// implementation; the writers in this package only depend on this.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// LLMClient communicates with an LLM for content enrichment.
type LLMClient struct {
	cfg       LLMConfig
	client    *http.Client
	anthropic *anthropic.Client
	logger    *slog.Logger
}

// NewLLMClient creates a new LLM client.
func NewLLMClient(cfg LLMConfig, logger *slog.Logger) *LLMClient {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	c := &LLMClient{
		cfg: cfg,
		client: &http.Client{
			Timeout: timeout,
		},
		logger: logger.With("component", "llm_client", "provider", string(cfg.Provider)),
	}

	if cfg.Provider == ProviderAnthropic && cfg.APIKey != "" {
		opts := []option.RequestOption{
			option.WithAPIKey(cfg.APIKey),
			option.WithRequestTimeout(timeout),
			option.WithMaxRetries(0),
		}
		if cfg.Endpoint != "" {
			opts = append(opts, option.WithBaseURL(cfg.Endpoint))
		}
		client := anthropic.NewClient(opts...)
		c.anthropic = &client
	}

	return c
}

// Configured reports whether the client has the credentials it needs.
func (c *LLMClient) Configured() error {
	switch c.cfg.Provider {
	case ProviderOpenAI:
		if c.cfg.APIKey == "" {
			return &types.ConfigurationError{Setting: "OPENAI_API_KEY", Capability: "text generation"}
		}
	case ProviderAnthropic:
		if c.cfg.APIKey == "" {
			return &types.ConfigurationError{Setting: "ANTHROPIC_API_KEY", Capability: "text generation"}
		}
	case ProviderOllama, ProviderCustom:
		if c.cfg.Endpoint == "" {
			return &types.ConfigurationError{Setting: "ai.endpoint", Capability: "text generation"}
		}
	}
	return nil
}

// Generate sends a prompt to the LLM and returns the response. Failures
// from the provider come back as *types.GenerationError.
func (c *LLMClient) Generate(ctx context.Context, prompt string) (string, error) {
	if err := c.Configured(); err != nil {
		return "", err
	}

	start := time.Now()
	var (
		out string
		err error
	)
	switch c.cfg.Provider {
	case ProviderOllama:
		out, err = c.generateOllama(ctx, prompt)
	case ProviderOpenAI:
		out, err = c.generateOpenAI(ctx, prompt)
	case ProviderAnthropic:
		out, err = c.generateAnthropic(ctx, prompt)
	case ProviderCustom:
		out, err = c.generateCustom(ctx, prompt)
	default:
		return "", fmt.Errorf("unsupported LLM provider: %s", c.cfg.Provider)
	}
	if err != nil {
		return "", err
	}

	c.logger.Debug("generation complete", "model", c.cfg.Model, "chars", len(out), "duration", time.Since(start))
	return out, nil
}

func (c *LLMClient) generateOllama(ctx context.Context, prompt string) (string, error) {
	payload := map[string]any{
		"model":  c.cfg.Model,
		"prompt": prompt,
		"stream": false,
		"options": map[string]any{
			"temperature": c.cfg.Temperature,
			"num_predict": c.cfg.MaxTokens,
		},
	}

	var result struct {
		Response string `json:"response"`
	}
	if err := c.postJSON(ctx, "ollama", strings.TrimRight(c.cfg.Endpoint, "/")+"/api/generate", payload, &result); err != nil {
		return "", err
	}
	return result.Response, nil
}

func (c *LLMClient) generateOpenAI(ctx context.Context, prompt string) (string, error) {
	payload := map[string]any{
		"model": c.cfg.Model,
		"messages": []map[string]string{
			{"role": "user", "content": prompt},
		},
		"max_tokens":  c.cfg.MaxTokens,
		"temperature": c.cfg.Temperature,
	}

	endpoint := c.cfg.Endpoint
	if endpoint == "" {
		endpoint = "https://api.openai.com/v1"
	}

	var result struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := c.postJSON(ctx, "openai", strings.TrimRight(endpoint, "/")+"/chat/completions", payload, &result); err != nil {
		return "", err
	}
	if len(result.Choices) == 0 {
		return "", &types.GenerationError{Op: "openai", Err: errors.New("no choices in openai response")}
	}
	return result.Choices[0].Message.Content, nil
}

func (c *LLMClient) generateAnthropic(ctx context.Context, prompt string) (string, error) {
	maxTokens := c.cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 4096
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(c.cfg.Model),
		MaxTokens: int64(maxTokens),
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	}
	if c.cfg.Temperature > 0 {
		params.Temperature = anthropic.Float(c.cfg.Temperature)
	}

	msg, err := c.anthropic.Messages.New(ctx, params)
	if err != nil {
		return "", classifyAnthropic(err)
	}

	var sb strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			sb.WriteString(block.Text)
		}
	}
	return sb.String(), nil
}

func (c *LLMClient) generateCustom(ctx context.Context, prompt string) (string, error) {
	payload := map[string]any{
		"prompt": prompt,
		"model":  c.cfg.Model,
	}
	body, _ := json.Marshal(payload)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.Endpoint, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return "", &types.GenerationError{Op: "custom", Err: err}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", &types.GenerationError{Op: "custom", Err: err}
	}
	if resp.StatusCode >= 300 {
		return "", classifyHTTP("custom", resp.StatusCode, respBody)
	}
	return string(respBody), nil
}

// postJSON posts payload with the client's auth header and decodes a 2xx
// response into out.
func (c *LLMClient) postJSON(ctx context.Context, op, url string, payload, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode %s request: %w", op, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return &types.GenerationError{Op: op, Err: fmt.Errorf("%s request: %w", op, err)}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return classifyHTTP(op, resp.StatusCode, raw)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &types.GenerationError{Op: op, StatusCode: resp.StatusCode, Err: fmt.Errorf("decode %s response: %w", op, err)}
	}
	return nil
}

// classifyHTTP maps a failed provider response onto a GenerationError kind.
func classifyHTTP(op string, status int, body []byte) error {
	kind := types.GenerationOther
	switch {
	case status == http.StatusTooManyRequests:
		kind = types.GenerationRateLimited
	case bytes.Contains(body, []byte(contentPolicyMarker)):
		kind = types.GenerationContentPolicy
	}
	msg := strings.TrimSpace(string(body))
	if len(msg) > 512 {
		msg = msg[:512]
	}
	return &types.GenerationError{
		Op:         op,
		Kind:       kind,
		StatusCode: status,
		Err:        fmt.Errorf("HTTP %d: %s", status, msg),
	}
}

func classifyAnthropic(err error) error {
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		kind := types.GenerationOther
		if apiErr.StatusCode == http.StatusTooManyRequests {
			kind = types.GenerationRateLimited
		}
		return &types.GenerationError{Op: "anthropic", Kind: kind, StatusCode: apiErr.StatusCode, Err: err}
	}
	return &types.GenerationError{Op: "anthropic", Err: err}
}

// extractJSON tries to find a JSON object in the LLM response.
func extractJSON(s string) string {
	start := strings.Index(s, "{")
	if start < 0 {
		return "{}"
	}
	depth := 0
	inString := false
	for i := start; i < len(s); i++ {
		switch s[i] {
		case '\\':
			if inString {
				i++
			}
		case '"':
			inString = !inString
		case '{':
			if !inString {
				depth++
			}
		case '}':
			if inString {
				continue
			}
			depth--
			if depth == 0 {
				return s[start : i+1]
			}
		}
	}
	return "{}"
}

// clip returns the first n bytes of s, backing off to a rune boundary.
func clip(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
