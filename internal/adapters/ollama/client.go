// Package ollama provides an adapter for the Ollama LLM service.
// It implements ports.InferenceClient by sending a system and a user message
// to the /api/chat endpoint and returning the assistant's reply verbatim.
package ollama

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/ewilliams-labs/widdle/internal/core/domain"
	"golang.org/x/oauth2/clientcredentials"
)

const (
	defaultBaseURL = "http://localhost:11434"
	defaultModel   = "llama2"
	defaultTimeout = 60 * time.Second
)

type Client struct {
	baseURL    string
	model      string
	httpClient *http.Client
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
	Stream   bool          `json:"stream"`
}

type chatResponse struct {
	Message chatMessage `json:"message"`
	Error   string      `json:"error,omitempty"`
}

// NewClient returns a client for the Ollama instance at baseURL. A nil
// httpClient gets a plain client with a sixty second timeout.
func NewClient(baseURL, model string, httpClient *http.Client) *Client {
	baseURL = strings.TrimRight(baseURL, "/")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	if model == "" {
		model = defaultModel
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultTimeout}
	}
	return &Client{
		baseURL:    baseURL,
		model:      model,
		httpClient: httpClient,
	}
}

// OAuthConfig describes a client-credentials grant fronting the inference host.
type OAuthConfig struct {
	TokenURL     string
	ClientID     string
	ClientSecret string
	Scopes       []string
}

// NewOAuthHTTPClient returns an HTTP client that attaches a bearer token
// obtained through the client-credentials flow and refreshes it on expiry.
func NewOAuthHTTPClient(ctx context.Context, cfg OAuthConfig, timeout time.Duration) *http.Client {
	cc := clientcredentials.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		TokenURL:     cfg.TokenURL,
		Scopes:       cfg.Scopes,
	}
	client := cc.Client(ctx)
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	client.Timeout = timeout
	return client
}

// Infer sends one non-streaming chat exchange. Every failure is wrapped in
// domain.ErrInferenceUnavailable; there are no retries at this level.
func (c *Client) Infer(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	payload := chatRequest{
		Model:  c.model,
		Stream: false,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: userPrompt},
		},
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("%w: ollama: marshal request: %w", domain.ErrInferenceUnavailable, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/chat", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("%w: ollama: build request: %w", domain.ErrInferenceUnavailable, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: ollama: request failed: %w", domain.ErrInferenceUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("%w: ollama: unexpected status %d: %s",
			domain.ErrInferenceUnavailable, resp.StatusCode, strings.TrimSpace(string(snippet)))
	}

	var parsed chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", fmt.Errorf("%w: ollama: decode response: %w", domain.ErrInferenceUnavailable, err)
	}
	if parsed.Error != "" {
		return "", fmt.Errorf("%w: ollama: %s", domain.ErrInferenceUnavailable, parsed.Error)
	}

	return parsed.Message.Content, nil
}

// Ping checks that the Ollama server answers on /api/tags.
func (c *Client) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/tags", nil)
	if err != nil {
		return fmt.Errorf("%w: ollama: build request: %w", domain.ErrInferenceUnavailable, err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: ollama: ping failed: %w", domain.ErrInferenceUnavailable, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: ollama: ping status %d", domain.ErrInferenceUnavailable, resp.StatusCode)
	}
	return nil
}
