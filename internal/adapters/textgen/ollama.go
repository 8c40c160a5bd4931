package textgen

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/goccy/go-json"
	"github.com/sony/gobreaker/v2"

	"github.com/Reddy-45/siem/internal/domain"
	"github.com/Reddy-45/siem/pkg/sanitize"
)

// OllamaConfig configures the HTTP backend.
type OllamaConfig struct {
	BaseURL    string // Default: http://localhost:11434
	Model      string // Default: llama3
	HTTPClient *http.Client

	MaxResponseBytes int // Larger responses are rejected (default: 1 MiB)
}

type ollamaRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
	Stream bool   `json:"stream"`
}

type ollamaResponse struct {
	Response string `json:"response"`
	Done     bool   `json:"done"`
	Error    string `json:"error,omitempty"`
}

// OllamaGenerator calls POST {BaseURL}/api/generate with streaming disabled.
// The request deadline comes from the caller's context.
type OllamaGenerator struct {
	client      *http.Client
	url         string
	model       string
	maxResponse int
	breaker     *gobreaker.CircuitBreaker[string]
}

func NewOllamaGenerator(cfg OllamaConfig) *OllamaGenerator {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "http://localhost:11434"
	}
	if cfg.Model == "" {
		cfg.Model = "llama3"
	}
	if cfg.MaxResponseBytes <= 0 {
		cfg.MaxResponseBytes = defaultMaxOutputBytes
	}
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{}
	}
	return &OllamaGenerator{
		client:      client,
		url:         strings.TrimRight(cfg.BaseURL, "/") + "/api/generate",
		model:       cfg.Model,
		maxResponse: cfg.MaxResponseBytes,
		breaker:     newBreaker("textgen-ollama"),
	}
}

func (g *OllamaGenerator) Name() string {
	return "ollama:" + g.model
}

func (g *OllamaGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	return g.breaker.Execute(func() (string, error) {
		return g.generate(ctx, prompt)
	})
}

func (g *OllamaGenerator) generate(ctx context.Context, prompt string) (string, error) {
	body, err := json.Marshal(ollamaRequest{Model: g.model, Prompt: prompt, Stream: false})
	if err != nil {
		return "", fmt.Errorf("failed to encode ollama request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to query ollama: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, int64(g.maxResponse)+1))
	if err != nil {
		return "", fmt.Errorf("failed to read ollama response: %w", err)
	}
	if len(data) > g.maxResponse {
		return "", fmt.Errorf("ollama response exceeds %d bytes", g.maxResponse)
	}

	var result ollamaResponse
	if err := json.Unmarshal(data, &result); err != nil {
		return "", fmt.Errorf("failed to decode ollama response (status %d): %w", resp.StatusCode, err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("ollama returned status %d: %s", resp.StatusCode, sanitize.Line(result.Error, 256))
	}
	if result.Error != "" {
		return "", fmt.Errorf("ollama error: %s", sanitize.Line(result.Error, 256))
	}

	narrative := sanitize.Narrative(result.Response, 0)
	if narrative == "" {
		return "", domain.ErrEmptyNarrative
	}
	return narrative, nil
}
