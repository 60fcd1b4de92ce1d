package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/Phantom-Ear/phantom-ear-sub000/internal/config"
)

// Backend abstracts a text embedding model
type Backend interface {
	// Model returns the model identifier used for versioning stored vectors
	Model() string

	// Dims returns the expected vector dimensionality
	Dims() int

	// Embed converts text into a vector of exactly Dims() elements
	Embed(ctx context.Context, text string) ([]float32, error)
}

// HTTPBackend posts to an OpenAI-compatible /v1/embeddings endpoint. Ollama
// serves the same shape, so one client covers both.
type HTTPBackend struct {
	endpoint   string
	model      string
	dims       int
	httpClient *http.Client
}

// embedRequest is the JSON body posted to the endpoint
type embedRequest struct {
	Model string `json:"model"`
	Input string `json:"input"`
}

// embedResponse is the JSON body returned by the endpoint
type embedResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
}

// NewHTTPBackend creates an embedding backend from configuration
func NewHTTPBackend(cfg config.EmbeddingConfig) (*HTTPBackend, error) {
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("embedding endpoint is required")
	}
	if cfg.Dims <= 0 {
		return nil, fmt.Errorf("embedding dims must be positive, got %d", cfg.Dims)
	}

	return &HTTPBackend{
		endpoint: cfg.Endpoint,
		model:    cfg.Model,
		dims:     cfg.Dims,
		httpClient: &http.Client{
			Timeout: cfg.GetTimeoutDuration(),
		},
	}, nil
}

// Model returns the model identifier
func (b *HTTPBackend) Model() string {
	return b.model
}

// Dims returns the configured vector dimensionality
func (b *HTTPBackend) Dims() int {
	return b.dims
}

// Embed posts the text to the endpoint and validates the returned dimension
func (b *HTTPBackend) Embed(ctx context.Context, text string) ([]float32, error) {
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("cannot embed empty text")
	}

	reqBody, err := json.Marshal(embedRequest{Model: b.model, Input: text})
	if err != nil {
		return nil, fmt.Errorf("failed to encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.endpoint, bytes.NewReader(reqBody))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := b.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("embedding request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("embedding endpoint returned %d: %s", resp.StatusCode, strings.TrimSpace(string(respBody)))
	}

	var parsed embedResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}

	if len(parsed.Data) == 0 {
		return nil, fmt.Errorf("embedding response contained no vectors")
	}

	vector := parsed.Data[0].Embedding
	if len(vector) != b.dims {
		return nil, fmt.Errorf("embedding dimension mismatch: expected %d, got %d", b.dims, len(vector))
	}

	return vector, nil
}
