package llm

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

const defaultOllamaEndpoint = "http://localhost:11434/api/chat"

// OllamaClient speaks the Ollama chat API for local models
type OllamaClient struct {
	endpoint    string
	model       string
	temperature float64
	httpClient  *http.Client
}

// ollamaRequest is the JSON body posted to /api/chat
type ollamaRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
	Stream   bool          `json:"stream"`
	Options  struct {
		Temperature float64 `json:"temperature"`
	} `json:"options"`
}

// ollamaResponse is the non-streaming JSON body returned by /api/chat
type ollamaResponse struct {
	Message chatMessage `json:"message"`
	Error   string      `json:"error"`
}

// NewOllamaClient creates an Ollama chat client
func NewOllamaClient(cfg config.LLMConfig) (*OllamaClient, error) {
	if cfg.Model == "" {
		return nil, fmt.Errorf("ollama model is required")
	}

	endpoint := cfg.Endpoint
	if endpoint == "" {
		endpoint = defaultOllamaEndpoint
	}

	return &OllamaClient{
		endpoint:    endpoint,
		model:       cfg.Model,
		temperature: cfg.Temperature,
		httpClient: &http.Client{
			Timeout: cfg.GetTimeoutDuration(),
		},
	}, nil
}

// Provider returns the provider identifier
func (c *OllamaClient) Provider() string {
	return "ollama"
}

// Complete runs one non-streaming chat completion
func (c *OllamaClient) Complete(ctx context.Context, req Request) (string, error) {
	var messages []chatMessage
	if req.System != "" {
		messages = append(messages, chatMessage{Role: "system", Content: req.System})
	}
	messages = append(messages, chatMessage{Role: "user", Content: req.Prompt})

	temperature := req.Temperature
	if temperature == 0 {
		temperature = c.temperature
	}

	body := ollamaRequest{
		Model:    c.model,
		Messages: messages,
		Stream:   false,
	}
	body.Options.Temperature = temperature

	reqBody, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("failed to encode request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(reqBody))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("completion request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read response: %w", err)
	}

	var parsed ollamaResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return "", fmt.Errorf("failed to parse response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		if parsed.Error != "" {
			return "", fmt.Errorf("completion endpoint returned %d: %s", resp.StatusCode, parsed.Error)
		}
		return "", fmt.Errorf("completion endpoint returned %d", resp.StatusCode)
	}

	return strings.TrimSpace(parsed.Message.Content), nil
}
