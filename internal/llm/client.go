package llm

import (
	"context"
	"fmt"

	"github.com/Phantom-Ear/phantom-ear-sub000/internal/config"
)

// Request represents one completion request
type Request struct {
	System      string  // system prompt, optional
	Prompt      string  // user prompt
	Temperature float64 // 0 disables sampling spread
}

// Client abstracts a chat completion provider
type Client interface {
	// Provider returns the provider identifier, e.g. "openai"
	Provider() string

	// Complete runs one chat completion and returns the assistant text
	Complete(ctx context.Context, req Request) (string, error)
}

// New creates the completion client named in the configuration. An empty
// provider returns nil: answering and LLM note evaluation degrade gracefully
// without a provider.
func New(cfg config.LLMConfig) (Client, error) {
	switch cfg.Provider {
	case "":
		return nil, nil
	case "openai":
		return NewOpenAIClient(cfg)
	case "ollama":
		return NewOllamaClient(cfg)
	default:
		return nil, fmt.Errorf("unknown llm provider: %q", cfg.Provider)
	}
}
