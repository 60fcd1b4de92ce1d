package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/Phantom-Ear/phantom-ear-sub000/internal/config"
)

func TestOpenAIComplete(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if auth := r.Header.Get("Authorization"); auth != "Bearer test-key" {
			t.Errorf("expected bearer auth, got %q", auth)
		}

		var req openAIRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("failed to decode request: %v", err)
		}
		if req.Model != "gpt-4o-mini" {
			t.Errorf("expected model gpt-4o-mini, got %q", req.Model)
		}
		if len(req.Messages) != 2 || req.Messages[0].Role != "system" {
			t.Errorf("expected system+user messages, got %+v", req.Messages)
		}
		if req.Temperature != 0.7 {
			t.Errorf("expected temperature 0.7, got %f", req.Temperature)
		}

		json.NewEncoder(w).Encode(map[string]interface{}{
			"choices": []map[string]interface{}{
				{"message": map[string]string{"role": "assistant", "content": " The decision was to ship. "}},
			},
		})
	}))
	defer server.Close()

	client, err := NewOpenAIClient(config.LLMConfig{
		Provider:    "openai",
		APIKey:      "test-key",
		Endpoint:    server.URL,
		Model:       "gpt-4o-mini",
		Temperature: 0.7,
		Timeout:     5,
	})
	if err != nil {
		t.Fatalf("failed to create client: %v", err)
	}

	answer, err := client.Complete(context.Background(), Request{
		System: "You answer questions about meetings.",
		Prompt: "What was decided?",
	})
	if err != nil {
		t.Fatalf("complete failed: %v", err)
	}
	if answer != "The decision was to ship." {
		t.Errorf("expected trimmed answer, got %q", answer)
	}
}

func TestOpenAIErrorResponse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		json.NewEncoder(w).Encode(map[string]interface{}{
			"error": map[string]string{"message": "rate limited"},
		})
	}))
	defer server.Close()

	client, err := NewOpenAIClient(config.LLMConfig{
		APIKey: "k", Endpoint: server.URL, Model: "m", Timeout: 5,
	})
	if err != nil {
		t.Fatalf("failed to create client: %v", err)
	}

	if _, err := client.Complete(context.Background(), Request{Prompt: "q"}); err == nil {
		t.Error("expected error from rate-limited endpoint")
	}
}

func TestOpenAIValidation(t *testing.T) {
	if _, err := NewOpenAIClient(config.LLMConfig{Model: "m"}); err == nil {
		t.Error("expected error for missing api key")
	}
	if _, err := NewOpenAIClient(config.LLMConfig{APIKey: "k"}); err == nil {
		t.Error("expected error for missing model")
	}
}

func TestOllamaComplete(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req ollamaRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("failed to decode request: %v", err)
		}
		if req.Stream {
			t.Error("expected non-streaming request")
		}
		if req.Model != "llama3.2" {
			t.Errorf("expected model llama3.2, got %q", req.Model)
		}
		if req.Options.Temperature != 0.7 {
			t.Errorf("expected temperature 0.7, got %f", req.Options.Temperature)
		}

		json.NewEncoder(w).Encode(map[string]interface{}{
			"message": map[string]string{"role": "assistant", "content": "Local answer."},
		})
	}))
	defer server.Close()

	client, err := NewOllamaClient(config.LLMConfig{
		Provider:    "ollama",
		Endpoint:    server.URL,
		Model:       "llama3.2",
		Temperature: 0.7,
		Timeout:     5,
	})
	if err != nil {
		t.Fatalf("failed to create client: %v", err)
	}

	answer, err := client.Complete(context.Background(), Request{Prompt: "hello"})
	if err != nil {
		t.Fatalf("complete failed: %v", err)
	}
	if answer != "Local answer." {
		t.Errorf("unexpected answer %q", answer)
	}
}

func TestNewSelectsProvider(t *testing.T) {
	client, err := New(config.LLMConfig{})
	if err != nil {
		t.Fatalf("empty provider should not error: %v", err)
	}
	if client != nil {
		t.Error("expected nil client for empty provider")
	}

	client, err = New(config.LLMConfig{Provider: "ollama", Model: "llama3.2", Timeout: 5})
	if err != nil {
		t.Fatalf("failed to create ollama client: %v", err)
	}
	if client.Provider() != "ollama" {
		t.Errorf("expected ollama, got %s", client.Provider())
	}

	if _, err := New(config.LLMConfig{Provider: "cloudbrain"}); err == nil {
		t.Error("expected error for unknown provider")
	}
}
