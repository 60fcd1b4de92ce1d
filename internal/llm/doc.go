// Package llm provides chat completion clients for answer composition and
// note mention evaluation. OpenAI and Ollama providers sit behind a common
// Client interface; a nil client means the feature degrades gracefully.
package llm
