package notes

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/Phantom-Ear/phantom-ear-sub000/internal/llm"
)

// Mention represents one detected reference to a watched phrase
type Mention struct {
	Phrase   string `json:"phrase"`
	Briefing string `json:"briefing"` // one line of context for the alert
}

// Evaluator decides which watched phrases a window of transcript mentions
type Evaluator interface {
	Evaluate(ctx context.Context, phrases []string, window []string) ([]Mention, error)
}

// KeywordEvaluator does case-insensitive substring matching. It is the
// fallback when no LLM provider is configured and quotes the matching
// segment as the briefing.
type KeywordEvaluator struct{}

// Evaluate scans the window for literal phrase occurrences
func (KeywordEvaluator) Evaluate(ctx context.Context, phrases []string, window []string) ([]Mention, error) {
	var mentions []Mention
	for _, phrase := range phrases {
		lower := strings.ToLower(phrase)
		for _, text := range window {
			if strings.Contains(strings.ToLower(text), lower) {
				mentions = append(mentions, Mention{
					Phrase:   phrase,
					Briefing: text,
				})
				break
			}
		}
	}
	return mentions, nil
}

const evaluatorSystemPrompt = "You monitor a live meeting transcript for topics the user cares about. " +
	"Given watched phrases and recent transcript lines, decide which phrases were substantively " +
	"mentioned, even indirectly. Respond with JSON only: " +
	`{"mentions":[{"phrase":"...","briefing":"one sentence on what was said"}]}`

// LLMEvaluator asks a completion model whether watched phrases came up,
// catching paraphrases a literal match would miss
type LLMEvaluator struct {
	client llm.Client
}

// NewLLMEvaluator creates an evaluator backed by a completion client
func NewLLMEvaluator(client llm.Client) *LLMEvaluator {
	return &LLMEvaluator{client: client}
}

// evaluatorVerdict is the JSON shape the model is asked to produce
type evaluatorVerdict struct {
	Mentions []Mention `json:"mentions"`
}

// Evaluate asks the model for a verdict over the transcript window
func (e *LLMEvaluator) Evaluate(ctx context.Context, phrases []string, window []string) ([]Mention, error) {
	var b strings.Builder
	b.WriteString("Watched phrases:\n")
	for _, phrase := range phrases {
		fmt.Fprintf(&b, "- %s\n", phrase)
	}
	b.WriteString("\nRecent transcript:\n")
	for _, line := range window {
		fmt.Fprintf(&b, "%s\n", line)
	}

	raw, err := e.client.Complete(ctx, llm.Request{
		System: evaluatorSystemPrompt,
		Prompt: b.String(),
	})
	if err != nil {
		return nil, fmt.Errorf("evaluator completion: %w", err)
	}

	// Models sometimes wrap JSON in code fences
	raw = strings.TrimSpace(raw)
	raw = strings.TrimPrefix(raw, "```json")
	raw = strings.TrimPrefix(raw, "```")
	raw = strings.TrimSuffix(raw, "```")

	var verdict evaluatorVerdict
	if err := json.Unmarshal([]byte(strings.TrimSpace(raw)), &verdict); err != nil {
		return nil, fmt.Errorf("parse evaluator verdict: %w", err)
	}

	// Only verdicts for phrases actually watched count
	watched := make(map[string]string, len(phrases))
	for _, phrase := range phrases {
		watched[strings.ToLower(phrase)] = phrase
	}

	var mentions []Mention
	for _, m := range verdict.Mentions {
		if canonical, ok := watched[strings.ToLower(m.Phrase)]; ok {
			m.Phrase = canonical
			mentions = append(mentions, m)
		}
	}
	return mentions, nil
}
