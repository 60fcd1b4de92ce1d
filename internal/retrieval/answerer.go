package retrieval

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/Phantom-Ear/phantom-ear-sub000/internal/llm"
	"github.com/Phantom-Ear/phantom-ear-sub000/internal/store"
)

// maxContextChars bounds the transcript context handed to the model
const maxContextChars = 8000

const answerSystemPrompt = "You answer questions about meeting transcripts. " +
	"Base your answer only on the transcript excerpts provided. " +
	"If the excerpts do not contain the answer, say so plainly."

// Answer represents a composed answer with its supporting sources
type Answer struct {
	Text    string    `json:"text"`
	Sources []*Result `json:"sources"`
}

// Answerer composes natural-language answers from retrieved transcript
// spans. Questions scoped to a single meeting are persisted as conversation
// rows; cross-meeting questions are answered without saving.
type Answerer struct {
	engine *Engine
	client llm.Client
	store  *store.Store
	logger *slog.Logger
}

// NewAnswerer creates an answer composer. client may be nil, in which case
// Ask returns an error directing the caller to configure a provider.
func NewAnswerer(engine *Engine, client llm.Client, st *store.Store, logger *slog.Logger) *Answerer {
	return &Answerer{
		engine: engine,
		client: client,
		store:  st,
		logger: logger,
	}
}

// Ask retrieves context for the question, composes an answer through the
// LLM, and saves the exchange when scoped to one meeting
func (a *Answerer) Ask(ctx context.Context, question, meetingID string, limit int) (*Answer, error) {
	if a.client == nil {
		return nil, fmt.Errorf("no llm provider configured")
	}
	if strings.TrimSpace(question) == "" {
		return nil, fmt.Errorf("question cannot be empty")
	}

	sources, err := a.engine.Retrieve(ctx, question, meetingID, limit)
	if err != nil {
		return nil, fmt.Errorf("retrieve context: %w", err)
	}
	if len(sources) == 0 {
		return &Answer{
			Text:    "Nothing in the transcripts matches that question.",
			Sources: nil,
		}, nil
	}

	prompt := buildPrompt(question, sources)

	text, err := a.client.Complete(ctx, llm.Request{
		System: answerSystemPrompt,
		Prompt: prompt,
	})
	if err != nil {
		return nil, fmt.Errorf("compose answer: %w", err)
	}

	answer := &Answer{Text: text, Sources: sources}

	if meetingID != "" {
		if _, err := a.store.SaveConversation(ctx, meetingID, question, text); err != nil {
			// The answer is still useful even if persistence failed
			a.logger.Warn("Failed to save conversation",
				slog.String("meeting_id", meetingID),
				slog.String("error", err.Error()))
		}
	}

	return answer, nil
}

// buildPrompt assembles a bounded context block of transcript excerpts
// followed by the question
func buildPrompt(question string, sources []*Result) string {
	var b strings.Builder
	b.WriteString("Transcript excerpts:\n\n")

	used := 0
	for _, src := range sources {
		excerpt := fmt.Sprintf("[%s @ %s] %s\n", src.MeetingTitle, src.TimeLabel, src.Text)
		if used+len(excerpt) > maxContextChars {
			break
		}
		b.WriteString(excerpt)
		used += len(excerpt)
	}

	b.WriteString("\nQuestion: ")
	b.WriteString(question)
	return b.String()
}
