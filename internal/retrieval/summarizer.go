package retrieval

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/Phantom-Ear/phantom-ear-sub000/internal/llm"
	"github.com/Phantom-Ear/phantom-ear-sub000/internal/store"
)

const summarySystemPrompt = "You create concise meeting summaries. " +
	"Extract key points, action items, and important decisions."

// Summary represents a structured meeting summary
type Summary struct {
	MeetingID   string   `json:"meeting_id"`
	Overview    string   `json:"overview"`
	ActionItems []string `json:"action_items"`
	KeyPoints   []string `json:"key_points"`
}

// Summarizer condenses a meeting transcript into an overview with action
// items and key points, and persists the raw summary text on the meeting
type Summarizer struct {
	client llm.Client
	store  *store.Store
	logger *slog.Logger
}

// NewSummarizer creates a summary composer. client may be nil, in which case
// Summarize returns an error directing the caller to configure a provider.
func NewSummarizer(client llm.Client, st *store.Store, logger *slog.Logger) *Summarizer {
	return &Summarizer{
		client: client,
		store:  st,
		logger: logger,
	}
}

// Summarize runs the full transcript of a meeting through the LLM and saves
// the resulting summary text, replacing any earlier one
func (s *Summarizer) Summarize(ctx context.Context, meetingID string) (*Summary, error) {
	if s.client == nil {
		return nil, fmt.Errorf("no llm provider configured")
	}

	segments, err := s.store.ListSegments(ctx, meetingID)
	if err != nil {
		return nil, fmt.Errorf("list segments: %w", err)
	}
	if len(segments) == 0 {
		if _, err := s.store.GetMeeting(ctx, meetingID); err != nil {
			return nil, err
		}
		return nil, fmt.Errorf("no transcript available for meeting %s", meetingID)
	}

	var b strings.Builder
	for _, segment := range segments {
		fmt.Fprintf(&b, "[%s] %s\n", FormatTime(segment.StartMS), segment.Text)
	}

	text, err := s.client.Complete(ctx, llm.Request{
		System: summarySystemPrompt,
		Prompt: "Please summarize this meeting transcript:\n\n" + b.String(),
	})
	if err != nil {
		return nil, fmt.Errorf("compose summary: %w", err)
	}

	summary := parseSummary(text)
	summary.MeetingID = meetingID

	if err := s.store.SaveMeetingSummary(ctx, meetingID, text); err != nil {
		// The summary is still useful even if persistence failed
		s.logger.Warn("Failed to save meeting summary",
			slog.String("meeting_id", meetingID),
			slog.String("error", err.Error()))
	}

	return summary, nil
}

// parseSummary splits model output into overview, action item, and key point
// sections. Lines mentioning action items or key points switch sections;
// bullet markers and list numbering are stripped.
func parseSummary(text string) *Summary {
	summary := &Summary{
		ActionItems: []string{},
		KeyPoints:   []string{},
	}

	section := "overview"
	var overview []string

	for _, line := range strings.Split(text, "\n") {
		lower := strings.ToLower(line)
		switch {
		case strings.Contains(lower, "action item") || strings.Contains(lower, "todo") ||
			strings.Contains(lower, "next step"):
			section = "actions"
			continue
		case strings.Contains(lower, "key point") || strings.Contains(lower, "highlight") ||
			strings.Contains(lower, "important"):
			section = "points"
			continue
		}

		item := strings.TrimSpace(strings.TrimLeft(strings.TrimSpace(line), "-*• 0123456789.)"))
		if item == "" {
			continue
		}

		switch section {
		case "actions":
			summary.ActionItems = append(summary.ActionItems, item)
		case "points":
			summary.KeyPoints = append(summary.KeyPoints, item)
		default:
			overview = append(overview, item)
		}
	}

	summary.Overview = strings.Join(overview, " ")
	if summary.Overview == "" && len(summary.ActionItems) == 0 && len(summary.KeyPoints) == 0 {
		summary.Overview = strings.TrimSpace(text)
	}
	return summary
}
