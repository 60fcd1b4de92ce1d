package retrieval

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"time"

	"github.com/Phantom-Ear/phantom-ear-sub000/internal/asr"
	"github.com/Phantom-Ear/phantom-ear-sub000/internal/embedding"
	"github.com/Phantom-Ear/phantom-ear-sub000/internal/metrics"
	"github.com/Phantom-Ear/phantom-ear-sub000/internal/store"
)

// Result represents one retrieved transcript span
type Result struct {
	SegmentID    string  `json:"segment_id"`
	MeetingID    string  `json:"meeting_id"`
	MeetingTitle string  `json:"meeting_title"`
	Text         string  `json:"text"`
	Snippet      string  `json:"snippet"`
	StartMS      int64   `json:"start_ms"`
	TimeLabel    string  `json:"time_label"` // MM:SS into the meeting
	Score        float64 `json:"score"`      // normalized to [0,1]
	Semantic     bool    `json:"semantic"`   // found by vector similarity
}

// Engine runs hybrid retrieval: vector similarity over embedded segments
// unioned with exact-term full-text matches. When the embedding model is
// not loaded it degrades to lexical-only search.
type Engine struct {
	store    *store.Store
	backend  embedding.Backend
	tracker  *asr.StateTracker
	metrics  *metrics.Metrics
	maxLimit int
	logger   *slog.Logger
}

// NewEngine creates a hybrid retrieval engine
func NewEngine(st *store.Store, backend embedding.Backend, tracker *asr.StateTracker,
	m *metrics.Metrics, maxLimit int, logger *slog.Logger) *Engine {
	if maxLimit <= 0 {
		maxLimit = 30
	}
	return &Engine{
		store:    st,
		backend:  backend,
		tracker:  tracker,
		metrics:  m,
		maxLimit: maxLimit,
		logger:   logger,
	}
}

// Retrieve returns the most relevant transcript spans for a query. An empty
// meetingID searches all meetings. The limit is capped at the engine's
// maximum; callers widen it stepwise when an answer needs more context.
func (e *Engine) Retrieve(ctx context.Context, query, meetingID string, limit int) ([]*Result, error) {
	start := time.Now()
	defer func() {
		e.metrics.RecordRetrieval(time.Since(start).Seconds())
	}()

	if limit <= 0 {
		limit = 10
	}
	if limit > e.maxLimit {
		limit = e.maxLimit
	}

	titles := make(map[string]string)
	merged := make(map[string]*Result)

	// Vector pass, skipped while the embedding model is unavailable
	if e.tracker.IsLoaded() {
		if err := e.semanticPass(ctx, query, meetingID, merged); err != nil {
			// Degrade to lexical-only rather than failing the query
			e.logger.Warn("Semantic retrieval pass failed",
				slog.String("error", err.Error()))
		}
	}

	// Lexical pass for exact-term recall
	if err := e.lexicalPass(ctx, query, meetingID, limit, merged); err != nil {
		return nil, err
	}

	results := make([]*Result, 0, len(merged))
	for _, r := range merged {
		title, err := e.meetingTitle(ctx, r.MeetingID, titles)
		if err != nil {
			return nil, err
		}
		r.MeetingTitle = title
		r.TimeLabel = FormatTime(r.StartMS)
		results = append(results, r)
	}

	// Score desc, most recent span first on ties
	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].StartMS > results[j].StartMS
	})

	if len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

// semanticPass cosine-ranks embedded segments against the query vector
func (e *Engine) semanticPass(ctx context.Context, query, meetingID string, merged map[string]*Result) error {
	queryVector, err := e.backend.Embed(ctx, query)
	if err != nil {
		return fmt.Errorf("embed query: %w", err)
	}

	segments, err := e.store.EmbeddedSegments(ctx, meetingID)
	if err != nil {
		return err
	}

	for _, seg := range segments {
		similarity := CosineSimilarity(queryVector, seg.Vector)
		// Map [-1,1] similarity onto [0,1]
		score := (similarity + 1) / 2

		merged[seg.SegmentID] = &Result{
			SegmentID: seg.SegmentID,
			MeetingID: seg.MeetingID,
			Text:      seg.Text,
			Snippet:   seg.Text,
			StartMS:   seg.StartMS,
			Score:     score,
			Semantic:  true,
		}
	}
	return nil
}

// lexicalPass unions full-text matches into the merged set, keeping the
// higher score on collision. Lexical scores are normalized against the best
// bm25 rank in the result set.
func (e *Engine) lexicalPass(ctx context.Context, query, meetingID string, limit int, merged map[string]*Result) error {
	matches, err := e.store.SearchText(ctx, query, meetingID, limit)
	if err != nil {
		return err
	}
	if len(matches) == 0 {
		return nil
	}

	// bm25 ranks are negative, best first; the best match anchors 1.0
	best := matches[0].Rank
	for _, m := range matches {
		score := 1.0
		if best != 0 {
			score = m.Rank / best
		}
		if score < 0 {
			score = 0
		}

		existing, ok := merged[m.Segment.ID]
		if ok && existing.Score >= score {
			// Better placed by the vector pass; keep its score but
			// prefer the lexical snippet for display
			existing.Snippet = m.Snippet
			continue
		}

		merged[m.Segment.ID] = &Result{
			SegmentID: m.Segment.ID,
			MeetingID: m.Segment.MeetingID,
			Text:      m.Segment.Text,
			Snippet:   m.Snippet,
			StartMS:   m.Segment.StartMS,
			Score:     score,
		}
	}
	return nil
}

// meetingTitle resolves a meeting title through a per-query cache
func (e *Engine) meetingTitle(ctx context.Context, meetingID string, cache map[string]string) (string, error) {
	if title, ok := cache[meetingID]; ok {
		return title, nil
	}
	meeting, err := e.store.GetMeeting(ctx, meetingID)
	if err != nil {
		return "", err
	}
	cache[meetingID] = meeting.Title
	return meeting.Title, nil
}

// CosineSimilarity computes the cosine of the angle between two vectors;
// mismatched or zero vectors score 0
func CosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}

	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

// FormatTime renders a meeting-relative offset as MM:SS
func FormatTime(offsetMS int64) string {
	totalSeconds := offsetMS / 1000
	return fmt.Sprintf("%02d:%02d", totalSeconds/60, totalSeconds%60)
}
