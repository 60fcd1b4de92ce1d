package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Meeting represents a recorded meeting
type Meeting struct {
	ID        string     `json:"id"`
	Title     string     `json:"title"`
	CreatedAt time.Time  `json:"created_at"`
	EndedAt   *time.Time `json:"ended_at,omitempty"`
	Pinned    bool       `json:"pinned"`
	Tags      []string   `json:"tags"`
}

// MeetingStats summarizes a meeting's transcript
type MeetingStats struct {
	MeetingID    string `json:"meeting_id"`
	SegmentCount int    `json:"segment_count"`
	WordCount    int    `json:"word_count"`
	DurationMS   int64  `json:"duration_ms"`
}

// CreateMeeting inserts a new meeting and returns it
func (s *Store) CreateMeeting(ctx context.Context, title string) (*Meeting, error) {
	if title == "" {
		title = "Meeting " + time.Now().Format("2006-01-02 15:04")
	}

	meeting := &Meeting{
		ID:        uuid.New().String(),
		Title:     title,
		CreatedAt: time.Now().UTC(),
		Tags:      []string{},
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO meetings (id, title, created_at, tags) VALUES (?, ?, ?, '[]')`,
		meeting.ID, meeting.Title, meeting.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("create meeting: %w", err)
	}

	return meeting, nil
}

// GetMeeting fetches a meeting by id
func (s *Store) GetMeeting(ctx context.Context, id string) (*Meeting, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, title, created_at, ended_at, pinned, tags FROM meetings WHERE id = ?`, id)
	return scanMeeting(row)
}

// ListMeetings returns all meetings, pinned first, then most recent first
func (s *Store) ListMeetings(ctx context.Context) ([]*Meeting, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, title, created_at, ended_at, pinned, tags
		 FROM meetings ORDER BY pinned DESC, created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list meetings: %w", err)
	}
	defer rows.Close()

	var meetings []*Meeting
	for rows.Next() {
		meeting, err := scanMeeting(rows)
		if err != nil {
			return nil, err
		}
		meetings = append(meetings, meeting)
	}
	return meetings, rows.Err()
}

// RenameMeeting updates a meeting's title
func (s *Store) RenameMeeting(ctx context.Context, id, title string) error {
	if title == "" {
		return fmt.Errorf("meeting title cannot be empty")
	}
	return s.updateMeeting(ctx, id, `UPDATE meetings SET title = ? WHERE id = ?`, title, id)
}

// SetMeetingPinned pins or unpins a meeting
func (s *Store) SetMeetingPinned(ctx context.Context, id string, pinned bool) error {
	return s.updateMeeting(ctx, id, `UPDATE meetings SET pinned = ? WHERE id = ?`, pinned, id)
}

// SetMeetingTags replaces a meeting's tag list
func (s *Store) SetMeetingTags(ctx context.Context, id string, tags []string) error {
	if tags == nil {
		tags = []string{}
	}
	encoded, err := json.Marshal(tags)
	if err != nil {
		return fmt.Errorf("encode tags: %w", err)
	}
	return s.updateMeeting(ctx, id, `UPDATE meetings SET tags = ? WHERE id = ?`, string(encoded), id)
}

// SaveMeetingSummary persists the generated summary text for a meeting,
// replacing any previous one
func (s *Store) SaveMeetingSummary(ctx context.Context, id, summary string) error {
	if strings.TrimSpace(summary) == "" {
		return fmt.Errorf("summary cannot be empty")
	}
	return s.updateMeeting(ctx, id, `UPDATE meetings SET summary = ? WHERE id = ?`, summary, id)
}

// MeetingSummary returns the saved summary text. A meeting without one
// returns ErrNotFound, same as a missing meeting.
func (s *Store) MeetingSummary(ctx context.Context, id string) (string, error) {
	var summary sql.NullString
	err := s.db.QueryRowContext(ctx,
		`SELECT summary FROM meetings WHERE id = ?`, id).Scan(&summary)
	if err == sql.ErrNoRows {
		return "", fmt.Errorf("meeting: %w", ErrNotFound)
	}
	if err != nil {
		return "", fmt.Errorf("meeting summary: %w", err)
	}
	if !summary.Valid || summary.String == "" {
		return "", fmt.Errorf("summary for meeting %s: %w", id, ErrNotFound)
	}
	return summary.String, nil
}

// CloseMeeting stamps the meeting's end time. Closing an already closed
// meeting returns ErrAlreadyClosed.
func (s *Store) CloseMeeting(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE meetings SET ended_at = ? WHERE id = ? AND ended_at IS NULL`,
		time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("close meeting: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("close meeting: %w", err)
	}
	if affected == 0 {
		// Distinguish a missing meeting from a double close
		if _, err := s.GetMeeting(ctx, id); err != nil {
			return err
		}
		return ErrAlreadyClosed
	}
	return nil
}

// DeleteMeeting removes a meeting along with its segments, embeddings,
// conversations, and full-text index entries in one transaction
func (s *Store) DeleteMeeting(ctx context.Context, id string) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx,
			`DELETE FROM segments_fts WHERE rowid IN (SELECT rowid FROM segments WHERE meeting_id = ?)`, id)
		if err != nil {
			return fmt.Errorf("delete meeting index entries: %w", err)
		}

		result, err := tx.ExecContext(ctx, `DELETE FROM meetings WHERE id = ?`, id)
		if err != nil {
			return fmt.Errorf("delete meeting: %w", err)
		}

		affected, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("delete meeting: %w", err)
		}
		if affected == 0 {
			return fmt.Errorf("delete meeting %s: %w", id, ErrNotFound)
		}
		return nil
	})
}

// MeetingStats computes segment, word, and duration totals for a meeting
func (s *Store) MeetingStats(ctx context.Context, id string) (*MeetingStats, error) {
	if _, err := s.GetMeeting(ctx, id); err != nil {
		return nil, err
	}

	stats := &MeetingStats{MeetingID: id}

	rows, err := s.db.QueryContext(ctx,
		`SELECT text, start_ms, end_ms FROM segments WHERE meeting_id = ? ORDER BY seq`, id)
	if err != nil {
		return nil, fmt.Errorf("meeting stats: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var text string
		var startMS, endMS int64
		if err := rows.Scan(&text, &startMS, &endMS); err != nil {
			return nil, fmt.Errorf("scan segment: %w", err)
		}
		stats.SegmentCount++
		stats.WordCount += countWords(text)
		if endMS > stats.DurationMS {
			stats.DurationMS = endMS
		}
	}
	return stats, rows.Err()
}

// updateMeeting runs a single-row update, mapping zero affected rows to
// ErrNotFound
func (s *Store) updateMeeting(ctx context.Context, id, query string, args ...interface{}) error {
	result, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update meeting: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update meeting: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("update meeting %s: %w", id, ErrNotFound)
	}
	return nil
}

// rowScanner is satisfied by both *sql.Row and *sql.Rows
type rowScanner interface {
	Scan(dest ...interface{}) error
}

// scanMeeting reads one meeting row
func scanMeeting(row rowScanner) (*Meeting, error) {
	var meeting Meeting
	var endedAt sql.NullTime
	var tags string

	err := row.Scan(&meeting.ID, &meeting.Title, &meeting.CreatedAt, &endedAt, &meeting.Pinned, &tags)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("meeting: %w", ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("scan meeting: %w", err)
	}

	if endedAt.Valid {
		meeting.EndedAt = &endedAt.Time
	}
	if err := json.Unmarshal([]byte(tags), &meeting.Tags); err != nil {
		return nil, fmt.Errorf("decode tags: %w", err)
	}
	return &meeting, nil
}

// countWords counts whitespace-separated words
func countWords(text string) int {
	return len(strings.Fields(text))
}
