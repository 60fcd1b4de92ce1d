package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
)

// Segment represents one transcribed span of a meeting. Timestamps are
// meeting-relative milliseconds and immutable once stored; only the text
// and speaker attribution may change.
type Segment struct {
	ID             string  `json:"id"`
	MeetingID      string  `json:"meeting_id"`
	Seq            int     `json:"seq"`
	Text           string  `json:"text"`
	StartMS        int64   `json:"start_ms"`
	EndMS          int64   `json:"end_ms"`
	SpeakerID      *string `json:"speaker_id,omitempty"`
	EmbeddingState string  `json:"embedding_state"`
}

// AppendSegment appends a segment to a meeting's transcript. The segment
// must not start before the last segment's start or end; violations return
// ErrOrderingViolation. The row and its full-text index entry are written
// in one transaction.
func (s *Store) AppendSegment(ctx context.Context, meetingID, text string, startMS, endMS int64) (*Segment, error) {
	if text == "" {
		return nil, fmt.Errorf("segment text cannot be empty")
	}
	if endMS < startMS {
		return nil, fmt.Errorf("segment end %d before start %d", endMS, startMS)
	}

	segment := &Segment{
		ID:             uuid.New().String(),
		MeetingID:      meetingID,
		Text:           text,
		StartMS:        startMS,
		EndMS:          endMS,
		EmbeddingState: EmbeddingPending,
	}

	err := s.inTx(ctx, func(tx *sql.Tx) error {
		var lastSeq sql.NullInt64
		var lastStart, lastEnd sql.NullInt64
		err := tx.QueryRowContext(ctx,
			`SELECT seq, start_ms, end_ms FROM segments WHERE meeting_id = ? ORDER BY seq DESC LIMIT 1`,
			meetingID).Scan(&lastSeq, &lastStart, &lastEnd)
		if err != nil && err != sql.ErrNoRows {
			return fmt.Errorf("query last segment: %w", err)
		}

		if lastSeq.Valid {
			if startMS < lastStart.Int64 || startMS < lastEnd.Int64 {
				return fmt.Errorf("segment at %dms behind last segment %d..%d: %w",
					startMS, lastStart.Int64, lastEnd.Int64, ErrOrderingViolation)
			}
			segment.Seq = int(lastSeq.Int64) + 1
		}

		result, err := tx.ExecContext(ctx,
			`INSERT INTO segments (id, meeting_id, seq, text, start_ms, end_ms, embedding_state)
			 VALUES (?, ?, ?, ?, ?, ?, ?)`,
			segment.ID, segment.MeetingID, segment.Seq, segment.Text,
			segment.StartMS, segment.EndMS, segment.EmbeddingState)
		if err != nil {
			return fmt.Errorf("insert segment: %w", err)
		}

		rowid, err := result.LastInsertId()
		if err != nil {
			return fmt.Errorf("segment rowid: %w", err)
		}

		if _, err := tx.ExecContext(ctx,
			`INSERT INTO segments_fts (rowid, text) VALUES (?, ?)`, rowid, segment.Text); err != nil {
			return fmt.Errorf("index segment: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return segment, nil
}

// GetSegment fetches a segment by id
func (s *Store) GetSegment(ctx context.Context, id string) (*Segment, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, meeting_id, seq, text, start_ms, end_ms, speaker_id, embedding_state
		 FROM segments WHERE id = ?`, id)
	return scanSegment(row)
}

// ListSegments returns a meeting's segments in transcript order
func (s *Store) ListSegments(ctx context.Context, meetingID string) ([]*Segment, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, meeting_id, seq, text, start_ms, end_ms, speaker_id, embedding_state
		 FROM segments WHERE meeting_id = ? ORDER BY seq`, meetingID)
	if err != nil {
		return nil, fmt.Errorf("list segments: %w", err)
	}
	defer rows.Close()

	var segments []*Segment
	for rows.Next() {
		segment, err := scanSegment(rows)
		if err != nil {
			return nil, err
		}
		segments = append(segments, segment)
	}
	return segments, rows.Err()
}

// UpdateSegmentText replaces a segment's text, re-indexes it, resets its
// embedding state to pending, and drops the now-stale embedding row, all in
// one transaction. Timestamps are untouched.
func (s *Store) UpdateSegmentText(ctx context.Context, id, text string) error {
	if text == "" {
		return fmt.Errorf("segment text cannot be empty")
	}

	return s.inTx(ctx, func(tx *sql.Tx) error {
		var rowid int64
		err := tx.QueryRowContext(ctx, `SELECT rowid FROM segments WHERE id = ?`, id).Scan(&rowid)
		if err == sql.ErrNoRows {
			return fmt.Errorf("segment %s: %w", id, ErrNotFound)
		}
		if err != nil {
			return fmt.Errorf("query segment: %w", err)
		}

		if _, err := tx.ExecContext(ctx,
			`UPDATE segments SET text = ?, embedding_state = ? WHERE id = ?`,
			text, EmbeddingPending, id); err != nil {
			return fmt.Errorf("update segment text: %w", err)
		}

		if _, err := tx.ExecContext(ctx,
			`DELETE FROM segments_fts WHERE rowid = ?`, rowid); err != nil {
			return fmt.Errorf("deindex segment: %w", err)
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO segments_fts (rowid, text) VALUES (?, ?)`, rowid, text); err != nil {
			return fmt.Errorf("reindex segment: %w", err)
		}

		if _, err := tx.ExecContext(ctx,
			`DELETE FROM embeddings WHERE segment_id = ?`, id); err != nil {
			return fmt.Errorf("drop stale embedding: %w", err)
		}
		return nil
	})
}

// SetSegmentSpeaker attributes a segment to a speaker; empty clears it
func (s *Store) SetSegmentSpeaker(ctx context.Context, id, speakerID string) error {
	var speaker interface{}
	if speakerID != "" {
		speaker = speakerID
	}

	result, err := s.db.ExecContext(ctx,
		`UPDATE segments SET speaker_id = ? WHERE id = ?`, speaker, id)
	if err != nil {
		return fmt.Errorf("set segment speaker: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("set segment speaker: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("segment %s: %w", id, ErrNotFound)
	}
	return nil
}

// DeleteSegment removes a segment, its index entry, and its embedding in
// one transaction
func (s *Store) DeleteSegment(ctx context.Context, id string) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		var rowid int64
		err := tx.QueryRowContext(ctx, `SELECT rowid FROM segments WHERE id = ?`, id).Scan(&rowid)
		if err == sql.ErrNoRows {
			return fmt.Errorf("segment %s: %w", id, ErrNotFound)
		}
		if err != nil {
			return fmt.Errorf("query segment: %w", err)
		}

		if _, err := tx.ExecContext(ctx,
			`DELETE FROM segments_fts WHERE rowid = ?`, rowid); err != nil {
			return fmt.Errorf("deindex segment: %w", err)
		}

		// The embedding row cascades with the segment
		if _, err := tx.ExecContext(ctx, `DELETE FROM segments WHERE id = ?`, id); err != nil {
			return fmt.Errorf("delete segment: %w", err)
		}
		return nil
	})
}

// scanSegment reads one segment row
func scanSegment(row rowScanner) (*Segment, error) {
	var segment Segment
	var speaker sql.NullString

	err := row.Scan(&segment.ID, &segment.MeetingID, &segment.Seq, &segment.Text,
		&segment.StartMS, &segment.EndMS, &speaker, &segment.EmbeddingState)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("segment: %w", ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("scan segment: %w", err)
	}

	if speaker.Valid {
		segment.SpeakerID = &speaker.String
	}
	return &segment, nil
}
