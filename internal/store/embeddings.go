package store

import (
	"context"
	"database/sql"
	"fmt"
)

// EmbeddedSegment carries everything retrieval needs: the segment text,
// its place on the meeting timeline, and the decoded vector
type EmbeddedSegment struct {
	SegmentID string
	MeetingID string
	Text      string
	StartMS   int64
	EndMS     int64
	Vector    []float32
}

// EmbeddingCounts summarizes embedding pipeline progress
type EmbeddingCounts struct {
	Embedded int `json:"embedded"`
	Pending  int `json:"pending"`
	Failed   int `json:"failed"`
	Total    int `json:"total"`
}

// PendingSegments returns segments awaiting embedding, oldest first. Failed
// segments are included so they are retried opportunistically, but sort
// behind pending ones so repeated failures cannot starve fresh segments.
func (s *Store) PendingSegments(ctx context.Context, limit int) ([]*Segment, error) {
	if limit <= 0 {
		limit = 64
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, meeting_id, seq, text, start_ms, end_ms, speaker_id, embedding_state
		 FROM segments WHERE embedding_state IN (?, ?)
		 ORDER BY embedding_state = ?, rowid LIMIT ?`,
		EmbeddingPending, EmbeddingFailed, EmbeddingFailed, limit)
	if err != nil {
		return nil, fmt.Errorf("pending segments: %w", err)
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

// StoreEmbedding writes a segment's vector and marks it embedded in one
// transaction. Storing again with the same model version is a no-op, so
// duplicate segment-ready events are harmless.
func (s *Store) StoreEmbedding(ctx context.Context, segmentID string, vector []float32, modelVersion string) error {
	if len(vector) == 0 {
		return fmt.Errorf("embedding vector cannot be empty")
	}

	return s.inTx(ctx, func(tx *sql.Tx) error {
		var state string
		var existingModel sql.NullString
		err := tx.QueryRowContext(ctx,
			`SELECT seg.embedding_state, emb.model_version
			 FROM segments seg LEFT JOIN embeddings emb ON emb.segment_id = seg.id
			 WHERE seg.id = ?`, segmentID).Scan(&state, &existingModel)
		if err == sql.ErrNoRows {
			return fmt.Errorf("segment %s: %w", segmentID, ErrNotFound)
		}
		if err != nil {
			return fmt.Errorf("query segment: %w", err)
		}

		if state == EmbeddingEmbedded && existingModel.Valid && existingModel.String == modelVersion {
			return nil
		}

		if _, err := tx.ExecContext(ctx,
			`INSERT INTO embeddings (segment_id, vector, model_version, dims)
			 VALUES (?, ?, ?, ?)
			 ON CONFLICT(segment_id) DO UPDATE SET
			   vector = excluded.vector,
			   model_version = excluded.model_version,
			   dims = excluded.dims`,
			segmentID, EncodeVector(vector), modelVersion, len(vector)); err != nil {
			return fmt.Errorf("store embedding: %w", err)
		}

		if _, err := tx.ExecContext(ctx,
			`UPDATE segments SET embedding_state = ? WHERE id = ?`,
			EmbeddingEmbedded, segmentID); err != nil {
			return fmt.Errorf("mark segment embedded: %w", err)
		}
		return nil
	})
}

// MarkEmbeddingFailed records that embedding a segment failed so the sweep
// can retry it later
func (s *Store) MarkEmbeddingFailed(ctx context.Context, segmentID string) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE segments SET embedding_state = ? WHERE id = ?`,
		EmbeddingFailed, segmentID)
	if err != nil {
		return fmt.Errorf("mark embedding failed: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("mark embedding failed: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("segment %s: %w", segmentID, ErrNotFound)
	}
	return nil
}

// EmbeddedSegments returns all embedded segments with decoded vectors,
// optionally scoped to one meeting. This feeds the brute-force similarity
// scan in retrieval.
func (s *Store) EmbeddedSegments(ctx context.Context, meetingID string) ([]*EmbeddedSegment, error) {
	stmt := `SELECT seg.id, seg.meeting_id, seg.text, seg.start_ms, seg.end_ms, emb.vector
	         FROM segments seg JOIN embeddings emb ON emb.segment_id = seg.id
	         WHERE seg.embedding_state = ?`
	args := []interface{}{EmbeddingEmbedded}

	if meetingID != "" {
		stmt += ` AND seg.meeting_id = ?`
		args = append(args, meetingID)
	}

	rows, err := s.db.QueryContext(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("embedded segments: %w", err)
	}
	defer rows.Close()

	var segments []*EmbeddedSegment
	for rows.Next() {
		var seg EmbeddedSegment
		var blob []byte
		if err := rows.Scan(&seg.SegmentID, &seg.MeetingID, &seg.Text, &seg.StartMS, &seg.EndMS, &blob); err != nil {
			return nil, fmt.Errorf("scan embedded segment: %w", err)
		}
		seg.Vector, err = DecodeVector(blob)
		if err != nil {
			return nil, fmt.Errorf("segment %s: %w", seg.SegmentID, err)
		}
		segments = append(segments, &seg)
	}
	return segments, rows.Err()
}

// EmbeddingCounts returns per-state segment counts
func (s *Store) EmbeddingCounts(ctx context.Context) (*EmbeddingCounts, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT embedding_state, COUNT(*) FROM segments GROUP BY embedding_state`)
	if err != nil {
		return nil, fmt.Errorf("embedding counts: %w", err)
	}
	defer rows.Close()

	counts := &EmbeddingCounts{}
	for rows.Next() {
		var state string
		var n int
		if err := rows.Scan(&state, &n); err != nil {
			return nil, fmt.Errorf("scan embedding counts: %w", err)
		}
		switch state {
		case EmbeddingEmbedded:
			counts.Embedded = n
		case EmbeddingPending:
			counts.Pending = n
		case EmbeddingFailed:
			counts.Failed = n
		}
		counts.Total += n
	}
	return counts, rows.Err()
}
