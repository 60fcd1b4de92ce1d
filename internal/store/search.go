package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// SearchResult represents one full-text match
type SearchResult struct {
	Segment *Segment `json:"segment"`
	Rank    float64  `json:"rank"`    // bm25, more negative is better
	Snippet string   `json:"snippet"` // text window around the first match
}

// snippetRadius is the number of words kept on each side of the first
// matching term when building a snippet
const snippetRadius = 8

// SearchText runs a full-text query over segment text. An empty meetingID
// searches all meetings. Results are ranked by bm25, best first.
func (s *Store) SearchText(ctx context.Context, query, meetingID string, limit int) ([]*SearchResult, error) {
	match := sanitizeQuery(query)
	if match == "" {
		return nil, nil
	}
	if limit <= 0 {
		limit = 20
	}

	stmt := `SELECT seg.id, seg.meeting_id, seg.seq, seg.text, seg.start_ms, seg.end_ms,
	               seg.speaker_id, seg.embedding_state, bm25(segments_fts) AS rank
	        FROM segments_fts
	        JOIN segments seg ON seg.rowid = segments_fts.rowid
	        WHERE segments_fts MATCH ?`
	args := []interface{}{match}

	if meetingID != "" {
		stmt += ` AND seg.meeting_id = ?`
		args = append(args, meetingID)
	}
	stmt += ` ORDER BY rank LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("full-text search: %w", err)
	}
	defer rows.Close()

	var results []*SearchResult
	for rows.Next() {
		var segment Segment
		var speaker sql.NullString
		var rank float64

		err := rows.Scan(&segment.ID, &segment.MeetingID, &segment.Seq, &segment.Text,
			&segment.StartMS, &segment.EndMS, &speaker, &segment.EmbeddingState, &rank)
		if err != nil {
			return nil, fmt.Errorf("scan search result: %w", err)
		}
		if speaker.Valid {
			segment.SpeakerID = &speaker.String
		}

		results = append(results, &SearchResult{
			Segment: &segment,
			Rank:    rank,
			Snippet: makeSnippet(segment.Text, query),
		})
	}
	return results, rows.Err()
}

// sanitizeQuery converts free text into a safe FTS5 match expression by
// quoting each token, which disables FTS operator syntax in user input
func sanitizeQuery(query string) string {
	fields := strings.Fields(query)
	if len(fields) == 0 {
		return ""
	}

	quoted := make([]string, 0, len(fields))
	for _, f := range fields {
		f = strings.ReplaceAll(f, `"`, "")
		if f == "" {
			continue
		}
		quoted = append(quoted, `"`+f+`"`)
	}
	return strings.Join(quoted, " ")
}

// makeSnippet returns a word window around the first query term found in
// the text, or the leading words when no term matches. The index is
// contentless so snippets are built here rather than by FTS5.
func makeSnippet(text, query string) string {
	words := strings.Fields(text)
	if len(words) == 0 {
		return ""
	}

	terms := strings.Fields(strings.ToLower(query))
	matchIdx := -1
	for i, w := range words {
		lw := strings.ToLower(strings.Trim(w, `.,!?;:"'()`))
		for _, term := range terms {
			if lw == strings.Trim(term, `"`) {
				matchIdx = i
				break
			}
		}
		if matchIdx >= 0 {
			break
		}
	}
	if matchIdx < 0 {
		matchIdx = 0
	}

	start := matchIdx - snippetRadius
	if start < 0 {
		start = 0
	}
	end := matchIdx + snippetRadius + 1
	if end > len(words) {
		end = len(words)
	}

	snippet := strings.Join(words[start:end], " ")
	if start > 0 {
		snippet = "…" + snippet
	}
	if end < len(words) {
		snippet += "…"
	}
	return snippet
}
