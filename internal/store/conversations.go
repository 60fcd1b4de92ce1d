package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Conversation represents one saved question and answer about a meeting
type Conversation struct {
	ID        string    `json:"id"`
	MeetingID string    `json:"meeting_id"`
	Question  string    `json:"question"`
	Answer    string    `json:"answer"`
	CreatedAt time.Time `json:"created_at"`
}

// SaveConversation persists a question/answer pair for a meeting
func (s *Store) SaveConversation(ctx context.Context, meetingID, question, answer string) (*Conversation, error) {
	if question == "" {
		return nil, fmt.Errorf("conversation question cannot be empty")
	}

	conv := &Conversation{
		ID:        uuid.New().String(),
		MeetingID: meetingID,
		Question:  question,
		Answer:    answer,
		CreatedAt: time.Now().UTC(),
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO conversations (id, meeting_id, question, answer, created_at)
		 VALUES (?, ?, ?, ?, ?)`,
		conv.ID, conv.MeetingID, conv.Question, conv.Answer, conv.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("save conversation: %w", err)
	}
	return conv, nil
}

// ListConversations returns a meeting's saved conversations, newest first
func (s *Store) ListConversations(ctx context.Context, meetingID string) ([]*Conversation, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, meeting_id, question, answer, created_at
		 FROM conversations WHERE meeting_id = ? ORDER BY created_at DESC`, meetingID)
	if err != nil {
		return nil, fmt.Errorf("list conversations: %w", err)
	}
	defer rows.Close()

	var conversations []*Conversation
	for rows.Next() {
		var conv Conversation
		if err := rows.Scan(&conv.ID, &conv.MeetingID, &conv.Question, &conv.Answer, &conv.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan conversation: %w", err)
		}
		conversations = append(conversations, &conv)
	}
	return conversations, rows.Err()
}
