package store

import (
	"context"
	"fmt"
	"time"
)

// Message roles stored in chat history.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one chat history entry.
type Message struct {
	ID        int64
	DocID     string
	Role      string
	Content   string
	CreatedAt time.Time
}

// AppendMessage records a message and trims the document's history to the
// newest maxTurns exchanges (2*maxTurns rows). Oldest rows go first.
func (s *Store) AppendMessage(ctx context.Context, docID, role, content string, maxTurns int) error {
	_, err := s.db.Exec(ctx,
		`INSERT INTO chat_history (doc_id, role, content) VALUES ($1, $2, $3)`,
		docID, role, content)
	if err != nil {
		return fmt.Errorf("appending message for %q: %w", docID, err)
	}

	if maxTurns <= 0 {
		return nil
	}
	_, err = s.db.Exec(ctx,
		`DELETE FROM chat_history
		 WHERE doc_id = $1 AND id NOT IN (
		   SELECT id FROM chat_history
		   WHERE doc_id = $1
		   ORDER BY id DESC
		   LIMIT $2
		 )`,
		docID, 2*maxTurns)
	if err != nil {
		return fmt.Errorf("trimming history for %q: %w", docID, err)
	}
	return nil
}

// History returns up to limit of the newest messages for a document in
// chronological order. limit <= 0 returns everything.
func (s *Store) History(ctx context.Context, docID string, limit int) ([]Message, error) {
	query := `SELECT id, doc_id, role, content, created_at
		FROM chat_history WHERE doc_id = $1 ORDER BY id`
	args := []any{docID}
	if limit > 0 {
		query = `SELECT id, doc_id, role, content, created_at FROM (
				SELECT id, doc_id, role, content, created_at
				FROM chat_history WHERE doc_id = $1
				ORDER BY id DESC LIMIT $2
			) newest ORDER BY id`
		args = append(args, limit)
	}

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("loading history for %q: %w", docID, err)
	}
	defer rows.Close()

	var msgs []Message
	for rows.Next() {
		var m Message
		if err := rows.Scan(&m.ID, &m.DocID, &m.Role, &m.Content, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning message: %w", err)
		}
		msgs = append(msgs, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating history: %w", err)
	}
	return msgs, nil
}

// ClearHistory deletes the document's transcript.
func (s *Store) ClearHistory(ctx context.Context, docID string) error {
	_, err := s.db.Exec(ctx,
		`DELETE FROM chat_history WHERE doc_id = $1`, docID)
	if err != nil {
		return fmt.Errorf("clearing history for %q: %w", docID, err)
	}
	return nil
}
