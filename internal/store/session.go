package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
)

// Session is the per-document remote state: one conversation and one
// retrieval index, plus the instructions and model they were created with.
// Summary is the rolling auto-summary of synchronized content; each sync
// folds new content into it.
type Session struct {
	DocID            string
	ConversationID   string
	IndexID          string
	Model            string
	Instructions     string
	Summary          string
	SummaryUpdatedAt time.Time
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

const sessionCols = `doc_id, conversation_id, COALESCE(index_id, ''),
	COALESCE(model, ''), COALESCE(instructions, ''), COALESCE(doc_summary, ''),
	COALESCE(doc_summary_updated_at, to_timestamp(0)), created_at, updated_at`

// GetSession loads the session for a document. Returns ErrNotFound when
// the document has never been provisioned.
func (s *Store) GetSession(ctx context.Context, docID string) (*Session, error) {
	row := s.db.QueryRow(ctx,
		`SELECT `+sessionCols+` FROM docs_sessions WHERE doc_id = $1`, docID)

	var sess Session
	err := row.Scan(&sess.DocID, &sess.ConversationID, &sess.IndexID,
		&sess.Model, &sess.Instructions, &sess.Summary, &sess.SummaryUpdatedAt,
		&sess.CreatedAt, &sess.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("loading session for %q: %w", docID, err)
	}
	return &sess, nil
}

// InsertSession records a newly provisioned session. The primary key on
// doc_id makes a duplicate insert fail, which provisioning relies on to
// detect a lost race.
func (s *Store) InsertSession(ctx context.Context, sess *Session) error {
	_, err := s.db.Exec(ctx,
		`INSERT INTO docs_sessions (doc_id, conversation_id, index_id, model, instructions)
		 VALUES ($1, $2, NULLIF($3, ''), NULLIF($4, ''), NULLIF($5, ''))`,
		sess.DocID, sess.ConversationID, sess.IndexID, sess.Model, sess.Instructions)
	if err != nil {
		return fmt.Errorf("inserting session for %q: %w", sess.DocID, err)
	}
	return nil
}

// UpdateSessionInstructions reconciles the stored instructions and model
// for an existing session.
func (s *Store) UpdateSessionInstructions(ctx context.Context, docID, instructions, model string) error {
	tag, err := s.db.Exec(ctx,
		`UPDATE docs_sessions
		 SET instructions = NULLIF($2, ''), model = NULLIF($3, ''), updated_at = now()
		 WHERE doc_id = $1`,
		docID, instructions, model)
	if err != nil {
		return fmt.Errorf("updating session for %q: %w", docID, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// UpdateSessionSummary persists the rolling content summary.
func (s *Store) UpdateSessionSummary(ctx context.Context, docID, summary string) error {
	tag, err := s.db.Exec(ctx,
		`UPDATE docs_sessions
		 SET doc_summary = NULLIF($2, ''), doc_summary_updated_at = now(), updated_at = now()
		 WHERE doc_id = $1`,
		docID, summary)
	if err != nil {
		return fmt.Errorf("updating summary for %q: %w", docID, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// TouchSession bumps updated_at, marking recent activity on the document.
func (s *Store) TouchSession(ctx context.Context, docID string) error {
	_, err := s.db.Exec(ctx,
		`UPDATE docs_sessions SET updated_at = now() WHERE doc_id = $1`, docID)
	if err != nil {
		return fmt.Errorf("touching session for %q: %w", docID, err)
	}
	return nil
}

// DeleteSession removes the session row for a document.
func (s *Store) DeleteSession(ctx context.Context, docID string) error {
	_, err := s.db.Exec(ctx,
		`DELETE FROM docs_sessions WHERE doc_id = $1`, docID)
	if err != nil {
		return fmt.Errorf("deleting session for %q: %w", docID, err)
	}
	return nil
}
