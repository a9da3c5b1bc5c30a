// Package session provisions per-document remote state: one conversation
// and one retrieval index per document, recorded in the metadata store.
package session

import (
	"context"
	"errors"
	"fmt"

	"github.com/docassist/docassist/internal/assist"
	"github.com/docassist/docassist/internal/log"
	"github.com/docassist/docassist/internal/store"
)

// Provisioner creates and reconciles document sessions.
//
// Ensure is safe for concurrent use. Concurrent first calls for the same
// document serialize on a per-document advisory lock so exactly one
// conversation and index are created.
type Provisioner struct {
	store  *store.Store
	client assist.Client
	model  string
	logger log.Logger
}

// NewProvisioner creates a Provisioner.
func NewProvisioner(st *store.Store, client assist.Client, model string, logger log.Logger) (*Provisioner, error) {
	if st == nil {
		return nil, fmt.Errorf("store is required")
	}
	if client == nil {
		return nil, fmt.Errorf("client is required")
	}
	if logger == nil {
		logger = log.NewNop()
	}
	return &Provisioner{store: st, client: client, model: model, logger: logger}, nil
}

// Ensure returns the session for docID, provisioning the remote
// conversation and retrieval index on first use.
//
// Existing sessions take a fast path with no locking; non-empty
// instructions that differ from the stored ones are reconciled
// best-effort on the way out.
func (p *Provisioner) Ensure(ctx context.Context, docID, instructions string) (*store.Session, error) {
	if docID == "" {
		return nil, fmt.Errorf("doc ID is required")
	}

	sess, err := p.store.GetSession(ctx, docID)
	if err == nil {
		return p.reconcile(ctx, sess, instructions), nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}

	tx, err := p.store.Begin(ctx)
	if errors.Is(err, store.ErrNoTransactions) {
		// No pool behind this store. Provision without the advisory
		// lock; a concurrent first call can then race and leak one
		// remote pair, which cleanup retires later.
		return p.provision(ctx, p.store, docID, instructions)
	}
	if err != nil {
		return nil, err
	}
	defer p.store.Rollback(ctx, tx)

	locked := p.store.WithTx(tx)
	if err := locked.AcquireDocLock(ctx, docID); err != nil {
		return nil, err
	}

	// Another writer may have provisioned while we waited on the lock.
	sess, err = locked.GetSession(ctx, docID)
	if err == nil {
		if commitErr := tx.Commit(ctx); commitErr != nil {
			return nil, fmt.Errorf("committing session transaction: %w", commitErr)
		}
		return p.reconcile(ctx, sess, instructions), nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}

	sess, err = p.provision(ctx, locked, docID, instructions)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		p.destroyRemote(ctx, sess.ConversationID, sess.IndexID)
		return nil, fmt.Errorf("committing session transaction: %w", err)
	}
	return sess, nil
}

// provision creates the remote pair and records the session row through
// st. Any failure after remote creation tears the remote pair back down.
func (p *Provisioner) provision(ctx context.Context, st *store.Store, docID, instructions string) (*store.Session, error) {
	conversationID, indexID, err := p.createRemote(ctx, docID)
	if err != nil {
		return nil, err
	}

	sess := &store.Session{
		DocID:          docID,
		ConversationID: conversationID,
		IndexID:        indexID,
		Model:          p.model,
		Instructions:   instructions,
	}
	if err := st.InsertSession(ctx, sess); err != nil {
		p.destroyRemote(ctx, conversationID, indexID)
		return nil, err
	}

	p.logger.Info("session provisioned",
		"doc_id", docID, "conversation_id", conversationID, "index_id", indexID)
	return sess, nil
}

// createRemote provisions the conversation and retrieval index. A failed
// index creation deletes the already-created conversation.
func (p *Provisioner) createRemote(ctx context.Context, docID string) (conversationID, indexID string, err error) {
	conversationID, err = p.client.CreateConversation(ctx, map[string]string{"doc_id": docID})
	if err != nil {
		return "", "", fmt.Errorf("creating conversation: %w", err)
	}

	indexID, err = p.client.CreateIndex(ctx, "docassist:"+docID)
	if err != nil {
		p.destroyRemote(ctx, conversationID, "")
		return "", "", fmt.Errorf("creating retrieval index: %w", err)
	}
	return conversationID, indexID, nil
}

// destroyRemote tears down remote resources best-effort. It runs on a
// detached context so compensation still happens when the caller's
// context is already cancelled.
func (p *Provisioner) destroyRemote(ctx context.Context, conversationID, indexID string) {
	ctx = context.WithoutCancel(ctx)
	if indexID != "" {
		if err := p.client.DeleteIndex(ctx, indexID); err != nil && !assist.IsNotFound(err) {
			p.logger.Warn("compensating index delete failed", "index_id", indexID, "error", err)
		}
	}
	if conversationID != "" {
		if err := p.client.DeleteConversation(ctx, conversationID); err != nil && !assist.IsNotFound(err) {
			p.logger.Warn("compensating conversation delete failed", "conversation_id", conversationID, "error", err)
		}
	}
}

// reconcile updates the stored instructions and model when the caller
// supplies instructions that differ. Failures only log; the session is
// still usable.
func (p *Provisioner) reconcile(ctx context.Context, sess *store.Session, instructions string) *store.Session {
	if instructions == "" || (sess.Instructions == instructions && sess.Model == p.model) {
		return sess
	}
	if err := p.store.UpdateSessionInstructions(ctx, sess.DocID, instructions, p.model); err != nil {
		p.logger.Warn("instruction reconcile failed", "doc_id", sess.DocID, "error", err)
		return sess
	}
	sess.Instructions = instructions
	sess.Model = p.model
	return sess
}
