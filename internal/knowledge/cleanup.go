package knowledge

import (
	"context"
	"errors"

	"github.com/docassist/docassist/internal/assist"
	"github.com/docassist/docassist/internal/store"
)

// retire deletes the remote artifacts behind units, best-effort. Parent
// rows share their first chunk's file handle, so handles are deduplicated
// before deletion. Missing remote resources count as deleted. DeletedIDs
// carries the file handles that are actually gone; callers use it to
// decide which rows may be dropped.
func (s *Synchronizer) retire(ctx context.Context, indexID string, units []store.Unit) CleanupResult {
	var result CleanupResult

	seen := make(map[string]bool)
	for _, u := range units {
		if u.FileID == "" || seen[u.FileID] {
			continue
		}
		seen[u.FileID] = true
		result.Attempted++

		ok := true
		if indexID != "" {
			if err := s.client.DeleteIndexFile(ctx, indexID, u.FileID); err != nil && !assist.IsNotFound(err) {
				s.logger.Warn("index file retirement failed",
					"doc_id", u.DocID, "file_id", u.FileID, "error", err)
				ok = false
			}
		}
		if err := s.client.DeleteFile(ctx, u.FileID); err != nil && !assist.IsNotFound(err) {
			s.logger.Warn("file retirement failed",
				"doc_id", u.DocID, "file_id", u.FileID, "error", err)
			ok = false
		}

		if ok {
			result.Deleted++
			result.DeletedIDs = append(result.DeletedIDs, u.FileID)
		} else {
			result.Failed++
		}
	}

	// File-scoped indexes go away wholesale, files included.
	seenIndexes := make(map[string]bool)
	for _, u := range units {
		if u.FileIndexID == "" || seenIndexes[u.FileIndexID] {
			continue
		}
		seenIndexes[u.FileIndexID] = true
		result.Attempted++
		if err := s.client.DeleteIndex(ctx, u.FileIndexID); err != nil && !assist.IsNotFound(err) {
			s.logger.Warn("file-scoped index retirement failed",
				"doc_id", u.DocID, "file_index_id", u.FileIndexID, "error", err)
			result.Failed++
			continue
		}
		result.Deleted++
		result.DeletedIDs = append(result.DeletedIDs, u.FileIndexID)
	}

	return result
}

// ListFiles returns the whole-source units synchronized for a document.
func (s *Synchronizer) ListFiles(ctx context.Context, docID string) ([]store.Unit, error) {
	return s.store.ListParents(ctx, docID)
}

// Reset drops all synchronized knowledge and chat history for a document
// while keeping its session alive. Remote files are retired only when
// configured; otherwise they age out with the index.
func (s *Synchronizer) Reset(ctx context.Context, docID string) (CleanupResult, error) {
	var result CleanupResult
	if s.opts.ResetCleanupRemote {
		units, err := s.store.ListUnits(ctx, docID)
		if err != nil {
			return CleanupResult{}, err
		}
		indexID := ""
		if sess, sessErr := s.store.GetSession(ctx, docID); sessErr == nil {
			indexID = sess.IndexID
		}
		result = s.retire(ctx, indexID, units)
	}

	dropped, err := s.store.DeleteAllUnits(ctx, docID)
	if err != nil {
		return result, err
	}
	if err := s.store.ClearHistory(ctx, docID); err != nil {
		return result, err
	}
	s.logger.Info("document reset", "doc_id", docID, "units", dropped)
	return result, nil
}

// Cleanup tears a document down completely: remote files, file-scoped
// indexes, the retrieval index, conversation, session row, and history.
// Remote deletions are best-effort and missing resources count as
// already gone.
//
// The bool result reports whether a session existed.
func (s *Synchronizer) Cleanup(ctx context.Context, docID string) (CleanupResult, bool, error) {
	sess, err := s.store.GetSession(ctx, docID)
	found := err == nil
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return CleanupResult{}, false, err
	}

	units, err := s.store.ListUnits(ctx, docID)
	if err != nil {
		return CleanupResult{}, found, err
	}

	indexID := ""
	if found {
		indexID = sess.IndexID
	}
	result := s.retire(ctx, indexID, units)

	if _, err := s.store.DeleteAllUnits(ctx, docID); err != nil {
		return result, found, err
	}

	if found {
		if indexID != "" {
			result.Attempted++
			if err := s.client.DeleteIndex(ctx, indexID); err != nil && !assist.IsNotFound(err) {
				s.logger.Warn("index deletion failed", "doc_id", docID, "index_id", indexID, "error", err)
				result.Failed++
			} else {
				result.Deleted++
				result.DeletedIDs = append(result.DeletedIDs, indexID)
			}
		}
		if sess.ConversationID != "" {
			result.Attempted++
			if err := s.client.DeleteConversation(ctx, sess.ConversationID); err != nil && !assist.IsNotFound(err) {
				s.logger.Warn("conversation deletion failed",
					"doc_id", docID, "conversation_id", sess.ConversationID, "error", err)
				result.Failed++
			} else {
				result.Deleted++
				result.DeletedIDs = append(result.DeletedIDs, sess.ConversationID)
			}
		}
		if err := s.store.DeleteSession(ctx, docID); err != nil {
			return result, found, err
		}
	}

	if err := s.store.ClearHistory(ctx, docID); err != nil {
		return result, found, err
	}
	s.logger.Info("document cleaned up", "doc_id", docID, "found", found,
		"deleted", result.Deleted, "failed", result.Failed)
	return result, found, nil
}
