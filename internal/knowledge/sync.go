package knowledge

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/docassist/docassist/internal/chunk"
	"github.com/docassist/docassist/internal/store"
)

// summaryMaxOutputTokens caps the rolling summary generation call.
const summaryMaxOutputTokens = 600

// SyncDoc synchronizes the main document body into the session's index.
func (s *Synchronizer) SyncDoc(ctx context.Context, sess *store.Session, title, text string, opts SyncOptions) (*SyncResult, error) {
	norm := chunk.Normalize(text)
	if norm == "" {
		return nil, ErrEmptyContent
	}
	return s.syncSource(ctx, sess, sourceSpec{
		kind:   store.KindDoc,
		sha256: hashText(norm),
		title:  title,
		text:   norm,
	}, opts)
}

// SyncTab synchronizes one side tab.
func (s *Synchronizer) SyncTab(ctx context.Context, sess *store.Session, tabID, title, text string, opts SyncOptions) (*SyncResult, error) {
	if tabID == "" {
		return nil, fmt.Errorf("tab ID is required")
	}
	norm := chunk.Normalize(text)
	if norm == "" {
		return nil, ErrEmptyContent
	}
	return s.syncSource(ctx, sess, sourceSpec{
		kind:     store.KindTab,
		sourceID: tabID,
		sha256:   tabDigest(tabID, norm),
		title:    title,
		text:     norm,
	}, opts)
}

// sourceSpec is the shared shape of a chunkable source.
type sourceSpec struct {
	kind     string
	sourceID string
	sha256   string
	title    string
	text     string
}

func (s *Synchronizer) syncSource(ctx context.Context, sess *store.Session, src sourceSpec, opts SyncOptions) (*SyncResult, error) {
	result := &SyncResult{DocID: sess.DocID, Kind: src.kind, SHA256: src.sha256}

	if opts.ReplaceKnowledge {
		retired, err := s.replaceAll(ctx, sess)
		if err != nil {
			return nil, err
		}
		result.Retired = retired
	} else {
		// Unchanged content short-circuits before any remote work.
		existing, err := s.store.FindUnit(ctx, sess.DocID, src.kind, src.sha256)
		if err != nil && !errors.Is(err, store.ErrNotFound) {
			return nil, err
		}
		if existing != nil {
			result.Reused = true
			result.FileID = existing.FileID
			result.FileIndexID = existing.FileIndexID
			if touchErr := s.store.TouchSession(ctx, sess.DocID); touchErr != nil {
				s.logger.Debug("session touch failed", "doc_id", sess.DocID, "error", touchErr)
			}
			return result, nil
		}
	}

	pieces := s.split(src.text)
	if len(pieces) == 0 {
		return nil, ErrNoChunks
	}

	chunkKind, hasChunks := store.ChunkKindFor(src.kind)
	slug := slugify(sess.DocID)
	if src.sourceID != "" {
		slug = slug + "-" + slugify(src.sourceID)
	}

	// A fresh per-source index backs file-scoped chat over just this
	// version of the source.
	var fileIndexID string
	if opts.FileScope {
		name := fmt.Sprintf("docassist-%s-%s-%s", slug, src.kind, src.sha256[:12])
		id, err := s.client.CreateIndex(ctx, name)
		if err != nil {
			return result, fmt.Errorf("creating file-scoped index: %w", err)
		}
		fileIndexID = id
		result.FileIndexID = id
	}

	var firstFileID, firstIndexFileID, firstScopeFileID string
	for i, piece := range pieces {
		filename := fmt.Sprintf("%s-%s-%03d.txt", slug, src.kind, i)
		pieceSHA := hashText(piece.Text)

		// Chunks left behind by an interrupted sync of the same content
		// keep their document-index handles instead of re-uploading.
		var fileID, indexFileID string
		if hasChunks && !opts.ReplaceKnowledge {
			prev, err := s.store.FindUnit(ctx, sess.DocID, chunkKind, pieceSHA)
			if err != nil && !errors.Is(err, store.ErrNotFound) {
				return result, err
			}
			if prev != nil {
				fileID, indexFileID = prev.FileID, prev.IndexFileID
			}
		}

		if fileID == "" {
			attrs := map[string]string{
				"doc_id": sess.DocID,
				"kind":   chunkKind,
				"parent": src.sha256,
			}
			uploaded, err := s.client.UploadIndexFile(ctx, sess.IndexID, filename, []byte(piece.Text), attrs)
			if err != nil {
				// Chunks already uploaded stay recorded; the next sync of
				// the same content reuses their handles.
				return result, fmt.Errorf("uploading chunk %d: %w", i, err)
			}
			fileID, indexFileID = uploaded.FileID, uploaded.IndexFileID
			result.Uploaded++
		}

		// The file-scoped index is new, so every chunk goes up again even
		// when its document-index handle was reused.
		var scopeFileID string
		if fileIndexID != "" {
			scoped, err := s.client.UploadIndexFile(ctx, fileIndexID, filename, []byte(piece.Text), map[string]string{
				"doc_id": sess.DocID,
				"kind":   chunkKind,
				"parent": src.sha256,
			})
			if err != nil {
				return result, fmt.Errorf("uploading chunk %d to file-scoped index: %w", i, err)
			}
			scopeFileID = scoped.IndexFileID
		}

		if i == 0 {
			firstFileID, firstIndexFileID, firstScopeFileID = fileID, indexFileID, scopeFileID
		}

		if !hasChunks {
			continue
		}
		chunkUnit := &store.Unit{
			DocID:           sess.DocID,
			Kind:            chunkKind,
			SHA256:          pieceSHA,
			SourceID:        src.sourceID,
			FileID:          fileID,
			IndexFileID:     indexFileID,
			FileIndexID:     fileIndexID,
			FileIndexFileID: scopeFileID,
			ParentSHA256:    src.sha256,
			ChunkIndex:      i,
			Title:           piece.SectionPath,
			Bytes:           int64(len(piece.Text)),
		}
		if err := s.store.UpsertUnit(ctx, chunkUnit); err != nil {
			return result, err
		}
	}

	parent := &store.Unit{
		DocID:           sess.DocID,
		Kind:            src.kind,
		SHA256:          src.sha256,
		SourceID:        src.sourceID,
		FileID:          firstFileID,
		IndexFileID:     firstIndexFileID,
		FileIndexID:     fileIndexID,
		FileIndexFileID: firstScopeFileID,
		ChunkIndex:      -1,
		Title:           src.title,
		Bytes:           int64(len(src.text)),
	}
	if err := s.store.UpsertUnit(ctx, parent); err != nil {
		return result, err
	}
	result.FileID = firstFileID

	result.Summary = s.summarize(ctx, sess, src.kind, src.title, src.text)

	s.logger.Info("source synchronized",
		"doc_id", sess.DocID, "kind", src.kind, "sha256", src.sha256,
		"uploaded", result.Uploaded, "retired", result.Retired.Deleted,
		"file_scoped", fileIndexID != "")
	return result, nil
}

// replaceAll retires everything previously synchronized for the document.
// Remote deletion runs first; only rows whose handles were actually
// removed get dropped, so a failed remote deletion stays visible and can
// be retried by a later replace.
func (s *Synchronizer) replaceAll(ctx context.Context, sess *store.Session) (CleanupResult, error) {
	units, err := s.store.ListUnits(ctx, sess.DocID)
	if err != nil {
		return CleanupResult{}, err
	}
	if len(units) == 0 {
		return CleanupResult{}, nil
	}
	result := s.retire(ctx, sess.IndexID, units)
	if _, err := s.store.DeleteUnitsByFileIDs(ctx, sess.DocID, result.DeletedIDs); err != nil {
		return result, err
	}
	return result, nil
}

// split cuts text into uploadable pieces. With chunking disabled the
// whole text goes up as one file.
func (s *Synchronizer) split(text string) []chunk.Chunk {
	if !s.opts.ChunkingEnabled {
		return []chunk.Chunk{{Text: text}}
	}
	return chunk.Build(text, chunk.Options{
		MaxTokens:     s.opts.ChunkMaxTokens,
		OverlapTokens: s.opts.ChunkOverlapTokens,
	})
}

// UploadFile indexes an uploaded attachment whole, without chunking.
// Duplicate content for the same document is a no-op unless replacing.
func (s *Synchronizer) UploadFile(ctx context.Context, sess *store.Session, filename string, content []byte, opts SyncOptions) (*SyncResult, error) {
	if len(content) == 0 {
		return nil, ErrEmptyContent
	}
	sum := hashBytes(content)
	result := &SyncResult{DocID: sess.DocID, Kind: store.KindUpload, SHA256: sum}

	if opts.ReplaceKnowledge {
		retired, err := s.replaceAll(ctx, sess)
		if err != nil {
			return nil, err
		}
		result.Retired = retired
	} else {
		existing, err := s.store.FindUnit(ctx, sess.DocID, store.KindUpload, sum)
		if err != nil && !errors.Is(err, store.ErrNotFound) {
			return nil, err
		}
		if existing != nil {
			result.Reused = true
			result.FileID = existing.FileID
			result.FileIndexID = existing.FileIndexID
			return result, nil
		}
	}

	safeName := slugify(filename)
	attrs := map[string]string{
		"doc_id": sess.DocID,
		"kind":   store.KindUpload,
	}

	var fileIndexID, scopeFileID string
	if opts.FileScope {
		name := fmt.Sprintf("docassist-%s-upload-%s", slugify(sess.DocID), sum[:12])
		id, err := s.client.CreateIndex(ctx, name)
		if err != nil {
			return result, fmt.Errorf("creating file-scoped index: %w", err)
		}
		fileIndexID = id
		result.FileIndexID = id
	}

	uploaded, err := s.client.UploadIndexFile(ctx, sess.IndexID, safeName, content, attrs)
	if err != nil {
		return result, fmt.Errorf("uploading file: %w", err)
	}
	result.Uploaded = 1

	if fileIndexID != "" {
		scoped, err := s.client.UploadIndexFile(ctx, fileIndexID, safeName, content, attrs)
		if err != nil {
			return result, fmt.Errorf("uploading file to file-scoped index: %w", err)
		}
		scopeFileID = scoped.IndexFileID
	}

	unit := &store.Unit{
		DocID:           sess.DocID,
		Kind:            store.KindUpload,
		SHA256:          sum,
		FileID:          uploaded.FileID,
		IndexFileID:     uploaded.IndexFileID,
		FileIndexID:     fileIndexID,
		FileIndexFileID: scopeFileID,
		ChunkIndex:      -1,
		Filename:        filename,
		Bytes:           int64(len(content)),
	}
	if err := s.store.UpsertUnit(ctx, unit); err != nil {
		return result, err
	}
	result.FileID = uploaded.FileID
	return result, nil
}

// summarize folds newly synchronized content into the session's rolling
// summary and persists it on the session row. Best-effort; failures only
// log and leave the previous summary in place.
func (s *Synchronizer) summarize(ctx context.Context, sess *store.Session, kind, title, text string) string {
	if !s.opts.SummaryEnabled {
		return ""
	}

	clipped := text
	if max := s.opts.SummaryInputMaxChars; max > 0 && len(clipped) > max {
		clipped = clipped[:max]
	}

	label := kind
	if title != "" {
		label += ": " + title
	}
	var input string
	if prev := strings.TrimSpace(sess.Summary); prev != "" {
		input = "Previous summary:\n" + prev + "\n\nNew content (" + label + "):\n" + clipped
	} else {
		input = "Content (" + label + "):\n" + clipped
	}

	instructions := fmt.Sprintf("You summarize project content for future Q&A. "+
		"Return a concise summary (max %d chars) covering goals, key facts, "+
		"decisions, and open questions. Use short paragraphs or bullets.",
		s.opts.SummaryMaxChars)

	summary, err := s.client.Complete(ctx, s.opts.Model, instructions, input, summaryMaxOutputTokens)
	if err != nil {
		s.logger.Warn("summary generation failed", "doc_id", sess.DocID, "error", err)
		return ""
	}
	summary = strings.TrimSpace(summary)
	if max := s.opts.SummaryMaxChars; max > 0 && len(summary) > max {
		summary = summary[:max]
	}
	if summary == "" {
		return ""
	}

	if err := s.store.UpdateSessionSummary(ctx, sess.DocID, summary); err != nil {
		s.logger.Warn("summary persistence failed", "doc_id", sess.DocID, "error", err)
		return ""
	}
	// Keep the in-memory session current so consecutive syncs in one
	// request chain their summaries.
	sess.Summary = summary
	return summary
}
