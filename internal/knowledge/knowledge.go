// Package knowledge synchronizes document content into the per-document
// retrieval index.
//
// Content is addressed by SHA-256: re-synchronizing unchanged content is
// a metadata no-op, changed content retires the previous generation's
// remote files best-effort and uploads the new chunks.
package knowledge

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/docassist/docassist/internal/assist"
	"github.com/docassist/docassist/internal/log"
	"github.com/docassist/docassist/internal/store"
)

var (
	// ErrEmptyContent reports that the content was empty after
	// normalization.
	ErrEmptyContent = errors.New("knowledge: empty content")

	// ErrNoChunks reports that chunking produced nothing to upload.
	ErrNoChunks = errors.New("knowledge: no chunks produced")
)

// Options tunes synchronization behavior.
type Options struct {
	// ChunkingEnabled splits content into section-aware chunks before
	// upload. Disabled, each source is indexed as a single file.
	ChunkingEnabled    bool
	ChunkMaxTokens     int
	ChunkOverlapTokens int

	// SummaryEnabled maintains a rolling summary of synchronized content
	// on the session. Each sync folds the new content into the previous
	// summary, best-effort.
	SummaryEnabled       bool
	SummaryMaxChars      int
	SummaryInputMaxChars int
	Model                string

	// ResetCleanupRemote also retires remote files on Reset, not just
	// local rows.
	ResetCleanupRemote bool
}

// SyncOptions are the per-call synchronization switches.
type SyncOptions struct {
	// ReplaceKnowledge retires everything previously synchronized for the
	// document before indexing, instead of deduplicating against it.
	ReplaceKnowledge bool

	// FileScope additionally indexes the source into its own per-source
	// retrieval index so chat can be narrowed to just this source.
	FileScope bool
}

// CleanupResult reports a best-effort remote retirement pass.
type CleanupResult struct {
	Attempted  int      `json:"attempted"`
	Deleted    int      `json:"deleted"`
	Failed     int      `json:"failed"`
	DeletedIDs []string `json:"deletedIds"`
}

// SyncResult reports one synchronization call. FileID is the
// representative remote handle of the synchronized source, its first
// chunk's file in the document index.
type SyncResult struct {
	DocID       string        `json:"docId"`
	Kind        string        `json:"kind"`
	SHA256      string        `json:"sha256"`
	FileID      string        `json:"fileId,omitempty"`
	FileIndexID string        `json:"fileIndexId,omitempty"`
	Reused      bool          `json:"reused"`
	Uploaded    int           `json:"uploaded"`
	Retired     CleanupResult `json:"retired"`
	Summary     string        `json:"summary,omitempty"`
}

// Synchronizer pushes content into retrieval indexes and retires stale
// generations.
type Synchronizer struct {
	store  *store.Store
	client assist.Client
	opts   Options
	logger log.Logger
}

// NewSynchronizer creates a Synchronizer.
func NewSynchronizer(st *store.Store, client assist.Client, opts Options, logger log.Logger) (*Synchronizer, error) {
	if st == nil {
		return nil, fmt.Errorf("store is required")
	}
	if client == nil {
		return nil, fmt.Errorf("client is required")
	}
	if logger == nil {
		logger = log.NewNop()
	}
	return &Synchronizer{store: st, client: client, opts: opts, logger: logger}, nil
}

// hashText returns the hex SHA-256 of text.
func hashText(text string) string {
	return hashBytes([]byte(text))
}

func hashBytes(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

// tabDigest derives the content hash of a tab. The tab ID participates so
// identical text in different tabs stays distinct.
func tabDigest(tabID, text string) string {
	return hashText(tabID + "\n\n" + text)
}
