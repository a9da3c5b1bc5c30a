package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
)

// Knowledge unit kinds. Chunk kinds carry the parent's hash in
// ParentSHA256 and their position in ChunkIndex.
const (
	KindDoc      = "doc"
	KindDocChunk = "doc_chunk"
	KindTab      = "tab"
	KindTabChunk = "tab_chunk"
	KindUpload   = "upload"
)

// ParentKinds are the kinds that represent whole synchronized sources,
// as opposed to their chunk children.
var ParentKinds = []string{KindDoc, KindTab, KindUpload}

// ChunkKindFor maps a parent kind to the kind of its chunk children.
// Uploads are indexed whole and have no chunk kind.
func ChunkKindFor(kind string) (string, bool) {
	switch kind {
	case KindDoc:
		return KindDocChunk, true
	case KindTab:
		return KindTabChunk, true
	default:
		return "", false
	}
}

// Unit is one row of synchronized knowledge, addressed by content hash
// within its (doc, kind) scope.
type Unit struct {
	ID     int64
	DocID  string
	Kind   string
	SHA256 string
	// SourceID ties tab units to their originating tab so a new version
	// of the same tab can retire the old one.
	SourceID    string
	FileID      string
	IndexFileID string
	// FileIndexID names the per-source retrieval index used for
	// file-scoped chat; FileIndexFileID is this unit's file inside it.
	// Both are empty when file scope was disabled at sync time.
	FileIndexID     string
	FileIndexFileID string
	ParentSHA256    string
	// ChunkIndex is -1 for parent units.
	ChunkIndex int
	Title      string
	Filename   string
	Bytes      int64
	CreatedAt  time.Time
}

const unitCols = `id, doc_id, kind, sha256, COALESCE(source_id, ''), COALESCE(file_id, ''),
	COALESCE(index_file_id, ''), COALESCE(file_index_id, ''),
	COALESCE(file_index_file_id, ''), COALESCE(parent_sha256, ''),
	COALESCE(chunk_index, -1), COALESCE(title, ''), COALESCE(filename, ''),
	COALESCE(bytes, 0), created_at`

func scanUnit(row pgx.Row, u *Unit) error {
	return row.Scan(&u.ID, &u.DocID, &u.Kind, &u.SHA256, &u.SourceID,
		&u.FileID, &u.IndexFileID, &u.FileIndexID, &u.FileIndexFileID,
		&u.ParentSHA256, &u.ChunkIndex, &u.Title, &u.Filename, &u.Bytes,
		&u.CreatedAt)
}

func scanUnits(rows pgx.Rows) ([]Unit, error) {
	defer rows.Close()
	var units []Unit
	for rows.Next() {
		var u Unit
		if err := scanUnit(rows, &u); err != nil {
			return nil, fmt.Errorf("scanning unit: %w", err)
		}
		units = append(units, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating units: %w", err)
	}
	return units, nil
}

// FindUnit looks up a unit by content hash within its (doc, kind) scope.
// Returns ErrNotFound when no matching content has been synchronized.
func (s *Store) FindUnit(ctx context.Context, docID, kind, sha256 string) (*Unit, error) {
	row := s.db.QueryRow(ctx,
		`SELECT `+unitCols+` FROM docs_files
		 WHERE doc_id = $1 AND kind = $2 AND sha256 = $3`,
		docID, kind, sha256)

	var u Unit
	err := scanUnit(row, &u)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("finding unit %s/%s: %w", docID, kind, err)
	}
	return &u, nil
}

// FindUnitByFileID resolves a remote file handle back to its unit.
func (s *Store) FindUnitByFileID(ctx context.Context, docID, fileID string) (*Unit, error) {
	row := s.db.QueryRow(ctx,
		`SELECT `+unitCols+` FROM docs_files
		 WHERE doc_id = $1 AND file_id = $2
		 ORDER BY id LIMIT 1`,
		docID, fileID)

	var u Unit
	err := scanUnit(row, &u)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("finding unit by file %s/%s: %w", docID, fileID, err)
	}
	return &u, nil
}

// UpsertUnit records a unit, refreshing the remote handles when the same
// content hash is recorded again. Idempotent under the unique
// (doc_id, kind, sha256) constraint.
func (s *Store) UpsertUnit(ctx context.Context, u *Unit) error {
	_, err := s.db.Exec(ctx,
		`INSERT INTO docs_files
		   (doc_id, kind, sha256, source_id, file_id, index_file_id,
		    file_index_id, file_index_file_id, parent_sha256, chunk_index,
		    title, filename, bytes)
		 VALUES ($1, $2, $3, NULLIF($4, ''), NULLIF($5, ''), NULLIF($6, ''),
		         NULLIF($7, ''), NULLIF($8, ''), NULLIF($9, ''), NULLIF($10, -1),
		         NULLIF($11, ''), NULLIF($12, ''), NULLIF($13, 0::bigint))
		 ON CONFLICT (doc_id, kind, sha256) DO UPDATE SET
		   source_id = EXCLUDED.source_id,
		   file_id = EXCLUDED.file_id,
		   index_file_id = EXCLUDED.index_file_id,
		   file_index_id = EXCLUDED.file_index_id,
		   file_index_file_id = EXCLUDED.file_index_file_id,
		   parent_sha256 = EXCLUDED.parent_sha256,
		   chunk_index = EXCLUDED.chunk_index,
		   title = EXCLUDED.title,
		   filename = EXCLUDED.filename,
		   bytes = EXCLUDED.bytes`,
		u.DocID, u.Kind, u.SHA256, u.SourceID, u.FileID, u.IndexFileID,
		u.FileIndexID, u.FileIndexFileID, u.ParentSHA256, u.ChunkIndex,
		u.Title, u.Filename, u.Bytes)
	if err != nil {
		return fmt.Errorf("upserting unit %s/%s: %w", u.DocID, u.Kind, err)
	}
	return nil
}

// ListParents returns the whole-source units of a document, oldest first.
func (s *Store) ListParents(ctx context.Context, docID string) ([]Unit, error) {
	rows, err := s.db.Query(ctx,
		`SELECT `+unitCols+` FROM docs_files
		 WHERE doc_id = $1 AND kind = ANY($2)
		 ORDER BY id`,
		docID, ParentKinds)
	if err != nil {
		return nil, fmt.Errorf("listing parents for %q: %w", docID, err)
	}
	return scanUnits(rows)
}

// ListUnits returns every unit of a document, chunks included.
func (s *Store) ListUnits(ctx context.Context, docID string) ([]Unit, error) {
	rows, err := s.db.Query(ctx,
		`SELECT `+unitCols+` FROM docs_files WHERE doc_id = $1 ORDER BY id`,
		docID)
	if err != nil {
		return nil, fmt.Errorf("listing units for %q: %w", docID, err)
	}
	return scanUnits(rows)
}

// ListChildren returns the chunk units belonging to a parent hash,
// ordered by chunk index.
func (s *Store) ListChildren(ctx context.Context, docID, parentSHA256 string) ([]Unit, error) {
	rows, err := s.db.Query(ctx,
		`SELECT `+unitCols+` FROM docs_files
		 WHERE doc_id = $1 AND parent_sha256 = $2
		 ORDER BY chunk_index`,
		docID, parentSHA256)
	if err != nil {
		return nil, fmt.Errorf("listing children for %q: %w", docID, err)
	}
	return scanUnits(rows)
}

// DeleteUnitsByFileIDs removes the rows whose remote file handle is in
// fileIDs. Retirement calls this with the handles it actually deleted
// remotely, so rows behind failed deletions survive for a later retry.
func (s *Store) DeleteUnitsByFileIDs(ctx context.Context, docID string, fileIDs []string) (int64, error) {
	if len(fileIDs) == 0 {
		return 0, nil
	}
	tag, err := s.db.Exec(ctx,
		`DELETE FROM docs_files WHERE doc_id = $1 AND file_id = ANY($2)`,
		docID, fileIDs)
	if err != nil {
		return 0, fmt.Errorf("deleting units by file for %q: %w", docID, err)
	}
	return tag.RowsAffected(), nil
}

// DeleteAllUnits removes every unit of a document and returns the number
// of deleted rows.
func (s *Store) DeleteAllUnits(ctx context.Context, docID string) (int64, error) {
	tag, err := s.db.Exec(ctx,
		`DELETE FROM docs_files WHERE doc_id = $1`, docID)
	if err != nil {
		return 0, fmt.Errorf("deleting units for %q: %w", docID, err)
	}
	return tag.RowsAffected(), nil
}
