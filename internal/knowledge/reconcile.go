package knowledge

import (
	"context"
	"fmt"

	"github.com/docassist/docassist/internal/store"
)

// ReconcileReport compares the locally recorded units of a document with
// what its remote retrieval index actually holds. Drift accumulates when
// retirements fail half-way or the index is touched out of band.
type ReconcileReport struct {
	DocID   string        `json:"docId"`
	IndexID string        `json:"indexId"`
	Tracked int           `json:"tracked"`
	Remote  int           `json:"remote"`
	Orphans []OrphanFile  `json:"orphans,omitempty"`
	Missing []MissingUnit `json:"missing,omitempty"`
}

// OrphanFile is a file attached to the index with no local record.
type OrphanFile struct {
	FileID   string `json:"fileId"`
	Filename string `json:"filename,omitempty"`
	Bytes    int64  `json:"bytes,omitempty"`
	Status   string `json:"status,omitempty"`
}

// MissingUnit is a locally recorded unit whose file is gone remotely.
type MissingUnit struct {
	Kind   string `json:"kind"`
	SHA256 string `json:"sha256"`
	FileID string `json:"fileId"`
}

// Reconcile reports the drift between the unit rows of a document and
// the files attached to its retrieval index. Read-only: the report says
// what a replace sync or cleanup would repair, it repairs nothing itself.
func (s *Synchronizer) Reconcile(ctx context.Context, sess *store.Session) (*ReconcileReport, error) {
	report := &ReconcileReport{DocID: sess.DocID, IndexID: sess.IndexID}

	units, err := s.store.ListUnits(ctx, sess.DocID)
	if err != nil {
		return nil, err
	}
	report.Tracked = len(units)

	remote, err := s.client.ListIndexFiles(ctx, sess.IndexID)
	if err != nil {
		return nil, fmt.Errorf("listing index files: %w", err)
	}
	report.Remote = len(remote)

	local := make(map[string]bool, len(units))
	for _, u := range units {
		if u.FileID != "" {
			local[u.FileID] = true
		}
	}

	attached := make(map[string]bool, len(remote))
	for _, f := range remote {
		attached[f.FileID] = true
		if local[f.FileID] {
			continue
		}
		orphan := OrphanFile{FileID: f.FileID, Status: f.Status}
		if info, infoErr := s.client.RetrieveFile(ctx, f.FileID); infoErr == nil {
			orphan.Filename = info.Filename
			orphan.Bytes = info.Bytes
		} else {
			s.logger.Debug("orphan file lookup failed",
				"doc_id", sess.DocID, "file_id", f.FileID, "error", infoErr)
		}
		report.Orphans = append(report.Orphans, orphan)
	}

	seen := make(map[string]bool, len(units))
	for _, u := range units {
		if u.FileID == "" || seen[u.FileID] {
			continue
		}
		seen[u.FileID] = true
		if !attached[u.FileID] {
			report.Missing = append(report.Missing, MissingUnit{
				Kind:   u.Kind,
				SHA256: u.SHA256,
				FileID: u.FileID,
			})
		}
	}

	s.logger.Info("index reconciled", "doc_id", sess.DocID,
		"tracked", report.Tracked, "remote", report.Remote,
		"orphans", len(report.Orphans), "missing", len(report.Missing))
	return report, nil
}
