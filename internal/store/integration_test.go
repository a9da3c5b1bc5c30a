//go:build integration

package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/docassist/docassist/internal/testutil"
)

func setupStore(t *testing.T) *Store {
	t.Helper()
	db, cleanup := testutil.SetupTestDB(t)
	t.Cleanup(cleanup)

	s, err := New(db.Pool, testutil.DiscardLogger())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return s
}

func TestSessionLifecycle(t *testing.T) {
	s := setupStore(t)
	ctx := context.Background()

	if _, err := s.GetSession(ctx, "doc-1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("GetSession() error = %v, want ErrNotFound", err)
	}

	sess := &Session{
		DocID:          "doc-1",
		ConversationID: "conv_1",
		IndexID:        "vs_1",
		Model:          "m1",
		Instructions:   "be brief",
	}
	if err := s.InsertSession(ctx, sess); err != nil {
		t.Fatalf("InsertSession() error = %v", err)
	}

	got, err := s.GetSession(ctx, "doc-1")
	if err != nil {
		t.Fatalf("GetSession() error = %v", err)
	}
	if got.ConversationID != "conv_1" || got.IndexID != "vs_1" || got.Instructions != "be brief" {
		t.Errorf("session = %+v", got)
	}

	// Duplicate insert must fail on the primary key.
	if err := s.InsertSession(ctx, sess); err == nil {
		t.Error("duplicate InsertSession() succeeded, want constraint violation")
	}

	if err := s.UpdateSessionInstructions(ctx, "doc-1", "be thorough", "m2"); err != nil {
		t.Fatalf("UpdateSessionInstructions() error = %v", err)
	}
	got, err = s.GetSession(ctx, "doc-1")
	if err != nil {
		t.Fatalf("GetSession() error = %v", err)
	}
	if got.Instructions != "be thorough" || got.Model != "m2" {
		t.Errorf("after update: %+v", got)
	}

	if err := s.UpdateSessionInstructions(ctx, "doc-missing", "x", "y"); !errors.Is(err, ErrNotFound) {
		t.Errorf("UpdateSessionInstructions(missing) error = %v, want ErrNotFound", err)
	}

	if err := s.UpdateSessionSummary(ctx, "doc-1", "covers delivery and pricing"); err != nil {
		t.Fatalf("UpdateSessionSummary() error = %v", err)
	}
	got, err = s.GetSession(ctx, "doc-1")
	if err != nil {
		t.Fatalf("GetSession() error = %v", err)
	}
	if got.Summary != "covers delivery and pricing" {
		t.Errorf("Summary = %q", got.Summary)
	}
	if got.SummaryUpdatedAt.IsZero() || got.SummaryUpdatedAt.Unix() == 0 {
		t.Errorf("SummaryUpdatedAt = %v, want set", got.SummaryUpdatedAt)
	}
	if err := s.UpdateSessionSummary(ctx, "doc-missing", "x"); !errors.Is(err, ErrNotFound) {
		t.Errorf("UpdateSessionSummary(missing) error = %v, want ErrNotFound", err)
	}

	if err := s.DeleteSession(ctx, "doc-1"); err != nil {
		t.Fatalf("DeleteSession() error = %v", err)
	}
	if _, err := s.GetSession(ctx, "doc-1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetSession() after delete error = %v, want ErrNotFound", err)
	}
}

func TestUnitDedupAndListing(t *testing.T) {
	s := setupStore(t)
	ctx := context.Background()

	parent := &Unit{
		DocID:      "doc-1",
		Kind:       KindDoc,
		SHA256:     "aaa",
		FileID:     "file_1",
		ChunkIndex: -1,
		Title:      "Guide",
	}
	if err := s.UpsertUnit(ctx, parent); err != nil {
		t.Fatalf("UpsertUnit() error = %v", err)
	}
	for i, sha := range []string{"c1", "c2"} {
		chunk := &Unit{
			DocID:        "doc-1",
			Kind:         KindDocChunk,
			SHA256:       sha,
			FileID:       "file_c" + sha,
			ParentSHA256: "aaa",
			ChunkIndex:   i,
		}
		if err := s.UpsertUnit(ctx, chunk); err != nil {
			t.Fatalf("UpsertUnit(chunk) error = %v", err)
		}
	}

	// Same hash again refreshes handles instead of duplicating the row.
	parent.FileID = "file_1b"
	if err := s.UpsertUnit(ctx, parent); err != nil {
		t.Fatalf("UpsertUnit(again) error = %v", err)
	}

	found, err := s.FindUnit(ctx, "doc-1", KindDoc, "aaa")
	if err != nil {
		t.Fatalf("FindUnit() error = %v", err)
	}
	if found.FileID != "file_1b" {
		t.Errorf("FileID = %q, want refreshed handle", found.FileID)
	}

	parents, err := s.ListParents(ctx, "doc-1")
	if err != nil {
		t.Fatalf("ListParents() error = %v", err)
	}
	if len(parents) != 1 || parents[0].Kind != KindDoc {
		t.Errorf("parents = %+v", parents)
	}

	children, err := s.ListChildren(ctx, "doc-1", "aaa")
	if err != nil {
		t.Fatalf("ListChildren() error = %v", err)
	}
	if len(children) != 2 || children[0].ChunkIndex != 0 || children[1].ChunkIndex != 1 {
		t.Errorf("children = %+v", children)
	}

	all, err := s.ListUnits(ctx, "doc-1")
	if err != nil {
		t.Fatalf("ListUnits() error = %v", err)
	}
	if len(all) != 3 {
		t.Errorf("len(all) = %d, want 3", len(all))
	}

	// Deleting by handle only removes the named rows; the rest survive.
	n, err := s.DeleteUnitsByFileIDs(ctx, "doc-1", []string{"file_1b", "file_cc1"})
	if err != nil {
		t.Fatalf("DeleteUnitsByFileIDs() error = %v", err)
	}
	if n != 2 {
		t.Errorf("deleted = %d, want 2", n)
	}
	if _, err := s.FindUnit(ctx, "doc-1", KindDoc, "aaa"); !errors.Is(err, ErrNotFound) {
		t.Errorf("FindUnit() after delete error = %v, want ErrNotFound", err)
	}
	if _, err := s.FindUnit(ctx, "doc-1", KindDocChunk, "c2"); err != nil {
		t.Errorf("FindUnit(surviving chunk) error = %v", err)
	}

	remaining, err := s.DeleteAllUnits(ctx, "doc-1")
	if err != nil {
		t.Fatalf("DeleteAllUnits() error = %v", err)
	}
	if remaining != 1 {
		t.Errorf("DeleteAllUnits() = %d, want 1", remaining)
	}
}

func TestUnitFileScopeHandles(t *testing.T) {
	s := setupStore(t)
	ctx := context.Background()

	u := &Unit{
		DocID:           "doc-1",
		Kind:            KindDoc,
		SHA256:          "bbb",
		FileID:          "file_1",
		IndexFileID:     "vsf_1",
		FileIndexID:     "vs_file_1",
		FileIndexFileID: "vsf_file_1",
		ChunkIndex:      -1,
	}
	if err := s.UpsertUnit(ctx, u); err != nil {
		t.Fatalf("UpsertUnit() error = %v", err)
	}

	got, err := s.FindUnit(ctx, "doc-1", KindDoc, "bbb")
	if err != nil {
		t.Fatalf("FindUnit() error = %v", err)
	}
	if got.FileIndexID != "vs_file_1" || got.FileIndexFileID != "vsf_file_1" {
		t.Errorf("file scope handles = %q/%q", got.FileIndexID, got.FileIndexFileID)
	}
}

func TestHistoryAppendAndTrim(t *testing.T) {
	s := setupStore(t)
	ctx := context.Background()

	// maxTurns=2 keeps at most 4 rows; append 3 full turns.
	for i := 0; i < 3; i++ {
		if err := s.AppendMessage(ctx, "doc-1", RoleUser, "q", 2); err != nil {
			t.Fatalf("AppendMessage() error = %v", err)
		}
		if err := s.AppendMessage(ctx, "doc-1", RoleAssistant, "a", 2); err != nil {
			t.Fatalf("AppendMessage() error = %v", err)
		}
	}

	msgs, err := s.History(ctx, "doc-1", 0)
	if err != nil {
		t.Fatalf("History() error = %v", err)
	}
	if len(msgs) != 4 {
		t.Fatalf("len(msgs) = %d, want 4 after trim", len(msgs))
	}
	// Chronological order, oldest rows dropped first.
	if msgs[0].Role != RoleUser || msgs[len(msgs)-1].Role != RoleAssistant {
		t.Errorf("order = %v..%v", msgs[0].Role, msgs[len(msgs)-1].Role)
	}
	for i := 1; i < len(msgs); i++ {
		if msgs[i].ID <= msgs[i-1].ID {
			t.Errorf("history not in id order at %d", i)
		}
	}

	limited, err := s.History(ctx, "doc-1", 2)
	if err != nil {
		t.Fatalf("History(limit) error = %v", err)
	}
	if len(limited) != 2 || limited[1].ID != msgs[len(msgs)-1].ID {
		t.Errorf("limited = %+v", limited)
	}

	if err := s.ClearHistory(ctx, "doc-1"); err != nil {
		t.Fatalf("ClearHistory() error = %v", err)
	}
	msgs, err = s.History(ctx, "doc-1", 0)
	if err != nil {
		t.Fatalf("History() error = %v", err)
	}
	if len(msgs) != 0 {
		t.Errorf("len(msgs) = %d after clear, want 0", len(msgs))
	}
}

func TestAdvisoryLockSerializesWriters(t *testing.T) {
	s := setupStore(t)
	ctx := context.Background()

	tx1, err := s.Begin(ctx)
	if err != nil {
		t.Fatalf("Begin() error = %v", err)
	}
	defer s.Rollback(ctx, tx1)
	if err := s.WithTx(tx1).AcquireDocLock(ctx, "doc-1"); err != nil {
		t.Fatalf("AcquireDocLock() error = %v", err)
	}

	// A second transaction must block until the first finishes.
	acquired := make(chan error, 1)
	go func() {
		tx2, err := s.Begin(ctx)
		if err != nil {
			acquired <- err
			return
		}
		defer s.Rollback(ctx, tx2)
		acquired <- s.WithTx(tx2).AcquireDocLock(ctx, "doc-1")
	}()

	time.Sleep(200 * time.Millisecond)
	select {
	case err := <-acquired:
		t.Fatalf("second lock acquired while first held: %v", err)
	default:
	}

	s.Rollback(ctx, tx1)
	if err := <-acquired; err != nil {
		t.Fatalf("second AcquireDocLock() error = %v", err)
	}
}
