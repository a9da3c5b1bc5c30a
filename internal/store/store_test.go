package store

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

type stubQuerier struct{}

func (stubQuerier) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	return pgconn.CommandTag{}, nil
}
func (stubQuerier) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	return nil, errors.New("not implemented")
}
func (stubQuerier) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	return nil
}

func TestNewRequiresPool(t *testing.T) {
	if _, err := New(nil, nil); err == nil {
		t.Fatal("New(nil) error = nil, want error")
	}
}

func TestBeginWithoutPool(t *testing.T) {
	s := newWithQuerier(stubQuerier{}, nil)
	if _, err := s.Begin(context.Background()); !errors.Is(err, ErrNoTransactions) {
		t.Fatalf("Begin() error = %v, want ErrNoTransactions", err)
	}
}

func TestChunkKindFor(t *testing.T) {
	tests := []struct {
		kind     string
		want     string
		hasChunk bool
	}{
		{KindDoc, KindDocChunk, true},
		{KindTab, KindTabChunk, true},
		{KindUpload, "", false},
		{KindDocChunk, "", false},
	}
	for _, tt := range tests {
		got, ok := ChunkKindFor(tt.kind)
		if got != tt.want || ok != tt.hasChunk {
			t.Errorf("ChunkKindFor(%q) = %q, %v; want %q, %v", tt.kind, got, ok, tt.want, tt.hasChunk)
		}
	}
}
