package state

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	apperrors "github.com/Jenola344/EvoNFT/internal/errors"
	"github.com/Jenola344/EvoNFT/internal/evolution"
)

func tempDB(t *testing.T) *Store {
	t.Helper()
	dir := t.TempDir()
	s, err := NewStore(filepath.Join(dir, "test.db"))
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

var t0 = time.Date(2026, 4, 1, 9, 30, 0, 0, time.UTC)

func TestPutAndGet(t *testing.T) {
	s := tempDB(t)
	ctx := context.Background()

	req := evolution.Request{ID: "r1", AssetID: 7, Requester: "alice", StageAtRequest: 2, CreatedAt: t0}
	if err := s.Put(ctx, req); err != nil {
		t.Fatalf("Put: %v", err)
	}
	got, err := s.Get(ctx, "r1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.AssetID != 7 || got.Requester != "alice" || got.StageAtRequest != 2 || got.Fulfilled {
		t.Fatalf("unexpected request %+v", got)
	}
	if !got.CreatedAt.Equal(t0) {
		t.Fatalf("expected created_at %v, got %v", t0, got.CreatedAt)
	}

	if err := s.Put(ctx, req); !apperrors.IsCode(err, apperrors.CodeDuplicateRequest) {
		t.Fatalf("expected DUPLICATE_REQUEST, got %v", err)
	}
	if _, err := s.Get(ctx, "missing"); !apperrors.IsCode(err, apperrors.CodeNotFound) {
		t.Fatalf("expected NOT_FOUND, got %v", err)
	}
}

func TestMarkFulfilledOnce(t *testing.T) {
	s := tempDB(t)
	ctx := context.Background()
	s.Put(ctx, evolution.Request{ID: "r1", AssetID: 1, Requester: "alice", StageAtRequest: 1, CreatedAt: t0})

	if err := s.MarkFulfilled(ctx, "r1", t0.Add(time.Minute)); err != nil {
		t.Fatalf("MarkFulfilled: %v", err)
	}
	if err := s.MarkFulfilled(ctx, "r1", t0.Add(2*time.Minute)); !apperrors.IsCode(err, apperrors.CodeAlreadyFulfilled) {
		t.Fatalf("expected ALREADY_FULFILLED, got %v", err)
	}
	if err := s.MarkFulfilled(ctx, "nope", t0); !apperrors.IsCode(err, apperrors.CodeNotFound) {
		t.Fatalf("expected NOT_FOUND, got %v", err)
	}

	got, _ := s.Get(ctx, "r1")
	if !got.Fulfilled || !got.FulfilledAt.Equal(t0.Add(time.Minute)) {
		t.Fatalf("unexpected fulfilled request %+v", got)
	}

	if err := s.Reopen(ctx, "r1"); err != nil {
		t.Fatalf("Reopen: %v", err)
	}
	got, _ = s.Get(ctx, "r1")
	if got.Fulfilled || !got.FulfilledAt.IsZero() {
		t.Fatalf("expected reopened request, got %+v", got)
	}
	if err := s.Reopen(ctx, "nope"); !apperrors.IsCode(err, apperrors.CodeNotFound) {
		t.Fatalf("expected NOT_FOUND, got %v", err)
	}
}

func TestExpirePending(t *testing.T) {
	s := tempDB(t)
	ctx := context.Background()
	s.Put(ctx, evolution.Request{ID: "done", AssetID: 1, Requester: "alice", StageAtRequest: 1, CreatedAt: t0})
	s.Put(ctx, evolution.Request{ID: "open", AssetID: 2, Requester: "bob", StageAtRequest: 1, CreatedAt: t0})
	if err := s.MarkFulfilled(ctx, "done", t0); err != nil {
		t.Fatalf("MarkFulfilled: %v", err)
	}

	n, err := s.ExpirePending(ctx)
	if err != nil {
		t.Fatalf("ExpirePending: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 expired request, got %d", n)
	}
	if pending, _ := s.Pending(ctx); len(pending) != 0 {
		t.Fatalf("expected no pending requests, got %+v", pending)
	}
	got, _ := s.Get(ctx, "open")
	if !got.Expired || got.Fulfilled {
		t.Fatalf("expected expired and unfulfilled, got %+v", got)
	}
	if err := s.MarkFulfilled(ctx, "open", t0); !apperrors.IsCode(err, apperrors.CodeRequestStale) {
		t.Fatalf("expected REQUEST_STALE, got %v", err)
	}
	if done, _ := s.Get(ctx, "done"); !done.Fulfilled || done.Expired {
		t.Fatalf("fulfilled request changed: %+v", done)
	}
}

func TestPendingOrderAndStats(t *testing.T) {
	s := tempDB(t)
	ctx := context.Background()
	s.Put(ctx, evolution.Request{ID: "late", AssetID: 1, Requester: "a", StageAtRequest: 1, CreatedAt: t0.Add(time.Second)})
	s.Put(ctx, evolution.Request{ID: "early", AssetID: 2, Requester: "b", StageAtRequest: 1, CreatedAt: t0.Add(500 * time.Millisecond)})
	s.Put(ctx, evolution.Request{ID: "done", AssetID: 3, Requester: "c", StageAtRequest: 1, CreatedAt: t0})
	s.MarkFulfilled(ctx, "done", t0)

	pending, err := s.Pending(ctx)
	if err != nil {
		t.Fatalf("Pending: %v", err)
	}
	if len(pending) != 2 || pending[0].ID != "early" || pending[1].ID != "late" {
		t.Fatalf("unexpected pending order %+v", pending)
	}

	all, _ := s.ListRequests(ctx, 10)
	if len(all) != 3 || all[0].ID != "late" {
		t.Fatalf("unexpected recent list %+v", all)
	}

	st, err := s.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if st.Requests != 3 || st.Pending != 2 || st.Events != 0 {
		t.Fatalf("unexpected stats %+v", st)
	}
}

func TestStoreSurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "evo.db")
	ctx := context.Background()

	s, err := NewStore(path)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	s.Put(ctx, evolution.Request{ID: "r1", AssetID: 1, Requester: "alice", StageAtRequest: 1, CreatedAt: t0})
	s.Close()

	s2, err := NewStore(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer s2.Close()
	pending, _ := s2.Pending(ctx)
	if len(pending) != 1 || pending[0].ID != "r1" {
		t.Fatalf("pending request lost across reopen: %+v", pending)
	}
}
