package events

import (
	"context"
	"testing"
	"time"
)

func TestMultiFansOut(t *testing.T) {
	a, b := &Recorder{}, &Recorder{}
	m := Multi{a, nil, b}

	m.Emit(context.Background(), New(PoolCreated, 0, time.Now(), nil))

	if len(a.Events()) != 1 || len(b.Events()) != 1 {
		t.Fatalf("expected one event per recorder, got %d and %d", len(a.Events()), len(b.Events()))
	}
}

func TestRecorderOfKind(t *testing.T) {
	r := &Recorder{}
	ctx := context.Background()
	r.Emit(ctx, New(NFTMinted, 1, time.Now(), nil))
	r.Emit(ctx, New(TokenStaked, 1, time.Now(), nil))
	r.Emit(ctx, New(NFTMinted, 2, time.Now(), nil))

	minted := r.OfKind(NFTMinted)
	if len(minted) != 2 {
		t.Fatalf("expected 2 minted events, got %d", len(minted))
	}
	if minted[1].AssetID != 2 {
		t.Fatalf("expected asset 2, got %d", minted[1].AssetID)
	}
}

func TestNewAssignsIDAndUTC(t *testing.T) {
	loc := time.FixedZone("x", 3600)
	e := New(MemoryStored, 5, time.Date(2026, 1, 1, 12, 0, 0, 0, loc), map[string]string{"k": "v"})
	if e.ID == "" {
		t.Fatal("expected event id")
	}
	if e.At.Location() != time.UTC {
		t.Fatal("expected UTC timestamp")
	}
}

func TestOrNoop(t *testing.T) {
	if _, ok := OrNoop(nil).(NoopEmitter); !ok {
		t.Fatal("expected NoopEmitter for nil")
	}
}
