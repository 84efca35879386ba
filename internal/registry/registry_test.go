package registry

import (
	"context"
	"testing"

	apperrors "github.com/Jenola344/EvoNFT/internal/errors"
)

func TestMintIssuesSequentialIDs(t *testing.T) {
	r := NewMemoryRegistry()
	ctx := context.Background()

	a, _ := r.Mint(ctx, "alice")
	b, _ := r.Mint(ctx, "bob")
	if a != 1 || b != 2 {
		t.Fatalf("expected ids 1 and 2, got %d and %d", a, b)
	}
	if owner, _ := r.OwnerOf(ctx, b); owner != "bob" {
		t.Fatalf("expected bob, got %s", owner)
	}
	if _, err := r.Mint(ctx, ""); !apperrors.IsCode(err, apperrors.CodeInvalidArgument) {
		t.Fatalf("expected INVALID_ARGUMENT for empty owner, got %v", err)
	}
}

func TestTransferGuard(t *testing.T) {
	r := NewMemoryRegistry()
	ctx := context.Background()
	id, _ := r.Mint(ctx, "alice")

	if err := r.Transfer(ctx, "mallory", "mallory", id); !apperrors.IsCode(err, apperrors.CodeUnauthorized) {
		t.Fatalf("expected UNAUTHORIZED, got %v", err)
	}
	if err := r.Transfer(ctx, "alice", "vault", id); err != nil {
		t.Fatalf("Transfer: %v", err)
	}
	if owner, _ := r.OwnerOf(ctx, id); owner != "vault" {
		t.Fatalf("expected vault, got %s", owner)
	}
	if r.BalanceOf("alice") != 0 || r.BalanceOf("vault") != 1 {
		t.Fatalf("unexpected balances alice=%d vault=%d", r.BalanceOf("alice"), r.BalanceOf("vault"))
	}
}

func TestUnknownAsset(t *testing.T) {
	r := NewMemoryRegistry()
	ctx := context.Background()
	if _, err := r.OwnerOf(ctx, 42); !apperrors.IsCode(err, apperrors.CodeNotFound) {
		t.Fatalf("expected NOT_FOUND, got %v", err)
	}
	if err := r.Transfer(ctx, "a", "b", 42); !apperrors.IsCode(err, apperrors.CodeNotFound) {
		t.Fatalf("expected NOT_FOUND, got %v", err)
	}
}
