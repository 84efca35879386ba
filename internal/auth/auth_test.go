package auth

import (
	"testing"

	apperrors "github.com/Jenola344/EvoNFT/internal/errors"
)

func TestAdminImpliesEveryCapability(t *testing.T) {
	rt := NewRoleTable("root")
	for _, c := range []Capability{Minter, EvolutionManager, StakingManager, PersonalityManager} {
		if !rt.HasCapability("root", c) {
			t.Fatalf("expected admin to hold %s", c)
		}
	}
}

func TestGrantAndRevoke(t *testing.T) {
	rt := NewRoleTable("root")

	if err := rt.Grant("root", "minter-1", Minter); err != nil {
		t.Fatalf("Grant: %v", err)
	}
	if !rt.HasCapability("minter-1", Minter) {
		t.Fatal("expected grant to take effect")
	}
	if rt.HasCapability("minter-1", StakingManager) {
		t.Fatal("grant must not leak to other capabilities")
	}

	if err := rt.Revoke("root", "minter-1", Minter); err != nil {
		t.Fatalf("Revoke: %v", err)
	}
	if rt.HasCapability("minter-1", Minter) {
		t.Fatal("expected revoke to take effect")
	}
}

func TestGrantRequiresAdmin(t *testing.T) {
	rt := NewRoleTable("root")
	rt.Grant("root", "alice", Minter)

	err := rt.Grant("alice", "bob", Minter)
	if !apperrors.IsCode(err, apperrors.CodeUnauthorized) {
		t.Fatalf("expected UNAUTHORIZED, got %v", err)
	}
}

func TestRequire(t *testing.T) {
	rt := NewRoleTable("root")
	rt.Grant("root", "ops", StakingManager)

	if err := Require(rt, "ops", StakingManager); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	err := Require(rt, "ops", StakingManager, Minter)
	if apperrors.KindOf(err) != apperrors.KindUnauthorized {
		t.Fatalf("expected Unauthorized kind, got %v", err)
	}
	if err := Require(nil, "ops", Minter); err == nil {
		t.Fatal("expected error with nil authorizer")
	}
}

func TestIdentityZero(t *testing.T) {
	if !Identity("  ").Zero() {
		t.Fatal("blank identity should be zero")
	}
	if Identity("alice").Zero() {
		t.Fatal("alice should not be zero")
	}
}
