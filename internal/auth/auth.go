// Package auth models caller identities and capability checks.
package auth

import (
	"strings"
	"sync"

	apperrors "github.com/Jenola344/EvoNFT/internal/errors"
)

// #region identity
// Identity is an opaque caller or account identifier.
type Identity string

// Zero reports whether the identity is empty.
func (i Identity) Zero() bool {
	return strings.TrimSpace(string(i)) == ""
}

// #endregion identity

// #region capability
// Capability names a privileged role.
type Capability string

const (
	Admin              Capability = "admin"
	Minter             Capability = "minter"
	EvolutionManager   Capability = "evolution_manager"
	StakingManager     Capability = "staking_manager"
	PersonalityManager Capability = "personality_manager"
)

// Authorizer answers whether a caller holds a capability.
type Authorizer interface {
	HasCapability(caller Identity, c Capability) bool
}

// Require fails with CodeUnauthorized unless caller holds every capability in caps.
func Require(authz Authorizer, caller Identity, caps ...Capability) error {
	if authz == nil {
		return apperrors.New(apperrors.CodeUnauthorized, "no authorizer configured")
	}
	for _, c := range caps {
		if !authz.HasCapability(caller, c) {
			return apperrors.WithMetadata(apperrors.CodeUnauthorized,
				"caller "+string(caller)+" lacks capability "+string(c),
				map[string]string{"caller": string(caller), "capability": string(c)})
		}
	}
	return nil
}

// #endregion capability

// #region role-table
// RoleTable is an in-memory Authorizer. Admin implies every capability,
// and only an admin may grant or revoke.
type RoleTable struct {
	mu     sync.RWMutex
	grants map[Identity]map[Capability]bool
}

// NewRoleTable creates a role table with admin as the initial administrator.
func NewRoleTable(admin Identity) *RoleTable {
	rt := &RoleTable{grants: make(map[Identity]map[Capability]bool)}
	if !admin.Zero() {
		rt.grants[admin] = map[Capability]bool{Admin: true}
	}
	return rt
}

// HasCapability implements Authorizer.
func (r *RoleTable) HasCapability(caller Identity, c Capability) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	caps := r.grants[caller]
	return caps[Admin] || caps[c]
}

// Grant gives target the capability c.
func (r *RoleTable) Grant(caller, target Identity, c Capability) error {
	if target.Zero() {
		return apperrors.New(apperrors.CodeInvalidArgument, "grant target identity is empty")
	}
	if err := Require(r, caller, Admin); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.grants[target] == nil {
		r.grants[target] = make(map[Capability]bool)
	}
	r.grants[target][c] = true
	return nil
}

// Revoke removes capability c from target.
func (r *RoleTable) Revoke(caller, target Identity, c Capability) error {
	if err := Require(r, caller, Admin); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.grants[target], c)
	return nil
}

// #endregion role-table
