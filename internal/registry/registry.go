// Package registry provides an in-memory asset registry: identity issuance,
// ownership and guarded custody transfer.
package registry

import (
	"context"
	"strconv"
	"sync"

	"github.com/Jenola344/EvoNFT/internal/asset"
	"github.com/Jenola344/EvoNFT/internal/auth"
	apperrors "github.com/Jenola344/EvoNFT/internal/errors"
)

// MemoryRegistry implements asset.Registry. Ids are issued sequentially from 1.
// It is safe for concurrent use.
type MemoryRegistry struct {
	mu       sync.RWMutex
	nextID   asset.ID
	owners   map[asset.ID]auth.Identity
	balances map[auth.Identity]int
}

var _ asset.Registry = (*MemoryRegistry)(nil)

// NewMemoryRegistry creates an empty registry.
func NewMemoryRegistry() *MemoryRegistry {
	return &MemoryRegistry{
		nextID:   1,
		owners:   make(map[asset.ID]auth.Identity),
		balances: make(map[auth.Identity]int),
	}
}

// Mint issues a new id owned by owner.
func (r *MemoryRegistry) Mint(_ context.Context, owner auth.Identity) (asset.ID, error) {
	if owner.Zero() {
		return 0, apperrors.New(apperrors.CodeInvalidArgument, "owner identity is empty")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	id := r.nextID
	r.nextID++
	r.owners[id] = owner
	r.balances[owner]++
	return id, nil
}

// OwnerOf returns the current owner of id.
func (r *MemoryRegistry) OwnerOf(_ context.Context, id asset.ID) (auth.Identity, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	owner, ok := r.owners[id]
	if !ok {
		return "", notFound(id)
	}
	return owner, nil
}

// Transfer moves id from from to to. It fails unless from is the current owner.
func (r *MemoryRegistry) Transfer(_ context.Context, from, to auth.Identity, id asset.ID) error {
	if to.Zero() {
		return apperrors.New(apperrors.CodeInvalidArgument, "transfer target identity is empty")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	owner, ok := r.owners[id]
	if !ok {
		return notFound(id)
	}
	if owner != from {
		return apperrors.WithMetadata(apperrors.CodeUnauthorized,
			"transfer of asset "+strconv.FormatUint(uint64(id), 10)+" not initiated by its owner",
			map[string]string{"from": string(from), "owner": string(owner)})
	}
	r.owners[id] = to
	r.balances[from]--
	if r.balances[from] == 0 {
		delete(r.balances, from)
	}
	r.balances[to]++
	return nil
}

// BalanceOf returns how many assets identity owns.
func (r *MemoryRegistry) BalanceOf(identity auth.Identity) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.balances[identity]
}

func notFound(id asset.ID) error {
	return apperrors.WithMetadata(apperrors.CodeNotFound,
		"asset "+strconv.FormatUint(uint64(id), 10)+" not registered",
		map[string]string{"asset_id": strconv.FormatUint(uint64(id), 10)})
}
