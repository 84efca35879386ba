// Package token defines the reward payout ledger consumed by the staking
// engine and an in-memory treasury implementation.
package token

import (
	"context"
	"fmt"
	"sync"

	"github.com/Jenola344/EvoNFT/internal/auth"
	apperrors "github.com/Jenola344/EvoNFT/internal/errors"
	"github.com/Jenola344/EvoNFT/internal/safemath"
)

// Ledger pays fungible reward credits.
type Ledger interface {
	Transfer(ctx context.Context, to auth.Identity, amount uint64) error
}

// #region treasury
// Treasury pays rewards out of a fixed balance.
type Treasury struct {
	mu        sync.Mutex
	source    auth.Identity
	balance   uint64
	balances  map[auth.Identity]uint64
	available bool
}

var _ Ledger = (*Treasury)(nil)

// NewTreasury creates a treasury holding balance credits on behalf of source.
func NewTreasury(source auth.Identity, balance uint64) *Treasury {
	return &Treasury{
		source:    source,
		balance:   balance,
		balances:  make(map[auth.Identity]uint64),
		available: true,
	}
}

// SetAvailable toggles whether transfers succeed.
func (t *Treasury) SetAvailable(available bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.available = available
}

// Transfer implements Ledger.
func (t *Treasury) Transfer(_ context.Context, to auth.Identity, amount uint64) error {
	if to.Zero() {
		return apperrors.New(apperrors.CodeInvalidArgument, "payout recipient is empty")
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.available {
		return apperrors.New(apperrors.CodeExternalUnavailable, "token ledger unavailable")
	}
	if amount > t.balance {
		return apperrors.WithMetadata(apperrors.CodeExternalUnavailable,
			fmt.Sprintf("treasury %s holds %d, cannot pay %d", t.source, t.balance, amount),
			map[string]string{"source": string(t.source)})
	}
	credited, err := safemath.Add(t.balances[to], amount)
	if err != nil {
		return err
	}
	t.balance -= amount
	t.balances[to] = credited
	return nil
}

// Balance returns the remaining treasury balance.
func (t *Treasury) Balance() uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.balance
}

// BalanceOf returns the credits paid to identity.
func (t *Treasury) BalanceOf(identity auth.Identity) uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.balances[identity]
}

// #endregion treasury
