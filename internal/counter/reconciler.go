package counter

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"

	"solana-counter-indexer/internal/domain"
	"solana-counter-indexer/internal/solana"
)

// ErrAccountNotFound is returned when the counter PDA has no account:
// the counter was never initialized, or the transaction is not yet
// visible at the read path's commitment level.
var ErrAccountNotFound = errors.New("counter account not found")

// Reconciler reads the authoritative counter value for an authority
// directly from chain state. It never caches snapshots and never derives
// the value by replaying deltas: webhook delivery order is not guaranteed,
// so a live read after the transaction is the only trustworthy source.
type Reconciler struct {
	rpc       solana.AccountFetcher
	programID string
}

// NewReconciler creates a Reconciler against the given RPC read path.
func NewReconciler(rpc solana.AccountFetcher, programID string) *Reconciler {
	if programID == "" {
		programID = ProgramID
	}
	return &Reconciler{rpc: rpc, programID: programID}
}

// CurrentState fetches and decodes the counter account for an authority.
// Returns ErrAccountNotFound when the PDA does not exist.
func (r *Reconciler) CurrentState(ctx context.Context, authority string) (*domain.CounterAccount, error) {
	address, err := DeriveCounterAddress(authority, r.programID)
	if err != nil {
		return nil, fmt.Errorf("derive counter address for %s: %w", authority, err)
	}

	info, err := r.rpc.GetAccountInfo(ctx, address)
	if err != nil {
		return nil, fmt.Errorf("get counter account %s: %w", address, err)
	}
	if info == nil {
		return nil, ErrAccountNotFound
	}

	data, err := base64.StdEncoding.DecodeString(info.Data)
	if err != nil {
		return nil, fmt.Errorf("decode counter account data: %w", err)
	}

	snapshot, err := DecodeAccount(data)
	if err != nil {
		return nil, fmt.Errorf("decode counter account %s: %w", address, err)
	}

	return snapshot, nil
}
