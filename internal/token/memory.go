package token

import (
	"context"
	"fmt"
	"sync"
)

// AssetRegistry is an in-memory AssetCustodyClient. It tracks one owner per
// (contract, assetID) pair and is used by dev mode and tests in place of a
// real custody contract.
type AssetRegistry struct {
	mu     sync.RWMutex
	owners map[Address]map[uint64]Address
}

func NewAssetRegistry() *AssetRegistry {
	return &AssetRegistry{
		owners: make(map[Address]map[uint64]Address),
	}
}

// Mint registers a new asset under the given owner. Fails if the asset
// already exists.
func (r *AssetRegistry) Mint(contract Address, assetID uint64, owner Address) error {
	if contract.IsZero() || owner.IsZero() {
		return fmt.Errorf("%w: null contract or owner", ErrTransferRejected)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	col := r.owners[contract]
	if col == nil {
		col = make(map[uint64]Address)
		r.owners[contract] = col
	}
	if _, exists := col[assetID]; exists {
		return fmt.Errorf("asset %d already minted in %s", assetID, contract)
	}
	col[assetID] = owner
	return nil
}

func (r *AssetRegistry) TransferFrom(ctx context.Context, contract, from, to Address, assetID uint64) error {
	if from.IsZero() || to.IsZero() {
		return fmt.Errorf("%w: null party", ErrTransferRejected)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	col := r.owners[contract]
	if col == nil {
		return fmt.Errorf("%w: contract %s", ErrUnknownAsset, contract)
	}
	owner, ok := col[assetID]
	if !ok {
		return fmt.Errorf("%w: asset %d in %s", ErrUnknownAsset, assetID, contract)
	}
	if owner != from {
		return fmt.Errorf("%w: %s does not own asset %d", ErrTransferRejected, from, assetID)
	}
	col[assetID] = to
	return nil
}

func (r *AssetRegistry) OwnerOf(ctx context.Context, contract Address, assetID uint64) (Address, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	col := r.owners[contract]
	if col == nil {
		return "", fmt.Errorf("%w: contract %s", ErrUnknownAsset, contract)
	}
	owner, ok := col[assetID]
	if !ok {
		return "", fmt.Errorf("%w: asset %d in %s", ErrUnknownAsset, assetID, contract)
	}
	return owner, nil
}

// PaymentLedger is an in-memory PaymentClient keeping plain balances. It does
// not model allowances; a transfer succeeds iff the source balance covers it.
type PaymentLedger struct {
	mu       sync.RWMutex
	balances map[Address]uint64
}

func NewPaymentLedger() *PaymentLedger {
	return &PaymentLedger{
		balances: make(map[Address]uint64),
	}
}

// Credit adds funds to an account, for seeding dev and test fixtures.
func (l *PaymentLedger) Credit(holder Address, amount uint64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.balances[holder] += amount
}

func (l *PaymentLedger) TransferFrom(ctx context.Context, from, to Address, amount uint64) error {
	if from.IsZero() || to.IsZero() {
		return fmt.Errorf("%w: null party", ErrTransferRejected)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.balances[from] < amount {
		return fmt.Errorf("%w: %s has %d, needs %d", ErrTransferRejected, from, l.balances[from], amount)
	}
	l.balances[from] -= amount
	l.balances[to] += amount
	return nil
}

func (l *PaymentLedger) BalanceOf(ctx context.Context, holder Address) (uint64, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.balances[holder], nil
}
