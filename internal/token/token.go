package token

import (
	"context"
	"errors"
)

// Address identifies an account or a contract. The zero value is the null
// address and is never a valid party to a transfer.
type Address string

func (a Address) IsZero() bool {
	return a == ""
}

func (a Address) String() string {
	return string(a)
}

var (
	// ErrTransferRejected is returned when the token contract refuses the
	// transfer (wrong owner, insufficient balance, missing approval).
	ErrTransferRejected = errors.New("transfer rejected")
	// ErrUnknownAsset is returned for an asset id the custody contract has
	// never seen.
	ErrUnknownAsset = errors.New("unknown asset")
)

// AssetCustodyClient fronts the non-fungible asset contracts. The contract
// address selects the collection; transfers either fully apply or return an
// error with no effect.
type AssetCustodyClient interface {
	TransferFrom(ctx context.Context, contract, from, to Address, assetID uint64) error
	OwnerOf(ctx context.Context, contract Address, assetID uint64) (Address, error)
}

// PaymentClient fronts the fungible payment token contract. Amounts are in
// the token's smallest unit.
type PaymentClient interface {
	TransferFrom(ctx context.Context, from, to Address, amount uint64) error
	BalanceOf(ctx context.Context, holder Address) (uint64, error)
}
