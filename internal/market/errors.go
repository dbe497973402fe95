package market

import "errors"

var (
	// ErrUnauthorized is returned when the caller lacks the required
	// capability (not the seller, or not the marketplace owner).
	ErrUnauthorized = errors.New("unauthorized")
	// ErrNotFound is returned for a listing id that was never allocated.
	ErrNotFound = errors.New("listing not found")
	// ErrInvalidAsset is returned when the asset contract is the null
	// address.
	ErrInvalidAsset = errors.New("invalid asset contract")
	// ErrNotActive is returned for mutations on a sold or removed listing.
	ErrNotActive = errors.New("listing not active")
	// ErrPaymentFailed is returned when a payment token transfer was
	// rejected; no partial effect remains.
	ErrPaymentFailed = errors.New("payment transfer failed")
	// ErrCustodyTransferFailed is returned when an asset transfer was
	// rejected; no partial effect remains.
	ErrCustodyTransferFailed = errors.New("custody transfer failed")
	// ErrReentrant is returned when an operation re-enters the engine while
	// another externally-calling operation is still in flight. The guard is
	// engine-wide, so two callers racing on unrelated listings can also hit
	// it; the losing call is safe to retry.
	ErrReentrant = errors.New("reentrant call")
	// ErrInvalidFeeRate is returned for a fee rate above 10000 basis points.
	ErrInvalidFeeRate = errors.New("fee rate exceeds 10000 basis points")
)
