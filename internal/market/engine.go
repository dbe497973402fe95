package market

import (
	"context"
	"fmt"
	"sync"

	"github.com/nftbay/nftbay-backend/internal/token"
	"go.uber.org/zap"
)

// MetricsRecorder is the subset of the metrics surface the engine touches.
type MetricsRecorder interface {
	RecordListingCreated(ctx context.Context)
	RecordListingRemoved(ctx context.Context)
	RecordSale(ctx context.Context, price, fee uint64)
}

// Engine orchestrates the listing lifecycle and the buy/settlement protocol
// against the store, the fee ledger and the two external token clients.
//
// Every operation that performs an external transfer runs under a
// non-reentrant guard: a callback from a token client that re-enters the
// engine fails fast with ErrReentrant instead of observing mid-operation
// state. State is read before external calls and committed only after all of
// them succeed, so a failed operation leaves no partial effect.
type Engine struct {
	owner       token.Address
	marketplace token.Address

	store    *ListingStore
	fees     *FeeLedger
	custody  token.AssetCustodyClient
	payments token.PaymentClient

	sink    EventSink
	logger  *zap.SugaredLogger
	metrics MetricsRecorder

	guard sync.Mutex
}

func NewEngine(
	owner, marketplace token.Address,
	store *ListingStore,
	fees *FeeLedger,
	custody token.AssetCustodyClient,
	payments token.PaymentClient,
	sink EventSink,
	logger *zap.SugaredLogger,
	metrics MetricsRecorder,
) *Engine {
	return &Engine{
		owner:       owner,
		marketplace: marketplace,
		store:       store,
		fees:        fees,
		custody:     custody,
		payments:    payments,
		sink:        sink,
		logger:      logger,
		metrics:     metrics,
	}
}

// Store exposes the listing store for read-only views.
func (e *Engine) Store() *ListingStore {
	return e.store
}

// Fees exposes the fee ledger for read-only views.
func (e *Engine) Fees() *FeeLedger {
	return e.fees
}

// CreateListing escrows the asset and records the listing. Custody moves
// before the record becomes visible, so there is no window where a listing is
// Active without the marketplace holding the asset.
func (e *Engine) CreateListing(ctx context.Context, caller, assetContract token.Address, assetID, price uint64) (Listing, error) {
	if !e.guard.TryLock() {
		return Listing{}, ErrReentrant
	}
	defer e.guard.Unlock()

	if assetContract.IsZero() {
		return Listing{}, ErrInvalidAsset
	}

	if err := e.custody.TransferFrom(ctx, assetContract, caller, e.marketplace, assetID); err != nil {
		e.logger.Warnw("Listing escrow transfer rejected",
			"seller", caller, "assetContract", assetContract, "assetId", assetID, "error", err)
		return Listing{}, fmt.Errorf("%w: %v", ErrCustodyTransferFailed, err)
	}

	id, err := e.store.Insert(assetContract, assetID, caller, price)
	if err != nil {
		// Unreachable after the null-contract check above; return custody
		// rather than hold an asset with no listing.
		if rbErr := e.custody.TransferFrom(ctx, assetContract, e.marketplace, caller, assetID); rbErr != nil {
			e.logger.Errorw("Failed to return escrowed asset after insert failure",
				"assetContract", assetContract, "assetId", assetID, "error", rbErr)
		}
		return Listing{}, err
	}

	listing, _ := e.store.Get(id)

	e.logger.Infow("Listing created",
		"listingId", id, "seller", caller, "assetContract", assetContract,
		"assetId", assetID, "price", price)
	if e.metrics != nil {
		e.metrics.RecordListingCreated(ctx)
	}

	ev := newEvent(EventListingCreated)
	ev.ListingID = id
	ev.Seller = caller
	ev.AssetContract = assetContract
	ev.AssetID = assetID
	ev.Price = price
	e.publish(ctx, ev)

	return listing, nil
}

// UpdateListing changes the price of an Active listing. No external call is
// made, so there is no reentrancy surface and no guard.
func (e *Engine) UpdateListing(ctx context.Context, caller token.Address, id, newPrice uint64) error {
	if err := e.store.SetPrice(id, newPrice, caller); err != nil {
		return err
	}

	e.logger.Infow("Listing price updated", "listingId", id, "price", newPrice)

	ev := newEvent(EventListingUpdated)
	ev.ListingID = id
	ev.Price = newPrice
	e.publish(ctx, ev)
	return nil
}

// RemoveListing returns custody to the seller and closes the listing.
func (e *Engine) RemoveListing(ctx context.Context, caller token.Address, id uint64) error {
	if !e.guard.TryLock() {
		return ErrReentrant
	}
	defer e.guard.Unlock()

	listing, err := e.store.Get(id)
	if err != nil {
		return err
	}
	if listing.Seller != caller {
		return ErrUnauthorized
	}
	if listing.Status != StatusActive {
		return ErrNotActive
	}

	if err := e.custody.TransferFrom(ctx, listing.AssetContract, e.marketplace, listing.Seller, listing.AssetID); err != nil {
		e.logger.Warnw("Custody return rejected", "listingId", id, "error", err)
		return fmt.Errorf("%w: %v", ErrCustodyTransferFailed, err)
	}

	if err := e.store.Close(id, StatusRemoved); err != nil {
		return err
	}

	e.logger.Infow("Listing removed", "listingId", id, "seller", caller)
	if e.metrics != nil {
		e.metrics.RecordListingRemoved(ctx)
	}

	ev := newEvent(EventListingRemoved)
	ev.ListingID = id
	e.publish(ctx, ev)
	return nil
}

// BuyNFT settles a sale as one logical transaction. The buyer pays the full
// price to the marketplace in a single transfer, the seller is paid their
// share from the marketplace balance, and custody moves to the buyer; the fee
// stays with the marketplace as internal bookkeeping. If a later leg fails,
// the earlier legs are compensated in reverse before the operation aborts, so
// either every effect applies or none do. Store and ledger mutate only after
// all transfers succeed.
func (e *Engine) BuyNFT(ctx context.Context, caller token.Address, id uint64) (Listing, error) {
	if !e.guard.TryLock() {
		return Listing{}, ErrReentrant
	}
	defer e.guard.Unlock()

	listing, err := e.store.Get(id)
	if err != nil {
		return Listing{}, err
	}
	if listing.Status != StatusActive {
		return Listing{}, ErrNotActive
	}

	fee, netToSeller := e.fees.ComputeFee(listing.Price)

	if err := e.payments.TransferFrom(ctx, caller, e.marketplace, listing.Price); err != nil {
		e.logger.Warnw("Buyer payment rejected", "listingId", id, "buyer", caller, "error", err)
		return Listing{}, fmt.Errorf("%w: %v", ErrPaymentFailed, err)
	}

	if err := e.payments.TransferFrom(ctx, e.marketplace, listing.Seller, netToSeller); err != nil {
		e.refundBuyer(ctx, caller, listing.Price, id)
		e.logger.Errorw("Seller payout rejected, sale aborted",
			"listingId", id, "seller", listing.Seller, "error", err)
		return Listing{}, fmt.Errorf("%w: %v", ErrPaymentFailed, err)
	}

	if err := e.custody.TransferFrom(ctx, listing.AssetContract, e.marketplace, caller, listing.AssetID); err != nil {
		// Unwind the two payment legs.
		if cbErr := e.payments.TransferFrom(ctx, listing.Seller, e.marketplace, netToSeller); cbErr != nil {
			e.logger.Errorw("Failed to claw back seller payout during unwind",
				"listingId", id, "seller", listing.Seller, "amount", netToSeller, "error", cbErr)
		}
		e.refundBuyer(ctx, caller, listing.Price, id)
		e.logger.Errorw("Asset delivery rejected, sale aborted", "listingId", id, "error", err)
		return Listing{}, fmt.Errorf("%w: %v", ErrCustodyTransferFailed, err)
	}

	if err := e.store.Close(id, StatusSold); err != nil {
		return Listing{}, err
	}
	e.fees.Accrue(fee)

	e.logger.Infow("NFT sold",
		"listingId", id, "buyer", caller, "seller", listing.Seller,
		"price", listing.Price, "fee", fee, "netToSeller", netToSeller)
	if e.metrics != nil {
		e.metrics.RecordSale(ctx, listing.Price, fee)
	}

	ev := newEvent(EventNFTSold)
	ev.ListingID = id
	ev.Buyer = caller
	ev.Seller = listing.Seller
	ev.AssetContract = listing.AssetContract
	ev.AssetID = listing.AssetID
	ev.Price = listing.Price
	ev.Amount = fee
	e.publish(ctx, ev)

	sold, _ := e.store.Get(id)
	return sold, nil
}

// SetFeeRate replaces the protocol fee rate for future sales. Owner only.
func (e *Engine) SetFeeRate(ctx context.Context, caller token.Address, basisPoints uint32) error {
	if caller != e.owner {
		return ErrUnauthorized
	}
	if err := e.fees.SetRate(basisPoints); err != nil {
		return err
	}

	e.logger.Infow("Fee rate updated", "basisPoints", basisPoints)

	ev := newEvent(EventFeeUpdated)
	ev.FeeBasisPoints = basisPoints
	e.publish(ctx, ev)
	return nil
}

// WithdrawFees transfers the tracked accrued fee balance to the owner. The
// marketplace's full token balance is deliberately not swept: stray deposits
// stay put and are only logged.
func (e *Engine) WithdrawFees(ctx context.Context, caller token.Address) (uint64, error) {
	if caller != e.owner {
		return 0, ErrUnauthorized
	}
	if !e.guard.TryLock() {
		return 0, ErrReentrant
	}
	defer e.guard.Unlock()

	amount := e.fees.Accrued()
	if amount == 0 {
		return 0, nil
	}

	if balance, err := e.payments.BalanceOf(ctx, e.marketplace); err == nil && balance > amount {
		e.logger.Warnw("Marketplace token balance exceeds tracked fees",
			"balance", balance, "accrued", amount)
	}

	if err := e.payments.TransferFrom(ctx, e.marketplace, e.owner, amount); err != nil {
		e.logger.Errorw("Fee withdrawal transfer rejected", "amount", amount, "error", err)
		return 0, fmt.Errorf("%w: %v", ErrPaymentFailed, err)
	}
	e.fees.Drain()

	e.logger.Infow("Fees withdrawn", "owner", e.owner, "amount", amount)

	ev := newEvent(EventFeesWithdrawn)
	ev.Amount = amount
	e.publish(ctx, ev)
	return amount, nil
}

func (e *Engine) refundBuyer(ctx context.Context, buyer token.Address, amount uint64, listingID uint64) {
	if err := e.payments.TransferFrom(ctx, e.marketplace, buyer, amount); err != nil {
		e.logger.Errorw("Failed to refund buyer during unwind",
			"listingId", listingID, "buyer", buyer, "amount", amount, "error", err)
	}
}

func (e *Engine) publish(ctx context.Context, ev Event) {
	if e.sink != nil {
		e.sink.Publish(ctx, ev)
	}
}
