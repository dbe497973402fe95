package market

import (
	"sync"
	"time"

	"github.com/nftbay/nftbay-backend/internal/token"
)

// Totals is a snapshot of the incrementally maintained aggregate counters.
type Totals struct {
	Count  uint64
	Volume uint64
}

// ListingStore owns the listing record-set. Identifiers are allocated from a
// monotonic counter and never reused; closed listings stay in the store with
// a terminal status.
//
// The store maintains live and sold aggregates incrementally; they always
// equal a recomputation over the records.
type ListingStore struct {
	mu      sync.RWMutex
	nextID  uint64
	records map[uint64]*Listing

	live Totals
	sold Totals
}

func NewListingStore() *ListingStore {
	return &ListingStore{
		nextID:  1,
		records: make(map[uint64]*Listing),
	}
}

// Insert stores a new Active listing and returns its id.
func (s *ListingStore) Insert(assetContract token.Address, assetID uint64, seller token.Address, price uint64) (uint64, error) {
	if assetContract.IsZero() {
		return 0, ErrInvalidAsset
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.nextID
	s.nextID++

	s.records[id] = &Listing{
		ID:            id,
		AssetContract: assetContract,
		AssetID:       assetID,
		Seller:        seller,
		Price:         price,
		Status:        StatusActive,
		CreatedAt:     time.Now().UTC(),
	}

	s.live.Count++
	s.live.Volume += price

	return id, nil
}

// Get returns a copy of the listing.
func (s *ListingStore) Get(id uint64) (Listing, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.records[id]
	if !ok {
		return Listing{}, ErrNotFound
	}
	return *rec, nil
}

// SetPrice updates the price of an Active listing. Only the seller may call
// it. Aggregate volume tracks the new price.
func (s *ListingStore) SetPrice(id uint64, newPrice uint64, caller token.Address) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[id]
	if !ok {
		return ErrNotFound
	}
	if rec.Seller != caller {
		return ErrUnauthorized
	}
	if rec.Status != StatusActive {
		return ErrNotActive
	}

	s.live.Volume -= rec.Price
	s.live.Volume += newPrice
	rec.Price = newPrice
	return nil
}

// Close transitions an Active listing to Sold or Removed. A listing closes
// exactly once.
func (s *ListingStore) Close(id uint64, outcome Status) error {
	if outcome != StatusSold && outcome != StatusRemoved {
		return ErrNotActive
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[id]
	if !ok {
		return ErrNotFound
	}
	if rec.Status != StatusActive {
		return ErrNotActive
	}

	rec.Status = outcome
	rec.ClosedAt = time.Now().UTC()

	s.live.Count--
	s.live.Volume -= rec.Price

	if outcome == StatusSold {
		s.sold.Count++
		s.sold.Volume += rec.Price
	}
	return nil
}

// BySeller returns copies of all listings created by the seller, closed ones
// included. Callers filter on Status when only active records are wanted.
func (s *ListingStore) BySeller(seller token.Address) []Listing {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []Listing
	for _, rec := range s.records {
		if rec.Seller == seller {
			out = append(out, *rec)
		}
	}
	return out
}

// ByAsset returns copies of all listings under the asset contract, closed
// ones included.
func (s *ListingStore) ByAsset(assetContract token.Address) []Listing {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []Listing
	for _, rec := range s.records {
		if rec.AssetContract == assetContract {
			out = append(out, *rec)
		}
	}
	return out
}

// All returns copies of every record.
func (s *ListingStore) All() []Listing {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Listing, 0, len(s.records))
	for _, rec := range s.records {
		out = append(out, *rec)
	}
	return out
}

// LiveTotals returns the aggregates over Active listings.
func (s *ListingStore) LiveTotals() Totals {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.live
}

// SoldTotals returns the aggregates over Sold listings.
func (s *ListingStore) SoldTotals() Totals {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sold
}
