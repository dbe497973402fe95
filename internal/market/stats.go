package market

import "github.com/nftbay/nftbay-backend/internal/token"

// Stats is an aggregate snapshot over a set of listings. AveragePrice uses
// integer division and is 0 when Count is 0.
type Stats struct {
	TotalVolume  uint64 `json:"totalVolume"`
	AveragePrice uint64 `json:"averagePrice"`
	Count        uint64 `json:"count"`
}

func statsFromTotals(t Totals) Stats {
	s := Stats{TotalVolume: t.Volume, Count: t.Count}
	if t.Count > 0 {
		s.AveragePrice = t.Volume / t.Count
	}
	return s
}

// StatisticsView serves read-only aggregate and filtered queries over the
// listing store. All aggregate reads are O(1) against the incrementally
// maintained counters.
type StatisticsView struct {
	store *ListingStore
}

func NewStatisticsView(store *ListingStore) *StatisticsView {
	return &StatisticsView{store: store}
}

// Live reports the aggregates over currently Active listings.
func (v *StatisticsView) Live() Stats {
	return statsFromTotals(v.store.LiveTotals())
}

// Sold reports the lifetime aggregates over Sold listings. Removed listings
// never contribute.
func (v *StatisticsView) Sold() Stats {
	return statsFromTotals(v.store.SoldTotals())
}

// BySeller returns the seller's listings, optionally filtered by status.
// A zero status means no filter.
func (v *StatisticsView) BySeller(seller token.Address, status Status) []Listing {
	return filterStatus(v.store.BySeller(seller), status)
}

// ByAsset returns the asset contract's listings, optionally filtered by
// status. A zero status means no filter.
func (v *StatisticsView) ByAsset(assetContract token.Address, status Status) []Listing {
	return filterStatus(v.store.ByAsset(assetContract), status)
}

// Listing returns a single listing by id.
func (v *StatisticsView) Listing(id uint64) (Listing, error) {
	return v.store.Get(id)
}

// All returns every listing, optionally filtered by status.
func (v *StatisticsView) All(status Status) []Listing {
	return filterStatus(v.store.All(), status)
}

func filterStatus(in []Listing, status Status) []Listing {
	if status == 0 {
		return in
	}
	out := in[:0:0]
	for _, l := range in {
		if l.Status == status {
			out = append(out, l)
		}
	}
	return out
}
