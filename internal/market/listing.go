package market

import (
	"time"

	"github.com/nftbay/nftbay-backend/internal/token"
)

// Status is the lifecycle state of a listing. A listing is created Active and
// transitions exactly once to Sold or Removed; closed records stay in the
// store so historical queries keep working.
type Status uint8

const (
	StatusActive Status = iota + 1
	StatusSold
	StatusRemoved
)

func (s Status) String() string {
	switch s {
	case StatusActive:
		return "active"
	case StatusSold:
		return "sold"
	case StatusRemoved:
		return "removed"
	default:
		return "unknown"
	}
}

// ParseStatus maps the wire representation back to a Status. Returns 0 for
// anything unrecognized.
func ParseStatus(s string) Status {
	switch s {
	case "active":
		return StatusActive
	case "sold":
		return StatusSold
	case "removed":
		return StatusRemoved
	default:
		return 0
	}
}

// Listing is one escrowed offer to sell a single asset at a fixed price.
// While Active, the marketplace escrow account holds custody of the asset.
type Listing struct {
	ID            uint64
	AssetContract token.Address
	AssetID       uint64
	Seller        token.Address
	Price         uint64
	Status        Status
	CreatedAt     time.Time
	ClosedAt      time.Time
}
