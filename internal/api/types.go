package api

import (
	"math/big"
	"time"

	"github.com/nftbay/nftbay-backend/internal/market"
	"github.com/shopspring/decimal"
)

type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ListingDTO is the wire form of a listing. Amounts carry both the raw base
// units and a display string scaled by the payment token's decimals.
type ListingDTO struct {
	ID            uint64 `json:"id"`
	AssetContract string `json:"assetContract"`
	AssetID       uint64 `json:"assetId"`
	Seller        string `json:"seller"`
	Price         uint64 `json:"price"`
	PriceDisplay  string `json:"priceDisplay"`
	Status        string `json:"status"`
	CreatedAt     int64  `json:"createdAt"`
	ClosedAt      int64  `json:"closedAt,omitempty"`
}

type StatsDTO struct {
	TotalVolume         uint64 `json:"totalVolume"`
	TotalVolumeDisplay  string `json:"totalVolumeDisplay"`
	AveragePrice        uint64 `json:"averagePrice"`
	AveragePriceDisplay string `json:"averagePriceDisplay"`
	Count               uint64 `json:"count"`
	AsOf                int64  `json:"asOf"`
}

type FeeInfoDTO struct {
	BasisPoints    uint32 `json:"basisPoints"`
	Accrued        uint64 `json:"accrued"`
	AccruedDisplay string `json:"accruedDisplay"`
}

type WithdrawDTO struct {
	Amount        uint64 `json:"amount"`
	AmountDisplay string `json:"amountDisplay"`
}

type CreateListingRequest struct {
	AssetContract string `json:"assetContract"`
	AssetID       uint64 `json:"assetId"`
	Price         uint64 `json:"price"`
}

type UpdateListingRequest struct {
	Price uint64 `json:"price"`
}

type SetFeeRateRequest struct {
	BasisPoints uint32 `json:"basisPoints"`
}

// displayAmount renders base units as a decimal string scaled by the payment
// token's decimals, e.g. 10000 with 9 decimals is "0.00001".
func displayAmount(baseUnits uint64, decimals int32) string {
	return decimal.NewFromBigInt(new(big.Int).SetUint64(baseUnits), -decimals).String()
}

func listingDTO(l market.Listing, decimals int32) ListingDTO {
	dto := ListingDTO{
		ID:            l.ID,
		AssetContract: string(l.AssetContract),
		AssetID:       l.AssetID,
		Seller:        string(l.Seller),
		Price:         l.Price,
		PriceDisplay:  displayAmount(l.Price, decimals),
		Status:        l.Status.String(),
		CreatedAt:     l.CreatedAt.Unix(),
	}
	if !l.ClosedAt.IsZero() {
		dto.ClosedAt = l.ClosedAt.Unix()
	}
	return dto
}

func statsDTO(s market.Stats, decimals int32) StatsDTO {
	return StatsDTO{
		TotalVolume:         s.TotalVolume,
		TotalVolumeDisplay:  displayAmount(s.TotalVolume, decimals),
		AveragePrice:        s.AveragePrice,
		AveragePriceDisplay: displayAmount(s.AveragePrice, decimals),
		Count:               s.Count,
		AsOf:                time.Now().Unix(),
	}
}
