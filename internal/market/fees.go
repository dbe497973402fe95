package market

import (
	"math/big"
	"sync"
)

// MaxBasisPoints is 100% expressed in basis points.
const MaxBasisPoints = 10000

// FeeLedger holds the protocol fee rate and the accrued, not-yet-withdrawn
// fee balance. Rate changes apply to future sales only.
type FeeLedger struct {
	mu          sync.RWMutex
	basisPoints uint32
	accrued     uint64
}

func NewFeeLedger(basisPoints uint32) (*FeeLedger, error) {
	if basisPoints > MaxBasisPoints {
		return nil, ErrInvalidFeeRate
	}
	return &FeeLedger{basisPoints: basisPoints}, nil
}

func (l *FeeLedger) Rate() uint32 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.basisPoints
}

// SetRate replaces the fee rate. Rates above 100% are rejected.
func (l *FeeLedger) SetRate(basisPoints uint32) error {
	if basisPoints > MaxBasisPoints {
		return ErrInvalidFeeRate
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	l.basisPoints = basisPoints
	return nil
}

// ComputeFee splits a price into the protocol fee and the seller's share.
// The fee truncates toward zero: fee = floor(price * bps / 10000). The
// sub-unit remainder is credited to neither side.
func (l *FeeLedger) ComputeFee(price uint64) (fee, netToSeller uint64) {
	l.mu.RLock()
	bps := l.basisPoints
	l.mu.RUnlock()

	// price * bps can exceed 64 bits for large base-unit prices.
	f := new(big.Int).SetUint64(price)
	f.Mul(f, big.NewInt(int64(bps)))
	f.Div(f, big.NewInt(MaxBasisPoints))

	fee = f.Uint64()
	return fee, price - fee
}

func (l *FeeLedger) Accrue(fee uint64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.accrued += fee
}

func (l *FeeLedger) Accrued() uint64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.accrued
}

// Drain zeroes the accrued balance and returns what it held. Called after a
// successful withdrawal transfer.
func (l *FeeLedger) Drain() uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	amount := l.accrued
	l.accrued = 0
	return amount
}
