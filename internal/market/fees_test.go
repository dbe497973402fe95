package market

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewFeeLedgerRejectsRateAboveFull(t *testing.T) {
	_, err := NewFeeLedger(10001)
	assert.ErrorIs(t, err, ErrInvalidFeeRate)

	l, err := NewFeeLedger(MaxBasisPoints)
	require.NoError(t, err)
	assert.Equal(t, uint32(MaxBasisPoints), l.Rate())
}

func TestFeeLedgerComputeFee(t *testing.T) {
	tests := []struct {
		name    string
		bps     uint32
		price   uint64
		wantFee uint64
		wantNet uint64
	}{
		{name: "2.5% of 10000", bps: 250, price: 10000, wantFee: 250, wantNet: 9750},
		{name: "fee truncates to zero on tiny price", bps: 250, price: 3, wantFee: 0, wantNet: 3},
		{name: "zero rate", bps: 0, price: 10000, wantFee: 0, wantNet: 10000},
		{name: "full rate", bps: 10000, price: 777, wantFee: 777, wantNet: 0},
		{name: "odd split truncates", bps: 333, price: 1001, wantFee: 33, wantNet: 968},
		{name: "no overflow on large price", bps: 250, price: 10_000_000_000_000_000_000, wantFee: 250_000_000_000_000_000, wantNet: 9_750_000_000_000_000_000},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l, err := NewFeeLedger(tt.bps)
			require.NoError(t, err)

			fee, net := l.ComputeFee(tt.price)
			assert.Equal(t, tt.wantFee, fee)
			assert.Equal(t, tt.wantNet, net)
			assert.Equal(t, tt.price, fee+net)
		})
	}
}

func TestFeeLedgerSetRateAppliesToFutureSalesOnly(t *testing.T) {
	l, err := NewFeeLedger(250)
	require.NoError(t, err)

	fee, _ := l.ComputeFee(10000)
	assert.Equal(t, uint64(250), fee)

	require.NoError(t, l.SetRate(500))
	fee, _ = l.ComputeFee(10000)
	assert.Equal(t, uint64(500), fee)

	assert.ErrorIs(t, l.SetRate(10001), ErrInvalidFeeRate)
	assert.Equal(t, uint32(500), l.Rate())
}

func TestFeeLedgerAccrueAndDrain(t *testing.T) {
	l, err := NewFeeLedger(250)
	require.NoError(t, err)

	l.Accrue(100)
	l.Accrue(50)
	assert.Equal(t, uint64(150), l.Accrued())

	assert.Equal(t, uint64(150), l.Drain())
	assert.Equal(t, uint64(0), l.Accrued())
	assert.Equal(t, uint64(0), l.Drain())
}
