package market

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatisticsViewEmptyStore(t *testing.T) {
	v := NewStatisticsView(NewListingStore())

	assert.Equal(t, Stats{}, v.Live())
	assert.Equal(t, Stats{}, v.Sold())
	assert.Empty(t, v.All(0))
}

func TestStatisticsViewAggregates(t *testing.T) {
	s := NewListingStore()
	v := NewStatisticsView(s)

	idA, err := s.Insert("0xcats", 1, "0xalice", 100)
	require.NoError(t, err)
	idB, err := s.Insert("0xcats", 2, "0xbob", 300)
	require.NoError(t, err)

	assert.Equal(t, Stats{TotalVolume: 400, AveragePrice: 200, Count: 2}, v.Live())
	assert.Equal(t, Stats{}, v.Sold())

	require.NoError(t, s.Close(idA, StatusSold))
	assert.Equal(t, Stats{TotalVolume: 300, AveragePrice: 300, Count: 1}, v.Live())
	assert.Equal(t, Stats{TotalVolume: 100, AveragePrice: 100, Count: 1}, v.Sold())

	// Removed listings leave both views.
	require.NoError(t, s.Close(idB, StatusRemoved))
	assert.Equal(t, Stats{}, v.Live())
	assert.Equal(t, Stats{TotalVolume: 100, AveragePrice: 100, Count: 1}, v.Sold())
}

func TestStatisticsViewAveragePriceTruncates(t *testing.T) {
	s := NewListingStore()
	v := NewStatisticsView(s)

	s.Insert("0xcats", 1, "0xalice", 100)
	s.Insert("0xcats", 2, "0xalice", 101)

	assert.Equal(t, uint64(100), v.Live().AveragePrice)
}

func TestStatisticsViewFilters(t *testing.T) {
	s := NewListingStore()
	v := NewStatisticsView(s)

	s.Insert("0xcats", 1, "0xalice", 100)
	id, _ := s.Insert("0xcats", 2, "0xalice", 200)
	s.Insert("0xdogs", 3, "0xbob", 300)
	require.NoError(t, s.Close(id, StatusSold))

	assert.Len(t, v.BySeller("0xalice", 0), 2)
	assert.Len(t, v.BySeller("0xalice", StatusActive), 1)
	assert.Len(t, v.BySeller("0xalice", StatusSold), 1)
	assert.Len(t, v.ByAsset("0xcats", StatusActive), 1)
	assert.Len(t, v.All(StatusActive), 2)
	assert.Len(t, v.All(0), 3)

	got, err := v.Listing(id)
	require.NoError(t, err)
	assert.Equal(t, StatusSold, got.Status)
	_, err = v.Listing(999)
	assert.ErrorIs(t, err, ErrNotFound)
}
