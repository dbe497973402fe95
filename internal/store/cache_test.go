package store

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/nftbay/nftbay-backend/internal/market"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestMemoryCacheRoundTrip(t *testing.T) {
	cache := NewMemoryCache(zap.NewNop().Sugar(), nil)
	defer cache.Close()
	ctx := context.Background()

	require.True(t, cache.IsInMemoryMode())
	require.NoError(t, cache.Ping(ctx))

	stats := market.Stats{TotalVolume: 400, AveragePrice: 200, Count: 2}
	require.NoError(t, cache.SetLiveStats(ctx, stats))

	var got market.Stats
	require.NoError(t, cache.GetLiveStats(ctx, &got))
	assert.Equal(t, stats, got)

	var missing market.Stats
	assert.ErrorIs(t, cache.GetSoldStats(ctx, &missing), ErrCacheMiss)

	exists, err := cache.Exists(ctx, KeyStatsLive)
	require.NoError(t, err)
	assert.True(t, exists)

	require.NoError(t, cache.Delete(ctx, KeyStatsLive))
	assert.ErrorIs(t, cache.GetLiveStats(ctx, &got), ErrCacheMiss)
}

func TestMemoryCacheListingKeys(t *testing.T) {
	cache := NewMemoryCache(zap.NewNop().Sugar(), nil)
	defer cache.Close()
	ctx := context.Background()

	listing := market.Listing{ID: 7, Seller: "0xalice", Price: 100, Status: market.StatusActive}
	require.NoError(t, cache.SetListing(ctx, 7, listing))

	var got market.Listing
	require.NoError(t, cache.GetListing(ctx, 7, &got))
	assert.Equal(t, listing.ID, got.ID)
	assert.Equal(t, listing.Price, got.Price)

	require.NoError(t, cache.InvalidateListing(ctx, 7))
	assert.ErrorIs(t, cache.GetListing(ctx, 7, &got), ErrCacheMiss)
}

func TestMemoryCachePubSub(t *testing.T) {
	cache := NewMemoryCache(zap.NewNop().Sugar(), nil)
	defer cache.Close()
	ctx := context.Background()

	sub := cache.Subscribe(ctx, ChannelEvents)
	require.NotNil(t, sub)
	defer sub.Close()

	ev := market.Event{ID: "ev-1", Type: market.EventNFTSold, ListingID: 3, Price: 10000}
	require.NoError(t, cache.Publish(ctx, ChannelEvents, ev))

	select {
	case msg := <-sub.Channel():
		require.NotNil(t, msg)
		assert.Equal(t, ChannelEvents, msg.Channel)

		var got market.Event
		require.NoError(t, json.Unmarshal([]byte(msg.Payload), &got))
		assert.Equal(t, market.EventNFTSold, got.Type)
		assert.Equal(t, uint64(3), got.ListingID)
	case <-time.After(1 * time.Second):
		t.Fatal("Timeout waiting for pubsub message")
	}
}

func TestPubSubHubSubscriberTeardown(t *testing.T) {
	hub := NewPubSubHub()
	ctx, cancel := context.WithCancel(context.Background())

	sub := hub.Subscribe(ctx, "ch")
	hub.Publish("ch", "first")

	select {
	case msg := <-sub.Channel():
		assert.Equal(t, "first", msg.Payload)
	case <-time.After(1 * time.Second):
		t.Fatal("Timeout waiting for message")
	}

	cancel()
	// The message channel closes once the context teardown runs.
	select {
	case _, open := <-sub.Channel():
		assert.False(t, open)
	case <-time.After(1 * time.Second):
		t.Fatal("Timeout waiting for subscription close")
	}
}

func TestEventPublisherInvalidatesCachedViews(t *testing.T) {
	cache := NewMemoryCache(zap.NewNop().Sugar(), nil)
	defer cache.Close()
	ctx := context.Background()

	require.NoError(t, cache.SetLiveStats(ctx, market.Stats{Count: 1}))
	require.NoError(t, cache.SetListing(ctx, 5, market.Listing{ID: 5}))

	sub := cache.Subscribe(ctx, ChannelEvents)
	defer sub.Close()

	pub := NewEventPublisher(cache, zap.NewNop().Sugar())
	pub.Publish(ctx, market.Event{ID: "ev-2", Type: market.EventNFTSold, ListingID: 5})

	var stats market.Stats
	assert.ErrorIs(t, cache.GetLiveStats(ctx, &stats), ErrCacheMiss)
	var listing market.Listing
	assert.ErrorIs(t, cache.GetListing(ctx, 5, &listing), ErrCacheMiss)

	select {
	case msg := <-sub.Channel():
		var got market.Event
		require.NoError(t, json.Unmarshal([]byte(msg.Payload), &got))
		assert.Equal(t, market.EventNFTSold, got.Type)
	case <-time.After(1 * time.Second):
		t.Fatal("Timeout waiting for event")
	}
}
