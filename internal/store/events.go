package store

import (
	"context"

	"github.com/nftbay/nftbay-backend/internal/market"
	"go.uber.org/zap"
)

// EventPublisher forwards domain events onto the cache's pubsub channel and
// invalidates the cached entries the event makes stale. It satisfies
// market.EventSink.
type EventPublisher struct {
	cache  *Cache
	logger *zap.SugaredLogger
}

func NewEventPublisher(cache *Cache, logger *zap.SugaredLogger) *EventPublisher {
	return &EventPublisher{cache: cache, logger: logger}
}

func (p *EventPublisher) Publish(ctx context.Context, ev market.Event) {
	if err := p.cache.Publish(ctx, ChannelEvents, ev); err != nil {
		p.logger.Errorw("Failed to publish event", "type", ev.Type, "error", err)
	}

	switch ev.Type {
	case market.EventListingCreated, market.EventListingUpdated,
		market.EventListingRemoved, market.EventNFTSold:
		if ev.ListingID != 0 {
			if err := p.cache.InvalidateListing(ctx, ev.ListingID); err != nil {
				p.logger.Warnw("Failed to invalidate cached listing", "listingId", ev.ListingID, "error", err)
			}
		}
		// Aggregates changed; drop both snapshots rather than recompute here.
		if err := p.cache.Delete(ctx, KeyStatsLive, KeyStatsSold); err != nil {
			p.logger.Warnw("Failed to invalidate cached stats", "error", err)
		}
	case market.EventFeeUpdated:
		if err := p.cache.Delete(ctx, KeyFeeRate); err != nil {
			p.logger.Warnw("Failed to invalidate cached fee rate", "error", err)
		}
	}
}
