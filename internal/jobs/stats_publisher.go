package jobs

import (
	"context"
	"time"

	"github.com/nftbay/nftbay-backend/internal/market"
	"github.com/nftbay/nftbay-backend/internal/store"
	"go.uber.org/zap"
)

// StatsPublisher snapshots the live and sold aggregates on an interval and
// publishes changed snapshots onto the pubsub fabric for websocket consumers.
// Unchanged snapshots are not republished. The cached stats entries belong to
// the HTTP handlers, which write them in wire form; the publisher never
// touches those keys.
type StatsPublisher struct {
	view     *market.StatisticsView
	cache    *store.Cache
	logger   *zap.SugaredLogger
	interval time.Duration

	lastLive market.Stats
	lastSold market.Stats

	cancelCtx context.CancelFunc
}

func NewStatsPublisher(view *market.StatisticsView, cache *store.Cache, interval time.Duration, logger *zap.SugaredLogger) *StatsPublisher {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	return &StatsPublisher{
		view:     view,
		cache:    cache,
		logger:   logger,
		interval: interval,
	}
}

func (p *StatsPublisher) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	p.cancelCtx = cancel

	p.logger.Infow("Starting stats publisher", "interval", p.interval)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	// Publish an initial snapshot so subscribers do not wait a full interval.
	p.publishOnce(ctx, true)

	for {
		select {
		case <-ctx.Done():
			p.logger.Infow("Stats publisher stopping due to context cancellation")
			return ctx.Err()
		case <-ticker.C:
			p.publishOnce(ctx, false)
		}
	}
}

func (p *StatsPublisher) Stop() {
	if p.cancelCtx != nil {
		p.cancelCtx()
	}
}

func (p *StatsPublisher) publishOnce(ctx context.Context, force bool) {
	live := p.view.Live()
	sold := p.view.Sold()

	if force || live != p.lastLive {
		if err := p.cache.Publish(ctx, store.KeyStatsLive, live); err != nil {
			p.logger.Warnw("Failed to publish live stats", "error", err)
		}
		p.lastLive = live
	}
	if force || sold != p.lastSold {
		if err := p.cache.Publish(ctx, store.KeyStatsSold, sold); err != nil {
			p.logger.Warnw("Failed to publish sold stats", "error", err)
		}
		p.lastSold = sold
	}
}
