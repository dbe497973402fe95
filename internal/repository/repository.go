// Package repository persists the durable trail of the marketplace: every
// domain event and a queryable sale history. The in-memory engine remains the
// source of truth for live state; Postgres keeps the audit record.
package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nftbay/nftbay-backend/internal/market"
	"go.uber.org/zap"

	_ "github.com/jackc/pgx/v5/stdlib"
)

type Repository struct {
	db     *sql.DB
	logger *zap.SugaredLogger
}

// New opens a Postgres connection pool over the pgx stdlib driver.
func New(dsn string, logger *zap.SugaredLogger) (*Repository, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return &Repository{db: db, logger: logger}, nil
}

func (r *Repository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

func (r *Repository) Close() error {
	return r.db.Close()
}

// InsertEvent appends one domain event to the audit log.
func (r *Repository) InsertEvent(ctx context.Context, ev market.Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	_, err = r.db.ExecContext(ctx,
		`INSERT INTO events (id, type, listing_id, payload, occurred_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		ev.ID, string(ev.Type), ev.ListingID, payload, ev.At)
	if err != nil {
		return fmt.Errorf("insert event: %w", err)
	}
	return nil
}

// InsertSale records a completed sale in the history table.
func (r *Repository) InsertSale(ctx context.Context, ev market.Event) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO sales (listing_id, asset_contract, asset_id, seller, buyer, price, fee, sold_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		ev.ListingID, string(ev.AssetContract), ev.AssetID,
		string(ev.Seller), string(ev.Buyer), ev.Price, ev.Amount, ev.At)
	if err != nil {
		return fmt.Errorf("insert sale: %w", err)
	}
	return nil
}

// Sale is one row of the persisted sale history.
type Sale struct {
	ListingID     uint64    `json:"listingId"`
	AssetContract string    `json:"assetContract"`
	AssetID       uint64    `json:"assetId"`
	Seller        string    `json:"seller"`
	Buyer         string    `json:"buyer"`
	Price         uint64    `json:"price"`
	Fee           uint64    `json:"fee"`
	SoldAt        time.Time `json:"soldAt"`
}

// RecentSales returns the most recent sales, newest first.
func (r *Repository) RecentSales(ctx context.Context, limit int) ([]Sale, error) {
	if limit <= 0 || limit > 500 {
		limit = 50
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT listing_id, asset_contract, asset_id, seller, buyer, price, fee, sold_at
		 FROM sales ORDER BY sold_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("query sales: %w", err)
	}
	defer rows.Close()

	var out []Sale
	for rows.Next() {
		var s Sale
		if err := rows.Scan(&s.ListingID, &s.AssetContract, &s.AssetID,
			&s.Seller, &s.Buyer, &s.Price, &s.Fee, &s.SoldAt); err != nil {
			return nil, fmt.Errorf("scan sale: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// EventSink adapts the repository to market.EventSink. Persistence failures
// are logged, never propagated; the trade already committed in memory.
type EventSink struct {
	repo *Repository
}

func (r *Repository) Sink() *EventSink {
	return &EventSink{repo: r}
}

func (s *EventSink) Publish(ctx context.Context, ev market.Event) {
	if err := s.repo.InsertEvent(ctx, ev); err != nil {
		s.repo.logger.Errorw("Failed to persist event", "type", ev.Type, "eventId", ev.ID, "error", err)
	}
	if ev.Type == market.EventNFTSold {
		if err := s.repo.InsertSale(ctx, ev); err != nil {
			s.repo.logger.Errorw("Failed to persist sale", "listingId", ev.ListingID, "error", err)
		}
	}
}
