package market

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/nftbay/nftbay-backend/internal/token"
)

type EventType string

const (
	EventListingCreated EventType = "LISTING_CREATED"
	EventListingUpdated EventType = "LISTING_UPDATED"
	EventListingRemoved EventType = "LISTING_REMOVED"
	EventNFTSold        EventType = "NFT_SOLD"
	EventFeeUpdated     EventType = "FEE_UPDATED"
	EventFeesWithdrawn  EventType = "FEES_WITHDRAWN"
)

// Event is the domain event emitted after each state-changing operation.
// Fields that do not apply to the event type are left zero.
type Event struct {
	ID             string        `json:"id"`
	Type           EventType     `json:"type"`
	ListingID      uint64        `json:"listingId,omitempty"`
	Seller         token.Address `json:"seller,omitempty"`
	Buyer          token.Address `json:"buyer,omitempty"`
	AssetContract  token.Address `json:"assetContract,omitempty"`
	AssetID        uint64        `json:"assetId,omitempty"`
	Price          uint64        `json:"price,omitempty"`
	FeeBasisPoints uint32        `json:"feeBasisPoints,omitempty"`
	Amount         uint64        `json:"amount,omitempty"`
	At             time.Time     `json:"at"`
}

func newEvent(typ EventType) Event {
	return Event{
		ID:   uuid.NewString(),
		Type: typ,
		At:   time.Now().UTC(),
	}
}

// EventSink receives domain events. Sinks must not call back into the engine;
// publishing happens after the operation's state is committed.
type EventSink interface {
	Publish(ctx context.Context, ev Event)
}

// MultiSink fans an event out to several sinks.
type MultiSink []EventSink

func (m MultiSink) Publish(ctx context.Context, ev Event) {
	for _, s := range m {
		s.Publish(ctx, ev)
	}
}
