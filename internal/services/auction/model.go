package auction

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Status is the lifecycle state of an auction.
type Status string

const (
	StatusScheduled Status = "SCHEDULED"
	StatusActive    Status = "ACTIVE"
	StatusExtended  Status = "EXTENDED"
	StatusEnded     Status = "ENDED"
	StatusCancelled Status = "CANCELLED"
	StatusSuspended Status = "SUSPENDED"
)

// Biddable reports whether bids may be accepted in this state.
func (s Status) Biddable() bool {
	return s == StatusActive || s == StatusExtended
}

// Terminal states accept no further transitions of any kind.
func (s Status) Terminal() bool {
	return s == StatusEnded || s == StatusCancelled
}

// Auction is the durable auction record. Pricing, winner and timing fields
// only move forward under the rules enforced by the bid engine and the
// status sweep.
type Auction struct {
	ID                uuid.UUID        `json:"id"`
	VehicleID         uuid.UUID        `json:"vehicle_id"`
	SellerID          uuid.UUID        `json:"seller_id"`
	StartingPrice     decimal.Decimal  `json:"starting_price"`
	CurrentPrice      decimal.Decimal  `json:"current_price"`
	ReservePrice      *decimal.Decimal `json:"reserve_price,omitempty"`
	MinBidIncrement   decimal.Decimal  `json:"min_bid_increment"`
	StartTime         time.Time        `json:"start_time"`
	EndTime           time.Time        `json:"end_time"`
	ExtendedEndTime   *time.Time       `json:"extended_end_time,omitempty"`
	AutoExtendMinutes int              `json:"auto_extend_minutes"`
	Status            Status           `json:"status"`
	IsActive          bool             `json:"is_active"`
	HighestBidderID   *uuid.UUID       `json:"highest_bidder_id,omitempty"`
	TotalBids         int              `json:"total_bids"`
	ViewCount         int              `json:"view_count"`
	WatchlistCount    int              `json:"watchlist_count"`
	CreatedAt         time.Time        `json:"created_at"`
	UpdatedAt         time.Time        `json:"updated_at"`
}

// EffectiveEndTime is the extended end time when anti-sniping has pushed the
// close out, otherwise the original end time.
func (a *Auction) EffectiveEndTime() time.Time {
	if a.ExtendedEndTime != nil {
		return *a.ExtendedEndTime
	}
	return a.EndTime
}

// Bid is one accepted ledger entry. At most one bid per auction carries
// IsWinning at any instant.
type Bid struct {
	ID          uuid.UUID        `json:"id"`
	AuctionID   uuid.UUID        `json:"auction_id"`
	BidderID    uuid.UUID        `json:"bidder_id"`
	Amount      decimal.Decimal  `json:"amount"`
	MaxAmount   *decimal.Decimal `json:"max_amount,omitempty"`
	IsAutomatic bool             `json:"is_automatic"`
	IsWinning   bool             `json:"is_winning"`
	PlacedAt    time.Time        `json:"placed_at"`
}
