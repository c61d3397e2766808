package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Stream receives every emitted event for the external notification
// consumer; the per-auction pub/sub channel "auc:<id>:events" feeds the
// in-process websocket fan-out.
const Stream = "auction_events"

const (
	TypeBidPlaced        = "bid_placed"
	TypeOutbid           = "outbid"
	TypeAuctionWon       = "auction_won"
	TypeAuctionStarted   = "auction_started"
	TypeAuctionEnded     = "auction_ended"
	TypeAuctionExtended  = "auction_extended"
	TypeAuctionCancelled = "auction_cancelled"
)

// Event is the wire shape shared by the pub/sub channel and the stream.
// Amounts travel as exact decimal strings.
type Event struct {
	Type      string `json:"event"`
	AuctionID string `json:"auction_id"`
	UserID    string `json:"user_id,omitempty"`
	SellerID  string `json:"seller_id,omitempty"`
	Amount    string `json:"amount,omitempty"`
	EndsAt    int64  `json:"ends_at,omitempty"`
	At        int64  `json:"at"`
}

type Publisher struct {
	rdc *redis.Client
}

func NewPublisher(rdc *redis.Client) *Publisher { return &Publisher{rdc: rdc} }

// ChannelFor returns the pub/sub channel carrying events for one auction.
func ChannelFor(auctionID string) string { return "auc:" + auctionID + ":events" }

// Publish fans the event out to the auction's channel and appends it to the
// notification stream. Delivery is fire-and-forget: failures are logged and
// never surfaced to the bid path.
func (p *Publisher) Publish(ctx context.Context, ev Event) {
	if ev.At == 0 {
		ev.At = time.Now().Unix()
	}

	payload, err := json.Marshal(ev)
	if err != nil {
		zap.L().Warn("events.marshal", zap.Error(err))
		return
	}

	if err := p.rdc.Publish(ctx, ChannelFor(ev.AuctionID), payload).Err(); err != nil {
		zap.L().Warn("events.publish", zap.String("auction_id", ev.AuctionID), zap.Error(err))
	}

	err = p.rdc.XAdd(ctx, &redis.XAddArgs{
		Stream: Stream,
		Values: []any{
			"event", ev.Type,
			"aid", ev.AuctionID,
			"user", ev.UserID,
			"seller", ev.SellerID,
			"amount", ev.Amount,
			"at", ev.At,
		},
	}).Err()
	if err != nil {
		zap.L().Warn("events.xadd", zap.String("auction_id", ev.AuctionID), zap.Error(err))
	}
}
