package auction

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// bidDecision is the outcome of evaluating one bid against an auction
// snapshot. It carries everything the transaction needs to apply.
type bidDecision struct {
	Amount decimal.Decimal

	// Extend is set when the bid lands inside the anti-sniping window; the
	// auction's close moves to NewEndTime and its status becomes EXTENDED.
	Extend     bool
	NewEndTime time.Time

	// Outbid is the previously winning bidder, nil on the first bid.
	Outbid *uuid.UUID
}

// decideBid runs the acceptance preconditions in order against a locked
// auction snapshot and computes the resulting state change. It mutates
// nothing; the caller applies the decision inside the same transaction that
// produced the snapshot.
//
// The end-time boundary is exclusive: a bid at exactly the effective end
// time is still accepted.
func decideBid(a *Auction, bidderID uuid.UUID, amount decimal.Decimal, now time.Time) (*bidDecision, error) {
	if !a.Status.Biddable() {
		return nil, ErrAuctionNotActive
	}
	if now.After(a.EffectiveEndTime()) {
		return nil, ErrAuctionEnded
	}

	min := a.CurrentPrice.Add(a.MinBidIncrement)
	if amount.LessThan(min) {
		return nil, errBelowMinimum(min)
	}

	if bidderID == a.SellerID {
		return nil, ErrSellerBid
	}
	// Strict re-bid rule: the standing highest bidder may not raise their
	// own bid, regardless of amount.
	if a.HighestBidderID != nil && *a.HighestBidderID == bidderID {
		return nil, ErrAlreadyHighest
	}

	d := &bidDecision{Amount: amount, Outbid: a.HighestBidderID}

	window := time.Duration(a.AutoExtendMinutes) * time.Minute
	if window > 0 && a.EffectiveEndTime().Sub(now) < window {
		d.Extend = true
		d.NewEndTime = now.Add(window)
	}
	return d, nil
}
