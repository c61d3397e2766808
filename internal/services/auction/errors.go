package auction

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// Kind classifies a business-rule failure. The HTTP layer maps kinds to
// status codes; callers inside the service switch on it where needed.
type Kind string

const (
	KindNotFound        Kind = "not_found"
	KindInvalidState    Kind = "invalid_state"
	KindInvalidArgument Kind = "invalid_argument"
	KindForbidden       Kind = "forbidden"
	KindConflict        Kind = "conflict"
)

// Error is a business-rule rejection. All precondition failures surface as
// one of these, never as a raw SQL or concurrency error.
type Error struct {
	Kind Kind
	Msg  string

	// MinimumBid is set on below-increment rejections so the caller can
	// re-submit without another round trip.
	MinimumBid *decimal.Decimal
}

func (e *Error) Error() string { return e.Msg }

var (
	ErrAuctionNotFound = &Error{Kind: KindNotFound, Msg: "auction not found"}
	ErrBidNotFound     = &Error{Kind: KindNotFound, Msg: "bid not found"}

	ErrAuctionNotActive = &Error{Kind: KindInvalidState, Msg: "auction not active"}
	ErrAuctionEnded     = &Error{Kind: KindInvalidState, Msg: "auction has ended"}
	ErrAuctionTerminal  = &Error{Kind: KindInvalidState, Msg: "auction already ended or cancelled"}
	ErrVehicleListed    = &Error{Kind: KindInvalidState, Msg: "vehicle already has an active auction"}

	ErrSellerBid      = &Error{Kind: KindForbidden, Msg: "seller cannot bid on own auction"}
	ErrNotSeller      = &Error{Kind: KindForbidden, Msg: "only the seller may cancel the auction"}
	ErrAlreadyHighest = &Error{Kind: KindInvalidArgument, Msg: "already highest bidder"}

	ErrAlreadyWatching = &Error{Kind: KindConflict, Msg: "auction already on watchlist"}
	ErrVehicleConflict = &Error{Kind: KindConflict, Msg: "vehicle already auctioned"}
	ErrNotWatching     = &Error{Kind: KindNotFound, Msg: "auction not on watchlist"}
)

// errBelowMinimum builds the InvalidArgument rejection for a bid under the
// current minimum, carrying the computed minimum in the payload.
func errBelowMinimum(min decimal.Decimal) *Error {
	return &Error{
		Kind:       KindInvalidArgument,
		Msg:        fmt.Sprintf("minimum bid amount is %s", min.String()),
		MinimumBid: &min,
	}
}

func errInvalidArgument(msg string) *Error {
	return &Error{Kind: KindInvalidArgument, Msg: msg}
}

// KindOf extracts the business kind from err, or "" for non-business errors.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}
