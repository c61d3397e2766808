package ws

import (
	"encoding/json"

	"github.com/shopspring/decimal"
)

// Envelope wraps every WS frame.
type Envelope struct {
	Event string          `json:"event"`          // e.g. "auctions/bid"
	Body  json.RawMessage `json:"body,omitempty"` // arbitrary JSON object
}

// ──────────────────────────── Request / Response DTOs ─────────────────────────

// BidRequest is the body for "auctions/bid".
type BidRequest struct {
	Amount      decimal.Decimal  `json:"amount"`
	IsAutomatic bool             `json:"is_automatic"`
	MaxAmount   *decimal.Decimal `json:"max_amount,omitempty"`
}

// BidAck echoes the accepted bid back to the placing client; everyone else
// in the room learns about it through the bid_placed broadcast.
type BidAck struct {
	BidID  string          `json:"bid_id"`
	Amount decimal.Decimal `json:"amount"`
}

// ErrorBody is returned for failures.
type ErrorBody struct {
	Error string `json:"error"`
}
