package auctionhandler

import (
	"time"

	"github.com/shopspring/decimal"
)

type CreateAuctionBody struct {
	VehicleID         string           `json:"vehicle_id" binding:"required,uuid" example:"8f14e45f-ceea-467f-a0f9-b1a9a4a3c356"`
	SellerID          string           `json:"seller_id"  binding:"required,uuid" example:"c9f0f895-fb98-4b92-8d2c-84b820a1a9a4"`
	StartingPrice     decimal.Decimal  `json:"starting_price"    binding:"required" example:"75000"`
	ReservePrice      *decimal.Decimal `json:"reserve_price,omitempty"             example:"80000"`
	MinBidIncrement   decimal.Decimal  `json:"min_bid_increment" binding:"required" example:"1000"`
	StartTime         time.Time        `json:"start_time" binding:"required" example:"2025-07-27T16:05:05Z"`
	EndTime           time.Time        `json:"end_time"   binding:"required" example:"2025-07-28T16:05:05Z"`
	AutoExtendMinutes int              `json:"auto_extend_minutes" example:"5"`
} // @name CreateAuctionRequest

type PlaceBidBody struct {
	BidderID    string           `json:"bidder_id" binding:"required,uuid" example:"a87ff679-a2f3-471d-9181-a67b7542122c"`
	Amount      decimal.Decimal  `json:"amount"    binding:"required"      example:"76000"`
	IsAutomatic bool             `json:"is_automatic"`
	MaxAmount   *decimal.Decimal `json:"max_amount,omitempty" example:"90000"`
} // @name PlaceBidRequest

type WatchBody struct {
	UserID string `json:"user_id" binding:"required,uuid" example:"a87ff679-a2f3-471d-9181-a67b7542122c"`
} // @name WatchRequest

type CancelAuctionBody struct {
	RequesterID string `json:"requester_id" binding:"required,uuid" example:"c9f0f895-fb98-4b92-8d2c-84b820a1a9a4"`
} // @name CancelAuctionRequest

type ErrorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind,omitempty"`
	// MinimumBid is present on below-increment bid rejections.
	MinimumBid *decimal.Decimal `json:"minimum_bid,omitempty"`
} // @name ErrorResponse

type ListAuctionsQuery struct {
	Status string `form:"status"  binding:"omitempty,oneof=SCHEDULED ACTIVE EXTENDED ENDED CANCELLED SUSPENDED"`
	Limit  int    `form:"limit,default=10"  binding:"gte=0,lte=100"`
	Offset int    `form:"offset,default=0"  binding:"gte=0"`
} // @name ListAuctionsQuery
