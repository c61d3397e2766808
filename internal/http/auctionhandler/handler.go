package auctionhandler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"vehicleauction/internal/services/auction"
)

type Handler struct {
	svc auction.IAuctionService
}

func New(svc auction.IAuctionService) *Handler { return &Handler{svc: svc} }

func (h *Handler) Register(r gin.IRoutes) {
	r.GET("/auctions", h.list)
	r.POST("/auctions", h.create)
	r.GET("/auctions/:id", h.info)
	r.GET("/auctions/:id/bids", h.bids)
	r.POST("/auctions/:id/bids", h.bid)
	r.POST("/auctions/:id/watch", h.watch)
	r.DELETE("/auctions/:id/watch", h.unwatch)
	r.POST("/auctions/:id/cancel", h.cancel)
	r.POST("/admin/status-sweep", h.sweep)
}

// @Summary		Create an auction
// @Description	Lists a vehicle for auction. The auction starts immediately when start_time is not in the future.
// @Tags			Auctions
// @Param			body	body		CreateAuctionBody	true	"Auction payload"
// @Success		201		{object}	auction.Auction
// @Failure		400		{object}	ErrorResponse
// @Failure		409		{object}	ErrorResponse
// @Router			/auctions [post]
func (h *Handler) create(ginCtx *gin.Context) {
	var body CreateAuctionBody
	if err := ginCtx.ShouldBindJSON(&body); err != nil {
		ginCtx.JSON(http.StatusBadRequest, &ErrorResponse{Error: err.Error()})
		return
	}

	a, err := h.svc.CreateAuction(ginCtx.Request.Context(), auction.CreateAuctionParams{
		VehicleID:         uuid.MustParse(body.VehicleID),
		SellerID:          uuid.MustParse(body.SellerID),
		StartingPrice:     body.StartingPrice,
		ReservePrice:      body.ReservePrice,
		MinBidIncrement:   body.MinBidIncrement,
		StartTime:         body.StartTime.UTC(),
		EndTime:           body.EndTime.UTC(),
		AutoExtendMinutes: body.AutoExtendMinutes,
	})
	if err != nil {
		respondError(ginCtx, err)
		return
	}
	ginCtx.JSON(http.StatusCreated, a)
}

// @Summary		Get auction snapshot
// @Description	Returns the auction's current state. Viewing bumps the view counter (best effort).
// @Tags			Auctions
// @Param			id	path		string	true	"Auction ID"
// @Success		200	{object}	auction.Auction
// @Failure		404	{object}	ErrorResponse
// @Router			/auctions/{id} [get]
func (h *Handler) info(ginCtx *gin.Context) {
	id, ok := pathID(ginCtx)
	if !ok {
		return
	}
	a, err := h.svc.GetAuctionSnapshot(ginCtx.Request.Context(), id)
	if err != nil {
		respondError(ginCtx, err)
		return
	}
	ginCtx.JSON(http.StatusOK, a)
}

// @Summary		List auctions
// @Description	Retrieves a paginated list of auctions, optionally filtered by status.
// @Tags			Auctions
// @Param			status	query		string	false	"Status filter"			Enums(SCHEDULED,ACTIVE,EXTENDED,ENDED,CANCELLED,SUSPENDED)
// @Param			limit	query		int		false	"Max results (0-100)"	minimum(0)	maximum(100)	default(10)
// @Param			offset	query		int		false	"Offset for pagination"	minimum(0)	default(0)
// @Success		200		{array}		auction.Auction
// @Failure		400		{object}	ErrorResponse
// @Router			/auctions [get]
func (h *Handler) list(ginCtx *gin.Context) {
	var q ListAuctionsQuery
	if err := ginCtx.ShouldBindQuery(&q); err != nil {
		ginCtx.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		return
	}
	out, err := h.svc.ListAuctions(ginCtx.Request.Context(), q.Status, q.Limit, q.Offset)
	if err != nil {
		respondError(ginCtx, err)
		return
	}
	ginCtx.JSON(http.StatusOK, out)
}

// @Summary		Bid history
// @Description	Returns the auction's accepted bids, newest first.
// @Tags			Bids
// @Param			id	path		string	true	"Auction ID"
// @Success		200	{array}		auction.Bid
// @Failure		404	{object}	ErrorResponse
// @Router			/auctions/{id}/bids [get]
func (h *Handler) bids(ginCtx *gin.Context) {
	id, ok := pathID(ginCtx)
	if !ok {
		return
	}
	out, err := h.svc.BidHistory(ginCtx.Request.Context(), id)
	if err != nil {
		respondError(ginCtx, err)
		return
	}
	ginCtx.JSON(http.StatusOK, out)
}

// @Summary		Place a bid
// @Description	Places a bid on an active auction. Rejections carry the business rule that failed; below-increment rejections include the current minimum.
// @Tags			Bids
// @Param			id		path		string			true	"Auction ID"
// @Param			body	body		PlaceBidBody	true	"Bid payload"
// @Success		201		{object}	auction.Bid
// @Failure		400		{object}	ErrorResponse
// @Failure		403		{object}	ErrorResponse
// @Failure		404		{object}	ErrorResponse
// @Failure		409		{object}	ErrorResponse
// @Router			/auctions/{id}/bids [post]
func (h *Handler) bid(ginCtx *gin.Context) {
	id, ok := pathID(ginCtx)
	if !ok {
		return
	}
	var body PlaceBidBody
	if err := ginCtx.ShouldBindJSON(&body); err != nil {
		ginCtx.JSON(http.StatusBadRequest, &ErrorResponse{Error: err.Error()})
		return
	}

	b, err := h.svc.PlaceBid(ginCtx.Request.Context(), id,
		uuid.MustParse(body.BidderID), body.Amount, body.IsAutomatic, body.MaxAmount)
	if err != nil {
		respondError(ginCtx, err)
		return
	}
	ginCtx.JSON(http.StatusCreated, b)
}

// @Summary		Watch an auction
// @Tags			Watchlist
// @Param			id		path	string		true	"Auction ID"
// @Param			body	body	WatchBody	true	"Watcher"
// @Success		204
// @Failure		404	{object}	ErrorResponse
// @Failure		409	{object}	ErrorResponse
// @Router			/auctions/{id}/watch [post]
func (h *Handler) watch(ginCtx *gin.Context) {
	id, ok := pathID(ginCtx)
	if !ok {
		return
	}
	var body WatchBody
	if err := ginCtx.ShouldBindJSON(&body); err != nil {
		ginCtx.JSON(http.StatusBadRequest, &ErrorResponse{Error: err.Error()})
		return
	}
	if err := h.svc.Watch(ginCtx.Request.Context(), id, uuid.MustParse(body.UserID)); err != nil {
		respondError(ginCtx, err)
		return
	}
	ginCtx.Status(http.StatusNoContent)
}

// @Summary		Unwatch an auction
// @Tags			Watchlist
// @Param			id		path	string		true	"Auction ID"
// @Param			body	body	WatchBody	true	"Watcher"
// @Success		204
// @Failure		404	{object}	ErrorResponse
// @Router			/auctions/{id}/watch [delete]
func (h *Handler) unwatch(ginCtx *gin.Context) {
	id, ok := pathID(ginCtx)
	if !ok {
		return
	}
	var body WatchBody
	if err := ginCtx.ShouldBindJSON(&body); err != nil {
		ginCtx.JSON(http.StatusBadRequest, &ErrorResponse{Error: err.Error()})
		return
	}
	if err := h.svc.Unwatch(ginCtx.Request.Context(), id, uuid.MustParse(body.UserID)); err != nil {
		respondError(ginCtx, err)
		return
	}
	ginCtx.Status(http.StatusNoContent)
}

// @Summary		Cancel an auction
// @Description	Seller cancels a non-terminal auction; no further bids are accepted.
// @Tags			Auctions
// @Param			id		path	string				true	"Auction ID"
// @Param			body	body	CancelAuctionBody	true	"Requester"
// @Success		202
// @Failure		403	{object}	ErrorResponse
// @Failure		404	{object}	ErrorResponse
// @Failure		409	{object}	ErrorResponse
// @Router			/auctions/{id}/cancel [post]
func (h *Handler) cancel(ginCtx *gin.Context) {
	id, ok := pathID(ginCtx)
	if !ok {
		return
	}
	var body CancelAuctionBody
	if err := ginCtx.ShouldBindJSON(&body); err != nil {
		ginCtx.JSON(http.StatusBadRequest, &ErrorResponse{Error: err.Error()})
		return
	}
	if err := h.svc.CancelAuction(ginCtx.Request.Context(), id, uuid.MustParse(body.RequesterID)); err != nil {
		respondError(ginCtx, err)
		return
	}
	ginCtx.Status(http.StatusAccepted)
}

// @Summary		Run the status sweep
// @Description	Manually triggers the SCHEDULED→ACTIVE and ACTIVE/EXTENDED→ENDED bulk transitions. Idempotent; also runs every minute on a timer.
// @Tags			Admin
// @Success		200	{object}	auction.SweepResult
// @Failure		500	{object}	ErrorResponse
// @Router			/admin/status-sweep [post]
func (h *Handler) sweep(ginCtx *gin.Context) {
	res, err := h.svc.RunStatusSweep(ginCtx.Request.Context())
	if err != nil {
		respondError(ginCtx, err)
		return
	}
	ginCtx.JSON(http.StatusOK, res)
}

// ──────────────────────────────── helpers ───────────────────────────────────

func pathID(ginCtx *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(ginCtx.Param("id"))
	if err != nil {
		ginCtx.JSON(http.StatusBadRequest, &ErrorResponse{Error: "invalid auction id"})
		return uuid.Nil, false
	}
	return id, true
}

// respondError maps the business error taxonomy onto HTTP status codes.
func respondError(ginCtx *gin.Context, err error) {
	var e *auction.Error
	if !errors.As(err, &e) {
		ginCtx.JSON(http.StatusInternalServerError, &ErrorResponse{Error: "internal error"})
		return
	}

	body := &ErrorResponse{Error: e.Msg, Kind: string(e.Kind), MinimumBid: e.MinimumBid}
	switch e.Kind {
	case auction.KindNotFound:
		ginCtx.JSON(http.StatusNotFound, body)
	case auction.KindInvalidArgument:
		ginCtx.JSON(http.StatusBadRequest, body)
	case auction.KindForbidden:
		ginCtx.JSON(http.StatusForbidden, body)
	case auction.KindInvalidState, auction.KindConflict:
		ginCtx.JSON(http.StatusConflict, body)
	default:
		ginCtx.JSON(http.StatusInternalServerError, body)
	}
}
