package auction

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"vehicleauction/internal/events"
)

// RunStatusSweep applies the two time-driven bulk transitions:
// SCHEDULED→ACTIVE once start_time is reached, and ACTIVE/EXTENDED→ENDED once
// the effective end time has passed. Both updates are conditional and
// idempotent, so the sweep is safe to run from the timer, from the manual
// admin entry point and concurrently with in-flight bids: a bid transaction
// holding the row lock either commits first (the sweep then sees the pushed
// end time) or re-validates against the ENDED row and rejects.
func (svc *auctionService) RunStatusSweep(ctx context.Context) (SweepResult, error) {
	now := svc.now()
	var res SweepResult

	startRows, err := svc.db.QueryContext(ctx,
		`UPDATE auctions SET status = 'ACTIVE', is_active = true, updated_at = $1
		  WHERE status = 'SCHEDULED' AND start_time <= $1
		  RETURNING id, seller_id, end_time`, now)
	if err != nil {
		return res, err
	}
	started, err := svc.collectStarted(ctx, startRows)
	if err != nil {
		return res, err
	}
	res.Started = started

	endRows, err := svc.db.QueryContext(ctx,
		`UPDATE auctions SET status = 'ENDED', is_active = false, updated_at = $1
		  WHERE status IN ('ACTIVE','EXTENDED')
		    AND COALESCE(extended_end_time, end_time) <= $1
		  RETURNING id, highest_bidder_id, current_price`, now)
	if err != nil {
		return res, err
	}
	ended, err := svc.collectEnded(ctx, endRows)
	if err != nil {
		return res, err
	}
	res.Ended = ended

	if res.Started > 0 || res.Ended > 0 {
		zap.L().Info("status_sweep",
			zap.Int("started", res.Started), zap.Int("ended", res.Ended))
	}
	return res, nil
}

// FinalizeExpired is the targeted variant triggered by the Redis end-timer
// expiry. It ends a single auction iff its effective end time has really
// passed, making a stale or replayed expiry event harmless.
func (svc *auctionService) FinalizeExpired(ctx context.Context, auctionID uuid.UUID) error {
	now := svc.now()

	var (
		bidder uuid.NullUUID
		price  decimal.Decimal
	)
	err := svc.db.QueryRowContext(ctx,
		`UPDATE auctions SET status = 'ENDED', is_active = false, updated_at = $2
		  WHERE id = $1 AND status IN ('ACTIVE','EXTENDED')
		    AND COALESCE(extended_end_time, end_time) <= $2
		  RETURNING highest_bidder_id, current_price`,
		auctionID, now).Scan(&bidder, &price)
	if errors.Is(err, sql.ErrNoRows) {
		return nil // already ended by the sweep, or extended past the timer
	}
	if err != nil {
		return err
	}

	svc.emitEnded(ctx, auctionID, bidder, price)
	return nil
}

func (svc *auctionService) collectStarted(ctx context.Context, rows *sql.Rows) (int, error) {
	defer rows.Close()

	n := 0
	for rows.Next() {
		var (
			id     uuid.UUID
			seller uuid.UUID
			end    time.Time
		)
		if err := rows.Scan(&id, &seller, &end); err != nil {
			return n, err
		}
		n++
		svc.emit(ctx, events.Event{
			Type:      events.TypeAuctionStarted,
			AuctionID: id.String(),
			SellerID:  seller.String(),
			EndsAt:    end.Unix(),
		})
	}
	return n, rows.Err()
}

func (svc *auctionService) collectEnded(ctx context.Context, rows *sql.Rows) (int, error) {
	defer rows.Close()

	n := 0
	for rows.Next() {
		var (
			id     uuid.UUID
			bidder uuid.NullUUID
			price  decimal.Decimal
		)
		if err := rows.Scan(&id, &bidder, &price); err != nil {
			return n, err
		}
		n++
		svc.emitEnded(ctx, id, bidder, price)
	}
	return n, rows.Err()
}

func (svc *auctionService) emitEnded(ctx context.Context, id uuid.UUID, bidder uuid.NullUUID, price decimal.Decimal) {
	svc.emit(ctx, events.Event{
		Type:      events.TypeAuctionEnded,
		AuctionID: id.String(),
		Amount:    price.String(),
	})
	if bidder.Valid {
		svc.emit(ctx, events.Event{
			Type:      events.TypeAuctionWon,
			AuctionID: id.String(),
			UserID:    bidder.UUID.String(),
			Amount:    price.String(),
		})
	}
}
