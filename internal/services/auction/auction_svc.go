package auction

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"vehicleauction/internal/events"
)

const (
	redisEndTimerKeyPrefix = "auc_end:"
	redisViewKeyPrefix     = "auc_views:"
	redisViewDirtySet      = "auc_views:dirty"

	// Two concurrent bids on one auction serialize on the row lock; the
	// loser re-reads and re-validates. A handful of attempts is plenty.
	maxBidAttempts = 3
)

type CreateAuctionParams struct {
	VehicleID         uuid.UUID
	SellerID          uuid.UUID
	StartingPrice     decimal.Decimal
	ReservePrice      *decimal.Decimal
	MinBidIncrement   decimal.Decimal
	StartTime         time.Time
	EndTime           time.Time
	AutoExtendMinutes int
}

type SweepResult struct {
	Started int `json:"started"`
	Ended   int `json:"ended"`
}

type IAuctionService interface {
	CreateAuction(ctx context.Context, p CreateAuctionParams) (*Auction, error)
	PlaceBid(ctx context.Context, auctionID, bidderID uuid.UUID, amount decimal.Decimal, isAutomatic bool, maxAmount *decimal.Decimal) (*Bid, error)
	GetAuctionSnapshot(ctx context.Context, id uuid.UUID) (*Auction, error)
	ListAuctions(ctx context.Context, status string, limit, offset int) ([]Auction, error)
	BidHistory(ctx context.Context, auctionID uuid.UUID) ([]Bid, error)
	Watch(ctx context.Context, auctionID, userID uuid.UUID) error
	Unwatch(ctx context.Context, auctionID, userID uuid.UUID) error
	CancelAuction(ctx context.Context, auctionID, requesterID uuid.UUID) error
	RunStatusSweep(ctx context.Context) (SweepResult, error)
	FinalizeExpired(ctx context.Context, auctionID uuid.UUID) error
}

type auctionService struct {
	db     *sql.DB
	rdc    *redis.Client
	events *events.Publisher
	now    func() time.Time
}

func NewAuctionService(db *sql.DB, rdc *redis.Client, pub *events.Publisher) IAuctionService {
	return &auctionService{
		db:     db,
		rdc:    rdc,
		events: pub,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

const auctionColumns = `id, vehicle_id, seller_id, starting_price, current_price,
       reserve_price, min_bid_increment, start_time, end_time, extended_end_time,
       auto_extend_minutes, status, is_active, highest_bidder_id, total_bids,
       view_count, watchlist_count, created_at, updated_at`

// ─────────────────────────────── CreateAuction ──────────────────────────────

func (svc *auctionService) CreateAuction(ctx context.Context, p CreateAuctionParams) (*Auction, error) {
	now := svc.now()

	if !p.StartingPrice.IsPositive() {
		return nil, errInvalidArgument("starting price must be positive")
	}
	if !p.MinBidIncrement.IsPositive() {
		return nil, errInvalidArgument("min bid increment must be positive")
	}
	if !p.EndTime.After(p.StartTime) {
		return nil, errInvalidArgument("end time must be after start time")
	}
	if !p.EndTime.After(now) {
		return nil, errInvalidArgument("end time must be in the future")
	}
	if p.ReservePrice != nil && p.ReservePrice.LessThan(p.StartingPrice) {
		return nil, errInvalidArgument("reserve price below starting price")
	}
	if p.AutoExtendMinutes < 0 {
		return nil, errInvalidArgument("auto extend minutes must not be negative")
	}

	// At most one non-terminal auction per vehicle. The partial unique
	// index catches the race between this check and the insert.
	var listed bool
	err := svc.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM auctions
		                 WHERE vehicle_id = $1 AND status NOT IN ('ENDED','CANCELLED'))`,
		p.VehicleID).Scan(&listed)
	if err != nil {
		return nil, err
	}
	if listed {
		return nil, ErrVehicleListed
	}

	a := &Auction{
		ID:                uuid.New(),
		VehicleID:         p.VehicleID,
		SellerID:          p.SellerID,
		StartingPrice:     p.StartingPrice,
		CurrentPrice:      p.StartingPrice,
		ReservePrice:      p.ReservePrice,
		MinBidIncrement:   p.MinBidIncrement,
		StartTime:         p.StartTime,
		EndTime:           p.EndTime,
		AutoExtendMinutes: p.AutoExtendMinutes,
		Status:            StatusActive,
		IsActive:          true,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if p.StartTime.After(now) {
		a.Status = StatusScheduled
		a.IsActive = false
	}

	_, err = svc.db.ExecContext(ctx,
		`INSERT INTO auctions (id, vehicle_id, seller_id, starting_price, current_price,
		                       reserve_price, min_bid_increment, start_time, end_time,
		                       auto_extend_minutes, status, is_active, created_at, updated_at)
		      VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)`,
		a.ID, a.VehicleID, a.SellerID, a.StartingPrice, a.CurrentPrice,
		nullDecimal(a.ReservePrice), a.MinBidIncrement, a.StartTime, a.EndTime,
		a.AutoExtendMinutes, a.Status, a.IsActive, a.CreatedAt, a.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrVehicleConflict
		}
		return nil, err
	}

	svc.armEndTimer(ctx, a.ID, a.EndTime)

	if a.Status == StatusActive {
		svc.emit(ctx, events.Event{
			Type:      events.TypeAuctionStarted,
			AuctionID: a.ID.String(),
			SellerID:  a.SellerID.String(),
			EndsAt:    a.EndTime.Unix(),
		})
	}
	return a, nil
}

// ───────────────────────────────── PlaceBid ─────────────────────────────────

// PlaceBid serializes against other bids on the same auction through the row
// lock on the auctions table. A transaction that loses a serialization race
// is retried a bounded number of times against re-read state; if the amount
// no longer clears the minimum it fails like any other low bid.
func (svc *auctionService) PlaceBid(ctx context.Context, auctionID, bidderID uuid.UUID,
	amount decimal.Decimal, isAutomatic bool, maxAmount *decimal.Decimal) (*Bid, error) {

	if !amount.IsPositive() {
		return nil, errInvalidArgument("bid amount must be positive")
	}
	if maxAmount != nil && maxAmount.LessThan(amount) {
		return nil, errInvalidArgument("max amount below bid amount")
	}

	var lastErr error
	for attempt := 0; attempt < maxBidAttempts; attempt++ {
		bid, d, err := svc.placeBidOnce(ctx, auctionID, bidderID, amount, isAutomatic, maxAmount)
		if err != nil {
			if isRetryableTxError(err) {
				lastErr = err
				continue
			}
			return nil, err
		}

		svc.afterBidAccepted(ctx, auctionID, bid, d)
		return bid, nil
	}

	// Retries exhausted: surface the business-shaped rejection, not the
	// concurrency error. Re-read the post-conflict price for the payload.
	zap.L().Warn("bid.retries_exhausted",
		zap.String("auction_id", auctionID.String()), zap.Error(lastErr))
	a, err := svc.fetchAuction(ctx, auctionID)
	if err != nil {
		return nil, err
	}
	return nil, errBelowMinimum(a.CurrentPrice.Add(a.MinBidIncrement))
}

func (svc *auctionService) placeBidOnce(ctx context.Context, auctionID, bidderID uuid.UUID,
	amount decimal.Decimal, isAutomatic bool, maxAmount *decimal.Decimal) (*Bid, *bidDecision, error) {

	now := svc.now()

	tx, err := svc.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, nil, err
	}
	defer tx.Rollback()

	row := tx.QueryRowContext(ctx,
		`SELECT `+auctionColumns+` FROM auctions WHERE id = $1 FOR UPDATE`, auctionID)
	a, err := scanAuction(row)
	if err != nil {
		return nil, nil, err
	}

	d, err := decideBid(a, bidderID, amount, now)
	if err != nil {
		return nil, nil, err
	}

	// Flip the previous winner first so the one-winning-bid-per-auction
	// index never sees two rows set.
	if _, err = tx.ExecContext(ctx,
		`UPDATE bids SET is_winning = false WHERE auction_id = $1 AND is_winning`,
		auctionID); err != nil {
		return nil, nil, err
	}

	bid := &Bid{
		ID:          uuid.New(),
		AuctionID:   auctionID,
		BidderID:    bidderID,
		Amount:      amount,
		MaxAmount:   maxAmount,
		IsAutomatic: isAutomatic,
		IsWinning:   true,
		PlacedAt:    now,
	}
	if _, err = tx.ExecContext(ctx,
		`INSERT INTO bids (id, auction_id, bidder_id, amount, max_amount,
		                   is_automatic, is_winning, placed_at)
		      VALUES ($1,$2,$3,$4,$5,$6,true,$7)`,
		bid.ID, bid.AuctionID, bid.BidderID, bid.Amount,
		nullDecimal(bid.MaxAmount), bid.IsAutomatic, bid.PlacedAt); err != nil {
		return nil, nil, err
	}

	status := a.Status
	extendedEnd := a.ExtendedEndTime
	if d.Extend {
		status = StatusExtended
		extendedEnd = &d.NewEndTime
	}
	if _, err = tx.ExecContext(ctx,
		`UPDATE auctions
		    SET current_price = $2, highest_bidder_id = $3, total_bids = total_bids + 1,
		        extended_end_time = $4, status = $5, updated_at = $6
		  WHERE id = $1`,
		auctionID, amount, bidderID, nullTime(extendedEnd), status, now); err != nil {
		return nil, nil, err
	}

	if err = tx.Commit(); err != nil {
		return nil, nil, err
	}
	return bid, d, nil
}

// afterBidAccepted performs the post-commit side effects: refreshing the
// end-expiry timer and emitting events. All best-effort.
func (svc *auctionService) afterBidAccepted(ctx context.Context, auctionID uuid.UUID, bid *Bid, d *bidDecision) {
	if d.Extend {
		svc.armEndTimer(ctx, auctionID, d.NewEndTime)
		svc.emit(ctx, events.Event{
			Type:      events.TypeAuctionExtended,
			AuctionID: auctionID.String(),
			EndsAt:    d.NewEndTime.Unix(),
		})
	}

	svc.emit(ctx, events.Event{
		Type:      events.TypeBidPlaced,
		AuctionID: auctionID.String(),
		UserID:    bid.BidderID.String(),
		Amount:    bid.Amount.String(),
	})
	if d.Outbid != nil {
		svc.emit(ctx, events.Event{
			Type:      events.TypeOutbid,
			AuctionID: auctionID.String(),
			UserID:    d.Outbid.String(),
			Amount:    bid.Amount.String(),
		})
	}
}

// ─────────────────────────────── Read paths ─────────────────────────────────

// GetAuctionSnapshot reads the auction row and bumps the view counter in
// Redis as an observable, non-transactional side effect. The counter is
// folded back into Postgres by the periodic view synchroniser.
func (svc *auctionService) GetAuctionSnapshot(ctx context.Context, id uuid.UUID) (*Auction, error) {
	a, err := svc.fetchAuction(ctx, id)
	if err != nil {
		return nil, err
	}

	if svc.rdc != nil {
		pipe := svc.rdc.Pipeline()
		pipe.Incr(ctx, redisViewKeyPrefix+id.String())
		pipe.SAdd(ctx, redisViewDirtySet, id.String())
		if _, err := pipe.Exec(ctx); err != nil {
			zap.L().Debug("views.incr", zap.Error(err))
		}
	}
	return a, nil
}

func (svc *auctionService) fetchAuction(ctx context.Context, id uuid.UUID) (*Auction, error) {
	row := svc.db.QueryRowContext(ctx,
		`SELECT `+auctionColumns+` FROM auctions WHERE id = $1`, id)
	return scanAuction(row)
}

func (svc *auctionService) ListAuctions(ctx context.Context, status string, limit, offset int) ([]Auction, error) {
	if limit == 0 {
		limit = 10
	}

	var (
		rows *sql.Rows
		err  error
	)
	base := `SELECT ` + auctionColumns + ` FROM auctions`
	switch Status(status) {
	case StatusScheduled, StatusActive, StatusExtended, StatusEnded, StatusCancelled, StatusSuspended:
		rows, err = svc.db.QueryContext(ctx,
			base+` WHERE status = $1 ORDER BY end_time DESC LIMIT $2 OFFSET $3`,
			status, limit, offset)
	default:
		rows, err = svc.db.QueryContext(ctx,
			base+` ORDER BY end_time DESC LIMIT $1 OFFSET $2`, limit, offset)
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	list := make([]Auction, 0, limit)
	for rows.Next() {
		a, err := scanAuction(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, *a)
	}
	return list, rows.Err()
}

func (svc *auctionService) BidHistory(ctx context.Context, auctionID uuid.UUID) ([]Bid, error) {
	rows, err := svc.db.QueryContext(ctx,
		`SELECT id, auction_id, bidder_id, amount, max_amount, is_automatic, is_winning, placed_at
		   FROM bids WHERE auction_id = $1 ORDER BY placed_at DESC`, auctionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var bids []Bid
	for rows.Next() {
		var (
			b   Bid
			max decimal.NullDecimal
		)
		if err := rows.Scan(&b.ID, &b.AuctionID, &b.BidderID, &b.Amount,
			&max, &b.IsAutomatic, &b.IsWinning, &b.PlacedAt); err != nil {
			return nil, err
		}
		if max.Valid {
			b.MaxAmount = &max.Decimal
		}
		bids = append(bids, b)
	}
	return bids, rows.Err()
}

// ─────────────────────────────── Watchlist ──────────────────────────────────

func (svc *auctionService) Watch(ctx context.Context, auctionID, userID uuid.UUID) error {
	tx, err := svc.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err = tx.ExecContext(ctx,
		`INSERT INTO watchlist (auction_id, user_id) VALUES ($1, $2)`,
		auctionID, userID); err != nil {
		if isUniqueViolation(err) {
			return ErrAlreadyWatching
		}
		if isForeignKeyViolation(err) {
			return ErrAuctionNotFound
		}
		return err
	}

	if _, err = tx.ExecContext(ctx,
		`UPDATE auctions SET watchlist_count = watchlist_count + 1 WHERE id = $1`,
		auctionID); err != nil {
		return err
	}
	return tx.Commit()
}

func (svc *auctionService) Unwatch(ctx context.Context, auctionID, userID uuid.UUID) error {
	tx, err := svc.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		`DELETE FROM watchlist WHERE auction_id = $1 AND user_id = $2`, auctionID, userID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotWatching
	}

	if _, err = tx.ExecContext(ctx,
		`UPDATE auctions SET watchlist_count = watchlist_count - 1 WHERE id = $1`,
		auctionID); err != nil {
		return err
	}
	return tx.Commit()
}

// ──────────────────────────────── Cancel ────────────────────────────────────

func (svc *auctionService) CancelAuction(ctx context.Context, auctionID, requesterID uuid.UUID) error {
	now := svc.now()

	tx, err := svc.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var (
		sellerID uuid.UUID
		status   Status
	)
	err = tx.QueryRowContext(ctx,
		`SELECT seller_id, status FROM auctions WHERE id = $1 FOR UPDATE`, auctionID).
		Scan(&sellerID, &status)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrAuctionNotFound
	}
	if err != nil {
		return err
	}
	if requesterID != sellerID {
		return ErrNotSeller
	}
	if status.Terminal() {
		return ErrAuctionTerminal
	}

	if _, err = tx.ExecContext(ctx,
		`UPDATE auctions SET status = $2, is_active = false, updated_at = $3 WHERE id = $1`,
		auctionID, StatusCancelled, now); err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		return err
	}

	if svc.rdc != nil {
		_ = svc.rdc.Del(ctx, redisEndTimerKeyPrefix+auctionID.String()).Err()
	}
	svc.emit(ctx, events.Event{
		Type:      events.TypeAuctionCancelled,
		AuctionID: auctionID.String(),
		SellerID:  sellerID.String(),
	})
	return nil
}

// ──────────────────────────────── helpers ───────────────────────────────────

func (svc *auctionService) emit(ctx context.Context, ev events.Event) {
	if svc.events == nil {
		return
	}
	ev.At = svc.now().Unix()
	svc.events.Publish(ctx, ev)
}

// armEndTimer sets the Redis expiry key whose expiration nudges the targeted
// close. Best-effort: the minute sweep remains authoritative.
func (svc *auctionService) armEndTimer(ctx context.Context, id uuid.UUID, end time.Time) {
	if svc.rdc == nil {
		return
	}
	ttl := end.Sub(svc.now())
	if ttl <= 0 {
		return
	}
	if err := svc.rdc.Set(ctx, redisEndTimerKeyPrefix+id.String(), 1, ttl).Err(); err != nil {
		zap.L().Debug("end_timer.set", zap.String("auction_id", id.String()), zap.Error(err))
	}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAuction(row rowScanner) (*Auction, error) {
	var (
		a        Auction
		reserve  decimal.NullDecimal
		extended sql.NullTime
		bidder   uuid.NullUUID
	)
	err := row.Scan(&a.ID, &a.VehicleID, &a.SellerID, &a.StartingPrice, &a.CurrentPrice,
		&reserve, &a.MinBidIncrement, &a.StartTime, &a.EndTime, &extended,
		&a.AutoExtendMinutes, &a.Status, &a.IsActive, &bidder, &a.TotalBids,
		&a.ViewCount, &a.WatchlistCount, &a.CreatedAt, &a.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrAuctionNotFound
	}
	if err != nil {
		return nil, err
	}
	if reserve.Valid {
		a.ReservePrice = &reserve.Decimal
	}
	if extended.Valid {
		t := extended.Time
		a.ExtendedEndTime = &t
	}
	if bidder.Valid {
		b := bidder.UUID
		a.HighestBidderID = &b
	}
	return &a, nil
}

func nullDecimal(d *decimal.Decimal) decimal.NullDecimal {
	if d == nil {
		return decimal.NullDecimal{}
	}
	return decimal.NullDecimal{Decimal: *d, Valid: true}
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func pgCode(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}
	return ""
}

func isUniqueViolation(err error) bool     { return pgCode(err) == "23505" }
func isForeignKeyViolation(err error) bool { return pgCode(err) == "23503" }

// serialization_failure / deadlock_detected
func isRetryableTxError(err error) bool {
	code := pgCode(err)
	return code == "40001" || code == "40P01"
}
