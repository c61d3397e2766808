package auction

import (
	"context"
	"database/sql/driver"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var auctionCols = []string{
	"id", "vehicle_id", "seller_id", "starting_price", "current_price",
	"reserve_price", "min_bid_increment", "start_time", "end_time", "extended_end_time",
	"auto_extend_minutes", "status", "is_active", "highest_bidder_id", "total_bids",
	"view_count", "watchlist_count", "created_at", "updated_at",
}

func newTestService(t *testing.T) (*auctionService, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	svc := NewAuctionService(db, nil, nil).(*auctionService)
	svc.now = func() time.Time { return testNow }
	return svc, mock
}

func auctionRow(a *Auction) *sqlmock.Rows {
	var reserve, extended, bidder driver.Value
	if a.ReservePrice != nil {
		reserve = a.ReservePrice.String()
	}
	if a.ExtendedEndTime != nil {
		extended = *a.ExtendedEndTime
	}
	if a.HighestBidderID != nil {
		bidder = a.HighestBidderID.String()
	}
	return sqlmock.NewRows(auctionCols).AddRow(
		a.ID.String(), a.VehicleID.String(), a.SellerID.String(),
		a.StartingPrice.String(), a.CurrentPrice.String(),
		reserve, a.MinBidIncrement.String(), a.StartTime, a.EndTime, extended,
		a.AutoExtendMinutes, string(a.Status), a.IsActive, bidder, a.TotalBids,
		a.ViewCount, a.WatchlistCount, testNow, testNow,
	)
}

const lockQuery = `FROM auctions WHERE id = \$1 FOR UPDATE`

func expectBidWrites(mock sqlmock.Sqlmock, status Status) {
	mock.ExpectExec(`UPDATE bids SET is_winning = false`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`INSERT INTO bids`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`SET current_price = \$2`).
		WithArgs(sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(),
			sqlmock.AnyArg(), string(status), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
}

// ───────────────────────────────── PlaceBid ─────────────────────────────────

func TestPlaceBid_Accepted(t *testing.T) {
	svc, mock := newTestService(t)
	a := testAuction()

	mock.ExpectBegin()
	mock.ExpectQuery(lockQuery).WithArgs(a.ID).WillReturnRows(auctionRow(a))
	expectBidWrites(mock, StatusActive)
	mock.ExpectCommit()

	bid, err := svc.PlaceBid(context.Background(), a.ID, bidderOne, dec("76000"), false, nil)
	require.NoError(t, err)

	assert.Equal(t, a.ID, bid.AuctionID)
	assert.Equal(t, bidderOne, bid.BidderID)
	assert.True(t, bid.Amount.Equal(dec("76000")))
	assert.True(t, bid.IsWinning)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPlaceBid_LateBidMarksExtended(t *testing.T) {
	svc, mock := newTestService(t)
	// 1 minute left: inside the 5-minute window
	a := testAuction(func(a *Auction) { a.EndTime = testNow.Add(time.Minute) })

	mock.ExpectBegin()
	mock.ExpectQuery(lockQuery).WithArgs(a.ID).WillReturnRows(auctionRow(a))
	expectBidWrites(mock, StatusExtended)
	mock.ExpectCommit()

	_, err := svc.PlaceBid(context.Background(), a.ID, bidderOne, dec("80000"), false, nil)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPlaceBid_AuctionNotFound(t *testing.T) {
	svc, mock := newTestService(t)
	a := testAuction()

	mock.ExpectBegin()
	mock.ExpectQuery(lockQuery).WithArgs(a.ID).WillReturnRows(sqlmock.NewRows(auctionCols))
	mock.ExpectRollback()

	_, err := svc.PlaceBid(context.Background(), a.ID, bidderOne, dec("76000"), false, nil)
	assert.ErrorIs(t, err, ErrAuctionNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

// A rejected bid must leave no trace: the transaction reads, fails the
// precondition and rolls back without touching the ledger.
func TestPlaceBid_BelowIncrementWritesNothing(t *testing.T) {
	svc, mock := newTestService(t)
	a := testAuction()

	mock.ExpectBegin()
	mock.ExpectQuery(lockQuery).WithArgs(a.ID).WillReturnRows(auctionRow(a))
	mock.ExpectRollback()

	_, err := svc.PlaceBid(context.Background(), a.ID, bidderOne, dec("75500"), false, nil)
	var e *Error
	require.ErrorAs(t, err, &e)
	assert.Equal(t, KindInvalidArgument, e.Kind)
	require.NotNil(t, e.MinimumBid)
	assert.True(t, e.MinimumBid.Equal(dec("76000")))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPlaceBid_SellerForbidden(t *testing.T) {
	svc, mock := newTestService(t)
	a := testAuction()

	mock.ExpectBegin()
	mock.ExpectQuery(lockQuery).WithArgs(a.ID).WillReturnRows(auctionRow(a))
	mock.ExpectRollback()

	_, err := svc.PlaceBid(context.Background(), a.ID, sellerID, dec("76000"), false, nil)
	assert.ErrorIs(t, err, ErrSellerBid)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPlaceBid_EndedAuction(t *testing.T) {
	svc, mock := newTestService(t)
	a := testAuction(func(a *Auction) {
		a.Status = StatusEnded
		a.IsActive = false
	})

	mock.ExpectBegin()
	mock.ExpectQuery(lockQuery).WithArgs(a.ID).WillReturnRows(auctionRow(a))
	mock.ExpectRollback()

	_, err := svc.PlaceBid(context.Background(), a.ID, bidderOne, dec("76000"), false, nil)
	assert.ErrorIs(t, err, ErrAuctionNotActive)
}

func TestPlaceBid_PastEffectiveEnd(t *testing.T) {
	svc, mock := newTestService(t)
	// still marked ACTIVE but the clock has passed end_time (sweep hasn't run)
	a := testAuction(func(a *Auction) { a.EndTime = testNow.Add(-time.Second) })

	mock.ExpectBegin()
	mock.ExpectQuery(lockQuery).WithArgs(a.ID).WillReturnRows(auctionRow(a))
	mock.ExpectRollback()

	_, err := svc.PlaceBid(context.Background(), a.ID, bidderOne, dec("76000"), false, nil)
	assert.ErrorIs(t, err, ErrAuctionEnded)
}

func TestPlaceBid_RetriesSerializationConflict(t *testing.T) {
	svc, mock := newTestService(t)
	a := testAuction()

	// first attempt loses the race at commit
	mock.ExpectBegin()
	mock.ExpectQuery(lockQuery).WithArgs(a.ID).WillReturnRows(auctionRow(a))
	expectBidWrites(mock, StatusActive)
	mock.ExpectCommit().WillReturnError(&pgconn.PgError{Code: "40001"})

	// second attempt re-reads and succeeds
	mock.ExpectBegin()
	mock.ExpectQuery(lockQuery).WithArgs(a.ID).WillReturnRows(auctionRow(a))
	expectBidWrites(mock, StatusActive)
	mock.ExpectCommit()

	bid, err := svc.PlaceBid(context.Background(), a.ID, bidderOne, dec("76000"), false, nil)
	require.NoError(t, err)
	assert.True(t, bid.Amount.Equal(dec("76000")))
	assert.NoError(t, mock.ExpectationsWereMet())
}

// When every attempt conflicts, the caller sees the business-shaped
// rejection carrying the fresh minimum, never a raw serialization error.
func TestPlaceBid_ConflictSurfacesAsMinimumBid(t *testing.T) {
	svc, mock := newTestService(t)
	a := testAuction()

	for i := 0; i < maxBidAttempts; i++ {
		mock.ExpectBegin()
		mock.ExpectQuery(lockQuery).WithArgs(a.ID).WillReturnRows(auctionRow(a))
		expectBidWrites(mock, StatusActive)
		mock.ExpectCommit().WillReturnError(&pgconn.PgError{Code: "40001"})
	}
	raced := testAuction(func(a *Auction) {
		a.CurrentPrice = dec("76000")
		a.HighestBidderID = &bidderTwo
	})
	mock.ExpectQuery(`FROM auctions WHERE id = \$1`).WithArgs(a.ID).WillReturnRows(auctionRow(raced))

	_, err := svc.PlaceBid(context.Background(), a.ID, bidderOne, dec("76000"), false, nil)
	var e *Error
	require.ErrorAs(t, err, &e)
	assert.Equal(t, KindInvalidArgument, e.Kind)
	require.NotNil(t, e.MinimumBid)
	assert.True(t, e.MinimumBid.Equal(dec("77000")))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPlaceBid_RejectsNonPositiveAmount(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.PlaceBid(context.Background(), testAuction().ID, bidderOne, dec("0"), false, nil)
	assert.Equal(t, KindInvalidArgument, KindOf(err))
}

func TestPlaceBid_RejectsMaxBelowAmount(t *testing.T) {
	svc, _ := newTestService(t)
	max := dec("75000")

	_, err := svc.PlaceBid(context.Background(), testAuction().ID, bidderOne, dec("76000"), true, &max)
	assert.Equal(t, KindInvalidArgument, KindOf(err))
}

// ─────────────────────────────── CreateAuction ──────────────────────────────

func validCreateParams() CreateAuctionParams {
	return CreateAuctionParams{
		VehicleID:         vehicleOne,
		SellerID:          sellerID,
		StartingPrice:     dec("75000"),
		MinBidIncrement:   dec("1000"),
		StartTime:         testNow.Add(time.Hour),
		EndTime:           testNow.Add(25 * time.Hour),
		AutoExtendMinutes: 5,
	}
}

func TestCreateAuction_ScheduledWhenStartInFuture(t *testing.T) {
	svc, mock := newTestService(t)

	mock.ExpectQuery(`SELECT EXISTS`).WithArgs(vehicleOne).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))
	mock.ExpectExec(`INSERT INTO auctions`).
		WillReturnResult(sqlmock.NewResult(0, 1))

	a, err := svc.CreateAuction(context.Background(), validCreateParams())
	require.NoError(t, err)

	assert.Equal(t, StatusScheduled, a.Status)
	assert.False(t, a.IsActive)
	assert.True(t, a.CurrentPrice.Equal(a.StartingPrice))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateAuction_ActiveWhenStartReached(t *testing.T) {
	svc, mock := newTestService(t)

	mock.ExpectQuery(`SELECT EXISTS`).WithArgs(vehicleOne).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))
	mock.ExpectExec(`INSERT INTO auctions`).
		WillReturnResult(sqlmock.NewResult(0, 1))

	p := validCreateParams()
	p.StartTime = testNow.Add(-time.Minute)
	a, err := svc.CreateAuction(context.Background(), p)
	require.NoError(t, err)

	assert.Equal(t, StatusActive, a.Status)
	assert.True(t, a.IsActive)
}

func TestCreateAuction_Validation(t *testing.T) {
	svc, _ := newTestService(t)
	reserve := dec("70000")

	cases := map[string]func(*CreateAuctionParams){
		"zero starting price":     func(p *CreateAuctionParams) { p.StartingPrice = dec("0") },
		"zero increment":          func(p *CreateAuctionParams) { p.MinBidIncrement = dec("0") },
		"end before start":        func(p *CreateAuctionParams) { p.EndTime = p.StartTime.Add(-time.Hour) },
		"end in the past":         func(p *CreateAuctionParams) { p.StartTime = testNow.Add(-2 * time.Hour); p.EndTime = testNow.Add(-time.Hour) },
		"reserve below starting":  func(p *CreateAuctionParams) { p.ReservePrice = &reserve },
		"negative extend minutes": func(p *CreateAuctionParams) { p.AutoExtendMinutes = -1 },
	}
	for name, mut := range cases {
		p := validCreateParams()
		mut(&p)
		_, err := svc.CreateAuction(context.Background(), p)
		assert.Equal(t, KindInvalidArgument, KindOf(err), name)
	}
}

func TestCreateAuction_VehicleAlreadyListed(t *testing.T) {
	svc, mock := newTestService(t)

	mock.ExpectQuery(`SELECT EXISTS`).WithArgs(vehicleOne).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

	_, err := svc.CreateAuction(context.Background(), validCreateParams())
	assert.ErrorIs(t, err, ErrVehicleListed)
}

func TestCreateAuction_InsertRaceIsConflict(t *testing.T) {
	svc, mock := newTestService(t)

	mock.ExpectQuery(`SELECT EXISTS`).WithArgs(vehicleOne).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))
	mock.ExpectExec(`INSERT INTO auctions`).
		WillReturnError(&pgconn.PgError{Code: "23505"})

	_, err := svc.CreateAuction(context.Background(), validCreateParams())
	assert.ErrorIs(t, err, ErrVehicleConflict)
}

// ─────────────────────────── Watchlist / Cancel ─────────────────────────────

func TestWatch_IncrementsCounter(t *testing.T) {
	svc, mock := newTestService(t)
	a := testAuction()

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO watchlist`).WithArgs(a.ID, bidderOne).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`SET watchlist_count = watchlist_count \+ 1`).WithArgs(a.ID).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	assert.NoError(t, svc.Watch(context.Background(), a.ID, bidderOne))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWatch_DuplicateIsConflict(t *testing.T) {
	svc, mock := newTestService(t)
	a := testAuction()

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO watchlist`).WithArgs(a.ID, bidderOne).
		WillReturnError(&pgconn.PgError{Code: "23505"})
	mock.ExpectRollback()

	assert.ErrorIs(t, svc.Watch(context.Background(), a.ID, bidderOne), ErrAlreadyWatching)
}

func TestWatch_MissingAuction(t *testing.T) {
	svc, mock := newTestService(t)
	a := testAuction()

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO watchlist`).WithArgs(a.ID, bidderOne).
		WillReturnError(&pgconn.PgError{Code: "23503"})
	mock.ExpectRollback()

	assert.ErrorIs(t, svc.Watch(context.Background(), a.ID, bidderOne), ErrAuctionNotFound)
}

func TestUnwatch_NotWatching(t *testing.T) {
	svc, mock := newTestService(t)
	a := testAuction()

	mock.ExpectBegin()
	mock.ExpectExec(`DELETE FROM watchlist`).WithArgs(a.ID, bidderOne).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	assert.ErrorIs(t, svc.Unwatch(context.Background(), a.ID, bidderOne), ErrNotWatching)
}

func TestCancelAuction_OnlySeller(t *testing.T) {
	svc, mock := newTestService(t)
	a := testAuction()

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT seller_id, status FROM auctions`).WithArgs(a.ID).
		WillReturnRows(sqlmock.NewRows([]string{"seller_id", "status"}).
			AddRow(sellerID.String(), string(StatusActive)))
	mock.ExpectRollback()

	err := svc.CancelAuction(context.Background(), a.ID, bidderOne)
	assert.ErrorIs(t, err, ErrNotSeller)
}

func TestCancelAuction_TerminalRejected(t *testing.T) {
	svc, mock := newTestService(t)
	a := testAuction()

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT seller_id, status FROM auctions`).WithArgs(a.ID).
		WillReturnRows(sqlmock.NewRows([]string{"seller_id", "status"}).
			AddRow(sellerID.String(), string(StatusEnded)))
	mock.ExpectRollback()

	err := svc.CancelAuction(context.Background(), a.ID, sellerID)
	assert.ErrorIs(t, err, ErrAuctionTerminal)
}

func TestCancelAuction_OK(t *testing.T) {
	svc, mock := newTestService(t)
	a := testAuction()

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT seller_id, status FROM auctions`).WithArgs(a.ID).
		WillReturnRows(sqlmock.NewRows([]string{"seller_id", "status"}).
			AddRow(sellerID.String(), string(StatusActive)))
	mock.ExpectExec(`UPDATE auctions SET status = \$2`).
		WithArgs(a.ID, string(StatusCancelled), testNow).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	assert.NoError(t, svc.CancelAuction(context.Background(), a.ID, sellerID))
	assert.NoError(t, mock.ExpectationsWereMet())
}
