package auction

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	sweepStartQuery = `SET status = 'ACTIVE', is_active = true`
	sweepEndQuery   = `SET status = 'ENDED', is_active = false`
)

func TestRunStatusSweep_CountsTransitions(t *testing.T) {
	svc, mock := newTestService(t)

	mock.ExpectQuery(sweepStartQuery).WithArgs(testNow).
		WillReturnRows(sqlmock.NewRows([]string{"id", "seller_id", "end_time"}).
			AddRow(testAuction().ID.String(), sellerID.String(), testNow.Add(24*time.Hour)).
			AddRow(vehicleOne.String(), sellerID.String(), testNow.Add(48*time.Hour)))
	mock.ExpectQuery(sweepEndQuery).WithArgs(testNow).
		WillReturnRows(sqlmock.NewRows([]string{"id", "highest_bidder_id", "current_price"}).
			AddRow(bidderTwo.String(), bidderOne.String(), "81000"))

	res, err := svc.RunStatusSweep(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, res.Started)
	assert.Equal(t, 1, res.Ended)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRunStatusSweep_NothingDue(t *testing.T) {
	svc, mock := newTestService(t)

	mock.ExpectQuery(sweepStartQuery).WithArgs(testNow).
		WillReturnRows(sqlmock.NewRows([]string{"id", "seller_id", "end_time"}))
	mock.ExpectQuery(sweepEndQuery).WithArgs(testNow).
		WillReturnRows(sqlmock.NewRows([]string{"id", "highest_bidder_id", "current_price"}))

	res, err := svc.RunStatusSweep(context.Background())
	require.NoError(t, err)

	assert.Zero(t, res.Started)
	assert.Zero(t, res.Ended)
}

func TestRunStatusSweep_EndsAuctionWithoutBids(t *testing.T) {
	svc, mock := newTestService(t)

	mock.ExpectQuery(sweepStartQuery).WithArgs(testNow).
		WillReturnRows(sqlmock.NewRows([]string{"id", "seller_id", "end_time"}))
	// highest_bidder_id NULL: the auction ends unsold
	mock.ExpectQuery(sweepEndQuery).WithArgs(testNow).
		WillReturnRows(sqlmock.NewRows([]string{"id", "highest_bidder_id", "current_price"}).
			AddRow(testAuction().ID.String(), nil, "75000"))

	res, err := svc.RunStatusSweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, res.Ended)
}

func TestFinalizeExpired_EndsDueAuction(t *testing.T) {
	svc, mock := newTestService(t)
	a := testAuction()

	mock.ExpectQuery(sweepEndQuery).WithArgs(a.ID, testNow).
		WillReturnRows(sqlmock.NewRows([]string{"highest_bidder_id", "current_price"}).
			AddRow(bidderOne.String(), "81000"))

	require.NoError(t, svc.FinalizeExpired(context.Background(), a.ID))
	assert.NoError(t, mock.ExpectationsWereMet())
}

// A stale expiry (auction already ended, or its end pushed out by a late bid)
// must be a silent no-op.
func TestFinalizeExpired_StaleTimerIsNoOp(t *testing.T) {
	svc, mock := newTestService(t)
	a := testAuction()

	mock.ExpectQuery(sweepEndQuery).WithArgs(a.ID, testNow).
		WillReturnRows(sqlmock.NewRows([]string{"highest_bidder_id", "current_price"}))

	assert.NoError(t, svc.FinalizeExpired(context.Background(), a.ID))
}
