package syncviews

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-redis/redismock/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFlushOnce_DrainsCountersIntoPostgres(t *testing.T) {
	rdc, rmock := redismock.NewClientMock()
	db, dbmock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	id := "1679091c-5a88-4faf-9afe-f6e2e1d0d8f8"

	rmock.ExpectSMembers(dirtySet).SetVal([]string{id})
	rmock.ExpectGetDel(keyPrefix + id).SetVal("7")
	rmock.ExpectSRem(dirtySet, id).SetVal(1)

	dbmock.ExpectBegin()
	dbmock.ExpectExec(`SET view_count = view_count \+ \$2`).
		WithArgs(id, int64(7)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	dbmock.ExpectCommit()

	flushOnce(context.Background(), rdc, db)

	assert.NoError(t, rmock.ExpectationsWereMet())
	assert.NoError(t, dbmock.ExpectationsWereMet())
}

func TestFlushOnce_NothingDirty(t *testing.T) {
	rdc, rmock := redismock.NewClientMock()
	db, _, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	rmock.ExpectSMembers(dirtySet).SetVal([]string{})

	flushOnce(context.Background(), rdc, db)
	assert.NoError(t, rmock.ExpectationsWereMet())
}
