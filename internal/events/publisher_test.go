package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/go-redis/redismock/v9"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func streamArgs(ev Event) *redis.XAddArgs {
	return &redis.XAddArgs{
		Stream: Stream,
		Values: []any{
			"event", ev.Type,
			"aid", ev.AuctionID,
			"user", ev.UserID,
			"seller", ev.SellerID,
			"amount", ev.Amount,
			"at", ev.At,
		},
	}
}

func TestPublish_FansOutToChannelAndStream(t *testing.T) {
	rdc, mock := redismock.NewClientMock()
	p := NewPublisher(rdc)

	ev := Event{
		Type:      TypeBidPlaced,
		AuctionID: "1679091c-5a88-4faf-9afe-f6e2e1d0d8f8",
		UserID:    "a87ff679-a2f3-471d-9181-a67b7542122c",
		Amount:    "76000",
		At:        1753632000,
	}
	payload, err := json.Marshal(ev)
	require.NoError(t, err)

	mock.ExpectPublish(ChannelFor(ev.AuctionID), payload).SetVal(1)
	mock.ExpectXAdd(streamArgs(ev)).SetVal("1-0")

	p.Publish(context.Background(), ev)
	assert.NoError(t, mock.ExpectationsWereMet())
}

// A dead pub/sub channel must not keep the event out of the stream, and
// neither failure reaches the caller.
func TestPublish_StreamStillWrittenWhenChannelFails(t *testing.T) {
	rdc, mock := redismock.NewClientMock()
	p := NewPublisher(rdc)

	ev := Event{
		Type:      TypeAuctionEnded,
		AuctionID: "1679091c-5a88-4faf-9afe-f6e2e1d0d8f8",
		Amount:    "81000",
		At:        1753632000,
	}
	payload, err := json.Marshal(ev)
	require.NoError(t, err)

	mock.ExpectPublish(ChannelFor(ev.AuctionID), payload).
		SetErr(errors.New("connection reset"))
	mock.ExpectXAdd(streamArgs(ev)).SetVal("1-0")

	p.Publish(context.Background(), ev)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestChannelFor(t *testing.T) {
	assert.Equal(t, "auc:abc:events", ChannelFor("abc"))
}
