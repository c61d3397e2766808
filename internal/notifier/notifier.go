package notifier

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"vehicleauction/internal/events"
)

// Run tails the auction event stream and hands every entry to the external
// notification collaborator. Delivery is fire-and-forget from the bid path's
// point of view; this consumer just keeps its own cursor and catches up.
func Run(ctx context.Context, rdc *redis.Client) {
	go func() {
		lastID := "$"
		for {
			select {
			case <-ctx.Done():
				return
			default:
			}

			// block up to 2 s for new entries
			res, err := rdc.XRead(ctx, &redis.XReadArgs{
				Streams: []string{events.Stream, lastID},
				Count:   100,
				Block:   2000 * time.Millisecond,
			}).Result()
			if err != nil && err != redis.Nil {
				zap.L().Warn("notifier.xread", zap.Error(err))
				time.Sleep(time.Second)
				continue
			}
			if len(res) == 0 {
				continue
			}
			entries := res[0].Messages
			for _, m := range entries {
				dispatch(m)
			}
			lastID = entries[len(entries)-1].ID
		}
	}()
}

// dispatch forwards one event to the notification service. The transport is
// owned by the (external) notification collaborator; here we only log the
// hand-off.
func dispatch(m redis.XMessage) {
	fields := []zap.Field{zap.String("stream_id", m.ID)}
	for _, k := range []string{"event", "aid", "user", "seller", "amount"} {
		if v, ok := m.Values[k].(string); ok && v != "" {
			fields = append(fields, zap.String(k, v))
		}
	}
	zap.L().Info("notify", fields...)
}
