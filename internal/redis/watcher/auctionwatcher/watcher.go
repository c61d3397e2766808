package auctionwatcher

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"vehicleauction/internal/services/auction"
)

// Run listens for end-timer key expiries and closes the matching auction
// within seconds of its effective end time, without waiting for the next
// minute sweep. The close is conditional on the stored end time, so a stale
// expiry (auction already extended or ended) is a no-op.
// Run must be started once at service boot.
func Run(ctx context.Context, rdb *redis.Client, svc auction.IAuctionService) {
	_ = rdb.ConfigSet(ctx, "notify-keyspace-events", "Ex").Err()
	ps := rdb.PSubscribe(ctx, "__keyevent@*__:expired")
	for {
		select {
		case <-ctx.Done():
			return
		case m := <-ps.Channel():
			if !strings.HasPrefix(m.Payload, "auc_end:") {
				continue
			}
			id, err := uuid.Parse(strings.TrimPrefix(m.Payload, "auc_end:"))
			if err != nil {
				continue
			}
			if err := svc.FinalizeExpired(ctx, id); err != nil {
				zap.L().Warn("watcher.finalize",
					zap.String("auction_id", id.String()), zap.Error(err))
			}
		}
	}
}
