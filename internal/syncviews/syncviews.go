package syncviews

import (
	"context"
	"database/sql"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	dirtySet  = "auc_views:dirty"
	keyPrefix = "auc_views:"
)

// Every 10 s, fold the best-effort Redis view counters back into Postgres.
// View counts are not correctness-critical; a flush that loses a race with a
// concurrent INCR just picks the remainder up on the next pass.
func Run(ctx context.Context, rdc *redis.Client, db *sql.DB) {
	tk := time.NewTicker(10 * time.Second)
	go func() {
		defer tk.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-tk.C:
				flushOnce(ctx, rdc, db)
			}
		}
	}()
}

func flushOnce(ctx context.Context, rdc *redis.Client, db *sql.DB) {
	ids, err := rdc.SMembers(ctx, dirtySet).Result()
	if err != nil || len(ids) == 0 {
		return
	}

	// 1. drain all counters in one pipelined round-trip
	pipe := rdc.Pipeline()
	cmds := make([]*redis.StringCmd, len(ids))
	for i, id := range ids {
		cmds[i] = pipe.GetDel(ctx, keyPrefix+id)
	}
	pipe.SRem(ctx, dirtySet, anySlice(ids)...)

	if _, err = pipe.Exec(ctx); err != nil && err != redis.Nil {
		zap.L().Error("syncviews.pipeline", zap.Error(err))
		return
	}

	// 2. add the drained deltas onto the Postgres rows
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		zap.L().Error("syncviews.tx_begin", zap.Error(err))
		return
	}
	defer tx.Rollback()

	const bump = `UPDATE auctions SET view_count = view_count + $2 WHERE id = $1`
	for i, cmd := range cmds {
		delta, err := cmd.Int64()
		if err != nil || delta == 0 {
			continue // counter disappeared between SMEMBERS and GETDEL
		}
		if _, err := tx.ExecContext(ctx, bump, ids[i], delta); err != nil {
			zap.L().Error("syncviews.bump", zap.String("id", ids[i]), zap.Error(err))
		}
	}

	if err = tx.Commit(); err != nil {
		zap.L().Debug("syncviews_error", zap.Error(err))
	}
}

func anySlice(ss []string) []any {
	out := make([]any, len(ss))
	for i, s := range ss {
		out[i] = s
	}
	return out
}
