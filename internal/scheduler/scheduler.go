package scheduler

import (
	"context"
	"time"

	"go.uber.org/zap"

	"vehicleauction/internal/services/auction"
)

// Run drives the status sweep on a fixed interval. A failed tick is logged
// and retried on the next one; the sweep's updates are idempotent, so a
// partial tick leaves no damage.
func Run(ctx context.Context, svc auction.IAuctionService, interval time.Duration) {
	tk := time.NewTicker(interval)
	go func() {
		defer tk.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-tk.C:
				if _, err := svc.RunStatusSweep(ctx); err != nil {
					zap.L().Error("scheduler.sweep", zap.Error(err))
				}
			}
		}
	}()
}
