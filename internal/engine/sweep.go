package engine

import (
	"context"
	"log/slog"

	"github.com/robfig/cron/v3"
)

// StartResolveSweep runs Planner.ResolvePending on the cron schedule until ctx
// is done. Overlapping runs are skipped.
func StartResolveSweep(ctx context.Context, planner *Planner, schedule string, logger *slog.Logger) (*cron.Cron, error) {
	if logger == nil {
		logger = slog.Default()
	}
	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	_, err := c.AddFunc(schedule, func() {
		if _, err := planner.ResolvePending(ctx); err != nil {
			logger.ErrorContext(ctx, "Pending resolution sweep failed", "error", err)
		}
	})
	if err != nil {
		return nil, err
	}
	c.Start()
	go func() {
		<-ctx.Done()
		<-c.Stop().Done()
	}()
	logger.InfoContext(ctx, "Pending resolution sweep started", "schedule", schedule)
	return c, nil
}
