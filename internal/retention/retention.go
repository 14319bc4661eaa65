package retention

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/adhocore/gronx"
	"github.com/npezzotti/go-messenger/internal/config"
)

const retryInterval = 30 * time.Second

// Purger hard-deletes messages that were soft-deleted before a cutoff.
type Purger interface {
	PurgeDeletedMessages(ctx context.Context, before time.Time) (int64, error)
}

// Start runs the purge on the configured cron schedule until ctx is done
// or the returned cancel func is called. A disabled job is a no-op.
func Start(ctx context.Context, logger *log.Logger, db Purger, cfg config.RetentionConfig) (context.CancelFunc, error) {
	if !cfg.Enabled {
		logger.Println("retention disabled")
		return func() {}, nil
	}

	cronExpr := cfg.Cron
	if cronExpr == "" {
		cronExpr = config.DefaultRetentionCron
	}
	if !gronx.IsValid(cronExpr) {
		return nil, fmt.Errorf("invalid retention cron expression: %q", cfg.Cron)
	}

	period := cfg.Period
	if period <= 0 {
		period = config.DefaultRetentionPeriod
	}

	ctx, cancel := context.WithCancel(ctx)
	go runScheduler(ctx, logger, db, cronExpr, period)

	logger.Printf("retention enabled: cron %q, period %s", cronExpr, period)
	return cancel, nil
}

// RunOnce purges messages soft-deleted more than period before now.
func RunOnce(ctx context.Context, logger *log.Logger, db Purger, period time.Duration, now time.Time) (int64, error) {
	cutoff := now.Add(-period)
	n, err := db.PurgeDeletedMessages(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("purge deleted messages: %w", err)
	}

	logger.Printf("retention: purged %d messages deleted before %s", n, cutoff.Format(time.RFC3339))
	return n, nil
}

func runScheduler(ctx context.Context, logger *log.Logger, db Purger, cronExpr string, period time.Duration) {
	for {
		next, err := gronx.NextTickAfter(cronExpr, time.Now().UTC(), false)
		if err != nil {
			logger.Printf("retention: next tick for %q: %v", cronExpr, err)
			if !sleep(ctx, retryInterval) {
				logger.Println("retention stopped")
				return
			}
			continue
		}

		if !sleep(ctx, time.Until(next)) {
			logger.Println("retention stopped")
			return
		}

		if _, err := RunOnce(ctx, logger, db, period, time.Now().UTC()); err != nil {
			logger.Printf("retention: %v", err)
		}
	}
}

// sleep waits for d and reports false if ctx ended first.
func sleep(ctx context.Context, d time.Duration) bool {
	if d < 0 {
		d = 0
	}
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}
