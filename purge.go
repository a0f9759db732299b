package lockstep

import (
	"context"
	"fmt"
	"time"
)

// PurgeExpired removes refresh records whose expiry has passed and returns
// how many were deleted. Purging is hygiene, not security: an expired record
// already fails rotation, this just reclaims storage.
func (e *Engine) PurgeExpired(ctx context.Context) (int64, error) {
	if e == nil {
		return 0, ErrEngineNotReady
	}

	n, err := e.store.PurgeExpired(ctx, time.Now())
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	if e.metrics != nil && n > 0 {
		e.metrics.Add(MetricRecordsPurged, uint64(n))
	}
	if n > 0 {
		e.emitAudit(ctx, auditEventRecordsPurged, true, "", "", nil, func() map[string]string {
			return map[string]string{"purged": fmt.Sprintf("%d", n)}
		})
	}
	return n, nil
}

// RunPurge blocks, sweeping expired records on the configured interval until
// ctx is cancelled. Run it on its own goroutine. A zero or negative
// PurgeInterval falls back to the default hourly sweep. Sweep failures are
// swallowed: the next tick retries.
func (e *Engine) RunPurge(ctx context.Context) error {
	if e == nil {
		return ErrEngineNotReady
	}

	interval := e.config.Store.PurgeInterval
	if interval <= 0 {
		interval = time.Hour
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			_, _ = e.PurgeExpired(ctx)
		}
	}
}
