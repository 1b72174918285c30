package correlation

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/sentineld/sentineld/pkg/metrics"
)

// sweepState tracks expiry-sweep metrics (thread-safe), mirroring the
// teacher's orphan-detection bookkeeping.
type sweepState struct {
	mu             sync.Mutex
	lastSweepAt    time.Time
	windowsDrained int
	windowsExpired int
}

// Sweeper periodically scans for correlation windows whose event-time
// window_end has passed wall-clock now and moves them to "draining", then
// moves draining windows whose lateness grace period has also elapsed to
// "expired" — freeing the state row for a future window on the same
// entity/rule pair.
type Sweeper struct {
	store        *Store
	interval     time.Duration
	graceSeconds int
	limit        int

	state sweepState
}

// NewSweeper builds a Sweeper that scans every interval for at most limit
// stale windows per pass, keeping a window in "draining" for graceSeconds
// past its window_end before declaring it expired.
func NewSweeper(store *Store, interval time.Duration, graceSeconds, limit int) *Sweeper {
	if limit <= 0 {
		limit = 500
	}
	return &Sweeper{store: store, interval: interval, graceSeconds: graceSeconds, limit: limit}
}

// Run ticks until ctx is cancelled, draining and expiring stale windows
// each pass.
func (sw *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(sw.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := sw.sweepOnce(ctx); err != nil {
				slog.Error("correlation window expiry sweep failed", "error", err)
			}
		}
	}
}

func (sw *Sweeper) sweepOnce(ctx context.Context) error {
	now := time.Now()

	drained, err := sw.store.DrainStale(ctx, now, sw.limit)
	if err != nil {
		return fmt.Errorf("failed to drain stale correlation windows: %w", err)
	}

	expired, err := sw.store.ExpireStale(ctx, now, sw.graceSeconds, sw.limit)
	if err != nil {
		return fmt.Errorf("failed to expire stale correlation windows: %w", err)
	}

	sw.state.mu.Lock()
	sw.state.lastSweepAt = now
	sw.state.windowsDrained += len(drained)
	sw.state.windowsExpired += len(expired)
	sw.state.mu.Unlock()

	if len(expired) > 0 {
		metrics.CorrelationWindowsExpired.Add(float64(len(expired)))
		slog.Info("expired stale correlation windows", "count", len(expired))
	}
	if len(drained) > 0 {
		slog.Debug("moved correlation windows to draining", "count", len(drained))
	}
	if len(expired) == sw.limit || len(drained) == sw.limit {
		slog.Warn("correlation expiry sweep hit its per-pass limit; more stale windows may remain", "limit", sw.limit)
	}
	return nil
}

// Stats returns the sweeper's last-run timestamp and cumulative expiry count.
func (sw *Sweeper) Stats() (lastSweepAt time.Time, windowsExpired int) {
	sw.state.mu.Lock()
	defer sw.state.mu.Unlock()
	return sw.state.lastSweepAt, sw.state.windowsExpired
}
