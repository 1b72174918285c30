package scheduler

import (
	"context"
	"database/sql"
	"hash/fnv"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/sentineld/sentineld/pkg/metrics"
)

// advisoryLockNamespace is hashed (FNV-64a) into the application-wide
// advisory-lock key the scheduler leader election contends on via
// pg_try_advisory_lock. A single constant key is
// correct because there is exactly one rule-dispatch leader per
// deployment, not one per rule.
const advisoryLockNamespace = "sentineld-scheduler-leader"

// leaderElector holds a single PostgreSQL session-level advisory lock for
// as long as its underlying connection stays open — a connection-scoped
// lease, chosen over pulling in a consensus library (hashicorp/raft) for
// a single boolean (see DESIGN.md). Losing
// the connection (crash, network partition) releases the lock
// automatically, so a surviving instance can acquire it without any
// explicit handoff.
type leaderElector struct {
	db      *sql.DB
	conn    *sql.Conn
	key     int64
	leading atomic.Bool
}

func newLeaderElector(db *sql.DB) *leaderElector {
	h := fnv.New64a()
	_, _ = h.Write([]byte(advisoryLockNamespace))
	return &leaderElector{db: db, key: int64(h.Sum64())} //nolint:gosec // lock key, not security-sensitive
}

// isLeader reports whether this process currently holds the lease.
func (l *leaderElector) isLeader() bool {
	return l.leading.Load()
}

// run attempts to acquire the lock, retrying on a fixed interval until
// ctx is cancelled. While held, it holds the same *sql.Conn open so the
// session-scoped lock isn't released early by connection pool reuse.
func (l *leaderElector) run(ctx context.Context, retryInterval time.Duration) {
	ticker := time.NewTicker(retryInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			l.release()
			return
		case <-ticker.C:
			if l.isLeader() {
				continue
			}
			if err := l.tryAcquire(ctx); err != nil {
				slog.Debug("scheduler leader acquisition attempt failed", "error", err)
			}
		}
	}
}

func (l *leaderElector) tryAcquire(ctx context.Context) error {
	conn, err := l.db.Conn(ctx)
	if err != nil {
		return err
	}

	var acquired bool
	if err := conn.QueryRowContext(ctx, `SELECT pg_try_advisory_lock($1)`, l.key).Scan(&acquired); err != nil {
		_ = conn.Close()
		return err
	}
	if !acquired {
		_ = conn.Close()
		return nil
	}

	l.conn = conn
	l.leading.Store(true)
	metrics.SchedulerIsLeader.Set(1)
	slog.Info("acquired scheduler leader lease")
	return nil
}

func (l *leaderElector) release() {
	if l.conn == nil {
		return
	}
	_, _ = l.conn.ExecContext(context.Background(), `SELECT pg_advisory_unlock($1)`, l.key)
	_ = l.conn.Close()
	l.conn = nil
	l.leading.Store(false)
	metrics.SchedulerIsLeader.Set(0)
}
