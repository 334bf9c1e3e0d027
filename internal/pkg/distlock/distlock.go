// Package distlock serializes background jobs and assignment cursors across
// worker replicas. Redis is preferred; PostgreSQL advisory locks are the
// fallback when no Redis client is configured.
package distlock

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"hash/fnv"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ignite/crm-automation/internal/pkg/logger"
)

var (
	// ErrNotAcquired is returned by Run when another holder owns the lock.
	ErrNotAcquired = errors.New("distlock: lock held elsewhere")
	// ErrLockLost is returned by Run when an expiring lock could not be
	// refreshed while fn was running. fn's context is cancelled at that point.
	ErrLockLost = errors.New("distlock: lock lost while held")
	// ErrLockPoolBusy means no advisory-lock connection freed up in time.
	ErrLockPoolBusy = errors.New("distlock: no advisory lock connection available")
)

// DistLock is the interface for distributed locking.
// A lock instance belongs to one holder; create a new instance per attempt.
type DistLock interface {
	// Acquire tries to acquire the lock without blocking.
	Acquire(ctx context.Context) (bool, error)
	// Release releases the lock if we still own it.
	Release(ctx context.Context) error
}

// Expiring is implemented by locks that lapse after TTL unless extended.
// Run keeps them alive while the holder works.
type Expiring interface {
	DistLock
	TTL() time.Duration
	Extend(ctx context.Context, ttl time.Duration) (bool, error)
}

// NewLock creates a distributed lock using the best available backend.
func NewLock(redisClient *redis.Client, advisoryDB *sql.DB, key string, ttl time.Duration) DistLock {
	if redisClient != nil {
		return NewRedisLock(redisClient, key, ttl)
	}
	return NewPGAdvisoryLock(advisoryDB, key)
}

// Factory builds locks against a fixed backend. A zero Factory (no Redis,
// no DB) yields locks that always succeed, which is what a single-process
// deployment wants.
//
// AdvisoryDB must be a pool used for nothing but locks: an advisory lock
// pins one of its connections for as long as the holder runs, and a holder
// that queries through the same pool can starve itself.
type Factory struct {
	Redis      *redis.Client
	AdvisoryDB *sql.DB
	TTL        time.Duration
}

// Lock returns a fresh lock for key.
func (f Factory) Lock(key string) DistLock {
	if f.Redis == nil && f.AdvisoryDB == nil {
		return localLock{}
	}
	ttl := f.TTL
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return NewLock(f.Redis, f.AdvisoryDB, key, ttl)
}

// Run executes fn while holding lock. It returns ErrNotAcquired without
// calling fn when the lock is taken. An Expiring lock is extended every
// TTL/3 until fn returns; if an extension finds the lock gone, fn's context
// is cancelled and Run reports ErrLockLost.
func Run(ctx context.Context, lock DistLock, fn func(ctx context.Context) error) error {
	ok, err := lock.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire: %w", err)
	}
	if !ok {
		return ErrNotAcquired
	}
	defer func() {
		// Release on a detached context so cancellation does not strand the key.
		rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		_ = lock.Release(rctx)
	}()

	ex, ok := lock.(Expiring)
	if !ok || ex.TTL() <= 0 {
		return fn(ctx)
	}

	hctx, cancel := context.WithCancel(ctx)
	defer cancel()
	var lost atomic.Bool
	done := make(chan struct{})
	go func() {
		defer close(done)
		keepAlive(hctx, ex, func() {
			lost.Store(true)
			cancel()
		})
	}()

	err = fn(hctx)
	cancel()
	<-done
	if lost.Load() {
		return errors.Join(ErrLockLost, err)
	}
	return err
}

// keepAlive extends ex until ctx ends. A failed round trip is retried on
// the next tick since the key still has time left; a refused extension
// means someone else owns the key now.
func keepAlive(ctx context.Context, ex Expiring, onLost func()) {
	ttl := ex.TTL()
	ticker := time.NewTicker(ttl / 3)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			ok, err := ex.Extend(ctx, ttl)
			switch {
			case ctx.Err() != nil:
				return
			case err != nil:
				logger.Warn("[distlock] extend failed, retrying", "error", err)
			case !ok:
				logger.Error("[distlock] lock lost, cancelling holder")
				onLost()
				return
			}
		}
	}
}

type localLock struct{}

func (localLock) Acquire(context.Context) (bool, error) { return true, nil }
func (localLock) Release(context.Context) error         { return nil }

// PGAdvisoryLock implements DistLock using session-scoped PostgreSQL
// advisory locks. The lock dies with the connection, so it never needs
// extending.
type PGAdvisoryLock struct {
	db     *sql.DB
	lockID int64
	conn   *sql.Conn
	wait   time.Duration
}

// NewPGAdvisoryLock derives a stable lock ID from key.
func NewPGAdvisoryLock(db *sql.DB, key string) *PGAdvisoryLock {
	h := fnv.New64a()
	h.Write([]byte(key))
	return &PGAdvisoryLock{
		db:     db,
		lockID: int64(h.Sum64()),
		wait:   5 * time.Second,
	}
}

// Acquire pins a pooled connection and calls pg_try_advisory_lock on it.
// Unlock must run on the same session, so the connection is held until
// Release. Waiting for a free connection is bounded by ErrLockPoolBusy.
func (l *PGAdvisoryLock) Acquire(ctx context.Context) (bool, error) {
	cctx, cancel := context.WithTimeout(ctx, l.wait)
	conn, err := l.db.Conn(cctx)
	cancel()
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			return false, ErrLockPoolBusy
		}
		return false, fmt.Errorf("advisory lock conn: %w", err)
	}
	var acquired bool
	if err := conn.QueryRowContext(ctx, "SELECT pg_try_advisory_lock($1)", l.lockID).Scan(&acquired); err != nil {
		conn.Close()
		return false, fmt.Errorf("advisory lock: %w", err)
	}
	if !acquired {
		conn.Close()
		return false, nil
	}
	l.conn = conn
	return true, nil
}

// Release unlocks and returns the pinned connection to the pool.
func (l *PGAdvisoryLock) Release(ctx context.Context) error {
	if l.conn == nil {
		return nil
	}
	defer func() {
		l.conn.Close()
		l.conn = nil
	}()
	_, err := l.conn.ExecContext(ctx, "SELECT pg_advisory_unlock($1)", l.lockID)
	return err
}
