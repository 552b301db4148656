package state

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/user"
	"time"

	"github.com/google/uuid"
	"github.com/statecraft-io/statecraft/internal/logging"
)

// DefaultLeaseTTL is how long a lock lease lasts without renewal. A crashed
// holder's lock becomes reclaimable after this without force-unlock.
const DefaultLeaseTTL = 2 * time.Minute

// lockPollInterval is how often Acquire re-attempts while waiting.
const lockPollInterval = 500 * time.Millisecond

// LockManager provides mutual exclusion over a state record. Every plan,
// apply, refresh and state-mutating operation holds the lock for its entire
// duration.
type LockManager struct {
	backend Backend
	ttl     time.Duration
}

func NewLockManager(backend Backend) *LockManager {
	return &LockManager{backend: backend, ttl: DefaultLeaseTTL}
}

// Lease is a held lock. The holder-side heartbeat keeps renewing it until
// Release is called.
type Lease struct {
	Info *LockInfo

	m    *LockManager
	stop chan struct{}
	done chan struct{}
}

// Acquire takes the state lock for operation op, retrying until waitTimeout
// elapses. On timeout the underlying *LockHeldError is surfaced rather than
// blocking indefinitely; waitTimeout zero means a single attempt.
func (m *LockManager) Acquire(ctx context.Context, op string, waitTimeout time.Duration) (*Lease, error) {
	info := &LockInfo{
		ID:        uuid.NewString(),
		Holder:    lockHolder(),
		Operation: op,
		Created:   time.Now().UTC(),
		Expires:   time.Now().UTC().Add(m.ttl),
	}

	deadline := time.Now().Add(waitTimeout)
	for {
		err := m.backend.Lock(ctx, info)
		if err == nil {
			break
		}
		var held *LockHeldError
		if !errors.As(err, &held) {
			return nil, fmt.Errorf("failed to acquire state lock: %w", err)
		}
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return nil, held
		}
		// A wait budget smaller than the poll interval still gets its one
		// late retry at the deadline.
		sleep := lockPollInterval
		if remaining < sleep {
			sleep = remaining
		}
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("lock acquisition cancelled: %w", ctx.Err())
		case <-time.After(sleep):
		}
	}

	logging.Debug("state lock acquired", "id", info.ID, "operation", op)

	l := &Lease{
		Info: info,
		m:    m,
		stop: make(chan struct{}),
		done: make(chan struct{}),
	}
	go l.heartbeat()
	return l, nil
}

// Release stops the heartbeat and unlocks. Safe to call once.
func (l *Lease) Release() error {
	close(l.stop)
	<-l.done
	if err := l.m.backend.Unlock(context.Background(), l.Info.ID, false); err != nil {
		return fmt.Errorf("failed to release state lock: %w", err)
	}
	logging.Debug("state lock released", "id", l.Info.ID)
	return nil
}

// heartbeat renews the lease until stopped so long-running applies outlive
// the TTL.
func (l *Lease) heartbeat() {
	defer close(l.done)
	ticker := time.NewTicker(l.m.ttl / 3)
	defer ticker.Stop()
	for {
		select {
		case <-l.stop:
			return
		case <-ticker.C:
			expires := time.Now().UTC().Add(l.m.ttl)
			if err := l.m.backend.Renew(context.Background(), l.Info.ID, expires); err != nil {
				logging.Warn("failed to renew state lock lease", "id", l.Info.ID, "error", err)
			}
		}
	}
}

// ForceUnlock removes the lock with the given id unconditionally, regardless
// of holder identity. This is an operator escape hatch for locks orphaned by
// a crashed process; it is logged as a force event, distinct from a normal
// release. After force-unlocking a mid-apply crash, run a refresh before
// trusting the next plan.
func (m *LockManager) ForceUnlock(ctx context.Context, lockID string) error {
	if err := m.backend.Unlock(ctx, lockID, true); err != nil {
		return fmt.Errorf("force-unlock failed: %w", err)
	}
	logging.Warn("state lock force-unlocked", "id", lockID, "by", lockHolder())
	return nil
}

func lockHolder() string {
	username := "unknown"
	if u, err := user.Current(); err == nil {
		username = u.Username
	}
	host, _ := os.Hostname()
	return fmt.Sprintf("%s@%s:%d", username, host, os.Getpid())
}
