package state

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/statecraft-io/statecraft/internal/ir"
	"github.com/statecraft-io/statecraft/internal/logging"
)

// LocalBackend persists state as a single JSON file. It performs no
// synchronization of its own on the state file: two processes writing the
// same path concurrently will corrupt each other. It is meant for single
// user work; the lock file only guards against accidental concurrent runs
// on the same machine and is not safe across shared filesystems. Teams
// should use the sqlite or s3 backend.
type LocalBackend struct {
	path string
}

func NewLocalBackend(path string) *LocalBackend {
	return &LocalBackend{path: path}
}

func (b *LocalBackend) Fetch(ctx context.Context) (*ir.Snapshot, error) {
	raw, err := os.ReadFile(b.path)
	if os.IsNotExist(err) {
		return ir.NewSnapshot(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read state file %s: %w", b.path, err)
	}

	var snap ir.Snapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		return nil, fmt.Errorf("failed to parse state file %s: %w", b.path, err)
	}
	return &snap, nil
}

func (b *LocalBackend) Persist(ctx context.Context, snap *ir.Snapshot) error {
	if err := os.MkdirAll(filepath.Dir(b.path), 0755); err != nil {
		return fmt.Errorf("failed to create state directory: %w", err)
	}

	raw, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to serialize state: %w", err)
	}

	if err := os.WriteFile(b.path, append(raw, '\n'), 0644); err != nil {
		return fmt.Errorf("failed to write state file %s: %w", b.path, err)
	}
	return nil
}

func (b *LocalBackend) lockPath() string {
	return b.path + ".lock"
}

// Lock creates the lock file exclusively. An existing lock whose lease has
// expired is reclaimed, so a crashed holder does not wedge the state
// forever.
func (b *LocalBackend) Lock(ctx context.Context, info *LockInfo) error {
	if err := os.MkdirAll(filepath.Dir(b.lockPath()), 0755); err != nil {
		return fmt.Errorf("failed to create lock directory: %w", err)
	}

	if existing, err := b.readLock(); err == nil {
		if time.Now().Before(existing.Expires) {
			return &LockHeldError{
				ID:        existing.ID,
				Holder:    existing.Holder,
				Operation: existing.Operation,
				Age:       time.Since(existing.Created),
			}
		}
		logging.Warn("reclaiming expired state lock", "holder", existing.Holder, "expired", existing.Expires)
		os.Remove(b.lockPath())
	}

	raw, err := json.Marshal(info)
	if err != nil {
		return err
	}
	f, err := os.OpenFile(b.lockPath(), os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		if os.IsExist(err) {
			return b.Lock(ctx, info) // raced another acquirer; re-read
		}
		return fmt.Errorf("failed to create lock file: %w", err)
	}
	defer f.Close()

	if _, err := f.Write(raw); err != nil {
		os.Remove(b.lockPath())
		return fmt.Errorf("failed to write lock file: %w", err)
	}
	return nil
}

func (b *LocalBackend) Renew(ctx context.Context, id string, expires time.Time) error {
	existing, err := b.readLock()
	if err != nil {
		return fmt.Errorf("failed to renew lock: %w", err)
	}
	if existing.ID != id {
		return fmt.Errorf("failed to renew lock: held by %s, not %s", existing.ID, id)
	}
	existing.Expires = expires
	raw, err := json.Marshal(existing)
	if err != nil {
		return err
	}
	return os.WriteFile(b.lockPath(), raw, 0644)
}

func (b *LocalBackend) Unlock(ctx context.Context, id string, force bool) error {
	existing, err := b.readLock()
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read lock file: %w", err)
	}
	if existing.ID != id && !force {
		return fmt.Errorf("lock is held by %s (id %s), not %s; use force-unlock to override",
			existing.Holder, existing.ID, id)
	}
	if err := os.Remove(b.lockPath()); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove lock file: %w", err)
	}
	return nil
}

func (b *LocalBackend) readLock() (*LockInfo, error) {
	raw, err := os.ReadFile(b.lockPath())
	if err != nil {
		return nil, err
	}
	var info LockInfo
	if err := json.Unmarshal(raw, &info); err != nil {
		return nil, fmt.Errorf("corrupt lock file %s: %w", b.lockPath(), err)
	}
	return &info, nil
}
