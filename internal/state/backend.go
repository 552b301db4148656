package state

import (
	"context"
	"fmt"
	"time"

	"github.com/statecraft-io/statecraft/internal/ir"
)

// Backend is the pluggable storage-plus-locking implementation behind the
// Store and the LockManager. Fetch and Persist move whole snapshots; serial
// and lineage bookkeeping live in the Store, not here.
type Backend interface {
	// Fetch loads the persisted snapshot, or an empty one if nothing has
	// been persisted yet.
	Fetch(ctx context.Context) (*ir.Snapshot, error)

	// Persist durably writes the snapshot.
	Persist(ctx context.Context, snap *ir.Snapshot) error

	// Lock acquires the state lock for info's holder. It fails with
	// *LockHeldError if another unexpired lock exists.
	Lock(ctx context.Context, info *LockInfo) error

	// Renew extends the lease of the lock with the given id.
	Renew(ctx context.Context, id string, expires time.Time) error

	// Unlock releases the lock with the given id. With force set the lock is
	// removed regardless of who holds it; this is the operator escape hatch
	// and is logged as such.
	Unlock(ctx context.Context, id string, force bool) error
}

// Versioned is implemented by backends that retain point-in-time snapshot
// versions for recovery.
type Versioned interface {
	Versions(ctx context.Context) ([]VersionInfo, error)
	FetchVersion(ctx context.Context, id string) (*ir.Snapshot, error)
}

// VersionInfo describes one retained snapshot version.
type VersionInfo struct {
	ID      string
	Serial  int
	Created time.Time
}

// LockInfo identifies a lock holder and its lease.
type LockInfo struct {
	ID        string    `json:"id"`
	Holder    string    `json:"holder"`
	Operation string    `json:"operation"`
	Created   time.Time `json:"created"`
	Expires   time.Time `json:"expires"`
}

// BackendConfig selects and configures a state backend.
type BackendConfig struct {
	Type   string            `json:"type"` // "local", "sqlite", "s3"
	Config map[string]string `json:"config,omitempty"`
}

// NewBackend creates a state backend from configuration.
func NewBackend(ctx context.Context, cfg *BackendConfig) (Backend, error) {
	if cfg == nil {
		return nil, fmt.Errorf("backend configuration is nil")
	}

	switch cfg.Type {
	case "local", "":
		path := cfg.Config["path"]
		if path == "" {
			return nil, fmt.Errorf("local backend requires 'path' configuration")
		}
		return NewLocalBackend(path), nil
	case "sqlite":
		path := cfg.Config["path"]
		if path == "" {
			return nil, fmt.Errorf("sqlite backend requires 'path' configuration")
		}
		return NewSQLiteBackend(ctx, path, cfg.Config["name"])
	case "s3":
		return newS3Backend(ctx, cfg.Config)
	default:
		return nil, fmt.Errorf("unknown backend type: %s", cfg.Type)
	}
}
