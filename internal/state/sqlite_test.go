package state

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/statecraft-io/statecraft/internal/ir"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSQLiteBackend(t *testing.T) *SQLiteBackend {
	t.Helper()
	backend, err := NewSQLiteBackend(context.Background(), filepath.Join(t.TempDir(), "state.db"), "")
	require.NoError(t, err)
	t.Cleanup(func() { backend.Close() })
	return backend
}

func TestSQLiteBackend_PersistFetch(t *testing.T) {
	backend := newTestSQLiteBackend(t)
	ctx := context.Background()

	snap, err := backend.Fetch(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, snap.Serial)

	snap.Serial = 1
	snap.SetResource(&ir.ResourceRecord{Address: ir.Addr("mem", "a"), Provider: "mem", ID: "one"})
	require.NoError(t, backend.Persist(ctx, snap))

	loaded, err := backend.Fetch(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, loaded.Serial)
	require.NotNil(t, loaded.Resource(ir.Addr("mem", "a")))
	assert.Equal(t, "one", loaded.Resource(ir.Addr("mem", "a")).ID)
}

func TestSQLiteBackend_RetainsVersionHistory(t *testing.T) {
	backend := newTestSQLiteBackend(t)
	ctx := context.Background()

	for serial := 1; serial <= 3; serial++ {
		snap := ir.NewSnapshot()
		snap.Serial = serial
		require.NoError(t, backend.Persist(ctx, snap))
	}

	versions, err := backend.Versions(ctx)
	require.NoError(t, err)
	require.Len(t, versions, 3)
	assert.Equal(t, 3, versions[0].Serial, "newest first")

	// Any retained version can be recovered.
	old, err := backend.FetchVersion(ctx, versions[2].ID)
	require.NoError(t, err)
	assert.Equal(t, 1, old.Serial)

	_, err = backend.FetchVersion(ctx, "9999")
	assert.Error(t, err)
}

func TestSQLiteBackend_Locking(t *testing.T) {
	backend := newTestSQLiteBackend(t)
	ctx := context.Background()

	info := &LockInfo{
		ID:        uuid.NewString(),
		Holder:    "me@host:1",
		Operation: "apply",
		Created:   time.Now().UTC(),
		Expires:   time.Now().UTC().Add(time.Minute),
	}
	require.NoError(t, backend.Lock(ctx, info))

	second := &LockInfo{
		ID:        uuid.NewString(),
		Holder:    "other@host:2",
		Operation: "plan",
		Created:   time.Now().UTC(),
		Expires:   time.Now().UTC().Add(time.Minute),
	}
	err := backend.Lock(ctx, second)
	var held *LockHeldError
	require.ErrorAs(t, err, &held)
	assert.Equal(t, info.ID, held.ID)

	// Renew only works for the holder.
	require.NoError(t, backend.Renew(ctx, info.ID, time.Now().UTC().Add(2*time.Minute)))
	assert.Error(t, backend.Renew(ctx, second.ID, time.Now().UTC().Add(2*time.Minute)))

	assert.Error(t, backend.Unlock(ctx, second.ID, false))
	require.NoError(t, backend.Unlock(ctx, info.ID, false))
	require.NoError(t, backend.Lock(ctx, second))
}

func TestSQLiteBackend_ExpiredLockReclaimed(t *testing.T) {
	backend := newTestSQLiteBackend(t)
	ctx := context.Background()

	stale := &LockInfo{
		ID:        uuid.NewString(),
		Holder:    "crashed@host:1",
		Operation: "apply",
		Created:   time.Now().UTC().Add(-time.Hour),
		Expires:   time.Now().UTC().Add(-time.Minute),
	}
	require.NoError(t, backend.Lock(ctx, stale))

	fresh := &LockInfo{
		ID:        uuid.NewString(),
		Holder:    "me@host:2",
		Operation: "plan",
		Created:   time.Now().UTC(),
		Expires:   time.Now().UTC().Add(time.Minute),
	}
	require.NoError(t, backend.Lock(ctx, fresh))
}
