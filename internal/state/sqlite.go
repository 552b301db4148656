package state

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/statecraft-io/statecraft/internal/ir"
	"github.com/statecraft-io/statecraft/internal/logging"

	// SQLite driver
	_ "modernc.org/sqlite"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS snapshots (
	version    INTEGER PRIMARY KEY AUTOINCREMENT,
	name       TEXT NOT NULL,
	serial     INTEGER NOT NULL,
	created_at TEXT NOT NULL,
	data       BLOB NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_snapshots_name ON snapshots(name, version);

CREATE TABLE IF NOT EXISTS locks (
	name       TEXT PRIMARY KEY,
	id         TEXT NOT NULL,
	holder     TEXT NOT NULL,
	operation  TEXT NOT NULL,
	created_at TEXT NOT NULL,
	expires_at TEXT NOT NULL
);
`

// SQLiteBackend stores every persisted snapshot as a new row, giving
// point-in-time recovery, and implements locking as a conditional row
// insert. Suitable for a shared database file or a small team server.
type SQLiteBackend struct {
	db   *sql.DB
	name string
}

// NewSQLiteBackend opens (and if needed initializes) the database at path.
// name distinguishes multiple states in one database; it defaults to
// "default".
func NewSQLiteBackend(ctx context.Context, path, name string) (*SQLiteBackend, error) {
	if name == "" {
		name = "default"
	}

	dsn := fmt.Sprintf("%s?_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL&_txlock=immediate", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open state database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping state database: %w", err)
	}
	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize state schema: %w", err)
	}

	return &SQLiteBackend{db: db, name: name}, nil
}

// Close closes the database connection.
func (b *SQLiteBackend) Close() error {
	return b.db.Close()
}

func (b *SQLiteBackend) Fetch(ctx context.Context) (*ir.Snapshot, error) {
	var data []byte
	err := b.db.QueryRowContext(ctx,
		`SELECT data FROM snapshots WHERE name = ? ORDER BY version DESC LIMIT 1`, b.name).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return ir.NewSnapshot(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read state row: %w", err)
	}

	var snap ir.Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("failed to parse stored state: %w", err)
	}
	return &snap, nil
}

func (b *SQLiteBackend) Persist(ctx context.Context, snap *ir.Snapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("failed to serialize state: %w", err)
	}
	_, err = b.db.ExecContext(ctx,
		`INSERT INTO snapshots (name, serial, created_at, data) VALUES (?, ?, ?, ?)`,
		b.name, snap.Serial, time.Now().UTC().Format(time.RFC3339), data)
	if err != nil {
		return fmt.Errorf("failed to write state row: %w", err)
	}
	return nil
}

func (b *SQLiteBackend) Lock(ctx context.Context, info *LockInfo) error {
	tx, err := b.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin lock transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var existing LockInfo
	var created, expires string
	err = tx.QueryRowContext(ctx,
		`SELECT id, holder, operation, created_at, expires_at FROM locks WHERE name = ?`, b.name).
		Scan(&existing.ID, &existing.Holder, &existing.Operation, &created, &expires)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		// free
	case err != nil:
		return fmt.Errorf("failed to read lock row: %w", err)
	default:
		expiresAt, _ := time.Parse(time.RFC3339, expires)
		createdAt, _ := time.Parse(time.RFC3339, created)
		if time.Now().Before(expiresAt) {
			return &LockHeldError{
				ID:        existing.ID,
				Holder:    existing.Holder,
				Operation: existing.Operation,
				Age:       time.Since(createdAt),
			}
		}
		logging.Warn("reclaiming expired state lock", "holder", existing.Holder, "expired", expiresAt)
		if _, err := tx.ExecContext(ctx, `DELETE FROM locks WHERE name = ?`, b.name); err != nil {
			return fmt.Errorf("failed to reclaim expired lock: %w", err)
		}
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO locks (name, id, holder, operation, created_at, expires_at) VALUES (?, ?, ?, ?, ?, ?)`,
		b.name, info.ID, info.Holder, info.Operation,
		info.Created.Format(time.RFC3339), info.Expires.Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("failed to insert lock row: %w", err)
	}
	return tx.Commit()
}

func (b *SQLiteBackend) Renew(ctx context.Context, id string, expires time.Time) error {
	res, err := b.db.ExecContext(ctx,
		`UPDATE locks SET expires_at = ? WHERE name = ? AND id = ?`,
		expires.Format(time.RFC3339), b.name, id)
	if err != nil {
		return fmt.Errorf("failed to renew lock: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("failed to renew lock: lock %s no longer held", id)
	}
	return nil
}

func (b *SQLiteBackend) Unlock(ctx context.Context, id string, force bool) error {
	var res sql.Result
	var err error
	if force {
		res, err = b.db.ExecContext(ctx, `DELETE FROM locks WHERE name = ?`, b.name)
	} else {
		res, err = b.db.ExecContext(ctx, `DELETE FROM locks WHERE name = ? AND id = ?`, b.name, id)
	}
	if err != nil {
		return fmt.Errorf("failed to release lock: %w", err)
	}
	if !force {
		if n, _ := res.RowsAffected(); n == 0 {
			return fmt.Errorf("lock %s is not held by this process; use force-unlock to override", id)
		}
	}
	return nil
}

// Versions lists retained snapshot versions, newest first.
func (b *SQLiteBackend) Versions(ctx context.Context) ([]VersionInfo, error) {
	rows, err := b.db.QueryContext(ctx,
		`SELECT version, serial, created_at FROM snapshots WHERE name = ? ORDER BY version DESC`, b.name)
	if err != nil {
		return nil, fmt.Errorf("failed to list state versions: %w", err)
	}
	defer rows.Close()

	var out []VersionInfo
	for rows.Next() {
		var v int64
		var serial int
		var created string
		if err := rows.Scan(&v, &serial, &created); err != nil {
			return nil, err
		}
		createdAt, _ := time.Parse(time.RFC3339, created)
		out = append(out, VersionInfo{ID: strconv.FormatInt(v, 10), Serial: serial, Created: createdAt})
	}
	return out, rows.Err()
}

// FetchVersion retrieves one retained snapshot version by id.
func (b *SQLiteBackend) FetchVersion(ctx context.Context, id string) (*ir.Snapshot, error) {
	v, err := strconv.ParseInt(id, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid version id %q: %w", id, err)
	}
	var data []byte
	err = b.db.QueryRowContext(ctx,
		`SELECT data FROM snapshots WHERE name = ? AND version = ?`, b.name, v).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("state version %s not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read state version: %w", err)
	}
	var snap ir.Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("failed to parse state version: %w", err)
	}
	return &snap, nil
}
