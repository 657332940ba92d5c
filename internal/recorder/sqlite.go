package recorder

import (
	"database/sql"
	"fmt"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteRecorder persists epoch events to a SQLite database.
type SQLiteRecorder struct {
	db *sql.DB
	mu sync.Mutex
}

// NewSQLite opens (or creates) the SQLite database and runs migrations.
func NewSQLite(dbPath string) (*SQLiteRecorder, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// WAL mode so dashboards can read while the daemon writes.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}

	r := &SQLiteRecorder{db: db}
	if err := r.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return r, nil
}

func (r *SQLiteRecorder) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS epoch_events (
			id         INTEGER PRIMARY KEY AUTOINCREMENT,
			pool_id    INTEGER NOT NULL,
			epoch      INTEGER NOT NULL,
			kind       TEXT NOT NULL,
			detail     TEXT,
			created_at INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_epoch_events_pool ON epoch_events(pool_id, epoch)`,
		`CREATE INDEX IF NOT EXISTS idx_epoch_events_ts ON epoch_events(created_at)`,
	}
	for _, s := range stmts {
		if _, err := r.db.Exec(s); err != nil {
			return fmt.Errorf("exec migration: %w", err)
		}
	}
	return nil
}

// Record appends one epoch event.
func (r *SQLiteRecorder) Record(ev EpochEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, err := r.db.Exec(
		`INSERT INTO epoch_events (pool_id, epoch, kind, detail, created_at) VALUES (?, ?, ?, ?, ?)`,
		ev.PoolID, ev.Epoch, ev.Kind, ev.Detail, ev.Timestamp.Unix(),
	)
	if err != nil {
		return fmt.Errorf("insert epoch event: %w", err)
	}
	return nil
}

// Events returns the recorded events for one pool, oldest first.
func (r *SQLiteRecorder) Events(poolID uint64) ([]EpochEvent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rows, err := r.db.Query(
		`SELECT pool_id, epoch, kind, detail, created_at FROM epoch_events WHERE pool_id = ? ORDER BY id`,
		poolID,
	)
	if err != nil {
		return nil, fmt.Errorf("query epoch events: %w", err)
	}
	defer rows.Close()

	var out []EpochEvent
	for rows.Next() {
		var ev EpochEvent
		var ts int64
		if err := rows.Scan(&ev.PoolID, &ev.Epoch, &ev.Kind, &ev.Detail, &ts); err != nil {
			return nil, fmt.Errorf("scan epoch event: %w", err)
		}
		ev.Timestamp = time.Unix(ts, 0)
		out = append(out, ev)
	}
	return out, rows.Err()
}

func (r *SQLiteRecorder) Close() error {
	return r.db.Close()
}
