package index

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

// DB is the local run-history store. Every completed transfer run is
// recorded here so `status` can report what happened without touching
// the remote service.
type DB struct {
	db *sql.DB
}

// Open opens (and migrates) the run-history database at path
func Open(path string) (*DB, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	instance := &DB{db: db}
	if err := instance.Migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}

	return instance, nil
}

func (d *DB) Close() error {
	if d == nil || d.db == nil {
		return nil
	}
	return d.db.Close()
}

func (d *DB) Migrate(ctx context.Context) error {
	_, err := d.db.ExecContext(ctx, schemaSQL)
	return err
}

const schemaSQL = `
CREATE TABLE IF NOT EXISTS runs (
	id TEXT PRIMARY KEY,
	command TEXT NOT NULL,
	system TEXT NOT NULL,
	remote_root TEXT NOT NULL,
	local_root TEXT NOT NULL,
	status TEXT NOT NULL,
	succeeded INTEGER NOT NULL DEFAULT 0,
	skipped INTEGER NOT NULL DEFAULT 0,
	failed INTEGER NOT NULL DEFAULT 0,
	bytes INTEGER NOT NULL DEFAULT 0,
	duration_ms INTEGER NOT NULL DEFAULT 0,
	started_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS run_items (
	run_id TEXT NOT NULL,
	remote_path TEXT NOT NULL,
	local_path TEXT,
	kind TEXT NOT NULL,
	outcome TEXT NOT NULL,
	bytes INTEGER NOT NULL DEFAULT 0,
	error_code TEXT,
	detail TEXT,
	PRIMARY KEY (run_id, remote_path),
	FOREIGN KEY (run_id) REFERENCES runs(id)
);

CREATE INDEX IF NOT EXISTS idx_runs_started ON runs(started_at);
CREATE INDEX IF NOT EXISTS idx_items_outcome ON run_items(run_id, outcome);
`
