// SPDX-License-Identifier: MIT

package record

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite" // pure Go driver
)

const catalogSchemaVersion = 1

// Catalog indexes recordings in SQLite so the API can list them without
// scanning the data directory.
type Catalog struct {
	db *sql.DB
}

// OpenCatalog opens (or creates) the catalog database at dbPath. WAL mode
// and busy_timeout apply to every pooled connection via the DSN.
func OpenCatalog(dbPath string) (*Catalog, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)&_pragma=foreign_keys(ON)", dbPath)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("record: open catalog: %w", err)
	}
	db.SetMaxOpenConns(8)
	db.SetMaxIdleConns(8)
	db.SetConnMaxLifetime(time.Hour)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("record: ping catalog: %w", err)
	}

	c := &Catalog{db: db}
	if err := c.migrate(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("record: catalog migration: %w", err)
	}
	return c, nil
}

func (c *Catalog) migrate() error {
	var current int
	if err := c.db.QueryRow("PRAGMA user_version").Scan(&current); err != nil {
		return err
	}
	if current >= catalogSchemaVersion {
		return nil
	}

	tx, err := c.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback() //nolint:errcheck

	schema := `
	CREATE TABLE IF NOT EXISTS recordings (
		id          TEXT PRIMARY KEY,
		name        TEXT NOT NULL,
		dir         TEXT NOT NULL,
		created_at  TEXT NOT NULL,
		duration_ms INTEGER NOT NULL DEFAULT 0,
		packets     INTEGER NOT NULL DEFAULT 0,
		bytes       INTEGER NOT NULL DEFAULT 0,
		status      TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_recordings_created ON recordings(created_at);

	CREATE TABLE IF NOT EXISTS recording_streams (
		recording_id TEXT NOT NULL REFERENCES recordings(id) ON DELETE CASCADE,
		stream       TEXT NOT NULL,
		packets      INTEGER NOT NULL DEFAULT 0,
		bytes        INTEGER NOT NULL DEFAULT 0,
		PRIMARY KEY (recording_id, stream)
	);
	`
	if _, err := tx.Exec(schema); err != nil {
		return err
	}
	if _, err := tx.Exec(fmt.Sprintf("PRAGMA user_version = %d", catalogSchemaVersion)); err != nil {
		return err
	}
	return tx.Commit()
}

func (c *Catalog) Close() error { return c.db.Close() }

// Insert registers a new recording in status "recording".
func (c *Catalog) Insert(ctx context.Context, rec *Recording) error {
	_, err := c.db.ExecContext(ctx, `
	INSERT INTO recordings (id, name, dir, created_at, duration_ms, packets, bytes, status)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.Name, rec.Dir, rec.CreatedAt.UTC().Format(time.RFC3339Nano),
		rec.DurationMS, rec.Packets, rec.Bytes, rec.Status,
	)
	return err
}

// Finish updates a recording's final stats, status and per-stream rows.
func (c *Catalog) Finish(ctx context.Context, id string, durationMS, packets, bytes int64, status string, streams []StreamStats) error {
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback() //nolint:errcheck

	res, err := tx.ExecContext(ctx, `
	UPDATE recordings SET duration_ms = ?, packets = ?, bytes = ?, status = ? WHERE id = ?`,
		durationMS, packets, bytes, status, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}

	for _, st := range streams {
		if _, err := tx.ExecContext(ctx, `
		INSERT INTO recording_streams (recording_id, stream, packets, bytes)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(recording_id, stream) DO UPDATE SET
			packets = excluded.packets,
			bytes = excluded.bytes`,
			id, st.Stream, st.Packets, st.Bytes); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// Get loads one recording with its per-stream stats.
func (c *Catalog) Get(ctx context.Context, id string) (*Recording, error) {
	rec := &Recording{ID: id}
	var created string
	err := c.db.QueryRowContext(ctx, `
	SELECT name, dir, created_at, duration_ms, packets, bytes, status
	FROM recordings WHERE id = ?`, id).Scan(
		&rec.Name, &rec.Dir, &created, &rec.DurationMS, &rec.Packets, &rec.Bytes, &rec.Status)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	rec.CreatedAt, _ = time.Parse(time.RFC3339Nano, created)

	rows, err := c.db.QueryContext(ctx, `
	SELECT stream, packets, bytes FROM recording_streams
	WHERE recording_id = ? ORDER BY stream`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var st StreamStats
		if err := rows.Scan(&st.Stream, &st.Packets, &st.Bytes); err != nil {
			return nil, err
		}
		rec.Streams = append(rec.Streams, st)
	}
	return rec, rows.Err()
}

// List returns all recordings, newest first.
func (c *Catalog) List(ctx context.Context) ([]*Recording, error) {
	rows, err := c.db.QueryContext(ctx, `
	SELECT id, name, dir, created_at, duration_ms, packets, bytes, status
	FROM recordings ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Recording
	for rows.Next() {
		rec := &Recording{}
		var created string
		if err := rows.Scan(&rec.ID, &rec.Name, &rec.Dir, &created,
			&rec.DurationMS, &rec.Packets, &rec.Bytes, &rec.Status); err != nil {
			return nil, err
		}
		rec.CreatedAt, _ = time.Parse(time.RFC3339Nano, created)
		out = append(out, rec)
	}
	return out, rows.Err()
}

// Delete removes a recording row (streams cascade).
func (c *Catalog) Delete(ctx context.Context, id string) error {
	res, err := c.db.ExecContext(ctx, `DELETE FROM recordings WHERE id = ?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// TotalBytes sums the stored size of completed recordings.
func (c *Catalog) TotalBytes(ctx context.Context) (int64, error) {
	var total sql.NullInt64
	err := c.db.QueryRowContext(ctx,
		`SELECT SUM(bytes) FROM recordings WHERE status != ?`, StatusRecording).Scan(&total)
	if err != nil {
		return 0, err
	}
	return total.Int64, nil
}

// ListOldestCompleted returns completed recordings oldest first, for the
// retention sweeper.
func (c *Catalog) ListOldestCompleted(ctx context.Context) ([]*Recording, error) {
	rows, err := c.db.QueryContext(ctx, `
	SELECT id, name, dir, created_at, duration_ms, packets, bytes, status
	FROM recordings WHERE status != ? ORDER BY created_at ASC`, StatusRecording)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Recording
	for rows.Next() {
		rec := &Recording{}
		var created string
		if err := rows.Scan(&rec.ID, &rec.Name, &rec.Dir, &created,
			&rec.DurationMS, &rec.Packets, &rec.Bytes, &rec.Status); err != nil {
			return nil, err
		}
		rec.CreatedAt, _ = time.Parse(time.RFC3339Nano, created)
		out = append(out, rec)
	}
	return out, rows.Err()
}
