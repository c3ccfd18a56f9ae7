package index

import (
	"context"
)

// RecordRun stores a run and its items in one transaction
func (d *DB) RecordRun(ctx context.Context, run RunRecord, items []RunItem) (err error) {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO runs (
			id, command, system, remote_root, local_root, status,
			succeeded, skipped, failed, bytes, duration_ms, started_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, run.ID, run.Command, run.System, run.RemoteRoot, run.LocalRoot, run.Status,
		run.Succeeded, run.Skipped, run.Failed, run.Bytes, run.DurationMS, run.StartedAt)
	if err != nil {
		_ = tx.Rollback()
		return err
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR REPLACE INTO run_items (
			run_id, remote_path, local_path, kind, outcome, bytes, error_code, detail
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		_ = tx.Rollback()
		return err
	}
	defer func() {
		if closeErr := stmt.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
	}()

	for _, item := range items {
		_, err = stmt.ExecContext(ctx, run.ID, item.RemotePath, item.LocalPath,
			item.Kind, item.Outcome, item.Bytes, item.ErrorCode, item.Detail)
		if err != nil {
			_ = tx.Rollback()
			return err
		}
	}

	return tx.Commit()
}

// ListRuns returns the most recent runs, newest first
func (d *DB) ListRuns(ctx context.Context, limit int) (runs []RunRecord, err error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := d.db.QueryContext(ctx, `
		SELECT id, command, system, remote_root, local_root, status,
		       succeeded, skipped, failed, bytes, duration_ms, started_at
		FROM runs ORDER BY started_at DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
	}()

	for rows.Next() {
		var run RunRecord
		if err := rows.Scan(&run.ID, &run.Command, &run.System, &run.RemoteRoot, &run.LocalRoot,
			&run.Status, &run.Succeeded, &run.Skipped, &run.Failed, &run.Bytes,
			&run.DurationMS, &run.StartedAt); err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return runs, nil
}

// GetRun returns one run by ID
func (d *DB) GetRun(ctx context.Context, id string) (*RunRecord, error) {
	row := d.db.QueryRowContext(ctx, `
		SELECT id, command, system, remote_root, local_root, status,
		       succeeded, skipped, failed, bytes, duration_ms, started_at
		FROM runs WHERE id = ?
	`, id)
	var run RunRecord
	err := row.Scan(&run.ID, &run.Command, &run.System, &run.RemoteRoot, &run.LocalRoot,
		&run.Status, &run.Succeeded, &run.Skipped, &run.Failed, &run.Bytes,
		&run.DurationMS, &run.StartedAt)
	if err != nil {
		return nil, err
	}
	return &run, nil
}

// ListItems returns the items of one run, failures first
func (d *DB) ListItems(ctx context.Context, runID string) (items []RunItem, err error) {
	rows, err := d.db.QueryContext(ctx, `
		SELECT run_id, remote_path, local_path, kind, outcome, bytes, error_code, detail
		FROM run_items WHERE run_id = ?
		ORDER BY CASE outcome WHEN 'FAILED' THEN 0 ELSE 1 END, remote_path
	`, runID)
	if err != nil {
		return nil, err
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
	}()

	for rows.Next() {
		var item RunItem
		if err := rows.Scan(&item.RunID, &item.RemotePath, &item.LocalPath, &item.Kind,
			&item.Outcome, &item.Bytes, &item.ErrorCode, &item.Detail); err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

// Prune deletes runs (and their items) beyond the newest keep runs
func (d *DB) Prune(ctx context.Context, keep int) error {
	if keep <= 0 {
		keep = 50
	}
	_, err := d.db.ExecContext(ctx, `
		DELETE FROM run_items WHERE run_id IN (
			SELECT id FROM runs ORDER BY started_at DESC LIMIT -1 OFFSET ?
		)
	`, keep)
	if err != nil {
		return err
	}
	_, err = d.db.ExecContext(ctx, `
		DELETE FROM runs WHERE id IN (
			SELECT id FROM runs ORDER BY started_at DESC LIMIT -1 OFFSET ?
		)
	`, keep)
	return err
}
