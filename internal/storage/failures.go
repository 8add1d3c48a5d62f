package storage

import (
	"context"
	"fmt"

	"github.com/Veraticus/cobertura/internal/model"
)

// RecordFailures appends failed or skipped units to a run.
func (s *SQLiteStorage) RecordFailures(ctx context.Context, runID string, failures []model.RunFailure) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateString(runID, "runID"); err != nil {
		return err
	}
	if len(failures) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, f := range failures {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO run_failures (run_id, stage, unit, message, skipped)
			VALUES (?, ?, ?, ?, ?)
		`, runID, f.Stage, f.Unit, f.Message, f.Skipped); err != nil {
			return fmt.Errorf("failed to record failure: %w", err)
		}
	}
	return tx.Commit()
}

// ListFailures returns the failures recorded for a run in insertion order.
func (s *SQLiteStorage) ListFailures(ctx context.Context, runID string) ([]model.RunFailure, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT stage, unit, message, skipped
		FROM run_failures
		WHERE run_id = ?
		ORDER BY id
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to list failures: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var failures []model.RunFailure
	for rows.Next() {
		var f model.RunFailure
		if err := rows.Scan(&f.Stage, &f.Unit, &f.Message, &f.Skipped); err != nil {
			return nil, fmt.Errorf("failed to scan failure: %w", err)
		}
		failures = append(failures, f)
	}
	return failures, rows.Err()
}
