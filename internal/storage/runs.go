package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/Veraticus/cobertura/internal/common"
	"github.com/Veraticus/cobertura/internal/model"
)

// CreateRun stores a new run in the running state. An ID is assigned when empty.
func (s *SQLiteStorage) CreateRun(ctx context.Context, run *model.Run) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateRun(run); err != nil {
		return err
	}

	if run.ID == "" {
		run.ID = uuid.New().String()
	}
	if run.StartedAt.IsZero() {
		run.StartedAt = time.Now()
	}
	if run.Status == "" {
		run.Status = model.RunRunning
	}

	transform, err := json.Marshal(run.Georef.Transform)
	if err != nil {
		return fmt.Errorf("failed to encode geotransform: %w", err)
	}

	var nodata sql.NullInt64
	if run.NoData != nil {
		nodata = sql.NullInt64{Int64: int64(*run.NoData), Valid: true}
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO runs (id, stack_name, manifest, start_year, bands, intervals, pixel_area,
			nodata, crs, geotransform, status, started_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, run.ID, run.StackName, run.Manifest, run.StartYear, run.Bands, run.Intervals, run.PixelArea,
		nodata, run.Georef.CRS, string(transform), string(run.Status), run.StartedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: run %s", common.ErrDuplicateEntry, run.ID)
		}
		return fmt.Errorf("failed to create run: %w", err)
	}
	return nil
}

// UpdateRunCounts records how many bands and intervals a run produced.
func (s *SQLiteStorage) UpdateRunCounts(ctx context.Context, id string, bands, intervals int) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateString(id, "id"); err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx, `UPDATE runs SET bands = ?, intervals = ? WHERE id = ?`, bands, intervals, id)
	if err != nil {
		return fmt.Errorf("failed to update run: %w", err)
	}
	return requireAffected(res, id)
}

// FinishRun marks a run as finished with the given status.
func (s *SQLiteStorage) FinishRun(ctx context.Context, id string, status model.RunStatus) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateString(id, "id"); err != nil {
		return err
	}
	if err := validateStatus(status); err != nil {
		return err
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE runs SET status = ?, finished_at = ? WHERE id = ?
	`, string(status), time.Now(), id)
	if err != nil {
		return fmt.Errorf("failed to finish run: %w", err)
	}
	return requireAffected(res, id)
}

// GetRun retrieves a run by ID.
func (s *SQLiteStorage) GetRun(ctx context.Context, id string) (*model.Run, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(id, "id"); err != nil {
		return nil, err
	}
	return s.getRunTx(ctx, s.db, id)
}

func (s *SQLiteStorage) getRunTx(ctx context.Context, q queryable, id string) (*model.Run, error) {
	row := q.QueryRowContext(ctx, runSelect+` WHERE id = ?`, id)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: run %s", common.ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run: %w", err)
	}
	return run, nil
}

// ListRuns returns runs newest first. A non-positive limit returns every run.
func (s *SQLiteStorage) ListRuns(ctx context.Context, limit int) ([]model.Run, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = -1
	}

	rows, err := s.db.QueryContext(ctx, runSelect+` ORDER BY started_at DESC, rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var runs []model.Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		runs = append(runs, *run)
	}
	return runs, rows.Err()
}

const runSelect = `
	SELECT id, stack_name, manifest, start_year, bands, intervals, pixel_area,
		nodata, crs, geotransform, status, started_at, finished_at
	FROM runs`

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(sc scanner) (*model.Run, error) {
	var (
		run       model.Run
		manifest  sql.NullString
		crs       sql.NullString
		transform sql.NullString
		status    string
		nodata    sql.NullInt64
		finished  sql.NullTime
	)
	if err := sc.Scan(
		&run.ID,
		&run.StackName,
		&manifest,
		&run.StartYear,
		&run.Bands,
		&run.Intervals,
		&run.PixelArea,
		&nodata,
		&crs,
		&transform,
		&status,
		&run.StartedAt,
		&finished,
	); err != nil {
		return nil, err
	}

	run.Manifest = manifest.String
	run.Georef.CRS = crs.String
	run.Status = model.RunStatus(status)
	if transform.Valid && transform.String != "" {
		if err := json.Unmarshal([]byte(transform.String), &run.Georef.Transform); err != nil {
			return nil, fmt.Errorf("%w: run %s geotransform: %w", common.ErrDatabaseCorrupted, run.ID, err)
		}
	}
	if nodata.Valid {
		v := uint8(nodata.Int64)
		run.NoData = &v
	}
	if finished.Valid {
		t := finished.Time
		run.FinishedAt = &t
	}
	return &run, nil
}

func requireAffected(res sql.Result, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check affected rows: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: run %s", common.ErrNotFound, id)
	}
	return nil
}
