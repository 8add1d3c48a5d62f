package storage

import (
	"context"
	"fmt"

	"github.com/Veraticus/cobertura/internal/common"
	"github.com/Veraticus/cobertura/internal/model"
)

// SaveClassBand stores one reclassified band of a run.
func (s *SQLiteStorage) SaveClassBand(ctx context.Context, runID string, year int, grid model.CodeGrid) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateString(runID, "runID"); err != nil {
		return err
	}
	if err := validateCodeGrid(grid, fmt.Sprintf("band %d", year)); err != nil {
		return err
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO class_bands (run_id, year, width, height, pixels)
		VALUES (?, ?, ?, ?, ?)
	`, runID, year, grid.Width, grid.Height, grid.Pix)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: band %d of run %s", common.ErrDuplicateEntry, year, runID)
		}
		return fmt.Errorf("failed to save band %d: %w", year, err)
	}
	return nil
}

// LoadClassStack rebuilds the reclassified stack of a run from its stored bands.
func (s *SQLiteStorage) LoadClassStack(ctx context.Context, runID string) (model.ClassStack, error) {
	if err := validateContext(ctx); err != nil {
		return model.ClassStack{}, err
	}
	run, err := s.GetRun(ctx, runID)
	if err != nil {
		return model.ClassStack{}, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT year, width, height, pixels
		FROM class_bands
		WHERE run_id = ?
		ORDER BY year
	`, runID)
	if err != nil {
		return model.ClassStack{}, fmt.Errorf("failed to load bands: %w", err)
	}
	defer func() { _ = rows.Close() }()

	cs := model.ClassStack{
		Name:      run.StackName,
		StartYear: run.StartYear,
		Georef:    run.Georef,
		NoData:    run.NoData,
	}
	for rows.Next() {
		var year int
		var grid model.CodeGrid
		if err := rows.Scan(&year, &grid.Width, &grid.Height, &grid.Pix); err != nil {
			return model.ClassStack{}, fmt.Errorf("failed to scan band: %w", err)
		}
		if want := cs.Year(len(cs.Bands)); year != want {
			return model.ClassStack{}, fmt.Errorf("%w: run %s is missing band %d", common.ErrDatabaseCorrupted, runID, want)
		}
		if err := validateCodeGrid(grid, fmt.Sprintf("band %d", year)); err != nil {
			return model.ClassStack{}, fmt.Errorf("%w: %w", common.ErrDatabaseCorrupted, err)
		}
		cs.Bands = append(cs.Bands, grid)
	}
	return cs, rows.Err()
}

// SaveTransition stores one transition grid of a run. Each label is stored once per run.
func (s *SQLiteStorage) SaveTransition(ctx context.Context, runID string, g model.TransitionGrid) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateString(runID, "runID"); err != nil {
		return err
	}
	if err := validateString(g.Label, "label"); err != nil {
		return err
	}
	if err := validateCodeGrid(g.Grid, g.Label); err != nil {
		return err
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO transitions (run_id, label, from_year, to_year, width, height, pixels)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, runID, g.Label, g.FromYear, g.ToYear, g.Grid.Width, g.Grid.Height, g.Grid.Pix)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: %w: %s", common.ErrDuplicateEntry, model.ErrDuplicateLabel, g.Label)
		}
		return fmt.Errorf("failed to save transition %s: %w", g.Label, err)
	}
	return nil
}

// LoadTransitions rebuilds the transition registry of a run in interval order.
func (s *SQLiteStorage) LoadTransitions(ctx context.Context, runID string) (*model.Registry, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	run, err := s.GetRun(ctx, runID)
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT label, from_year, to_year, width, height, pixels
		FROM transitions
		WHERE run_id = ?
		ORDER BY from_year, to_year
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to load transitions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	reg := model.NewRegistry()
	for rows.Next() {
		g := model.TransitionGrid{Georef: run.Georef, NoData: run.NoData}
		if err := rows.Scan(&g.Label, &g.FromYear, &g.ToYear, &g.Grid.Width, &g.Grid.Height, &g.Grid.Pix); err != nil {
			return nil, fmt.Errorf("failed to scan transition: %w", err)
		}
		if err := validateCodeGrid(g.Grid, g.Label); err != nil {
			return nil, fmt.Errorf("%w: %w", common.ErrDatabaseCorrupted, err)
		}
		if err := reg.Add(g); err != nil {
			return nil, err
		}
	}
	return reg, rows.Err()
}
