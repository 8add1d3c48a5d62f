package storage

import (
	"context"
	"fmt"

	"github.com/Veraticus/cobertura/internal/model"
)

// SaveZoneStats replaces the statistics of one kind for a run.
// Rows keep the order given; global rows have an empty zone type.
func (s *SQLiteStorage) SaveZoneStats(ctx context.Context, runID, kind string, stats []model.ZoneStat) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateString(runID, "runID"); err != nil {
		return err
	}
	if err := validateKind(kind); err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM zone_stats WHERE run_id = ? AND kind = ?`, runID, kind); err != nil {
		return fmt.Errorf("failed to clear zone stats: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO zone_stats (run_id, kind, year, zone_type, zone_name, class_code, class_label, pixel_count, area)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	for _, st := range stats {
		if _, err := stmt.ExecContext(ctx, runID, kind, st.Year, st.ZoneType, st.ZoneName,
			int(st.ClassCode), st.ClassLabel, st.PixelCount, st.Area); err != nil {
			return fmt.Errorf("failed to save zone stat: %w", err)
		}
	}

	return tx.Commit()
}

// ListZoneStats returns the statistics of one kind for a run in stored order.
func (s *SQLiteStorage) ListZoneStats(ctx context.Context, runID, kind string) ([]model.ZoneStat, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateKind(kind); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT year, zone_type, zone_name, class_code, class_label, pixel_count, area
		FROM zone_stats
		WHERE run_id = ? AND kind = ?
		ORDER BY id
	`, runID, kind)
	if err != nil {
		return nil, fmt.Errorf("failed to list zone stats: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var stats []model.ZoneStat
	for rows.Next() {
		var st model.ZoneStat
		var code int
		if err := rows.Scan(&st.Year, &st.ZoneType, &st.ZoneName, &code, &st.ClassLabel, &st.PixelCount, &st.Area); err != nil {
			return nil, fmt.Errorf("failed to scan zone stat: %w", err)
		}
		st.ClassCode = uint8(code)
		stats = append(stats, st)
	}
	return stats, rows.Err()
}
