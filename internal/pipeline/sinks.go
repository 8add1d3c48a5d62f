package pipeline

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/Veraticus/cobertura/internal/model"
	"github.com/Veraticus/cobertura/internal/raster"
)

// TIFFSink writes bands and transition grids as TIFF files with YAML manifests.
type TIFFSink struct {
	Dir raster.Dir
}

// Name identifies the sink in reports.
func (s TIFFSink) Name() string { return "tiff" }

// WriteClassBand writes one reclassified band.
func (s TIFFSink) WriteClassBand(_ context.Context, cs model.ClassStack, band int) error {
	_, err := s.Dir.WriteReclassBand(cs, band)
	return err
}

// WriteTransition writes one transition grid.
func (s TIFFSink) WriteTransition(_ context.Context, g model.TransitionGrid) error {
	_, err := s.Dir.WriteTransition(g)
	return err
}

// Finalize writes the manifests. The reclassified stack manifest is only written when
// every band is present, since a gap would shift the years of later bands.
func (s TIFFSink) Finalize(_ context.Context, w Written) error {
	if _, err := s.Dir.WriteTransitionManifest(w.Transitions); err != nil {
		return err
	}
	if !w.CompleteStack() {
		return fmt.Errorf("reclassified stack manifest not written: %d of %d bands missing",
			len(w.Classes.Bands)-len(w.Bands), len(w.Classes.Bands))
	}
	path, err := s.Dir.WriteReclassManifest(w.Classes)
	if err != nil {
		return err
	}
	slog.Debug("Wrote manifests", "dir", s.Dir.Path, "reclass", path)
	return nil
}

// StoreSink persists bands and transition grids of one run.
type StoreSink struct {
	Store RunStore
	RunID string
}

// Name identifies the sink in reports.
func (s StoreSink) Name() string { return "sqlite" }

// WriteClassBand stores one reclassified band.
func (s StoreSink) WriteClassBand(ctx context.Context, cs model.ClassStack, band int) error {
	return s.Store.SaveClassBand(ctx, s.RunID, cs.Year(band), cs.Bands[band])
}

// WriteTransition stores one transition grid.
func (s StoreSink) WriteTransition(ctx context.Context, g model.TransitionGrid) error {
	return s.Store.SaveTransition(ctx, s.RunID, g)
}

// Finalize records how many units were stored.
func (s StoreSink) Finalize(ctx context.Context, w Written) error {
	return s.Store.UpdateRunCounts(ctx, s.RunID, len(w.Bands), len(w.Transitions))
}
