package pipeline

import (
	"context"

	"github.com/Veraticus/cobertura/internal/model"
)

// Sink receives pipeline outputs. WriteClassBand and WriteTransition are called
// concurrently for distinct units; Finalize is called once after every write.
type Sink interface {
	Name() string
	WriteClassBand(ctx context.Context, cs model.ClassStack, band int) error
	WriteTransition(ctx context.Context, g model.TransitionGrid) error
	Finalize(ctx context.Context, w Written) error
}

// Progress reports per-unit advancement of each stage.
type Progress interface {
	Start(stage Stage, total int)
	Advance(stage Stage)
	Finish(stage Stage)
}

// RunStore is the persistence surface used by StoreSink.
type RunStore interface {
	SaveClassBand(ctx context.Context, runID string, year int, grid model.CodeGrid) error
	SaveTransition(ctx context.Context, runID string, g model.TransitionGrid) error
	UpdateRunCounts(ctx context.Context, id string, bands, intervals int) error
}

// Written lists the units a sink stored successfully.
type Written struct {
	Classes     model.ClassStack
	Bands       []int
	Transitions []model.TransitionGrid
}

// CompleteStack reports whether every band of the class stack was written.
func (w Written) CompleteStack() bool {
	return len(w.Bands) == len(w.Classes.Bands)
}
