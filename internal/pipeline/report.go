package pipeline

import (
	"fmt"
	"sync"

	"github.com/Veraticus/cobertura/internal/model"
	"github.com/Veraticus/cobertura/internal/zonal"
)

// Stage names a pipeline step.
type Stage string

// Pipeline stages.
const (
	StageZones      Stage = "zones"
	StageReclass    Stage = "reclass"
	StageTransition Stage = "transition"
	StageFinalize   Stage = "finalize"
	StageGlobal     Stage = "global"
	StageZonal      Stage = "zonal"
	StageReduced    Stage = "reduced"
)

// Failure is a unit of work that did not produce output.
type Failure struct {
	Err   error
	Stage Stage
	Unit  string
}

func (f Failure) String() string {
	return fmt.Sprintf("%s %s: %v", f.Stage, f.Unit, f.Err)
}

// Report collects units that failed or were skipped while the rest of a run completed.
type Report struct {
	Failed  []Failure
	Skipped []Failure
	mu      sync.Mutex
}

// Partial reports whether any unit failed or was skipped.
func (r *Report) Partial() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.Failed) > 0 || len(r.Skipped) > 0
}

func (r *Report) fail(stage Stage, unit string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Failed = append(r.Failed, Failure{Stage: stage, Unit: unit, Err: err})
}

func (r *Report) skip(stage Stage, unit string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Skipped = append(r.Skipped, Failure{Stage: stage, Unit: unit, Err: err})
}

// addZonal folds the per-zone issues of a zonal aggregation into the report.
func (r *Report) addZonal(stage Stage, res zonal.ZonalResult) {
	for _, issue := range res.Skipped {
		r.skip(stage, issueUnit(issue), issue.Err)
	}
	for _, issue := range res.Failed {
		r.fail(stage, issueUnit(issue), issue.Err)
	}
}

func issueUnit(i zonal.Issue) string {
	if i.ZoneName != "" {
		return i.ZoneType + "/" + i.ZoneName
	}
	return fmt.Sprintf("%s/#%d", i.ZoneType, i.Index)
}

// RunFailures converts the report into persisted failure records.
func (r *Report) RunFailures() []model.RunFailure {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]model.RunFailure, 0, len(r.Failed)+len(r.Skipped))
	for _, f := range r.Failed {
		out = append(out, model.RunFailure{Stage: string(f.Stage), Unit: f.Unit, Message: f.Err.Error()})
	}
	for _, f := range r.Skipped {
		out = append(out, model.RunFailure{Stage: string(f.Stage), Unit: f.Unit, Message: f.Err.Error(), Skipped: true})
	}
	return out
}
