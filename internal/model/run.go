package model

import "time"

// RunStatus is the lifecycle state of a pipeline run.
type RunStatus string

// Run statuses.
const (
	RunRunning   RunStatus = "running"
	RunCompleted RunStatus = "completed"
	RunPartial   RunStatus = "partial"
	RunFailed    RunStatus = "failed"
)

// Run records one invocation of the pipeline over a stack.
type Run struct {
	StartedAt  time.Time
	FinishedAt *time.Time
	NoData     *uint8
	ID         string
	StackName  string
	Manifest   string
	Status     RunStatus
	Georef     Georef
	StartYear  int
	Bands      int
	Intervals  int
	PixelArea  float64
}

// Stats kinds stored alongside a run.
const (
	KindTransition = "transition"
	KindReduced    = "reduced"
)

// RunFailure is a unit of work that failed or was skipped during a run.
type RunFailure struct {
	Stage   string
	Unit    string
	Message string
	Skipped bool
}
