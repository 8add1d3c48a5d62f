package model

import (
	"errors"
	"fmt"
	"sync"
)

// ErrDuplicateLabel indicates a second write for an interval label already in a registry.
var ErrDuplicateLabel = errors.New("transition label already registered")

// TransitionCode labels how a pixel's reduced class changed between two consecutive years.
type TransitionCode uint8

// Transition codes.
const (
	NoChange TransitionCode = iota
	Deforestation
	Regeneration
	Degradation
	OtherTransition
)

func (c TransitionCode) String() string {
	switch c {
	case NoChange:
		return "no change"
	case Deforestation:
		return "deforestation"
	case Regeneration:
		return "regeneration"
	case Degradation:
		return "degradation"
	case OtherTransition:
		return "other"
	default:
		return fmt.Sprintf("transition(%d)", uint8(c))
	}
}

// IntervalLabel formats the registry key for the interval between two years.
func IntervalLabel(fromYear, toYear int) string {
	return fmt.Sprintf("%d_to_%d", fromYear, toYear)
}

// TransitionGrid holds the transition codes between two consecutive bands.
type TransitionGrid struct {
	NoData   *uint8
	Label    string
	Grid     CodeGrid
	Georef   Georef
	FromYear int
	ToYear   int
}

// YearGrid returns the grid as an aggregation unit keyed by its destination year.
func (t TransitionGrid) YearGrid() YearGrid {
	return YearGrid{
		Year:     t.ToYear,
		FromYear: t.FromYear,
		Label:    t.Label,
		Grid:     t.Grid,
		NoData:   t.NoData,
		Georef:   t.Georef,
	}
}

// Registry collects transition grids by interval label, preserving insertion order.
// Each label may be written exactly once.
type Registry struct {
	byLabel map[string]int
	grids   []TransitionGrid
	mu      sync.RWMutex
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{byLabel: make(map[string]int)}
}

// Add registers a grid under its label.
func (r *Registry) Add(grid TransitionGrid) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.byLabel[grid.Label]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateLabel, grid.Label)
	}
	r.byLabel[grid.Label] = len(r.grids)
	r.grids = append(r.grids, grid)
	return nil
}

// Get returns the grid registered under label.
func (r *Registry) Get(label string) (TransitionGrid, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	i, ok := r.byLabel[label]
	if !ok {
		return TransitionGrid{}, false
	}
	return r.grids[i], true
}

// Len returns the number of registered intervals.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.grids)
}

// Labels returns the interval labels in insertion order.
func (r *Registry) Labels() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	labels := make([]string, len(r.grids))
	for i, g := range r.grids {
		labels[i] = g.Label
	}
	return labels
}

// Grids returns a copy of the registered grids in insertion order.
func (r *Registry) Grids() []TransitionGrid {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]TransitionGrid, len(r.grids))
	copy(out, r.grids)
	return out
}

// YearGrids returns one aggregation unit per interval keyed by destination year.
func (r *Registry) YearGrids() []YearGrid {
	grids := r.Grids()
	out := make([]YearGrid, len(grids))
	for i, g := range grids {
		out[i] = g.YearGrid()
	}
	return out
}
