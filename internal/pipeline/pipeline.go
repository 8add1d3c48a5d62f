// Package pipeline runs reclassification, transition coding and aggregation over a stack
// and hands every output to the configured sinks.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"strconv"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Veraticus/cobertura/internal/metrics"
	"github.com/Veraticus/cobertura/internal/model"
	"github.com/Veraticus/cobertura/internal/reclass"
	"github.com/Veraticus/cobertura/internal/transition"
	"github.com/Veraticus/cobertura/internal/zonal"
	"github.com/Veraticus/cobertura/internal/zones"
)

// Config holds the semantics of a run.
type Config struct {
	Table          reclass.Table
	Transitions    zonal.Aggregator
	Reduced        *zonal.Aggregator
	Layers         []zones.Layer
	LayerFailures  []Failure
	Workers        int
	PreserveNoData bool
}

// DefaultConfig returns the default configuration for a given pixel area.
func DefaultConfig(pixelArea float64) Config {
	reduced := zonal.New(pixelArea, model.DefaultReducedLabels())
	return Config{
		Table:       reclass.DefaultTable(),
		Transitions: zonal.New(pixelArea, model.DefaultTransitionLabels()),
		Reduced:     &reduced,
	}
}

// Result holds the outputs of a run.
type Result struct {
	Report      *Report
	Transitions *model.Registry
	Reduced     *zonal.GlobalResult
	Classes     model.ClassStack
	Global      zonal.GlobalResult
	Zonal       zonal.ZonalResult
}

// Pipeline orchestrates a run over one stack.
type Pipeline struct {
	progress Progress
	metrics  *metrics.Metrics
	sinks    []Sink
	config   Config
}

// New creates a pipeline. Metrics and progress may be nil.
func New(config Config, sinks []Sink, m *metrics.Metrics, progress Progress) *Pipeline {
	if config.Workers <= 0 {
		config.Workers = runtime.GOMAXPROCS(0)
	}
	config.Transitions.Workers = config.Workers
	if config.Reduced != nil {
		reduced := *config.Reduced
		reduced.Workers = config.Workers
		config.Reduced = &reduced
	}
	if progress == nil {
		progress = nopProgress{}
	}
	return &Pipeline{
		config:   config,
		sinks:    sinks,
		metrics:  m,
		progress: progress,
	}
}

// Run reclassifies stack, codes its transitions, writes both to every sink and aggregates
// the transitions globally and per zone. Configuration violations abort before any pixel
// work; failures of individual units are collected in the result's report.
func (p *Pipeline) Run(ctx context.Context, stack model.Stack) (*Result, error) {
	if err := p.validate(); err != nil {
		return nil, err
	}

	slog.Info("Starting pipeline run",
		"stack", stack.Name,
		"bands", len(stack.Bands),
		"start_year", stack.StartYear,
		"sinks", len(p.sinks))

	result := &Result{Report: &Report{}}
	for _, f := range p.config.LayerFailures {
		result.Report.fail(f.Stage, f.Unit, f.Err)
	}

	// Reclassification
	started := time.Now()
	cs, err := reclass.Apply(stack, p.config.Table, reclass.Options{
		PreserveNoData: p.config.PreserveNoData,
		Workers:        p.config.Workers,
	})
	if err != nil {
		return nil, fmt.Errorf("reclassification failed: %w", err)
	}
	result.Classes = cs
	p.metrics.AddPixels(string(StageReclass), rawPixels(stack.Bands))
	p.metrics.ObserveStage(string(StageReclass), time.Since(started))

	written := make([]Written, len(p.sinks))
	for i := range written {
		written[i].Classes = cs
	}
	if err := p.writeBands(ctx, cs, written, result.Report); err != nil {
		return nil, err
	}

	// Transitions
	started = time.Now()
	reg, err := transition.Compute(cs, transition.Options{Workers: p.config.Workers})
	if err != nil {
		return nil, fmt.Errorf("transition coding failed: %w", err)
	}
	result.Transitions = reg
	if len(cs.Bands) > 1 {
		p.metrics.AddPixels(string(StageTransition), codePixels(cs.Bands[1:]))
	}
	p.metrics.ObserveStage(string(StageTransition), time.Since(started))

	if err := p.writeTransitions(ctx, reg.Grids(), written, result.Report); err != nil {
		return nil, err
	}

	p.finalize(ctx, written, result.Report)

	// Aggregation
	agg, err := Aggregate(ctx, p.config.Transitions, reg.YearGrids(), p.config.Layers, p.metrics, result.Report)
	if err != nil {
		return nil, err
	}
	result.Global = agg.Global
	result.Zonal = agg.Zonal
	p.recordAreas(model.KindTransition, agg.Global.Series)

	if p.config.Reduced != nil {
		reduced, err := p.config.Reduced.Global(cs.YearGrids())
		if err != nil {
			result.Report.fail(StageReduced, cs.Name, err)
		} else {
			result.Reduced = &reduced
			p.recordAreas(model.KindReduced, reduced.Series)
		}
	}

	slog.Info("Pipeline run complete",
		"stack", stack.Name,
		"intervals", reg.Len(),
		"zonal_rows", len(result.Zonal.Rows),
		"failed", len(result.Report.Failed),
		"skipped", len(result.Report.Skipped))

	return result, nil
}

func (p *Pipeline) validate() error {
	if err := p.config.Transitions.Validate(); err != nil {
		return err
	}
	if p.config.Reduced != nil {
		if err := p.config.Reduced.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// writeBands hands every band to every sink. A failed write is recorded and does
// not stop the other units.
func (p *Pipeline) writeBands(ctx context.Context, cs model.ClassStack, written []Written, report *Report) error {
	p.progress.Start(StageReclass, len(cs.Bands)*len(p.sinks))
	defer p.progress.Finish(StageReclass)

	var mu sync.Mutex
	var g errgroup.Group
	g.SetLimit(p.config.Workers)
	for si, sink := range p.sinks {
		for band := range cs.Bands {
			select {
			case <-ctx.Done():
				_ = g.Wait()
				return ctx.Err()
			default:
			}

			g.Go(func() error {
				defer p.progress.Advance(StageReclass)
				unit := strconv.Itoa(cs.Year(band))
				if err := sink.WriteClassBand(ctx, cs, band); err != nil {
					slog.Warn("Failed to write reclassified band",
						"sink", sink.Name(),
						"year", unit,
						"error", err)
					report.fail(StageReclass, sink.Name()+":"+unit, err)
					p.metrics.IncUnit(string(StageReclass), "failed")
					return nil
				}
				mu.Lock()
				written[si].Bands = append(written[si].Bands, band)
				mu.Unlock()
				p.metrics.IncUnit(string(StageReclass), "ok")
				return nil
			})
		}
	}
	return g.Wait()
}

// writeTransitions hands every transition grid to every sink.
func (p *Pipeline) writeTransitions(ctx context.Context, grids []model.TransitionGrid, written []Written, report *Report) error {
	p.progress.Start(StageTransition, len(grids)*len(p.sinks))
	defer p.progress.Finish(StageTransition)

	ok := make([][]bool, len(p.sinks))
	for i := range ok {
		ok[i] = make([]bool, len(grids))
	}

	var g errgroup.Group
	g.SetLimit(p.config.Workers)
	for si, sink := range p.sinks {
		for gi, grid := range grids {
			select {
			case <-ctx.Done():
				_ = g.Wait()
				return ctx.Err()
			default:
			}

			g.Go(func() error {
				defer p.progress.Advance(StageTransition)
				if err := sink.WriteTransition(ctx, grid); err != nil {
					slog.Warn("Failed to write transition",
						"sink", sink.Name(),
						"interval", grid.Label,
						"error", err)
					report.fail(StageTransition, sink.Name()+":"+grid.Label, err)
					p.metrics.IncUnit(string(StageTransition), "failed")
					return nil
				}
				ok[si][gi] = true
				p.metrics.IncUnit(string(StageTransition), "ok")
				return nil
			})
		}
	}
	if err := g.Wait(); err != nil {
		return err
	}

	// Keep interval order regardless of completion order.
	for si := range p.sinks {
		for gi, grid := range grids {
			if ok[si][gi] {
				written[si].Transitions = append(written[si].Transitions, grid)
			}
		}
	}
	return nil
}

func (p *Pipeline) finalize(ctx context.Context, written []Written, report *Report) {
	for si, sink := range p.sinks {
		if err := sink.Finalize(ctx, written[si]); err != nil {
			slog.Warn("Failed to finalize sink",
				"sink", sink.Name(),
				"error", err)
			report.fail(StageFinalize, sink.Name(), err)
		}
	}
}

func (p *Pipeline) recordAreas(kind string, ts model.TimeSeries) {
	for _, row := range ts.Rows {
		for i, c := range ts.Classes {
			p.metrics.SetClassArea(kind, c.Name, row.Year, row.Areas[i])
		}
	}
}

// Aggregation holds global and zonal statistics over a set of year grids.
type Aggregation struct {
	Global zonal.GlobalResult
	Zonal  zonal.ZonalResult
}

// Aggregate runs the global aggregation and, when layers are given, the zonal one.
// Zones that were skipped or failed are added to report.
func Aggregate(ctx context.Context, agg zonal.Aggregator, grids []model.YearGrid, layers []zones.Layer, m *metrics.Metrics, report *Report) (Aggregation, error) {
	var out Aggregation

	select {
	case <-ctx.Done():
		return out, ctx.Err()
	default:
	}

	started := time.Now()
	global, err := agg.Global(grids)
	if err != nil {
		return out, fmt.Errorf("global aggregation failed: %w", err)
	}
	out.Global = global
	m.ObserveStage(string(StageGlobal), time.Since(started))

	if len(layers) == 0 {
		return out, nil
	}

	select {
	case <-ctx.Done():
		return out, ctx.Err()
	default:
	}

	started = time.Now()
	res, err := agg.Zonal(grids, layers)
	if err != nil {
		return out, fmt.Errorf("zonal aggregation failed: %w", err)
	}
	out.Zonal = res
	m.ObserveStage(string(StageZonal), time.Since(started))
	for range zoneCount(layers) - len(res.Failed) - len(res.Skipped) {
		m.IncUnit(string(StageZonal), "ok")
	}
	for range res.Failed {
		m.IncUnit(string(StageZonal), "failed")
	}
	for range res.Skipped {
		m.IncUnit(string(StageZonal), "skipped")
	}
	if report != nil {
		report.addZonal(StageZonal, res)
	}
	return out, nil
}

func zoneCount(layers []zones.Layer) int {
	n := 0
	for _, l := range layers {
		n += len(l.Zones)
	}
	return n
}

func rawPixels(bands []model.Grid) int {
	n := 0
	for _, b := range bands {
		n += len(b.Pix)
	}
	return n
}

func codePixels(bands []model.CodeGrid) int {
	n := 0
	for _, b := range bands {
		n += len(b.Pix)
	}
	return n
}

type nopProgress struct{}

func (nopProgress) Start(Stage, int) {}
func (nopProgress) Advance(Stage)    {}
func (nopProgress) Finish(Stage)     {}
