package cli

import (
	"bytes"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/Veraticus/cobertura/internal/model"
	"github.com/Veraticus/cobertura/internal/pipeline"
)

func TestProgressBars_Lifecycle(t *testing.T) {
	var out bytes.Buffer
	p := NewProgressBars(&out)

	p.Start(pipeline.StageReclass, 4)
	assert.NotNil(t, p.bar(pipeline.StageReclass))

	var wg sync.WaitGroup
	for range 4 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			p.Advance(pipeline.StageReclass)
		}()
	}
	wg.Wait()

	p.Finish(pipeline.StageReclass)
	assert.Nil(t, p.bar(pipeline.StageReclass))
	assert.Contains(t, out.String(), "Writing reclassified bands")
}

func TestProgressBars_EmptyStageHasNoBar(t *testing.T) {
	var out bytes.Buffer
	p := NewProgressBars(&out)

	p.Start(pipeline.StageTransition, 0)
	p.Advance(pipeline.StageTransition)
	p.Finish(pipeline.StageTransition)

	assert.Nil(t, p.bar(pipeline.StageTransition))
	assert.Empty(t, out.String())
}

func TestRenderRunSummary(t *testing.T) {
	reg := model.NewRegistry()

	t.Run("complete run", func(t *testing.T) {
		out := RenderRunSummary("run-1", &pipeline.Result{Report: &pipeline.Report{}, Transitions: reg})
		assert.Contains(t, out, "Run Complete")
		assert.Contains(t, out, "run-1")
		assert.Contains(t, out, "All units completed")
	})

	t.Run("partial run", func(t *testing.T) {
		report := &pipeline.Report{
			Failed: []pipeline.Failure{{Stage: pipeline.StageReclass, Unit: "tiff:2001", Err: errors.New("disk full")}},
		}
		out := RenderRunSummary("", &pipeline.Result{Report: report, Transitions: reg})
		assert.Contains(t, out, "Run Completed With Failures")
		assert.Contains(t, out, "tiff:2001")
		assert.Contains(t, out, "1 failed, 0 skipped")
	})
}

func TestRenderSeries(t *testing.T) {
	out := RenderSeries(model.TimeSeries{
		Classes: model.DefaultTransitionLabels(),
		Rows: []model.SeriesRow{
			{Year: 2001, Areas: []float64{1.5, 0, 0.25}},
			{Year: 2002, Areas: []float64{0, 2, 0}},
		},
	})

	lines := strings.Split(strings.TrimSpace(out), "\n")
	assert.Len(t, lines, 3)
	assert.Contains(t, lines[0], "Deforestation")
	assert.Contains(t, lines[1], "2001")
	assert.Contains(t, lines[1], "1.50")
	assert.Contains(t, lines[2], "2.00")
}
