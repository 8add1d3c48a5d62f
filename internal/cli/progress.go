package cli

import (
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/schollz/progressbar/v3"

	"github.com/Veraticus/cobertura/internal/pipeline"
)

var stageDescriptions = map[pipeline.Stage]string{
	pipeline.StageReclass:    "Writing reclassified bands",
	pipeline.StageTransition: "Writing transitions",
}

// ProgressBars renders one terminal progress bar per pipeline stage.
type ProgressBars struct {
	writer io.Writer
	bars   map[pipeline.Stage]*progressbar.ProgressBar
	mu     sync.Mutex
}

// NewProgressBars creates progress bars that render to writer.
func NewProgressBars(writer io.Writer) *ProgressBars {
	return &ProgressBars{
		writer: writer,
		bars:   make(map[pipeline.Stage]*progressbar.ProgressBar),
	}
}

// Start opens a bar for stage. Stages with no units get no bar.
func (p *ProgressBars) Start(stage pipeline.Stage, total int) {
	if total <= 0 {
		return
	}

	desc, ok := stageDescriptions[stage]
	if !ok {
		desc = string(stage)
	}

	bar := progressbar.NewOptions(total,
		progressbar.OptionSetWriter(p.writer),
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionShowCount(),
		progressbar.OptionShowElapsedTimeOnFinish(),
		progressbar.OptionSetWidth(40),
		progressbar.OptionSetDescription("[green][bold]"+desc+"...[reset]"),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "[green]=[reset]",
			SaucerHead:    "[green]>[reset]",
			SaucerPadding: " ",
			BarStart:      "[",
			BarEnd:        "]",
		}),
		progressbar.OptionOnCompletion(func() {
			if _, err := fmt.Fprintln(p.writer); err != nil {
				slog.Warn("Failed to write newline after progress bar", "error", err)
			}
		}),
	)

	p.mu.Lock()
	p.bars[stage] = bar
	p.mu.Unlock()
}

// Advance moves the bar of stage by one unit.
func (p *ProgressBars) Advance(stage pipeline.Stage) {
	if bar := p.bar(stage); bar != nil {
		if err := bar.Add(1); err != nil {
			slog.Warn("Failed to update progress bar", "error", err)
		}
	}
}

// Finish completes and discards the bar of stage.
func (p *ProgressBars) Finish(stage pipeline.Stage) {
	p.mu.Lock()
	bar := p.bars[stage]
	delete(p.bars, stage)
	p.mu.Unlock()

	if bar != nil && !bar.IsFinished() {
		if err := bar.Finish(); err != nil {
			slog.Warn("Failed to finish progress bar", "error", err)
		}
	}
}

func (p *ProgressBars) bar(stage pipeline.Stage) *progressbar.ProgressBar {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.bars[stage]
}
