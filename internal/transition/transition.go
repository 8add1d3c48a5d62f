// Package transition codes land-cover changes between consecutive reduced-class bands.
package transition

import (
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"runtime"
	"strconv"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/Veraticus/cobertura/internal/common"
	"github.com/Veraticus/cobertura/internal/model"
)

// Reduced class codes the rules refer to.
const (
	forest           uint8 = 1
	naturalNonForest uint8 = 2
	anthropic        uint8 = 3
)

// FilePrefix is the filename stem prefix for persisted transition grids.
const FilePrefix = "transition_"

// ErrBadLabel indicates an interval label that is not of the form "{year}_to_{year}".
var ErrBadLabel = errors.New("invalid interval label")

// Code applies the transition rules to one predecessor/successor pair.
// Rules are evaluated in order; the first match wins.
func Code(pred, succ uint8) model.TransitionCode {
	switch {
	case pred == succ:
		return model.NoChange
	case pred == forest && succ == anthropic:
		return model.Deforestation
	case pred == anthropic && succ == forest:
		return model.Regeneration
	case pred == forest && succ == naturalNonForest:
		return model.Degradation
	default:
		return model.OtherTransition
	}
}

// table holds Code for every pair of 8-bit codes, indexed pred<<8 | succ.
var table = func() [1 << 16]uint8 {
	var t [1 << 16]uint8
	for p := 0; p < 256; p++ {
		for s := 0; s < 256; s++ {
			t[p<<8|s] = uint8(Code(uint8(p), uint8(s)))
		}
	}
	return t
}()

// Options controls transition computation.
type Options struct {
	// Workers bounds the number of intervals computed concurrently. Zero uses GOMAXPROCS.
	Workers int
}

// Compute produces one transition grid per consecutive band pair of stack.
// Stacks with fewer than two bands yield an empty registry.
func Compute(stack model.ClassStack, opts Options) (*model.Registry, error) {
	reg := model.NewRegistry()
	if err := stack.CheckShape(); err != nil {
		return nil, fmt.Errorf("%w: %w", common.ErrInvalidConfig, err)
	}
	if len(stack.Bands) < 2 {
		slog.Debug("Stack has fewer than two bands, no transitions", "stack", stack.Name, "bands", len(stack.Bands))
		return reg, nil
	}

	workers := opts.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}

	grids := make([]model.TransitionGrid, len(stack.Bands)-1)

	var g errgroup.Group
	g.SetLimit(workers)
	for i := range grids {
		g.Go(func() error {
			from, to := stack.Year(i), stack.Year(i+1)
			grids[i] = model.TransitionGrid{
				Label:    model.IntervalLabel(from, to),
				FromYear: from,
				ToYear:   to,
				Grid:     Pair(stack.Bands[i], stack.Bands[i+1]),
				NoData:   stack.NoData,
				Georef:   stack.Georef,
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	for _, grid := range grids {
		if err := reg.Add(grid); err != nil {
			return nil, err
		}
	}

	slog.Debug("Computed transitions", "stack", stack.Name, "intervals", reg.Len())
	return reg, nil
}

// Pair codes every pixel of two same-shaped bands.
func Pair(pred, succ model.CodeGrid) model.CodeGrid {
	out := model.NewCodeGrid(pred.Width, pred.Height)
	for i := range out.Pix {
		out.Pix[i] = table[int(pred.Pix[i])<<8|int(succ.Pix[i])]
	}
	return out
}

// ParseLabel extracts the years from an interval label such as "2000_to_2001".
func ParseLabel(label string) (int, int, error) {
	from, to, ok := strings.Cut(label, "_to_")
	if !ok {
		return 0, 0, fmt.Errorf("%w: %q", ErrBadLabel, label)
	}
	fromYear, err := strconv.Atoi(from)
	if err != nil {
		return 0, 0, fmt.Errorf("%w: %q", ErrBadLabel, label)
	}
	toYear, err := strconv.Atoi(to)
	if err != nil {
		return 0, 0, fmt.Errorf("%w: %q", ErrBadLabel, label)
	}
	return fromYear, toYear, nil
}

// FileStem returns the filename stem used when persisting the grid for label.
func FileStem(label string) string {
	return FilePrefix + label
}

var stemLabel = regexp.MustCompile(`(?:^|_)(\d+_to_\d+)$`)

// LabelFromStem extracts the interval label that ends a filename stem. It reverses
// FileStem and also accepts other prefixes, such as transicion_2000_to_2001.
func LabelFromStem(stem string) (string, bool) {
	m := stemLabel.FindStringSubmatch(stem)
	if m == nil {
		return "", false
	}
	return m[1], true
}
