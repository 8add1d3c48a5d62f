package reclass

import (
	"fmt"
	"log/slog"
	"runtime"

	"golang.org/x/sync/errgroup"

	"github.com/Veraticus/cobertura/internal/common"
	"github.com/Veraticus/cobertura/internal/model"
)

// Options controls how a stack is reclassified.
type Options struct {
	// PreserveNoData keeps nodata pixels at the narrowed nodata value instead of
	// running them through the table.
	PreserveNoData bool
	// Workers bounds the number of bands processed concurrently. Zero uses GOMAXPROCS.
	Workers int
}

// Apply reclassifies every band of stack through table.
func Apply(stack model.Stack, table Table, opts Options) (model.ClassStack, error) {
	if err := stack.CheckShape(); err != nil {
		return model.ClassStack{}, fmt.Errorf("%w: %w", common.ErrInvalidConfig, err)
	}

	out := model.ClassStack{
		Name:      stack.Name,
		StartYear: stack.StartYear,
		Georef:    stack.Georef,
		Bands:     make([]model.CodeGrid, len(stack.Bands)),
	}

	narrowed, ok := narrowNoData(stack.NoData)
	if ok {
		out.NoData = &narrowed
	} else if stack.NoData != nil {
		slog.Warn("Nodata value does not fit the reduced pixel type, dropping it",
			"stack", stack.Name,
			"nodata", *stack.NoData)
	}
	if opts.PreserveNoData && stack.NoData != nil && !ok {
		return model.ClassStack{}, common.InvalidConfig("reclass.preserve_nodata",
			fmt.Sprintf("requires a nodata value in 0..255, got %d", *stack.NoData))
	}

	workers := opts.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}

	var g errgroup.Group
	g.SetLimit(workers)
	for i, band := range stack.Bands {
		g.Go(func() error {
			if opts.PreserveNoData && stack.NoData != nil {
				out.Bands[i] = reclassifyBandPreserving(band, table, *stack.NoData, narrowed)
			} else {
				out.Bands[i] = ReclassifyBand(band, table)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return model.ClassStack{}, err
	}

	slog.Debug("Reclassified stack",
		"stack", stack.Name,
		"bands", len(out.Bands),
		"rules", table.Len())

	return out, nil
}

// ReclassifyBand maps one band through table.
func ReclassifyBand(band model.Grid, table Table) model.CodeGrid {
	out := model.NewCodeGrid(band.Width, band.Height)
	for i, raw := range band.Pix {
		out.Pix[i] = table.Lookup(raw)
	}
	return out
}

func reclassifyBandPreserving(band model.Grid, table Table, nodata uint16, narrowed uint8) model.CodeGrid {
	out := model.NewCodeGrid(band.Width, band.Height)
	for i, raw := range band.Pix {
		if raw == nodata {
			out.Pix[i] = narrowed
			continue
		}
		out.Pix[i] = table.Lookup(raw)
	}
	return out
}

func narrowNoData(nd *uint16) (uint8, bool) {
	if nd == nil || *nd > 255 {
		return 0, false
	}
	return uint8(*nd), true
}
