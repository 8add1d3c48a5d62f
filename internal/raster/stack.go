package raster

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"runtime"

	"golang.org/x/sync/errgroup"

	"github.com/Veraticus/cobertura/internal/model"
)

// LoadStack reads the manifest at path and every band it lists.
// Band paths are resolved relative to the manifest.
func LoadStack(path string) (model.Stack, error) {
	m, err := ReadManifest(path)
	if err != nil {
		return model.Stack{}, err
	}

	dir := filepath.Dir(path)
	bands := make([]model.Grid, len(m.Bands))

	var g errgroup.Group
	g.SetLimit(runtime.GOMAXPROCS(0))
	for i, name := range m.Bands {
		g.Go(func() error {
			band, err := ReadBand(resolve(dir, name))
			if err != nil {
				return fmt.Errorf("band %d: %w", i+1, err)
			}
			bands[i] = band
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return model.Stack{}, err
	}

	stack := model.Stack{
		Name:      m.Name,
		StartYear: m.StartYear,
		Georef:    m.Georef(),
		Bands:     bands,
	}
	if m.NoData != nil {
		nd := uint16(*m.NoData)
		stack.NoData = &nd
	}
	if stack.Name == "" {
		stack.Name = stemOf(path)
	}

	slog.Debug("Loaded stack",
		"name", stack.Name,
		"bands", len(bands),
		"start_year", stack.StartYear)

	return stack, nil
}

// LoadClassStack reads a stack whose bands hold 8-bit class codes, such as a reclassified stack.
func LoadClassStack(path string) (model.ClassStack, error) {
	stack, err := LoadStack(path)
	if err != nil {
		return model.ClassStack{}, err
	}

	cs := model.ClassStack{
		Name:      stack.Name,
		StartYear: stack.StartYear,
		Georef:    stack.Georef,
		Bands:     make([]model.CodeGrid, len(stack.Bands)),
	}
	if stack.NoData != nil {
		if *stack.NoData > 0xFF {
			return model.ClassStack{}, fmt.Errorf("%w: nodata %d does not fit a class code", ErrBadManifest, *stack.NoData)
		}
		nd := uint8(*stack.NoData)
		cs.NoData = &nd
	}
	for i, band := range stack.Bands {
		cg, err := narrow(band)
		if err != nil {
			return model.ClassStack{}, fmt.Errorf("band %d: %w", i+1, err)
		}
		cs.Bands[i] = cg
	}
	return cs, nil
}

func resolve(dir, name string) string {
	if filepath.IsAbs(name) {
		return name
	}
	return filepath.Join(dir, name)
}

func stemOf(path string) string {
	base := filepath.Base(path)
	return base[:len(base)-len(filepath.Ext(base))]
}

// narrow converts a raw grid to class codes, rejecting values above 255.
func narrow(g model.Grid) (model.CodeGrid, error) {
	out := model.NewCodeGrid(g.Width, g.Height)
	for i, v := range g.Pix {
		if v > 0xFF {
			return model.CodeGrid{}, fmt.Errorf("%w: code %d outside 0..255", ErrBadManifest, v)
		}
		out.Pix[i] = uint8(v)
	}
	return out, nil
}
