// Package model defines the raster and statistics types shared across cobertura.
package model

import (
	"errors"
	"fmt"
	"math"
)

// Grid errors.
var (
	// ErrEmptyStack indicates a stack without bands.
	ErrEmptyStack = errors.New("stack must have at least one band")
	// ErrDimensionMismatch indicates bands of differing width or height within a stack.
	ErrDimensionMismatch = errors.New("band dimensions do not match")
	// ErrPixelCount indicates a pixel buffer whose length is not width*height.
	ErrPixelCount = errors.New("pixel buffer length does not match dimensions")
)

// Grid is a single band of raw class codes stored row-major.
type Grid struct {
	Pix    []uint16
	Width  int
	Height int
}

// NewGrid allocates a zeroed grid.
func NewGrid(width, height int) Grid {
	return Grid{Width: width, Height: height, Pix: make([]uint16, width*height)}
}

// At returns the raw code at column x, row y.
func (g Grid) At(x, y int) uint16 {
	return g.Pix[y*g.Width+x]
}

// Validate checks that the pixel buffer matches the declared dimensions.
func (g Grid) Validate() error {
	if g.Width <= 0 || g.Height <= 0 {
		return fmt.Errorf("%w: %dx%d", ErrPixelCount, g.Width, g.Height)
	}
	if len(g.Pix) != g.Width*g.Height {
		return fmt.Errorf("%w: got %d, want %d", ErrPixelCount, len(g.Pix), g.Width*g.Height)
	}
	return nil
}

// CodeGrid is a single band of small unsigned codes (reduced classes or transitions).
type CodeGrid struct {
	Pix    []uint8
	Width  int
	Height int
}

// NewCodeGrid allocates a zeroed code grid.
func NewCodeGrid(width, height int) CodeGrid {
	return CodeGrid{Width: width, Height: height, Pix: make([]uint8, width*height)}
}

// At returns the code at column x, row y.
func (g CodeGrid) At(x, y int) uint8 {
	return g.Pix[y*g.Width+x]
}

// Validate checks that the pixel buffer matches the declared dimensions.
func (g CodeGrid) Validate() error {
	if g.Width <= 0 || g.Height <= 0 {
		return fmt.Errorf("%w: %dx%d", ErrPixelCount, g.Width, g.Height)
	}
	if len(g.Pix) != g.Width*g.Height {
		return fmt.Errorf("%w: got %d, want %d", ErrPixelCount, len(g.Pix), g.Width*g.Height)
	}
	return nil
}

// SameShape reports whether both grids have identical dimensions.
func (g CodeGrid) SameShape(o CodeGrid) bool {
	return g.Width == o.Width && g.Height == o.Height
}

// Georef holds the affine geotransform and coordinate reference system of a raster.
// Transform uses GDAL ordering: originX, pixelWidth, rotationX, originY, rotationY, pixelHeight.
type Georef struct {
	CRS       string     `yaml:"crs,omitempty"`
	Transform [6]float64 `yaml:"geotransform"`
}

// IsZero reports whether no geotransform has been set.
func (r Georef) IsZero() bool {
	return r.Transform == [6]float64{}
}

// PixelCenter returns the world coordinates of the center of the cell at column x, row y.
func (r Georef) PixelCenter(x, y int) (float64, float64) {
	fx := float64(x) + 0.5
	fy := float64(y) + 0.5
	t := r.Transform
	return t[0] + fx*t[1] + fy*t[2], t[3] + fx*t[4] + fy*t[5]
}

// PixelArea returns the area of one cell in squared CRS units.
func (r Georef) PixelArea() float64 {
	t := r.Transform
	return math.Abs(t[1]*t[5] - t[2]*t[4])
}
