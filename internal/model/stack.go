package model

import "fmt"

// Stack is an ordered sequence of raw-code bands, one per calendar year.
// Band i (0-based) holds year StartYear+i.
type Stack struct {
	NoData    *uint16
	Name      string
	Bands     []Grid
	Georef    Georef
	StartYear int
}

// Year returns the calendar year of the 0-based band index.
func (s Stack) Year(i int) int {
	return s.StartYear + i
}

// CheckShape verifies the stack has bands and that they all share dimensions.
func (s Stack) CheckShape() error {
	if len(s.Bands) == 0 {
		return ErrEmptyStack
	}
	first := s.Bands[0]
	for i, b := range s.Bands {
		if err := b.Validate(); err != nil {
			return fmt.Errorf("band %d: %w", i+1, err)
		}
		if b.Width != first.Width || b.Height != first.Height {
			return fmt.Errorf("%w: band %d is %dx%d, band 1 is %dx%d",
				ErrDimensionMismatch, i+1, b.Width, b.Height, first.Width, first.Height)
		}
	}
	return nil
}

// ClassStack is a stack of reduced-class bands with the pixel type narrowed to 8 bits.
type ClassStack struct {
	NoData    *uint8
	Name      string
	Bands     []CodeGrid
	Georef    Georef
	StartYear int
}

// Year returns the calendar year of the 0-based band index.
func (s ClassStack) Year(i int) int {
	return s.StartYear + i
}

// CheckShape verifies that all bands share dimensions. An empty stack is accepted.
func (s ClassStack) CheckShape() error {
	if len(s.Bands) == 0 {
		return nil
	}
	first := s.Bands[0]
	for i, b := range s.Bands {
		if err := b.Validate(); err != nil {
			return fmt.Errorf("band %d: %w", i+1, err)
		}
		if !b.SameShape(first) {
			return fmt.Errorf("%w: band %d is %dx%d, band 1 is %dx%d",
				ErrDimensionMismatch, i+1, b.Width, b.Height, first.Width, first.Height)
		}
	}
	return nil
}

// Widen converts the stack back to raw-code bands so it can be reclassified again.
func (s ClassStack) Widen() Stack {
	out := Stack{
		Name:      s.Name,
		StartYear: s.StartYear,
		Georef:    s.Georef,
		Bands:     make([]Grid, len(s.Bands)),
	}
	if s.NoData != nil {
		nd := uint16(*s.NoData)
		out.NoData = &nd
	}
	for i, b := range s.Bands {
		g := NewGrid(b.Width, b.Height)
		for j, v := range b.Pix {
			g.Pix[j] = uint16(v)
		}
		out.Bands[i] = g
	}
	return out
}

// YearGrids returns one aggregation unit per band, keyed by the band's year.
func (s ClassStack) YearGrids() []YearGrid {
	out := make([]YearGrid, len(s.Bands))
	for i, b := range s.Bands {
		out[i] = YearGrid{
			Year:     s.Year(i),
			FromYear: s.Year(i),
			Label:    fmt.Sprintf("%d", s.Year(i)),
			Grid:     b,
			NoData:   s.NoData,
			Georef:   s.Georef,
		}
	}
	return out
}

// YearGrid is a single code grid tagged with the year it is reported under.
// FromYear is the start of the interval the grid covers; for a single band it equals Year.
type YearGrid struct {
	NoData   *uint8
	Label    string
	Grid     CodeGrid
	Georef   Georef
	Year     int
	FromYear int
}
