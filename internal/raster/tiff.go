package raster

import (
	"fmt"
	"image"
	"os"
	"path/filepath"

	"golang.org/x/image/tiff"

	"github.com/Veraticus/cobertura/internal/common"
	"github.com/Veraticus/cobertura/internal/model"
)

// ReadBand decodes a single-band TIFF into a raw code grid.
// 8-bit gray, 16-bit gray and paletted images are accepted; palette indices are the codes.
func ReadBand(path string) (model.Grid, error) {
	f, err := os.Open(path)
	if err != nil {
		return model.Grid{}, fmt.Errorf("%w: %w", common.ErrAccess, err)
	}
	defer func() { _ = f.Close() }()

	img, err := tiff.Decode(f)
	if err != nil {
		return model.Grid{}, fmt.Errorf("%w: failed to decode %s: %w", common.ErrAccess, path, err)
	}

	b := img.Bounds()
	grid := model.NewGrid(b.Dx(), b.Dy())
	switch m := img.(type) {
	case *image.Gray:
		for y := b.Min.Y; y < b.Max.Y; y++ {
			for x := b.Min.X; x < b.Max.X; x++ {
				grid.Pix[(y-b.Min.Y)*grid.Width+(x-b.Min.X)] = uint16(m.GrayAt(x, y).Y)
			}
		}
	case *image.Gray16:
		for y := b.Min.Y; y < b.Max.Y; y++ {
			for x := b.Min.X; x < b.Max.X; x++ {
				grid.Pix[(y-b.Min.Y)*grid.Width+(x-b.Min.X)] = m.Gray16At(x, y).Y
			}
		}
	case *image.Paletted:
		for y := b.Min.Y; y < b.Max.Y; y++ {
			for x := b.Min.X; x < b.Max.X; x++ {
				grid.Pix[(y-b.Min.Y)*grid.Width+(x-b.Min.X)] = uint16(m.ColorIndexAt(x, y))
			}
		}
	default:
		return model.Grid{}, fmt.Errorf("%w: %s is a %T, want a single-band gray or paletted TIFF",
			common.ErrAccess, path, img)
	}
	return grid, nil
}

// WriteCodeGrid encodes g as a deflate-compressed 8-bit gray TIFF.
func WriteCodeGrid(path string, g model.CodeGrid) error {
	if err := g.Validate(); err != nil {
		return err
	}
	img := &image.Gray{
		Pix:    g.Pix,
		Stride: g.Width,
		Rect:   image.Rect(0, 0, g.Width, g.Height),
	}
	return writeTIFF(path, img)
}

// WriteGrid encodes g as a deflate-compressed 16-bit gray TIFF.
func WriteGrid(path string, g model.Grid) error {
	if err := g.Validate(); err != nil {
		return err
	}
	img := image.NewGray16(image.Rect(0, 0, g.Width, g.Height))
	for i, v := range g.Pix {
		img.Pix[2*i] = uint8(v >> 8)
		img.Pix[2*i+1] = uint8(v)
	}
	return writeTIFF(path, img)
}

func writeTIFF(path string, img image.Image) (err error) {
	if err := os.MkdirAll(filepath.Dir(path), 0750); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("failed to close %s: %w", path, cerr)
		}
	}()

	if err := tiff.Encode(f, img, &tiff.Options{Compression: tiff.Deflate}); err != nil {
		return fmt.Errorf("failed to encode %s: %w", path, err)
	}
	return nil
}
