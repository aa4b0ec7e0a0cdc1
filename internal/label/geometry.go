package label

import (
	"fmt"
	"math"

	"github.com/Global-Optima/zeep-print-agent/internal/model"
)

const (
	mmPerInch = 25.4
	// MaxLabelPixels caps the raster area of one label (about 128 MiB as RGBA).
	MaxLabelPixels = 32 << 20
)

// MmToPixels converts a physical length to device pixels, rounding to the nearest pixel.
func MmToPixels(mm float64, dpi int) int {
	return int(math.Round(mm * float64(dpi) / mmPerInch))
}

// PixelSize returns the raster dimensions of a label geometry.
func PixelSize(g model.Geometry) (int, int) {
	return MmToPixels(g.WidthMm, g.DPI), MmToPixels(g.HeightMm, g.DPI)
}

// resolveGeometry validates the geometry and fills the family default DPI.
func resolveGeometry(family model.Family, g model.Geometry) (model.Geometry, error) {
	if err := g.Validate(); err != nil {
		return g, err
	}
	if g.DPI == 0 {
		g.DPI = family.DefaultDPI()
	}
	// Checked in float space so huge values cannot overflow the int conversion.
	fw := g.WidthMm * float64(g.DPI) / mmPerInch
	fh := g.HeightMm * float64(g.DPI) / mmPerInch
	if fw*fh > MaxLabelPixels {
		return g, fmt.Errorf("%w: %gx%gmm @ %d dpi exceeds %d pixels", model.ErrInvalidGeometry, g.WidthMm, g.HeightMm, g.DPI, MaxLabelPixels)
	}
	w, h := PixelSize(g)
	if w <= 0 || h <= 0 {
		return g, model.ErrInvalidGeometry
	}
	return g, nil
}

func ptToPx(pt float64, dpi int) int {
	return int(math.Round(pt * float64(dpi) / 72))
}

func roundInt(v float64) int {
	return int(math.Round(v))
}
