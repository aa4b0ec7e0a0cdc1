package label

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"

	"github.com/boombuler/barcode"
	"github.com/boombuler/barcode/code128"
	"github.com/boombuler/barcode/qr"

	"github.com/Global-Optima/zeep-print-agent/internal/model"
)

const (
	barcodeBarsShare    = 0.7
	barcodeCaptionShare = 0.2
	barcodeCaptionLines = 1

	qrTextShare = 0.3
	qrScale     = 0.9
)

func newCanvas(w, h int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Draw(img, img.Bounds(), &image.Uniform{C: color.White}, image.Point{}, draw.Src)
	return img
}

func isDark(c color.Color) bool {
	r, g, b, a := c.RGBA()
	if a < 0x8000 {
		return false
	}
	return (r+g+b)/3 < 0x8000
}

// rasterizeBarcode lays out Code128 bars over 70% of the height and the caption
// over 20%; the remaining 10% is split between the top and bottom margins.
func (r *Renderer) rasterizeBarcode(c model.LabelContent, w, h int) (*image.RGBA, error) {
	code, err := code128.Encode(c.Payload)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrInvalidPayload, err)
	}

	barsH := roundInt(float64(h) * barcodeBarsShare)
	captionH := roundInt(float64(h) * barcodeCaptionShare)
	top := (h - barsH - captionH) / 2
	side := top

	barsW := w - 2*side
	if barsW < code.Bounds().Dx() || barsH < 1 {
		return nil, fmt.Errorf("%w: %dpx is too narrow for %d modules", model.ErrInvalidGeometry, barsW, code.Bounds().Dx())
	}
	scaled, err := barcode.Scale(code, barsW, barsH)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrInvalidGeometry, err)
	}

	img := newCanvas(w, h)
	draw.Draw(img, image.Rect(side, top, side+barsW, top+barsH), scaled, scaled.Bounds().Min, draw.Over)

	blocks := c.Text
	if len(orderedBlocks(blocks)) == 0 {
		blocks = []model.TextBlock{{Text: c.Payload, Role: model.TextRoleDetail}}
	}
	lines := r.layoutCaption(blocks, barsW, captionH, c.Geometry.DPI, barcodeCaptionLines)
	drawCaption(img, lines, side, top+barsH, barsW)

	return img, nil
}

// rasterizeQR draws the caption in the top 30% (when present) and centres the
// QR code in the remaining area at 90% of its smaller side.
func (r *Renderer) rasterizeQR(c model.LabelContent, w, h int) (*image.RGBA, error) {
	code, err := qr.Encode(c.Payload, qr.M, qr.Auto)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrInvalidPayload, err)
	}

	img := newCanvas(w, h)

	textH := 0
	if len(orderedBlocks(c.Text)) > 0 {
		textH = roundInt(float64(h) * qrTextShare)
		margin := MmToPixels(2, c.Geometry.DPI)
		if m := roundInt(float64(w) * 0.025); m > margin {
			margin = m
		}
		lines := r.layoutCaption(c.Text, w-2*margin, textH-margin, c.Geometry.DPI, maxCaptionLines)
		drawCaption(img, lines, margin, margin, w-2*margin)
	}

	remH := h - textH
	size := roundInt(float64(minInt(w, remH)) * qrScale)
	modules := code.Bounds().Dx()
	if size < modules {
		return nil, fmt.Errorf("%w: %dpx cannot hold %d QR modules", model.ErrInvalidGeometry, size, modules)
	}

	originX := (w - size) / 2
	originY := textH + (remH-size)/2
	drawModules(img, code, originX, originY, size)
	return img, nil
}

// drawModules paints each dark module with integer edges so adjacent cells never gap.
func drawModules(dst *image.RGBA, code barcode.Barcode, x, y, size int) {
	b := code.Bounds()
	modules := b.Dx()
	cell := float64(size) / float64(modules)
	black := &image.Uniform{C: color.Black}

	for row := 0; row < modules; row++ {
		y0 := y + roundInt(float64(row)*cell)
		y1 := y + roundInt(float64(row+1)*cell)
		for col := 0; col < modules; col++ {
			if !isDark(code.At(b.Min.X+col, b.Min.Y+row)) {
				continue
			}
			x0 := x + roundInt(float64(col)*cell)
			x1 := x + roundInt(float64(col+1)*cell)
			draw.Draw(dst, image.Rect(x0, y0, x1, y1), black, image.Point{}, draw.Src)
		}
	}
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}
