package label

import (
	"bytes"
	"fmt"
	"image"
	"image/png"
	"time"

	"github.com/jung-kurt/gofpdf"

	"github.com/Global-Optima/zeep-print-agent/internal/model"
)

// Fixed so identical labels produce identical documents.
var pdfCreationDate = time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC)

// encodePDF embeds the raster into a single page sized exactly to the geometry.
func encodePDF(img image.Image, g model.Geometry) ([]byte, error) {
	var pngBuf bytes.Buffer
	if err := png.Encode(&pngBuf, img); err != nil {
		return nil, fmt.Errorf("failed to encode label PNG: %w", err)
	}

	// gofpdf swaps width and height for landscape pages.
	orientation := "P"
	size := gofpdf.SizeType{Wd: g.WidthMm, Ht: g.HeightMm}
	if g.Landscape() {
		orientation = "L"
		size = gofpdf.SizeType{Wd: g.HeightMm, Ht: g.WidthMm}
	}

	pdf := gofpdf.NewCustom(&gofpdf.InitType{
		OrientationStr: orientation,
		UnitStr:        "mm",
		Size:           size,
	})
	pdf.SetCreationDate(pdfCreationDate)
	pdf.SetMargins(0, 0, 0)
	pdf.SetAutoPageBreak(false, 0)
	pdf.AddPage()

	opts := gofpdf.ImageOptions{ImageType: "PNG"}
	pdf.RegisterImageOptionsReader("label.png", opts, &pngBuf)
	pdf.ImageOptions("label.png", 0, 0, g.WidthMm, g.HeightMm, false, opts, 0, "")

	var out bytes.Buffer
	if err := pdf.Output(&out); err != nil {
		return nil, fmt.Errorf("failed to generate PDF: %w", err)
	}
	return out.Bytes(), nil
}
