package model

import (
	"fmt"
	"math"
)

// Family selects the machine-readable code drawn on a label.
type Family string

const (
	FamilyBarcode Family = "barcode"
	FamilyQR      Family = "qr"
)

// DefaultDPI returns the printer resolution assumed for a label family.
func (f Family) DefaultDPI() int {
	if f == FamilyBarcode {
		return 300
	}
	return 203
}

type TextRole string

const (
	TextRoleTitle    TextRole = "title"
	TextRoleSubtitle TextRole = "subtitle"
	TextRoleDetail   TextRole = "detail"
)

// TextBlock is one caption entry; lower Priority renders first.
type TextBlock struct {
	Text     string
	Role     TextRole
	Priority int
}

type Geometry struct {
	WidthMm  float64 `json:"width"`
	HeightMm float64 `json:"height"`
	DPI      int     `json:"dpi,omitempty"`
}

func (g Geometry) Validate() error {
	if !(g.WidthMm > 0) || !(g.HeightMm > 0) || math.IsInf(g.WidthMm, 0) || math.IsInf(g.HeightMm, 0) || g.DPI < 0 {
		return fmt.Errorf("%w: %gx%gmm @ %d dpi", ErrInvalidGeometry, g.WidthMm, g.HeightMm, g.DPI)
	}
	return nil
}

func (g Geometry) Landscape() bool {
	return g.WidthMm > g.HeightMm
}

// LabelContent is the immutable input of a single render call.
type LabelContent struct {
	Family   Family
	Payload  string
	Text     []TextBlock
	Geometry Geometry
}

type DocumentKind string

const (
	KindPDF           DocumentKind = "PDF"
	KindPrinterNative DocumentKind = "PRINTER_NATIVE"
)

const (
	MIMEPDF    = "application/pdf"
	MIMEZPL    = "application/octet-stream"
	MIMEESCPOS = "application/vnd.escpos"
)

// RenderedLabel is a finished printable document owned by the caller.
type RenderedLabel struct {
	Kind     DocumentKind
	MIME     string
	Filename string
	Data     []byte
}
