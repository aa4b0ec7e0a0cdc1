package label

import (
	"bytes"
	"image"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Global-Optima/zeep-print-agent/internal/model"
)

func newTestRenderer(t *testing.T) *Renderer {
	t.Helper()
	r, err := NewRenderer()
	require.NoError(t, err)
	return r
}

func TestRender_EmptyPayload(t *testing.T) {
	r := newTestRenderer(t)

	for _, payload := range []string{"", "   "} {
		c := orderQRContent()
		c.Payload = payload
		_, err := r.Render(c, model.KindPDF)
		assert.ErrorIs(t, err, model.ErrInvalidPayload)
		_, err = r.Render(c, model.KindPrinterNative)
		assert.ErrorIs(t, err, model.ErrInvalidPayload)
	}
}

func TestRender_InvalidGeometry(t *testing.T) {
	r := newTestRenderer(t)

	for _, g := range []model.Geometry{
		{WidthMm: 0, HeightMm: 80},
		{WidthMm: 80, HeightMm: -1},
	} {
		c := orderQRContent()
		c.Geometry = g
		_, err := r.Render(c, model.KindPDF)
		assert.ErrorIs(t, err, model.ErrInvalidGeometry)
		_, err = r.Render(c, model.KindPrinterNative)
		assert.ErrorIs(t, err, model.ErrInvalidGeometry)
	}
}

func TestRender_UnsupportedKind(t *testing.T) {
	r := newTestRenderer(t)

	_, err := r.Render(orderQRContent(), model.DocumentKind("PNG"))
	assert.ErrorIs(t, err, model.ErrUnsupportedDocument)
}

func TestRasterize_QRSize(t *testing.T) {
	r := newTestRenderer(t)

	img, err := r.Rasterize(orderQRContent())
	require.NoError(t, err)
	assert.Equal(t, 639, img.Bounds().Dx())
	assert.Equal(t, 639, img.Bounds().Dy())
}

func TestRasterize_QRWithoutTextIsCentred(t *testing.T) {
	r := newTestRenderer(t)
	c := orderQRContent()
	c.Text = nil

	img, err := r.Rasterize(c)
	require.NoError(t, err)

	// 90% of 639 leaves a white frame of about 32px on every side.
	assert.False(t, isDark(img.At(10, 10)))
	assert.False(t, isDark(img.At(628, 628)))
	// The finder pattern sits in the top left corner of the code.
	assert.True(t, isDark(img.At(40, 40)))
}

func TestRasterize_BarcodeLayout(t *testing.T) {
	r := newTestRenderer(t)
	c := model.LabelContent{
		Family:   model.FamilyBarcode,
		Payload:  "ABC-123",
		Geometry: model.Geometry{WidthMm: 100, HeightMm: 50},
	}

	img, err := r.Rasterize(c)
	require.NoError(t, err)
	require.Equal(t, 1181, img.Bounds().Dx())
	require.Equal(t, 591, img.Bounds().Dy())

	// Bars occupy rows [29, 443); the top margin is blank.
	assert.False(t, rowHasInk(img, 10))
	assert.True(t, rowHasInk(img, 200))
}

func TestRasterize_BarcodeTooNarrow(t *testing.T) {
	r := newTestRenderer(t)
	c := model.LabelContent{
		Family:   model.FamilyBarcode,
		Payload:  "ABCDEFGHIJKLMNOPQRSTUVWXYZ",
		Geometry: model.Geometry{WidthMm: 10, HeightMm: 5},
	}

	_, err := r.Rasterize(c)
	assert.ErrorIs(t, err, model.ErrInvalidGeometry)
}

func TestRender_PDFPageSize(t *testing.T) {
	r := newTestRenderer(t)
	c := model.LabelContent{
		Family:   model.FamilyBarcode,
		Payload:  "ABC-123",
		Geometry: model.Geometry{WidthMm: 100, HeightMm: 50},
	}

	doc, err := r.Render(c, model.KindPDF)
	require.NoError(t, err)
	assert.Equal(t, model.KindPDF, doc.Kind)
	assert.Equal(t, model.MIMEPDF, doc.MIME)
	assert.Equal(t, "barcode-ABC-123.pdf", doc.Filename)
	assert.True(t, bytes.HasPrefix(doc.Data, []byte("%PDF-")))
	// 100x50mm in points, landscape.
	assert.Contains(t, string(doc.Data), "283.46 141.73")
}

func TestRender_PDFPortrait(t *testing.T) {
	r := newTestRenderer(t)

	doc, err := r.Render(orderQRContent(), model.KindPDF)
	require.NoError(t, err)
	assert.Contains(t, string(doc.Data), "226.77 226.77")
}

func rowHasInk(img image.Image, y int) bool {
	b := img.Bounds()
	for x := b.Min.X; x < b.Max.X; x++ {
		if isDark(img.At(x, y)) {
			return true
		}
	}
	return false
}
