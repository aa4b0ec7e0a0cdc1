package label

import (
	"fmt"
	"image"
	"strings"
	"sync"

	"github.com/Global-Optima/zeep-print-agent/internal/model"
)

// Renderer turns label content into printable documents.
// It is safe for concurrent use; rendering is serialized because font faces
// keep per-glyph caches that are not goroutine safe.
type Renderer struct {
	fonts *fontSet
	mu    sync.Mutex
}

func NewRenderer() (*Renderer, error) {
	fonts, err := loadFonts()
	if err != nil {
		return nil, err
	}
	return &Renderer{fonts: fonts}, nil
}

// Rasterize draws the label into a bitmap of exactly PixelSize(geometry).
func (r *Renderer) Rasterize(c model.LabelContent) (image.Image, error) {
	c, err := prepare(c)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rasterize(c)
}

// Render produces a PDF or printer-native document for the label.
func (r *Renderer) Render(c model.LabelContent, kind model.DocumentKind) (model.RenderedLabel, error) {
	c, err := prepare(c)
	if err != nil {
		return model.RenderedLabel{}, err
	}

	switch kind {
	case model.KindPrinterNative:
		return model.RenderedLabel{
			Kind:     model.KindPrinterNative,
			MIME:     model.MIMEZPL,
			Filename: filename(c, "zpl"),
			Data:     encodeZPL(c),
		}, nil
	case model.KindPDF:
		r.mu.Lock()
		img, err := r.rasterize(c)
		r.mu.Unlock()
		if err != nil {
			return model.RenderedLabel{}, err
		}
		data, err := encodePDF(img, c.Geometry)
		if err != nil {
			return model.RenderedLabel{}, err
		}
		return model.RenderedLabel{
			Kind:     model.KindPDF,
			MIME:     model.MIMEPDF,
			Filename: filename(c, "pdf"),
			Data:     data,
		}, nil
	default:
		return model.RenderedLabel{}, fmt.Errorf("%w: kind %q", model.ErrUnsupportedDocument, kind)
	}
}

func (r *Renderer) rasterize(c model.LabelContent) (*image.RGBA, error) {
	w, h := PixelSize(c.Geometry)
	if c.Family == model.FamilyBarcode {
		return r.rasterizeBarcode(c, w, h)
	}
	return r.rasterizeQR(c, w, h)
}

func prepare(c model.LabelContent) (model.LabelContent, error) {
	if strings.TrimSpace(c.Payload) == "" {
		return c, model.ErrInvalidPayload
	}
	if c.Family == "" {
		c.Family = model.FamilyQR
	}
	g, err := resolveGeometry(c.Family, c.Geometry)
	if err != nil {
		return c, err
	}
	c.Geometry = g
	return c, nil
}

func filename(c model.LabelContent, ext string) string {
	return fmt.Sprintf("%s-%s.%s", c.Family, safeName(c.Payload), ext)
}

// safeName keeps payloads usable as file names.
func safeName(v string) string {
	var b strings.Builder
	for _, r := range v {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
		if b.Len() >= 48 {
			break
		}
	}
	return b.String()
}
