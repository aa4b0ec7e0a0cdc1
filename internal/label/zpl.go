package label

import (
	"fmt"
	"math"
	"strings"
	"unicode/utf8"

	"github.com/Global-Optima/zeep-print-agent/internal/model"
)

// Reference design: a 320x180 dot label at 8 dots/mm. Every offset and size
// below is scaled linearly to the requested geometry.
const (
	zplDotsPerMm  = 8
	zplRefWidth   = 320
	zplRefHeight  = 180
	zplRefMargin  = 12
	zplRefQRBox   = 150
	zplRefGap     = 8
	zplRefTitle   = 26
	zplRefDetail  = 20
	zplRefLineGap = 4
	zplRefQRMag   = 4
	zplRefModule  = 2
	zplMaxQRMag   = 10
)

type zplLayout struct {
	width, height int
	scale         float64
}

func newZPLLayout(g model.Geometry) zplLayout {
	w := roundInt(g.WidthMm * zplDotsPerMm)
	h := roundInt(g.HeightMm * zplDotsPerMm)
	scale := math.Min(float64(w)/zplRefWidth, float64(h)/zplRefHeight)
	return zplLayout{width: w, height: h, scale: scale}
}

func (l zplLayout) dots(ref int) int {
	v := roundInt(float64(ref) * l.scale)
	if v < 1 {
		return 1
	}
	return v
}

func zplHeader(b *strings.Builder, l zplLayout) {
	b.WriteString("^XA\n")
	b.WriteString("^CI28\n")
	fmt.Fprintf(b, "^PW%d\n", l.width)
	fmt.Fprintf(b, "^LL%d\n", l.height)
	b.WriteString("^LH0,0\n")
}

func zplFooter(b *strings.Builder) {
	b.WriteString("^PQ1,0,1,N\n")
	b.WriteString("^XZ\n")
}

// encodeZPL emits the printer-native command stream for a label.
func encodeZPL(c model.LabelContent) []byte {
	l := newZPLLayout(c.Geometry)
	var b strings.Builder
	zplHeader(&b, l)
	if c.Family == model.FamilyBarcode {
		zplBarcodeBody(&b, l, c)
	} else {
		zplQRBody(&b, l, c)
	}
	zplFooter(&b)
	return []byte(b.String())
}

func zplQRBody(b *strings.Builder, l zplLayout, c model.LabelContent) {
	margin := l.dots(zplRefMargin)
	mag := l.dots(zplRefQRMag)
	if mag > zplMaxQRMag {
		mag = zplMaxQRMag
	}
	fmt.Fprintf(b, "^FO%d,%d^BQN,2,%d^FDMA,%s^FS\n", margin, margin, mag, sanitizeZPLData(c.Payload))

	x := margin + l.dots(zplRefQRBox) + l.dots(zplRefGap)
	width := l.width - x - margin
	lineGap := l.dots(zplRefLineGap)
	y := margin
	remaining := maxCaptionLines

	for _, block := range orderedBlocks(c.Text) {
		size := l.dots(zplRefDetail)
		if block.Role == model.TextRoleTitle {
			size = l.dots(zplRefTitle)
		}
		allowed := (l.height - margin - y + lineGap) / (size + lineGap)
		if allowed > remaining {
			allowed = remaining
		}
		if allowed <= 0 || width <= 0 {
			break
		}

		lines, _ := WrapText(block.Text, width, allowed, zplMeasurer(size))
		for _, line := range lines {
			fmt.Fprintf(b, "^FO%d,%d^A0N,%d,%d^FH\\^FD%s^FS\n", x, y, size, size, escapeZPLText(line))
			y += size + lineGap
		}
		remaining -= len(lines)
	}
}

func zplBarcodeBody(b *strings.Builder, l zplLayout, c model.LabelContent) {
	barsH := roundInt(float64(l.height) * barcodeBarsShare)
	captionH := roundInt(float64(l.height) * barcodeCaptionShare)
	top := (l.height - barsH - captionH) / 2
	margin := l.dots(zplRefMargin)

	fmt.Fprintf(b, "^BY%d,3,%d\n", l.dots(zplRefModule), barsH)
	fmt.Fprintf(b, "^FO%d,%d^BCN,%d,N,N,N^FD%s^FS\n", margin, top, barsH, sanitizeZPLData(c.Payload))

	caption := c.Payload
	if blocks := orderedBlocks(c.Text); len(blocks) > 0 {
		caption = blocks[0].Text
	}
	size := l.dots(zplRefDetail)
	if size > captionH {
		size = captionH
	}
	width := l.width - 2*margin
	lines, _ := WrapText(caption, width, barcodeCaptionLines, zplMeasurer(size))
	if len(lines) == 0 {
		return
	}
	fmt.Fprintf(b, "^FO%d,%d^A0N,%d,%d^FB%d,1,0,C^FH\\^FD%s^FS\n", margin, top+barsH, size, size, width, escapeZPLText(lines[0]))
}

// zplMeasurer approximates the scalable A0 font at 0.55 of its height per glyph.
func zplMeasurer(size int) Measurer {
	glyph := int(math.Ceil(float64(size) * 0.55))
	return func(s string) int {
		return utf8.RuneCountInString(s) * glyph
	}
}

// escapeZPLText hex-escapes every UTF-8 byte for use after ^FH\ with ^CI28.
func escapeZPLText(s string) string {
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		fmt.Fprintf(&b, "\\%02x", s[i])
	}
	return b.String()
}

// sanitizeZPLData drops characters that would terminate or corrupt a ^FD field.
func sanitizeZPLData(v string) string {
	replacer := strings.NewReplacer(
		"^", " ",
		"~", " ",
		"\n", " ",
		"\r", " ",
	)
	return replacer.Replace(strings.TrimSpace(v))
}
