package label

import (
	"image"
	"image/draw"
	"sort"
	"strings"

	"golang.org/x/image/font"
	"golang.org/x/image/math/fixed"

	"github.com/Global-Optima/zeep-print-agent/internal/model"
)

const (
	maxCaptionLines = 3
	minCaptionPt    = 4.0
)

// Base font sizes in points; the shrink search lowers all roles together.
var roleBasePt = map[model.TextRole]float64{
	model.TextRoleTitle:    10,
	model.TextRoleSubtitle: 9,
	model.TextRoleDetail:   8,
}

type captionLine struct {
	text string
	face font.Face
}

func orderedBlocks(blocks []model.TextBlock) []model.TextBlock {
	out := make([]model.TextBlock, 0, len(blocks))
	for _, b := range blocks {
		if strings.TrimSpace(b.Text) != "" {
			out = append(out, b)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Priority < out[j].Priority })
	return out
}

func basePt(role model.TextRole) float64 {
	if pt, ok := roleBasePt[role]; ok {
		return pt
	}
	return roleBasePt[model.TextRoleDetail]
}

// layoutCaption shrinks the font sizes one point at a time until every block
// wraps into at most maxLines lines inside the box. If even the smallest size
// does not fit, the text is truncated with an ellipsis instead.
func (r *Renderer) layoutCaption(blocks []model.TextBlock, maxWidth, maxHeight, dpi, maxLines int) []captionLine {
	blocks = orderedBlocks(blocks)
	if len(blocks) == 0 || maxWidth <= 0 || maxHeight <= 0 {
		return nil
	}

	for step := 0.0; ; step++ {
		lines, fits, atMin := r.tryCaption(blocks, maxWidth, maxHeight, dpi, maxLines, step, false)
		if fits {
			return lines
		}
		if atMin {
			lines, _, _ = r.tryCaption(blocks, maxWidth, maxHeight, dpi, maxLines, step, true)
			return lines
		}
	}
}

func (r *Renderer) tryCaption(blocks []model.TextBlock, maxWidth, maxHeight, dpi, maxLines int, step float64, truncate bool) ([]captionLine, bool, bool) {
	var out []captionLine
	usedHeight := 0
	atMin := true

	for _, b := range blocks {
		pt := basePt(b.Role) - step
		if pt > minCaptionPt {
			atMin = false
		} else {
			pt = minCaptionPt
		}

		face := r.fonts.face(b.Role == model.TextRoleTitle, ptToPx(pt, dpi))
		lineHeight := lineHeightOf(face)
		measure := measurerFor(face)

		if !truncate {
			wrapped, _ := WrapText(b.Text, maxWidth, 0, measure)
			for _, line := range wrapped {
				if measure(line) > maxWidth {
					return nil, false, atMin
				}
				out = append(out, captionLine{text: line, face: face})
			}
			usedHeight += lineHeight * len(wrapped)
			if len(out) > maxLines || usedHeight > maxHeight {
				return nil, false, atMin
			}
			continue
		}

		allowed := maxLines - len(out)
		if byHeight := (maxHeight - usedHeight) / lineHeight; byHeight < allowed {
			allowed = byHeight
		}
		if allowed <= 0 {
			break
		}
		wrapped, _ := WrapText(b.Text, maxWidth, allowed, measure)
		for _, line := range wrapped {
			out = append(out, captionLine{text: line, face: face})
		}
		usedHeight += lineHeight * len(wrapped)
	}
	return out, true, atMin
}

// drawCaption renders lines top-down from y, each centred in [x, x+width).
func drawCaption(dst draw.Image, lines []captionLine, x, y, width int) int {
	for _, line := range lines {
		metrics := line.face.Metrics()
		textWidth := font.MeasureString(line.face, line.text).Ceil()
		d := &font.Drawer{
			Dst:  dst,
			Src:  image.Black,
			Face: line.face,
			Dot:  fixed.P(x+(width-textWidth)/2, y+metrics.Ascent.Ceil()),
		}
		d.DrawString(line.text)
		y += lineHeightOf(line.face)
	}
	return y
}

func lineHeightOf(face font.Face) int {
	m := face.Metrics()
	return m.Ascent.Ceil() + m.Descent.Ceil()
}
