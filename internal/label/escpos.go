package label

import (
	"image"
	"image/draw"

	xdraw "golang.org/x/image/draw"
)

// DefaultReceiptWidth is the printable width of a 58mm thermal head in dots.
const DefaultReceiptWidth = 384

var (
	escposInit = []byte{0x1B, 0x40}             // ESC @
	escposFeed = []byte{0x1B, 0x64, 0x03}       // ESC d 3
	escposCut  = []byte{0x1D, 0x56, 0x41, 0x00} // GS V A 0
)

// EncodeESCPOS builds a complete print job for a thermal printer: init, the
// image as a GS v 0 raster, a three line feed and a partial cut.
func EncodeESCPOS(img image.Image, width int) []byte {
	if width <= 0 {
		width = DefaultReceiptWidth
	}
	raster := rasterESCPOS(resizeToWidth(img, width))

	job := make([]byte, 0, len(escposInit)+len(raster)+len(escposFeed)+len(escposCut))
	job = append(job, escposInit...)
	job = append(job, raster...)
	job = append(job, escposFeed...)
	job = append(job, escposCut...)
	return job
}

// rasterESCPOS packs the image into 1-bit rows, MSB first. The width is cut
// down to a multiple of 8.
func rasterESCPOS(img image.Image) []byte {
	b := img.Bounds()
	width := b.Dx() - b.Dx()%8
	height := b.Dy()
	rowBytes := width / 8

	out := make([]byte, 8, 8+rowBytes*height)
	copy(out, []byte{
		0x1D, 0x76, 0x30, 0x00,
		byte(rowBytes), byte(rowBytes >> 8),
		byte(height), byte(height >> 8),
	})
	raster := make([]byte, rowBytes*height)

	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			if isDark(img.At(b.Min.X+x, b.Min.Y+y)) {
				raster[y*rowBytes+x/8] |= 1 << (7 - uint(x%8))
			}
		}
	}
	return append(out, raster...)
}

// resizeToWidth scales with nearest-neighbour sampling, keeping the aspect
// ratio. Transparent areas come out white.
func resizeToWidth(src image.Image, targetWidth int) image.Image {
	b := src.Bounds()
	if b.Dx() == targetWidth || b.Dx() == 0 {
		return src
	}

	newHeight := b.Dy() * targetWidth / b.Dx()
	if newHeight < 1 {
		newHeight = 1
	}
	dst := image.NewRGBA(image.Rect(0, 0, targetWidth, newHeight))
	draw.Draw(dst, dst.Bounds(), image.White, image.Point{}, draw.Src)
	xdraw.NearestNeighbor.Scale(dst, dst.Bounds(), src, b, xdraw.Over, nil)
	return dst
}
