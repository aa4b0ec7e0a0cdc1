package label

import (
	"fmt"
	"sync"

	"github.com/golang/freetype/truetype"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/gobold"
	"golang.org/x/image/font/gofont/goregular"
)

type faceKey struct {
	bold   bool
	sizePx int
}

// fontSet parses the Go fonts once and caches faces per weight and pixel size.
type fontSet struct {
	regular *truetype.Font
	bold    *truetype.Font

	mu    sync.Mutex
	faces map[faceKey]font.Face
}

func loadFonts() (*fontSet, error) {
	regular, err := truetype.Parse(goregular.TTF)
	if err != nil {
		return nil, fmt.Errorf("failed to parse goregular font: %w", err)
	}
	bold, err := truetype.Parse(gobold.TTF)
	if err != nil {
		return nil, fmt.Errorf("failed to parse gobold font: %w", err)
	}
	return &fontSet{
		regular: regular,
		bold:    bold,
		faces:   make(map[faceKey]font.Face),
	}, nil
}

func (f *fontSet) face(bold bool, sizePx int) font.Face {
	if sizePx < 1 {
		sizePx = 1
	}
	key := faceKey{bold: bold, sizePx: sizePx}

	f.mu.Lock()
	defer f.mu.Unlock()

	if face, ok := f.faces[key]; ok {
		return face
	}
	src := f.regular
	if bold {
		src = f.bold
	}
	// 72 DPI makes the point size equal to the pixel size.
	face := truetype.NewFace(src, &truetype.Options{Size: float64(sizePx), DPI: 72, Hinting: font.HintingFull})
	f.faces[key] = face
	return face
}

func measurerFor(face font.Face) Measurer {
	return func(s string) int {
		return font.MeasureString(face, s).Ceil()
	}
}
