package render

import (
	"fmt"
	"math"
	"strings"
	"sync"

	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/gomono"
	"golang.org/x/image/font/gofont/goregular"
	"golang.org/x/image/font/opentype"
)

// wideRune is the first code point measured as a full em (CJK radicals onward).
const wideRune = 0x2E80

type faceKey struct {
	mono bool
	size float64
}

// Metrics measures text with the Go fonts as a stand-in for the browser's
// font stack. Monospace families use Go Mono, everything else Go Regular.
type Metrics struct {
	regular *opentype.Font
	mono    *opentype.Font

	mu    sync.Mutex
	faces map[faceKey]font.Face
}

func NewMetrics() (*Metrics, error) {
	regular, err := opentype.Parse(goregular.TTF)
	if err != nil {
		return nil, fmt.Errorf("parse go regular: %w", err)
	}
	mono, err := opentype.Parse(gomono.TTF)
	if err != nil {
		return nil, fmt.Errorf("parse go mono: %w", err)
	}
	return &Metrics{regular: regular, mono: mono, faces: make(map[faceKey]font.Face)}, nil
}

func (m *Metrics) face(family string, size float64) (font.Face, error) {
	key := faceKey{mono: strings.Contains(strings.ToLower(family), "mono"), size: size}
	m.mu.Lock()
	defer m.mu.Unlock()
	if f, ok := m.faces[key]; ok {
		return f, nil
	}
	src := m.regular
	if key.mono {
		src = m.mono
	}
	f, err := opentype.NewFace(src, &opentype.FaceOptions{Size: size, DPI: 72, Hinting: font.HintingNone})
	if err != nil {
		return nil, err
	}
	m.faces[key] = f
	return f, nil
}

// Width returns the advance width of text in pixels at the given font size.
// Wide scripts the Go fonts lack are counted as one em per rune.
func (m *Metrics) Width(text, family string, size float64) float64 {
	if size <= 0 {
		return 0
	}
	f, err := m.face(family, size)
	if err != nil {
		return approxWidth(text, size)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	var w float64
	var run strings.Builder
	flush := func() {
		if run.Len() > 0 {
			w += float64(font.MeasureString(f, run.String())) / 64
			run.Reset()
		}
	}
	for _, r := range text {
		if r >= wideRune {
			flush()
			w += size
			continue
		}
		run.WriteRune(r)
	}
	flush()
	return math.Ceil(w)
}

func approxWidth(text string, size float64) float64 {
	var w float64
	for _, r := range text {
		if r >= wideRune {
			w += size
		} else {
			w += size * 0.55
		}
	}
	return math.Ceil(w)
}
