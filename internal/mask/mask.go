// Package mask holds the dense confidence grid returned by the segmentation
// decoder and the statistics the geometry pipeline derives from it.
package mask

import (
	"fmt"
	"image"
	"image/color"
	"math"
)

// ThresholdFraction is the fraction of the value range above the minimum at
// which a cell counts as foreground.
const ThresholdFraction = 0.3

// minRange is the smallest value range treated as non-degenerate.
const minRange = 1e-6

// Mask is a row-major width x height grid of confidence values.
// Values are not guaranteed to lie in [0, 1].
type Mask struct {
	Width  int
	Height int
	Data   []float32
}

// New allocates a zeroed mask.
func New(width, height int) *Mask {
	if width < 0 {
		width = 0
	}
	if height < 0 {
		height = 0
	}
	return &Mask{
		Width:  width,
		Height: height,
		Data:   make([]float32, width*height),
	}
}

// FromData wraps data as a mask without copying.
func FromData(width, height int, data []float32) (*Mask, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("invalid mask dimensions %dx%d", width, height)
	}
	if len(data) < width*height {
		return nil, fmt.Errorf("mask data has %d values, need %d", len(data), width*height)
	}
	return &Mask{Width: width, Height: height, Data: data[:width*height]}, nil
}

// At returns the value at (x, y). Cells outside the grid read as negative infinity.
func (m *Mask) At(x, y int) float32 {
	if !m.inside(x, y) {
		return float32(math.Inf(-1))
	}
	return m.Data[y*m.Width+x]
}

// Set stores v at (x, y). Cells outside the grid are ignored.
func (m *Mask) Set(x, y int, v float32) {
	if !m.inside(x, y) {
		return
	}
	m.Data[y*m.Width+x] = v
}

// Foreground reports whether the value at (x, y) exceeds threshold.
// Cells outside the grid are background.
func (m *Mask) Foreground(x, y int, threshold float32) bool {
	if !m.inside(x, y) {
		return false
	}
	return m.Data[y*m.Width+x] > threshold
}

// Fill sets every cell of the rectangle [x0, x1) x [y0, y1) to v.
func (m *Mask) Fill(x0, y0, x1, y1 int, v float32) {
	for y := max(y0, 0); y < min(y1, m.Height); y++ {
		for x := max(x0, 0); x < min(x1, m.Width); x++ {
			m.Data[y*m.Width+x] = v
		}
	}
}

func (m *Mask) inside(x, y int) bool {
	return m != nil && x >= 0 && y >= 0 && x < m.Width && y < m.Height
}

// Bounds is the inclusive bounding box of the foreground cells.
type Bounds struct {
	MinX, MinY int
	MaxX, MaxY int
}

// Width returns MaxX - MinX.
func (b Bounds) Width() int { return b.MaxX - b.MinX }

// Height returns MaxY - MinY.
func (b Bounds) Height() int { return b.MaxY - b.MinY }

// Bounds returns the bounding box of the cells whose value exceeds threshold.
// ok is false when no cell qualifies.
func (m *Mask) Bounds(threshold float32) (b Bounds, ok bool) {
	if m == nil {
		return Bounds{}, false
	}

	b = Bounds{MinX: m.Width, MinY: m.Height, MaxX: -1, MaxY: -1}
	for y := 0; y < m.Height; y++ {
		row := m.Data[y*m.Width : (y+1)*m.Width]
		for x, v := range row {
			if v <= threshold {
				continue
			}
			b.MinX = min(b.MinX, x)
			b.MaxX = max(b.MaxX, x)
			b.MinY = min(b.MinY, y)
			b.MaxY = max(b.MaxY, y)
		}
	}

	if b.MaxX < 0 {
		return Bounds{}, false
	}
	return b, true
}

// AlphaMap renders the mask as a white image whose alpha channel carries the
// value normalized against the mask's own range.
func (m *Mask) AlphaMap() *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, m.Width, m.Height))
	stats := Analyze(m)
	span := stats.Range()

	for i, v := range m.Data {
		normalized := (v - stats.Min) / span
		alpha := math.Min(255, math.Max(0, float64(normalized)*255))
		img.SetNRGBA(i%m.Width, i/m.Width, color.NRGBA{R: 255, G: 255, B: 255, A: uint8(alpha)})
	}

	return img
}
