// Package testdata provides synthetic masks and landmark frames shared by the
// geometry, segmentation and end-to-end tests.
package testdata

import (
	"math"

	"github.com/ayusman/biotwin/internal/mask"
)

// SquareMask returns a size x size mask of background value bg with a solid
// square of value fg covering [lo, hi) on both axes.
func SquareMask(size, lo, hi int, fg, bg float32) *mask.Mask {
	m := mask.New(size, size)
	for i := range m.Data {
		m.Data[i] = bg
	}
	m.Fill(lo, lo, hi, hi, fg)
	return m
}

// DiscMask returns a size x size mask holding a filled disc of the given
// radius centred in the grid. Inside cells read 1, outside cells read 0.
func DiscMask(size int, radius float64) *mask.Mask {
	m := mask.New(size, size)
	c := float64(size) / 2
	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			if math.Hypot(float64(x)-c, float64(y)-c) <= radius {
				m.Set(x, y, 1)
			}
		}
	}
	return m
}

// LogitMask returns a mask shaped like raw decoder output: large negative
// logits outside a square and positive logits inside it.
func LogitMask(size, lo, hi int) *mask.Mask {
	return SquareMask(size, lo, hi, 12.5, -20)
}

// TwoSquaresMask returns a mask with two separated solid squares.
func TwoSquaresMask(size int) *mask.Mask {
	m := mask.New(size, size)
	m.Fill(8, 8, 40, 40, 1)
	m.Fill(64, 64, 112, 112, 1)
	return m
}
