// Package geometry provides the closed 2D polyline type shared by the contour
// tracer and the renderer, plus distance and angle helpers.
package geometry

import (
	"math"

	"gonum.org/v1/gonum/spatial/r2"
)

// MinPolygonPoints is the smallest point count that forms a valid polygon.
const MinPolygonPoints = 3

// Contour is an ordered, implicitly closed polyline.
// Points produced by the tracer lie in the normalized [-1, 1] square.
type Contour []r2.Vec

// Distance returns the Euclidean distance between a and b.
func Distance(a, b r2.Vec) float64 {
	return r2.Norm(r2.Sub(a, b))
}

// Angle returns the direction in radians of the vector from a to b.
func Angle(a, b r2.Vec) float64 {
	return math.Atan2(b.Y-a.Y, b.X-a.X)
}

// NormalizeCell maps cell (x, y) of a width x height grid into [-1, 1].
// The vertical axis is flipped so that +Y points up on screen.
func NormalizeCell(x, y, width, height int) r2.Vec {
	if width <= 0 || height <= 0 {
		return r2.Vec{}
	}
	return r2.Vec{
		X: float64(x)/float64(width)*2 - 1,
		Y: 1 - float64(y)/float64(height)*2,
	}
}

// IsPolygon reports whether c has enough points to be extruded.
func (c Contour) IsPolygon() bool {
	return len(c) >= MinPolygonPoints
}

// InRange reports whether every point of c lies within [-limit, limit] on both axes.
func (c Contour) InRange(limit float64) bool {
	for _, p := range c {
		if math.Abs(p.X) > limit || math.Abs(p.Y) > limit {
			return false
		}
	}
	return true
}

// Bounds returns the minimum and maximum corners of c.
// An empty contour yields two zero vectors.
func (c Contour) Bounds() (lo, hi r2.Vec) {
	if len(c) == 0 {
		return r2.Vec{}, r2.Vec{}
	}
	lo, hi = c[0], c[0]
	for _, p := range c[1:] {
		lo.X = math.Min(lo.X, p.X)
		lo.Y = math.Min(lo.Y, p.Y)
		hi.X = math.Max(hi.X, p.X)
		hi.Y = math.Max(hi.Y, p.Y)
	}
	return lo, hi
}

// Perimeter returns the length of the closed polyline, including the closing edge.
func (c Contour) Perimeter() float64 {
	if len(c) < 2 {
		return 0
	}
	var total float64
	for i := range c {
		total += Distance(c[i], c[(i+1)%len(c)])
	}
	return total
}

// Area returns the absolute polygon area using the shoelace formula.
func (c Contour) Area() float64 {
	if !c.IsPolygon() {
		return 0
	}
	var sum float64
	for i := range c {
		sum += r2.Cross(c[i], c[(i+1)%len(c)])
	}
	return math.Abs(sum) / 2
}
