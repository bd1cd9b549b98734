package contour

import (
	"github.com/ayusman/biotwin/internal/geometry"
	"github.com/ayusman/biotwin/internal/mask"
)

// Pre-filter defaults.
const (
	// DefaultMinPositive is the number of positive cells below which a mask
	// is rejected before tracing.
	DefaultMinPositive = 100
	// DefaultMinExtent is the smallest foreground bounding box side, in cells.
	DefaultMinExtent = 10
)

// Options configures Extract.
type Options struct {
	Tracer      TracerConfig
	Tolerance   float64
	MinPositive int
	MinExtent   int
	// FallbackToBounds returns the foreground bounding rectangle when
	// tracing produces no polygon.
	FallbackToBounds bool
}

// DefaultOptions returns the options used by the segmentation pipeline.
func DefaultOptions() Options {
	return Options{
		Tracer:      DefaultTracerConfig(),
		Tolerance:   geometry.DefaultTolerance,
		MinPositive: DefaultMinPositive,
		MinExtent:   DefaultMinExtent,
	}
}

// Extract turns m into simplified polygons ready for extrusion.
// Masks with too few positive cells or a tiny foreground region yield no
// shapes. Every returned contour has at least geometry.MinPolygonPoints points.
func Extract(m *mask.Mask, stats mask.Stats, opts Options) []geometry.Contour {
	if m == nil || stats.Empty() {
		return nil
	}

	minPositive := opts.MinPositive
	if minPositive <= 0 {
		minPositive = DefaultMinPositive
	}
	if stats.PositiveCount < minPositive {
		return nil
	}

	threshold := stats.Threshold()
	bounds, ok := m.Bounds(threshold)
	if !ok {
		return nil
	}

	minExtent := opts.MinExtent
	if minExtent <= 0 {
		minExtent = DefaultMinExtent
	}
	if bounds.Width() < minExtent || bounds.Height() < minExtent {
		return nil
	}

	traced := NewTracer(opts.Tracer).Trace(m, threshold)

	shapes := make([]geometry.Contour, 0, len(traced))
	for _, c := range traced {
		simplified := geometry.Simplify(c, opts.Tolerance)
		if simplified.IsPolygon() {
			shapes = append(shapes, simplified)
		}
	}

	if len(shapes) == 0 && opts.FallbackToBounds {
		return []geometry.Contour{BoundingShape(bounds, m.Width, m.Height)}
	}
	return shapes
}

// BoundingShape returns the rectangle around b as a four point contour,
// wound counter-clockwise in normalized space.
func BoundingShape(b mask.Bounds, width, height int) geometry.Contour {
	topLeft := geometry.NormalizeCell(b.MinX, b.MinY, width, height)
	bottomRight := geometry.NormalizeCell(b.MaxX, b.MaxY, width, height)

	return geometry.Contour{
		{X: topLeft.X, Y: bottomRight.Y},
		{X: bottomRight.X, Y: bottomRight.Y},
		{X: bottomRight.X, Y: topLeft.Y},
		{X: topLeft.X, Y: topLeft.Y},
	}
}
