// Package contour extracts closed boundary polylines from a segmentation mask
// using sub-sampled Moore-neighbour tracing.
package contour

import (
	"github.com/ayusman/biotwin/internal/geometry"
	"github.com/ayusman/biotwin/internal/mask"
)

// Tracer defaults.
const (
	// DefaultStride is the scan grid spacing and the trace step, in cells.
	DefaultStride = 4
	// DefaultMaxSteps bounds the length of a single trace.
	DefaultMaxSteps = 500
	// DefaultRevisitPoints is the point count a trace must exceed before
	// touching a visited cell ends it.
	DefaultRevisitPoints = 5
	// DefaultMinPoints is the shortest contour kept; shorter traces are noise.
	DefaultMinPoints = 10
)

// Compass directions in clockwise screen order (y grows downward).
var directions = [8][2]int{
	{1, 0},   // E
	{1, 1},   // SE
	{0, 1},   // S
	{-1, 1},  // SW
	{-1, 0},  // W
	{-1, -1}, // NW
	{0, -1},  // N
	{1, -1},  // NE
}

const (
	dirEast  = 0
	dirSouth = 2
	dirWest  = 4
	dirNorth = 6
)

// outward returns the direction pointing off the region when walking in d.
func outward(d int) int { return (d + 6) % 8 }

// searchStart returns the first direction examined after moving in prev.
func searchStart(prev int) int { return (prev + 6) % 8 }

// TracerConfig holds the tracer parameters.
type TracerConfig struct {
	Stride        int
	MaxSteps      int
	RevisitPoints int
	MinPoints     int
}

// DefaultTracerConfig returns the tracer parameters used by the geometry pipeline.
func DefaultTracerConfig() TracerConfig {
	return TracerConfig{
		Stride:        DefaultStride,
		MaxSteps:      DefaultMaxSteps,
		RevisitPoints: DefaultRevisitPoints,
		MinPoints:     DefaultMinPoints,
	}
}

// Tracer follows region boundaries on a coarse grid.
type Tracer struct {
	config TracerConfig
}

// NewTracer creates a Tracer. Zero fields of config take their defaults.
func NewTracer(config TracerConfig) *Tracer {
	def := DefaultTracerConfig()
	if config.Stride <= 0 {
		config.Stride = def.Stride
	}
	if config.MaxSteps <= 0 {
		config.MaxSteps = def.MaxSteps
	}
	if config.RevisitPoints <= 0 {
		config.RevisitPoints = def.RevisitPoints
	}
	if config.MinPoints <= 0 {
		config.MinPoints = def.MinPoints
	}
	return &Tracer{config: config}
}

// trace holds the per-call state shared by all traces over one mask.
type trace struct {
	m         *mask.Mask
	threshold float32
	step      int
	visited   []bool
}

func (t *trace) fg(x, y int) bool {
	return t.m.Foreground(x, y, t.threshold)
}

func (t *trace) isVisited(x, y int) bool {
	return t.visited[y*t.m.Width+x]
}

func (t *trace) markVisited(x, y int) {
	t.visited[y*t.m.Width+x] = true
}

// Trace returns the boundary contours of the cells above threshold, in
// normalized [-1, 1] coordinates. The order of contours is unspecified.
func (tr *Tracer) Trace(m *mask.Mask, threshold float32) []geometry.Contour {
	if m == nil || m.Width == 0 || m.Height == 0 {
		return nil
	}

	t := &trace{
		m:         m,
		threshold: threshold,
		step:      tr.config.Stride,
		visited:   make([]bool, m.Width*m.Height),
	}

	var contours []geometry.Contour
	s := t.step

	for y := 0; y < m.Height; y += s {
		for x := 0; x < m.Width; x += s {
			here := t.fg(x, y)

			// Right neighbour.
			if x+s < m.Width && here != t.fg(x+s, y) {
				sx, sy, out := x, y, dirEast
				if !here {
					sx, out = x+s, dirWest
				}
				if c := tr.follow(t, sx, sy, out); c != nil {
					contours = append(contours, c)
				}
			}

			// Bottom neighbour.
			if y+s < m.Height && here != t.fg(x, y+s) {
				sx, sy, out := x, y, dirSouth
				if !here {
					sy, out = y+s, dirNorth
				}
				if c := tr.follow(t, sx, sy, out); c != nil {
					contours = append(contours, c)
				}
			}
		}
	}

	return contours
}

// follow traces clockwise from the foreground cell (sx, sy) whose background
// side lies in direction out. It returns nil for visited starts and noise.
func (tr *Tracer) follow(t *trace, sx, sy, out int) geometry.Contour {
	if t.isVisited(sx, sy) {
		return nil
	}

	// Walking clockwise keeps the outside on the left: prev is chosen so
	// that outward(prev) == out.
	prev := (out + 2) % 8
	cx, cy := sx, sy

	t.markVisited(cx, cy)
	points := geometry.Contour{geometry.NormalizeCell(cx, cy, t.m.Width, t.m.Height)}

	for steps := 0; steps < tr.config.MaxSteps; steps++ {
		next, ok := tr.nextDirection(t, cx, cy, prev)
		if !ok {
			break
		}

		nx := cx + directions[next][0]*t.step
		ny := cy + directions[next][1]*t.step

		if t.isVisited(nx, ny) && len(points) > tr.config.RevisitPoints {
			break
		}

		cx, cy, prev = nx, ny, next
		t.markVisited(cx, cy)
		points = append(points, geometry.NormalizeCell(cx, cy, t.m.Width, t.m.Height))
	}

	if len(points) < tr.config.MinPoints {
		return nil
	}
	return points
}

// nextDirection searches the eight neighbours clockwise from the offset
// relative to prev and returns the first one that keeps the trace on the
// boundary: the target is foreground and its outward neighbour is background.
func (tr *Tracer) nextDirection(t *trace, cx, cy, prev int) (int, bool) {
	start := searchStart(prev)
	for i := 0; i < 8; i++ {
		d := (start + i) % 8
		tx := cx + directions[d][0]*t.step
		ty := cy + directions[d][1]*t.step
		if !t.fg(tx, ty) {
			continue
		}

		o := outward(d)
		ox := tx + directions[o][0]*t.step
		oy := ty + directions[o][1]*t.step
		if t.fg(ox, oy) {
			continue
		}

		return d, true
	}
	return 0, false
}
