// Package particles samples a segmentation mask into a sparse 3D point cloud
// and animates it between its resting and exploded layouts.
package particles

import (
	"math/rand/v2"

	"github.com/chewxy/math32"

	"github.com/ayusman/biotwin/internal/mask"
)

// Sampler defaults.
const (
	DefaultStride = 8
	// DefaultExtent is the half width of the display range: points land in [-3, 3].
	DefaultExtent = 3
	// DefaultJitter is the half range of the cosmetic depth offset.
	DefaultJitter = 0.25
)

// Relaxation rates per second, matching the scene animation.
const (
	explodeRate  = 2
	assembleRate = 3
	fadeRate     = 2
	explodeScale = 3
	explodeNoise = 2
	explodeDepth = 5
)

// Config holds the sampling parameters.
type Config struct {
	Stride int
	Extent float32
	Jitter float32
}

// DefaultConfig returns the sampling parameters used by the renderer.
func DefaultConfig() Config {
	return Config{
		Stride: DefaultStride,
		Extent: DefaultExtent,
		Jitter: DefaultJitter,
	}
}

// Cloud is a flat list of xyz triples plus the resting position of each point.
type Cloud struct {
	Positions []float32 `json:"positions"`
	Originals []float32 `json:"-"`
	Opacity   float32   `json:"opacity"`
}

// Len returns the number of points.
func (c *Cloud) Len() int {
	if c == nil {
		return 0
	}
	return len(c.Positions) / 3
}

// Clone returns a deep copy of the cloud. A nil cloud clones to nil.
func (c *Cloud) Clone() *Cloud {
	if c == nil {
		return nil
	}
	return &Cloud{
		Positions: append([]float32(nil), c.Positions...),
		Originals: append([]float32(nil), c.Originals...),
		Opacity:   c.Opacity,
	}
}

// Point returns the current position of point i.
func (c *Cloud) Point(i int) (x, y, z float32) {
	return c.Positions[i*3], c.Positions[i*3+1], c.Positions[i*3+2]
}

// Original returns the resting position of point i.
func (c *Cloud) Original(i int) (x, y, z float32) {
	return c.Originals[i*3], c.Originals[i*3+1], c.Originals[i*3+2]
}

// Sample emits one point for every stride-th row and column whose value
// exceeds the stats threshold, in row-major order. rng drives the depth
// jitter; nil uses the package source.
func Sample(m *mask.Mask, stats mask.Stats, config Config, rng *rand.Rand) *Cloud {
	def := DefaultConfig()
	if config.Stride <= 0 {
		config.Stride = def.Stride
	}
	if config.Extent <= 0 {
		config.Extent = def.Extent
	}
	if config.Jitter < 0 {
		config.Jitter = def.Jitter
	}

	cloud := &Cloud{}
	if m == nil || m.Width == 0 || m.Height == 0 {
		return cloud
	}

	threshold := stats.Threshold()
	w := float32(m.Width)
	h := float32(m.Height)
	span := config.Extent * 2

	for y := 0; y < m.Height; y += config.Stride {
		for x := 0; x < m.Width; x += config.Stride {
			if m.Data[y*m.Width+x] <= threshold {
				continue
			}
			px := (float32(x)/w - 0.5) * span
			py := (0.5 - float32(y)/h) * span
			pz := (uniform(rng) - 0.5) * 2 * config.Jitter
			cloud.Positions = append(cloud.Positions, px, py, pz)
		}
	}

	cloud.Originals = append([]float32(nil), cloud.Positions...)
	return cloud
}

// Step advances the cloud by delta seconds. Exploded points drift toward a
// scattered target around three times their resting position; otherwise
// they return to rest.
func (c *Cloud) Step(delta float32, exploded bool, rng *rand.Rand) {
	if c == nil {
		return
	}

	for i := 0; i < c.Len(); i++ {
		ox, oy, oz := c.Original(i)
		px, py, pz := c.Point(i)

		if exploded {
			tx := ox*explodeScale + (uniform(rng)-0.5)*explodeNoise
			ty := oy*explodeScale + (uniform(rng)-0.5)*explodeNoise
			tz := oz + (uniform(rng)-0.5)*explodeDepth
			k := math32.Min(1, delta*explodeRate)
			c.set(i, px+(tx-px)*k, py+(ty-py)*k, pz+(tz-pz)*k)
			continue
		}

		k := math32.Min(1, delta*assembleRate)
		c.set(i, px+(ox-px)*k, py+(oy-py)*k, pz+(oz-pz)*k)
	}

	c.Opacity = Fade(c.Opacity, delta, exploded)
}

// Displacement returns the largest distance of any point from its resting position.
func (c *Cloud) Displacement() float32 {
	var worst float32
	for i := 0; i < c.Len(); i++ {
		ox, oy, oz := c.Original(i)
		px, py, pz := c.Point(i)
		dx, dy, dz := px-ox, py-oy, pz-oz
		worst = math32.Max(worst, math32.Sqrt(dx*dx+dy*dy+dz*dz))
	}
	return worst
}

// Fade moves opacity toward 1 when visible and toward 0 otherwise, clamped to [0, 1].
func Fade(opacity, delta float32, visible bool) float32 {
	if visible {
		return math32.Min(1, opacity+delta*fadeRate)
	}
	return math32.Max(0, opacity-delta*fadeRate)
}

func (c *Cloud) set(i int, x, y, z float32) {
	c.Positions[i*3] = x
	c.Positions[i*3+1] = y
	c.Positions[i*3+2] = z
}

func uniform(rng *rand.Rand) float32 {
	if rng == nil {
		return rand.Float32()
	}
	return rng.Float32()
}
