// Package segment connects the inference worker to the mask-to-geometry
// stages and fans finished results out to subscribers.
package segment

import (
	"math/rand/v2"

	"github.com/ayusman/biotwin/internal/contour"
	"github.com/ayusman/biotwin/internal/geometry"
	"github.com/ayusman/biotwin/internal/inference"
	"github.com/ayusman/biotwin/internal/mask"
	"github.com/ayusman/biotwin/internal/particles"
)

// Config holds the geometry parameters applied to every decoded mask.
type Config struct {
	Contour   contour.Options
	Particles particles.Config
	// Subscribers is the channel buffer of each subscription.
	Subscribers int
}

// DefaultConfig returns the defaults of each stage.
func DefaultConfig() Config {
	return Config{
		Contour:     contour.DefaultOptions(),
		Particles:   particles.DefaultConfig(),
		Subscribers: 8,
	}
}

// Result is the geometry derived from one decode. When Err is set no
// geometry accompanies it.
type Result struct {
	Version   uint64             `json:"version"`
	RequestID uint64             `json:"requestId"`
	Point     inference.Point    `json:"point"`
	Stats     mask.Stats         `json:"stats"`
	Shapes    []geometry.Contour `json:"shapes"`
	Particles *particles.Cloud   `json:"particles,omitempty"`
	Err       error              `json:"-"`
	Error     string             `json:"error,omitempty"`
}

// Build runs the analyzer, tracer, simplifier and sampler over m.
func Build(m *mask.Mask, config Config, rng *rand.Rand) Result {
	stats := mask.Analyze(m)
	shapes := contour.Extract(m, stats, config.Contour)
	if shapes == nil {
		shapes = []geometry.Contour{}
	}
	return Result{
		Stats:     stats,
		Shapes:    shapes,
		Particles: particles.Sample(m, stats, config.Particles, rng),
	}
}

func failed(version, requestID uint64, point inference.Point, err error) Result {
	return Result{
		Version:   version,
		RequestID: requestID,
		Point:     point,
		Err:       err,
		Error:     err.Error(),
	}
}
