// Package app wires the landmark provider, gesture detector and segmentation
// pipeline together and persists finished scenes.
package app

import (
	"math/rand/v2"
	"sync"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/rs/zerolog"

	"github.com/ayusman/biotwin/internal/gesture"
	"github.com/ayusman/biotwin/internal/particles"
	"github.com/ayusman/biotwin/internal/segment"
	"github.com/ayusman/biotwin/internal/store"
)

// Config holds configuration options for the application.
type Config struct {
	Store    *store.Store
	Pipeline *segment.Pipeline
	Gesture  gesture.Config
	Mirror   bool
	// Clock stamps every processed frame. Nil uses the wall clock.
	Clock clock.Clock
	Log   zerolog.Logger
}

// FrameEvent is the per-frame message sent to the renderer.
type FrameEvent struct {
	gesture.Events
	Exploded        bool    `json:"exploded"`
	ParticleOpacity float32 `json:"particleOpacity"`
	Timestamp       int64   `json:"timestamp"`
}

// Handlers receives application output. Either field may be nil.
type Handlers struct {
	OnFrame  func(FrameEvent)
	OnResult func(segment.Result)
}

// App is the main application that turns landmark frames into renderer events.
type App struct {
	config   Config
	clock    clock.Clock
	log      zerolog.Logger
	detector *gesture.EventDetector
	pipeline *segment.Pipeline
	handlers atomic.Pointer[Handlers]

	mirror   atomic.Bool
	exploded atomic.Bool

	mu        sync.Mutex
	imageName string
	cloud     *particles.Cloud
	lastFrame time.Time
	rng       *rand.Rand
}

// New creates a new App instance with the given configuration.
func New(config Config) *App {
	clk := config.Clock
	if clk == nil {
		clk = clock.New()
	}

	a := &App{
		config:   config,
		clock:    clk,
		log:      config.Log,
		detector: gesture.NewEventDetector(config.Gesture),
		pipeline: config.Pipeline,
		rng:      rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())),
	}
	a.mirror.Store(config.Mirror)
	a.handlers.Store(&Handlers{})
	return a
}

// SetHandlers swaps the output handlers. A running frame loop picks up the
// new handlers on its next frame.
func (a *App) SetHandlers(h Handlers) {
	a.handlers.Store(&h)
}

// SetMirror enables or disables horizontal cursor mirroring.
func (a *App) SetMirror(mirror bool) {
	a.mirror.Store(mirror)
}

// Mirror reports whether the cursor is mirrored.
func (a *App) Mirror() bool {
	return a.mirror.Load()
}

// Exploded reports whether the particle view is exploded.
func (a *App) Exploded() bool {
	return a.exploded.Load()
}

// SetExploded sets the particle view state.
func (a *App) SetExploded(exploded bool) {
	a.exploded.Store(exploded)
}

// ResetRotation zeroes the accumulated grab rotation.
func (a *App) ResetRotation() {
	a.detector.ResetRotation()
}

// Detector returns the gesture event detector.
func (a *App) Detector() *gesture.EventDetector {
	return a.detector
}

// Pipeline returns the segmentation pipeline, or nil when none is configured.
func (a *App) Pipeline() *segment.Pipeline {
	return a.pipeline
}

// Cloud returns a copy of the animated particle cloud, or nil.
func (a *App) Cloud() *particles.Cloud {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.cloud.Clone()
}
