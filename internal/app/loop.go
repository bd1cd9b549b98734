package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/ayusman/biotwin/internal/detector"
	"github.com/ayusman/biotwin/internal/gesture"
	"github.com/ayusman/biotwin/internal/segment"
	"github.com/ayusman/biotwin/internal/store"
)

// Run processes frames from provider until it is exhausted or ctx ends.
// Exhaustion returns nil.
func (a *App) Run(ctx context.Context, provider detector.Provider) error {
	a.log.Info().Msg("frame loop started")
	defer a.log.Info().Msg("frame loop stopped")

	for {
		frame, err := provider.Next(ctx)
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("read landmarks: %w", err)
		}
		a.ProcessFrame(ctx, frame)
	}
}

// ProcessFrame classifies one frame, dispatches its actions and delivers the
// resulting event to the frame handler.
func (a *App) ProcessFrame(ctx context.Context, frame detector.Frame) FrameEvent {
	now := a.clock.Now()

	snapshot := gesture.ClassifyFrame(frame.Hands, a.mirror.Load())
	events := a.detector.Update(snapshot, now)

	for _, action := range events.Actions {
		a.dispatch(ctx, action)
	}

	ev := FrameEvent{
		Events:          events,
		Exploded:        a.exploded.Load(),
		ParticleOpacity: a.animate(now),
		Timestamp:       now.UnixMilli(),
	}

	a.log.Debug().
		Bool("hand", events.HandPresent).
		Bool("pinching", events.PinchActive).
		Bool("grabbing", events.GrabActive).
		Int("actions", len(events.Actions)).
		Msg("frame")

	if h := a.handlers.Load(); h.OnFrame != nil {
		h.OnFrame(ev)
	}
	return ev
}

func (a *App) dispatch(ctx context.Context, action gesture.Action) {
	switch action.Type {
	case gesture.ActionSegmentAt:
		if a.pipeline == nil {
			return
		}
		id, err := a.pipeline.RequestDecode(ctx, action.X, action.Y)
		if err != nil {
			a.log.Warn().Err(err).Msg("segment request failed")
			return
		}
		a.log.Info().Uint64("request", id).Float64("x", action.X).Float64("y", action.Y).Msg("segment requested")

	case gesture.ActionToggleExplosion:
		exploded := !a.exploded.Load()
		a.exploded.Store(exploded)
		a.log.Info().Bool("exploded", exploded).Msg("explosion toggled")
	}
}

// animate advances the particle cloud to now and returns its opacity.
func (a *App) animate(now time.Time) float32 {
	a.mu.Lock()
	defer a.mu.Unlock()

	var delta float32
	if !a.lastFrame.IsZero() {
		delta = float32(now.Sub(a.lastFrame).Seconds())
	}
	a.lastFrame = now

	if a.cloud == nil {
		return 0
	}
	a.cloud.Step(delta, a.exploded.Load(), a.rng)
	return a.cloud.Opacity
}

// ConsumeResults delivers pipeline results to the result handler and stores
// successful ones as scenes, until ctx ends.
func (a *App) ConsumeResults(ctx context.Context) error {
	if a.pipeline == nil {
		<-ctx.Done()
		return ctx.Err()
	}

	results, cancel := a.pipeline.Subscribe()
	defer cancel()
	return a.consume(ctx, results)
}

func (a *App) consume(ctx context.Context, results <-chan segment.Result) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case res, ok := <-results:
			if !ok {
				return nil
			}
			a.handleResult(res)
		}
	}
}

func (a *App) handleResult(res segment.Result) {
	if res.Err == nil {
		a.mu.Lock()
		a.cloud = res.Particles.Clone()
		a.mu.Unlock()

		if err := a.saveScene(res); err != nil {
			a.log.Error().Err(err).Msg("save scene")
		}
	}

	if h := a.handlers.Load(); h.OnResult != nil {
		h.OnResult(res)
	}
}

func (a *App) saveScene(res segment.Result) error {
	if a.config.Store == nil {
		return nil
	}

	a.mu.Lock()
	name := a.imageName
	a.mu.Unlock()

	sc := &store.Scene{
		ImageName:     name,
		Version:       res.Version,
		PointX:        res.Point.X,
		PointY:        res.Point.Y,
		Stats:         res.Stats,
		Shapes:        res.Shapes,
		ParticleCount: res.Particles.Len(),
	}
	if err := a.config.Store.Scenes().Create(sc); err != nil {
		return err
	}
	a.log.Info().Str("scene", sc.ID).Int("shapes", len(sc.Shapes)).Msg("scene saved")
	return nil
}

// LoadImage sends an encoded image to the pipeline under name.
func (a *App) LoadImage(ctx context.Context, name string, data []byte) (uint64, error) {
	if a.pipeline == nil {
		return 0, errors.New("no segmentation pipeline configured")
	}
	version, err := a.pipeline.LoadImage(ctx, data)
	if err != nil {
		return 0, err
	}

	a.mu.Lock()
	a.imageName = name
	a.mu.Unlock()
	return version, nil
}

// Segment decodes at (x, y) and waits for the result.
func (a *App) Segment(ctx context.Context, x, y float64) (segment.Result, error) {
	if a.pipeline == nil {
		return segment.Result{}, errors.New("no segmentation pipeline configured")
	}
	return a.pipeline.Segment(ctx, x, y)
}
