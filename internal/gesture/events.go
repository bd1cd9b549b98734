package gesture

import (
	"encoding/json"
	"fmt"
	"math"
	"sync"
	"time"
)

// RotationMode selects how a grab drives scene rotation.
type RotationMode string

const (
	// RotationAngle rotates around Y by the change in wrist angle.
	RotationAngle RotationMode = "angle"
	// RotationCursor rotates by cursor travel since the previous frame.
	RotationCursor RotationMode = "cursor"
)

// ParseRotationMode converts a settings value to a RotationMode.
func ParseRotationMode(s string) (RotationMode, error) {
	switch RotationMode(s) {
	case RotationAngle, RotationCursor:
		return RotationMode(s), nil
	case "":
		return RotationAngle, nil
	}
	return "", fmt.Errorf("unknown rotation mode %q", s)
}

// ActionType identifies a one-shot action.
type ActionType string

const (
	ActionSegmentAt       ActionType = "segment_at"
	ActionToggleExplosion ActionType = "toggle_explosion"
)

// Action is a one-shot command emitted by the detector. X and Y are set for
// ActionSegmentAt and only encoded for it.
type Action struct {
	Type ActionType
	X    float64
	Y    float64
}

// MarshalJSON encodes {"type","x","y"} for ActionSegmentAt, where zero is a
// valid coordinate, and {"type"} otherwise.
func (a Action) MarshalJSON() ([]byte, error) {
	if a.Type == ActionSegmentAt {
		return json.Marshal(struct {
			Type ActionType `json:"type"`
			X    float64    `json:"x"`
			Y    float64    `json:"y"`
		}{a.Type, a.X, a.Y})
	}
	return json.Marshal(struct {
		Type ActionType `json:"type"`
	}{a.Type})
}

// UnmarshalJSON decodes either form written by MarshalJSON.
func (a *Action) UnmarshalJSON(data []byte) error {
	var wire struct {
		Type ActionType `json:"type"`
		X    float64    `json:"x"`
		Y    float64    `json:"y"`
	}
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}
	*a = Action{Type: wire.Type, X: wire.X, Y: wire.Y}
	return nil
}

// Rotation is the accumulated scene rotation in radians.
type Rotation struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Events is the detector output for one frame. The edge flags and Actions
// are set on exactly one frame per transition.
type Events struct {
	HandPresent      bool     `json:"handPresent"`
	Cursor           Cursor   `json:"cursor"`
	PinchActive      bool     `json:"pinching"`
	GrabActive       bool     `json:"grabbing"`
	PinchStarted     bool     `json:"-"`
	PinchEnded       bool     `json:"-"`
	GrabStarted      bool     `json:"-"`
	GrabEnded        bool     `json:"-"`
	DoublePinchFired bool     `json:"doublePinch"`
	Rotation         Rotation `json:"rotation"`
	Actions          []Action `json:"actions"`
}

// Config holds the timing and rotation parameters of an EventDetector.
type Config struct {
	// TriggerInterval is the minimum gap between SegmentAt actions.
	TriggerInterval time.Duration
	// DoublePinchWindow is the maximum gap between two pinch onsets.
	DoublePinchWindow time.Duration
	// Mode is the grab rotation strategy.
	Mode RotationMode
	// AngleGain scales wrist angle deltas in RotationAngle mode.
	AngleGain float64
	// MinAngleDelta and MaxAngleDelta bound accepted wrist angle deltas.
	MinAngleDelta float64
	MaxAngleDelta float64
	// Dampening scales cursor travel in RotationCursor mode.
	Dampening float64
}

// DefaultConfig returns the detector parameters used by the renderer.
func DefaultConfig() Config {
	return Config{
		TriggerInterval:   500 * time.Millisecond,
		DoublePinchWindow: 300 * time.Millisecond,
		Mode:              RotationAngle,
		AngleGain:         2,
		MinAngleDelta:     0.01,
		MaxAngleDelta:     1,
		Dampening:         0.1,
	}
}

// EventDetector converts a stream of snapshots into debounced events.
// Time is supplied by the caller.
type EventDetector struct {
	config Config
	mu     sync.Mutex

	triggered     bool
	lastTriggerAt time.Time

	hasOnset         bool
	lastPinchOnsetAt time.Time
	pinchRepeatCount int

	hasAngle       bool
	lastWristAngle float64

	anchored   bool
	grabAnchor Cursor

	rotation Rotation

	pinching bool
	grabbing bool
}

// NewEventDetector creates a detector. Zero config fields take defaults.
func NewEventDetector(config Config) *EventDetector {
	def := DefaultConfig()
	if config.TriggerInterval <= 0 {
		config.TriggerInterval = def.TriggerInterval
	}
	if config.DoublePinchWindow <= 0 {
		config.DoublePinchWindow = def.DoublePinchWindow
	}
	if config.Mode == "" {
		config.Mode = def.Mode
	}
	if config.AngleGain == 0 {
		config.AngleGain = def.AngleGain
	}
	if config.MinAngleDelta <= 0 {
		config.MinAngleDelta = def.MinAngleDelta
	}
	if config.MaxAngleDelta <= 0 {
		config.MaxAngleDelta = def.MaxAngleDelta
	}
	if config.Dampening == 0 {
		config.Dampening = def.Dampening
	}
	return &EventDetector{config: config}
}

// Config returns the active configuration.
func (d *EventDetector) Config() Config {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.config
}

// SetMode switches the rotation strategy. Any grab anchor is dropped.
func (d *EventDetector) SetMode(mode RotationMode) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.config.Mode = mode
	d.anchored = false
}

// Update evaluates one frame observed at now.
func (d *EventDetector) Update(s Snapshot, now time.Time) Events {
	d.mu.Lock()
	defer d.mu.Unlock()

	ev := Events{
		HandPresent: s.HandPresent,
		Cursor:      s.Cursor,
	}

	if !s.HandPresent {
		ev.PinchEnded = d.pinching
		ev.GrabEnded = d.grabbing
		d.pinching = false
		d.grabbing = false
		d.anchored = false
		d.hasAngle = false
		ev.Rotation = d.rotation
		return ev
	}

	onset := s.Pinching && !d.pinching
	ev.PinchStarted = onset
	ev.PinchEnded = !s.Pinching && d.pinching
	ev.GrabStarted = s.Grabbing && !d.grabbing
	ev.GrabEnded = !s.Grabbing && d.grabbing

	// Pinch throttle.
	if s.Pinching && (!d.triggered || now.Sub(d.lastTriggerAt) > d.config.TriggerInterval) {
		ev.Actions = append(ev.Actions, Action{Type: ActionSegmentAt, X: s.Cursor.X, Y: s.Cursor.Y})
		d.triggered = true
		d.lastTriggerAt = now
	}

	// Double pinch.
	if onset {
		if d.hasOnset && now.Sub(d.lastPinchOnsetAt) < d.config.DoublePinchWindow {
			d.pinchRepeatCount++
		} else {
			d.pinchRepeatCount = 1
		}
		d.hasOnset = true
		d.lastPinchOnsetAt = now

		if d.pinchRepeatCount >= 2 {
			ev.DoublePinchFired = true
			ev.Actions = append(ev.Actions, Action{Type: ActionToggleExplosion})
			d.pinchRepeatCount = 0
		}
	}

	// Grab rotation.
	switch d.config.Mode {
	case RotationCursor:
		d.rotateByCursor(s)
	default:
		d.rotateByAngle(s)
	}
	d.lastWristAngle = s.WristAngle
	d.hasAngle = true

	d.pinching = s.Pinching
	d.grabbing = s.Grabbing

	ev.PinchActive = d.pinching
	ev.GrabActive = d.grabbing
	ev.Rotation = d.rotation
	return ev
}

func (d *EventDetector) rotateByAngle(s Snapshot) {
	if !s.Grabbing || !d.hasAngle {
		return
	}
	delta := s.WristAngle - d.lastWristAngle
	if mag := math.Abs(delta); mag > d.config.MinAngleDelta && mag < d.config.MaxAngleDelta {
		d.rotation.Y += delta * d.config.AngleGain
	}
}

func (d *EventDetector) rotateByCursor(s Snapshot) {
	if !s.Grabbing {
		d.anchored = false
		return
	}
	if !d.anchored {
		d.grabAnchor = s.Cursor
		d.anchored = true
		return
	}
	scale := 2 * math.Pi * d.config.Dampening
	d.rotation.Y += (s.Cursor.X - d.grabAnchor.X) * scale
	d.rotation.X += (s.Cursor.Y - d.grabAnchor.Y) * scale
	d.grabAnchor = s.Cursor
}

// Rotation returns the accumulated rotation.
func (d *EventDetector) Rotation() Rotation {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.rotation
}

// ResetRotation zeroes the accumulated rotation.
func (d *EventDetector) ResetRotation() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.rotation = Rotation{}
}
