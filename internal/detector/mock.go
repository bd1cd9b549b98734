package detector

import (
	"context"
	"io"
	"math"
	"sync"
	"time"
)

// MockProvider is a test implementation of the Provider interface.
// It replays a fixed list of frames and then returns io.EOF.
type MockProvider struct {
	mu     sync.Mutex
	frames []Frame
	err    error
	closed bool
}

// NewMockProvider creates a new MockProvider replaying frames in order.
func NewMockProvider(frames ...Frame) *MockProvider {
	return &MockProvider{frames: frames}
}

// Append queues more frames.
func (m *MockProvider) Append(frames ...Frame) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.frames = append(m.frames, frames...)
}

// SetError sets the error that will be returned by Next.
func (m *MockProvider) SetError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

// Next returns the next queued frame.
func (m *MockProvider) Next(ctx context.Context) (Frame, error) {
	if err := ctx.Err(); err != nil {
		return Frame{}, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.err != nil {
		return Frame{}, m.err
	}
	if m.closed || len(m.frames) == 0 {
		return Frame{}, io.EOF
	}
	f := m.frames[0]
	m.frames = m.frames[1:]
	return f, nil
}

// Close marks the provider exhausted.
func (m *MockProvider) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// HandFrame wraps a single hand in a Frame stamped at t.
func HandFrame(t time.Time, hand HandLandmarks) Frame {
	return Frame{Hands: []HandLandmarks{hand}, Timestamp: t}
}

// EmptyFrame returns a Frame with no hands stamped at t.
func EmptyFrame(t time.Time) Frame {
	return Frame{Timestamp: t}
}

// OpenPalmLandmarks returns a preset HandLandmarks representing an open palm gesture.
// All fingers are extended outward.
func OpenPalmLandmarks() HandLandmarks {
	landmarks := HandLandmarks{
		Handedness: "Right",
		Score:      0.95,
	}

	// Wrist at base
	landmarks.Points[Wrist] = Point3D{X: 0.5, Y: 0.8, Z: 0.0}

	// Thumb extended to the side
	landmarks.Points[ThumbCMC] = Point3D{X: 0.55, Y: 0.75, Z: 0.02}
	landmarks.Points[ThumbMCP] = Point3D{X: 0.62, Y: 0.70, Z: 0.03}
	landmarks.Points[ThumbIP] = Point3D{X: 0.68, Y: 0.65, Z: 0.03}
	landmarks.Points[ThumbTip] = Point3D{X: 0.73, Y: 0.60, Z: 0.03}

	// Index finger extended upward
	landmarks.Points[IndexMCP] = Point3D{X: 0.55, Y: 0.68, Z: 0.0}
	landmarks.Points[IndexPIP] = Point3D{X: 0.57, Y: 0.55, Z: 0.0}
	landmarks.Points[IndexDIP] = Point3D{X: 0.58, Y: 0.45, Z: 0.0}
	landmarks.Points[IndexTip] = Point3D{X: 0.58, Y: 0.35, Z: 0.0}

	// Middle finger extended upward (slightly longer)
	landmarks.Points[MiddleMCP] = Point3D{X: 0.50, Y: 0.66, Z: 0.0}
	landmarks.Points[MiddlePIP] = Point3D{X: 0.50, Y: 0.52, Z: 0.0}
	landmarks.Points[MiddleDIP] = Point3D{X: 0.50, Y: 0.40, Z: 0.0}
	landmarks.Points[MiddleTip] = Point3D{X: 0.50, Y: 0.28, Z: 0.0}

	// Ring finger extended upward
	landmarks.Points[RingMCP] = Point3D{X: 0.45, Y: 0.68, Z: 0.0}
	landmarks.Points[RingPIP] = Point3D{X: 0.43, Y: 0.55, Z: 0.0}
	landmarks.Points[RingDIP] = Point3D{X: 0.42, Y: 0.45, Z: 0.0}
	landmarks.Points[RingTip] = Point3D{X: 0.42, Y: 0.35, Z: 0.0}

	// Pinky finger extended upward
	landmarks.Points[PinkyMCP] = Point3D{X: 0.40, Y: 0.70, Z: 0.0}
	landmarks.Points[PinkyPIP] = Point3D{X: 0.37, Y: 0.60, Z: 0.0}
	landmarks.Points[PinkyDIP] = Point3D{X: 0.35, Y: 0.50, Z: 0.0}
	landmarks.Points[PinkyTip] = Point3D{X: 0.34, Y: 0.42, Z: 0.0}

	return landmarks
}

// PinchLandmarks returns an open palm with the thumb tip brought onto the
// index tip at (x, y).
func PinchLandmarks(x, y float64) HandLandmarks {
	landmarks := OpenPalmLandmarks()
	landmarks.Points[IndexTip] = Point3D{X: x, Y: y, Z: 0.0}
	landmarks.Points[ThumbTip] = Point3D{X: x + 0.01, Y: y + 0.01, Z: 0.0}
	return landmarks
}

// FistLandmarks returns a preset HandLandmarks representing a closed fist.
// Every fingertip rests within 0.15 of the wrist.
func FistLandmarks() HandLandmarks {
	landmarks := HandLandmarks{
		Handedness: "Right",
		Score:      0.95,
	}

	landmarks.Points[Wrist] = Point3D{X: 0.5, Y: 0.8, Z: 0.0}

	// Thumb folded across the palm
	landmarks.Points[ThumbCMC] = Point3D{X: 0.55, Y: 0.77, Z: 0.0}
	landmarks.Points[ThumbMCP] = Point3D{X: 0.58, Y: 0.74, Z: -0.01}
	landmarks.Points[ThumbIP] = Point3D{X: 0.59, Y: 0.74, Z: -0.02}
	landmarks.Points[ThumbTip] = Point3D{X: 0.58, Y: 0.75, Z: -0.02}

	// Knuckles
	landmarks.Points[IndexMCP] = Point3D{X: 0.55, Y: 0.68, Z: 0.0}
	landmarks.Points[MiddleMCP] = Point3D{X: 0.50, Y: 0.67, Z: 0.0}
	landmarks.Points[RingMCP] = Point3D{X: 0.46, Y: 0.69, Z: 0.0}
	landmarks.Points[PinkyMCP] = Point3D{X: 0.42, Y: 0.72, Z: 0.0}

	// Fingers curled back toward the palm
	landmarks.Points[IndexPIP] = Point3D{X: 0.54, Y: 0.64, Z: -0.04}
	landmarks.Points[IndexDIP] = Point3D{X: 0.48, Y: 0.68, Z: -0.05}
	landmarks.Points[IndexTip] = Point3D{X: 0.45, Y: 0.72, Z: -0.03}
	landmarks.Points[MiddlePIP] = Point3D{X: 0.50, Y: 0.63, Z: -0.04}
	landmarks.Points[MiddleDIP] = Point3D{X: 0.50, Y: 0.66, Z: -0.05}
	landmarks.Points[MiddleTip] = Point3D{X: 0.50, Y: 0.70, Z: -0.03}
	landmarks.Points[RingPIP] = Point3D{X: 0.47, Y: 0.65, Z: -0.04}
	landmarks.Points[RingDIP] = Point3D{X: 0.52, Y: 0.68, Z: -0.05}
	landmarks.Points[RingTip] = Point3D{X: 0.55, Y: 0.72, Z: -0.03}
	landmarks.Points[PinkyPIP] = Point3D{X: 0.41, Y: 0.69, Z: -0.04}
	landmarks.Points[PinkyDIP] = Point3D{X: 0.42, Y: 0.72, Z: -0.04}
	landmarks.Points[PinkyTip] = Point3D{X: 0.42, Y: 0.76, Z: -0.03}

	return landmarks
}

// RotatedFist returns FistLandmarks with the knuckle line turned so that the
// wrist angle from index MCP to pinky MCP equals angle radians.
func RotatedFist(angle float64) HandLandmarks {
	landmarks := FistLandmarks()
	index := landmarks.Points[IndexMCP]
	const span = 0.13
	landmarks.Points[PinkyMCP] = Point3D{
		X: index.X + span*math.Cos(angle),
		Y: index.Y + span*math.Sin(angle),
		Z: 0.0,
	}
	return landmarks
}
