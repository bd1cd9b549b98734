// Package detector provides hand landmark types and the providers that feed
// per-frame landmark batches into the gesture pipeline.
package detector

import (
	"errors"
	"fmt"
	"math"
)

// Hand landmark indices following MediaPipe convention.
// See: https://developers.google.com/mediapipe/solutions/vision/hand_landmarker
const (
	Wrist        = 0
	ThumbCMC     = 1
	ThumbMCP     = 2
	ThumbIP      = 3
	ThumbTip     = 4
	IndexMCP     = 5
	IndexPIP     = 6
	IndexDIP     = 7
	IndexTip     = 8
	MiddleMCP    = 9
	MiddlePIP    = 10
	MiddleDIP    = 11
	MiddleTip    = 12
	RingMCP      = 13
	RingPIP      = 14
	RingDIP      = 15
	RingTip      = 16
	PinkyMCP     = 17
	PinkyPIP     = 18
	PinkyDIP     = 19
	PinkyTip     = 20
	NumLandmarks = 21
)

// FingerTips lists the tip landmark of every finger, thumb first.
var FingerTips = [5]int{ThumbTip, IndexTip, MiddleTip, RingTip, PinkyTip}

// ErrShortHand is returned when a landmark list holds fewer than NumLandmarks points.
var ErrShortHand = errors.New("hand has fewer than 21 landmarks")

// Point3D represents a 3D point in space with x, y, z coordinates.
// X and Y are normalized to [0, 1] image space.
type Point3D struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// HandLandmarks represents the 21 hand landmarks detected by MediaPipe.
type HandLandmarks struct {
	Points     [NumLandmarks]Point3D `json:"points"`
	Handedness string                `json:"handedness"` // "Left" or "Right"
	Score      float64               `json:"score"`
}

// FromPoints builds a hand from a variable length point list. Lists shorter
// than NumLandmarks fail with ErrShortHand; extra points are ignored.
func FromPoints(points []Point3D) (HandLandmarks, error) {
	var h HandLandmarks
	if len(points) < NumLandmarks {
		return h, fmt.Errorf("%w: got %d", ErrShortHand, len(points))
	}
	copy(h.Points[:], points)
	return h, nil
}

// Distance2D returns the Euclidean distance between two points ignoring depth.
func Distance2D(a, b Point3D) float64 {
	return math.Hypot(a.X-b.X, a.Y-b.Y)
}

// Tip returns the landmark at index i.
func (h *HandLandmarks) Tip(i int) Point3D {
	return h.Points[i]
}
