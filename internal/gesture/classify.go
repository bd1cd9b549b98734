// Package gesture turns hand landmarks into per-frame gesture snapshots and
// debounced discrete events.
package gesture

import (
	"math"

	"github.com/ayusman/biotwin/internal/detector"
)

// Classification thresholds in normalized image units.
const (
	// PinchThreshold is the maximum thumb tip to index tip distance of a pinch.
	PinchThreshold = 0.05
	// GrabThreshold is the maximum fingertip to wrist distance of a closed fist.
	GrabThreshold = 0.15
)

// Cursor is the normalized screen position driven by the index fingertip.
type Cursor struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Snapshot is the gesture state of a single frame.
type Snapshot struct {
	HandPresent bool    `json:"handPresent"`
	Cursor      Cursor  `json:"cursor"`
	Pinching    bool    `json:"pinching"`
	Grabbing    bool    `json:"grabbing"`
	WristAngle  float64 `json:"wristAngle"`
}

// Classify computes the snapshot of one hand. A nil hand yields the neutral
// snapshot. When mirror is set the cursor is flipped horizontally.
func Classify(hand *detector.HandLandmarks, mirror bool) Snapshot {
	if hand == nil {
		return Snapshot{}
	}

	p := &hand.Points
	tip := p[detector.IndexTip]

	s := Snapshot{
		HandPresent: true,
		Cursor:      Cursor{X: tip.X, Y: tip.Y},
		Pinching:    detector.Distance2D(tip, p[detector.ThumbTip]) < PinchThreshold,
		Grabbing:    true,
	}
	if mirror {
		s.Cursor.X = 1 - s.Cursor.X
	}

	wrist := p[detector.Wrist]
	for _, i := range detector.FingerTips {
		if detector.Distance2D(p[i], wrist) >= GrabThreshold {
			s.Grabbing = false
			break
		}
	}

	index, pinky := p[detector.IndexMCP], p[detector.PinkyMCP]
	s.WristAngle = math.Atan2(pinky.Y-index.Y, pinky.X-index.X)

	return s
}

// ClassifyFrame classifies the first hand of a frame.
func ClassifyFrame(hands []detector.HandLandmarks, mirror bool) Snapshot {
	if len(hands) == 0 {
		return Snapshot{}
	}
	return Classify(&hands[0], mirror)
}

// ClassifyPoints classifies a raw point list. Malformed lists produce the
// neutral snapshot.
func ClassifyPoints(points []detector.Point3D, mirror bool) Snapshot {
	hand, err := detector.FromPoints(points)
	if err != nil {
		return Snapshot{}
	}
	return Classify(&hand, mirror)
}
