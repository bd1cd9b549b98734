package geometry

import (
	"encoding/json"

	"gonum.org/v1/gonum/spatial/r2"
)

type jsonPoint struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// MarshalJSON encodes the contour as a list of {"x", "y"} objects.
func (c Contour) MarshalJSON() ([]byte, error) {
	points := make([]jsonPoint, len(c))
	for i, p := range c {
		points[i] = jsonPoint{X: p.X, Y: p.Y}
	}
	return json.Marshal(points)
}

// UnmarshalJSON decodes a list of {"x", "y"} objects.
func (c *Contour) UnmarshalJSON(data []byte) error {
	var points []jsonPoint
	if err := json.Unmarshal(data, &points); err != nil {
		return err
	}
	out := make(Contour, len(points))
	for i, p := range points {
		out[i] = r2.Vec{X: p.X, Y: p.Y}
	}
	*c = out
	return nil
}
