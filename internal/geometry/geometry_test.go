package geometry

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"
	"gonum.org/v1/gonum/spatial/r2"
)

const epsilon = 1e-9

func TestDistanceAndAngle(t *testing.T) {
	a := r2.Vec{X: 0, Y: 0}
	b := r2.Vec{X: 3, Y: 4}

	if d := Distance(a, b); math.Abs(d-5) > epsilon {
		t.Errorf("Distance() = %f, want 5", d)
	}

	if got := Angle(a, r2.Vec{X: 0, Y: 1}); math.Abs(got-math.Pi/2) > epsilon {
		t.Errorf("Angle() = %f, want pi/2", got)
	}
}

func TestNormalizeCell(t *testing.T) {
	tests := []struct {
		x, y int
		want r2.Vec
	}{
		{0, 0, r2.Vec{X: -1, Y: 1}},
		{50, 50, r2.Vec{X: 0, Y: 0}},
		{100, 100, r2.Vec{X: 1, Y: -1}},
	}

	for _, tt := range tests {
		got := NormalizeCell(tt.x, tt.y, 100, 100)
		if math.Abs(got.X-tt.want.X) > epsilon || math.Abs(got.Y-tt.want.Y) > epsilon {
			t.Errorf("NormalizeCell(%d, %d) = %v, want %v", tt.x, tt.y, got, tt.want)
		}
	}

	if got := NormalizeCell(1, 1, 0, 10); got != (r2.Vec{}) {
		t.Errorf("expected zero vector for empty grid, got %v", got)
	}
}

func TestContour_Metrics(t *testing.T) {
	square := Contour{{X: 0, Y: 0}, {X: 1, Y: 0}, {X: 1, Y: 1}, {X: 0, Y: 1}}

	if !square.IsPolygon() {
		t.Error("expected square to be a polygon")
	}
	if got := square.Area(); math.Abs(got-1) > epsilon {
		t.Errorf("Area() = %f, want 1", got)
	}
	if got := square.Perimeter(); math.Abs(got-4) > epsilon {
		t.Errorf("Perimeter() = %f, want 4", got)
	}

	lo, hi := square.Bounds()
	if lo != (r2.Vec{}) || hi != (r2.Vec{X: 1, Y: 1}) {
		t.Errorf("Bounds() = %v, %v", lo, hi)
	}

	if !square.InRange(1) {
		t.Error("expected square within [-1, 1]")
	}
	if square.InRange(0.5) {
		t.Error("expected square outside [-0.5, 0.5]")
	}

	if (Contour{{X: 0, Y: 0}, {X: 1, Y: 1}}).IsPolygon() {
		t.Error("two points must not form a polygon")
	}
}

func TestSimplify(t *testing.T) {
	t.Run("drops points closer than tolerance", func(t *testing.T) {
		in := Contour{
			{X: 0, Y: 0},
			{X: 0.005, Y: 0},
			{X: 0.01, Y: 0},
			{X: 0.05, Y: 0},
			{X: 0.06, Y: 0},
			{X: 0.1, Y: 0},
		}

		got := Simplify(in, 0.02)
		want := Contour{{X: 0, Y: 0}, {X: 0.05, Y: 0}, {X: 0.1, Y: 0}}

		if diff := cmp.Diff(want, got); diff != "" {
			t.Errorf("Simplify() mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("always keeps first and last", func(t *testing.T) {
		in := Contour{{X: 0, Y: 0}, {X: 0.001, Y: 0}, {X: 0.002, Y: 0}}
		got := Simplify(in, 0.02)

		if len(got) != 2 || got[0] != in[0] || got[1] != in[2] {
			t.Errorf("expected first and last point, got %v", got)
		}
	})

	t.Run("is idempotent", func(t *testing.T) {
		var in Contour
		for i := 0; i < 200; i++ {
			theta := float64(i) / 200 * 2 * math.Pi
			in = append(in, r2.Vec{X: 0.5 * math.Cos(theta), Y: 0.5 * math.Sin(theta)})
		}

		once := Simplify(in, DefaultTolerance)
		twice := Simplify(once, DefaultTolerance)

		if diff := cmp.Diff(once, twice); diff != "" {
			t.Errorf("second pass changed the contour (-once +twice):\n%s", diff)
		}
		if len(once) >= len(in) {
			t.Errorf("expected fewer points after simplification, got %d of %d", len(once), len(in))
		}
	})

	t.Run("does not modify input", func(t *testing.T) {
		in := Contour{{X: 0, Y: 0}, {X: 0.001, Y: 0}, {X: 1, Y: 0}}
		before := append(Contour(nil), in...)
		Simplify(in, 0.02)

		if diff := cmp.Diff(before, in); diff != "" {
			t.Errorf("input modified:\n%s", diff)
		}
	})

	t.Run("short contours are copied", func(t *testing.T) {
		if got := Simplify(nil, 0.02); len(got) != 0 {
			t.Errorf("expected empty result, got %v", got)
		}
	})
}

func TestContour_JSON(t *testing.T) {
	c := Contour{{X: 0.5, Y: -0.25}, {X: 1, Y: 0}}

	data, err := json.Marshal(c)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if want := `[{"x":0.5,"y":-0.25},{"x":1,"y":0}]`; string(data) != want {
		t.Errorf("expected %s, got %s", want, data)
	}

	var back Contour
	if err := json.Unmarshal(data, &back); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if diff := cmp.Diff(c, back); diff != "" {
		t.Errorf("round trip mismatch (-want +got):\n%s", diff)
	}
}
