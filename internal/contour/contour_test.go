package contour

import (
	"testing"

	"github.com/ayusman/biotwin/internal/geometry"
	"github.com/ayusman/biotwin/internal/mask"
	"github.com/ayusman/biotwin/testdata"
)

func TestTracer_AllZeroMask(t *testing.T) {
	m := mask.New(64, 64)

	contours := NewTracer(DefaultTracerConfig()).Trace(m, mask.Analyze(m).Threshold())
	if len(contours) != 0 {
		t.Errorf("expected no contours for empty mask, got %d", len(contours))
	}
}

func TestTracer_AllForegroundMask(t *testing.T) {
	m := testdata.SquareMask(64, 0, 64, 1, 1)

	if got := NewTracer(DefaultTracerConfig()).Trace(m, 0); len(got) != 0 {
		t.Errorf("expected no contours for solid mask, got %d", len(got))
	}
	if got := NewTracer(DefaultTracerConfig()).Trace(m, mask.Analyze(m).Threshold()); len(got) != 0 {
		t.Errorf("expected no contours for flat mask at derived threshold, got %d", len(got))
	}
}

func TestTracer_SolidSquare(t *testing.T) {
	m := testdata.SquareMask(64, 16, 48, 1, 0)
	threshold := mask.Analyze(m).Threshold()

	contours := NewTracer(DefaultTracerConfig()).Trace(m, threshold)
	if len(contours) != 1 {
		t.Fatalf("expected exactly one contour, got %d", len(contours))
	}

	c := contours[0]
	if len(c) < DefaultMinPoints {
		t.Errorf("expected at least %d points, got %d", DefaultMinPoints, len(c))
	}
	if !c.InRange(1) {
		t.Errorf("contour leaves normalized range: %v", c)
	}

	simplified := geometry.Simplify(c, geometry.DefaultTolerance)
	if len(simplified) < geometry.MinPolygonPoints {
		t.Errorf("expected simplified contour with >= 3 points, got %d", len(simplified))
	}

	// The traced square spans cells 16..44, i.e. [-0.5, 0.375] horizontally.
	lo, hi := c.Bounds()
	if lo.X != -0.5 || hi.X != 0.375 {
		t.Errorf("unexpected horizontal extent [%f, %f]", lo.X, hi.X)
	}
	if lo.Y != -0.375 || hi.Y != 0.5 {
		t.Errorf("unexpected vertical extent [%f, %f]", lo.Y, hi.Y)
	}
}

func TestTracer_TwoRegions(t *testing.T) {
	m := testdata.TwoSquaresMask(128)

	contours := NewTracer(DefaultTracerConfig()).Trace(m, mask.Analyze(m).Threshold())
	if len(contours) != 2 {
		t.Fatalf("expected two contours, got %d", len(contours))
	}
	for i, c := range contours {
		if !c.InRange(1) {
			t.Errorf("contour %d leaves normalized range", i)
		}
	}
}

func TestTracer_Disc(t *testing.T) {
	m := testdata.DiscMask(96, 30)

	contours := NewTracer(DefaultTracerConfig()).Trace(m, mask.Analyze(m).Threshold())
	if len(contours) == 0 {
		t.Fatal("expected at least one contour for disc")
	}
	for _, c := range contours {
		if len(c) < DefaultMinPoints {
			t.Errorf("contour shorter than %d points survived: %d", DefaultMinPoints, len(c))
		}
		if !c.InRange(1) {
			t.Errorf("contour leaves normalized range")
		}
	}
}

func TestTracer_MaxStepsBoundsTrace(t *testing.T) {
	m := testdata.SquareMask(256, 8, 248, 1, 0)

	tracer := NewTracer(TracerConfig{MaxSteps: 20})
	for _, c := range tracer.Trace(m, 0.3) {
		if len(c) > 21 {
			t.Errorf("trace exceeded step budget: %d points", len(c))
		}
	}
}

func TestExtract(t *testing.T) {
	t.Run("square yields polygon", func(t *testing.T) {
		m := testdata.SquareMask(64, 16, 48, 1, 0)
		shapes := Extract(m, mask.Analyze(m), DefaultOptions())

		if len(shapes) != 1 {
			t.Fatalf("expected one shape, got %d", len(shapes))
		}
		if !shapes[0].IsPolygon() {
			t.Errorf("expected polygon, got %d points", len(shapes[0]))
		}
	})

	t.Run("logit mask uses relative threshold", func(t *testing.T) {
		m := testdata.LogitMask(64, 16, 48)
		if shapes := Extract(m, mask.Analyze(m), DefaultOptions()); len(shapes) != 1 {
			t.Errorf("expected one shape for logit mask, got %d", len(shapes))
		}
	})

	t.Run("too few positive cells", func(t *testing.T) {
		m := testdata.SquareMask(64, 10, 19, 1, 0) // 81 cells
		if shapes := Extract(m, mask.Analyze(m), DefaultOptions()); shapes != nil {
			t.Errorf("expected nil shapes, got %d", len(shapes))
		}
	})

	t.Run("thin region is rejected", func(t *testing.T) {
		m := mask.New(64, 64)
		m.Fill(0, 30, 64, 34, 1) // 256 cells, 4 rows tall
		if shapes := Extract(m, mask.Analyze(m), DefaultOptions()); shapes != nil {
			t.Errorf("expected nil shapes for thin band, got %d", len(shapes))
		}
	})

	t.Run("empty mask", func(t *testing.T) {
		m := mask.New(32, 32)
		if shapes := Extract(m, mask.Analyze(m), DefaultOptions()); shapes != nil {
			t.Errorf("expected nil shapes, got %d", len(shapes))
		}
	})

	t.Run("fallback to bounds", func(t *testing.T) {
		// A tracer step this coarse cannot produce a contour of 10 points.
		m := testdata.SquareMask(64, 20, 40, 1, 0)
		opts := DefaultOptions()
		opts.Tracer.Stride = 16
		opts.FallbackToBounds = true

		shapes := Extract(m, mask.Analyze(m), opts)
		if len(shapes) != 1 || len(shapes[0]) != 4 {
			t.Fatalf("expected bounding rectangle, got %v", shapes)
		}
	})
}

func TestBoundingShape(t *testing.T) {
	shape := BoundingShape(mask.Bounds{MinX: 0, MinY: 0, MaxX: 50, MaxY: 50}, 100, 100)

	lo, hi := shape.Bounds()
	if lo.X != -1 || lo.Y != 0 || hi.X != 0 || hi.Y != 1 {
		t.Errorf("unexpected bounds %v %v", lo, hi)
	}
	if shape.Area() != 1 {
		t.Errorf("expected area 1, got %f", shape.Area())
	}
}
