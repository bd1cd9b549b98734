package detector

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"math"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

const epsilon = 1e-9

func TestFromPoints(t *testing.T) {
	t.Run("full hand", func(t *testing.T) {
		points := make([]Point3D, NumLandmarks)
		for i := range points {
			points[i] = Point3D{X: float64(i) / 100}
		}

		hand, err := FromPoints(points)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if hand.Points[PinkyTip].X != 0.2 {
			t.Errorf("expected pinky tip X 0.2, got %f", hand.Points[PinkyTip].X)
		}
	})

	t.Run("short hand fails", func(t *testing.T) {
		_, err := FromPoints(make([]Point3D, 20))
		if !errors.Is(err, ErrShortHand) {
			t.Errorf("expected ErrShortHand, got %v", err)
		}
	})

	t.Run("nil fails", func(t *testing.T) {
		if _, err := FromPoints(nil); !errors.Is(err, ErrShortHand) {
			t.Errorf("expected ErrShortHand, got %v", err)
		}
	})

	t.Run("extra points ignored", func(t *testing.T) {
		if _, err := FromPoints(make([]Point3D, 30)); err != nil {
			t.Errorf("unexpected error: %v", err)
		}
	})
}

func TestDistance2D(t *testing.T) {
	d := Distance2D(Point3D{X: 0, Y: 0, Z: 5}, Point3D{X: 3, Y: 4, Z: -5})
	if math.Abs(d-5) > epsilon {
		t.Errorf("expected 5, got %f", d)
	}
}

func TestPresets(t *testing.T) {
	t.Run("fist tips near wrist", func(t *testing.T) {
		fist := FistLandmarks()
		for _, tip := range FingerTips {
			if d := Distance2D(fist.Points[tip], fist.Points[Wrist]); d >= 0.15 {
				t.Errorf("tip %d is %f from wrist, expected < 0.15", tip, d)
			}
		}
	})

	t.Run("open palm tips far from wrist", func(t *testing.T) {
		palm := OpenPalmLandmarks()
		if d := Distance2D(palm.Points[MiddleTip], palm.Points[Wrist]); d < 0.15 {
			t.Errorf("expected middle tip far from wrist, got %f", d)
		}
	})

	t.Run("pinch brings thumb to index", func(t *testing.T) {
		pinch := PinchLandmarks(0.3, 0.4)
		if d := Distance2D(pinch.Points[ThumbTip], pinch.Points[IndexTip]); d >= 0.05 {
			t.Errorf("expected thumb on index tip, got %f", d)
		}
		if pinch.Points[IndexTip].X != 0.3 || pinch.Points[IndexTip].Y != 0.4 {
			t.Errorf("expected index tip at (0.3, 0.4), got %+v", pinch.Points[IndexTip])
		}
	})

	t.Run("rotated fist angle", func(t *testing.T) {
		hand := RotatedFist(0.5)
		a, b := hand.Points[IndexMCP], hand.Points[PinkyMCP]
		if got := math.Atan2(b.Y-a.Y, b.X-a.X); math.Abs(got-0.5) > 1e-9 {
			t.Errorf("expected angle 0.5, got %f", got)
		}
	})
}

func TestMockProvider(t *testing.T) {
	ctx := context.Background()
	now := time.Unix(100, 0)

	t.Run("replays frames then EOF", func(t *testing.T) {
		p := NewMockProvider(HandFrame(now, OpenPalmLandmarks()), EmptyFrame(now))

		f, err := p.Next(ctx)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(f.Hands) != 1 {
			t.Errorf("expected 1 hand, got %d", len(f.Hands))
		}

		f, err = p.Next(ctx)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(f.Hands) != 0 {
			t.Errorf("expected no hands, got %d", len(f.Hands))
		}

		if _, err := p.Next(ctx); err != io.EOF {
			t.Errorf("expected io.EOF, got %v", err)
		}
	})

	t.Run("returns configured error", func(t *testing.T) {
		p := NewMockProvider(EmptyFrame(now))
		want := errors.New("camera unplugged")
		p.SetError(want)
		if _, err := p.Next(ctx); err != want {
			t.Errorf("expected %v, got %v", want, err)
		}
	})

	t.Run("honours cancelled context", func(t *testing.T) {
		p := NewMockProvider(EmptyFrame(now))
		cctx, cancel := context.WithCancel(ctx)
		cancel()
		if _, err := p.Next(cctx); !errors.Is(err, context.Canceled) {
			t.Errorf("expected context.Canceled, got %v", err)
		}
	})
}

func TestChannelProvider(t *testing.T) {
	ctx := context.Background()

	t.Run("push then next", func(t *testing.T) {
		p := NewChannelProvider(1)
		if !p.Push(EmptyFrame(time.Unix(1, 0))) {
			t.Fatal("expected first push to be accepted")
		}
		if p.Push(EmptyFrame(time.Unix(2, 0))) {
			t.Error("expected push on full buffer to be dropped")
		}

		f, err := p.Next(ctx)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !f.Timestamp.Equal(time.Unix(1, 0)) {
			t.Errorf("expected first frame, got %v", f.Timestamp)
		}
	})

	t.Run("close ends next", func(t *testing.T) {
		p := NewChannelProvider(1)
		p.Close()
		p.Close()
		if _, err := p.Next(ctx); err != io.EOF {
			t.Errorf("expected io.EOF, got %v", err)
		}
		if p.Push(EmptyFrame(time.Now())) {
			t.Error("expected push after close to be rejected")
		}
	})

	t.Run("context timeout", func(t *testing.T) {
		p := NewChannelProvider(1)
		cctx, cancel := context.WithTimeout(ctx, 10*time.Millisecond)
		defer cancel()
		if _, err := p.Next(cctx); !errors.Is(err, context.DeadlineExceeded) {
			t.Errorf("expected deadline exceeded, got %v", err)
		}
	})
}

func TestDecodeHands(t *testing.T) {
	full := JSONHand{Points: make([]Point3D, NumLandmarks), Score: 0.9, Handedness: "Left"}
	short := JSONHand{Points: make([]Point3D, 5), Score: 0.9}
	weak := JSONHand{Points: make([]Point3D, NumLandmarks), Score: 0.1}

	hands := DecodeHands([]JSONHand{short, weak, full, full, full}, DefaultConfig())
	if len(hands) != 2 {
		t.Fatalf("expected 2 hands after filtering, got %d", len(hands))
	}
	if hands[0].Handedness != "Left" {
		t.Errorf("expected handedness Left, got %q", hands[0].Handedness)
	}
}

func TestDecodeFrame(t *testing.T) {
	t.Run("valid message", func(t *testing.T) {
		hand := OpenPalmLandmarks()
		data, err := json.Marshal(map[string]any{
			"hands":     []JSONHand{{Points: hand.Points[:], Handedness: "Right", Score: 0.9}},
			"timestamp": 2000,
		})
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}

		f, err := DecodeFrame(data, DefaultConfig())
		if err != nil {
			t.Fatalf("DecodeFrame failed: %v", err)
		}
		if len(f.Hands) != 1 {
			t.Fatalf("expected 1 hand, got %d", len(f.Hands))
		}
		if !f.Timestamp.Equal(time.UnixMilli(2000)) {
			t.Errorf("expected timestamp 2000ms, got %v", f.Timestamp)
		}
	})

	t.Run("invalid json", func(t *testing.T) {
		if _, err := DecodeFrame([]byte("{"), DefaultConfig()); err == nil {
			t.Error("expected an error")
		}
	})
}

func TestSubprocessProvider(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping subprocess test in short mode")
	}
	if _, err := exec.LookPath("cat"); err != nil {
		t.Skip("cat not available")
	}

	hand := OpenPalmLandmarks()
	line, err := json.Marshal(jsonFrame{
		Hands:     []JSONHand{{Points: hand.Points[:], Handedness: "Right", Score: 0.95}},
		Timestamp: 1500,
	})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	path := filepath.Join(t.TempDir(), "frames.jsonl")
	content := string(line) + "\nnot json\n" + `{"hands":[]}` + "\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write frames: %v", err)
	}

	p, err := NewSubprocessProvider(Config{Command: []string{"cat", path}, MinConfidence: 0.5}, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewSubprocessProvider: %v", err)
	}
	defer p.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	f, err := p.Next(ctx)
	if err != nil {
		t.Fatalf("first frame: %v", err)
	}
	if len(f.Hands) != 1 {
		t.Fatalf("expected 1 hand, got %d", len(f.Hands))
	}
	if f.Hands[0].Points[IndexTip] != hand.Points[IndexTip] {
		t.Errorf("index tip mismatch: %+v", f.Hands[0].Points[IndexTip])
	}
	if !f.Timestamp.Equal(time.UnixMilli(1500)) {
		t.Errorf("expected timestamp 1500ms, got %v", f.Timestamp)
	}

	// The malformed line is skipped.
	f, err = p.Next(ctx)
	if err != nil {
		t.Fatalf("second frame: %v", err)
	}
	if len(f.Hands) != 0 {
		t.Errorf("expected empty frame, got %d hands", len(f.Hands))
	}

	if _, err := p.Next(ctx); err != io.EOF {
		t.Errorf("expected io.EOF after helper exits, got %v", err)
	}
}
