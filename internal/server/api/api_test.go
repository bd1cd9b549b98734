package api

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/ayusman/biotwin/internal/app"
	"github.com/ayusman/biotwin/internal/gesture"
	"github.com/ayusman/biotwin/internal/inference"
	"github.com/ayusman/biotwin/internal/mask"
	"github.com/ayusman/biotwin/internal/segment"
	"github.com/ayusman/biotwin/internal/store"
	"github.com/ayusman/biotwin/testdata"
)

// newTestStore creates a new Store with a temporary database for testing.
func newTestStore(t *testing.T) *store.Store {
	t.Helper()

	s, err := store.New(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() {
		s.Close()
	})

	return s
}

// newTestApp creates an App backed by a running pipeline whose backend
// always returns a centred square mask.
func newTestApp(t *testing.T, s *store.Store) *app.App {
	t.Helper()

	backend := &inference.MockBackend{
		MaskFunc: func(inference.Point) *mask.Mask {
			return testdata.SquareMask(128, 32, 96, 1, 0)
		},
	}
	worker := inference.NewWorker(inference.NewSessionManager(inference.StaticLoader(backend)), inference.DefaultWorkerConfig(), zerolog.Nop())
	p := segment.NewPipeline(worker, segment.DefaultConfig(), zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		p.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	return app.New(app.Config{Store: s, Pipeline: p, Gesture: gesture.DefaultConfig(), Log: zerolog.Nop()})
}

// loadBlankImage encodes an empty tensor and waits for the embedding.
func loadBlankImage(t *testing.T, a *app.App) {
	t.Helper()

	p := a.Pipeline()
	if _, err := p.LoadTensor(context.Background(), &inference.PixelTensor{}); err != nil {
		t.Fatalf("LoadTensor failed: %v", err)
	}
	deadline := time.Now().Add(2 * time.Second)
	for !p.Ready() {
		if time.Now().After(deadline) {
			t.Fatal("pipeline never became ready")
		}
		time.Sleep(5 * time.Millisecond)
	}
}
