package segment

import (
	"context"
	"math/rand/v2"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ayusman/biotwin/internal/inference"
	"github.com/ayusman/biotwin/internal/mask"
	"github.com/ayusman/biotwin/testdata"
)

func squareBackend() *inference.MockBackend {
	return &inference.MockBackend{
		MaskFunc: func(inference.Point) *mask.Mask {
			return testdata.SquareMask(128, 32, 96, 1, 0)
		},
	}
}

func startPipeline(t *testing.T, backend inference.Backend) *Pipeline {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())

	worker := inference.NewWorker(inference.NewSessionManager(inference.StaticLoader(backend)), inference.DefaultWorkerConfig(), zerolog.Nop())
	p := NewPipeline(worker, DefaultConfig(), zerolog.Nop())

	done := make(chan struct{})
	go func() {
		defer close(done)
		p.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return p
}

func loadImage(t *testing.T, p *Pipeline) uint64 {
	t.Helper()
	version, err := p.LoadTensor(context.Background(), &inference.PixelTensor{})
	require.NoError(t, err)
	require.Eventually(t, p.Ready, 2*time.Second, 5*time.Millisecond)
	return version
}

func TestBuild(t *testing.T) {
	m := testdata.SquareMask(128, 32, 96, 1, 0)
	res := Build(m, DefaultConfig(), rand.New(rand.NewPCG(1, 1)))

	assert.Equal(t, 64*64, res.Stats.PositiveCount)
	require.NotEmpty(t, res.Shapes)
	for _, s := range res.Shapes {
		assert.GreaterOrEqual(t, len(s), 3)
		assert.True(t, s.InRange(1))
	}
	assert.Equal(t, 64, res.Particles.Len())
}

func TestBuild_EmptyMask(t *testing.T) {
	res := Build(mask.New(64, 64), DefaultConfig(), nil)
	assert.NotNil(t, res.Shapes)
	assert.Empty(t, res.Shapes)
	assert.Equal(t, 0, res.Particles.Len())
}

func TestPipeline_Segment(t *testing.T) {
	p := startPipeline(t, squareBackend())
	version := loadImage(t, p)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	res, err := p.Segment(ctx, 0.5, 0.5)
	require.NoError(t, err)
	require.NoError(t, res.Err)
	assert.Equal(t, version, res.Version)
	assert.Equal(t, inference.Point{X: 0.5, Y: 0.5}, res.Point)
	assert.NotEmpty(t, res.Shapes)
	assert.Equal(t, 64, res.Particles.Len())
}

func TestPipeline_SubscribeReceivesRequestedDecode(t *testing.T) {
	p := startPipeline(t, squareBackend())
	loadImage(t, p)

	results, cancel := p.Subscribe()
	defer cancel()

	id, err := p.RequestDecode(context.Background(), 0.25, 0.75)
	require.NoError(t, err)

	select {
	case res := <-results:
		assert.Equal(t, id, res.RequestID)
		assert.NoError(t, res.Err)
		assert.NotEmpty(t, res.Shapes)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for result")
	}
}

func TestPipeline_DecodeBeforeImage(t *testing.T) {
	p := startPipeline(t, squareBackend())

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	res, err := p.Segment(ctx, 0.5, 0.5)
	require.NoError(t, err)
	assert.ErrorIs(t, res.Err, inference.ErrNoEmbedding)
	assert.Empty(t, res.Shapes)
	assert.Nil(t, res.Particles)
}

func TestPipeline_BackendErrorPublished(t *testing.T) {
	backend := squareBackend()
	backend.DecodeErr = assert.AnError
	p := startPipeline(t, backend)
	loadImage(t, p)

	results, cancel := p.Subscribe()
	defer cancel()

	_, err := p.RequestDecode(context.Background(), 0.5, 0.5)
	require.NoError(t, err)

	select {
	case res := <-results:
		assert.ErrorIs(t, res.Err, assert.AnError)
		assert.NotEmpty(t, res.Error)
		assert.Nil(t, res.Particles)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for error result")
	}
}

func TestPipeline_DecodeQueuedBehindNewImage(t *testing.T) {
	backend := squareBackend()
	p := startPipeline(t, backend)
	loadImage(t, p)

	ctx, stop := context.WithTimeout(context.Background(), 2*time.Second)
	defer stop()

	// Hold the worker on the next encode so the decode queues behind it.
	backend.Gate = make(chan struct{})
	v2, err := p.LoadTensor(ctx, &inference.PixelTensor{})
	require.NoError(t, err)

	wait := make(chan Result, 1)
	go func() {
		res, _ := p.Segment(ctx, 0.5, 0.5)
		wait <- res
	}()
	close(backend.Gate)

	res := <-wait
	require.NoError(t, res.Err)
	assert.Equal(t, v2, res.Version)
}

func TestPipeline_StaleDecodeNotPublished(t *testing.T) {
	p := startPipeline(t, squareBackend())
	v1 := loadImage(t, p)
	loadImage(t, p)

	results, cancel := p.Subscribe()
	defer cancel()

	ctx := context.Background()
	// A decode still aimed at the first image.
	require.NoError(t, p.worker.Decode(ctx, v1, 77, inference.Point{X: 0.5, Y: 0.5}))
	id, err := p.RequestDecode(ctx, 0.5, 0.5)
	require.NoError(t, err)

	select {
	case res := <-results:
		assert.Equal(t, id, res.RequestID, "stale decode must not reach subscribers")
		assert.Equal(t, p.Version(), res.Version)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for result")
	}
}

func TestPipeline_DropsSupersededReplies(t *testing.T) {
	worker := inference.NewWorker(inference.NewSessionManager(nil), inference.DefaultWorkerConfig(), zerolog.Nop())
	p := NewPipeline(worker, DefaultConfig(), zerolog.Nop())
	p.version = 2

	results, cancel := p.Subscribe()
	defer cancel()

	wait := make(chan Result, 1)
	p.waiters[9] = wait

	p.handle(inference.Reply{
		Kind:      inference.ReplyMaskReady,
		Request:   inference.RequestDecode,
		Version:   1,
		RequestID: 9,
		Mask:      testdata.SquareMask(64, 16, 48, 1, 0),
	})

	select {
	case res := <-results:
		t.Fatalf("stale result published: %+v", res)
	default:
	}

	res := <-wait
	assert.ErrorIs(t, res.Err, inference.ErrStale)
	assert.Nil(t, res.Particles)
}

func TestPipeline_UnsubscribeClosesChannel(t *testing.T) {
	worker := inference.NewWorker(inference.NewSessionManager(nil), inference.DefaultWorkerConfig(), zerolog.Nop())
	p := NewPipeline(worker, DefaultConfig(), zerolog.Nop())

	results, cancel := p.Subscribe()
	cancel()
	cancel()

	_, ok := <-results
	assert.False(t, ok)
}

func TestPipeline_RequestDecodeNeverBlocks(t *testing.T) {
	backend := squareBackend()
	backend.Gate = make(chan struct{})
	p := startPipeline(t, backend)

	results, cancel := p.Subscribe()
	defer cancel()

	_, err := p.LoadTensor(context.Background(), &inference.PixelTensor{})
	require.NoError(t, err)

	// Far more requests than the worker queue holds while the encode is held.
	const n = 100
	done := make(chan uint64, 1)
	go func() {
		var last uint64
		for i := 0; i < n; i++ {
			id, err := p.RequestDecode(context.Background(), float64(i)/n, 0.5)
			if err != nil {
				t.Errorf("RequestDecode() error = %v", err)
				return
			}
			last = id
		}
		done <- last
	}()

	var last uint64
	select {
	case last = <-done:
	case <-time.After(time.Second):
		t.Fatal("RequestDecode blocked while the encode was held")
	}
	close(backend.Gate)

	var got []Result
	for len(got) == 0 || got[len(got)-1].RequestID != last {
		select {
		case res := <-results:
			require.NoError(t, res.Err)
			got = append(got, res)
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out waiting for request %d, got %d results", last, len(got))
		}
	}

	assert.LessOrEqual(t, len(got), 2, "only the dispatched and the newest pending point decode")
	assert.InDelta(t, float64(n-1)/n, got[len(got)-1].Point.X, 1e-9)
	_, decodes := backend.Calls()
	assert.LessOrEqual(t, decodes, 2)
}

func TestPipeline_SegmentSuperseded(t *testing.T) {
	backend := squareBackend()
	backend.Gate = make(chan struct{})
	p := startPipeline(t, backend)

	_, err := p.LoadTensor(context.Background(), &inference.PixelTensor{})
	require.NoError(t, err)

	ctx, stop := context.WithTimeout(context.Background(), 2*time.Second)
	defer stop()

	// The first request occupies the worker, the second waits in the slot.
	_, err = p.RequestDecode(ctx, 0.1, 0.1)
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		p.mu.Lock()
		defer p.mu.Unlock()
		return p.inflight != 0
	}, time.Second, time.Millisecond)

	wait := make(chan Result, 1)
	go func() {
		res, _ := p.Segment(ctx, 0.5, 0.5)
		wait <- res
	}()
	require.Eventually(t, func() bool {
		p.mu.Lock()
		defer p.mu.Unlock()
		return p.pending != nil && p.pending.point.X == 0.5
	}, time.Second, time.Millisecond)

	_, err = p.RequestDecode(ctx, 0.9, 0.9)
	require.NoError(t, err)

	select {
	case res := <-wait:
		assert.ErrorIs(t, res.Err, ErrSuperseded)
	case <-time.After(time.Second):
		t.Fatal("superseded Segment did not return")
	}
	close(backend.Gate)
}
