package segment

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"

	"github.com/ayusman/biotwin/internal/inference"
)

// ErrSuperseded is reported to a Segment caller whose queued point was
// replaced by a newer request before it reached the worker.
var ErrSuperseded = errors.New("decode superseded by a newer request")

// Pipeline tracks the current image embedding and turns decode replies into
// Results. Replies for any version other than the current one are dropped.
//
// At most one decode is in flight to the worker. Requests made while one is
// in flight share a single pending slot, and the newest point wins.
type Pipeline struct {
	worker *inference.Worker
	config Config
	log    zerolog.Logger
	rng    *rand.Rand

	nextID atomic.Uint64

	mu      sync.Mutex
	version uint64
	encoded uint64
	status  string
	subs    map[int]chan Result
	nextSub int
	waiters map[uint64]chan Result

	pending  *decodeRequest
	inflight uint64
	kick     chan struct{}
}

type decodeRequest struct {
	id    uint64
	point inference.Point
}

// NewPipeline creates a pipeline around worker. Call Run to start it.
func NewPipeline(worker *inference.Worker, config Config, log zerolog.Logger) *Pipeline {
	if config.Subscribers <= 0 {
		config.Subscribers = DefaultConfig().Subscribers
	}
	return &Pipeline{
		worker:  worker,
		config:  config,
		log:     log,
		rng:     rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())),
		subs:    make(map[int]chan Result),
		waiters: make(map[uint64]chan Result),
		kick:    make(chan struct{}, 1),
	}
}

// SetConfig replaces the geometry parameters for subsequent results.
func (p *Pipeline) SetConfig(config Config) {
	p.mu.Lock()
	defer p.mu.Unlock()
	config.Subscribers = p.config.Subscribers
	p.config = config
}

// Config returns the active geometry parameters.
func (p *Pipeline) Config() Config {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.config
}

// LoadModels asks the worker to load the models ahead of the first image.
func (p *Pipeline) LoadModels(ctx context.Context) error {
	return p.worker.Load(ctx)
}

// LoadImage preprocesses an encoded image and queues it for encoding.
// Pending decodes for the previous image become stale.
func (p *Pipeline) LoadImage(ctx context.Context, data []byte) (uint64, error) {
	tensor, err := inference.Preprocess(data)
	if err != nil {
		return 0, fmt.Errorf("preprocess image: %w", err)
	}
	return p.LoadTensor(ctx, tensor)
}

// LoadTensor queues an already normalized tensor for encoding.
func (p *Pipeline) LoadTensor(ctx context.Context, tensor *inference.PixelTensor) (uint64, error) {
	version, err := p.worker.Encode(ctx, tensor)
	if err != nil {
		return 0, fmt.Errorf("queue encode: %w", err)
	}

	p.mu.Lock()
	if version > p.version {
		p.version = version
	}
	stale := p.pending
	p.pending = nil
	if stale != nil {
		p.deliverLocked(failed(version, stale.id, stale.point, inference.ErrStale))
	}
	p.mu.Unlock()
	p.wake()

	p.log.Info().Uint64("version", version).Msg("image queued for encoding")
	return version, nil
}

// RequestDecode queues a decode at the normalized point (x, y) against the
// current image and returns its request id. It never waits on the worker: a
// point that has not been dispatched yet is replaced by the next request.
func (p *Pipeline) RequestDecode(ctx context.Context, x, y float64) (uint64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	id := p.nextID.Add(1)
	p.queue(decodeRequest{id: id, point: inference.Point{X: x, Y: y}})
	return id, nil
}

// queue puts req into the pending slot. A replaced request's waiter gets
// ErrSuperseded.
func (p *Pipeline) queue(req decodeRequest) {
	p.mu.Lock()
	if old := p.pending; old != nil {
		p.deliverLocked(failed(p.version, old.id, old.point, ErrSuperseded))
	}
	p.pending = &req
	p.mu.Unlock()
	p.wake()
}

func (p *Pipeline) wake() {
	select {
	case p.kick <- struct{}{}:
	default:
	}
}

// dispatch hands the pending request to the worker when nothing is in
// flight.
func (p *Pipeline) dispatch(ctx context.Context) {
	p.mu.Lock()
	if p.inflight != 0 || p.pending == nil {
		p.mu.Unlock()
		return
	}
	req := *p.pending
	p.pending = nil
	p.inflight = req.id
	version := p.version
	p.mu.Unlock()

	if err := p.worker.Decode(ctx, version, req.id, req.point); err != nil {
		p.mu.Lock()
		p.inflight = 0
		p.deliverLocked(failed(version, req.id, req.point, fmt.Errorf("queue decode: %w", err)))
		p.mu.Unlock()
	}
}

// finish releases the in-flight slot held by id.
func (p *Pipeline) finish(id uint64) {
	p.mu.Lock()
	if p.inflight == id {
		p.inflight = 0
	}
	p.mu.Unlock()
	p.wake()
}

// Segment decodes at (x, y) and waits for the result. Result.Err carries
// inference failures, including ErrSuperseded when a newer request replaced
// this one; the returned error reports only context failures.
func (p *Pipeline) Segment(ctx context.Context, x, y float64) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}
	id := p.nextID.Add(1)
	wait := make(chan Result, 1)

	p.mu.Lock()
	p.waiters[id] = wait
	p.mu.Unlock()

	defer func() {
		p.mu.Lock()
		delete(p.waiters, id)
		if p.pending != nil && p.pending.id == id {
			p.pending = nil
		}
		p.mu.Unlock()
	}()

	p.queue(decodeRequest{id: id, point: inference.Point{X: x, Y: y}})

	select {
	case res := <-wait:
		return res, nil
	case <-ctx.Done():
		return Result{}, ctx.Err()
	}
}

// Subscribe registers for every current-version result. Slow subscribers
// miss results rather than block the pipeline. Call cancel to unsubscribe.
func (p *Pipeline) Subscribe() (results <-chan Result, cancel func()) {
	p.mu.Lock()
	defer p.mu.Unlock()

	id := p.nextSub
	p.nextSub++
	ch := make(chan Result, p.config.Subscribers)
	p.subs[id] = ch

	return ch, func() {
		p.mu.Lock()
		defer p.mu.Unlock()
		if _, ok := p.subs[id]; ok {
			delete(p.subs, id)
			close(ch)
		}
	}
}

// Version returns the embedding version decodes currently target.
func (p *Pipeline) Version() uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.version
}

// Ready reports whether the current image has finished encoding.
func (p *Pipeline) Ready() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.version != 0 && p.encoded == p.version
}

// Status returns the last progress message from the worker.
func (p *Pipeline) Status() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.status
}

// Run starts the worker and the decode dispatcher and processes replies
// until ctx ends.
func (p *Pipeline) Run(ctx context.Context) error {
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		p.worker.Run(ctx)
	}()
	go func() {
		defer wg.Done()
		for {
			select {
			case <-ctx.Done():
				return
			case <-p.kick:
				p.dispatch(ctx)
			}
		}
	}()
	defer wg.Wait()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case r := <-p.worker.Replies():
			p.handle(r)
		}
	}
}

func (p *Pipeline) handle(r inference.Reply) {
	switch r.Kind {
	case inference.ReplyStatus:
		p.setStatus(r.Status)

	case inference.ReplyModelsLoaded:
		p.setStatus("models loaded")
		p.log.Info().Msg("segmentation models loaded")

	case inference.ReplyEmbeddingReady:
		p.mu.Lock()
		if r.Version > p.encoded {
			p.encoded = r.Version
			p.status = "ready"
		}
		p.mu.Unlock()

	case inference.ReplyMaskReady:
		p.finish(r.RequestID)
		if !p.current(r.Version) {
			p.drop(r, inference.ErrStale)
			return
		}
		config := p.Config()
		res := Build(r.Mask, config, p.rng)
		res.Version = r.Version
		res.RequestID = r.RequestID
		res.Point = r.Point

		p.log.Debug().
			Uint64("version", r.Version).
			Int("shapes", len(res.Shapes)).
			Int("particles", res.Particles.Len()).
			Msg("mask converted")
		p.publish(res)

	case inference.ReplyError:
		p.setStatus("error: " + r.Err.Error())
		if r.Request != inference.RequestDecode {
			return
		}
		p.finish(r.RequestID)
		if errors.Is(r.Err, inference.ErrStale) || !p.current(r.Version) {
			p.drop(r, inference.ErrStale)
			return
		}
		res := failed(r.Version, r.RequestID, r.Point, r.Err)
		p.publish(res)
	}
}

func (p *Pipeline) current(version uint64) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return version == p.version
}

func (p *Pipeline) setStatus(s string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.status = s
}

// drop discards a reply for a superseded image. Only a synchronous waiter
// hears about it.
func (p *Pipeline) drop(r inference.Reply, err error) {
	p.log.Debug().Uint64("version", r.Version).Uint64("request", r.RequestID).Msg("drop stale result")
	p.deliver(failed(r.Version, r.RequestID, r.Point, err))
}

// deliver hands res to a synchronous waiter only.
func (p *Pipeline) deliver(res Result) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.deliverLocked(res)
}

func (p *Pipeline) deliverLocked(res Result) {
	if w, ok := p.waiters[res.RequestID]; ok {
		select {
		case w <- res:
		default:
		}
	}
}

// publish hands res to its waiter and to every subscriber.
func (p *Pipeline) publish(res Result) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.deliverLocked(res)
	for _, ch := range p.subs {
		select {
		case ch <- res:
		default:
			p.log.Warn().Uint64("request", res.RequestID).Msg("subscriber full, result dropped")
		}
	}
}
