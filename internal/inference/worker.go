package inference

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/rs/zerolog"

	"github.com/ayusman/biotwin/internal/mask"
)

// RequestKind identifies a worker request.
type RequestKind int

const (
	RequestLoad RequestKind = iota
	RequestEncode
	RequestDecode
)

func (k RequestKind) String() string {
	switch k {
	case RequestLoad:
		return "load"
	case RequestEncode:
		return "encode"
	case RequestDecode:
		return "decode"
	}
	return fmt.Sprintf("request(%d)", int(k))
}

// Request is a message to the worker.
type Request struct {
	Kind      RequestKind
	Version   uint64
	RequestID uint64
	Tensor    *PixelTensor
	Point     Point
}

// ReplyKind identifies a worker reply.
type ReplyKind int

const (
	ReplyStatus ReplyKind = iota
	ReplyModelsLoaded
	ReplyEmbeddingReady
	ReplyMaskReady
	ReplyError
)

func (k ReplyKind) String() string {
	switch k {
	case ReplyStatus:
		return "status"
	case ReplyModelsLoaded:
		return "models_loaded"
	case ReplyEmbeddingReady:
		return "embedding_ready"
	case ReplyMaskReady:
		return "mask_ready"
	case ReplyError:
		return "error"
	}
	return fmt.Sprintf("reply(%d)", int(k))
}

// Reply is a message from the worker. Version and RequestID echo the request.
type Reply struct {
	Kind      ReplyKind
	Request   RequestKind
	Version   uint64
	RequestID uint64
	Point     Point
	Mask      *mask.Mask
	Status    string
	Err       error
}

// WorkerConfig sizes the worker queues.
type WorkerConfig struct {
	QueueSize int
}

// DefaultWorkerConfig returns the default queue sizes.
func DefaultWorkerConfig() WorkerConfig {
	return WorkerConfig{QueueSize: 16}
}

// Worker owns the backend and serves requests one at a time.
type Worker struct {
	sessions *SessionManager
	log      zerolog.Logger
	requests chan Request
	replies  chan Reply

	latest atomic.Uint64

	// Owned by the Run goroutine.
	embedding        Embedding
	embeddingVersion uint64
}

// NewWorker creates a worker. Call Run to start serving.
func NewWorker(sessions *SessionManager, config WorkerConfig, log zerolog.Logger) *Worker {
	if config.QueueSize <= 0 {
		config.QueueSize = DefaultWorkerConfig().QueueSize
	}
	return &Worker{
		sessions: sessions,
		log:      log,
		requests: make(chan Request, config.QueueSize),
		replies:  make(chan Reply, config.QueueSize),
	}
}

// Replies returns the reply channel. It is never closed.
func (w *Worker) Replies() <-chan Reply {
	return w.replies
}

// Latest returns the version of the most recently submitted encode.
func (w *Worker) Latest() uint64 {
	return w.latest.Load()
}

// Load asks the worker to load the models.
func (w *Worker) Load(ctx context.Context) error {
	return w.submit(ctx, Request{Kind: RequestLoad})
}

// Encode queues an encode and returns its version. Any decode that targets an
// older version becomes stale as soon as Encode returns.
func (w *Worker) Encode(ctx context.Context, tensor *PixelTensor) (uint64, error) {
	version := w.latest.Add(1)
	if err := w.submit(ctx, Request{Kind: RequestEncode, Version: version, Tensor: tensor}); err != nil {
		return 0, err
	}
	return version, nil
}

// Decode queues a decode of point against the embedding of version.
func (w *Worker) Decode(ctx context.Context, version, requestID uint64, point Point) error {
	return w.submit(ctx, Request{Kind: RequestDecode, Version: version, RequestID: requestID, Point: point})
}

func (w *Worker) submit(ctx context.Context, req Request) error {
	select {
	case w.requests <- req:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run serves requests until ctx ends.
func (w *Worker) Run(ctx context.Context) error {
	defer w.dropEmbedding()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case req := <-w.requests:
			w.handle(ctx, req)
		}
	}
}

func (w *Worker) handle(ctx context.Context, req Request) {
	switch req.Kind {
	case RequestLoad:
		w.status(ctx, req, "loading models")
		if _, err := w.sessions.Get(ctx); err != nil {
			w.fail(ctx, req, err)
			return
		}
		w.reply(ctx, Reply{Kind: ReplyModelsLoaded, Request: req.Kind})

	case RequestEncode:
		w.encode(ctx, req)

	case RequestDecode:
		w.decode(ctx, req)

	default:
		w.fail(ctx, req, fmt.Errorf("unknown request kind %d", int(req.Kind)))
	}
}

func (w *Worker) encode(ctx context.Context, req Request) {
	if req.Version != w.latest.Load() {
		w.log.Debug().Uint64("version", req.Version).Msg("skip superseded encode")
		w.fail(ctx, req, ErrStale)
		return
	}

	backend, err := w.sessions.Get(ctx)
	if err != nil {
		w.fail(ctx, req, err)
		return
	}

	w.status(ctx, req, "encoding image")
	emb, err := backend.Encode(ctx, req.Tensor)
	if err != nil {
		w.fail(ctx, req, fmt.Errorf("encode: %w", err))
		return
	}

	w.dropEmbedding()
	w.embedding = emb
	w.embeddingVersion = req.Version

	w.log.Info().Uint64("version", req.Version).Msg("embedding ready")
	w.reply(ctx, Reply{Kind: ReplyEmbeddingReady, Request: req.Kind, Version: req.Version})
}

func (w *Worker) decode(ctx context.Context, req Request) {
	if req.Version != w.latest.Load() {
		w.fail(ctx, req, ErrStale)
		return
	}
	if w.embedding == nil || w.embeddingVersion != req.Version {
		w.fail(ctx, req, ErrNoEmbedding)
		return
	}

	backend, err := w.sessions.Get(ctx)
	if err != nil {
		w.fail(ctx, req, err)
		return
	}

	w.status(ctx, req, "decoding mask")
	m, err := backend.Decode(ctx, w.embedding, req.Point)
	if err != nil {
		w.fail(ctx, req, fmt.Errorf("decode: %w", err))
		return
	}

	w.reply(ctx, Reply{
		Kind:      ReplyMaskReady,
		Request:   req.Kind,
		Version:   req.Version,
		RequestID: req.RequestID,
		Point:     req.Point,
		Mask:      m,
	})
}

func (w *Worker) status(ctx context.Context, req Request, msg string) {
	w.reply(ctx, Reply{
		Kind:      ReplyStatus,
		Request:   req.Kind,
		Version:   req.Version,
		RequestID: req.RequestID,
		Status:    msg,
	})
}

func (w *Worker) fail(ctx context.Context, req Request, err error) {
	w.log.Warn().Err(err).Stringer("request", req.Kind).Uint64("version", req.Version).Msg("inference request failed")
	w.reply(ctx, Reply{
		Kind:      ReplyError,
		Request:   req.Kind,
		Version:   req.Version,
		RequestID: req.RequestID,
		Point:     req.Point,
		Err:       err,
	})
}

func (w *Worker) reply(ctx context.Context, r Reply) {
	select {
	case w.replies <- r:
	case <-ctx.Done():
	}
}

func (w *Worker) dropEmbedding() {
	if w.embedding == nil {
		return
	}
	if err := w.embedding.Close(); err != nil {
		w.log.Warn().Err(err).Msg("release embedding")
	}
	w.embedding = nil
}
