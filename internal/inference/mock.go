package inference

import (
	"context"
	"sync"

	"github.com/ayusman/biotwin/internal/mask"
)

// MockBackend is a test implementation of the Backend interface. Decode
// returns the result of MaskFunc, or an empty mask when it is nil.
type MockBackend struct {
	mu sync.Mutex

	MaskFunc  func(point Point) *mask.Mask
	EncodeErr error
	DecodeErr error
	// Gate, when set, blocks Encode until it receives a value or is closed.
	Gate chan struct{}

	encodes int
	decodes int
	closed  bool
}

type mockEmbedding struct {
	id int
}

func (e *mockEmbedding) Close() error { return nil }

// Encode records the call and returns a fresh embedding.
func (b *MockBackend) Encode(ctx context.Context, tensor *PixelTensor) (Embedding, error) {
	if b.Gate != nil {
		select {
		case <-b.Gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.encodes++
	if b.EncodeErr != nil {
		return nil, b.EncodeErr
	}
	return &mockEmbedding{id: b.encodes}, nil
}

// Decode records the call and returns MaskFunc(point).
func (b *MockBackend) Decode(ctx context.Context, embedding Embedding, point Point) (*mask.Mask, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.decodes++
	if b.DecodeErr != nil {
		return nil, b.DecodeErr
	}
	if b.MaskFunc == nil {
		return mask.New(InputSize/16, InputSize/16), nil
	}
	return b.MaskFunc(point), nil
}

// Close marks the backend closed.
func (b *MockBackend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	return nil
}

// Calls returns the number of Encode and Decode calls.
func (b *MockBackend) Calls() (encodes, decodes int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.encodes, b.decodes
}

// Closed reports whether Close was called.
func (b *MockBackend) Closed() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.closed
}

// StaticLoader returns a Loader that always yields b.
func StaticLoader(b Backend) Loader {
	return func(ctx context.Context) (Backend, error) {
		return b, nil
	}
}
