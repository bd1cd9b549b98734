package inference

import (
	"context"

	"github.com/ayusman/biotwin/internal/mask"
)

// Embedding is the opaque encoder output consumed by Decode.
type Embedding interface {
	Close() error
}

// Backend runs the encoder and decoder models. Implementations are used from
// a single goroutine.
type Backend interface {
	Encode(ctx context.Context, tensor *PixelTensor) (Embedding, error)
	Decode(ctx context.Context, embedding Embedding, point Point) (*mask.Mask, error)
	Close() error
}
