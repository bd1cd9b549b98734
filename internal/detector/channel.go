package detector

import (
	"context"
	"io"
	"sync"
)

// ChannelProvider is a Provider fed by Push, used for landmarks streamed in
// over the network. Frames pushed while the buffer is full are dropped.
type ChannelProvider struct {
	frames chan Frame
	once   sync.Once
	done   chan struct{}
}

// NewChannelProvider creates a ChannelProvider with the given buffer size.
func NewChannelProvider(buffer int) *ChannelProvider {
	if buffer <= 0 {
		buffer = DefaultConfig().Buffer
	}
	return &ChannelProvider{
		frames: make(chan Frame, buffer),
		done:   make(chan struct{}),
	}
}

// Push queues a frame without blocking. It reports whether the frame was accepted.
func (p *ChannelProvider) Push(f Frame) bool {
	select {
	case <-p.done:
		return false
	default:
	}

	select {
	case p.frames <- f:
		return true
	default:
		return false
	}
}

// Next returns the next pushed frame.
func (p *ChannelProvider) Next(ctx context.Context) (Frame, error) {
	select {
	case f := <-p.frames:
		return f, nil
	case <-p.done:
		return Frame{}, io.EOF
	case <-ctx.Done():
		return Frame{}, ctx.Err()
	}
}

// Close stops the provider. Pending and future Next calls return io.EOF.
func (p *ChannelProvider) Close() error {
	p.once.Do(func() { close(p.done) })
	return nil
}
