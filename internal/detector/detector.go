package detector

import (
	"context"
	"time"
)

// Frame is one landmark batch from a provider. Hands is empty when no hand
// is visible; the first entry is the primary hand.
type Frame struct {
	Hands     []HandLandmarks `json:"hands"`
	Timestamp time.Time       `json:"timestamp"`
}

// Provider yields landmark frames for the gesture pipeline.
type Provider interface {
	// Next blocks until the next frame is available. It returns io.EOF when
	// the source is exhausted and ctx.Err() when the context ends.
	Next(ctx context.Context) (Frame, error)

	// Close releases any resources held by the provider.
	Close() error
}

// Config holds configuration options for hand detection.
type Config struct {
	// MaxHands is the maximum number of hands reported per frame (default: 2).
	MaxHands int

	// MinConfidence drops hands with a lower score (0.0-1.0).
	MinConfidence float64

	// Command is the helper process that prints one JSON frame per line.
	Command []string

	// Buffer is the number of frames queued ahead of the consumer.
	Buffer int
}

// DefaultConfig returns a Config with sensible default values.
func DefaultConfig() Config {
	return Config{
		MaxHands:      2,
		MinConfidence: 0.5,
		Buffer:        4,
	}
}

// filter applies the hand limit and confidence floor to a frame.
func (c Config) filter(hands []HandLandmarks) []HandLandmarks {
	out := hands[:0:0]
	for _, h := range hands {
		if h.Score < c.MinConfidence {
			continue
		}
		out = append(out, h)
		if c.MaxHands > 0 && len(out) == c.MaxHands {
			break
		}
	}
	return out
}
