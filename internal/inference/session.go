package inference

import (
	"context"
	"fmt"
	"sync"

	"github.com/pkg/errors"
)

// Sentinel errors reported on worker replies.
var (
	// ErrNotReady means the models could not be loaded.
	ErrNotReady = errors.New("inference models not ready")
	// ErrNoEmbedding means a decode arrived before any successful encode.
	ErrNoEmbedding = errors.New("no image embedding")
	// ErrStale means the decode targets a superseded embedding version.
	ErrStale = errors.New("embedding version superseded")
)

// Loader creates a Backend.
type Loader func(ctx context.Context) (Backend, error)

// SessionManager loads the backend once, on first use. A failed load is not
// cached so that a later call can retry.
type SessionManager struct {
	loader  Loader
	mu      sync.Mutex
	backend Backend
}

// NewSessionManager creates a manager around loader.
func NewSessionManager(loader Loader) *SessionManager {
	return &SessionManager{loader: loader}
}

// Get returns the loaded backend, loading it if needed. Load failures wrap
// ErrNotReady.
func (s *SessionManager) Get(ctx context.Context) (Backend, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.backend != nil {
		return s.backend, nil
	}
	if s.loader == nil {
		return nil, fmt.Errorf("%w: no loader configured", ErrNotReady)
	}

	b, err := s.loader(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrNotReady, err)
	}
	s.backend = b
	return b, nil
}

// Loaded reports whether the backend is available.
func (s *SessionManager) Loaded() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.backend != nil
}

// Close releases the backend.
func (s *SessionManager) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.backend == nil {
		return nil
	}
	err := s.backend.Close()
	s.backend = nil
	return err
}
