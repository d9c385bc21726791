package embedding

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// ErrClosed is returned by a Lazy embedder after Close.
var ErrClosed = errors.New("embedder closed")

// Lazy defers construction of an Embedder until first use. The constructor runs
// at most once, even when the first calls arrive concurrently; a construction
// error is returned to every later caller.
type Lazy struct {
	newFn      func() (Embedder, error)
	dimensions int
	once       sync.Once
	mu         sync.Mutex
	embedder   Embedder
	err        error
}

// NewLazy returns a Lazy embedder. dimensions is reported by Dimensions until
// the underlying embedder exists.
func NewLazy(newFn func() (Embedder, error), dimensions int) *Lazy {
	return &Lazy{newFn: newFn, dimensions: dimensions}
}

func (l *Lazy) get() (Embedder, error) {
	l.once.Do(func() {
		e, err := l.newFn()
		if err != nil {
			err = fmt.Errorf("initialize embedder: %w", err)
		}
		l.mu.Lock()
		l.embedder, l.err = e, err
		l.mu.Unlock()
	})
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.embedder, l.err
}

// Initialized reports whether the underlying embedder has been constructed.
func (l *Lazy) Initialized() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.embedder != nil
}

// EmbedImage initializes the embedder if needed and embeds the image at path.
func (l *Lazy) EmbedImage(ctx context.Context, path string) ([]float32, error) {
	e, err := l.get()
	if err != nil {
		return nil, err
	}
	return e.EmbedImage(ctx, path)
}

// EmbedText initializes the embedder if needed and embeds text.
func (l *Lazy) EmbedText(ctx context.Context, text string) ([]float32, error) {
	e, err := l.get()
	if err != nil {
		return nil, err
	}
	return e.EmbedText(ctx, text)
}

// Dimensions returns the embedding dimension.
func (l *Lazy) Dimensions() int {
	l.mu.Lock()
	e := l.embedder
	l.mu.Unlock()
	if e != nil {
		return e.Dimensions()
	}
	return l.dimensions
}

// Close closes the underlying embedder if it was constructed. It never triggers
// construction; every call after Close returns ErrClosed.
func (l *Lazy) Close() error {
	l.once.Do(func() {})
	l.mu.Lock()
	e := l.embedder
	l.embedder, l.err = nil, ErrClosed
	l.mu.Unlock()
	if e != nil {
		return e.Close()
	}
	return nil
}
