// Package loader memoizes expensive one-time initialisations (native codec
// libraries, renderers) keyed by their source. Concurrent callers for the
// same source share one in-flight load.
package loader

import (
	"context"
	"sync"

	"golang.org/x/sync/singleflight"
)

type FetchFunc[T any] func(ctx context.Context) (T, error)

type Loader[T any] struct {
	mu     sync.RWMutex
	loaded map[string]T
	group  singleflight.Group
}

func New[T any]() *Loader[T] {
	return &Loader[T]{loaded: make(map[string]T)}
}

// Load returns the cached value for source or runs fetch once. A failed
// fetch is not cached, so a later call retries. If ctx ends while waiting,
// Load returns ctx.Err() and the shared fetch keeps running for the other
// callers.
func (l *Loader[T]) Load(ctx context.Context, source string, fetch FetchFunc[T]) (T, error) {
	if v, ok := l.cached(source); ok {
		return v, nil
	}

	ch := l.group.DoChan(source, func() (any, error) {
		if v, ok := l.cached(source); ok {
			return v, nil
		}
		v, err := fetch(context.WithoutCancel(ctx))
		if err != nil {
			return v, err
		}
		l.mu.Lock()
		l.loaded[source] = v
		l.mu.Unlock()
		return v, nil
	})

	select {
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			var zero T
			return zero, res.Err
		}
		return res.Val.(T), nil
	}
}

// Loaded reports whether source has been loaded successfully.
func (l *Loader[T]) Loaded(source string) bool {
	_, ok := l.cached(source)
	return ok
}

func (l *Loader[T]) cached(source string) (T, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	v, ok := l.loaded[source]
	return v, ok
}
