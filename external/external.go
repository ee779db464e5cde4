// Package external resolves native codec libraries (libvips, ImageMagick)
// lazily and answers feature checks against whatever loaded.
package external

import (
	"context"
	"errors"
	"fmt"
	"image/color"
	"sync"

	"formatconv/contracts"
	"formatconv/loader"
	"formatconv/logger"
)

type Op int

const (
	OpDecode Op = iota
	OpEncode
)

func (o Op) String() string {
	if o == OpEncode {
		return "encode"
	}
	return "decode"
}

// Codec is one loaded native backend.
type Codec interface {
	Name() string
	CanDecode(f contracts.Format) bool
	CanEncode(f contracts.Format) bool
	// Transcode decodes data and re-encodes it as to. quality is 0-100.
	// Targets without alpha are flattened onto background.
	Transcode(ctx context.Context, data []byte, to contracts.Format, quality int, background color.RGBA) ([]byte, error)
}

type Factory func(ctx context.Context) (Codec, error)

// ErrNoCodec means every configured backend loaded or failed to load and
// none of them supports the requested operation.
var ErrNoCodec = errors.New("no codec supports the requested format")

type Library struct {
	mu        sync.RWMutex
	order     []string
	factories map[string]Factory
	codecs    *loader.Loader[Codec]
}

func NewLibrary(order ...string) *Library {
	return &Library{
		order:     order,
		factories: make(map[string]Factory),
		codecs:    loader.New[Codec](),
	}
}

// Register makes a backend available under name. Backends not named in the
// library order are tried after the ordered ones, in registration order.
func (l *Library) Register(name string, f Factory) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.factories[name]; !ok {
		found := false
		for _, n := range l.order {
			if n == name {
				found = true
				break
			}
		}
		if !found {
			l.order = append(l.order, name)
		}
	}
	l.factories[name] = f
}

func (l *Library) Resolve(ctx context.Context, name string) (Codec, error) {
	l.mu.RLock()
	f, ok := l.factories[name]
	l.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: codec %q is not built into this binary", contracts.ErrDependency, name)
	}
	c, err := l.codecs.Load(ctx, name, loader.FetchFunc[Codec](f))
	if err != nil {
		if ctx.Err() != nil {
			return nil, err
		}
		return nil, fmt.Errorf("%w: loading %s: %v", contracts.ErrDependency, name, err)
	}
	return c, nil
}

// Find returns the first backend, in library order, that supports op on f.
// If no backend could be loaded at all the error wraps ErrDependency,
// otherwise it wraps ErrNoCodec.
func (l *Library) Find(ctx context.Context, op Op, f contracts.Format) (Codec, error) {
	l.mu.RLock()
	order := make([]string, 0, len(l.order))
	for _, name := range l.order {
		if _, ok := l.factories[name]; ok {
			order = append(order, name)
		}
	}
	l.mu.RUnlock()

	var loadErrs []error
	loaded := 0
	for _, name := range order {
		c, err := l.Resolve(ctx, name)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			logger.Warn(ctx, "codec unavailable", logger.Fields{"codec": name, "error": err.Error()})
			loadErrs = append(loadErrs, err)
			continue
		}
		loaded++
		if op == OpDecode && c.CanDecode(f) || op == OpEncode && c.CanEncode(f) {
			return c, nil
		}
	}

	if loaded == 0 {
		if len(loadErrs) == 0 {
			return nil, fmt.Errorf("%w: no image codec library is configured", contracts.ErrDependency)
		}
		return nil, fmt.Errorf("%w: %s %s needs libvips or ImageMagick: %v",
			contracts.ErrDependency, op, f, errors.Join(loadErrs...))
	}
	return nil, fmt.Errorf("%w: %s %s", ErrNoCodec, op, f)
}

// Supports is a feature check that never returns an error.
func (l *Library) Supports(ctx context.Context, op Op, f contracts.Format) bool {
	_, err := l.Find(ctx, op, f)
	return err == nil
}
