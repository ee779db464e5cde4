// Package pdf_render rasterizes PDF pages. Backends are resolved lazily
// because both depend on native code or binaries that may be missing.
package pdf_render

import (
	"context"
	"image"
)

// RenderDPI renders pages at twice the 72 DPI PDF user space.
const RenderDPI = 144

// PageFunc receives pages in document order. Index is zero based.
type PageFunc func(index, total int, img image.Image) error

type PageRenderer interface {
	Name() string
	RenderPages(ctx context.Context, pdf []byte, dpi float64, fn PageFunc) error
}
