// Package converter holds the codec adapters and the table that routes a
// resolved format pair to exactly one of them.
package converter

import (
	"context"
	"fmt"

	"formatconv/contracts"
	"formatconv/external"
	"formatconv/pdf_render"
)

// CodecFinder is the part of external.Library the adapters need.
type CodecFinder interface {
	Find(ctx context.Context, op external.Op, f contracts.Format) (external.Codec, error)
}

// RendererFunc resolves a page renderer on first use.
type RendererFunc func(ctx context.Context) (pdf_render.PageRenderer, error)

type Deps struct {
	Codecs   CodecFinder
	Renderer RendererFunc
}

var rasterFormats = []contracts.Format{contracts.FormatPNG, contracts.FormatJPG, contracts.FormatWebP}

type Registry struct {
	routes map[contracts.Pair]contracts.Converter
}

func NewRegistry(deps Deps) *Registry {
	r := &Registry{routes: make(map[contracts.Pair]contracts.Converter)}

	raster := &rasterAdapter{codecs: deps.Codecs}
	vector := &svgAdapter{codecs: deps.Codecs}
	compose := &imagesToPDFAdapter{}
	extract := &pdfToImagesAdapter{codecs: deps.Codecs, renderer: deps.Renderer}
	heic := &heicAdapter{codecs: deps.Codecs}

	for _, from := range rasterFormats {
		for _, to := range rasterFormats {
			r.add(from, to, raster)
		}
		r.add(from, contracts.FormatPDF, compose)
		r.add(contracts.FormatSVG, from, vector)
		r.add(contracts.FormatPDF, from, extract)
	}
	r.add(contracts.FormatHEIC, contracts.FormatJPG, heic)
	r.add(contracts.FormatHEIC, contracts.FormatPNG, heic)
	return r
}

func (r *Registry) add(from, to contracts.Format, c contracts.Converter) {
	r.routes[contracts.Pair{From: from, To: to}] = c
}

// Lookup returns the adapter for a resolved pair.
func (r *Registry) Lookup(pair contracts.Pair) (contracts.Converter, error) {
	c, ok := r.routes[pair]
	if !ok {
		return nil, fmt.Errorf("%w: no converter from %s to %s", contracts.ErrUnsupportedTarget, pair.From, pair.To)
	}
	return c, nil
}

// Supports reports whether a route exists for pair.
func (r *Registry) Supports(pair contracts.Pair) bool {
	_, ok := r.routes[pair]
	return ok
}

func report(progress contracts.ProgressFunc, done, total int) {
	if progress != nil {
		progress(done, total)
	}
}

// OutputName is the suggested filename for a single converted file.
func OutputName(base string, to contracts.Format) string {
	return base + "." + to.Ext()
}

// PageName is the suggested filename for one page extracted from a PDF.
func PageName(base string, page int, to contracts.Format) string {
	return fmt.Sprintf("%s-page-%d.%s", base, page, to.Ext())
}

// CombinedPDFName is used when several images collapse into one document.
const CombinedPDFName = "images.pdf"
