package main

import (
	"context"
	"fmt"

	"formatconv/config"
	"formatconv/converter"
	"formatconv/external"
	"formatconv/external/magick"
	"formatconv/external/vips"
	"formatconv/loader"
	"formatconv/pdf_render"
	"formatconv/pdf_render/fitz"
	"formatconv/publisher"
)

// newRegistry wires the adapters to the native codecs and the PDF
// renderer. Nothing native is loaded until a conversion needs it.
func newRegistry(cfg config.Config) *converter.Registry {
	codecs := external.NewLibrary(cfg.Codecs.Order...)
	codecs.Register(vips.Name, vips.Load)
	codecs.Register(magick.Name, magick.Load)

	return converter.NewRegistry(converter.Deps{
		Codecs:   codecs,
		Renderer: newRenderer(cfg.Render.Backend),
	})
}

func newRenderer(backend string) converter.RendererFunc {
	renderers := loader.New[pdf_render.PageRenderer]()
	return func(ctx context.Context) (pdf_render.PageRenderer, error) {
		return renderers.Load(ctx, backend, func(ctx context.Context) (pdf_render.PageRenderer, error) {
			if backend == fitz.Name {
				return fitz.New(ctx)
			}
			p, err := pdf_render.NewPoppler(ctx)
			if err != nil {
				return nil, err
			}
			return p, nil
		})
	}
}

// shutdownNative releases the native libraries if they were started.
func shutdownNative() {
	vips.Shutdown()
	magick.Shutdown()
}

// newResultStore returns the store and a close function.
func newResultStore(ctx context.Context, cfg config.PublishConfig) (publisher.Store, func() error, error) {
	switch cfg.Backend {
	case "gcs":
		s, err := publisher.NewGCSStore(ctx, publisher.GCSConfig{
			Bucket:       cfg.GCSBucket,
			Prefix:       cfg.GCSPrefix,
			SigningEmail: cfg.SigningEmail,
			SigningKey:   cfg.SigningKey,
			URLTTL:       cfg.SignedURLTTL,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("opening result bucket: %w", err)
		}
		return s, s.Close, nil
	default:
		return publisher.NewMemoryStore(cfg.BaseURL), func() error { return nil }, nil
	}
}
