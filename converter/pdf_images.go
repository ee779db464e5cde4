package converter

import (
	"bytes"
	"context"
	"fmt"
	"image"

	"formatconv/contracts"
	"formatconv/pdf_render"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
)

// pdfToImagesAdapter renders every page of every selected PDF, in order,
// at pdf_render.RenderDPI and encodes each page as its own payload.
type pdfToImagesAdapter struct {
	codecs   CodecFinder
	renderer RendererFunc
}

func (a *pdfToImagesAdapter) Name() string { return "pdf-to-images" }

func (a *pdfToImagesAdapter) Convert(ctx context.Context, files []contracts.File, opts contracts.Options, progress contracts.ProgressFunc) ([]contracts.Payload, error) {
	codec, err := encoderFor(ctx, a.codecs, opts.Target)
	if err != nil {
		return nil, err
	}

	total := 0
	for _, f := range files {
		n, err := PageCount(f.Data)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", f.Name, err)
		}
		total += n
	}

	if a.renderer == nil {
		return nil, fmt.Errorf("%w: no PDF renderer is configured", contracts.ErrDependency)
	}
	renderer, err := a.renderer(ctx)
	if err != nil {
		return nil, err
	}

	out := make([]contracts.Payload, 0, total)
	for _, f := range files {
		base := f.BaseName()
		err := renderer.RenderPages(ctx, f.Data, pdf_render.RenderDPI, func(index, _ int, img image.Image) error {
			canvas := surface(img, opts.Target, opts)
			data, err := encode(ctx, canvas, opts.Target, opts, codec)
			if err != nil {
				return fmt.Errorf("page %d: %w", index+1, err)
			}
			b := canvas.Bounds()
			out = append(out, payload(PageName(base, index+1, opts.Target), opts.Target, data, b.Dx(), b.Dy()))
			report(progress, len(out), total)
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("%s: %w", f.Name, err)
		}
	}
	return out, nil
}

// PageCount validates data as a PDF and returns its number of pages.
func PageCount(data []byte) (int, error) {
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed

	if err := api.Validate(bytes.NewReader(data), conf); err != nil {
		return 0, fmt.Errorf("%w: invalid PDF: %v", contracts.ErrDecode, err)
	}
	n, err := api.PageCount(bytes.NewReader(data), conf)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", contracts.ErrDecode, err)
	}
	if n == 0 {
		return 0, fmt.Errorf("%w: document has no pages", contracts.ErrDecode)
	}
	return n, nil
}
