package converter

import (
	"context"

	"formatconv/contracts"
)

// rasterAdapter re-encodes PNG, JPG and WebP into one another, one payload
// per input file.
type rasterAdapter struct {
	codecs CodecFinder
}

func (a *rasterAdapter) Name() string { return "raster" }

func (a *rasterAdapter) Convert(ctx context.Context, files []contracts.File, opts contracts.Options, progress contracts.ProgressFunc) ([]contracts.Payload, error) {
	codec, err := encoderFor(ctx, a.codecs, opts.Target)
	if err != nil {
		return nil, err
	}

	out := make([]contracts.Payload, 0, len(files))
	for i, f := range files {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		img, err := decodeImage(f)
		if err != nil {
			return nil, err
		}
		canvas := surface(img, opts.Target, opts)
		data, err := encode(ctx, canvas, opts.Target, opts, codec)
		if err != nil {
			return nil, err
		}
		b := canvas.Bounds()
		out = append(out, payload(OutputName(f.BaseName(), opts.Target), opts.Target, data, b.Dx(), b.Dy()))
		report(progress, i+1, len(files))
	}
	return out, nil
}
