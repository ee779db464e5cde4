package converter

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"

	"formatconv/contracts"
	"formatconv/external"
)

// heicAdapter hands HEIC decoding and re-encoding to a native codec.
type heicAdapter struct {
	codecs CodecFinder
}

func (a *heicAdapter) Name() string { return "heic" }

func (a *heicAdapter) Convert(ctx context.Context, files []contracts.File, opts contracts.Options, progress contracts.ProgressFunc) ([]contracts.Payload, error) {
	if opts.Target == contracts.FormatHEIC {
		return nil, fmt.Errorf("%w: no HEIC encoder is available", contracts.ErrUnsupportedTarget)
	}
	if a.codecs == nil {
		return nil, fmt.Errorf("%w: HEIC decoding needs libvips or ImageMagick built with libheif", contracts.ErrDependency)
	}
	codec, err := a.codecs.Find(ctx, external.OpDecode, contracts.FormatHEIC)
	if err != nil {
		if errors.Is(err, external.ErrNoCodec) {
			return nil, fmt.Errorf("%w: HEIC decoding needs libvips or ImageMagick built with libheif", contracts.ErrDependency)
		}
		return nil, err
	}
	if !codec.CanEncode(opts.Target) {
		return nil, fmt.Errorf("%w: %s cannot write %s", contracts.ErrUnsupportedTarget, codec.Name(), opts.Target)
	}

	out := make([]contracts.Payload, 0, len(files))
	for i, f := range files {
		data, err := transcodeHEIC(ctx, codec, f, opts)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", f.Name, err)
		}
		w, h := dimensions(data)
		out = append(out, payload(OutputName(f.BaseName(), opts.Target), opts.Target, data, w, h))
		report(progress, i+1, len(files))
	}
	return out, nil
}

// transcodeHEIC lets the codec write the target directly unless the target
// keeps alpha and transparency is off. The codec only flattens formats
// without alpha, so that case goes through a lossless PNG that is flattened
// here onto the background.
func transcodeHEIC(ctx context.Context, codec external.Codec, f contracts.File, opts contracts.Options) ([]byte, error) {
	if !opts.Target.HasAlpha() || opts.Transparent {
		return codec.Transcode(ctx, f.Data, opts.Target, opts.QualityPercent, opts.Background)
	}
	if !codec.CanEncode(contracts.FormatPNG) {
		return nil, fmt.Errorf("%w: %s cannot write a png intermediate", contracts.ErrUnsupportedTarget, codec.Name())
	}
	lossless, err := codec.Transcode(ctx, f.Data, contracts.FormatPNG, 100, opts.Background)
	if err != nil {
		return nil, err
	}
	img, _, err := image.Decode(bytes.NewReader(lossless))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", contracts.ErrDecode, err)
	}
	return encode(ctx, surface(img, opts.Target, opts), opts.Target, opts, codec)
}
