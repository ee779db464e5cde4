package converter

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	"image/jpeg"
	"image/png"

	"formatconv/contracts"
	"formatconv/external"
	"formatconv/utils"

	"github.com/disintegration/imaging"
	_ "golang.org/x/image/bmp"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// decodeImage decodes the first frame of f. Animated sources lose every
// frame after the first.
func decodeImage(f contracts.File) (image.Image, error) {
	img, _, err := image.Decode(bytes.NewReader(f.Data))
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", contracts.ErrDecode, f.Name, err)
	}
	return orient(img, utils.ReadOrientation(f.Data)), nil
}

// orient applies an EXIF orientation tag so the pixels come out upright.
func orient(img image.Image, orientation int) image.Image {
	switch orientation {
	case 2:
		return imaging.FlipH(img)
	case 3:
		return imaging.Rotate180(img)
	case 4:
		return imaging.FlipV(img)
	case 5:
		return imaging.Transpose(img)
	case 6:
		return imaging.Rotate270(img)
	case 7:
		return imaging.Transverse(img)
	case 8:
		return imaging.Rotate90(img)
	}
	return img
}

// surface draws img onto a fresh RGBA bitmap of the same size. The bitmap
// is flattened onto the background when the target cannot carry alpha or
// transparency was turned off.
func surface(img image.Image, target contracts.Format, opts contracts.Options) *image.RGBA {
	b := img.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	if flattens(target, opts) {
		draw.Draw(dst, dst.Bounds(), &image.Uniform{C: opts.Background}, image.Point{}, draw.Src)
		draw.Draw(dst, dst.Bounds(), img, b.Min, draw.Over)
		return dst
	}
	draw.Draw(dst, dst.Bounds(), img, b.Min, draw.Src)
	return dst
}

func flattens(target contracts.Format, opts contracts.Options) bool {
	return !target.HasAlpha() || !opts.Transparent
}

// encoderFor is the feature check run before any decoding. Go encodes PNG
// and JPEG itself; everything else needs an external codec.
func encoderFor(ctx context.Context, codecs CodecFinder, to contracts.Format) (external.Codec, error) {
	switch to {
	case contracts.FormatPNG, contracts.FormatJPG:
		return nil, nil
	}
	if codecs == nil {
		return nil, fmt.Errorf("%w: %s encoding is not supported by this runtime", contracts.ErrUnsupportedTarget, to)
	}
	c, err := codecs.Find(ctx, external.OpEncode, to)
	if err != nil {
		if errors.Is(err, contracts.ErrDependency) || errors.Is(err, external.ErrNoCodec) {
			return nil, fmt.Errorf("%w: %s encoding is not supported by this runtime: %v", contracts.ErrUnsupportedTarget, to, err)
		}
		return nil, err
	}
	return c, nil
}

// encode writes img as the target format. quality applies to lossy targets.
func encode(ctx context.Context, img image.Image, to contracts.Format, opts contracts.Options, codec external.Codec) ([]byte, error) {
	var buf bytes.Buffer
	switch to {
	case contracts.FormatJPG:
		if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: jpegQuality(opts.QualityPercent)}); err != nil {
			return nil, fmt.Errorf("encode jpeg: %w", err)
		}
		return buf.Bytes(), nil
	case contracts.FormatPNG:
		if err := png.Encode(&buf, img); err != nil {
			return nil, fmt.Errorf("encode png: %w", err)
		}
		return buf.Bytes(), nil
	}

	if codec == nil {
		return nil, fmt.Errorf("%w: no encoder for %s", contracts.ErrUnsupportedTarget, to)
	}
	// hand the codec a lossless intermediate
	enc := png.Encoder{CompressionLevel: png.BestSpeed}
	if err := enc.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encode intermediate png: %w", err)
	}
	out, err := codec.Transcode(ctx, buf.Bytes(), to, opts.QualityPercent, opts.Background)
	if err != nil {
		return nil, fmt.Errorf("%s encode %s: %w", codec.Name(), to, err)
	}
	return out, nil
}

func jpegQuality(q int) int {
	if q < 1 {
		return 1
	}
	if q > 100 {
		return 100
	}
	return q
}

// dimensions reads the pixel size of an encoded payload without decoding
// the pixels.
func dimensions(data []byte) (int, int) {
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return 0, 0
	}
	return cfg.Width, cfg.Height
}

func payload(name string, to contracts.Format, data []byte, w, h int) contracts.Payload {
	return contracts.Payload{
		Filename:    name,
		ContentType: to.MIME(),
		Data:        data,
		Width:       w,
		Height:      h,
	}
}
