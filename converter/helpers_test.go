package converter

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"testing"

	"formatconv/contracts"
	"formatconv/external"
	"formatconv/pdf_render"

	"github.com/stretchr/testify/require"
)

func gradient(w, h int, alpha uint8) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.NRGBA{R: uint8(x * 7), G: uint8(y * 13), B: uint8((x + y) * 3), A: alpha})
		}
	}
	return img
}

func pngFile(t *testing.T, name string, img image.Image) contracts.File {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return contracts.NewFile(name, buf.Bytes(), "image/png")
}

func jpegFile(t *testing.T, name string, img image.Image) contracts.File {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, img, &jpeg.Options{Quality: 90}))
	return contracts.NewFile(name, buf.Bytes(), "image/jpeg")
}

func options(t *testing.T, in contracts.InputFlags) contracts.Options {
	t.Helper()
	opts, err := contracts.ParseOptions(in)
	require.NoError(t, err)
	return opts
}

func decodeAny(t *testing.T, data []byte) image.Image {
	t.Helper()
	img, _, err := image.Decode(bytes.NewReader(data))
	require.NoError(t, err)
	return img
}

// fakeCodec encodes every target as PNG so results stay decodable.
type fakeCodec struct {
	decode, encode map[contracts.Format]bool
	calls          int
	lastQuality    int
}

func (c *fakeCodec) Name() string { return "fake" }

func (c *fakeCodec) CanDecode(f contracts.Format) bool { return c.decode[f] }

func (c *fakeCodec) CanEncode(f contracts.Format) bool { return c.encode[f] }

func (c *fakeCodec) Transcode(_ context.Context, data []byte, _ contracts.Format, quality int, _ color.RGBA) ([]byte, error) {
	c.calls++
	c.lastQuality = quality
	if _, _, err := image.Decode(bytes.NewReader(data)); err != nil {
		return nil, contracts.ErrDecode
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, 4, 3))); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

type fakeFinder struct {
	codec *fakeCodec
	err   error
}

func (f *fakeFinder) Find(_ context.Context, op external.Op, format contracts.Format) (external.Codec, error) {
	if f.err != nil {
		return nil, f.err
	}
	if op == external.OpDecode && f.codec.CanDecode(format) || op == external.OpEncode && f.codec.CanEncode(format) {
		return f.codec, nil
	}
	return nil, external.ErrNoCodec
}

// fakeRenderer yields pages of increasing width.
type fakeRenderer struct {
	pages int
	docs  int
}

func (r *fakeRenderer) Name() string { return "fake" }

func (r *fakeRenderer) RenderPages(_ context.Context, _ []byte, dpi float64, fn pdf_render.PageFunc) error {
	r.docs++
	for i := 0; i < r.pages; i++ {
		if err := fn(i, r.pages, gradient(10*(i+1), 20, 255)); err != nil {
			return err
		}
	}
	return nil
}
