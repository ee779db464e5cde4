package converter

import (
	"context"
	"strconv"
	"testing"

	"formatconv/contracts"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSameFormatKeepsDimensions(t *testing.T) {
	a := &rasterAdapter{}
	cases := []struct {
		name string
		file contracts.File
		to   string
	}{
		{"png", pngFile(t, "a.png", gradient(37, 21, 255)), "png"},
		{"png with alpha", pngFile(t, "b.png", gradient(64, 9, 100)), "png"},
		{"jpg", jpegFile(t, "c.jpg", gradient(120, 80, 255)), "jpg"},
		{"png to jpg", pngFile(t, "d.png", gradient(17, 33, 255)), "jpg"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			src := decodeAny(t, tc.file.Data)
			out, err := a.Convert(context.Background(), []contracts.File{tc.file}, options(t, contracts.InputFlags{To: tc.to}), nil)
			require.NoError(t, err)
			require.Len(t, out, 1)

			img := decodeAny(t, out[0].Data)
			assert.Equal(t, src.Bounds().Dx(), img.Bounds().Dx())
			assert.Equal(t, src.Bounds().Dy(), img.Bounds().Dy())
			assert.Equal(t, src.Bounds().Dx(), out[0].Width)
			assert.Equal(t, src.Bounds().Dy(), out[0].Height)
			assert.Equal(t, tc.file.BaseName()+"."+tc.to, out[0].Filename)
		})
	}
}

func TestEveryQualityIsAccepted(t *testing.T) {
	a := &rasterAdapter{}
	src := pngFile(t, "q.png", gradient(24, 24, 255))
	for q := 1; q <= 100; q++ {
		_, err := a.Convert(context.Background(), []contracts.File{src},
			options(t, contracts.InputFlags{To: "jpg", Quality: strconv.Itoa(q)}), nil)
		require.NoError(t, err, "quality %d", q)
	}
}

func TestHigherQualityIsNotSmaller(t *testing.T) {
	a := &rasterAdapter{}
	src := pngFile(t, "q.png", gradient(200, 150, 255))

	low, err := a.Convert(context.Background(), []contracts.File{src}, options(t, contracts.InputFlags{To: "jpg", Quality: "10"}), nil)
	require.NoError(t, err)
	high, err := a.Convert(context.Background(), []contracts.File{src}, options(t, contracts.InputFlags{To: "jpg", Quality: "100"}), nil)
	require.NoError(t, err)

	assert.GreaterOrEqual(t, len(high[0].Data), len(low[0].Data))
}

func TestFlattenOntoBackground(t *testing.T) {
	a := &rasterAdapter{}
	src := pngFile(t, "clear.png", gradient(8, 8, 0))

	out, err := a.Convert(context.Background(), []contracts.File{src},
		options(t, contracts.InputFlags{To: "png", Background: "#ff0000", Transparent: "false"}), nil)
	require.NoError(t, err)
	r, g, b, alpha := decodeAny(t, out[0].Data).At(3, 3).RGBA()
	assert.Equal(t, uint32(0xffff), r)
	assert.Equal(t, uint32(0), g)
	assert.Equal(t, uint32(0), b)
	assert.Equal(t, uint32(0xffff), alpha)

	out, err = a.Convert(context.Background(), []contracts.File{src},
		options(t, contracts.InputFlags{To: "png"}), nil)
	require.NoError(t, err)
	_, _, _, alpha = decodeAny(t, out[0].Data).At(3, 3).RGBA()
	assert.Equal(t, uint32(0), alpha)
}

func TestWebPCheckedBeforeDecode(t *testing.T) {
	a := &rasterAdapter{}
	broken := contracts.NewFile("broken.png", []byte("not an image"), "image/png")

	_, err := a.Convert(context.Background(), []contracts.File{broken}, options(t, contracts.InputFlags{To: "webp"}), nil)
	assert.ErrorIs(t, err, contracts.ErrUnsupportedTarget)
	assert.NotErrorIs(t, err, contracts.ErrDecode)

	a = &rasterAdapter{codecs: &fakeFinder{codec: &fakeCodec{}}}
	_, err = a.Convert(context.Background(), []contracts.File{broken}, options(t, contracts.InputFlags{To: "webp"}), nil)
	assert.ErrorIs(t, err, contracts.ErrUnsupportedTarget)
}

func TestWebPThroughCodec(t *testing.T) {
	codec := &fakeCodec{encode: map[contracts.Format]bool{contracts.FormatWebP: true}}
	a := &rasterAdapter{codecs: &fakeFinder{codec: codec}}

	out, err := a.Convert(context.Background(), []contracts.File{jpegFile(t, "x.jpg", gradient(4, 3, 255))},
		options(t, contracts.InputFlags{To: "webp", Quality: "55"}), nil)
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "x.webp", out[0].Filename)
	assert.Equal(t, "image/webp", out[0].ContentType)
	assert.Equal(t, 1, codec.calls)
	assert.Equal(t, 55, codec.lastQuality)
}

func TestDecodeFailure(t *testing.T) {
	a := &rasterAdapter{}
	_, err := a.Convert(context.Background(), []contracts.File{contracts.NewFile("x.png", []byte{0x89, 'P', 'N', 'G'}, "image/png")},
		options(t, contracts.InputFlags{To: "jpg"}), nil)
	assert.ErrorIs(t, err, contracts.ErrDecode)
	assert.Contains(t, err.Error(), "x.png")
}

func TestOrientSwapsDimensions(t *testing.T) {
	img := gradient(30, 10, 255)
	for _, o := range []int{5, 6, 7, 8} {
		b := orient(img, o).Bounds()
		assert.Equal(t, 10, b.Dx(), "orientation %d", o)
		assert.Equal(t, 30, b.Dy(), "orientation %d", o)
	}
	for _, o := range []int{1, 2, 3, 4} {
		b := orient(img, o).Bounds()
		assert.Equal(t, 30, b.Dx(), "orientation %d", o)
	}
}
