// Package magick is the ImageMagick codec backend.
package magick

import (
	"context"
	"fmt"
	"image/color"
	"strings"
	"sync"

	"formatconv/contracts"
	"formatconv/external"

	"gopkg.in/gographics/imagick.v2/imagick"
)

const Name = "magick"

var (
	initOnce    sync.Once
	initialized bool
)

type Codec struct {
	formats map[string]bool
}

// Load initializes ImageMagick once and records the formats it was built
// with.
func Load(ctx context.Context) (external.Codec, error) {
	initOnce.Do(func() {
		imagick.Initialize()
		initialized = true
	})

	formats := make(map[string]bool)
	for _, f := range imagick.QueryFormats("*") {
		formats[strings.ToUpper(f)] = true
	}
	if len(formats) == 0 {
		return nil, fmt.Errorf("imagemagick reports no formats")
	}
	return &Codec{formats: formats}, nil
}

func Shutdown() {
	if initialized {
		imagick.Terminate()
	}
}

func (c *Codec) Name() string { return Name }

func (c *Codec) CanDecode(f contracts.Format) bool {
	return c.formats[magickFormat(f)]
}

func (c *Codec) CanEncode(f contracts.Format) bool {
	switch f {
	case contracts.FormatJPG, contracts.FormatPNG, contracts.FormatWebP:
		return c.formats[magickFormat(f)]
	}
	return false
}

func (c *Codec) Transcode(ctx context.Context, data []byte, to contracts.Format, quality int, background color.RGBA) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !c.CanEncode(to) {
		return nil, fmt.Errorf("%w: imagemagick cannot write %s", contracts.ErrUnsupportedTarget, to)
	}

	mw := imagick.NewMagickWand()
	defer mw.Destroy()

	if err := mw.ReadImageBlob(data); err != nil {
		return nil, fmt.Errorf("%w: %v", contracts.ErrDecode, err)
	}
	if err := mw.AutoOrientImage(); err != nil {
		return nil, fmt.Errorf("auto-orient: %w", err)
	}

	if !to.HasAlpha() {
		pw := imagick.NewPixelWand()
		defer pw.Destroy()
		pw.SetColor(fmt.Sprintf("rgb(%d,%d,%d)", background.R, background.G, background.B))
		if err := mw.SetImageBackgroundColor(pw); err != nil {
			return nil, fmt.Errorf("background: %w", err)
		}
		flat := mw.MergeImageLayers(imagick.IMAGE_LAYER_FLATTEN)
		defer flat.Destroy()
		mw = flat
	}

	if err := mw.SetImageFormat(magickFormat(to)); err != nil {
		return nil, fmt.Errorf("set format %s: %w", to, err)
	}
	if to != contracts.FormatPNG {
		if err := mw.SetImageCompressionQuality(uint(quality)); err != nil {
			return nil, fmt.Errorf("set quality: %w", err)
		}
	}
	return mw.GetImageBlob(), nil
}

func magickFormat(f contracts.Format) string {
	switch f {
	case contracts.FormatJPG:
		return "JPEG"
	case contracts.FormatHEIC:
		return "HEIC"
	}
	return strings.ToUpper(string(f))
}
