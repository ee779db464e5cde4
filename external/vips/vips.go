// Package vips is the libvips codec backend.
package vips

import (
	"context"
	"fmt"
	"image/color"
	"runtime"
	"sync"

	"formatconv/contracts"
	"formatconv/external"

	govips "github.com/davidbyttow/govips/v2/vips"
)

const Name = "vips"

var (
	startOnce sync.Once
	startErr  error
	started   bool
)

type Codec struct{}

// Load starts libvips once per process. It is meant to be registered with
// external.Library, which memoizes the result.
func Load(ctx context.Context) (external.Codec, error) {
	startOnce.Do(func() {
		defer func() {
			if r := recover(); r != nil {
				startErr = fmt.Errorf("libvips startup: %v", r)
			}
		}()
		govips.LoggingSettings(nil, govips.LogLevelWarning)
		govips.Startup(&govips.Config{ConcurrencyLevel: runtime.NumCPU()})
		started = true
	})
	if startErr != nil {
		return nil, startErr
	}
	return &Codec{}, nil
}

// Shutdown stops libvips if Load started it.
func Shutdown() {
	if started {
		govips.Shutdown()
	}
}

func (c *Codec) Name() string { return Name }

func (c *Codec) CanDecode(f contracts.Format) bool {
	t, ok := imageType(f)
	return ok && govips.IsTypeSupported(t)
}

func (c *Codec) CanEncode(f contracts.Format) bool {
	switch f {
	case contracts.FormatJPG, contracts.FormatPNG:
		return true
	case contracts.FormatWebP:
		return govips.IsTypeSupported(govips.ImageTypeWEBP)
	}
	return false
}

func (c *Codec) Transcode(ctx context.Context, data []byte, to contracts.Format, quality int, background color.RGBA) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	img, err := govips.NewImageFromBuffer(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", contracts.ErrDecode, err)
	}
	defer img.Close()

	if err := img.AutoRotate(); err != nil {
		return nil, fmt.Errorf("auto-rotate: %w", err)
	}
	if !to.HasAlpha() && img.HasAlpha() {
		bg := &govips.Color{R: background.R, G: background.G, B: background.B}
		if err := img.Flatten(bg); err != nil {
			return nil, fmt.Errorf("flatten: %w", err)
		}
	}

	var out []byte
	switch to {
	case contracts.FormatJPG:
		p := govips.NewJpegExportParams()
		p.Quality = clampQuality(quality)
		out, _, err = img.ExportJpeg(p)
	case contracts.FormatPNG:
		out, _, err = img.ExportPng(govips.NewPngExportParams())
	case contracts.FormatWebP:
		p := govips.NewWebpExportParams()
		p.Quality = clampQuality(quality)
		out, _, err = img.ExportWebp(p)
	default:
		return nil, fmt.Errorf("%w: vips cannot write %s", contracts.ErrUnsupportedTarget, to)
	}
	if err != nil {
		return nil, fmt.Errorf("vips export %s: %w", to, err)
	}
	return out, nil
}

func imageType(f contracts.Format) (govips.ImageType, bool) {
	switch f {
	case contracts.FormatJPG:
		return govips.ImageTypeJPEG, true
	case contracts.FormatPNG:
		return govips.ImageTypePNG, true
	case contracts.FormatWebP:
		return govips.ImageTypeWEBP, true
	case contracts.FormatHEIC:
		return govips.ImageTypeHEIF, true
	case contracts.FormatSVG:
		return govips.ImageTypeSVG, true
	case contracts.FormatPDF:
		return govips.ImageTypePDF, true
	}
	return govips.ImageTypeUnknown, false
}

// libvips rejects quality 0.
func clampQuality(q int) int {
	if q < 1 {
		return 1
	}
	if q > 100 {
		return 100
	}
	return q
}
