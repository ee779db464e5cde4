package contracts

import (
	"fmt"
	"image/color"
	"strconv"
	"strings"
)

// InputFlags are option values as they arrive from a form or the command
// line. Nothing here is trusted until ParseOptions accepts it.
type InputFlags struct {
	From        string `json:"from" form:"from"`
	To          string `json:"to" form:"to"`
	Quality     string `json:"quality" form:"quality"`
	Scale       string `json:"scale" form:"scale"`
	PageSize    string `json:"page_size" form:"page_size"`
	Background  string `json:"background" form:"background"`
	Transparent string `json:"transparent" form:"transparent"`
}

type PageSize string

const (
	PageA4     PageSize = "a4"
	PageLetter PageSize = "letter"
	PageFit    PageSize = "fit"
)

const (
	DefaultQuality = 92
	MaxScale       = 10.0
)

// Options is the validated snapshot handed to a converter. It is built once
// per submission and never modified.
type Options struct {
	Target         Format
	Quality        float64
	QualityPercent int
	Scale          float64
	PageSize       PageSize
	Background     color.RGBA
	Transparent    bool
}

func ParseOptions(in InputFlags) (Options, error) {
	opts := Options{
		QualityPercent: DefaultQuality,
		Scale:          1,
		PageSize:       PageA4,
		Background:     color.RGBA{R: 0xff, G: 0xff, B: 0xff, A: 0xff},
		Transparent:    true,
	}

	if s := strings.TrimSpace(in.To); s != "" {
		f, err := ParseFormat(s)
		if err != nil {
			return Options{}, fmt.Errorf("%w: target: %v", ErrValidation, err)
		}
		opts.Target = f
	}

	if s := strings.TrimSpace(in.Quality); s != "" {
		q, err := strconv.Atoi(s)
		if err != nil {
			return Options{}, fmt.Errorf("%w: quality %q is not a whole number", ErrValidation, s)
		}
		if q < 0 || q > 100 {
			return Options{}, fmt.Errorf("%w: quality %d is outside 0-100", ErrValidation, q)
		}
		opts.QualityPercent = q
	}
	opts.Quality = float64(opts.QualityPercent) / 100

	if s := strings.TrimSpace(in.Scale); s != "" {
		v, err := strconv.ParseFloat(strings.TrimSuffix(strings.ToLower(s), "x"), 64)
		if err != nil {
			return Options{}, fmt.Errorf("%w: scale %q is not a number", ErrValidation, s)
		}
		if v <= 0 || v > MaxScale {
			return Options{}, fmt.Errorf("%w: scale %g is outside (0, %g]", ErrValidation, v, MaxScale)
		}
		opts.Scale = v
	}

	if s := strings.TrimSpace(in.PageSize); s != "" {
		ps, err := ParsePageSize(s)
		if err != nil {
			return Options{}, err
		}
		opts.PageSize = ps
	}

	if s := strings.TrimSpace(in.Background); s != "" {
		c, err := ParseHexColor(s)
		if err != nil {
			return Options{}, err
		}
		opts.Background = c
	}

	if s := strings.TrimSpace(in.Transparent); s != "" {
		b, err := strconv.ParseBool(s)
		if err != nil {
			switch strings.ToLower(s) {
			case "on", "yes":
				b = true
			case "off", "no":
				b = false
			default:
				return Options{}, fmt.Errorf("%w: transparent %q is not a boolean", ErrValidation, s)
			}
		}
		opts.Transparent = b
	}

	return opts, nil
}

func ParsePageSize(s string) (PageSize, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "a4":
		return PageA4, nil
	case "letter":
		return PageLetter, nil
	case "fit", "fit-image", "fit-to-image", "fitimage":
		return PageFit, nil
	}
	return "", fmt.Errorf("%w: unknown page size %q", ErrValidation, s)
}

// ParseHexColor accepts #rgb and #rrggbb.
func ParseHexColor(s string) (color.RGBA, error) {
	h := strings.TrimPrefix(strings.TrimSpace(s), "#")
	if len(h) == 3 {
		h = string([]byte{h[0], h[0], h[1], h[1], h[2], h[2]})
	}
	if len(h) != 6 {
		return color.RGBA{}, fmt.Errorf("%w: background %q is not a hex color", ErrValidation, s)
	}
	v, err := strconv.ParseUint(h, 16, 32)
	if err != nil {
		return color.RGBA{}, fmt.Errorf("%w: background %q is not a hex color", ErrValidation, s)
	}
	return color.RGBA{R: uint8(v >> 16), G: uint8(v >> 8), B: uint8(v), A: 0xff}, nil
}
