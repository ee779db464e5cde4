package contracts

import (
	"fmt"
	"path/filepath"
	"strings"
)

type Format string

const (
	FormatAuto Format = "auto"
	FormatPNG  Format = "png"
	FormatJPG  Format = "jpg"
	FormatWebP Format = "webp"
	FormatSVG  Format = "svg"
	FormatPDF  Format = "pdf"
	FormatHEIC Format = "heic"
)

var formatMIME = map[Format]string{
	FormatPNG:  "image/png",
	FormatJPG:  "image/jpeg",
	FormatWebP: "image/webp",
	FormatSVG:  "image/svg+xml",
	FormatPDF:  "application/pdf",
	FormatHEIC: "image/heic",
}

var aliases = map[string]Format{
	"auto":                FormatAuto,
	"png":                 FormatPNG,
	"jpg":                 FormatJPG,
	"jpeg":                FormatJPG,
	"jfif":                FormatJPG,
	"webp":                FormatWebP,
	"svg":                 FormatSVG,
	"pdf":                 FormatPDF,
	"heic":                FormatHEIC,
	"heif":                FormatHEIC,
	"image/png":           FormatPNG,
	"image/jpeg":          FormatJPG,
	"image/jpg":           FormatJPG,
	"image/pjpeg":         FormatJPG,
	"image/webp":          FormatWebP,
	"image/svg+xml":       FormatSVG,
	"application/pdf":     FormatPDF,
	"image/heic":          FormatHEIC,
	"image/heif":          FormatHEIC,
	"image/heic-sequence": FormatHEIC,
	"image/heif-sequence": FormatHEIC,
}

// ParseFormat accepts a format name, an extension with or without the dot,
// or a MIME type.
func ParseFormat(s string) (Format, error) {
	key := strings.ToLower(strings.TrimSpace(s))
	key = strings.TrimPrefix(key, ".")
	if i := strings.IndexByte(key, ';'); i >= 0 {
		key = strings.TrimSpace(key[:i])
	}
	if f, ok := aliases[key]; ok {
		return f, nil
	}
	return "", fmt.Errorf("unknown format %q", s)
}

// FormatFromName infers a format from a filename extension.
func FormatFromName(name string) (Format, bool) {
	ext := filepath.Ext(name)
	if ext == "" {
		return "", false
	}
	f, err := ParseFormat(ext)
	if err != nil || f == FormatAuto {
		return "", false
	}
	return f, true
}

func (f Format) MIME() string {
	if m, ok := formatMIME[f]; ok {
		return m
	}
	return "application/octet-stream"
}

func (f Format) Ext() string {
	return string(f)
}

// HasAlpha reports whether the encoded format can carry transparency.
func (f Format) HasAlpha() bool {
	return f == FormatPNG || f == FormatWebP || f == FormatSVG
}

// IsRaster reports whether the format decodes to a single bitmap.
func (f Format) IsRaster() bool {
	switch f {
	case FormatPNG, FormatJPG, FormatWebP, FormatHEIC:
		return true
	}
	return false
}

func (f Format) String() string {
	if f == FormatJPG {
		return "JPG"
	}
	return strings.ToUpper(string(f))
}
