package contracts

import (
	"context"
	"errors"
)

// Kind names one converter: the set of accepted inputs, the selector shape
// and the adapters it may dispatch to.
type Kind string

const (
	KindSVG    Kind = "svg"
	KindPDF    Kind = "pdf"
	KindPNGJPG Kind = "png-jpg"
	KindHEIC   Kind = "heic"
	KindWebP   Kind = "webp"
)

func ParseKind(s string) (Kind, error) {
	switch k := Kind(s); k {
	case KindSVG, KindPDF, KindPNGJPG, KindHEIC, KindWebP:
		return k, nil
	}
	return "", errors.New("unknown converter kind " + s)
}

type Pair struct {
	From Format `json:"from"`
	To   Format `json:"to"`
}

func (p Pair) String() string {
	return string(p.From) + "->" + string(p.To)
}

type Mode string

const (
	ModeNone        Mode = ""
	ModeImagesToPDF Mode = "images-to-pdf"
	ModePDFToImages Mode = "pdf-to-images"
)

// ProgressFunc is called by adapters after each unit of work (file or page).
type ProgressFunc func(done, total int)

// Converter turns a validated file set into one or more payloads.
type Converter interface {
	Name() string
	Convert(ctx context.Context, files []File, opts Options, progress ProgressFunc) ([]Payload, error)
}

// Payload is one encoded output.
type Payload struct {
	Filename    string `json:"filename"`
	ContentType string `json:"content_type"`
	Data        []byte `json:"-"`
	Width       int    `json:"width,omitempty"`
	Height      int    `json:"height,omitempty"`
}

// Error classes shared by every stage. Callers match them with errors.Is.
var (
	ErrValidation        = errors.New("invalid input")
	ErrDecode            = errors.New("cannot decode source")
	ErrUnsupportedTarget = errors.New("target format is not supported")
	ErrDependency        = errors.New("required library is unavailable")
)
