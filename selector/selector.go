// Package selector resolves which conversion a selection asks for: an
// explicit (from, to) pair, or a mode inferred from the selected files.
package selector

import (
	"errors"
	"fmt"

	"formatconv/contracts"
	"formatconv/files_manager"
)

var (
	ErrAmbiguousSelection = fmt.Errorf("%w: the selection mixes images and PDFs; choose either images or PDFs", contracts.ErrValidation)
	ErrUnsupportedPair    = errors.New("unsupported conversion")
)

// Inferred reports whether kind picks its mode from the selected files
// rather than from an explicit pair.
func Inferred(kind contracts.Kind) bool {
	return kind == contracts.KindPDF
}

// Targets lists the formats kind can write when converting from.
func Targets(kind contracts.Kind, from contracts.Format) []contracts.Format {
	switch kind {
	case contracts.KindSVG:
		return []contracts.Format{contracts.FormatPNG, contracts.FormatJPG, contracts.FormatWebP}
	case contracts.KindPDF:
		if from == contracts.FormatPDF {
			return []contracts.Format{contracts.FormatPNG, contracts.FormatJPG, contracts.FormatWebP}
		}
		return []contracts.Format{contracts.FormatPDF}
	case contracts.KindPNGJPG:
		return []contracts.Format{contracts.FormatPNG, contracts.FormatJPG}
	case contracts.KindHEIC:
		if from == contracts.FormatHEIC {
			return []contracts.Format{contracts.FormatJPG, contracts.FormatPNG}
		}
		return []contracts.Format{contracts.FormatHEIC}
	case contracts.KindWebP:
		if from == contracts.FormatWebP {
			return []contracts.Format{contracts.FormatJPG, contracts.FormatPNG}
		}
		return []contracts.Format{contracts.FormatWebP}
	}
	return nil
}

// DefaultPair is what a fresh session of kind starts with.
func DefaultPair(kind contracts.Kind) contracts.Pair {
	switch kind {
	case contracts.KindSVG:
		return contracts.Pair{From: contracts.FormatSVG, To: contracts.FormatPNG}
	case contracts.KindPNGJPG:
		return contracts.Pair{From: contracts.FormatAuto, To: contracts.FormatJPG}
	case contracts.KindHEIC:
		return contracts.Pair{From: contracts.FormatHEIC, To: contracts.FormatJPG}
	case contracts.KindWebP:
		return contracts.Pair{From: contracts.FormatWebP, To: contracts.FormatJPG}
	}
	return contracts.Pair{From: contracts.FormatAuto, To: contracts.FormatAuto}
}

// Resolve replaces an "auto" source with the format sniffed from the first
// file. An "auto" target stays unresolved until submit.
func Resolve(kind contracts.Kind, pair contracts.Pair, files []contracts.File) contracts.Pair {
	if kind == contracts.KindSVG {
		pair.From = contracts.FormatSVG
		return pair
	}
	if pair.From == contracts.FormatAuto && len(files) > 0 {
		if f, ok := files_manager.Detect(files[0]); ok {
			pair.From = f
		}
	}
	return pair
}

// Swap exchanges source and target, then re-resolves "auto".
func Swap(kind contracts.Kind, pair contracts.Pair, files []contracts.File) contracts.Pair {
	return Resolve(kind, contracts.Pair{From: pair.To, To: pair.From}, files)
}

// InferMode classifies a selection as all images or all PDFs.
func InferMode(files []contracts.File) (contracts.Mode, error) {
	var images, pdfs int
	for _, f := range files {
		format, ok := files_manager.Detect(f)
		switch {
		case ok && format == contracts.FormatPDF:
			pdfs++
		case ok && format.IsRaster():
			images++
		default:
			return contracts.ModeNone, fmt.Errorf("%w: %s is neither an image nor a PDF", contracts.ErrValidation, f.Name)
		}
	}
	switch {
	case images > 0 && pdfs > 0:
		return contracts.ModeNone, ErrAmbiguousSelection
	case pdfs > 0:
		return contracts.ModePDFToImages, nil
	case images > 0:
		return contracts.ModeImagesToPDF, nil
	}
	return contracts.ModeNone, nil
}

// ModePair turns an inferred mode into the pair the dispatcher routes on.
// to is the requested image format for PDF → images and defaults to PNG.
func ModePair(mode contracts.Mode, files []contracts.File, to contracts.Format) (contracts.Pair, error) {
	switch mode {
	case contracts.ModeImagesToPDF:
		from := contracts.FormatPNG
		if len(files) > 0 {
			if f, ok := files_manager.Detect(files[0]); ok {
				from = f
			}
		}
		return contracts.Pair{From: from, To: contracts.FormatPDF}, nil
	case contracts.ModePDFToImages:
		if to == "" || to == contracts.FormatAuto || to == contracts.FormatPDF {
			to = contracts.FormatPNG
		}
		return contracts.Pair{From: contracts.FormatPDF, To: to}, nil
	}
	return contracts.Pair{}, fmt.Errorf("%w: select images or PDFs first", contracts.ErrValidation)
}

// Check fails fast on combinations kind cannot perform, before any
// adapter runs.
func Check(kind contracts.Kind, pair contracts.Pair) error {
	if pair.From == contracts.FormatAuto || pair.From == "" {
		return fmt.Errorf("%w: the source format could not be detected; choose it explicitly", ErrUnsupportedPair)
	}
	if pair.To == contracts.FormatAuto || pair.To == "" {
		return fmt.Errorf("%w: choose a target format", ErrUnsupportedPair)
	}
	if pair.To == contracts.FormatHEIC {
		return fmt.Errorf("%w: %s to HEIC: no HEIC encoder is available", ErrUnsupportedPair, pair.From)
	}
	if pair.From == pair.To && kind != contracts.KindPNGJPG {
		return fmt.Errorf("%w: source and target are both %s", ErrUnsupportedPair, pair.From)
	}
	for _, t := range Targets(kind, pair.From) {
		if t == pair.To && sourceAllowed(kind, pair.From) {
			return nil
		}
	}
	return fmt.Errorf("%w: %s to %s is not offered by the %s converter", ErrUnsupportedPair, pair.From, pair.To, kind)
}

func sourceAllowed(kind contracts.Kind, from contracts.Format) bool {
	p, err := files_manager.PolicyFor(kind, 0)
	if err != nil {
		return false
	}
	for _, f := range p.Allowed {
		if f == from {
			return true
		}
	}
	return false
}
