package files_manager

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"formatconv/contracts"
	"formatconv/feedback"

	"github.com/gabriel-vasile/mimetype"
)

const DefaultMaxSize = 20 * 1024 * 1024

// Policy is what one converter kind accepts.
type Policy struct {
	Kind    contracts.Kind     `json:"kind"`
	Allowed []contracts.Format `json:"allowed"`
	MaxSize int64              `json:"max_size"`
}

// PolicyFor returns the upload policy of a converter kind. maxSize replaces
// the default ceiling for every kind that has one; zero keeps the default.
func PolicyFor(kind contracts.Kind, maxSize int64) (Policy, error) {
	if maxSize <= 0 {
		maxSize = DefaultMaxSize
	}
	p := Policy{Kind: kind, MaxSize: maxSize}
	switch kind {
	case contracts.KindSVG:
		p.Allowed = []contracts.Format{contracts.FormatSVG}
		p.MaxSize = 0
	case contracts.KindPDF:
		p.Allowed = []contracts.Format{contracts.FormatPNG, contracts.FormatJPG, contracts.FormatWebP, contracts.FormatPDF}
	case contracts.KindPNGJPG:
		p.Allowed = []contracts.Format{contracts.FormatPNG, contracts.FormatJPG}
	case contracts.KindHEIC:
		p.Allowed = []contracts.Format{contracts.FormatHEIC, contracts.FormatJPG, contracts.FormatPNG}
	case contracts.KindWebP:
		p.Allowed = []contracts.Format{contracts.FormatWebP, contracts.FormatJPG, contracts.FormatPNG}
	default:
		return Policy{}, fmt.Errorf("%w: unknown converter kind %q", contracts.ErrValidation, kind)
	}
	return p, nil
}

func (p Policy) allows(f contracts.Format) bool {
	for _, a := range p.Allowed {
		if a == f {
			return true
		}
	}
	return false
}

// Rejection explains why one file was left out of the working set.
type Rejection struct {
	Name   string `json:"name"`
	Reason string `json:"reason"`
}

// Accept splits files into those the policy allows and those it rejects.
// Order is preserved.
func Accept(p Policy, files []contracts.File) ([]contracts.File, []Rejection) {
	accepted := make([]contracts.File, 0, len(files))
	var rejected []Rejection
	for _, f := range files {
		if p.MaxSize > 0 && f.Size > p.MaxSize {
			rejected = append(rejected, Rejection{
				Name:   f.Name,
				Reason: fmt.Sprintf("%s exceeds the %s limit", feedback.HumanSize(f.Size), feedback.HumanSize(p.MaxSize)),
			})
			continue
		}
		format, ok := Detect(f)
		if !ok || !p.allows(format) {
			rejected = append(rejected, Rejection{Name: f.Name, Reason: "unsupported file type"})
			continue
		}
		accepted = append(accepted, f)
	}
	return accepted, rejected
}

// Detect returns the format of f from, in order, its declared MIME type,
// its sniffed content and its extension.
func Detect(f contracts.File) (contracts.Format, bool) {
	if f.MIME != "" && f.MIME != "application/octet-stream" {
		if format, err := contracts.ParseFormat(f.MIME); err == nil && format != contracts.FormatAuto {
			return format, true
		}
	}
	if format, ok := Sniff(f.Data); ok {
		return format, true
	}
	return contracts.FormatFromName(f.Name)
}

// Sniff infers a format from file content alone.
func Sniff(data []byte) (contracts.Format, bool) {
	if len(data) == 0 {
		return "", false
	}
	m := mimetype.Detect(data)
	for ; m != nil; m = m.Parent() {
		if format, err := contracts.ParseFormat(m.String()); err == nil && format != contracts.FormatAuto {
			return format, true
		}
	}
	return "", false
}

// GetInputPaths lists the files directly inside dir that the policy may
// accept by extension. AppleDouble "._" files are skipped.
func GetInputPaths(dir string, p Policy) ([]string, int64, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, 0, err
	}
	paths := make([]string, 0, len(entries))
	var size int64 = 0
	for _, entry := range entries {
		if entry.IsDir() || strings.HasPrefix(entry.Name(), "._") {
			continue
		}
		format, ok := contracts.FormatFromName(entry.Name())
		if !ok || !p.allows(format) {
			continue
		}
		paths = append(paths, filepath.Join(dir, entry.Name()))
		info, err := entry.Info()
		if err == nil {
			size += info.Size()
		}
	}
	return paths, size, nil
}

// ReadFile loads one file from disk.
func ReadFile(path string) (contracts.File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return contracts.File{}, err
	}
	format, _ := contracts.FormatFromName(path)
	return contracts.NewFile(filepath.Base(path), data, format.MIME()), nil
}
