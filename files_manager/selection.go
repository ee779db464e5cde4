package files_manager

import (
	"bytes"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"mime/multipart"
	"strings"
	"sync"

	"formatconv/contracts"
	"formatconv/feedback"
	"formatconv/utils"

	_ "golang.org/x/image/webp"
)

// SummaryNames is how many file names a summary lists before "+N more".
const SummaryNames = 10

// ErrNothingAccepted is returned by Replace when every offered file was
// rejected. The previous selection is kept.
var ErrNothingAccepted = fmt.Errorf("%w: no acceptable files were selected", contracts.ErrValidation)

// Selection is the ordered working set of one session. It only changes by
// wholesale replacement or reset.
type Selection struct {
	mu     sync.RWMutex
	policy Policy
	files  []contracts.File
}

func NewSelection(p Policy) *Selection {
	return &Selection{policy: p}
}

func (s *Selection) Policy() Policy {
	return s.policy
}

// Replace swaps the working set for the accepted subset of files. When no
// file is accepted, or a check refuses the accepted subset, the working set
// is left as it was.
func (s *Selection) Replace(files []contracts.File, checks ...func([]contracts.File) error) ([]Rejection, error) {
	accepted, rejected := Accept(s.policy, files)
	if len(accepted) == 0 {
		return rejected, ErrNothingAccepted
	}
	for _, check := range checks {
		if err := check(accepted); err != nil {
			return rejected, err
		}
	}
	s.mu.Lock()
	s.files = accepted
	s.mu.Unlock()
	return rejected, nil
}

func (s *Selection) Reset() {
	s.mu.Lock()
	s.files = nil
	s.mu.Unlock()
}

// Files returns a copy of the working set.
func (s *Selection) Files() []contracts.File {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]contracts.File(nil), s.files...)
}

func (s *Selection) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.files)
}

type FileInfo struct {
	Name   string           `json:"name"`
	Size   int64            `json:"size"`
	Format contracts.Format `json:"format"`
	Width  int              `json:"width,omitempty"`
	Height int              `json:"height,omitempty"`
	DPI    float64          `json:"dpi,omitempty"`
}

type Summary struct {
	Count      int        `json:"count"`
	TotalBytes int64      `json:"total_bytes"`
	TotalSize  string     `json:"total_size"`
	Names      []string   `json:"names"`
	More       int        `json:"more"`
	Files      []FileInfo `json:"files"`
}

// NameList renders the names the way the file summary shows them.
func (s Summary) NameList() string {
	list := strings.Join(s.Names, ", ")
	if s.More > 0 {
		list += fmt.Sprintf(" +%d more", s.More)
	}
	return list
}

func (s *Selection) Summary() Summary {
	return Summarize(s.Files())
}

func Summarize(files []contracts.File) Summary {
	sum := Summary{Count: len(files), Names: []string{}, Files: make([]FileInfo, 0, len(files))}
	for i, f := range files {
		sum.TotalBytes += f.Size
		if i < SummaryNames {
			sum.Names = append(sum.Names, f.Name)
		}
		sum.Files = append(sum.Files, describe(f))
	}
	sum.More = max(len(files)-SummaryNames, 0)
	sum.TotalSize = feedback.HumanSize(sum.TotalBytes)
	return sum
}

// describe reads only headers, never pixels.
func describe(f contracts.File) FileInfo {
	info := FileInfo{Name: f.Name, Size: f.Size}
	format, ok := Detect(f)
	if !ok {
		return info
	}
	info.Format = format
	switch format {
	case contracts.FormatPNG, contracts.FormatJPG, contracts.FormatWebP:
		if cfg, _, err := image.DecodeConfig(bytes.NewReader(f.Data)); err == nil {
			info.Width, info.Height = cfg.Width, cfg.Height
		}
		if format != contracts.FormatWebP {
			info.DPI, _ = utils.ReadDPI(f.Data)
		}
	}
	return info
}

// ReadMultipart loads uploaded parts in the order they were sent.
func ReadMultipart(headers []*multipart.FileHeader) ([]contracts.File, error) {
	files := make([]contracts.File, 0, len(headers))
	for _, h := range headers {
		f, err := h.Open()
		if err != nil {
			return nil, fmt.Errorf("open upload %s: %w", h.Filename, err)
		}
		data, err := io.ReadAll(f)
		f.Close()
		if err != nil {
			return nil, fmt.Errorf("read upload %s: %w", h.Filename, err)
		}
		files = append(files, contracts.NewFile(h.Filename, data, h.Header.Get("Content-Type")))
	}
	return files, nil
}
