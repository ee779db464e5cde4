package pdf_render

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/png"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"formatconv/contracts"
)

const PopplerName = "pdftoppm"

// executor abstracts command execution for testing.
type executor interface {
	LookPath(file string) (string, error)
	Run(ctx context.Context, name string, args ...string) ([]byte, error)
}

type osExecutor struct{}

func (osExecutor) LookPath(file string) (string, error) {
	return exec.LookPath(file)
}

func (osExecutor) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).CombinedOutput()
}

// Poppler renders pages with poppler's pdftoppm, falling back to pdftocairo.
type Poppler struct {
	exec executor
	bin  string
}

// NewPoppler searches PATH for a poppler renderer.
func NewPoppler(ctx context.Context) (*Poppler, error) {
	return newPoppler(osExecutor{})
}

func newPoppler(ex executor) (*Poppler, error) {
	for _, bin := range []string{"pdftoppm", "pdftocairo"} {
		if _, err := ex.LookPath(bin); err == nil {
			return &Poppler{exec: ex, bin: bin}, nil
		}
	}
	return nil, fmt.Errorf("%w: no PDF renderer available, install poppler-utils", contracts.ErrDependency)
}

func (p *Poppler) Name() string { return p.bin }

func (p *Poppler) RenderPages(ctx context.Context, pdf []byte, dpi float64, fn PageFunc) error {
	tempDir, err := os.MkdirTemp("", "formatconv-pages-")
	if err != nil {
		return fmt.Errorf("failed to create temp directory: %w", err)
	}
	defer os.RemoveAll(tempDir)

	src := filepath.Join(tempDir, "input.pdf")
	if err := os.WriteFile(src, pdf, 0o600); err != nil {
		return fmt.Errorf("failed to write pdf: %w", err)
	}

	prefix := filepath.Join(tempDir, "page")
	out, err := p.exec.Run(ctx, p.bin, "-png", "-r", strconv.Itoa(int(dpi)), src, prefix)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("%s failed: %w\nOutput: %s", p.bin, err, strings.TrimSpace(string(out)))
	}

	matches, err := filepath.Glob(prefix + "*.png")
	if err != nil {
		return fmt.Errorf("failed to glob pages: %w", err)
	}
	if len(matches) == 0 {
		return fmt.Errorf("%w: %s produced no pages", contracts.ErrDecode, p.bin)
	}
	sort.Slice(matches, func(i, j int) bool {
		return pageNumber(matches[i]) < pageNumber(matches[j])
	})

	for i, path := range matches {
		if err := ctx.Err(); err != nil {
			return err
		}
		img, err := loadPNG(path)
		if err != nil {
			return fmt.Errorf("page %d: %w", i+1, err)
		}
		if err := fn(i, len(matches), img); err != nil {
			return err
		}
	}
	return nil
}

// pageNumber extracts N from ".../page-N.png"; pdftoppm zero-pads N to the
// width of the page count.
func pageNumber(path string) int {
	base := strings.TrimSuffix(filepath.Base(path), ".png")
	idx := strings.LastIndexAny(base, "-")
	if idx < 0 {
		return 0
	}
	n, _ := strconv.Atoi(base[idx+1:])
	return n
}

func loadPNG(path string) (image.Image, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	img, err := png.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", contracts.ErrDecode, err)
	}
	return img, nil
}
