// Package fitz renders PDF pages with MuPDF through go-fitz.
package fitz

import (
	"context"
	"fmt"

	"formatconv/contracts"
	"formatconv/pdf_render"

	gofitz "github.com/gen2brain/go-fitz"
)

const Name = "fitz"

type Renderer struct{}

func New(ctx context.Context) (pdf_render.PageRenderer, error) {
	return &Renderer{}, nil
}

func (r *Renderer) Name() string { return Name }

func (r *Renderer) RenderPages(ctx context.Context, pdf []byte, dpi float64, fn pdf_render.PageFunc) error {
	doc, err := gofitz.NewFromMemory(pdf)
	if err != nil {
		return fmt.Errorf("%w: %v", contracts.ErrDecode, err)
	}
	defer doc.Close()

	num := doc.NumPage()
	if num == 0 {
		return fmt.Errorf("%w: document has no pages", contracts.ErrDecode)
	}

	for i := 0; i < num; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		img, err := doc.ImageDPI(i, dpi)
		if err != nil {
			return fmt.Errorf("render page %d: %w", i+1, err)
		}
		if err := fn(i, num, img); err != nil {
			return err
		}
	}
	return nil
}
