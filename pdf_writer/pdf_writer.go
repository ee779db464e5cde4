package pdf_writer

import (
	"bytes"
	"fmt"

	"formatconv/contracts"

	"github.com/phpdave11/gofpdf"
)

// Margin is the blank border kept around images on fixed-size pages, in pt.
const Margin = 20.0

// Page sizes in PDF points (1/72 inch).
var pageSizes = map[contracts.PageSize]gofpdf.SizeType{
	contracts.PageA4:     {Wd: 595.28, Ht: 841.89},
	contracts.PageLetter: {Wd: 612, Ht: 792},
}

// PageDims returns the fixed page size for size. Fit-image pages have no
// fixed size and report ok=false.
func PageDims(size contracts.PageSize) (w, h float64, ok bool) {
	s, ok := pageSizes[size]
	return s.Wd, s.Ht, ok
}

// Composer assembles one image per page into a PDF document.
type Composer struct {
	pdf   *gofpdf.Fpdf
	size  contracts.PageSize
	pages int
}

func NewComposer(size contracts.PageSize) (*Composer, error) {
	if _, ok := pageSizes[size]; !ok && size != contracts.PageFit {
		return nil, fmt.Errorf("%w: unknown page size %q", contracts.ErrValidation, size)
	}
	init := &gofpdf.InitType{UnitStr: "pt", OrientationStr: "P"}
	if s, ok := pageSizes[size]; ok {
		init.Size = s
	}
	pdf := gofpdf.NewCustom(init)
	pdf.SetMargins(0, 0, 0)
	pdf.SetAutoPageBreak(false, 0)
	return &Composer{pdf: pdf, size: size}, nil
}

// AddImage appends a page holding the JPEG-encoded image of w×h pixels.
// Fit-image pages take the image size at 1 px = 1 pt. Fixed pages place
// the image inside Margin, scaled down if needed but never up, centered.
func (c *Composer) AddImage(name string, jpegData []byte, w, h int) error {
	if w <= 0 || h <= 0 {
		return fmt.Errorf("%w: image %s has no pixels", contracts.ErrDecode, name)
	}
	imgW, imgH := float64(w), float64(h)

	var x, y, drawW, drawH float64
	if s, ok := pageSizes[c.size]; ok {
		c.pdf.AddPageFormat("P", s)
		x, y, drawW, drawH = Fit(s.Wd, s.Ht, imgW, imgH, Margin)
	} else {
		orientation := "P"
		size := gofpdf.SizeType{Wd: imgW, Ht: imgH}
		if imgW > imgH {
			orientation = "L"
			size = gofpdf.SizeType{Wd: imgH, Ht: imgW}
		}
		c.pdf.AddPageFormat(orientation, size)
		drawW, drawH = imgW, imgH
	}

	imageID := fmt.Sprintf("img_%d", c.pages)
	opts := gofpdf.ImageOptions{ImageType: "JPG", ReadDpi: false}
	c.pdf.RegisterImageOptionsReader(imageID, opts, bytes.NewReader(jpegData))
	c.pdf.ImageOptions(imageID, x, y, drawW, drawH, false, opts, 0, "")
	if err := c.pdf.Error(); err != nil {
		return fmt.Errorf("embed %s: %w", name, err)
	}
	c.pages++
	return nil
}

func (c *Composer) PageCount() int {
	return c.pages
}

// Bytes finalizes the document. The composer cannot be used afterwards.
func (c *Composer) Bytes() ([]byte, error) {
	if c.pages == 0 {
		return nil, fmt.Errorf("%w: no pages to write", contracts.ErrValidation)
	}
	var buf bytes.Buffer
	if err := c.pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("error saving PDF: %w", err)
	}
	return buf.Bytes(), nil
}

// Fit places an imgW×imgH image on a pageW×pageH page inside margin,
// preserving aspect ratio and never enlarging it.
func Fit(pageW, pageH, imgW, imgH, margin float64) (x, y, w, h float64) {
	availW := pageW - 2*margin
	availH := pageH - 2*margin
	scale := 1.0
	if availW > 0 && imgW > availW {
		scale = availW / imgW
	}
	if availH > 0 && imgH*scale > availH {
		scale = availH / imgH
	}
	w, h = imgW*scale, imgH*scale
	return (pageW - w) / 2, (pageH - h) / 2, w, h
}
