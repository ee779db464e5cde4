package converter

import (
	"bytes"
	"context"
	"encoding/xml"
	"fmt"
	"image"
	"io"
	"math"
	"regexp"
	"strconv"
	"strings"

	"formatconv/contracts"

	"github.com/srwiley/oksvg"
	"github.com/srwiley/rasterx"
	"golang.org/x/net/html/charset"
)

const (
	DefaultSVGSize = 512
	MaxSVGSize     = 20000
)

const (
	nsSVG   = "http://www.w3.org/2000/svg"
	nsXLink = "http://www.w3.org/1999/xlink"
)

var lengthPattern = regexp.MustCompile(`^\s*([+-]?(?:\d+\.?\d*|\.\d+)(?:[eE][+-]?\d+)?)\s*([a-zA-Z%]*)\s*$`)

// svgAdapter rasterizes SVG documents.
type svgAdapter struct {
	codecs CodecFinder
}

func (a *svgAdapter) Name() string { return "svg" }

func (a *svgAdapter) Convert(ctx context.Context, files []contracts.File, opts contracts.Options, progress contracts.ProgressFunc) ([]contracts.Payload, error) {
	codec, err := encoderFor(ctx, a.codecs, opts.Target)
	if err != nil {
		return nil, err
	}

	out := make([]contracts.Payload, 0, len(files))
	for i, f := range files {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		img, err := RasterizeSVG(f.Data, opts.Scale)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", f.Name, err)
		}
		canvas := surface(img, opts.Target, opts)
		data, err := encode(ctx, canvas, opts.Target, opts, codec)
		if err != nil {
			return nil, err
		}
		b := canvas.Bounds()
		out = append(out, payload(OutputName(f.BaseName(), opts.Target), opts.Target, data, b.Dx(), b.Dy()))
		report(progress, i+1, len(files))
	}
	return out, nil
}

// RasterizeSVG renders a sanitized copy of data onto a transparent canvas
// of the intrinsic size times scale.
func RasterizeSVG(data []byte, scale float64) (*image.RGBA, error) {
	iw, ih, err := SVGDimensions(data)
	if err != nil {
		return nil, err
	}
	w, h := ScaledCanvas(iw, ih, scale)

	clean, err := SanitizeSVG(data)
	if err != nil {
		return nil, err
	}
	icon, err := oksvg.ReadIconStream(bytes.NewReader(clean), oksvg.WarnErrorMode)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", contracts.ErrDecode, err)
	}
	if icon.ViewBox.W <= 0 || icon.ViewBox.H <= 0 {
		icon.ViewBox.X, icon.ViewBox.Y = 0, 0
		icon.ViewBox.W, icon.ViewBox.H = float64(iw), float64(ih)
	}
	icon.SetTarget(0, 0, float64(w), float64(h))

	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	scanner := rasterx.NewScannerGV(w, h, dst, dst.Bounds())
	icon.Draw(rasterx.NewDasher(w, h, scanner), 1)
	return dst, nil
}

// SVGDimensions returns the intrinsic size of an SVG document: its width
// and height attributes, else its viewBox, else DefaultSVGSize square. Each
// dimension is clamped to [1, MaxSVGSize].
func SVGDimensions(data []byte) (int, int, error) {
	root, err := svgRootAttrs(data)
	if err != nil {
		return 0, 0, err
	}

	w, wok := parseLength(root["width"])
	h, hok := parseLength(root["height"])
	vw, vh, vok := parseViewBox(root["viewBox"])

	switch {
	case wok && hok:
	case vok && wok:
		h = w * vh / vw
	case vok && hok:
		w = h * vw / vh
	case vok:
		w, h = vw, vh
	default:
		w, h = DefaultSVGSize, DefaultSVGSize
	}
	return clampDim(w), clampDim(h), nil
}

// ScaledCanvas multiplies the intrinsic size by scale, keeping the result
// inside [1, MaxSVGSize].
func ScaledCanvas(w, h int, scale float64) (int, int) {
	if scale <= 0 {
		scale = 1
	}
	return clampDim(float64(w) * scale), clampDim(float64(h) * scale)
}

func clampDim(v float64) int {
	r := int(math.Round(v))
	if r < 1 {
		return 1
	}
	if r > MaxSVGSize {
		return MaxSVGSize
	}
	return r
}

func svgRootAttrs(data []byte) (map[string]string, error) {
	dec := newSVGDecoder(data)
	for {
		tok, err := dec.Token()
		if err != nil {
			return nil, fmt.Errorf("%w: no <svg> root element: %v", contracts.ErrDecode, err)
		}
		se, ok := tok.(xml.StartElement)
		if !ok {
			continue
		}
		if se.Name.Local != "svg" {
			return nil, fmt.Errorf("%w: root element is <%s>, not <svg>", contracts.ErrDecode, se.Name.Local)
		}
		attrs := make(map[string]string, len(se.Attr))
		for _, a := range se.Attr {
			if a.Name.Space == "" || a.Name.Space == nsSVG {
				attrs[a.Name.Local] = a.Value
			}
		}
		return attrs, nil
	}
}

// parseLength converts an absolute SVG length to CSS pixels. Relative
// units (%, em) cannot be resolved without a viewport and are ignored.
func parseLength(s string) (float64, bool) {
	m := lengthPattern.FindStringSubmatch(s)
	if m == nil {
		return 0, false
	}
	v, err := strconv.ParseFloat(m[1], 64)
	if err != nil || v <= 0 {
		return 0, false
	}
	switch strings.ToLower(m[2]) {
	case "", "px":
	case "pt":
		v *= 96.0 / 72
	case "pc":
		v *= 16
	case "in":
		v *= 96
	case "cm":
		v *= 96 / 2.54
	case "mm":
		v *= 96 / 25.4
	default:
		return 0, false
	}
	return v, true
}

func parseViewBox(s string) (float64, float64, bool) {
	fields := strings.FieldsFunc(s, func(r rune) bool { return r == ',' || r == ' ' || r == '\t' || r == '\n' || r == '\r' })
	if len(fields) != 4 {
		return 0, 0, false
	}
	w, err1 := strconv.ParseFloat(fields[2], 64)
	h, err2 := strconv.ParseFloat(fields[3], 64)
	if err1 != nil || err2 != nil || w <= 0 || h <= 0 {
		return 0, 0, false
	}
	return w, h, true
}

// SanitizeSVG rewrites data token by token. Script elements and on* event
// handler attributes are dropped, and the root gets the svg and xlink
// namespace declarations it is missing. Text and attribute values pass
// through unchanged.
func SanitizeSVG(data []byte) ([]byte, error) {
	toks, err := svgTokens(data)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	root := false
	xlink := usesXLink(toks)
	for i := 0; i < len(toks); i++ {
		switch t := toks[i].(type) {
		case xml.StartElement:
			if !root {
				t = declareNamespaces(t, xlink)
				root = true
			}
			buf.WriteByte('<')
			buf.WriteString(qualified(t.Name))
			for _, a := range t.Attr {
				buf.WriteByte(' ')
				buf.WriteString(qualified(a.Name))
				buf.WriteString(`="`)
				_ = xml.EscapeText(&buf, []byte(a.Value))
				buf.WriteByte('"')
			}
			if i+1 < len(toks) {
				if end, ok := toks[i+1].(xml.EndElement); ok && end.Name == t.Name {
					buf.WriteString("/>")
					i++
					continue
				}
			}
			buf.WriteByte('>')
		case xml.EndElement:
			buf.WriteString("</")
			buf.WriteString(qualified(t.Name))
			buf.WriteByte('>')
		case xml.CharData:
			_ = xml.EscapeText(&buf, t)
		case xml.Comment:
			buf.WriteString("<!--")
			buf.Write(t)
			buf.WriteString("-->")
		case xml.Directive:
			buf.WriteString("<!")
			buf.Write(t)
			buf.WriteByte('>')
		}
	}
	if !root {
		return nil, fmt.Errorf("%w: no <svg> root element", contracts.ErrDecode)
	}
	return buf.Bytes(), nil
}

// svgTokens reads the raw token stream without script subtrees or handler
// attributes. The XML declaration is dropped since output is always UTF-8.
func svgTokens(data []byte) ([]xml.Token, error) {
	dec := newSVGDecoder(data)
	var toks []xml.Token
	skip := 0
	for {
		tok, err := dec.RawToken()
		if err == io.EOF {
			return toks, nil
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %v", contracts.ErrDecode, err)
		}
		switch t := tok.(type) {
		case xml.StartElement:
			if skip > 0 || strings.EqualFold(t.Name.Local, "script") {
				skip++
				continue
			}
			t.Attr = dropHandlers(t.Attr)
			toks = append(toks, t)
		case xml.EndElement:
			if skip > 0 {
				skip--
				continue
			}
			toks = append(toks, t)
		case xml.ProcInst:
		default:
			if skip == 0 {
				toks = append(toks, xml.CopyToken(t))
			}
		}
	}
}

func dropHandlers(attrs []xml.Attr) []xml.Attr {
	kept := make([]xml.Attr, 0, len(attrs))
	for _, a := range attrs {
		if a.Name.Space == "" && len(a.Name.Local) > 2 && strings.EqualFold(a.Name.Local[:2], "on") {
			continue
		}
		kept = append(kept, a)
	}
	return kept
}

func usesXLink(toks []xml.Token) bool {
	for _, tok := range toks {
		se, ok := tok.(xml.StartElement)
		if !ok {
			continue
		}
		for _, a := range se.Attr {
			if a.Name.Space == "xlink" {
				return true
			}
		}
	}
	return false
}

// declareNamespaces binds the root's own prefix, or the default namespace
// for an unprefixed root, plus xlink when it is used but undeclared.
func declareNamespaces(root xml.StartElement, xlink bool) xml.StartElement {
	want := xml.Name{Local: "xmlns"}
	if root.Name.Space != "" {
		want = xml.Name{Space: "xmlns", Local: root.Name.Space}
	}
	hasSVG, hasXLink := false, false
	for _, a := range root.Attr {
		switch a.Name {
		case want:
			hasSVG = true
		case xml.Name{Space: "xmlns", Local: "xlink"}:
			hasXLink = true
		}
	}

	var extra []xml.Attr
	if !hasSVG {
		extra = append(extra, xml.Attr{Name: want, Value: nsSVG})
	}
	if xlink && !hasXLink {
		extra = append(extra, xml.Attr{Name: xml.Name{Space: "xmlns", Local: "xlink"}, Value: nsXLink})
	}
	root.Attr = append(extra, root.Attr...)
	return root
}

func qualified(n xml.Name) string {
	if n.Space == "" {
		return n.Local
	}
	return n.Space + ":" + n.Local
}

func newSVGDecoder(data []byte) *xml.Decoder {
	dec := xml.NewDecoder(bytes.NewReader(data))
	dec.Strict = false
	dec.Entity = xml.HTMLEntity
	dec.CharsetReader = charset.NewReaderLabel
	return dec
}
