package contracts

import (
	"errors"
	"image/color"
	"strconv"
	"testing"
)

func TestParseOptionsDefaults(t *testing.T) {
	opts, err := ParseOptions(InputFlags{To: "jpeg"})
	if err != nil {
		t.Fatalf("ParseOptions failed: %v", err)
	}
	if opts.Target != FormatJPG {
		t.Errorf("target = %q, want jpg", opts.Target)
	}
	if opts.QualityPercent != DefaultQuality {
		t.Errorf("quality = %d, want %d", opts.QualityPercent, DefaultQuality)
	}
	if opts.Scale != 1 || opts.PageSize != PageA4 || !opts.Transparent {
		t.Errorf("unexpected defaults: %+v", opts)
	}
	if opts.Background != (color.RGBA{255, 255, 255, 255}) {
		t.Errorf("background = %v, want white", opts.Background)
	}
}

func TestParseOptionsQualityFraction(t *testing.T) {
	for q := 0; q <= 100; q++ {
		opts, err := ParseOptions(InputFlags{Quality: strconv.Itoa(q)})
		if err != nil {
			t.Fatalf("quality %d rejected: %v", q, err)
		}
		if want := float64(q) / 100; opts.Quality != want {
			t.Fatalf("quality %d mapped to %v, want %v", q, opts.Quality, want)
		}
	}
}

func TestParseOptionsRejectsOutOfRange(t *testing.T) {
	cases := []struct {
		name string
		in   InputFlags
	}{
		{"quality above 100", InputFlags{Quality: "101"}},
		{"negative quality", InputFlags{Quality: "-1"}},
		{"quality not a number", InputFlags{Quality: "high"}},
		{"zero scale", InputFlags{Scale: "0"}},
		{"huge scale", InputFlags{Scale: "50"}},
		{"unknown page size", InputFlags{PageSize: "tabloid"}},
		{"bad background", InputFlags{Background: "#12"}},
		{"bad transparent", InputFlags{Transparent: "maybe"}},
		{"unknown target", InputFlags{To: "bmp"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ParseOptions(tc.in)
			if !errors.Is(err, ErrValidation) {
				t.Fatalf("err = %v, want ErrValidation", err)
			}
		})
	}
}

func TestParseOptionsValues(t *testing.T) {
	opts, err := ParseOptions(InputFlags{
		Scale:       "2x",
		PageSize:    "fit-image",
		Background:  "#0f0",
		Transparent: "off",
	})
	if err != nil {
		t.Fatalf("ParseOptions failed: %v", err)
	}
	if opts.Scale != 2 {
		t.Errorf("scale = %v, want 2", opts.Scale)
	}
	if opts.PageSize != PageFit {
		t.Errorf("page size = %q, want fit", opts.PageSize)
	}
	if opts.Background != (color.RGBA{0, 255, 0, 255}) {
		t.Errorf("background = %v", opts.Background)
	}
	if opts.Transparent {
		t.Error("transparent should be false")
	}
}

func TestParseFormat(t *testing.T) {
	cases := map[string]Format{
		"JPEG":                   FormatJPG,
		".png":                   FormatPNG,
		"image/heif":             FormatHEIC,
		"image/svg+xml":          FormatSVG,
		"application/pdf; v=1.7": FormatPDF,
		"auto":                   FormatAuto,
	}
	for in, want := range cases {
		got, err := ParseFormat(in)
		if err != nil || got != want {
			t.Errorf("ParseFormat(%q) = %q, %v; want %q", in, got, err, want)
		}
	}
	if _, ok := FormatFromName("archive.tar"); ok {
		t.Error("tar should not be a known format")
	}
	if f, ok := FormatFromName("IMG_0001.HEIC"); !ok || f != FormatHEIC {
		t.Errorf("FormatFromName(HEIC) = %q, %v", f, ok)
	}
}
