package selector

import (
	"testing"

	"formatconv/contracts"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	pngSig  = []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n', 0, 0, 0, 0x0d, 'I', 'H', 'D', 'R'}
	jpegSig = []byte{0xff, 0xd8, 0xff, 0xe0}
	pdfSig  = []byte("%PDF-1.7\n")
)

func file(name string, data []byte) contracts.File {
	return contracts.NewFile(name, data, "")
}

func TestResolveAutoBySniffing(t *testing.T) {
	pair := Resolve(contracts.KindPNGJPG, contracts.Pair{From: contracts.FormatAuto, To: contracts.FormatJPG},
		[]contracts.File{file("renamed.jpg", pngSig)})
	assert.Equal(t, contracts.FormatPNG, pair.From)
	assert.Equal(t, contracts.FormatJPG, pair.To)

	pair = Resolve(contracts.KindPNGJPG, contracts.Pair{From: contracts.FormatAuto, To: contracts.FormatPNG}, nil)
	assert.Equal(t, contracts.FormatAuto, pair.From)

	pair = Resolve(contracts.KindWebP, contracts.Pair{From: contracts.FormatJPG, To: contracts.FormatWebP},
		[]contracts.File{file("a.png", pngSig)})
	assert.Equal(t, contracts.FormatJPG, pair.From, "explicit source is kept")
}

func TestSwapReResolvesAuto(t *testing.T) {
	files := []contracts.File{file("a.jpg", jpegSig)}
	pair := Swap(contracts.KindPNGJPG, contracts.Pair{From: contracts.FormatPNG, To: contracts.FormatAuto}, files)
	assert.Equal(t, contracts.Pair{From: contracts.FormatJPG, To: contracts.FormatPNG}, pair)

	pair = Swap(contracts.KindHEIC, contracts.Pair{From: contracts.FormatHEIC, To: contracts.FormatJPG}, files)
	assert.Equal(t, contracts.Pair{From: contracts.FormatJPG, To: contracts.FormatHEIC}, pair)
	assert.ErrorIs(t, Check(contracts.KindHEIC, pair), ErrUnsupportedPair)
}

func TestInferMode(t *testing.T) {
	cases := []struct {
		name  string
		files []contracts.File
		want  contracts.Mode
		err   error
	}{
		{"images", []contracts.File{file("a.png", pngSig), file("b.jpg", jpegSig)}, contracts.ModeImagesToPDF, nil},
		{"pdfs", []contracts.File{file("a.pdf", pdfSig), file("b.pdf", pdfSig)}, contracts.ModePDFToImages, nil},
		{"mixed", []contracts.File{file("a.png", pngSig), file("b.pdf", pdfSig)}, contracts.ModeNone, ErrAmbiguousSelection},
		{"empty", nil, contracts.ModeNone, nil},
		{"unknown", []contracts.File{file("notes.txt", []byte("hello"))}, contracts.ModeNone, contracts.ErrValidation},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			mode, err := InferMode(tc.files)
			if tc.err != nil {
				assert.ErrorIs(t, err, tc.err)
			} else {
				require.NoError(t, err)
			}
			assert.Equal(t, tc.want, mode)
		})
	}
	_, err := InferMode([]contracts.File{file("a.png", pngSig), file("b.pdf", pdfSig)})
	assert.ErrorIs(t, err, contracts.ErrValidation)
}

func TestModePair(t *testing.T) {
	p, err := ModePair(contracts.ModeImagesToPDF, []contracts.File{file("a.jpg", jpegSig)}, "")
	require.NoError(t, err)
	assert.Equal(t, contracts.Pair{From: contracts.FormatJPG, To: contracts.FormatPDF}, p)

	p, err = ModePair(contracts.ModePDFToImages, nil, "")
	require.NoError(t, err)
	assert.Equal(t, contracts.Pair{From: contracts.FormatPDF, To: contracts.FormatPNG}, p)

	p, err = ModePair(contracts.ModePDFToImages, nil, contracts.FormatWebP)
	require.NoError(t, err)
	assert.Equal(t, contracts.FormatWebP, p.To)

	_, err = ModePair(contracts.ModeNone, nil, "")
	assert.ErrorIs(t, err, contracts.ErrValidation)
}

func TestCheck(t *testing.T) {
	ok := []struct {
		kind contracts.Kind
		pair contracts.Pair
	}{
		{contracts.KindSVG, contracts.Pair{From: contracts.FormatSVG, To: contracts.FormatWebP}},
		{contracts.KindPNGJPG, contracts.Pair{From: contracts.FormatPNG, To: contracts.FormatJPG}},
		{contracts.KindPNGJPG, contracts.Pair{From: contracts.FormatJPG, To: contracts.FormatJPG}},
		{contracts.KindHEIC, contracts.Pair{From: contracts.FormatHEIC, To: contracts.FormatPNG}},
		{contracts.KindWebP, contracts.Pair{From: contracts.FormatPNG, To: contracts.FormatWebP}},
		{contracts.KindWebP, contracts.Pair{From: contracts.FormatWebP, To: contracts.FormatJPG}},
		{contracts.KindPDF, contracts.Pair{From: contracts.FormatPDF, To: contracts.FormatJPG}},
		{contracts.KindPDF, contracts.Pair{From: contracts.FormatWebP, To: contracts.FormatPDF}},
	}
	for _, tc := range ok {
		assert.NoError(t, Check(tc.kind, tc.pair), "%s %s", tc.kind, tc.pair)
	}

	bad := []struct {
		kind contracts.Kind
		pair contracts.Pair
		msg  string
	}{
		{contracts.KindHEIC, contracts.Pair{From: contracts.FormatJPG, To: contracts.FormatHEIC}, "no HEIC encoder"},
		{contracts.KindHEIC, contracts.Pair{From: contracts.FormatPNG, To: contracts.FormatHEIC}, "no HEIC encoder"},
		{contracts.KindPNGJPG, contracts.Pair{From: contracts.FormatAuto, To: contracts.FormatJPG}, "could not be detected"},
		{contracts.KindPNGJPG, contracts.Pair{From: contracts.FormatPNG, To: contracts.FormatWebP}, "not offered"},
		{contracts.KindWebP, contracts.Pair{From: contracts.FormatJPG, To: contracts.FormatPNG}, "not offered"},
		{contracts.KindWebP, contracts.Pair{From: contracts.FormatWebP, To: contracts.FormatWebP}, "both"},
		{contracts.KindSVG, contracts.Pair{From: contracts.FormatSVG, To: contracts.FormatPDF}, "not offered"},
	}
	for _, tc := range bad {
		err := Check(tc.kind, tc.pair)
		assert.ErrorIs(t, err, ErrUnsupportedPair, "%s %s", tc.kind, tc.pair)
		assert.Contains(t, err.Error(), tc.msg)
	}
}

func TestDefaultPairsAreOffered(t *testing.T) {
	for _, k := range []contracts.Kind{contracts.KindSVG, contracts.KindHEIC, contracts.KindWebP} {
		assert.NoError(t, Check(k, DefaultPair(k)), k)
	}
	assert.True(t, Inferred(contracts.KindPDF))
	assert.False(t, Inferred(contracts.KindWebP))
}
