package main

import (
	"context"
	"image"
	"image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"formatconv/contracts"
	"formatconv/converter"
	"formatconv/feedback"
	"formatconv/files_manager"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writePNG(t *testing.T, path string) {
	t.Helper()
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()
	require.NoError(t, png.Encode(f, image.NewRGBA(image.Rect(0, 0, 4, 3))))
}

func TestCollectBatches(t *testing.T) {
	root := t.TempDir()
	a := filepath.Join(root, "scans-a")
	b := filepath.Join(root, "scans-b")
	require.NoError(t, os.MkdirAll(a, 0o755))
	require.NoError(t, os.MkdirAll(b, 0o755))
	writePNG(t, filepath.Join(a, "1.png"))
	writePNG(t, filepath.Join(a, "._1.png"))
	require.NoError(t, os.WriteFile(filepath.Join(a, "notes.txt"), []byte("x"), 0o644))
	loose := filepath.Join(root, "loose.png")
	writePNG(t, loose)

	policy, err := files_manager.PolicyFor(contracts.KindPNGJPG, 0)
	require.NoError(t, err)

	batches, err := collectBatches([]string{a, b, loose}, policy, "out")
	require.NoError(t, err)
	require.Len(t, batches, 2, "empty directories are skipped")
	assert.Equal(t, []string{loose}, batches[0].paths)
	assert.Equal(t, "out", batches[0].out)
	assert.Equal(t, []string{filepath.Join(a, "1.png")}, batches[1].paths)
	assert.Equal(t, filepath.Join("out", "scans-a"), batches[1].out)

	batches, err = collectBatches([]string{a}, policy, "out")
	require.NoError(t, err)
	require.Len(t, batches, 1)
	assert.Equal(t, "out", batches[0].out)

	_, err = collectBatches([]string{filepath.Join(root, "missing")}, policy, "out")
	assert.Error(t, err)
}

func TestConvertBatchWritesResults(t *testing.T) {
	in := t.TempDir()
	out := filepath.Join(t.TempDir(), "results")
	writePNG(t, filepath.Join(in, "a.png"))
	writePNG(t, filepath.Join(in, "b.png"))

	b := batch{name: in, paths: []string{filepath.Join(in, "a.png"), filepath.Join(in, "b.png")}, out: out}
	err := convertBatch(context.Background(), converter.NewRegistry(converter.Deps{}), contracts.KindPNGJPG, 0, b,
		contracts.InputFlags{To: "jpg", Quality: "70"}, feedback.Discard{})
	require.NoError(t, err)

	for _, name := range []string{"a.jpg", "b.jpg"} {
		f, err := os.Open(filepath.Join(out, name))
		require.NoError(t, err)
		img, err := jpeg.Decode(f)
		f.Close()
		require.NoError(t, err)
		assert.Equal(t, image.Rect(0, 0, 4, 3), img.Bounds())
	}

	err = convertBatch(context.Background(), converter.NewRegistry(converter.Deps{}), contracts.KindPNGJPG, 0, b,
		contracts.InputFlags{To: "heic"}, feedback.Discard{})
	assert.Error(t, err)
}
