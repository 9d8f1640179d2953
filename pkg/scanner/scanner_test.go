package scanner

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, root, rel string) {
	t.Helper()
	path := filepath.Join(root, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))
}

func TestScanFiltersAndSorts(t *testing.T) {
	root := t.TempDir()

	writeFile(t, root, "b.jpg")
	writeFile(t, root, "a.png")
	writeFile(t, root, "sub/c.webp")
	writeFile(t, root, "sub/deep/d.GIF")
	writeFile(t, root, "notes.txt")
	writeFile(t, root, "archive.zip")

	files, err := Scan(root)
	require.NoError(t, err)

	var rels []string
	for _, f := range files {
		rels = append(rels, f.RelPath)
	}
	assert.Equal(t, []string{"a.png", "b.jpg", "sub/c.webp", "sub/deep/d.GIF"}, rels)

	for _, f := range files {
		assert.FileExists(t, f.Path)
		assert.NotContains(t, f.RelPath, "\\")
	}
}

func TestScanEmptyDirectory(t *testing.T) {
	files, err := Scan(t.TempDir())
	require.NoError(t, err)
	assert.Empty(t, files)
}

func TestScanMissingRoot(t *testing.T) {
	_, err := Scan(filepath.Join(t.TempDir(), "does-not-exist"))
	assert.Error(t, err)
}

func TestScanRootIsFile(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "a.png")

	_, err := Scan(filepath.Join(root, "a.png"))
	assert.Error(t, err)
}

func TestIsSupported(t *testing.T) {
	tests := []struct {
		path string
		want bool
	}{
		{"photo.jpg", true},
		{"photo.JPEG", true},
		{"photo.png", true},
		{"photo.webp", true},
		{"photo.gif", true},
		{"photo.bmp", true},
		{"photo.tiff", true},
		{"photo.tif", true},
		{"notes.txt", false},
		{"photo.jpg.bak", false},
		{"noextension", false},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			assert.Equal(t, tt.want, IsSupported(tt.path))
		})
	}
}
