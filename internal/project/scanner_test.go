package project

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bizmatters/cad-copilot/internal/models"
)

func writeFile(t *testing.T, root, rel, content string) string {
	t.Helper()
	path := filepath.Join(root, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestScanner_Scan(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "bracket.STEP", "ISO-10303-21;")
	writeFile(t, root, "parts/housing.stl", "solid")
	writeFile(t, root, "notes.md", "# notes")
	writeFile(t, root, "docs/drawing.pdf", "%PDF")
	writeFile(t, root, "renders/front.PNG", "png")
	writeFile(t, root, "tools/mill.json", `{"tools": []}`)
	writeFile(t, root, "ignored.exe", "bin")

	files, err := NewScanner(root, 100).Scan()
	require.NoError(t, err)

	assert.Equal(t, []string{"bracket.STEP", "parts/housing.stl"}, files.Geometry)
	assert.Equal(t, []string{"docs/drawing.pdf", "notes.md"}, files.Documentation)
	assert.Equal(t, []string{"renders/front.PNG"}, files.Images)
	assert.Equal(t, []string{"tools/mill.json"}, files.ToolLibraries)
}

func TestScanner_HonorsGitignore(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, ".gitignore", "build/\n*.obj\n")
	writeFile(t, root, "bracket.step", "ISO-10303-21;")
	writeFile(t, root, "build/export.step", "ISO-10303-21;")
	writeFile(t, root, "scan.obj", "v 0 0 0")

	files, err := NewScanner(root, 100).Scan()
	require.NoError(t, err)

	assert.Equal(t, []string{"bracket.step"}, files.Geometry)
}

func TestScanner_MissingRoot(t *testing.T) {
	files, err := NewScanner(filepath.Join(t.TempDir(), "absent"), 100).Scan()
	require.NoError(t, err)

	assert.NotNil(t, files.Geometry)
	assert.Empty(t, files.Geometry)
	assert.Empty(t, files.Documentation)
	assert.Empty(t, files.Images)
	assert.Empty(t, files.ToolLibraries)
}

func TestScanner_ReadFile(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "readme.txt", "one\ntwo\nthree\n")
	s := NewScanner(root, 100)

	t.Run("under limit", func(t *testing.T) {
		got, err := s.ReadFile("readme.txt", 10)
		require.NoError(t, err)
		assert.Equal(t, "one\ntwo\nthree\n", got)
	})

	t.Run("exactly at limit", func(t *testing.T) {
		got, err := s.ReadFile("readme.txt", 3)
		require.NoError(t, err)
		assert.Equal(t, "one\ntwo\nthree\n", got)
	})

	t.Run("truncated", func(t *testing.T) {
		got, err := s.ReadFile("readme.txt", 2)
		require.NoError(t, err)
		assert.Equal(t, "one\ntwo\n"+TruncationMarker, got)
	})

	t.Run("escaping root is rejected", func(t *testing.T) {
		_, err := s.ReadFile("../outside.txt", 2)
		assert.Error(t, err)
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := s.ReadFile("nope.txt", 2)
		assert.Error(t, err)
	})
}

func TestScanner_ReadFileSizeLimit(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "big.txt", strings.Repeat("x", 2*1024*1024))

	_, err := NewScanner(root, 1).ReadFile("big.txt", 10)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "exceeds 1 MB")
}

func TestLoadToolLibrary(t *testing.T) {
	root := t.TempDir()

	tests := []struct {
		name    string
		content string
		want    []models.Tool
	}{
		{
			name:    "valid library",
			content: `{"tools": [{"name": "6mm flat", "type": "flat end mill", "diameter": 6, "flutes": 3, "material": "carbide"}]}`,
			want:    []models.Tool{{Name: "6mm flat", Type: "flat end mill", Diameter: 6, Flutes: 3, Material: "carbide"}},
		},
		{name: "missing tools key", content: `{"version": 2}`, want: []models.Tool{}},
		{name: "malformed", content: `{"tools": [`, want: []models.Tool{}},
		{name: "not an object", content: `[1, 2]`, want: []models.Tool{}},
	}

	for i, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeFile(t, root, filepath.Join("lib", string(rune('a'+i))+".json"), tt.content)
			assert.Equal(t, tt.want, LoadToolLibrary(path))
		})
	}

	t.Run("missing file", func(t *testing.T) {
		assert.Equal(t, []models.Tool{}, LoadToolLibrary(filepath.Join(root, "absent.json")))
	})

	t.Run("through scanner", func(t *testing.T) {
		writeFile(t, root, "tools.json", `{"tools": [{"name": "drill"}]}`)
		s := NewScanner(root, 100)
		assert.Equal(t, []models.Tool{{Name: "drill"}}, s.ToolLibrary("tools.json"))
		assert.Equal(t, []models.Tool{}, s.ToolLibrary("../etc/passwd"))
	})
}

func TestGeometryMetadata(t *testing.T) {
	root := t.TempDir()
	path := writeFile(t, root, "Bracket.STL", strings.Repeat("a", 512*1024))

	meta, err := GeometryMetadata(path)
	require.NoError(t, err)
	assert.Equal(t, "Bracket.STL", meta.FileName)
	assert.Equal(t, ".stl", meta.Extension)
	assert.InDelta(t, 0.5, meta.FileSizeMB, 0.0001)

	_, err = GeometryMetadata(filepath.Join(root, "absent.stl"))
	assert.Error(t, err)
}
