// Package project exposes files from the project folder next to the design:
// geometry, documentation, images and CAM tool libraries.
package project

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	ignore "github.com/sabhiram/go-gitignore"

	"github.com/bizmatters/cad-copilot/internal/models"
)

// TruncationMarker ends a ReadFile result that hit the line limit
const TruncationMarker = "... (file truncated)"

// category patterns, matched case-insensitively against the relative path
var (
	geometryPatterns = []string{"**/*.stl", "**/*.step", "**/*.stp", "**/*.iges", "**/*.igs", "**/*.obj"}
	docPatterns      = []string{"**/*.txt", "**/*.md", "**/*.pdf"}
	imagePatterns    = []string{"**/*.png", "**/*.jpg", "**/*.jpeg", "**/*.bmp"}
	toolPatterns     = []string{"**/*.json"}
)

// Scanner reads a project folder. All paths it returns are relative to Root.
type Scanner struct {
	Root          string
	MaxFileSizeMB int
}

// NewScanner creates a scanner rooted at root
func NewScanner(root string, maxFileSizeMB int) *Scanner {
	return &Scanner{Root: root, MaxFileSizeMB: maxFileSizeMB}
}

// Scan lists project files by category, leaving out paths the project's
// .gitignore excludes. A missing root yields empty categories.
func (s *Scanner) Scan() (models.ProjectFiles, error) {
	files := models.ProjectFiles{
		Geometry:      []string{},
		Documentation: []string{},
		Images:        []string{},
		ToolLibraries: []string{},
	}

	info, err := os.Stat(s.Root)
	if err != nil || !info.IsDir() {
		return files, nil
	}

	rules := ignoreRules(s.Root)
	fsys := os.DirFS(s.Root)
	err = doublestar.GlobWalk(fsys, "**", func(path string, d fs.DirEntry) error {
		if d.IsDir() {
			return nil
		}
		if rules != nil && rules.MatchesPath(path) {
			return nil
		}
		lower := strings.ToLower(path)
		switch {
		case matchAny(geometryPatterns, lower):
			files.Geometry = append(files.Geometry, path)
		case matchAny(docPatterns, lower):
			files.Documentation = append(files.Documentation, path)
		case matchAny(imagePatterns, lower):
			files.Images = append(files.Images, path)
		case matchAny(toolPatterns, lower):
			files.ToolLibraries = append(files.ToolLibraries, path)
		}
		return nil
	})
	if err != nil {
		return files, fmt.Errorf("failed to scan project %s: %w", s.Root, err)
	}

	for _, list := range [][]string{files.Geometry, files.Documentation, files.Images, files.ToolLibraries} {
		sort.Strings(list)
	}
	return files, nil
}

// ignoreRules compiles the .gitignore at root; nil when there is none
func ignoreRules(root string) *ignore.GitIgnore {
	rules, err := ignore.CompileIgnoreFile(filepath.Join(root, ".gitignore"))
	if err != nil {
		return nil
	}
	return rules
}

func matchAny(patterns []string, path string) bool {
	for _, p := range patterns {
		if doublestar.MatchUnvalidated(p, path) {
			return true
		}
	}
	return false
}

// ReadFile returns at most maxLines lines of the file at rel, followed by
// TruncationMarker when more remain. Files over the size limit are skipped.
func (s *Scanner) ReadFile(rel string, maxLines int) (string, error) {
	path, err := s.resolve(rel)
	if err != nil {
		return "", err
	}

	info, err := os.Stat(path)
	if err != nil {
		return "", fmt.Errorf("failed to stat %s: %w", rel, err)
	}
	if s.MaxFileSizeMB > 0 && info.Size() > int64(s.MaxFileSizeMB)*1024*1024 {
		return "", fmt.Errorf("file %s exceeds %d MB", rel, s.MaxFileSizeMB)
	}

	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("failed to open %s: %w", rel, err)
	}
	defer f.Close()

	var b strings.Builder
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	lines := 0
	for scanner.Scan() {
		if maxLines > 0 && lines == maxLines {
			b.WriteString(TruncationMarker)
			return b.String(), nil
		}
		b.WriteString(scanner.Text())
		b.WriteByte('\n')
		lines++
	}
	if err := scanner.Err(); err != nil {
		return "", fmt.Errorf("failed to read %s: %w", rel, err)
	}
	return b.String(), nil
}

// resolve joins rel onto Root and refuses paths that escape it
func (s *Scanner) resolve(rel string) (string, error) {
	if !fs.ValidPath(filepath.ToSlash(rel)) {
		return "", fmt.Errorf("invalid project path %q", rel)
	}
	return filepath.Join(s.Root, filepath.FromSlash(rel)), nil
}

// ToolLibrary loads a tool library relative to the project root
func (s *Scanner) ToolLibrary(rel string) []models.Tool {
	path, err := s.resolve(rel)
	if err != nil {
		slog.Warn("Rejected tool library path", "path", rel, "error", err)
		return []models.Tool{}
	}
	return LoadToolLibrary(path)
}

// LoadToolLibrary reads the "tools" list of a JSON tool library. A missing
// file, malformed document or absent key yields no tools.
func LoadToolLibrary(path string) []models.Tool {
	data, err := os.ReadFile(path)
	if err != nil {
		slog.Warn("Failed to read tool library", "path", path, "error", err)
		return []models.Tool{}
	}

	var doc struct {
		Tools []models.Tool `json:"tools"`
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		slog.Warn("Failed to parse tool library", "path", path, "error", err)
		return []models.Tool{}
	}
	if doc.Tools == nil {
		return []models.Tool{}
	}
	return doc.Tools
}

// GeometryMetadata reports file-level metadata for a geometry file
func GeometryMetadata(path string) (models.GeometryMetadata, error) {
	info, err := os.Stat(path)
	if err != nil {
		return models.GeometryMetadata{}, fmt.Errorf("failed to stat %s: %w", path, err)
	}
	return models.GeometryMetadata{
		FileName:   filepath.Base(path),
		FileSizeMB: float64(info.Size()) / (1024 * 1024),
		Extension:  strings.ToLower(filepath.Ext(path)),
	}, nil
}
