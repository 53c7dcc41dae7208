// Package skills loads declarative text transformations and applies them
// through a local-first, remote-fallback chain of inference backends.
package skills

import (
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"go.yaml.in/yaml/v3"

	"github.com/ShayCichocki/verdict/pkg/models"
)

// Built-in skill IDs used by the evaluation pipeline.
const (
	SkillTranscribe = "transcribe"
	SkillHumanize   = "humanize"
)

//go:embed builtin/*.md
var builtinFS embed.FS

// ErrNoFrontMatter is returned for definition files without a front matter block.
var ErrNoFrontMatter = errors.New("no front matter")

// LoadBuiltin returns the skills compiled into the binary.
func LoadBuiltin() ([]models.Skill, error) {
	return loadFS(builtinFS, "builtin")
}

// LoadDir reads every *.md definition in dir. A missing directory yields no
// skills and no error.
func LoadDir(dir string) ([]models.Skill, error) {
	if dir == "" {
		return nil, nil
	}
	if _, err := os.Stat(dir); errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	return loadFS(os.DirFS(dir), ".", dir)
}

func loadFS(fsys fs.FS, root string, prefix ...string) ([]models.Skill, error) {
	paths, err := fs.Glob(fsys, filepath.ToSlash(filepath.Join(root, "*.md")))
	if err != nil {
		return nil, err
	}
	sort.Strings(paths)

	var out []models.Skill
	for _, p := range paths {
		data, err := fs.ReadFile(fsys, p)
		if err != nil {
			return nil, fmt.Errorf("read skill %s: %w", p, err)
		}
		display := p
		if len(prefix) > 0 {
			display = filepath.Join(prefix[0], p)
		}
		s, err := ParseDefinition(display, string(data))
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}

// ParseDefinition decodes one skill file: a YAML front matter block delimited
// by "---" lines followed by the instruction body.
func ParseDefinition(path, content string) (models.Skill, error) {
	var s models.Skill

	content = strings.ReplaceAll(content, "\r\n", "\n")
	if !strings.HasPrefix(content, "---\n") {
		return s, fmt.Errorf("skill %s: %w", path, ErrNoFrontMatter)
	}
	rest := content[4:]
	idx := strings.Index(rest, "\n---\n")
	if idx < 0 {
		if !strings.HasSuffix(rest, "\n---") {
			return s, fmt.Errorf("skill %s: unterminated front matter", path)
		}
		idx = len(rest) - 4
	}

	if err := yaml.Unmarshal([]byte(rest[:idx]), &s); err != nil {
		return s, fmt.Errorf("skill %s: parse front matter: %w", path, err)
	}
	if idx+5 <= len(rest) {
		s.Content = strings.TrimSpace(rest[idx+5:])
	}
	s.Path = path

	if s.ID == "" {
		s.ID = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	if s.Name == "" {
		s.Name = s.ID
	}
	if s.ApplyPoint == "" {
		s.ApplyPoint = models.ApplyPost
	}
	if !s.ApplyPoint.Valid() {
		return s, fmt.Errorf("skill %s: invalid apply_point %q", path, s.ApplyPoint)
	}
	if s.Content == "" {
		return s, fmt.Errorf("skill %s: empty body", path)
	}
	return s, nil
}
