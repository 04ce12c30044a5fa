package denylist

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/gobwas/glob"
	"gopkg.in/yaml.v3"

	"github.com/ppiankov/testguard/internal/pathutil"
)

// Patterns holds the raw protected-file entries as written in YAML.
type Patterns struct {
	Files []string `yaml:"files"`
}

// Denylist is the protected file set. Entries are either exact paths,
// stored in canonical form, or glob patterns matched against canonical
// paths with '/' as the separator ("*" stays within one component,
// "**" crosses components).
type Denylist struct {
	exact map[string]string // canonical path -> entry as configured
	globs []filePattern
	raw   []string
}

type filePattern struct {
	entry string
	g     glob.Glob
}

// New builds a Denylist. Relative entries are resolved against baseDir
// (the working directory when baseDir is empty).
func New(entries []string, baseDir string) (*Denylist, error) {
	if baseDir == "" {
		wd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("denylist: resolve base dir: %w", err)
		}
		baseDir = wd
	}
	if canonical, err := pathutil.Canonicalize(baseDir); err == nil {
		baseDir = canonical
	}

	d := &Denylist{exact: make(map[string]string)}
	for _, e := range entries {
		if err := d.add(e, baseDir); err != nil {
			return nil, err
		}
	}
	return d, nil
}

// NewDefault creates a Denylist with DefaultProtectedFiles resolved against baseDir.
func NewDefault(baseDir string) (*Denylist, error) {
	return New(DefaultProtectedFiles, baseDir)
}

// Load reads protected-file entries from a YAML file.
// A missing file yields the defaults.
func Load(path, baseDir string) (*Denylist, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return NewDefault(baseDir)
		}
		return nil, fmt.Errorf("denylist: read %s: %w", path, err)
	}

	var p Patterns
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("denylist: parse %s: %w", path, err)
	}
	return New(p.Files, baseDir)
}

func (d *Denylist) add(entry, baseDir string) error {
	entry = strings.TrimSpace(entry)
	if entry == "" {
		return nil
	}
	expanded := expandHome(entry)

	if isPattern(expanded) {
		pattern := filepath.ToSlash(expanded)
		if !strings.HasPrefix(pattern, "/") && !strings.HasPrefix(pattern, "**") && filepath.VolumeName(expanded) == "" {
			pattern = filepath.ToSlash(filepath.Join(baseDir, expanded))
		}
		g, err := glob.Compile(pattern, '/')
		if err != nil {
			return fmt.Errorf("denylist: invalid pattern %q: %w", entry, err)
		}
		d.globs = append(d.globs, filePattern{entry: entry, g: g})
		d.raw = append(d.raw, entry)
		return nil
	}

	if !filepath.IsAbs(expanded) {
		expanded = filepath.Join(baseDir, expanded)
	}
	canonical, err := pathutil.Canonicalize(expanded)
	if err != nil {
		return fmt.Errorf("denylist: %w", err)
	}
	d.exact[canonical] = entry
	d.raw = append(d.raw, entry)
	return nil
}

// IsProtected checks a canonical path against the set.
// Returns (protected, reason).
func (d *Denylist) IsProtected(canonical string) (bool, string) {
	if d == nil {
		return false, ""
	}
	if entry, ok := d.exact[canonical]; ok {
		return true, "protected file: " + entry
	}
	slashed := filepath.ToSlash(canonical)
	for _, p := range d.globs {
		if p.g.Match(slashed) {
			return true, "protected file pattern: " + p.entry
		}
	}
	return false, ""
}

// Entries returns the configured entries in load order.
func (d *Denylist) Entries() []string {
	return append([]string(nil), d.raw...)
}

// Paths returns the canonical exact paths, sorted.
func (d *Denylist) Paths() []string {
	out := make([]string, 0, len(d.exact))
	for p := range d.exact {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

func isPattern(entry string) bool {
	return strings.ContainsAny(entry, "*?[{")
}

func expandHome(entry string) string {
	if !strings.HasPrefix(entry, "~/") {
		return entry
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return entry
	}
	return filepath.Join(home, entry[2:])
}
