// Package pathutil resolves paths to the canonical form used by write
// policy: absolute, with every existing symlink resolved in order.
//
// Resolution walks the path one component at a time, so "link/.." follows
// the link before stepping up, the way the kernel does. Components below
// the first missing one (the file about to be created) are appended
// lexically; a ".." among them is an error.
package pathutil

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"syscall"
)

// maxLinkHops bounds symlink expansion, matching Linux MAXSYMLINKS.
const maxLinkHops = 40

var (
	// ErrEmptyPath is returned for an empty path.
	ErrEmptyPath = errors.New("empty path")
	// ErrMissingParent is returned when ".." follows a component that
	// does not exist.
	ErrMissingParent = errors.New(`".." after a missing path component`)
)

// Canonicalize returns the absolute, symlink-resolved form of p.
func Canonicalize(p string) (string, error) {
	if p == "" {
		return "", ErrEmptyPath
	}
	if strings.IndexByte(p, 0) >= 0 {
		return "", fmt.Errorf("canonicalize %q: path contains NUL byte", p)
	}
	if !filepath.IsAbs(p) {
		cwd, err := os.Getwd()
		if err != nil {
			return "", fmt.Errorf("canonicalize %q: %w", p, err)
		}
		p = cwd + string(filepath.Separator) + p
	}

	hops := 0
	out, err := resolve(p, &hops)
	if err != nil {
		return "", fmt.Errorf("canonicalize %q: %w", p, err)
	}
	return out, nil
}

// CanonicalizeEntry is Canonicalize for calls that act on a directory
// entry itself (unlink, rename): the parent is resolved and the final
// element is kept as named, so a symlink there is not followed. A path
// ending in a separator, ".", or ".." is resolved in full.
func CanonicalizeEntry(p string) (string, error) {
	if p == "" {
		return "", ErrEmptyPath
	}
	if strings.IndexByte(p, 0) >= 0 {
		return "", fmt.Errorf("canonicalize %q: path contains NUL byte", p)
	}
	if os.IsPathSeparator(p[len(p)-1]) {
		return Canonicalize(p)
	}
	dir, base := filepath.Split(p)
	if base == "." || base == ".." {
		return Canonicalize(p)
	}
	if dir == "" {
		dir = "."
	}
	parent, err := Canonicalize(dir)
	if err != nil {
		return "", err
	}
	return filepath.Join(parent, base), nil
}

func resolve(p string, hops *int) (string, error) {
	vol := filepath.VolumeName(p)
	root := vol + string(filepath.Separator)
	comps := splitComponents(p[len(vol):])

	resolved := root
	for i, c := range comps {
		switch c {
		case ".":
			continue
		case "..":
			resolved = filepath.Dir(resolved)
			continue
		}

		next := filepath.Join(resolved, c)
		info, err := os.Lstat(next)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) || errors.Is(err, fs.ErrPermission) || isNotDir(err) {
				return appendMissing(next, comps[i+1:])
			}
			return "", err
		}

		if info.Mode()&fs.ModeSymlink == 0 {
			resolved = next
			continue
		}

		*hops++
		if *hops > maxLinkHops {
			return "", errors.New("too many levels of symbolic links")
		}
		target, err := os.Readlink(next)
		if err != nil {
			return "", err
		}
		if !filepath.IsAbs(target) {
			target = resolved + string(filepath.Separator) + target
		}
		if i+1 < len(comps) {
			target += string(filepath.Separator) + strings.Join(comps[i+1:], string(filepath.Separator))
		}
		return resolve(target, hops)
	}
	return resolved, nil
}

// appendMissing extends a path whose last component could not be looked
// up. Nothing below it can be a symlink, but ".." would need the missing
// directory to exist, so it is refused rather than cancelled out as text.
func appendMissing(base string, rest []string) (string, error) {
	out := base
	for _, c := range rest {
		switch c {
		case ".":
			continue
		case "..":
			return "", ErrMissingParent
		}
		out = filepath.Join(out, c)
	}
	return out, nil
}

func splitComponents(p string) []string {
	parts := strings.FieldsFunc(p, func(r rune) bool {
		return r == filepath.Separator || r == '/'
	})
	return parts
}

func isNotDir(err error) bool {
	return errors.Is(err, syscall.ENOTDIR)
}

// Within reports whether path equals root or lies beneath it.
// Both arguments must already be canonical.
func Within(path, root string) bool {
	if path == root {
		return true
	}
	if strings.HasSuffix(root, string(filepath.Separator)) {
		return strings.HasPrefix(path, root)
	}
	return strings.HasPrefix(path, root+string(filepath.Separator))
}
