// Package security guards file access on behalf of HTTP handlers.
package security

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
)

// ErrOutsideDir is returned when a path resolves outside its allowed root.
var ErrOutsideDir = errors.New("path escapes directory")

// WithinDir reports whether path, once cleaned and with symlinks resolved,
// stays inside dir. Paths that do not exist yet are resolved through their
// nearest existing parent.
func WithinDir(path, dir string) error {
	canonPath, err := canonical(path)
	if err != nil {
		return err
	}
	canonDir, err := canonical(dir)
	if err != nil {
		return err
	}
	rel, err := filepath.Rel(canonDir, canonPath)
	if err != nil {
		return fmt.Errorf("%w: %s not in %s", ErrOutsideDir, path, dir)
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) || filepath.IsAbs(rel) {
		return fmt.Errorf("%w: %s not in %s", ErrOutsideDir, path, dir)
	}
	return nil
}

// canonical returns the absolute path with symlinks resolved up to the
// deepest existing ancestor.
func canonical(path string) (string, error) {
	abs, err := filepath.Abs(filepath.Clean(path))
	if err != nil {
		return "", fmt.Errorf("failed to resolve %s: %w", path, err)
	}
	rest := ""
	for p := abs; ; {
		if resolved, err := filepath.EvalSymlinks(p); err == nil {
			return filepath.Join(resolved, rest), nil
		}
		parent := filepath.Dir(p)
		if parent == p {
			return abs, nil
		}
		rest = filepath.Join(filepath.Base(p), rest)
		p = parent
	}
}
