// Package pathutil confines file paths supplied by remote callers to a set
// of allowed directories.
package pathutil

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ErrOutsideAllowed is returned for paths that escape every allowed directory.
var ErrOutsideAllowed = errors.New("path is outside allowed directories")

// RedactPath shortens a path to .../<parent>/<basename> for error messages.
// "/home/user/.connectome/archives/a.connectome.gz" becomes
// ".../archives/a.connectome.gz".
func RedactPath(path string) string {
	if path == "" {
		return ""
	}
	cleaned := filepath.Clean(path)
	parent := filepath.Base(filepath.Dir(cleaned))
	base := filepath.Base(cleaned)
	if parent == "." || parent == string(filepath.Separator) {
		return base
	}
	return ".../" + parent + "/" + base
}

// Resolve returns the absolute, symlink-resolved form of path if it lies
// within one of allowedDirs. The file itself need not exist yet; its
// deepest existing ancestor is resolved instead.
func Resolve(path string, allowedDirs []string) (string, error) {
	switch {
	case path == "":
		return "", fmt.Errorf("invalid path: empty")
	case len(allowedDirs) == 0:
		return "", fmt.Errorf("invalid path: no allowed directories configured")
	case strings.ContainsRune(path, '\x00'):
		return "", fmt.Errorf("invalid path: contains null byte")
	}

	abs, err := filepath.Abs(filepath.Clean(path))
	if err != nil {
		return "", fmt.Errorf("invalid path: %w", err)
	}
	dir, err := resolveExisting(filepath.Dir(abs))
	if err != nil {
		return "", fmt.Errorf("invalid path: %w", err)
	}
	resolved := filepath.Join(dir, filepath.Base(abs))

	for _, allowed := range allowedDirs {
		allowedAbs, err := filepath.Abs(filepath.Clean(allowed))
		if err != nil {
			continue
		}
		root, err := resolveExisting(allowedAbs)
		if err != nil {
			continue
		}
		if within(resolved, root) {
			return resolved, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrOutsideAllowed, RedactPath(abs))
}

// resolveExisting resolves symlinks on the deepest existing ancestor of dir
// and re-appends the missing tail.
func resolveExisting(dir string) (string, error) {
	if resolved, err := filepath.EvalSymlinks(dir); err == nil {
		return resolved, nil
	}
	parent := filepath.Dir(dir)
	if parent == dir {
		return "", fmt.Errorf("cannot resolve %s", RedactPath(dir))
	}
	resolvedParent, err := resolveExisting(parent)
	if err != nil {
		return "", err
	}
	return filepath.Join(resolvedParent, filepath.Base(dir)), nil
}

// within reports whether path equals base or lies below it.
func within(path, base string) bool {
	if path == base {
		return true
	}
	return strings.HasPrefix(path, base+string(os.PathSeparator))
}
