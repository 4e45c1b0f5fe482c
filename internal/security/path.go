package security

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/tavnit/docshield/pkg/errors"
)

// FSPathSanitizer confines template paths to a fixed set of root directories.
// Paths are cleaned, made absolute against the first root, and symlinks are
// resolved when the target exists so a link cannot smuggle a path outside.
type FSPathSanitizer struct {
	roots []string
}

// NewFSPathSanitizer normalizes the allowed roots up front.
func NewFSPathSanitizer(allowedRoots []string) (*FSPathSanitizer, error) {
	if len(allowedRoots) == 0 {
		return nil, errors.ErrPathTraversal("no allowed template roots configured")
	}
	roots := make([]string, 0, len(allowedRoots))
	for _, root := range allowedRoots {
		abs, err := filepath.Abs(filepath.Clean(root))
		if err != nil {
			return nil, errors.ErrPathTraversal("allowed root is not resolvable").WithCause(err)
		}
		roots = append(roots, abs)
	}
	return &FSPathSanitizer{roots: roots}, nil
}

// Sanitize implements PathSanitizer.
func (p *FSPathSanitizer) Sanitize(path string) (string, error) {
	if path == "" {
		return "", errors.ErrPathTraversal("empty template path")
	}
	if strings.ContainsRune(path, 0) {
		return "", errors.ErrPathTraversal("path contains a NUL byte")
	}

	clean := filepath.Clean(path)
	if !filepath.IsAbs(clean) {
		clean = filepath.Join(p.roots[0], clean)
	}

	// Resolve symlinks when the file exists; a dangling path is still
	// checked lexically so creation-time races cannot skip the root check.
	if resolved, err := filepath.EvalSymlinks(clean); err == nil {
		clean = resolved
	} else if !os.IsNotExist(err) {
		return "", errors.ErrPathTraversal("path is not resolvable").WithCause(err)
	}

	for _, root := range p.roots {
		if clean == root || strings.HasPrefix(clean, root+string(filepath.Separator)) {
			return clean, nil
		}
	}
	return "", errors.ErrPathTraversal("path escapes the allowed template roots")
}
