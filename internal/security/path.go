package security

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// maxPathDepth bounds component walking against pathological nesting.
const maxPathDepth = 128

// CheckPath validates a filesystem tool path and returns its resolved
// absolute form. The rules, in order:
//
//   - absolute input paths are rejected outright, before any resolution
//   - the path must resolve inside root ("." and subdirectories only)
//   - no component of the resolved path below root may be a symlink,
//     checked with Lstat so the link is never followed
//   - the resolved path must not fall under a protected prefix
//
// Filesystem state can change between check and use, so callers re-validate
// immediately before the operation instead of caching an earlier result.
func (e *Engine) CheckPath(root, path string) (string, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return "", fmt.Errorf("%w: empty path", ErrValidation)
	}
	if filepath.IsAbs(path) {
		return "", fmt.Errorf("%w: absolute paths are not allowed: %s", ErrViolation, path)
	}
	if strings.ContainsRune(path, '\x00') {
		return "", fmt.Errorf("%w: path contains NUL byte", ErrValidation)
	}

	absRoot, err := filepath.Abs(root)
	if err != nil {
		return "", fmt.Errorf("%w: resolving root: %v", ErrValidation, err)
	}

	resolved := filepath.Clean(filepath.Join(absRoot, path))
	rel, err := filepath.Rel(absRoot, resolved)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: path escapes working root: %s", ErrViolation, path)
	}

	if err := e.checkNoSymlinks(absRoot, rel); err != nil {
		return "", err
	}

	if prefix, hit := e.protectedPrefix(absRoot, resolved); hit {
		return "", fmt.Errorf("%w: path under protected prefix %s", ErrViolation, prefix)
	}

	return resolved, nil
}

// checkNoSymlinks walks every component of rel below root and rejects any
// symlink. Missing components are fine: writes may create new files.
func (e *Engine) checkNoSymlinks(root, rel string) error {
	if rel == "." {
		return nil
	}

	parts := strings.Split(rel, string(filepath.Separator))
	if len(parts) > maxPathDepth {
		return fmt.Errorf("%w: path exceeds max depth %d", ErrValidation, maxPathDepth)
	}

	current := root
	for _, part := range parts {
		current = filepath.Join(current, part)
		info, err := os.Lstat(current)
		if err != nil {
			if os.IsNotExist(err) {
				// The remainder does not exist yet; nothing left
				// that could be a symlink.
				return nil
			}
			return fmt.Errorf("%w: lstat %s: %v", ErrValidation, current, err)
		}
		if info.Mode()&os.ModeSymlink != 0 {
			return fmt.Errorf("%w: symlink in path: %s", ErrViolation, current)
		}
	}
	return nil
}

// protectedPrefix reports whether resolved falls under any protected path.
// Prefixes may be absolute or relative to the working root.
func (e *Engine) protectedPrefix(root, resolved string) (string, bool) {
	for _, raw := range e.policy.ProtectedPaths {
		prefix := strings.TrimSpace(raw)
		if prefix == "" {
			continue
		}
		candidate := prefix
		if !filepath.IsAbs(candidate) {
			candidate = filepath.Join(root, candidate)
		}
		candidate = filepath.Clean(candidate)
		if resolved == candidate || strings.HasPrefix(resolved, candidate+string(filepath.Separator)) {
			return prefix, true
		}
	}
	return "", false
}
