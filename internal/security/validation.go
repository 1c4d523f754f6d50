package security

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
)

// Validation errors
var (
	ErrPathTraversal   = errors.New("security: path traversal detected")
	ErrInvalidPath     = errors.New("security: invalid path")
	ErrPathOutsideRoot = errors.New("security: path outside allowed root")
	ErrInputTooLong    = errors.New("security: input exceeds maximum length")
	ErrNullByte        = errors.New("security: null byte in input")
)

// illegalFilenameChars are rejected by at least one common filesystem.
const illegalFilenameChars = `/\<>:"|?*`

// HasTraversal reports whether path contains a parent-directory component
// or a home-directory marker. A "~" anywhere in the string counts, even in
// the middle of a component; ".." only counts as a whole component.
func HasTraversal(path string) bool {
	if strings.Contains(path, "~") {
		return true
	}
	for _, part := range splitComponents(path) {
		if part == ".." || strings.EqualFold(part, "%2e%2e") {
			return true
		}
	}
	return false
}

func splitComponents(path string) []string {
	return strings.FieldsFunc(path, func(r rune) bool { return r == '/' || r == '\\' })
}

// IsSafe reports whether path is free of traversal. The empty path is safe:
// it means "no destination override".
func IsSafe(path string) bool {
	return !HasTraversal(path)
}

// SanitizeFilename turns name into a single safe path component. Path
// separators, filesystem-illegal characters and control characters become
// '_', and any ".." left afterwards is removed.
func SanitizeFilename(name string) string {
	var b strings.Builder
	b.Grow(len(name))
	for _, r := range name {
		switch {
		case r < 0x20 || r == 0x7f:
			b.WriteByte('_')
		case strings.ContainsRune(illegalFilenameChars, r):
			b.WriteByte('_')
		default:
			b.WriteRune(r)
		}
	}
	out := b.String()
	for strings.Contains(out, "..") {
		out = strings.ReplaceAll(out, "..", "")
	}
	return out
}

// SafeJoin joins base and parts with "/". It returns false if base or any
// part fails IsSafe; otherwise each part is sanitized first. Empty parts
// (before or after sanitizing) are skipped.
func SafeJoin(base string, parts ...string) (string, bool) {
	if !IsSafe(base) {
		return "", false
	}
	for _, p := range parts {
		if !IsSafe(p) {
			return "", false
		}
	}

	clean := make([]string, 0, len(parts))
	for _, p := range parts {
		if s := SanitizeFilename(p); s != "" {
			clean = append(clean, s)
		}
	}
	tail := strings.Join(clean, "/")

	trimmed := strings.TrimRight(base, `/\`)
	switch {
	case base == "":
		return tail, true
	case trimmed == "":
		// base was only separators, i.e. the root
		return "/" + tail, true
	case tail == "":
		return trimmed, true
	default:
		return trimmed + "/" + tail, true
	}
}

// PathValidator checks destination paths at the boundary before any I/O.
type PathValidator struct {
	// AllowedRoots, if set, are the directories a destination must be within.
	AllowedRoots []string

	// MaxPathLength is the maximum allowed path length; 0 disables the check.
	MaxPathLength int
}

// DefaultPathValidator returns a PathValidator with no root restriction.
func DefaultPathValidator() *PathValidator {
	return &PathValidator{
		MaxPathLength: 4096,
	}
}

// ValidatePath checks that path is usable as a write destination and
// returns it cleaned. The checks are textual; nothing is read from disk.
func (v *PathValidator) ValidatePath(path string) (string, error) {
	if path == "" {
		return "", fmt.Errorf("%w: empty destination", ErrInvalidPath)
	}
	if strings.ContainsRune(path, 0) {
		return "", ErrNullByte
	}
	if v.MaxPathLength > 0 && len(path) > v.MaxPathLength {
		return "", fmt.Errorf("%w: length %d exceeds maximum %d", ErrInputTooLong, len(path), v.MaxPathLength)
	}
	if HasTraversal(path) {
		return "", fmt.Errorf("%w: %q", ErrPathTraversal, path)
	}

	cleaned := filepath.Clean(path)
	if len(v.AllowedRoots) == 0 {
		return cleaned, nil
	}

	absPath, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidPath, err)
	}
	for _, root := range v.AllowedRoots {
		absRoot, err := filepath.Abs(root)
		if err != nil {
			continue
		}
		if absPath == absRoot || strings.HasPrefix(absPath, absRoot+string(filepath.Separator)) {
			return cleaned, nil
		}
	}
	return "", ErrPathOutsideRoot
}

// ValidateDestination runs the default PathValidator over path.
func ValidateDestination(path string) error {
	_, err := DefaultPathValidator().ValidatePath(path)
	return err
}
