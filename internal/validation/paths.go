// Package validation checks names coming from users and from the server
// before they touch the local filesystem or the wire.
package validation

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"unicode/utf8"
)

// MaxNameLength is the longest entry name the server accepts, in characters.
const MaxNameLength = 255

// ErrBlankName is returned for names that are empty after trimming.
var ErrBlankName = errors.New("name cannot be blank")

// NormalizeName trims surrounding whitespace from a user-supplied entry name
// and rejects names that are blank, too long, or contain a path separator or
// control character.
func NormalizeName(name string) (string, error) {
	trimmed := strings.TrimSpace(name)
	if trimmed == "" {
		return "", ErrBlankName
	}
	if utf8.RuneCountInString(trimmed) > MaxNameLength {
		return "", fmt.Errorf("name longer than %d characters", MaxNameLength)
	}
	if strings.ContainsAny(trimmed, "/\\") {
		return "", fmt.Errorf("name cannot contain path separators: %s", trimmed)
	}
	for _, r := range trimmed {
		if r < 0x20 || r == 0x7f {
			return "", fmt.Errorf("name contains control character %U", r)
		}
	}
	return trimmed, nil
}

// ValidateFilename rejects a server-provided file name that could escape the
// download directory when joined onto it: empty names, names with path
// separators or null bytes, and the literal "..".
func ValidateFilename(filename string) error {
	if filename == "" {
		return fmt.Errorf("filename cannot be empty")
	}
	if strings.ContainsRune(filename, 0) {
		return fmt.Errorf("filename contains null byte: %q", filename)
	}
	if strings.ContainsAny(filename, "/\\") {
		return fmt.Errorf("filename cannot contain path separators: %s", filename)
	}
	// Separators are already rejected, so "foo..bar" is fine.
	if filename == "." || filename == ".." {
		return fmt.Errorf("filename cannot be %q", filename)
	}
	return nil
}

// ValidatePathInDirectory checks that path, resolved against baseDir when
// relative, stays inside baseDir.
//
//	ValidatePathInDirectory("../../etc/passwd", "/tmp/out") // error
//	ValidatePathInDirectory("sub/file.txt", "/tmp/out")     // nil
func ValidatePathInDirectory(path string, baseDir string) error {
	if path == "" {
		return fmt.Errorf("path cannot be empty")
	}
	if baseDir == "" {
		return fmt.Errorf("base directory cannot be empty")
	}

	cleanBase, err := filepath.Abs(filepath.Clean(baseDir))
	if err != nil {
		return fmt.Errorf("failed to resolve base directory: %w", err)
	}

	resolved := filepath.Clean(path)
	if !filepath.IsAbs(resolved) {
		resolved = filepath.Join(cleanBase, resolved)
	}

	rel, err := filepath.Rel(cleanBase, resolved)
	if err != nil {
		return fmt.Errorf("failed to compute relative path: %w", err)
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return fmt.Errorf("path escapes base directory: %s (base: %s)", path, baseDir)
	}
	return nil
}
