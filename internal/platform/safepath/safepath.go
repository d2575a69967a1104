// Package safepath derives extension directory names from archive file names
// and enforces that every computed path stays inside its base directory.
package safepath

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	apperrors "dashext/internal/platform/errors"
)

// StagingPrefix marks host-owned transient directories under the root.
const StagingPrefix = ".staging-"

var extensionSuffix = regexp.MustCompile(`(\.[^/.]+)+$`)

var acceptedSuffixes = []string{".tar.gz", ".tgz", ".tar"}

// AcceptedSuffixes lists the archive suffixes the pipeline handles.
func AcceptedSuffixes() []string {
	return append([]string(nil), acceptedSuffixes...)
}

// IsAcceptedArchive reports whether name carries an accepted archive suffix.
func IsAcceptedArchive(name string) bool {
	lower := strings.ToLower(filepath.Base(name))
	for _, suffix := range acceptedSuffixes {
		if strings.HasSuffix(lower, suffix) && len(lower) > len(suffix) {
			return true
		}
	}
	return false
}

// IsGzipName reports whether name implies gzip compression.
func IsGzipName(name string) bool {
	lower := strings.ToLower(name)
	return strings.HasSuffix(lower, ".tar.gz") || strings.HasSuffix(lower, ".tgz")
}

// DeriveName strips every trailing extension from the archive's base name:
// "bundle.tar.gz" yields "bundle".
func DeriveName(archiveFile string) (string, error) {
	base := archiveFile
	if i := strings.LastIndexAny(base, `/\`); i >= 0 {
		base = base[i+1:]
	}
	name := extensionSuffix.ReplaceAllString(base, "")
	if err := ValidateName(name); err != nil {
		return "", fmt.Errorf("%w: archive %q", err, base)
	}
	return name, nil
}

// ValidateName rejects names that cannot be used as a single directory
// component under the root. Names are never rewritten.
func ValidateName(name string) error {
	switch {
	case name == "":
		return fmt.Errorf("%w: empty extension name", apperrors.ErrTraversalRejected)
	case name == "." || name == "..":
		return fmt.Errorf("%w: reserved extension name %q", apperrors.ErrTraversalRejected, name)
	case strings.ContainsAny(name, "/\\\x00"):
		return fmt.Errorf("%w: extension name %q contains a separator", apperrors.ErrTraversalRejected, name)
	case strings.HasPrefix(name, "."):
		return fmt.Errorf("%w: extension name %q is hidden", apperrors.ErrTraversalRejected, name)
	}
	return nil
}

// Canonical returns root as an absolute, clean path with symlinks resolved.
// A root that does not exist yet is created first.
func Canonical(root string) (string, error) {
	if strings.TrimSpace(root) == "" {
		return "", fmt.Errorf("%w: destination root is required", apperrors.ErrInvalidInput)
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return "", fmt.Errorf("%w: resolve destination root: %v", apperrors.ErrFilesystemFailure, err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return "", fmt.Errorf("%w: create destination root: %v", apperrors.ErrFilesystemFailure, err)
	}
	resolved, err := filepath.EvalSymlinks(abs)
	if err != nil {
		return "", fmt.Errorf("%w: resolve destination root: %v", apperrors.ErrFilesystemFailure, err)
	}
	info, err := os.Stat(resolved)
	if err != nil {
		return "", fmt.Errorf("%w: stat destination root: %v", apperrors.ErrFilesystemFailure, err)
	}
	if !info.IsDir() {
		return "", fmt.Errorf("%w: destination root %s is not a directory", apperrors.ErrInvalidInput, resolved)
	}
	return resolved, nil
}

// Within reports whether path is a strict descendant of base. Both are
// compared lexically after cleaning.
func Within(base, path string) bool {
	rel, err := filepath.Rel(filepath.Clean(base), filepath.Clean(path))
	if err != nil {
		return false
	}
	if rel == "." || rel == ".." || filepath.IsAbs(rel) {
		return false
	}
	return !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

// TargetPath computes root/name for archiveFile after canonicalizing root.
// It returns the canonical root alongside the target.
func TargetPath(root, archiveFile string) (canonicalRoot string, name string, target string, err error) {
	name, err = DeriveName(archiveFile)
	if err != nil {
		return "", "", "", err
	}
	canonicalRoot, err = Canonical(root)
	if err != nil {
		return "", "", "", err
	}
	target = filepath.Join(canonicalRoot, name)
	if !Within(canonicalRoot, target) {
		return "", "", "", fmt.Errorf("%w: %s escapes %s", apperrors.ErrTraversalRejected, target, canonicalRoot)
	}
	if info, statErr := os.Lstat(target); statErr == nil && info.Mode()&os.ModeSymlink != 0 {
		return "", "", "", fmt.Errorf("%w: target %s is a symlink", apperrors.ErrTraversalRejected, target)
	}
	return canonicalRoot, name, target, nil
}

// CleanEntry validates a path as stored in an archive and returns it in
// native form. Absolute paths, volume names and ".." segments are rejected.
func CleanEntry(stored string) (string, error) {
	if stored == "" {
		return "", fmt.Errorf("%w: empty entry path", apperrors.ErrInvalidArchive)
	}
	if strings.ContainsRune(stored, '\x00') {
		return "", fmt.Errorf("%w: entry %q contains NUL", apperrors.ErrTraversalRejected, stored)
	}
	slashed := strings.ReplaceAll(stored, `\`, "/")
	if strings.HasPrefix(slashed, "/") || filepath.IsAbs(stored) || filepath.VolumeName(stored) != "" || hasDriveLetter(slashed) {
		return "", fmt.Errorf("%w: absolute entry path %q", apperrors.ErrTraversalRejected, stored)
	}
	parts := make([]string, 0, 8)
	for _, seg := range strings.Split(slashed, "/") {
		switch seg {
		case "", ".":
			continue
		case "..":
			return "", fmt.Errorf("%w: entry %q has a parent segment", apperrors.ErrTraversalRejected, stored)
		}
		parts = append(parts, seg)
	}
	if len(parts) == 0 {
		return "", nil
	}
	return filepath.Join(parts...), nil
}

// EntryPath joins a stored archive path onto target and verifies the result
// is a strict descendant of target. An entry naming target itself yields "".
func EntryPath(target, stored string) (string, error) {
	rel, err := CleanEntry(stored)
	if err != nil {
		return "", err
	}
	if rel == "" {
		return "", nil
	}
	full := filepath.Join(target, rel)
	if !Within(target, full) {
		return "", fmt.Errorf("%w: entry %q escapes target", apperrors.ErrTraversalRejected, stored)
	}
	return full, nil
}

// LinkTarget validates a symlink's target for an entry at linkPath inside
// target. Only relative, forward-only targets that land inside target pass.
func LinkTarget(target, linkPath, linkTarget string) (string, error) {
	if linkTarget == "" {
		return "", fmt.Errorf("%w: empty link target", apperrors.ErrInvalidArchive)
	}
	slashed := strings.ReplaceAll(linkTarget, `\`, "/")
	if strings.HasPrefix(slashed, "/") || filepath.IsAbs(linkTarget) || hasDriveLetter(slashed) {
		return "", fmt.Errorf("%w: absolute link target %q", apperrors.ErrTraversalRejected, linkTarget)
	}
	for _, seg := range strings.Split(slashed, "/") {
		if seg == ".." {
			return "", fmt.Errorf("%w: link target %q has a parent segment", apperrors.ErrTraversalRejected, linkTarget)
		}
	}
	resolved := filepath.Join(filepath.Dir(linkPath), filepath.FromSlash(slashed))
	if !Within(target, resolved) {
		return "", fmt.Errorf("%w: link target %q escapes target", apperrors.ErrTraversalRejected, linkTarget)
	}
	return resolved, nil
}

// RealParentWithin resolves symlinks on the parent of path and verifies it
// is base or a descendant of base, so that writes never pass through a link.
func RealParentWithin(base, path string) error {
	parent := filepath.Dir(path)
	real, err := filepath.EvalSymlinks(parent)
	if err != nil {
		return fmt.Errorf("%w: resolve %s: %v", apperrors.ErrFilesystemFailure, parent, err)
	}
	if real != filepath.Clean(base) && !Within(base, real) {
		return fmt.Errorf("%w: %s resolves outside target", apperrors.ErrTraversalRejected, parent)
	}
	return nil
}

func hasDriveLetter(p string) bool {
	if len(p) < 2 || p[1] != ':' {
		return false
	}
	c := p[0]
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}
