// Copyright IBM Corp. 2023, 2025
// SPDX-License-Identifier: MPL-2.0

package safearchive

import (
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
)

// SanitizePath turns an untrusted archive member name into a relative,
// slash separated path. It returns false if the name is empty, contains a NUL
// byte, is absolute, carries a drive letter, or escapes upwards after
// cleaning. Backslashes are treated as separators.
func SanitizePath(raw string) (string, bool) {
	if len(raw) == 0 || strings.ContainsRune(raw, 0) {
		return "", false
	}

	// absolute on either platform
	if raw[0] == '/' || raw[0] == '\\' || hasDriveLetter(raw) {
		return "", false
	}

	cleaned := path.Clean(normalizeSeparators(raw))
	if cleaned == "." || cleaned == ".." || strings.HasPrefix(cleaned, "../") {
		return "", false
	}

	// covers reserved names on windows
	if !filepath.IsLocal(filepath.FromSlash(cleaned)) {
		return "", false
	}

	return cleaned, true
}

// hasDriveLetter reports whether p starts with a windows drive, like "C:".
func hasDriveLetter(p string) bool {
	if len(p) < 2 || p[1] != ':' {
		return false
	}
	c := p[0]
	return ('a' <= c && c <= 'z') || ('A' <= c && c <= 'Z')
}

// IsWithin reports whether target resolves to base or a path below base.
// Both paths are made absolute and symlinks of their deepest existing
// ancestors are resolved, so a symlink inside base pointing outside is
// detected. Any resolution error yields false.
func IsWithin(target, base string) bool {
	b, err := resolvePath(base)
	if err != nil {
		return false
	}
	t, err := resolvePath(target)
	if err != nil {
		return false
	}

	rel, err := filepath.Rel(b, t)
	if err != nil {
		return false
	}
	return rel == "." || filepath.IsLocal(rel)
}

// resolvePath returns the absolute form of p with symlinks resolved for the
// longest existing prefix. Non existing trailing elements are appended as is.
func resolvePath(p string) (string, error) {
	abs, err := filepath.Abs(p)
	if err != nil {
		return "", err
	}

	existing := abs
	var rest []string
	for {
		resolved, err := filepath.EvalSymlinks(existing)
		if err == nil {
			return filepath.Join(append([]string{resolved}, rest...)...), nil
		}
		if !errors.Is(err, fs.ErrNotExist) {
			return "", err
		}

		parent := filepath.Dir(existing)
		if parent == existing {
			return abs, nil
		}
		rest = append([]string{filepath.Base(existing)}, rest...)
		existing = parent
	}
}

// securityCheck walks every element of the relative path rel below root and
// fails if one of them exists as symlink. Dangling links are not resolved by
// [IsWithin], so they are refused here.
func securityCheck(root, rel string) error {
	elements := strings.Split(filepath.ToSlash(rel), "/")
	for i := range elements {
		check := filepath.Join(root, filepath.Join(elements[:i+1]...))

		stat, err := os.Lstat(check)
		if errors.Is(err, fs.ErrNotExist) {
			// nothing below a missing element can exist
			return nil
		}
		if err != nil {
			return errors.Wrap(err, "invalid path")
		}
		if stat.Mode()&fs.ModeSymlink != 0 {
			return errors.New("symlink in path")
		}
	}
	return nil
}
