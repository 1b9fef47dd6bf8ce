// Copyright IBM Corp. 2023, 2025
// SPDX-License-Identifier: MPL-2.0

package safearchive

import (
	"bytes"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
)

// TestCreateFile implements test cases
func TestCreateFile(t *testing.T) {
	target := newDiskTarget(NewConfig())

	t.Run("new file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "a.txt")
		n, err := target.CreateFile(path, strings.NewReader("hello"), false, -1)
		if err != nil || n != 5 {
			t.Fatalf("CreateFile() = %d, %v", n, err)
		}
		stat, err := os.Stat(path)
		if err != nil {
			t.Fatalf("error reading file: %v", err)
		}
		if runtime.GOOS != "windows" && stat.Mode().Perm()&^fs.FileMode(defaultCustomFileMode) != 0 {
			t.Errorf("expected mode within %o, got %o", defaultCustomFileMode, stat.Mode().Perm())
		}
	})

	t.Run("existing file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "a.txt")
		if err := os.WriteFile(path, []byte("old"), 0644); err != nil {
			t.Fatalf("error writing file: %v", err)
		}
		if _, err := target.CreateFile(path, strings.NewReader("new"), false, -1); !errors.Is(err, errFileExists) {
			t.Errorf("expected errFileExists, got %v", err)
		}
		if _, err := target.CreateFile(path, strings.NewReader("new"), true, -1); err != nil {
			t.Fatalf("CreateFile() error = %v", err)
		}
		if data, _ := os.ReadFile(path); string(data) != "new" {
			t.Errorf("expected file to be replaced, got %q", data)
		}
	})

	t.Run("limit", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "a.txt")
		if _, err := target.CreateFile(path, bytes.NewReader(make([]byte, 11)), false, 10); !errors.Is(err, errWriteLimitExceeded) {
			t.Errorf("expected errWriteLimitExceeded, got %v", err)
		}
		if _, err := os.Lstat(path); !errors.Is(err, fs.ErrNotExist) {
			t.Errorf("expected partial file to be removed, got %v", err)
		}
	})

	t.Run("symlink is replaced not followed", func(t *testing.T) {
		if runtime.GOOS == "windows" {
			t.Skip("symlinks require privileges on windows")
		}
		dir := t.TempDir()
		victim := filepath.Join(t.TempDir(), "victim.txt")
		if err := os.WriteFile(victim, []byte("untouched"), 0644); err != nil {
			t.Fatalf("error writing file: %v", err)
		}
		link := filepath.Join(dir, "a.txt")
		if err := os.Symlink(victim, link); err != nil {
			t.Fatalf("error creating symlink: %v", err)
		}

		if _, err := target.CreateFile(link, strings.NewReader("evil"), false, -1); !errors.Is(err, errFileExists) {
			t.Errorf("expected errFileExists, got %v", err)
		}
		if _, err := target.CreateFile(link, strings.NewReader("new"), true, -1); err != nil {
			t.Fatalf("CreateFile() error = %v", err)
		}
		if data, _ := os.ReadFile(victim); string(data) != "untouched" {
			t.Errorf("expected symlink target to be untouched, got %q", data)
		}
		if stat, err := os.Lstat(link); err != nil || !stat.Mode().IsRegular() {
			t.Errorf("expected regular file at link location, got %v", err)
		}
	})
}

// TestCreateDir checks that existing directories are accepted
func TestCreateDir(t *testing.T) {
	target := newDiskTarget(NewConfig(WithCustomCreateDirMode(0700)))
	path := filepath.Join(t.TempDir(), "a", "b")

	for i := 0; i < 2; i++ {
		if err := target.CreateDir(path); err != nil {
			t.Fatalf("CreateDir() error = %v", err)
		}
	}
	if stat, err := os.Stat(path); err != nil || !stat.IsDir() {
		t.Errorf("expected directory, got %v", err)
	}
}
