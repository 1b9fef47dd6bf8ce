// Copyright IBM Corp. 2023, 2025
// SPDX-License-Identifier: MPL-2.0

package safearchive

import (
	"io"
	"io/fs"
	"os"

	"github.com/pkg/errors"
)

// errFileExists is returned by diskTarget if the destination exists and must
// not be replaced.
var errFileExists = errors.New("file already exists")

// diskTarget writes extracted files to the local filesystem.
type diskTarget struct {
	dirMode  fs.FileMode
	fileMode fs.FileMode
}

// newDiskTarget returns a diskTarget creating files and directories with the
// modes of cfg.
func newDiskTarget(cfg *Config) *diskTarget {
	return &diskTarget{
		dirMode:  cfg.CustomCreateDirMode(),
		fileMode: cfg.CustomFileMode(),
	}
}

// CreateDir creates a directory at path including parents. If the directory
// already exists, nothing is done.
func (d *diskTarget) CreateDir(path string) error {
	if err := os.MkdirAll(path, d.dirMode.Perm()); err != nil {
		return errors.Wrap(err, "failed to create directory")
	}
	return nil
}

// CreateFile creates a file at path with src as content and returns the number
// of bytes written. An existing file is only replaced if overwrite is true, in
// which case it is removed first so that a symlink at path is never followed.
// If more than maxSize bytes are available, the partial file is removed and
// errWriteLimitExceeded is returned. A negative maxSize disables the limit.
func (d *diskTarget) CreateFile(path string, src io.Reader, overwrite bool, maxSize int64) (int64, error) {
	if _, err := os.Lstat(path); err == nil {
		if !overwrite {
			return 0, errFileExists
		}
		if err := os.Remove(path); err != nil {
			return 0, errors.Wrap(err, "failed to replace existing file")
		}
	} else if !errors.Is(err, fs.ErrNotExist) {
		return 0, errors.Wrap(err, "invalid path")
	}

	// exclusive create, a file that appeared in between is not touched
	dst, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL|openNoFollow, d.fileMode.Perm())
	if err != nil {
		if errors.Is(err, fs.ErrExist) {
			return 0, errFileExists
		}
		return 0, errors.Wrap(err, "failed to create file")
	}

	n, err := io.Copy(limitWriter(dst, maxSize), src)
	if closeErr := dst.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		os.Remove(path)
		if errors.Is(err, errWriteLimitExceeded) {
			return n, err
		}
		return n, errors.Wrap(err, "failed to write file")
	}

	return n, nil
}
