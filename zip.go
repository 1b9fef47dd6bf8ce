// Copyright IBM Corp. 2023, 2025
// SPDX-License-Identifier: MPL-2.0

package safearchive

import (
	"archive/zip"
	"io"
	"io/fs"
	"strings"

	"github.com/pkg/errors"
)

// newZipWalker reads the central directory of the zip archive in src. Entry
// payloads are not touched until an entry is opened.
func newZipWalker(src io.ReaderAt, size int64) (*zipWalker, error) {
	reader, err := zip.NewReader(src, size)
	if err != nil && !errors.Is(err, zip.ErrInsecurePath) {
		return nil, errors.Wrap(err, "cannot read zip central directory")
	}
	return &zipWalker{zr: reader}, nil
}

// zipWalker is a walker for zip files
type zipWalker struct {
	zr *zip.Reader
	fp int
}

// Type returns the file extension for zip files
func (z *zipWalker) Type() string {
	return fileExtensionZip
}

// Next returns the next entry in the zip archive
func (z *zipWalker) Next() (archiveEntry, error) {
	if z.fp >= len(z.zr.File) {
		return nil, io.EOF
	}
	defer func() { z.fp++ }()
	return &zipEntry{z.zr.File[z.fp]}, nil
}

// Close is a no-op, the underlying reader is owned by the caller.
func (z *zipWalker) Close() error {
	return nil
}

// zipEntry is an entry in a zip archive
type zipEntry struct {
	zf *zip.File
}

// Name returns the name of the entry
func (z *zipEntry) Name() string {
	return z.zf.FileHeader.Name
}

// Size returns the declared uncompressed size of the entry
func (z *zipEntry) Size() int64 {
	return int64(z.zf.FileHeader.UncompressedSize64)
}

// CompressedSize returns the declared compressed size of the entry
func (z *zipEntry) CompressedSize() int64 {
	return int64(z.zf.FileHeader.CompressedSize64)
}

// Mode returns the mode of the entry
func (z *zipEntry) Mode() fs.FileMode {
	return z.zf.FileHeader.Mode()
}

// IsDir returns true if the entry is a directory
func (z *zipEntry) IsDir() bool {
	return strings.HasSuffix(z.zf.FileHeader.Name, "/") || z.zf.FileHeader.Mode().IsDir()
}

// IsRegular returns true if the entry is a regular file
func (z *zipEntry) IsRegular() bool {
	return !z.IsDir() && z.zf.FileHeader.Mode().Type() == 0
}

// Open returns a reader for the entry. The reader fails if the payload does
// not match the declared size or checksum.
func (z *zipEntry) Open() (io.ReadCloser, error) {
	return z.zf.Open()
}
