// Copyright IBM Corp. 2023, 2025
// SPDX-License-Identifier: MPL-2.0

package safearchive

import (
	"io"
	"io/fs"
)

// archiveWalker is an interface that represents a sequential walk over the
// members of an archive. Next returns io.EOF after the last member.
type archiveWalker interface {
	Type() string
	Next() (archiveEntry, error)
	Close() error
}

// archiveEntry is an interface that represents a member of an archive
type archiveEntry interface {
	Name() string
	Size() int64
	CompressedSize() int64
	Mode() fs.FileMode
	IsDir() bool
	IsRegular() bool
	Open() (io.ReadCloser, error)
}

// newWalker returns the walker for format reading from src.
func newWalker(format Format, src io.ReaderAt, size int64) (archiveWalker, error) {
	switch format {
	case FormatZip:
		zw, err := newZipWalker(src, size)
		if err != nil {
			return nil, err
		}
		return zw, nil
	case FormatTar, FormatTarGz:
		tw, err := newTarWalker(io.NewSectionReader(src, 0, size), format == FormatTarGz)
		if err != nil {
			return nil, err
		}
		return tw, nil
	}
	return nil, newError(CodeUnsupportedFormat, nil, "no walker for format %s", format)
}

// toArchiveEntry converts the library specific entry into the common struct.
func toArchiveEntry(ae archiveEntry) ArchiveEntry {
	return ArchiveEntry{
		Path:           ae.Name(),
		Size:           nonNegative(ae.Size()),
		CompressedSize: nonNegative(ae.CompressedSize()),
		IsDirectory:    ae.IsDir(),
		Mode:           ae.Mode(),
	}
}

func nonNegative(v int64) uint64 {
	if v < 0 {
		return 0
	}
	return uint64(v)
}
