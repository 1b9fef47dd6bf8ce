// Copyright IBM Corp. 2023, 2025
// SPDX-License-Identifier: MPL-2.0

package safearchive

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
)

// Format is a container format the engine can analyze and extract.
type Format int

const (
	FormatUnknown Format = iota
	FormatZip
	FormatTar
	FormatTarGz
)

// String returns the canonical file extension of f without leading dot.
func (f Format) String() string {
	switch f {
	case FormatZip:
		return fileExtensionZip
	case FormatTar:
		return fileExtensionTar
	case FormatTarGz:
		return fileExtensionTarGz
	default:
		return "unknown"
	}
}

// MarshalText implements [encoding.TextMarshaler].
func (f Format) MarshalText() ([]byte, error) {
	return []byte(f.String()), nil
}

const (
	fileExtensionZip   = "zip"
	fileExtensionTar   = "tar"
	fileExtensionTarGz = "tar.gz"
)

// supportedExtensions maps analyzable file extensions to their format.
var supportedExtensions = map[string]Format{
	".zip":    FormatZip,
	".tar":    FormatTar,
	".tar.gz": FormatTarGz,
	".tgz":    FormatTarGz,
}

// knownArchiveExtensions are recognized as archives. Only the ones in
// supportedExtensions can be analyzed.
var knownArchiveExtensions = []string{
	".zip", ".tar", ".tar.gz", ".tgz", ".tar.bz2", ".tbz2", ".gz", ".bz2", ".7z", ".rar",
}

// IsArchive reports whether path carries a known archive extension. A true
// result does not imply that the engine can analyze the file.
func IsArchive(path string) bool {
	lower := strings.ToLower(path)
	for _, ext := range knownArchiveExtensions {
		if strings.HasSuffix(lower, ext) {
			return true
		}
	}
	return false
}

// DetectFormat identifies the container format of path by its extension, using
// the longest matching suffix. Recognized but unsupported archives as well as
// unknown files fail with [CodeUnsupportedFormat].
func DetectFormat(path string) (Format, error) {
	lower := strings.ToLower(path)

	var (
		format    = FormatUnknown
		maxSuffix int
	)
	for suffix, f := range supportedExtensions {
		if strings.HasSuffix(lower, suffix) && len(suffix) > maxSuffix {
			maxSuffix = len(suffix)
			format = f
		}
	}

	// a known, but longer unsupported suffix wins, e.g. ".tar.bz2" over ".bz2"
	for _, ext := range knownArchiveExtensions {
		if _, ok := supportedExtensions[ext]; ok {
			continue
		}
		if strings.HasSuffix(lower, ext) && len(ext) > maxSuffix {
			return FormatUnknown, newError(CodeUnsupportedFormat, nil,
				"archive type %q of %s is recognized but not supported", ext, filepath.Base(path))
		}
	}

	if format == FormatUnknown {
		return FormatUnknown, newError(CodeUnsupportedFormat, nil,
			"%s is not a supported archive", filepath.Base(path))
	}
	return format, nil
}

// magicBytesZip contains the magic bytes for a zip archive, including the
// end of central directory signature of an empty archive.
var magicBytesZip = [][]byte{
	{0x50, 0x4B, 0x03, 0x04},
	{0x50, 0x4B, 0x05, 0x06},
}

// offsetTar is the offset where the magic bytes are located in the file
const offsetTar = 257

// magicBytesTar are the magic bytes for tar files
var magicBytesTar = [][]byte{
	[]byte("ustar\x00tar\x00"),
	[]byte("ustar\x00"),
	[]byte("ustar  \x00"),
}

// magicBytesGZip are the magic bytes for gzip compressed files.
var magicBytesGZip = [][]byte{
	{0x1f, 0x8b},
}

// maxHeaderLength is the number of bytes needed to sniff every supported format.
const maxHeaderLength = offsetTar + 8

// matchesMagicBytes checks if data contains one of magicBytes at offset.
func matchesMagicBytes(data []byte, offset int, magicBytes [][]byte) bool {
	for _, mb := range magicBytes {
		// check if header is long enough
		if offset+len(mb) > len(data) {
			continue
		}

		if bytes.Equal(mb, data[offset:offset+len(mb)]) {
			return true
		}
	}
	return false
}

// sniffFormat returns the format indicated by header.
func sniffFormat(header []byte) Format {
	switch {
	case matchesMagicBytes(header, 0, magicBytesZip):
		return FormatZip
	case matchesMagicBytes(header, 0, magicBytesGZip):
		return FormatTarGz
	case matchesMagicBytes(header, offsetTar, magicBytesTar):
		return FormatTar
	}
	return FormatUnknown
}

// verifyFormat checks that the content of path matches format.
func verifyFormat(path string, format Format) error {
	f, err := os.Open(path)
	if err != nil {
		return newError(CodeAnalysisFailed, errors.Wrap(err, "cannot open archive"), "%s", filepath.Base(path))
	}
	defer f.Close()

	header, err := readHeader(f, maxHeaderLength)
	if err != nil {
		return newError(CodeAnalysisFailed, err, "%s", filepath.Base(path))
	}

	if sniffed := sniffFormat(header); sniffed != format {
		return newError(CodeUnsupportedFormat, nil,
			"content of %s does not match claimed format %s", filepath.Base(path), format)
	}
	return nil
}
