// Copyright IBM Corp. 2023, 2025
// SPDX-License-Identifier: MPL-2.0

package safearchive

import (
	"archive/tar"
	"io"
	"io/fs"

	"github.com/klauspost/compress/gzip"
	"github.com/pkg/errors"
)

// newTarWalker creates a walker reading tar headers from src. If gzipped is
// true, src is decompressed on the fly.
func newTarWalker(src io.Reader, gzipped bool) (*tarWalker, error) {
	tw := &tarWalker{}
	if gzipped {
		gz, err := gzip.NewReader(src)
		if err != nil {
			return nil, errors.Wrap(err, "cannot start gzip decompression")
		}
		tw.gz = gz
		src = gz
	}

	tw.end = &tarEndReader{r: src}
	if s, ok := src.(io.Seeker); ok {
		tw.tr = tar.NewReader(&seekingTarEndReader{tarEndReader: tw.end, s: s})
	} else {
		tw.tr = tar.NewReader(tw.end)
	}
	return tw, nil
}

// errMissingTarTrailer is returned if a tar stream ends without the two zero
// blocks that mark the end of the archive.
var errMissingTarTrailer = errors.New("tar archive ends without end-of-archive marker")

// tarEndReader records whether the tar reader ran into the end of the
// underlying stream. archive/tar reports a clean io.EOF both for the
// end-of-archive marker and for a stream cut at a block boundary; only the
// latter hits the end of the source with nothing read.
type tarEndReader struct {
	r         io.Reader
	exhausted bool
}

func (t *tarEndReader) Read(p []byte) (int, error) {
	n, err := t.r.Read(p)
	if n == 0 && err == io.EOF && len(p) > 0 {
		t.exhausted = true
	}
	return n, err
}

// seekingTarEndReader keeps payload skipping cheap for seekable sources.
type seekingTarEndReader struct {
	*tarEndReader
	s io.Seeker
}

func (t *seekingTarEndReader) Seek(offset int64, whence int) (int64, error) {
	return t.s.Seek(offset, whence)
}

// tarWalker is a walker for tar and tar.gz files
type tarWalker struct {
	tr  *tar.Reader
	gz  *gzip.Reader
	end *tarEndReader
}

// Type returns the file extension for tar files
func (t *tarWalker) Type() string {
	if t.gz != nil {
		return fileExtensionTarGz
	}
	return fileExtensionTar
}

// Next returns the next entry in the tar archive. Unread payload of the
// previous entry is skipped by the tar reader.
func (t *tarWalker) Next() (archiveEntry, error) {
	for {
		hdr, err := t.tr.Next()
		if err == io.EOF {
			if t.end.exhausted {
				return nil, errMissingTarTrailer
			}
			// consume the gzip trailer to detect truncated or corrupt streams
			if t.gz != nil {
				if _, err := io.Copy(io.Discard, t.gz); err != nil {
					return nil, errors.Wrap(err, "corrupt gzip stream after tar end")
				}
			}
			return nil, io.EOF
		}
		if err != nil && !errors.Is(err, tar.ErrInsecurePath) {
			return nil, errors.Wrap(err, "cannot read tar header")
		}

		// git archive comment, not a member
		if hdr.Typeflag == tar.TypeXGlobalHeader {
			continue
		}
		return &tarEntry{hdr: hdr, tr: t.tr, gzipped: t.gz != nil}, nil
	}
}

// Close releases the decompressor.
func (t *tarWalker) Close() error {
	if t.gz != nil {
		return t.gz.Close()
	}
	return nil
}

// tarEntry is an entry in a tar archive
type tarEntry struct {
	hdr     *tar.Header
	tr      *tar.Reader
	gzipped bool
}

// Name returns the name of the entry
func (t *tarEntry) Name() string {
	return t.hdr.Name
}

// Size returns the size of the entry
func (t *tarEntry) Size() int64 {
	return t.hdr.Size
}

// CompressedSize returns the stored size. Tar stores payloads uncompressed,
// inside a gzip stream there is no per entry compressed size.
func (t *tarEntry) CompressedSize() int64 {
	if t.gzipped {
		return 0
	}
	return t.hdr.Size
}

// Mode returns the mode of the entry
func (t *tarEntry) Mode() fs.FileMode {
	return t.hdr.FileInfo().Mode()
}

// IsDir returns true if the entry is a directory
func (t *tarEntry) IsDir() bool {
	return t.hdr.Typeflag == tar.TypeDir
}

// IsRegular returns true if the entry is a regular file
func (t *tarEntry) IsRegular() bool {
	return t.hdr.Typeflag == tar.TypeReg
}

// Open returns a reader for the entry. It is only valid until Next is called.
func (t *tarEntry) Open() (io.ReadCloser, error) {
	return io.NopCloser(t.tr), nil
}
