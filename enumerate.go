// Copyright IBM Corp. 2023, 2025
// SPDX-License-Identifier: MPL-2.0

package safearchive

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/dustin/go-humanize"
	"github.com/pkg/errors"
)

// maxEnumeratedEntries is a hard ceiling on the number of headers read from a
// single archive, independent of the configured max_files.
const maxEnumeratedEntries = 1 << 20

// Enumerate lists every member of the archive at path in archive order. Zip
// archives are enumerated from the central directory without decompressing
// payloads, tar archives are read header by header. Enumeration is all or
// nothing: a malformed archive yields [CodeAnalysisFailed] and no entries.
func Enumerate(ctx context.Context, path string, format Format) ([]ArchiveEntry, error) {
	f, size, err := openArchiveFile(path, -1)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return enumerate(ctx, f, size, format)
}

// openArchiveFile opens path for reading and returns its size. If maxInputSize
// is not negative, larger files are rejected before any header is parsed.
func openArchiveFile(path string, maxInputSize int64) (*os.File, int64, error) {
	name := filepath.Base(path)

	f, err := os.Open(path)
	if err != nil {
		return nil, 0, newError(CodeAnalysisFailed, errors.Wrap(err, "cannot open archive"), "%s", name)
	}

	stat, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, 0, newError(CodeAnalysisFailed, errors.Wrap(err, "cannot stat archive"), "%s", name)
	}
	if !stat.Mode().IsRegular() {
		f.Close()
		return nil, 0, newError(CodeAnalysisFailed, nil, "%s is not a regular file", name)
	}

	if maxInputSize >= 0 && stat.Size() > maxInputSize {
		f.Close()
		actual, allowed := humanize.IBytes(uint64(stat.Size())), humanize.IBytes(uint64(maxInputSize))
		e := newError(CodeLimitExceeded, nil, "archive %s exceeds the maximum input size", name)
		e.Violations = []Violation{{
			Limit:   LimitMaxInputSize,
			Actual:  actual,
			Allowed: allowed,
			Message: fmt.Sprintf("archive size %s exceeds the maximum input size of %s", actual, allowed),
		}}
		return nil, 0, e
	}

	return f, stat.Size(), nil
}

// enumerate reads all headers from src.
func enumerate(ctx context.Context, src io.ReaderAt, size int64, format Format) ([]ArchiveEntry, error) {
	walker, err := newWalker(format, src, size)
	if err != nil {
		return nil, asAnalysisError(err, format)
	}
	defer walker.Close()

	var entries []ArchiveEntry
	for {
		if err := ctx.Err(); err != nil {
			return nil, newError(CodeCancelled, err, "enumeration cancelled after %d entries", len(entries))
		}

		ae, err := walker.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, asAnalysisError(err, format)
		}

		if len(entries) >= maxEnumeratedEntries {
			return nil, newError(CodeAnalysisFailed, nil, "%s archive has more than %d entries", format, maxEnumeratedEntries)
		}
		entries = append(entries, toArchiveEntry(ae))
	}

	return entries, nil
}

// asAnalysisError tags err with [CodeAnalysisFailed] unless it is already tagged.
func asAnalysisError(err error, format Format) error {
	var ase *ArchiveSecurityError
	if errors.As(err, &ase) {
		return err
	}
	return newError(CodeAnalysisFailed, err, "malformed %s archive", format)
}
