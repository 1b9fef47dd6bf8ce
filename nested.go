// Copyright IBM Corp. 2023, 2025
// SPDX-License-Identifier: MPL-2.0

package safearchive

import (
	"bytes"
	"context"
	"io"
	"path/filepath"

	"github.com/pkg/errors"
)

// DetectNested returns the paths of all non-directory entries that carry an
// archive extension, in archive order.
func DetectNested(entries []ArchiveEntry) []string {
	var nested []string
	for _, e := range entries {
		if e.IsDirectory {
			continue
		}
		if IsArchive(e.Path) {
			nested = append(nested, e.Path)
		}
	}
	return nested
}

// CalculateNestingLevel measures how deep archives are nested in the archive
// at path, starting at currentLevel and never reporting more than maxLevel.
// Nested members are opened in memory, bounded by the default nested member
// size. Members that cannot be inspected count as one level.
func CalculateNestingLevel(ctx context.Context, path string, currentLevel, maxLevel uint32) (uint32, error) {
	format, err := DetectFormat(path)
	if err != nil {
		return 0, err
	}

	f, size, err := openArchiveFile(path, -1)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	entries, err := enumerate(ctx, f, size, format)
	if err != nil {
		return 0, err
	}

	s := &nestingScanner{maxMemberSize: defaultMaxNestedMemberSize, logger: defaultLogger}
	return s.level(ctx, f, size, format, entries, currentLevel, maxLevel)
}

// nestingScanner opens nested archives to measure their depth.
type nestingScanner struct {
	maxMemberSize int64
	logger        logger
}

// level returns the nesting level of the archive in src whose entries are
// already known. Recursion stops as soon as maxLevel is reached.
func (s *nestingScanner) level(ctx context.Context, src io.ReaderAt, size int64, format Format, entries []ArchiveEntry, current, maxLevel uint32) (uint32, error) {
	nested := DetectNested(entries)
	if len(nested) == 0 {
		return current, nil
	}

	next := current + 1
	if next >= maxLevel {
		return next, nil
	}

	wanted := make(map[string]struct{}, len(nested))
	for _, n := range nested {
		wanted[n] = struct{}{}
	}

	walker, err := newWalker(format, src, size)
	if err != nil {
		return 0, asAnalysisError(err, format)
	}
	defer walker.Close()

	deepest := next
	for deepest < maxLevel {
		if err := ctx.Err(); err != nil {
			return 0, newError(CodeCancelled, err, "nested archive inspection cancelled")
		}

		ae, err := walker.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return 0, asAnalysisError(err, format)
		}

		if _, ok := wanted[ae.Name()]; !ok || !ae.IsRegular() {
			continue
		}

		lvl, err := s.member(ctx, ae, next, maxLevel)
		if err != nil {
			return 0, err
		}
		deepest = max(deepest, lvl)
	}

	return deepest, nil
}

// member inspects a single nested archive. Only cancellation is reported as
// error, every other failure leaves the member at its own level.
func (s *nestingScanner) member(ctx context.Context, ae archiveEntry, level, maxLevel uint32) (uint32, error) {
	name := filepath.Base(ae.Name())

	format, err := DetectFormat(ae.Name())
	if err != nil {
		s.logger.Debug("nested archive not inspected", "name", name, "reason", "unsupported format")
		return level, nil
	}

	if s.maxMemberSize >= 0 && ae.Size() > s.maxMemberSize {
		s.logger.Debug("nested archive not inspected", "name", name, "reason", "too large")
		return level, nil
	}

	data, err := s.read(ae)
	if err != nil {
		s.logger.Debug("nested archive not inspected", "name", name, "error", err)
		return level, nil
	}

	src := bytes.NewReader(data)
	entries, err := enumerate(ctx, src, int64(len(data)), format)
	if errors.Is(err, ErrCancelled) {
		return 0, err
	}
	if err != nil {
		s.logger.Debug("nested archive not inspected", "name", name, "error", err)
		return level, nil
	}

	return s.level(ctx, src, int64(len(data)), format, entries, level, maxLevel)
}

// read loads the payload of ae, failing if it exceeds the member size limit.
func (s *nestingScanner) read(ae archiveEntry) ([]byte, error) {
	rc, err := ae.Open()
	if err != nil {
		return nil, errors.Wrap(err, "cannot open nested archive")
	}
	defer rc.Close()

	var buf bytes.Buffer
	if _, err := io.Copy(&buf, newLimitErrorReader(rc, s.maxMemberSize)); err != nil {
		return nil, errors.Wrap(err, "cannot read nested archive")
	}
	return buf.Bytes(), nil
}
