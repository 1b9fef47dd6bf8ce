// Copyright IBM Corp. 2023, 2025
// SPDX-License-Identifier: MPL-2.0

package safearchive

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"io/fs"
	"math"
	"os"
	"path/filepath"

	"github.com/dustin/go-humanize"
	"github.com/hashicorp/go-safearchive/events"
	"github.com/pkg/errors"
)

// ExtractionResult reports the outcome of an extraction.
type ExtractionResult struct {
	// Success is true if every entry was processed and no error was recorded.
	// Skipped entries with a warning do not affect it.
	Success bool `json:"success"`

	// ExtractedFiles holds the absolute destination paths in archive order.
	ExtractedFiles []string `json:"extracted_files"`

	// TotalSize is the number of bytes written.
	TotalSize uint64 `json:"total_size"`

	// Warnings lists skipped entries.
	Warnings []string `json:"warnings"`

	// Errors lists entries that failed.
	Errors []string `json:"errors"`
}

// extractionMode selects how entry payloads are copied.
type extractionMode int

const (
	// modeBuffered reads each entry fully into memory, bounded by the
	// remaining limit, before writing it.
	modeBuffered extractionMode = iota

	// modeStreaming copies each entry in chunks and counts bytes as they are
	// written.
	modeStreaming
)

// ExtractArchive analyzes and validates the archive at path, and extracts it
// below opts.ExtractPath if validation passes. Nothing is written if analysis
// or validation fails. Each entry is buffered in memory, bounded by the
// remaining limits, before it is written.
//
// If the extraction is aborted, e.g. because a limit is exceeded or ctx is
// cancelled, the partial result is returned together with the error. Files
// written until then are not removed.
func (e *Engine) ExtractArchive(ctx context.Context, path string, opts *ExtractionOptions) (*ExtractionResult, error) {
	return e.extract(ctx, path, opts, modeBuffered)
}

// ExtractArchiveStreaming behaves like [Engine.ExtractArchive] but copies
// entries in fixed size chunks instead of buffering them, enforcing the size
// limits on the bytes actually written.
func (e *Engine) ExtractArchiveStreaming(ctx context.Context, path string, opts *ExtractionOptions) (*ExtractionResult, error) {
	return e.extract(ctx, path, opts, modeStreaming)
}

func (e *Engine) extract(ctx context.Context, path string, opts *ExtractionOptions, mode extractionMode) (*ExtractionResult, error) {
	td := &TelemetryData{Operation: OperationExtract, Streaming: mode == modeStreaming}
	defer e.cfg.TelemetryHook()(ctx, td)
	defer captureDuration(td, now())

	result, err := e.extractArchive(ctx, path, opts, mode, td)
	if err != nil {
		td.LastError = err
	}
	return result, err
}

func (e *Engine) extractArchive(ctx context.Context, path string, opts *ExtractionOptions, mode extractionMode, td *TelemetryData) (*ExtractionResult, error) {
	if opts == nil {
		opts = DefaultExtractionOptions()
	}
	if len(opts.ExtractPath) == 0 {
		return nil, newError(CodeExtractionFailed, nil, "no extraction path given")
	}
	name := filepath.Base(path)

	info, err := e.analyzeArchive(ctx, path, td)
	if err != nil {
		return nil, err
	}
	if err := e.validate(ctx, name, info, opts); err != nil {
		return nil, err
	}

	target := newDiskTarget(e.cfg)
	root, err := filepath.Abs(opts.ExtractPath)
	if err != nil {
		return nil, newError(CodeExtractionFailed, errors.Wrap(err, "invalid extraction path"), "%s", name)
	}
	if err := target.CreateDir(root); err != nil {
		return nil, newError(CodeExtractionFailed, err, "cannot create extraction directory")
	}

	f, size, err := openArchiveFile(path, e.cfg.MaxInputSize())
	if err != nil {
		return nil, err
	}
	defer f.Close()

	walker, err := newWalker(info.Format, f, size)
	if err != nil {
		return nil, asAnalysisError(err, info.Format)
	}
	defer walker.Close()

	x := &extraction{
		engine:  e,
		opts:    opts,
		root:    root,
		archive: name,
		mode:    mode,
		target:  target,
		td:      td,
		result: &ExtractionResult{
			ExtractedFiles: []string{},
			Warnings:       []string{},
			Errors:         []string{},
		},
	}

	if err := x.run(ctx, walker); err != nil {
		return x.result, err
	}

	x.result.Success = len(x.result.Errors) == 0
	e.cfg.Logger().Info("extraction finished", "archive", name, "files", len(x.result.ExtractedFiles),
		"size", humanize.IBytes(x.result.TotalSize), "warnings", len(x.result.Warnings), "errors", len(x.result.Errors))
	e.emit(ctx, events.Event{
		Name:     events.ExtractionCompleted,
		Severity: events.SeverityInfo,
		Archive:  name,
		Details: map[string]any{
			"extracted_files": len(x.result.ExtractedFiles),
			"total_size":      x.result.TotalSize,
			"warnings":        len(x.result.Warnings),
			"errors":          len(x.result.Errors),
			"streaming":       mode == modeStreaming,
		},
	})
	return x.result, nil
}

// extraction holds the state of a single extraction.
type extraction struct {
	engine  *Engine
	opts    *ExtractionOptions
	root    string
	archive string
	mode    extractionMode
	target  *diskTarget
	td      *TelemetryData
	result  *ExtractionResult

	// entries counts the members read so far, including skipped ones.
	entries uint64
}

// run processes all entries of walker in archive order.
func (x *extraction) run(ctx context.Context, walker archiveWalker) error {
	for {
		if err := ctx.Err(); err != nil {
			x.emit(ctx, events.ExtractionCancelled, events.SeverityWarning, "", map[string]any{
				"extracted_files": len(x.result.ExtractedFiles),
			})
			return newError(CodeCancelled, err, "extraction cancelled after %d files", len(x.result.ExtractedFiles))
		}

		ae, err := walker.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return newError(CodeExtractionFailed, err, "cannot read next %s entry", walker.Type())
		}

		x.entries++
		if x.entries > uint64(x.opts.MaxFiles) {
			return x.fileLimitExceeded(ctx, ae.Name())
		}

		if err := x.entry(ctx, ae); err != nil {
			return err
		}
	}
}

// entry extracts a single archive member. Unsafe members are skipped with a
// warning, only a limit breach or an I/O failure without ContinueOnError
// returns an error.
func (x *extraction) entry(ctx context.Context, ae archiveEntry) error {
	name := ae.Name()

	if ae.IsDir() {
		return nil
	}

	if !ae.IsRegular() {
		x.skip(ctx, events.ExtractionUnsupported, events.SeverityWarning, "", name,
			fmt.Sprintf("skipped %q: unsupported entry type %s", name, entryType(ae.Mode())))
		return nil
	}

	rel := name
	if x.opts.ValidatePaths {
		sanitized, ok := SanitizePath(name)
		if !ok {
			x.skip(ctx, events.ExtractionTraversal, events.SeverityCritical, CodePathTraversalBlocked, name,
				fmt.Sprintf("skipped %q: unsafe path", name))
			return nil
		}
		rel = sanitized
	}

	dst := filepath.Join(x.root, filepath.FromSlash(rel))
	if !IsWithin(dst, x.root) {
		x.skip(ctx, events.ExtractionTraversal, events.SeverityCritical, CodePathTraversalBlocked, name,
			fmt.Sprintf("skipped %q: path resolves outside of the extraction directory", name))
		return nil
	}
	dir, _ := filepath.Rel(x.root, filepath.Dir(dst))
	if dir != "." {
		if err := securityCheck(x.root, dir); err != nil {
			x.skip(ctx, events.ExtractionTraversal, events.SeverityCritical, CodePathTraversalBlocked, name,
				fmt.Sprintf("skipped %q: %s", name, err))
			return nil
		}
	}

	if !x.opts.Overwrite && exists(dst) {
		x.skip(ctx, events.ExtractionFileExists, events.SeverityWarning, CodeFileExists, name,
			fmt.Sprintf("skipped %q: file already exists", name))
		return nil
	}

	if err := x.target.CreateDir(filepath.Dir(dst)); err != nil {
		return x.fail(ctx, name, err)
	}

	limit, limitName := x.remaining()
	n, err := x.write(ae, dst, limit)
	switch {
	case errors.Is(err, errReadLimitExceeded), errors.Is(err, errWriteLimitExceeded):
		return x.limitExceeded(ctx, name, limitName, limit)
	case errors.Is(err, errFileExists):
		x.skip(ctx, events.ExtractionFileExists, events.SeverityWarning, CodeFileExists, name,
			fmt.Sprintf("skipped %q: file already exists", name))
		return nil
	case err != nil:
		return x.fail(ctx, name, err)
	}

	x.result.ExtractedFiles = append(x.result.ExtractedFiles, dst)
	x.result.TotalSize += uint64(n)
	x.td.ExtractedFiles++
	x.td.ExtractionSize += n
	return nil
}

// remaining returns the byte budget for the next entry and the name of the
// limit that defines it.
func (x *extraction) remaining() (uint64, string) {
	var total uint64
	if x.result.TotalSize < x.opts.MaxTotalSize {
		total = x.opts.MaxTotalSize - x.result.TotalSize
	}
	if x.opts.MaxFileSize <= total {
		return x.opts.MaxFileSize, LimitMaxFileSize
	}
	return total, LimitMaxTotalSize
}

// write copies the payload of ae to dst, reading at most limit bytes.
func (x *extraction) write(ae archiveEntry, dst string, limit uint64) (int64, error) {
	src, err := ae.Open()
	if err != nil {
		return 0, errors.Wrap(err, "cannot open entry")
	}
	defer src.Close()

	maxSize := toInt64Limit(limit)
	if x.mode == modeStreaming {
		return x.target.CreateFile(dst, src, x.opts.Overwrite, maxSize)
	}

	var buf bytes.Buffer
	if _, err := io.Copy(&buf, newLimitErrorReader(src, maxSize)); err != nil {
		return 0, err
	}
	return x.target.CreateFile(dst, &buf, x.opts.Overwrite, -1)
}

// limitExceeded aborts the extraction because entry name exceeds the byte
// budget defined by limitName.
func (x *extraction) limitExceeded(ctx context.Context, name, limitName string, limit uint64) error {
	allowed := humanize.IBytes(limit)
	msg := fmt.Sprintf("entry %q exceeds the remaining %s of %s", name, limitName, allowed)
	return x.abort(ctx, name, limitName, "more than "+allowed, allowed, msg)
}

// fileLimitExceeded aborts the extraction because entry name is one entry too many.
func (x *extraction) fileLimitExceeded(ctx context.Context, name string) error {
	allowed := fmt.Sprint(x.opts.MaxFiles)
	msg := fmt.Sprintf("entry %q exceeds the %s of %s", name, LimitMaxFiles, allowed)
	return x.abort(ctx, name, LimitMaxFiles, fmt.Sprint(x.entries), allowed, msg)
}

// abort records the limit violation and returns the error ending the extraction.
func (x *extraction) abort(ctx context.Context, name, limitName, actual, allowed, msg string) error {
	x.result.Errors = append(x.result.Errors, msg)
	x.td.ExtractionErrors++
	x.engine.cfg.Logger().Error("extraction limit exceeded", "archive", x.archive, "entry", name, "limit", limitName)
	x.emit(ctx, events.ExtractionLimitExceeded, events.SeverityCritical, name, map[string]any{"limit": limitName})

	e := newError(CodeLimitExceeded, nil, "extraction aborted")
	e.Violations = []Violation{{
		Limit:   limitName,
		Actual:  actual,
		Allowed: allowed,
		Entry:   name,
		Message: msg,
	}}
	return e
}

// fail records an I/O failure of an entry. With ContinueOnError the
// extraction carries on, otherwise it is aborted.
func (x *extraction) fail(ctx context.Context, name string, err error) error {
	x.result.Errors = append(x.result.Errors, fmt.Sprintf("cannot extract %q: %s", name, redactPath(err)))
	x.td.ExtractionErrors++
	x.engine.cfg.Logger().Error("entry extraction failed", "archive", x.archive, "entry", name, "error", redactPath(err))
	x.emit(ctx, events.ExtractionEntryFailed, events.SeverityWarning, name, nil)

	if x.opts.ContinueOnError {
		return nil
	}
	return newError(CodeExtractionFailed, err, "cannot extract %q", name)
}

// skip records a warning for an entry that is not extracted. A non empty code
// classifies the violation in the log and the event details.
func (x *extraction) skip(ctx context.Context, event string, severity events.Severity, code ErrorCode, name, warning string) {
	x.result.Warnings = append(x.result.Warnings, warning)
	x.td.SkippedEntries++

	var details map[string]any
	if len(code) > 0 {
		details = map[string]any{"code": string(code)}
	}
	x.engine.cfg.Logger().Warn("entry skipped", "archive", x.archive, "entry", name, "event", event, "code", string(code))
	x.emit(ctx, event, severity, name, details)
}

func (x *extraction) emit(ctx context.Context, name string, severity events.Severity, entry string, details map[string]any) {
	x.engine.emit(ctx, events.Event{
		Name:     name,
		Severity: severity,
		Archive:  x.archive,
		Entry:    entry,
		Details:  details,
	})
}

// toInt64Limit converts a byte budget to the limit of limitErrorReader and
// limitErrorWriter, where a negative value means unlimited.
func toInt64Limit(limit uint64) int64 {
	if limit > math.MaxInt64 {
		return -1
	}
	return int64(limit)
}

// entryType names the type of a non regular entry.
func entryType(mode fs.FileMode) string {
	switch {
	case mode&fs.ModeSymlink != 0:
		return "symlink"
	case mode&fs.ModeNamedPipe != 0:
		return "fifo"
	case mode&fs.ModeDevice != 0:
		return "device"
	case mode&fs.ModeSocket != 0:
		return "socket"
	}
	return "special file"
}

// exists reports whether something, including a dangling symlink, exists at path.
func exists(path string) bool {
	_, err := os.Lstat(path)
	return err == nil
}
