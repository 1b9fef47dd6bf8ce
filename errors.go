// Copyright IBM Corp. 2023, 2025
// SPDX-License-Identifier: MPL-2.0

package safearchive

import (
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
)

// ErrorCode classifies an [ArchiveSecurityError].
type ErrorCode string

const (
	// CodeUnsupportedFormat is returned if the container format cannot be analyzed.
	CodeUnsupportedFormat ErrorCode = "UnsupportedFormat"

	// CodeAnalysisFailed is returned for malformed or truncated archives.
	CodeAnalysisFailed ErrorCode = "AnalysisFailed"

	// CodeValidationFailed is returned if one or more quotas are violated. The
	// error carries every violation in [ArchiveSecurityError.Violations].
	CodeValidationFailed ErrorCode = "ValidationFailed"

	// CodePathTraversalBlocked marks an entry that would be written outside
	// of the extraction root. The entry is skipped, the code is reported in
	// the event details.
	CodePathTraversalBlocked ErrorCode = "PathTraversalBlocked"

	// CodeFileExists marks a skipped entry whose destination already exists.
	CodeFileExists ErrorCode = "FileExists"

	// CodeLimitExceeded is returned if a size limit is exceeded while writing.
	CodeLimitExceeded ErrorCode = "LimitExceeded"

	// CodeExtractionFailed is returned for I/O failures during extraction.
	CodeExtractionFailed ErrorCode = "ExtractionFailed"

	// CodeCancelled is returned if the context was cancelled between entries.
	CodeCancelled ErrorCode = "Cancelled"
)

var (
	// ErrUnsupportedFormat matches every error with [CodeUnsupportedFormat] using errors.Is.
	ErrUnsupportedFormat = &ArchiveSecurityError{Code: CodeUnsupportedFormat}

	// ErrAnalysisFailed matches every error with [CodeAnalysisFailed] using errors.Is.
	ErrAnalysisFailed = &ArchiveSecurityError{Code: CodeAnalysisFailed}

	// ErrValidationFailed matches every error with [CodeValidationFailed] using errors.Is.
	ErrValidationFailed = &ArchiveSecurityError{Code: CodeValidationFailed}

	// ErrLimitExceeded matches every error with [CodeLimitExceeded] using errors.Is.
	ErrLimitExceeded = &ArchiveSecurityError{Code: CodeLimitExceeded}

	// ErrExtractionFailed matches every error with [CodeExtractionFailed] using errors.Is.
	ErrExtractionFailed = &ArchiveSecurityError{Code: CodeExtractionFailed}

	// ErrCancelled matches every error with [CodeCancelled] using errors.Is.
	ErrCancelled = &ArchiveSecurityError{Code: CodeCancelled}
)

// Violation describes a single exceeded quota.
type Violation struct {
	// Limit is the name of the violated limit, e.g. "max_total_size".
	Limit string `json:"limit"`

	// Actual is the observed value in human readable form.
	Actual string `json:"actual"`

	// Allowed is the configured bound in human readable form.
	Allowed string `json:"allowed"`

	// Entry is the archive member that caused the violation, if any.
	Entry string `json:"entry,omitempty"`

	// Message is a rendered, user facing description.
	Message string `json:"message"`
}

// maxRenderedViolations limits the violations included in the error string.
// All of them remain available in [ArchiveSecurityError.Violations].
const maxRenderedViolations = 10

// ArchiveSecurityError is the tagged error type returned by the engine.
type ArchiveSecurityError struct {
	Code       ErrorCode      `json:"code"`
	Message    string         `json:"message"`
	Violations []Violation    `json:"violations,omitempty"`
	Details    map[string]any `json:"details,omitempty"`

	cause error
}

// Error implements the error interface.
func (e *ArchiveSecurityError) Error() string {
	var sb strings.Builder
	sb.WriteString(string(e.Code))
	if len(e.Message) > 0 {
		sb.WriteString(": ")
		sb.WriteString(e.Message)
	}
	if len(e.Violations) > 0 {
		msgs := make([]string, 0, maxRenderedViolations+1)
		for i, v := range e.Violations {
			if i == maxRenderedViolations {
				msgs = append(msgs, fmt.Sprintf("and %d more", len(e.Violations)-i))
				break
			}
			msgs = append(msgs, v.Message)
		}
		sb.WriteString(" (")
		sb.WriteString(strings.Join(msgs, "; "))
		sb.WriteString(")")
	}
	if e.cause != nil {
		sb.WriteString(": ")
		sb.WriteString(e.cause.Error())
	}
	return sb.String()
}

// Unwrap returns the underlying cause.
func (e *ArchiveSecurityError) Unwrap() error {
	return e.cause
}

// Cause implements the github.com/pkg/errors causer interface.
func (e *ArchiveSecurityError) Cause() error {
	return e.cause
}

// Is reports whether target is an [ArchiveSecurityError] with the same code.
func (e *ArchiveSecurityError) Is(target error) bool {
	t, ok := target.(*ArchiveSecurityError)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

// newError creates a new [ArchiveSecurityError] wrapping cause. File system
// paths in cause are reduced to their base name.
func newError(code ErrorCode, cause error, format string, args ...any) *ArchiveSecurityError {
	return &ArchiveSecurityError{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
		cause:   redactPath(cause),
	}
}

// redactedError renders err with the path of a wrapped [fs.PathError]
// replaced by its base name. errors.Is and errors.As still see err.
type redactedError struct {
	err error
	msg string
}

func (r *redactedError) Error() string { return r.msg }

func (r *redactedError) Unwrap() error { return r.err }

// redactPath hides the directories of a file system path carried by err.
func redactPath(err error) error {
	if err == nil {
		return nil
	}
	var pe *fs.PathError
	if !errors.As(err, &pe) || len(pe.Path) == 0 {
		return err
	}
	base := filepath.Base(pe.Path)
	if base == pe.Path {
		return err
	}
	return &redactedError{err: err, msg: strings.ReplaceAll(err.Error(), pe.Path, base)}
}
