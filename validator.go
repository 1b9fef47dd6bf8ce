// Copyright IBM Corp. 2023, 2025
// SPDX-License-Identifier: MPL-2.0

package safearchive

import (
	"fmt"

	"github.com/dustin/go-humanize"
)

// Limit names used in [Violation.Limit].
const (
	LimitMaxInputSize      = "max_input_size"
	LimitMaxTotalSize      = "max_total_size"
	LimitMaxFiles          = "max_files"
	LimitMaxFileSize       = "max_file_size"
	LimitMaxNestingLevel   = "max_nesting_level"
	LimitCompressionRatio  = "critical_compression_ratio"
	LimitAllowedExtensions = "allowed_extensions"
)

// ValidateArchiveInfo checks info against opts and returns a single
// [CodeValidationFailed] error listing every violated limit, or nil. A nil
// opts validates against [DefaultExtractionOptions].
func ValidateArchiveInfo(info *ArchiveInfo, opts *ExtractionOptions) error {
	if info == nil {
		return newError(CodeValidationFailed, nil, "no archive info")
	}
	if opts == nil {
		opts = DefaultExtractionOptions()
	}

	violations := collectViolations(info, opts)
	if len(violations) == 0 {
		return nil
	}

	e := newError(CodeValidationFailed, nil, "archive violates %d limit(s)", len(violations))
	e.Violations = violations
	return e
}

// collectViolations runs every check, none of them short-circuits.
func collectViolations(info *ArchiveInfo, opts *ExtractionOptions) []Violation {
	var violations []Violation

	if info.TotalUncompressedSize > opts.MaxTotalSize {
		v := sizeViolation(LimitMaxTotalSize, "", info.TotalUncompressedSize, opts.MaxTotalSize)
		v.Message = fmt.Sprintf("total uncompressed size %s exceeds the limit of %s", v.Actual, v.Allowed)
		violations = append(violations, v)
	}

	if info.TotalFiles > uint64(opts.MaxFiles) {
		violations = append(violations, Violation{
			Limit:   LimitMaxFiles,
			Actual:  fmt.Sprint(info.TotalFiles),
			Allowed: fmt.Sprint(opts.MaxFiles),
			Message: fmt.Sprintf("archive contains %d entries, the limit is %d", info.TotalFiles, opts.MaxFiles),
		})
	}

	for _, e := range info.Entries {
		if e.IsDirectory || e.Size <= opts.MaxFileSize {
			continue
		}
		v := sizeViolation(LimitMaxFileSize, e.Path, e.Size, opts.MaxFileSize)
		v.Message = fmt.Sprintf("entry %q has a size of %s, the per file limit is %s", e.Path, v.Actual, v.Allowed)
		violations = append(violations, v)
	}

	if info.NestingLevel > opts.MaxNestingLevel {
		violations = append(violations, Violation{
			Limit:   LimitMaxNestingLevel,
			Actual:  fmt.Sprint(info.NestingLevel),
			Allowed: fmt.Sprint(opts.MaxNestingLevel),
			Message: fmt.Sprintf("archives are nested %d level(s) deep, the limit is %d", info.NestingLevel, opts.MaxNestingLevel),
		})
	}

	if info.CompressionRatio > CriticalCompressionRatio {
		violations = append(violations, Violation{
			Limit:   LimitCompressionRatio,
			Actual:  fmt.Sprintf("%.1f:1", info.CompressionRatio),
			Allowed: fmt.Sprintf("%d:1", CriticalCompressionRatio),
			Message: fmt.Sprintf("compression ratio %.1f:1 exceeds the critical threshold of %d:1, possible decompression bomb",
				info.CompressionRatio, CriticalCompressionRatio),
		})
	}

	if exts := opts.normalizedExtensions(); len(exts) > 0 {
		for _, e := range info.Entries {
			if e.IsDirectory || extensionAllowed(e.Path, exts) {
				continue
			}
			violations = append(violations, Violation{
				Limit:   LimitAllowedExtensions,
				Actual:  e.Path,
				Allowed: fmt.Sprint(exts),
				Entry:   e.Path,
				Message: fmt.Sprintf("entry %q has a file extension that is not allowed", e.Path),
			})
		}
	}

	return violations
}

// sizeViolation returns a violation with humanized sizes and without message.
func sizeViolation(limit, entry string, actual, allowed uint64) Violation {
	return Violation{
		Limit:   limit,
		Actual:  humanize.IBytes(actual),
		Allowed: humanize.IBytes(allowed),
		Entry:   entry,
	}
}
