// Copyright IBM Corp. 2023, 2025
// SPDX-License-Identifier: MPL-2.0

package safearchive

import (
	"strings"
)

// ExtractionOptions is the caller supplied policy for one validation or
// extraction.
type ExtractionOptions struct {
	// MaxTotalSize bounds the sum of all uncompressed entry sizes.
	MaxTotalSize uint64 `json:"max_total_size" yaml:"max_total_size"`

	// MaxFileSize bounds the uncompressed size of every single entry.
	MaxFileSize uint64 `json:"max_file_size" yaml:"max_file_size"`

	// MaxFiles bounds the number of entries, including directories.
	MaxFiles uint32 `json:"max_files" yaml:"max_files"`

	// MaxNestingLevel bounds the nesting depth of archives within archives.
	MaxNestingLevel uint32 `json:"max_nesting_level" yaml:"max_nesting_level"`

	// AllowedExtensions restricts file entries to the given extensions if not
	// empty. Matching is case insensitive and the leading dot is optional.
	AllowedExtensions []string `json:"allowed_extensions,omitempty" yaml:"allowed_extensions"`

	// ExtractPath is the root directory all files are written below.
	ExtractPath string `json:"extract_path" yaml:"extract_path"`

	// Overwrite allows replacing existing files.
	Overwrite bool `json:"overwrite" yaml:"overwrite"`

	// ValidatePaths enables path sanitization. Disabling it is only meant for
	// archives from trusted sources, the containment check stays active.
	ValidatePaths bool `json:"validate_paths" yaml:"validate_paths"`

	// ContinueOnError records per entry I/O failures and carries on instead
	// of aborting the extraction.
	ContinueOnError bool `json:"continue_on_error" yaml:"continue_on_error"`
}

const (
	DefaultMaxTotalSize    = 1 << 30   // 1 GiB
	DefaultMaxFileSize     = 100 << 20 // 100 MiB
	DefaultMaxFiles        = 10000
	DefaultMaxNestingLevel = 2
)

// DefaultExtractionOptions returns the secure default policy. The extract path
// is empty and must be set before extracting.
func DefaultExtractionOptions() *ExtractionOptions {
	return &ExtractionOptions{
		MaxTotalSize:    DefaultMaxTotalSize,
		MaxFileSize:     DefaultMaxFileSize,
		MaxFiles:        DefaultMaxFiles,
		MaxNestingLevel: DefaultMaxNestingLevel,
		ValidatePaths:   true,
	}
}

// ExtractionOption is a function pointer to implement the option pattern
type ExtractionOption func(*ExtractionOptions)

// NewExtractionOptions returns the default policy for extractPath adjusted by opts.
func NewExtractionOptions(extractPath string, opts ...ExtractionOption) *ExtractionOptions {
	o := DefaultExtractionOptions()
	o.ExtractPath = extractPath
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// WithMaxTotalSize options pattern function to set the maximum total size.
func WithMaxTotalSize(size uint64) ExtractionOption {
	return func(o *ExtractionOptions) {
		o.MaxTotalSize = size
	}
}

// WithMaxFileSize options pattern function to set the maximum size per file.
func WithMaxFileSize(size uint64) ExtractionOption {
	return func(o *ExtractionOptions) {
		o.MaxFileSize = size
	}
}

// WithMaxFiles options pattern function to set the maximum number of entries.
func WithMaxFiles(n uint32) ExtractionOption {
	return func(o *ExtractionOptions) {
		o.MaxFiles = n
	}
}

// WithMaxNestingLevel options pattern function to set the maximum nesting level.
func WithMaxNestingLevel(level uint32) ExtractionOption {
	return func(o *ExtractionOptions) {
		o.MaxNestingLevel = level
	}
}

// WithAllowedExtensions options pattern function to restrict file extensions.
func WithAllowedExtensions(exts ...string) ExtractionOption {
	return func(o *ExtractionOptions) {
		o.AllowedExtensions = exts
	}
}

// WithOverwrite options pattern function to allow replacing existing files.
func WithOverwrite(enable bool) ExtractionOption {
	return func(o *ExtractionOptions) {
		o.Overwrite = enable
	}
}

// WithValidatePaths options pattern function to toggle path sanitization.
func WithValidatePaths(enable bool) ExtractionOption {
	return func(o *ExtractionOptions) {
		o.ValidatePaths = enable
	}
}

// WithContinueOnError options pattern function to continue after per entry
// I/O failures.
func WithContinueOnError(enable bool) ExtractionOption {
	return func(o *ExtractionOptions) {
		o.ContinueOnError = enable
	}
}

// normalizedExtensions returns the allowed extensions in lower case with a
// leading dot. Empty values are dropped.
func (o *ExtractionOptions) normalizedExtensions() []string {
	exts := make([]string, 0, len(o.AllowedExtensions))
	for _, ext := range o.AllowedExtensions {
		ext = strings.ToLower(strings.TrimSpace(ext))
		if len(ext) == 0 || ext == "." {
			continue
		}
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		exts = append(exts, ext)
	}
	return exts
}

// extensionAllowed reports whether name ends with one of exts. Suffix matching
// lets multi part extensions like ".tar.gz" be allowed.
func extensionAllowed(name string, exts []string) bool {
	lower := strings.ToLower(name)
	for _, ext := range exts {
		if strings.HasSuffix(lower, ext) {
			return true
		}
	}
	return false
}
