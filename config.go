// Copyright IBM Corp. 2023, 2025
// SPDX-License-Identifier: MPL-2.0

package safearchive

import (
	"context"
	"io"
	"io/fs"
	"log/slog"

	"github.com/hashicorp/go-safearchive/events"
)

// ConfigOption is a function pointer to implement the option pattern
type ConfigOption func(*Config)

// Config holds the engine wide settings. Per extraction policy is passed
// separately as [ExtractionOptions].
//
// The default configuration is secure by default: the input size is limited,
// nested archives are estimated conservatively and extracted files are not
// world readable.
type Config struct {
	// customCreateDirMode is the file mode for created directories (respecting umask)
	customCreateDirMode fs.FileMode

	// customFileMode is the file mode for extracted files (respecting umask)
	customFileMode fs.FileMode

	// eventSink receives security events
	eventSink events.Sink

	// logger stream for analysis and extraction
	logger logger

	// maxInputSize is the maximum size of the archive file.
	// Set value to -1 to disable the check.
	maxInputSize int64

	// maxNestedMemberSize is the maximum size of a nested archive that is
	// opened during nested archive inspection.
	maxNestedMemberSize int64

	// nestedScanDepth is the number of nesting levels the nested archive
	// detector is allowed to measure. 1 is the conservative one-level estimate.
	nestedScanDepth uint32

	// telemetryHook is a function to consume telemetry data after an operation
	telemetryHook TelemetryHook

	// verifyMagicBytes enables content sniffing on top of extension dispatch
	verifyMagicBytes bool
}

const (
	defaultCustomCreateDirMode = 0750          // default directory permissions rwxr-x---
	defaultCustomFileMode      = 0640          // default file permissions rw-r-----
	defaultMaxInputSize        = 1 << (10 * 3) // 1 Gb
	defaultMaxNestedMemberSize = 32 << 20      // 32 Mb
	defaultNestedScanDepth     = 1             // one level estimate, no recursion
	defaultVerifyMagicBytes    = false         // trust the file extension
)

var (
	// slog to discard
	defaultLogger = slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{}))
	// no operation telemetry hook
	defaultTelemetryHook = func(ctx context.Context, d *TelemetryData) {
		// noop
	}
)

// NewConfig is a generator option that takes opts as adjustments of the
// default configuration in an option pattern style.
func NewConfig(opts ...ConfigOption) *Config {
	config := &Config{
		customCreateDirMode: defaultCustomCreateDirMode,
		customFileMode:      defaultCustomFileMode,
		eventSink:           events.Noop,
		logger:              defaultLogger,
		maxInputSize:        defaultMaxInputSize,
		maxNestedMemberSize: defaultMaxNestedMemberSize,
		nestedScanDepth:     defaultNestedScanDepth,
		telemetryHook:       defaultTelemetryHook,
		verifyMagicBytes:    defaultVerifyMagicBytes,
	}

	for _, opt := range opts {
		opt(config)
	}

	return config
}

// CustomCreateDirMode returns the file mode for created directories.
func (c *Config) CustomCreateDirMode() fs.FileMode {
	return c.customCreateDirMode
}

// CustomFileMode returns the file mode for extracted files.
func (c *Config) CustomFileMode() fs.FileMode {
	return c.customFileMode
}

// EventSink returns the security event sink.
func (c *Config) EventSink() events.Sink {
	return c.eventSink
}

// Logger returns the logger.
func (c *Config) Logger() logger {
	return c.logger
}

// MaxInputSize returns the maximum size of an archive file.
func (c *Config) MaxInputSize() int64 {
	return c.maxInputSize
}

// MaxNestedMemberSize returns the maximum size of a nested archive that is
// inspected during nested archive detection.
func (c *Config) MaxNestedMemberSize() int64 {
	return c.maxNestedMemberSize
}

// NestedScanDepth returns the number of nesting levels the detector measures.
func (c *Config) NestedScanDepth() uint32 {
	return c.nestedScanDepth
}

// TelemetryHook returns the telemetry hook.
func (c *Config) TelemetryHook() TelemetryHook {
	if c.telemetryHook == nil {
		return defaultTelemetryHook
	}
	return c.telemetryHook
}

// VerifyMagicBytes returns true if the file content must match the format
// claimed by the file extension.
func (c *Config) VerifyMagicBytes() bool {
	return c.verifyMagicBytes
}

// WithCustomCreateDirMode options pattern function to set the file mode
// for created directories. (respecting umask)
func WithCustomCreateDirMode(mode fs.FileMode) ConfigOption {
	return func(c *Config) {
		c.customCreateDirMode = mode
	}
}

// WithCustomFileMode options pattern function to set the file mode for
// extracted files. (respecting umask)
func WithCustomFileMode(mode fs.FileMode) ConfigOption {
	return func(c *Config) {
		c.customFileMode = mode
	}
}

// WithEventSink options pattern function to set the security event sink.
func WithEventSink(sink events.Sink) ConfigOption {
	return func(c *Config) {
		if sink == nil {
			sink = events.Noop
		}
		c.eventSink = sink
	}
}

// WithLogger options pattern function to set a custom logger.
func WithLogger(logger logger) ConfigOption {
	return func(c *Config) {
		c.logger = logger
	}
}

// WithMaxInputSize options pattern function to set the maximum size of an
// archive file. (-1 to disable check)
func WithMaxInputSize(maxInputSize int64) ConfigOption {
	return func(c *Config) {
		c.maxInputSize = maxInputSize
	}
}

// WithMaxNestedMemberSize options pattern function to set the maximum size
// of a nested archive that is opened during nested archive detection.
func WithMaxNestedMemberSize(size int64) ConfigOption {
	return func(c *Config) {
		c.maxNestedMemberSize = size
	}
}

// WithNestedScanDepth options pattern function to set how many nesting levels
// are measured. 1 keeps the conservative estimate (0 or 1), larger values open
// nested archives recursively up to that depth. 0 is treated as 1.
func WithNestedScanDepth(depth uint32) ConfigOption {
	return func(c *Config) {
		if depth == 0 {
			depth = 1
		}
		c.nestedScanDepth = depth
	}
}

// WithTelemetryHook options pattern function to set a [TelemetryHook], which
// is called after every analysis and extraction.
func WithTelemetryHook(hook TelemetryHook) ConfigOption {
	return func(c *Config) {
		c.telemetryHook = hook
	}
}

// WithVerifyMagicBytes options pattern function to require that the file
// content matches the format derived from the file extension.
func WithVerifyMagicBytes(verify bool) ConfigOption {
	return func(c *Config) {
		c.verifyMagicBytes = verify
	}
}
