// Copyright IBM Corp. 2023, 2025
// SPDX-License-Identifier: MPL-2.0

package safearchive

import (
	"context"
	"path/filepath"

	"github.com/hashicorp/go-safearchive/events"
)

// Engine analyzes, validates and extracts archives. An Engine holds no per
// call state and is safe for concurrent use.
type Engine struct {
	cfg *Config
}

// New creates an Engine with the default configuration adjusted by opts.
func New(opts ...ConfigOption) *Engine {
	return NewWithConfig(NewConfig(opts...))
}

// NewWithConfig creates an Engine for cfg. A nil cfg uses the defaults.
func NewWithConfig(cfg *Config) *Engine {
	if cfg == nil {
		cfg = NewConfig()
	}
	return &Engine{cfg: cfg}
}

// Config returns the configuration of the engine.
func (e *Engine) Config() *Config {
	return e.cfg
}

// AnalyzeArchive enumerates the archive at path and returns the aggregated
// [ArchiveInfo]. The archive is never extracted. Suspicious archives are not
// rejected, use [Engine.Validate] for that.
func (e *Engine) AnalyzeArchive(ctx context.Context, path string) (*ArchiveInfo, error) {
	td := &TelemetryData{Operation: OperationAnalyze}
	defer e.cfg.TelemetryHook()(ctx, td)
	defer captureDuration(td, now())

	info, err := e.analyzeArchive(ctx, path, td)
	if err != nil {
		td.LastError = err
		return nil, err
	}
	return info, nil
}

// analyzeArchive runs format detection, enumeration, nested archive detection
// and the analyzer, and emits the analysis events.
func (e *Engine) analyzeArchive(ctx context.Context, path string, td *TelemetryData) (*ArchiveInfo, error) {
	name := filepath.Base(path)
	log := e.cfg.Logger()

	format, err := DetectFormat(path)
	if err != nil {
		log.Info("archive format not supported", "archive", name)
		return nil, err
	}
	td.ArchiveType = format.String()

	if e.cfg.VerifyMagicBytes() {
		if err := verifyFormat(path, format); err != nil {
			log.Warn("archive content does not match extension", "archive", name, "format", format.String())
			return nil, err
		}
	}

	f, size, err := openArchiveFile(path, e.cfg.MaxInputSize())
	if err != nil {
		return nil, err
	}
	defer f.Close()
	td.InputSize = size

	entries, err := enumerate(ctx, f, size, format)
	if err != nil {
		log.Warn("archive enumeration failed", "archive", name, "error", err)
		return nil, err
	}
	td.Entries = int64(len(entries))

	scanner := &nestingScanner{maxMemberSize: e.cfg.MaxNestedMemberSize(), logger: log}
	level, err := scanner.level(ctx, f, size, format, entries, 0, e.cfg.NestedScanDepth())
	if err != nil {
		return nil, err
	}

	info := analyze(entries, uint64(size), level, DetectNested(entries))
	info.Format = format
	td.Suspicious = info.IsSuspicious

	log.Debug("archive analyzed", "archive", name, "format", format.String(), "entries", info.TotalFiles,
		"uncompressed", info.TotalUncompressedSize, "ratio", info.CompressionRatio)

	e.emit(ctx, events.Event{
		Name:     events.ArchiveAnalyzed,
		Severity: events.SeverityInfo,
		Archive:  name,
		Details: map[string]any{
			"format":            format.String(),
			"total_files":       info.TotalFiles,
			"uncompressed_size": info.TotalUncompressedSize,
			"compression_ratio": info.CompressionRatio,
			"nesting_level":     info.NestingLevel,
		},
	})
	if info.IsSuspicious {
		e.emit(ctx, events.Event{
			Name:     events.ArchiveSuspicious,
			Severity: events.SeverityWarning,
			Archive:  name,
			Details:  map[string]any{"warnings": info.Warnings},
		})
	}
	if info.CompressionRatio > CriticalCompressionRatio {
		e.emit(ctx, events.Event{
			Name:     events.ArchiveDecompressionBomb,
			Severity: events.SeverityCritical,
			Archive:  name,
			Details:  map[string]any{"compression_ratio": info.CompressionRatio},
		})
	}

	return info, nil
}

// Validate checks info against opts, see [ValidateArchiveInfo]. A failed
// validation is reported to the event sink.
func (e *Engine) Validate(ctx context.Context, info *ArchiveInfo, opts *ExtractionOptions) error {
	return e.validate(ctx, "", info, opts)
}

func (e *Engine) validate(ctx context.Context, archive string, info *ArchiveInfo, opts *ExtractionOptions) error {
	err := ValidateArchiveInfo(info, opts)
	if err == nil {
		return nil
	}

	limits := make([]string, 0)
	if ase, ok := err.(*ArchiveSecurityError); ok {
		for _, v := range ase.Violations {
			limits = append(limits, v.Limit)
		}
	}
	e.cfg.Logger().Warn("archive validation failed", "archive", archive, "violations", len(limits))
	e.emit(ctx, events.Event{
		Name:     events.ArchiveValidationFailed,
		Severity: events.SeverityWarning,
		Archive:  archive,
		Details:  map[string]any{"limits": limits},
	})
	return err
}

// emit stamps ev with the current time and hands it to the event sink.
func (e *Engine) emit(ctx context.Context, ev events.Event) {
	ev.Time = now()
	e.cfg.EventSink().Emit(ctx, ev)
}
