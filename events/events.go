// Copyright IBM Corp. 2023, 2025
// SPDX-License-Identifier: MPL-2.0

// Package events defines the security event collaborator of the engine.
//
// The engine never persists audit records itself. Every noteworthy outcome of an
// analysis or extraction, e.g., a detected decompression bomb or a blocked path
// traversal, is handed to a [Sink] as an [Event] with a name and a [Severity].
package events

import (
	"context"
	"time"
)

// Severity of an [Event].
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// Event names emitted by the engine.
const (
	ArchiveAnalyzed          = "archive.analyzed"
	ArchiveSuspicious        = "archive.suspicious"
	ArchiveDecompressionBomb = "archive.decompression_bomb"
	ArchiveValidationFailed  = "archive.validation_failed"
	ExtractionTraversal      = "extraction.path_traversal_blocked"
	ExtractionFileExists     = "extraction.file_exists"
	ExtractionUnsupported    = "extraction.unsupported_entry"
	ExtractionLimitExceeded  = "extraction.limit_exceeded"
	ExtractionCancelled      = "extraction.cancelled"
	ExtractionCompleted      = "extraction.completed"
	ExtractionEntryFailed    = "extraction.entry_failed"
)

// Event is a structured security event.
type Event struct {
	// Name is one of the event name constants of this package.
	Name string `json:"name"`

	// Severity of the event.
	Severity Severity `json:"severity"`

	// Archive is the base name of the archive. Full paths are never emitted.
	Archive string `json:"archive,omitempty"`

	// Entry is the archive member the event refers to, as stored in the archive.
	Entry string `json:"entry,omitempty"`

	// Details holds additional structured values.
	Details map[string]any `json:"details,omitempty"`

	// Time the event occurred.
	Time time.Time `json:"time"`
}

//go:generate mockgen -destination=eventsmock/sink.go -package=eventsmock github.com/hashicorp/go-safearchive/events Sink

// Sink consumes security events. Implementations must be safe for concurrent use.
type Sink interface {
	Emit(ctx context.Context, ev Event)
}

// SinkFunc adapts a function to the [Sink] interface.
type SinkFunc func(ctx context.Context, ev Event)

// Emit calls f(ctx, ev).
func (f SinkFunc) Emit(ctx context.Context, ev Event) {
	f(ctx, ev)
}

// Noop is a [Sink] that drops all events.
var Noop Sink = SinkFunc(func(context.Context, Event) {})
