// Copyright IBM Corp. 2023, 2025
// SPDX-License-Identifier: MPL-2.0

package safearchive

import (
	"context"
	"encoding/json"
	"time"
)

// Operations reported in [TelemetryData.Operation].
const (
	OperationAnalyze = "analyze"
	OperationExtract = "extract"
)

// TelemetryData holds all telemetry data of an analysis or extraction.
type TelemetryData struct {
	// Operation is either "analyze" or "extract"
	Operation string `json:"operation"`

	// ArchiveType is the detected format of the archive
	ArchiveType string `json:"archive_type"`

	// Duration is the time the operation took
	Duration time.Duration `json:"duration"`

	// Entries is the number of enumerated entries
	Entries int64 `json:"entries"`

	// ExtractedFiles is the number of extracted files
	ExtractedFiles int64 `json:"extracted_files"`

	// ExtractionErrors is the number of errors during extraction
	ExtractionErrors int64 `json:"extraction_errors"`

	// ExtractionSize is the size of the extracted files
	ExtractionSize int64 `json:"extraction_size"`

	// InputSize is the size of the archive file
	InputSize int64 `json:"input_size"`

	// LastError is the error the operation ended with, if any
	LastError error `json:"last_error"`

	// SkippedEntries is the number of entries skipped with a warning
	SkippedEntries int64 `json:"skipped_entries"`

	// Streaming is true if the extraction used the streaming mode
	Streaming bool `json:"streaming"`

	// Suspicious is true if the analysis raised at least one warning
	Suspicious bool `json:"suspicious"`
}

// String returns a string representation of [TelemetryData].
func (m TelemetryData) String() string {
	b, _ := json.Marshal(m)
	return string(b)
}

// MarshalJSON implements the [encoding/json.Marshaler] interface.
func (m TelemetryData) MarshalJSON() ([]byte, error) {
	var lastError string
	if m.LastError != nil {
		lastError = m.LastError.Error()
	}

	type Alias TelemetryData
	return json.Marshal(&struct {
		LastError string `json:"last_error"`
		*Alias
	}{
		LastError: lastError,
		Alias:     (*Alias)(&m),
	})
}

// TelemetryHook is a function type that performs operations on [TelemetryData]
// after an analysis or extraction has finished, for example to submit the
// [TelemetryData] to a telemetry service.
type TelemetryHook func(context.Context, *TelemetryData)

// now is replaced in tests
var now = time.Now

// captureDuration stores the time since start in td.
func captureDuration(td *TelemetryData, start time.Time) {
	td.Duration = now().Sub(start)
}
