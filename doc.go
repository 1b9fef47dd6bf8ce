// Copyright IBM Corp. 2023, 2025
// SPDX-License-Identifier: MPL-2.0

// Package safearchive analyzes untrusted zip, tar and tar.gz archives and
// extracts them within caller defined limits.
//
// Analysis reads only archive metadata. [Engine.AnalyzeArchive] returns an
// [ArchiveInfo] with totals, the compression ratio, the nesting level of
// archives within the archive and the warnings of several heuristics, e.g.
// for decompression bombs or path traversal attempts. [ValidateArchiveInfo]
// checks an [ArchiveInfo] against [ExtractionOptions] and reports every
// violated limit at once.
//
// [Engine.ExtractArchive] and [Engine.ExtractArchiveStreaming] analyze and
// validate before the first byte is written. Entries with unsafe paths, or
// whose destination already exists, are skipped with a warning. The size
// limits are enforced again on the bytes actually written.
//
// Engine wide settings are done using the [Config], with the logger, the
// security event sink, the telemetry hook and the maximum input size.
// Security events are described in package events.
package safearchive
