// Copyright IBM Corp. 2023, 2025
// SPDX-License-Identifier: MPL-2.0

package safearchive

import (
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strings"

	"github.com/dustin/go-humanize"
)

// ArchiveEntry is the metadata of one archive member, as declared by the archive.
type ArchiveEntry struct {
	// Path is the member name as stored in the archive. It is untrusted.
	Path string `json:"path"`

	// Size is the declared uncompressed size.
	Size uint64 `json:"size"`

	// CompressedSize is the declared compressed size. Tar members report their
	// stored size, members of a tar.gz report 0.
	CompressedSize uint64 `json:"compressed_size"`

	// IsDirectory is true for directory members.
	IsDirectory bool `json:"is_directory"`

	// Mode holds the file mode including the type bits, e.g. fs.ModeSymlink.
	Mode fs.FileMode `json:"mode"`
}

// ArchiveInfo is the aggregated result of an analysis.
type ArchiveInfo struct {
	Format                Format         `json:"format"`
	TotalFiles            uint64         `json:"total_files"`
	TotalUncompressedSize uint64         `json:"total_uncompressed_size"`
	TotalCompressedSize   uint64         `json:"total_compressed_size"`
	CompressionRatio      float64        `json:"compression_ratio"`
	Entries               []ArchiveEntry `json:"entries"`
	NestingLevel          uint32         `json:"nesting_level"`
	NestedArchives        []string       `json:"nested_archives,omitempty"`
	IsSuspicious          bool           `json:"is_suspicious"`
	Warnings              []string       `json:"warnings"`
}

const (
	// SuspiciousCompressionRatio is the ratio above which an archive is flagged.
	SuspiciousCompressionRatio = 100

	// CriticalCompressionRatio is the ratio above which validation always fails,
	// independent of the configured limits.
	CriticalCompressionRatio = 1000

	// smallFileSize is the size below which a file counts as small.
	smallFileSize = 1024

	// smallFileCountThreshold is the number of small files above which an archive is flagged.
	smallFileCountThreshold = 1000

	// maxListedNames limits the names quoted in a single warning.
	maxListedNames = 5
)

// Warning prefixes produced by the analyzer.
const (
	WarningHighCompressionRatio = "high compression ratio"
	WarningManySmallFiles       = "large number of small files"
	WarningDuplicateFileNames   = "duplicate file names"
	WarningPathTraversal        = "path traversal attempts detected"
	WarningNestedArchives       = "nested archives detected"
)

// Analyze aggregates entries of an archive with the given compressed file size.
// Nested archives are estimated conservatively: the nesting level is 1 if any
// member carries an archive extension, 0 otherwise. Analyze never rejects.
func Analyze(entries []ArchiveEntry, compressedFileSize uint64) *ArchiveInfo {
	nested := DetectNested(entries)
	var level uint32
	if len(nested) > 0 {
		level = 1
	}
	return analyze(entries, compressedFileSize, level, nested)
}

// analyze computes totals and runs all suspicion heuristics. None of the
// heuristics short-circuits.
func analyze(entries []ArchiveEntry, compressedFileSize uint64, nestingLevel uint32, nested []string) *ArchiveInfo {
	info := &ArchiveInfo{
		TotalFiles:          uint64(len(entries)),
		TotalCompressedSize: compressedFileSize,
		Entries:             entries,
		NestingLevel:        nestingLevel,
		NestedArchives:      nested,
		Warnings:            []string{},
	}

	var smallFiles int
	for _, e := range entries {
		if e.IsDirectory {
			continue
		}
		info.TotalUncompressedSize += e.Size
		if e.Size < smallFileSize {
			smallFiles++
		}
	}
	info.CompressionRatio = compressionRatio(info.TotalUncompressedSize, compressedFileSize)

	if info.CompressionRatio > SuspiciousCompressionRatio {
		info.Warnings = append(info.Warnings, fmt.Sprintf("%s (%.1f:1)", WarningHighCompressionRatio, info.CompressionRatio))
	}

	if smallFiles > smallFileCountThreshold {
		info.Warnings = append(info.Warnings, fmt.Sprintf("%s (%d files smaller than %s)",
			WarningManySmallFiles, smallFiles, humanize.IBytes(smallFileSize)))
	}

	if dups := duplicateBaseNames(entries); len(dups) > 0 {
		info.Warnings = append(info.Warnings, fmt.Sprintf("%s: %s", WarningDuplicateFileNames, listNames(dups)))
	}

	if attempts := traversalAttempts(entries); len(attempts) > 0 {
		info.Warnings = append(info.Warnings, fmt.Sprintf("%s: %s", WarningPathTraversal, listNames(attempts)))
	}

	if nestingLevel > 0 {
		info.Warnings = append(info.Warnings, fmt.Sprintf("%s (level %d): %s", WarningNestedArchives, nestingLevel, listNames(nested)))
	}

	info.IsSuspicious = len(info.Warnings) > 0
	return info
}

// compressionRatio divides uncompressed by compressed, using 1 as the floor
// of the denominator so that the result is always finite.
func compressionRatio(uncompressed, compressed uint64) float64 {
	return float64(uncompressed) / float64(max(compressed, 1))
}

// duplicateBaseNames returns the sorted base names that occur more than once
// among non-directory entries.
func duplicateBaseNames(entries []ArchiveEntry) []string {
	seen := make(map[string]int, len(entries))
	for _, e := range entries {
		if e.IsDirectory {
			continue
		}
		seen[path.Base(normalizeSeparators(e.Path))]++
	}

	var dups []string
	for name, n := range seen {
		if n > 1 {
			dups = append(dups, name)
		}
	}
	sort.Strings(dups)
	return dups
}

// traversalAttempts returns entry paths containing ".." or starting with "/".
func traversalAttempts(entries []ArchiveEntry) []string {
	var attempts []string
	for _, e := range entries {
		p := normalizeSeparators(e.Path)
		if strings.Contains(p, "..") || strings.HasPrefix(p, "/") {
			attempts = append(attempts, e.Path)
		}
	}
	return attempts
}

// normalizeSeparators converts windows path separators to slashes.
func normalizeSeparators(p string) string {
	return strings.ReplaceAll(p, `\`, "/")
}

// listNames quotes the first names and summarizes the rest.
func listNames(names []string) string {
	quoted := make([]string, 0, maxListedNames)
	for i, n := range names {
		if i == maxListedNames {
			break
		}
		quoted = append(quoted, fmt.Sprintf("%q", n))
	}
	s := strings.Join(quoted, ", ")
	if rest := len(names) - maxListedNames; rest > 0 {
		s = fmt.Sprintf("%s and %d more", s, rest)
	}
	return s
}
