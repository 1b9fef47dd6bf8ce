// Copyright IBM Corp. 2023, 2025
// SPDX-License-Identifier: MPL-2.0

package safearchive

import (
	"context"
	"fmt"
	"reflect"
	"strings"
	"testing"
)

// hasWarning reports whether one of warnings starts with prefix
func hasWarning(warnings []string, prefix string) bool {
	for _, w := range warnings {
		if strings.HasPrefix(w, prefix) {
			return true
		}
	}
	return false
}

// TestAnalyzeTotals checks the size invariant and the ratio
func TestAnalyzeTotals(t *testing.T) {
	entries := []ArchiveEntry{
		{Path: "dir/", IsDirectory: true, Size: 4096},
		{Path: "dir/a.txt", Size: 1500},
		{Path: "dir/b.txt", Size: 2500},
	}

	info := Analyze(entries, 2000)

	if info.TotalFiles != 3 {
		t.Errorf("expected 3 entries, got %d", info.TotalFiles)
	}
	if info.TotalUncompressedSize != 4000 {
		t.Errorf("expected directories to be excluded from the total, got %d", info.TotalUncompressedSize)
	}
	if info.TotalCompressedSize != 2000 {
		t.Errorf("expected compressed size 2000, got %d", info.TotalCompressedSize)
	}
	if info.CompressionRatio != 2 {
		t.Errorf("expected ratio 2, got %f", info.CompressionRatio)
	}
	if info.IsSuspicious || len(info.Warnings) != 0 {
		t.Errorf("expected no warnings, got %v", info.Warnings)
	}
}

// TestAnalyzeZeroCompressedSize checks that the ratio stays finite
func TestAnalyzeZeroCompressedSize(t *testing.T) {
	info := Analyze([]ArchiveEntry{{Path: "a", Size: 50}}, 0)
	if info.CompressionRatio != 50 {
		t.Errorf("expected ratio 50, got %f", info.CompressionRatio)
	}

	empty := Analyze(nil, 0)
	if empty.CompressionRatio != 0 || empty.IsSuspicious {
		t.Errorf("expected empty archive to be harmless, got %+v", empty)
	}
}

// TestAnalyzeHeuristics implements test cases
func TestAnalyzeHeuristics(t *testing.T) {
	manySmall := make([]ArchiveEntry, 0, 1001)
	for i := 0; i < 1001; i++ {
		manySmall = append(manySmall, ArchiveEntry{Path: fmt.Sprintf("f%d.txt", i), Size: 10})
	}
	exactlyThousand := manySmall[:1000]

	cases := []struct {
		name           string
		entries        []ArchiveEntry
		compressedSize uint64
		wantWarning    string
		wantSuspicious bool
	}{
		{
			name:           "high compression ratio",
			entries:        []ArchiveEntry{{Path: "a", Size: 10100}},
			compressedSize: 100,
			wantWarning:    WarningHighCompressionRatio,
			wantSuspicious: true,
		},
		{
			name:           "ratio of exactly 100",
			entries:        []ArchiveEntry{{Path: "a", Size: 10000}},
			compressedSize: 100,
		},
		{
			name:           "many small files",
			entries:        manySmall,
			compressedSize: 100000,
			wantWarning:    WarningManySmallFiles,
			wantSuspicious: true,
		},
		{
			name:           "exactly 1000 small files",
			entries:        exactlyThousand,
			compressedSize: 100000,
		},
		{
			name: "duplicate names in different directories",
			entries: []ArchiveEntry{
				{Path: "dir1/a.txt", Size: 1},
				{Path: "dir2/a.txt", Size: 1},
			},
			compressedSize: 100,
			wantWarning:    WarningDuplicateFileNames,
			wantSuspicious: true,
		},
		{
			name: "duplicate directory names are fine",
			entries: []ArchiveEntry{
				{Path: "a/docs/", IsDirectory: true},
				{Path: "b/docs/", IsDirectory: true},
			},
			compressedSize: 100,
		},
		{
			name:           "parent directory traversal",
			entries:        []ArchiveEntry{{Path: "../../etc/passwd", Size: 1}},
			compressedSize: 100,
			wantWarning:    WarningPathTraversal,
			wantSuspicious: true,
		},
		{
			name:           "windows traversal",
			entries:        []ArchiveEntry{{Path: `..\..\evil.exe`, Size: 1}},
			compressedSize: 100,
			wantWarning:    WarningPathTraversal,
			wantSuspicious: true,
		},
		{
			name:           "absolute path",
			entries:        []ArchiveEntry{{Path: "/etc/passwd", Size: 1}},
			compressedSize: 100,
			wantWarning:    WarningPathTraversal,
			wantSuspicious: true,
		},
		{
			name:           "absolute windows path",
			entries:        []ArchiveEntry{{Path: `\windows\system32\evil.dll`, Size: 1}},
			compressedSize: 100,
			wantWarning:    WarningPathTraversal,
			wantSuspicious: true,
		},
		{
			name:           "nested archive",
			entries:        []ArchiveEntry{{Path: "inner.zip", Size: 100}},
			compressedSize: 100,
			wantWarning:    WarningNestedArchives,
			wantSuspicious: true,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			info := Analyze(tc.entries, tc.compressedSize)
			if info.IsSuspicious != tc.wantSuspicious {
				t.Errorf("expected suspicious %v, got %v (%v)", tc.wantSuspicious, info.IsSuspicious, info.Warnings)
			}
			if len(tc.wantWarning) > 0 && !hasWarning(info.Warnings, tc.wantWarning) {
				t.Errorf("expected warning %q, got %v", tc.wantWarning, info.Warnings)
			}
			if len(tc.wantWarning) == 0 && len(info.Warnings) > 0 {
				t.Errorf("expected no warnings, got %v", info.Warnings)
			}
		})
	}
}

// TestAnalyzeAllHeuristicsRun checks that heuristics do not short-circuit
func TestAnalyzeAllHeuristicsRun(t *testing.T) {
	entries := []ArchiveEntry{
		{Path: "../a.txt", Size: 1 << 20},
		{Path: "b/a.txt", Size: 1 << 20},
		{Path: "c.tar.gz", Size: 10},
	}

	info := Analyze(entries, 10)
	for _, w := range []string{WarningHighCompressionRatio, WarningDuplicateFileNames, WarningPathTraversal, WarningNestedArchives} {
		if !hasWarning(info.Warnings, w) {
			t.Errorf("expected warning %q, got %v", w, info.Warnings)
		}
	}
	if info.NestingLevel != 1 {
		t.Errorf("expected nesting level 1, got %d", info.NestingLevel)
	}
}

// TestAnalyzeArchiveIdempotent checks that analyzing twice yields identical results
func TestAnalyzeArchiveIdempotent(t *testing.T) {
	path := writeArchive(t, "a.zip", packZip(t, []archiveContent{
		dir("dir1/"),
		file("dir1/a.txt", "hello"),
		file("dir2/a.txt", "world"),
		file("../../etc/passwd", "root"),
	}))

	engine := New()
	first, err := engine.AnalyzeArchive(context.Background(), path)
	if err != nil {
		t.Fatalf("AnalyzeArchive() error = %v", err)
	}
	second, err := engine.AnalyzeArchive(context.Background(), path)
	if err != nil {
		t.Fatalf("AnalyzeArchive() error = %v", err)
	}

	if !reflect.DeepEqual(first, second) {
		t.Errorf("expected identical analysis, got %+v and %+v", first, second)
	}
	if first.Format != FormatZip {
		t.Errorf("expected zip format, got %s", first.Format)
	}
	if !first.IsSuspicious || !hasWarning(first.Warnings, WarningPathTraversal) {
		t.Errorf("expected traversal warning, got %v", first.Warnings)
	}

	var sum uint64
	for _, e := range first.Entries {
		if !e.IsDirectory {
			sum += e.Size
		}
	}
	if sum != first.TotalUncompressedSize {
		t.Errorf("expected total %d, got %d", sum, first.TotalUncompressedSize)
	}
}

// TestAnalyzeArchiveUnsupported checks that unsupported archives are rejected
func TestAnalyzeArchiveUnsupported(t *testing.T) {
	path := writeArchive(t, "a.7z", []byte("7z"))
	if _, err := New().AnalyzeArchive(context.Background(), path); err == nil || !strings.HasPrefix(err.Error(), string(CodeUnsupportedFormat)) {
		t.Errorf("expected UnsupportedFormat, got %v", err)
	}
}
