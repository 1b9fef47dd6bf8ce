// Copyright IBM Corp. 2023, 2025
// SPDX-License-Identifier: MPL-2.0

package safearchive

import (
	"context"
	"errors"
	"testing"
)

// TestDetectNested implements test cases
func TestDetectNested(t *testing.T) {
	entries := []ArchiveEntry{
		{Path: "archives/", IsDirectory: true},
		{Path: "archives.zip/", IsDirectory: true},
		{Path: "archives/a.zip", Size: 10},
		{Path: "b.TAR.GZ", Size: 10},
		{Path: "c.txt", Size: 10},
		{Path: "d.7z", Size: 10},
	}

	got := DetectNested(entries)
	want := []string{"archives/a.zip", "b.TAR.GZ", "d.7z"}
	if len(got) != len(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("expected %v, got %v", want, got)
		}
	}
}

// nestedArchive creates a tar.gz that contains depth levels of nested zip
// archives. depth 0 is a plain archive.
func nestedArchive(t *testing.T, depth int) []byte {
	t.Helper()

	inner := packZip(t, []archiveContent{file("payload.txt", "payload")})
	for i := 1; i < depth; i++ {
		inner = packZip(t, []archiveContent{{name: "inner.zip", content: inner, mode: 0644}})
	}
	if depth == 0 {
		return packTarGz(t, []archiveContent{file("payload.txt", "payload")})
	}
	return packTarGz(t, []archiveContent{file("readme.txt", "readme"), {name: "inner.zip", content: inner, mode: 0644, fileType: '0'}})
}

// TestNestingLevelDefaultIsConservative documents the one level estimate
func TestNestingLevelDefaultIsConservative(t *testing.T) {
	for depth, want := range []uint32{0, 1, 1, 1} {
		path := writeArchive(t, "nested.tar.gz", nestedArchive(t, depth))
		info, err := New().AnalyzeArchive(context.Background(), path)
		if err != nil {
			t.Fatalf("depth %d: AnalyzeArchive() error = %v", depth, err)
		}
		if info.NestingLevel != want {
			t.Errorf("depth %d: expected estimated nesting level %d, got %d", depth, want, info.NestingLevel)
		}
	}
}

// TestNestingLevelRecursive measures the real depth if enabled
func TestNestingLevelRecursive(t *testing.T) {
	cases := []struct {
		name      string
		depth     int
		scanDepth uint32
		want      uint32
	}{
		{name: "plain", depth: 0, scanDepth: 5, want: 0},
		{name: "one level", depth: 1, scanDepth: 5, want: 1},
		{name: "three levels", depth: 3, scanDepth: 5, want: 3},
		{name: "bounded by scan depth", depth: 4, scanDepth: 2, want: 2},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			path := writeArchive(t, "nested.tar.gz", nestedArchive(t, tc.depth))
			info, err := New(WithNestedScanDepth(tc.scanDepth)).AnalyzeArchive(context.Background(), path)
			if err != nil {
				t.Fatalf("AnalyzeArchive() error = %v", err)
			}
			if info.NestingLevel != tc.want {
				t.Errorf("expected nesting level %d, got %d", tc.want, info.NestingLevel)
			}
		})
	}
}

// TestNestingLevelRejectedByValidation checks deep nesting against the policy
func TestNestingLevelRejectedByValidation(t *testing.T) {
	path := writeArchive(t, "nested.tar.gz", nestedArchive(t, 3))

	engine := New(WithNestedScanDepth(10))
	info, err := engine.AnalyzeArchive(context.Background(), path)
	if err != nil {
		t.Fatalf("AnalyzeArchive() error = %v", err)
	}
	if err := engine.Validate(context.Background(), info, DefaultExtractionOptions()); !errors.Is(err, ErrValidationFailed) {
		t.Errorf("expected ValidationFailed for 3 levels with a limit of 2, got %v", err)
	}
}

// TestNestingLevelOversizedMember checks that large members are not opened
func TestNestingLevelOversizedMember(t *testing.T) {
	path := writeArchive(t, "nested.tar.gz", nestedArchive(t, 3))

	info, err := New(WithNestedScanDepth(10), WithMaxNestedMemberSize(16)).AnalyzeArchive(context.Background(), path)
	if err != nil {
		t.Fatalf("AnalyzeArchive() error = %v", err)
	}
	if info.NestingLevel != 1 {
		t.Errorf("expected oversized member to count as one level, got %d", info.NestingLevel)
	}
}

// TestNestingLevelBrokenMember checks that unreadable members count as one level
func TestNestingLevelBrokenMember(t *testing.T) {
	path := writeArchive(t, "broken.tar", packTar(t, []archiveContent{file("inner.zip", "not a zip")}))

	info, err := New(WithNestedScanDepth(10)).AnalyzeArchive(context.Background(), path)
	if err != nil {
		t.Fatalf("AnalyzeArchive() error = %v", err)
	}
	if info.NestingLevel != 1 {
		t.Errorf("expected broken member to count as one level, got %d", info.NestingLevel)
	}
}

// TestCalculateNestingLevel checks the standalone helper
func TestCalculateNestingLevel(t *testing.T) {
	path := writeArchive(t, "nested.tar.gz", nestedArchive(t, 3))

	level, err := CalculateNestingLevel(context.Background(), path, 0, 10)
	if err != nil {
		t.Fatalf("CalculateNestingLevel() error = %v", err)
	}
	if level != 3 {
		t.Errorf("expected level 3, got %d", level)
	}

	level, err = CalculateNestingLevel(context.Background(), path, 0, 2)
	if err != nil {
		t.Fatalf("CalculateNestingLevel() error = %v", err)
	}
	if level != 2 {
		t.Errorf("expected level bounded to 2, got %d", level)
	}
}
