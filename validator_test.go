// Copyright IBM Corp. 2023, 2025
// SPDX-License-Identifier: MPL-2.0

package safearchive

import (
	"errors"
	"strings"
	"testing"
)

// violatedLimits returns the limit names of err
func violatedLimits(t *testing.T, err error) []string {
	t.Helper()

	var ase *ArchiveSecurityError
	if !errors.As(err, &ase) {
		t.Fatalf("expected ArchiveSecurityError, got %v", err)
	}
	if ase.Code != CodeValidationFailed {
		t.Fatalf("expected ValidationFailed, got %s", ase.Code)
	}
	limits := make([]string, 0, len(ase.Violations))
	for _, v := range ase.Violations {
		limits = append(limits, v.Limit)
	}
	return limits
}

// TestValidateArchiveInfo implements test cases
func TestValidateArchiveInfo(t *testing.T) {
	smallInfo := Analyze([]ArchiveEntry{
		{Path: "docs/", IsDirectory: true},
		{Path: "docs/a.txt", Size: 100},
		{Path: "docs/b.png", Size: 200},
	}, 200)

	cases := []struct {
		name       string
		info       *ArchiveInfo
		opts       *ExtractionOptions
		wantLimits []string
	}{
		{
			name: "defaults",
			info: smallInfo,
			opts: DefaultExtractionOptions(),
		},
		{
			name: "nil options use defaults",
			info: smallInfo,
		},
		{
			name:       "total size",
			info:       smallInfo,
			opts:       NewExtractionOptions("", WithMaxTotalSize(299)),
			wantLimits: []string{LimitMaxTotalSize},
		},
		{
			name: "total size at the limit",
			info: smallInfo,
			opts: NewExtractionOptions("", WithMaxTotalSize(300)),
		},
		{
			name:       "file count includes directories",
			info:       smallInfo,
			opts:       NewExtractionOptions("", WithMaxFiles(2)),
			wantLimits: []string{LimitMaxFiles},
		},
		{
			name:       "file size",
			info:       smallInfo,
			opts:       NewExtractionOptions("", WithMaxFileSize(150)),
			wantLimits: []string{LimitMaxFileSize},
		},
		{
			name:       "extensions",
			info:       smallInfo,
			opts:       NewExtractionOptions("", WithAllowedExtensions("TXT")),
			wantLimits: []string{LimitAllowedExtensions},
		},
		{
			name: "extensions with dot and case",
			info: smallInfo,
			opts: NewExtractionOptions("", WithAllowedExtensions(".txt", ".PNG")),
		},
		{
			name: "nesting level",
			info: Analyze([]ArchiveEntry{{Path: "a.zip", Size: 1}}, 100),
			opts: NewExtractionOptions("", WithMaxNestingLevel(0)),
			wantLimits: []string{
				LimitMaxNestingLevel,
			},
		},
		{
			name:       "all violations are reported",
			info:       smallInfo,
			opts:       NewExtractionOptions("", WithMaxTotalSize(1), WithMaxFiles(1), WithMaxFileSize(1), WithAllowedExtensions("md")),
			wantLimits: []string{LimitMaxTotalSize, LimitMaxFiles, LimitMaxFileSize, LimitMaxFileSize, LimitAllowedExtensions, LimitAllowedExtensions},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := ValidateArchiveInfo(tc.info, tc.opts)
			if len(tc.wantLimits) == 0 {
				if err != nil {
					t.Fatalf("expected no error, got %v", err)
				}
				return
			}

			got := violatedLimits(t, err)
			if strings.Join(got, ",") != strings.Join(tc.wantLimits, ",") {
				t.Errorf("expected violations %v, got %v", tc.wantLimits, got)
			}
		})
	}
}

// TestValidateCriticalRatio checks the decompression bomb threshold
func TestValidateCriticalRatio(t *testing.T) {
	// 1 byte compressed, 10 MB declared
	info := Analyze([]ArchiveEntry{{Path: "bomb.bin", Size: 10_000_000, CompressedSize: 1}}, 1)
	if info.CompressionRatio <= CriticalCompressionRatio {
		t.Fatalf("expected ratio > %d, got %f", CriticalCompressionRatio, info.CompressionRatio)
	}

	err := ValidateArchiveInfo(info, DefaultExtractionOptions())
	limits := violatedLimits(t, err)
	if len(limits) != 1 || limits[0] != LimitCompressionRatio {
		t.Fatalf("expected a single ratio violation, got %v", limits)
	}
	if !strings.Contains(err.Error(), "critical") {
		t.Errorf("expected message to reference the critical ratio, got %q", err.Error())
	}
}

// TestValidateMessagesAreReadable checks the rendered sizes
func TestValidateMessagesAreReadable(t *testing.T) {
	info := Analyze([]ArchiveEntry{{Path: "big.iso", Size: 3 << 30}}, 2<<30)

	err := ValidateArchiveInfo(info, DefaultExtractionOptions())
	if err == nil {
		t.Fatalf("expected error")
	}
	for _, want := range []string{"3.0 GiB", "1.0 GiB", "100 MiB", `"big.iso"`} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("expected %q in %q", want, err.Error())
		}
	}
}

// TestValidateNilInfo checks that a missing analysis is rejected
func TestValidateNilInfo(t *testing.T) {
	if err := ValidateArchiveInfo(nil, nil); !errors.Is(err, ErrValidationFailed) {
		t.Errorf("expected ValidationFailed, got %v", err)
	}
}

// TestErrorRenderingIsBounded checks that long violation lists are summarized
func TestErrorRenderingIsBounded(t *testing.T) {
	entries := make([]ArchiveEntry, 0, 20)
	for i := 0; i < 20; i++ {
		entries = append(entries, ArchiveEntry{Path: strings.Repeat("x", i+1) + ".exe", Size: 1})
	}

	err := ValidateArchiveInfo(Analyze(entries, 100), NewExtractionOptions("", WithAllowedExtensions("txt")))
	if len(violatedLimits(t, err)) != 20 {
		t.Fatalf("expected 20 violations")
	}
	if !strings.Contains(err.Error(), "and 10 more") {
		t.Errorf("expected summarized error, got %q", err.Error())
	}
}
