// Copyright IBM Corp. 2023, 2025
// SPDX-License-Identifier: MPL-2.0

package safearchive

import (
	"io"
	"os"
	"strconv"

	"github.com/dustin/go-humanize"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// byteSize is a size in a policy file. It accepts plain integers as well as
// human readable sizes like "100 MiB" or "1GB".
type byteSize uint64

// UnmarshalYAML implements [yaml.Unmarshaler].
func (b *byteSize) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind != yaml.ScalarNode {
		return errors.Errorf("line %d: size must be a scalar", value.Line)
	}

	if value.Tag == "!!int" {
		n, err := strconv.ParseUint(value.Value, 0, 64)
		if err != nil {
			return errors.Wrapf(err, "line %d: invalid size", value.Line)
		}
		*b = byteSize(n)
		return nil
	}

	n, err := humanize.ParseBytes(value.Value)
	if err != nil {
		return errors.Wrapf(err, "line %d: invalid size", value.Line)
	}
	*b = byteSize(n)
	return nil
}

// policyFile is the document layout of a policy file. Unset keys keep the
// defaults of [DefaultExtractionOptions].
type policyFile struct {
	MaxTotalSize      *byteSize `yaml:"max_total_size"`
	MaxFileSize       *byteSize `yaml:"max_file_size"`
	MaxFiles          *uint32   `yaml:"max_files"`
	MaxNestingLevel   *uint32   `yaml:"max_nesting_level"`
	AllowedExtensions []string  `yaml:"allowed_extensions"`
	ExtractPath       string    `yaml:"extract_path"`
	Overwrite         *bool     `yaml:"overwrite"`
	ValidatePaths     *bool     `yaml:"validate_paths"`
	ContinueOnError   *bool     `yaml:"continue_on_error"`
}

// LoadPolicy reads [ExtractionOptions] from a YAML document. Unknown keys are
// rejected, missing keys keep their default. An empty document yields the
// defaults.
func LoadPolicy(r io.Reader) (*ExtractionOptions, error) {
	var pf policyFile
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&pf); err != nil && err != io.EOF {
		return nil, errors.Wrap(err, "cannot decode policy")
	}
	return pf.options(), nil
}

// LoadPolicyFile reads [ExtractionOptions] from the YAML file at path.
func LoadPolicyFile(path string) (*ExtractionOptions, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "cannot open policy")
	}
	defer f.Close()
	return LoadPolicy(f)
}

// options merges pf into the default policy.
func (pf *policyFile) options() *ExtractionOptions {
	o := DefaultExtractionOptions()
	if pf.MaxTotalSize != nil {
		o.MaxTotalSize = uint64(*pf.MaxTotalSize)
	}
	if pf.MaxFileSize != nil {
		o.MaxFileSize = uint64(*pf.MaxFileSize)
	}
	if pf.MaxFiles != nil {
		o.MaxFiles = *pf.MaxFiles
	}
	if pf.MaxNestingLevel != nil {
		o.MaxNestingLevel = *pf.MaxNestingLevel
	}
	if len(pf.AllowedExtensions) > 0 {
		o.AllowedExtensions = pf.AllowedExtensions
	}
	o.ExtractPath = pf.ExtractPath
	if pf.Overwrite != nil {
		o.Overwrite = *pf.Overwrite
	}
	if pf.ValidatePaths != nil {
		o.ValidatePaths = *pf.ValidatePaths
	}
	if pf.ContinueOnError != nil {
		o.ContinueOnError = *pf.ContinueOnError
	}
	return o
}
