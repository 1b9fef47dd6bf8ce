// Copyright IBM Corp. 2023, 2025
// SPDX-License-Identifier: MPL-2.0

package main

import (
	"bytes"
	"context"
	"encoding/json"

	safearchive "github.com/hashicorp/go-safearchive"
	"github.com/pkg/errors"
)

// Request is the lambda invocation payload.
type Request struct {
	// Archive is the path of the archive, e.g. on a mounted EFS volume.
	Archive string `json:"archive"`

	// ExtractPath is the extraction root. It overrides the one of Policy.
	ExtractPath string `json:"extract_path"`

	// Extract enables extraction after analysis and validation.
	Extract bool `json:"extract"`

	// Stream selects the streaming extraction mode.
	Stream bool `json:"stream"`

	// Policy overrides the default extraction options. Omitted fields keep
	// their default value.
	Policy json.RawMessage `json:"policy,omitempty"`
}

// options merges the request policy onto the default extraction options.
func (r Request) options() (*safearchive.ExtractionOptions, error) {
	opts := safearchive.DefaultExtractionOptions()
	if len(r.Policy) > 0 && !bytes.Equal(bytes.TrimSpace(r.Policy), []byte("null")) {
		dec := json.NewDecoder(bytes.NewReader(r.Policy))
		dec.DisallowUnknownFields()
		if err := dec.Decode(opts); err != nil {
			return nil, errors.Wrap(err, "invalid policy")
		}
	}
	if len(r.ExtractPath) > 0 {
		opts.ExtractPath = r.ExtractPath
	}
	return opts, nil
}

// Response is the lambda result payload. Engine errors are reported in the
// payload, not as invocation errors.
type Response struct {
	Info       *safearchive.ArchiveInfo      `json:"info,omitempty"`
	Result     *safearchive.ExtractionResult `json:"result,omitempty"`
	ErrorCode  safearchive.ErrorCode         `json:"error_code,omitempty"`
	Message    string                        `json:"message,omitempty"`
	Violations []safearchive.Violation       `json:"violations,omitempty"`
}

// newHandler returns the lambda handler for engine.
func newHandler(engine *safearchive.Engine) func(context.Context, Request) (Response, error) {
	return func(ctx context.Context, req Request) (Response, error) {
		if len(req.Archive) == 0 {
			return Response{}, errors.New("no archive given")
		}

		opts, err := req.options()
		if err != nil {
			return Response{}, err
		}

		if !req.Extract {
			info, err := engine.AnalyzeArchive(ctx, req.Archive)
			if err != nil {
				return errorResponse(err), nil
			}
			resp := Response{Info: info}
			if err := engine.Validate(ctx, info, opts); err != nil {
				resp = errorResponse(err)
				resp.Info = info
			}
			return resp, nil
		}

		extract := engine.ExtractArchive
		if req.Stream {
			extract = engine.ExtractArchiveStreaming
		}
		result, err := extract(ctx, req.Archive, opts)
		resp := Response{Result: result}
		if err != nil {
			resp = errorResponse(err)
			resp.Result = result
		}
		return resp, nil
	}
}

// errorResponse renders err into a response.
func errorResponse(err error) Response {
	var ase *safearchive.ArchiveSecurityError
	if errors.As(err, &ase) {
		return Response{ErrorCode: ase.Code, Message: ase.Error(), Violations: ase.Violations}
	}
	return Response{Message: err.Error()}
}
