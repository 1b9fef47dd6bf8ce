// Copyright IBM Corp. 2023, 2025
// SPDX-License-Identifier: MPL-2.0

package safearchive

import (
	"io"

	"github.com/pkg/errors"
)

// readHeader returns up to headerSize leading bytes of r for format sniffing.
// A source shorter than headerSize is not an error.
func readHeader(r io.Reader, headerSize int) ([]byte, error) {
	buf := make([]byte, headerSize)
	n, err := io.ReadFull(r, buf)
	if err != nil && err != io.EOF && err != io.ErrUnexpectedEOF {
		return nil, errors.Wrap(err, "cannot read header")
	}
	return buf[:n], nil
}
