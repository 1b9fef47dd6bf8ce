// Copyright IBM Corp. 2023, 2025
// SPDX-License-Identifier: MPL-2.0

//go:build !unix

package safearchive

// openNoFollow is not available on this platform, symlinks at the destination
// are removed before files are created.
const openNoFollow = 0
