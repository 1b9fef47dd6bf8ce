// Copyright IBM Corp. 2023, 2025
// SPDX-License-Identifier: MPL-2.0

//go:build unix

package safearchive

import (
	"golang.org/x/sys/unix"
)

// openNoFollow makes file creation fail if the last path element is a symlink.
const openNoFollow = unix.O_NOFOLLOW
