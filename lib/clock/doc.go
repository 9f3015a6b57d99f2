// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package clock provides an injectable time source.
//
// Entry records carry creation and modification timestamps. Code that
// stamps them accepts a Clock instead of calling time.Now directly, so
// tests can assert exact timestamps:
//
//	c := clock.Fake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
//	fs, err := vfs.OpenDevice(device.NewMemory(), vfs.Options{Clock: c})
//	// ... create a file ...
//	c.Advance(time.Minute) // the next modification is stamped a minute later
//
// Real() returns the standard library clock. Timestamps are truncated to
// the nanosecond precision the drive format stores and converted to UTC,
// so a value read back from disk compares equal to the one written.
package clock
