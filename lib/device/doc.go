// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package device provides the positioned I/O primitive under a drive.
//
// [File] is a host file accessed with pread/pwrite/ftruncate/fsync and
// guarded by an exclusive flock so two processes cannot open the same
// drive. [Memory] is an in-memory equivalent with identical growth and
// truncation behavior.
//
// Both satisfy the rawdata.Device interface. Neither serializes callers:
// a drive's sequencer is the only goroutine that touches its device.
package device
