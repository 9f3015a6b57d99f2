// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package format defines the byte-exact layout of a vdrive backing file
// and the codecs that read and write it.
//
// A drive is a single host file with four kinds of regions:
//
//	[0..8)                      Parameters: sector info region length and
//	                            entries-table sector length (two int32)
//	[8..8+SectorInfoLength)     Sector descriptors, in creation order,
//	                            terminated by [End]
//	[sector pairs...]           Alternating entries-table and content
//	                            sectors as described by the descriptors
//	[trailer]                   Free content blocks, only present after a
//	                            clean close, terminated by [DriveEnd]
//
// All integers are little-endian. Entry records inside an entries-table
// sector are length-prefixed; the prefix excludes its own four bytes.
// Timestamps are Unix nanoseconds.
//
// The codecs here are pure: they never touch a file. Positioned I/O lives
// in lib/device and the layout policy (where sectors go, which slots get
// reused) lives in lib/rawdata.
package format
