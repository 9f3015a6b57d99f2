// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package commands builds the vdrive CLI command tree.
//
// Every command that touches a drive accepts --drive and --config (see
// driveFlags). The drive file is opened for the duration of one command
// and closed cleanly before it returns, so the free list trailer is
// always written. Long transfers draw a progress bar on terminals and
// stop cleanly when the context is cancelled by an interrupt.
package commands
