// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package testutil provides shared test helpers for vdrive packages.
//
// [RequireReceive], [RequireClosed] and [RequireNoReceive] wrap the
// timeout safety valve pattern (select with a time.After fallback) so
// that individual tests never block forever on a channel. These are the
// only place in the test suite where wall-clock timeouts are used.
//
// [DrivePath] returns a fresh backing-file path inside t.TempDir.
// [Content] produces deterministic pseudo-random file content, and
// [UniqueID] produces distinct entry names.
//
// All helpers call t.Fatalf on failure rather than returning errors,
// since test setup failures are not recoverable.
//
// This package has no vdrive-internal dependencies.
package testutil
