// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package vfs

import "errors"

var (
	// ErrNotFound is returned when a path or a wrapper no longer names
	// a live entry.
	ErrNotFound = errors.New("not found")

	// ErrInvalidOperation is returned for requests that can never
	// succeed as made: moving a directory into itself, renaming the
	// root, writing through a read-only stream.
	ErrInvalidOperation = errors.New("invalid operation")

	// ErrAlreadyExists is returned when a sibling with the same name
	// (compared case-insensitively, files and directories alike) is
	// already present. It matches ErrInvalidOperation too.
	ErrAlreadyExists error = &invalidOperation{message: "already exists"}

	// ErrInvalidName is returned for empty names, names made of
	// whitespace only, and names with a restricted character. It
	// matches ErrInvalidOperation too.
	ErrInvalidName error = &invalidOperation{message: "invalid name"}

	// ErrAccessDenied is returned when an advisory lock held by an open
	// stream or a running operation forbids the request.
	ErrAccessDenied = errors.New("access denied")

	// ErrClosed is returned by every operation after Close.
	ErrClosed = errors.New("filesystem is closed")
)

// invalidOperation is a refinement of ErrInvalidOperation.
type invalidOperation struct {
	message string
}

func (e *invalidOperation) Error() string { return e.message }

func (e *invalidOperation) Unwrap() error { return ErrInvalidOperation }
