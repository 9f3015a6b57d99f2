// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// vdrive manages filesystems stored in a single host file.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/bureau-foundation/vdrive/cmd/vdrive/commands"
)

func main() {
	if err := run(); err != nil {
		// Commands that print their own output (like find with no
		// matches) return an error carrying the exit code. Don't print
		// a redundant "error:" line for those.
		if coder, ok := err.(interface{ ExitCode() int }); ok {
			os.Exit(coder.ExitCode())
		}
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// An interrupt cancels the running operation, which removes its
	// partial output and closes the drive cleanly.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return commands.Root().Execute(ctx, os.Args[1:])
}
