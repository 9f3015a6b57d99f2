// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package clock

import "time"

// Clock is the time source for entry timestamps.
type Clock interface {
	// Now returns the current time in UTC without a monotonic reading.
	Now() time.Time
}
