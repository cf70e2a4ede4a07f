//go:build !linux

package main

import (
	"time"

	"github.com/harrowgate/svcmgr/internal/proctrack"
)

// newTracker falls back to the portable polling backend outside Linux.
func newTracker() proctrack.Tracker {
	return proctrack.NewPollTracker(250 * time.Millisecond)
}
