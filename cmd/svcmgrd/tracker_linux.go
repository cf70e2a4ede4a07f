//go:build linux

package main

import "github.com/harrowgate/svcmgr/internal/proctrack"

// newTracker picks the Linux Wait4/subreaper backend, which reports
// exact exit status; it emits Exit events only, no Child events.
func newTracker() proctrack.Tracker {
	return proctrack.NewLinuxTracker()
}
