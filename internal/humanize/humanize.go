// Package humanize renders durations and timestamps for the admin-facing
// "-status" readout, thinly wrapping dustin/go-humanize so every uptime
// and unit-size string in this module is formatted consistently.
package humanize

import (
	"time"

	"github.com/dustin/go-humanize"
)

// Uptime renders the elapsed time since since as "3 hours", "2 days", etc.
func Uptime(since time.Time) string {
	return humanize.RelTime(since, time.Now(), "", "")
}

// Bytes renders n as a human-readable byte count, e.g. "4.2 MB".
func Bytes(n uint64) string {
	return humanize.Bytes(n)
}
