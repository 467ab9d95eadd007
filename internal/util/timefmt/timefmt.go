package timefmt

import "time"

// ISO8601 is the ISO-8601 format used for timestamp serialization.
const ISO8601 = "2006-01-02T15:04:05.000Z"

// Display is the human-facing format used for a message's display time string.
const Display = "15:04:05"

// Format formats a time.Time to the standard string representation.
func Format(t time.Time) string {
	return t.UTC().Format(ISO8601)
}

// DisplayTime formats a wall-clock time for chat display (local time, HH:MM:SS).
func DisplayTime(t time.Time) string {
	return t.Local().Format(Display)
}
