package monitor

import "time"

// InWindow reports whether a provider timestamp t falls inside the
// incremental window (t0, now].
//
// The lower bound is open so the boundary item of the previous poll is never
// reprocessed; the upper bound is closed so an item stamped exactly at poll
// start is included. A zero t means the provider timestamp was missing or
// unparsable and fails closed: better to miss one malformed item than to
// re-deliver every malformed item on every poll.
func InWindow(t, t0, now time.Time) bool {
	if t.IsZero() {
		return false
	}
	return t.After(t0) && !t.After(now)
}
