package util

import "time"

// Timer tracks how long a queue or detail handler spent serving a request, for
// the latency field the request logs carry.
type Timer struct {
	start time.Time
}

// StartTimer begins timing at the current instant.
func StartTimer() Timer {
	return Timer{start: time.Now()}
}

// Elapsed returns the time since the timer was started. A zero-value timer
// reports zero rather than decades since the epoch.
func (t Timer) Elapsed() time.Duration {
	if t.start.IsZero() {
		return 0
	}
	return time.Since(t.start)
}

// ElapsedMs reports Elapsed in whole milliseconds, the unit the logs use.
func (t Timer) ElapsedMs() int64 {
	return t.Elapsed().Milliseconds()
}
