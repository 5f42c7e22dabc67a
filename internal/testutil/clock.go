package testutil

import "time"

// TestTime is the fixed instant audit and session tests are anchored to.
func TestTime() time.Time {
	return time.Date(2026, 3, 2, 9, 30, 0, 0, time.UTC)
}

// FixedTimeFunc returns a clock frozen at t.
func FixedTimeFunc(t time.Time) func() time.Time {
	return func() time.Time { return t }
}
