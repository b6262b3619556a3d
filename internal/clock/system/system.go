// Package system provides the wall clock used for call latencies and
// dataset timestamps.
package system

import "time"

// Clock implements pipeline.Clock and progress.Clock using time.Now in UTC.
type Clock struct{}

// New creates a new Clock.
func New() *Clock {
	return &Clock{}
}

// Now returns the current time.
func (Clock) Now() time.Time {
	return time.Now().UTC()
}
