// Package simple contains a pacing policy that never waits. It backs
// cache-only runs and tests, where no external service needs protecting.
package simple

import "context"

// Policy is a permissive pacer.
type Policy struct{}

// New creates a new Policy.
func New() *Policy {
	return &Policy{}
}

// Wait returns immediately unless ctx is already done.
func (Policy) Wait(ctx context.Context, _ string) error {
	return ctx.Err()
}
