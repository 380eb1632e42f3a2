package detector

import (
	"context"
	"time"
)

// confirmResult is the tagged outcome of the confirmation watch.
type confirmResult int

const (
	confirmCancelled confirmResult = iota
	confirmResolved
	confirmTimedOut
)

// awaitConfirmation races the confirmation heuristic against the bound
// under a fixed tick: each tick either resolves and the watch cancels
// itself, or polling continues. Cancelling ctx (page teardown) stops the
// watch without persisting anything.
func (s *Session) awaitConfirmation(ctx context.Context) confirmResult {
	deadline := time.NewTimer(s.confirmTimeout)
	defer deadline.Stop()
	tick := time.NewTicker(s.confirmTick)
	defer tick.Stop()

	for {
		select {
		case <-ctx.Done():
			return confirmCancelled
		case <-deadline.C:
			return confirmTimedOut
		case <-tick.C:
			if s.confirmProbe() {
				return confirmResolved
			}
		}
	}
}
