package scheduler

import (
	"context"
	"time"
)

// ExportedPrune exposes the private prune method for external tests.
func (s *Scheduler) ExportedPrune(ctx context.Context) {
	s.prune(ctx)
}

// SetNow overrides the clock for external tests.
func (s *Scheduler) SetNow(now func() time.Time) {
	s.now = now
}
