package scheduler

import (
	"context"
	"strconv"
	"time"

	"github.com/shaharia-lab/verimail/internal/eventbus"
)

const pruneTimeout = time.Minute

// prune deletes delivery log rows older than the retention window.
func (s *Scheduler) prune(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, pruneTimeout)
	defer cancel()

	cutoff := s.now().UTC().Add(-s.cfg.Retention)
	n, err := s.cfg.Store.PruneBefore(ctx, cutoff)
	if err != nil {
		s.logger.Error("failed to prune delivery log", "cutoff", cutoff, "error", err)
		return
	}
	if n == 0 {
		return
	}

	s.logger.Info("delivery log pruned", "removed", n, "cutoff", cutoff)
	if s.cfg.EventPublisher != nil {
		s.cfg.EventPublisher.Publish(EventDeliveryLogPruned, map[string]string{
			eventbus.KeyRemoved: strconv.FormatInt(n, 10),
			eventbus.KeyCutoff:  cutoff.Format(time.RFC3339),
		})
	}
}
