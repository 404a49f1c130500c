package app

import (
	"context"
	"time"

	"github.com/dkeye/Stream/internal/core"
	"github.com/dkeye/Stream/internal/domain"
)

// DiscoveryOptions bound how long a consume request waits for a producer.
// The wait budget is Attempts*Interval; Interval is also the re-check cadence.
type DiscoveryOptions struct {
	Interval time.Duration
	Attempts int
}

func DefaultDiscoveryOptions() DiscoveryOptions {
	return DiscoveryOptions{Interval: 100 * time.Millisecond, Attempts: 50}
}

func (o DiscoveryOptions) Budget() time.Duration {
	return time.Duration(o.Attempts) * o.Interval
}

// AwaitProducer returns an unclosed producer of kind from room, waiting for one
// to be added until the budget runs out (ErrNoProducerAvailable) or ctx is done.
func AwaitProducer(ctx context.Context, room *core.Room, kind domain.MediaKind, opts DiscoveryOptions) (core.Producer, error) {
	if p, ok := room.FindProducer(kind); ok {
		return p, nil
	}
	if opts.Interval <= 0 || opts.Attempts <= 0 {
		opts = DefaultDiscoveryOptions()
	}

	budget := time.NewTimer(opts.Budget())
	defer budget.Stop()
	recheck := time.NewTicker(opts.Interval)
	defer recheck.Stop()

	for {
		// Grab the notification channel before checking so an add in between is not lost.
		added := room.ProducerAdded()
		if p, ok := room.FindProducer(kind); ok {
			return p, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-budget.C:
			if p, ok := room.FindProducer(kind); ok {
				return p, nil
			}
			return nil, domain.ErrNoProducerAvailable
		case <-added:
		case <-recheck.C:
		}
	}
}
