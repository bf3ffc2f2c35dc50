// Package completion persists the completed status of stays whose checkout
// has passed. Reads derive completion on their own, so a late sweep never
// changes what clients observe.
package completion

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/robertarktes/rental-reservations/internal/observability"
)

const (
	batchSize  = 100
	maxRetries = 3
)

type Store interface {
	MarkCompleted(ctx context.Context, now time.Time, limit int) (int, error)
}

type Sweeper struct {
	store   Store
	logger  observability.Logger
	now     func() time.Time
	backoff time.Duration
}

func NewSweeper(store Store, logger observability.Logger) *Sweeper {
	return &Sweeper{store: store, logger: logger, now: time.Now, backoff: time.Second}
}

func (s *Sweeper) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := s.Sweep(ctx)
			if err != nil {
				s.logger.Error("completion sweep failed: ", err)
				continue
			}
			if n > 0 {
				s.logger.WithField("completed", n).Info("completion sweep finished")
			}
		}
	}
}

// Sweep marks every finished reservation in batches and returns the total.
func (s *Sweeper) Sweep(ctx context.Context) (int, error) {
	now := s.now()
	total := 0
	for {
		n, err := s.markWithRetry(ctx, now)
		total += n
		if err != nil {
			return total, err
		}
		observability.CompletedReservations.Add(float64(n))
		if n < batchSize {
			return total, nil
		}
	}
}

func (s *Sweeper) markWithRetry(ctx context.Context, now time.Time) (int, error) {
	var err error
	for i := 0; i < maxRetries; i++ {
		var n int
		n, err = s.store.MarkCompleted(ctx, now, batchSize)
		if err == nil {
			return n, nil
		}
		select {
		case <-ctx.Done():
			return 0, ctx.Err()
		case <-time.After(time.Duration(1<<i) * s.backoff):
		}
	}
	return 0, errors.Wrapf(err, "failed after %d retries", maxRetries)
}
