// Package outbox relays committed domain events from the database to the
// message broker.
package outbox

import (
	"context"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/robertarktes/rental-reservations/internal/adapters/crdb"
	"github.com/robertarktes/rental-reservations/internal/observability"
)

const batchSize = 50

type Store interface {
	DrainOutbox(ctx context.Context, limit int, publish func(crdb.OutboxRecord) error) (int, error)
	OldestPending(ctx context.Context) (time.Time, bool, error)
}

type Broker interface {
	Publish(ctx context.Context, key string, msg amqp.Publishing) error
}

type Publisher struct {
	store    Store
	broker   Broker
	interval time.Duration
	logger   observability.Logger
}

func NewPublisher(store Store, broker Broker, interval time.Duration, logger observability.Logger) *Publisher {
	return &Publisher{store: store, broker: broker, interval: interval, logger: logger}
}

func (p *Publisher) Run(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := p.Flush(ctx); err != nil {
				p.logger.Error("outbox flush failed: ", err)
			}
		}
	}
}

// Flush publishes pending records until a batch comes back short or a
// publish fails.
func (p *Publisher) Flush(ctx context.Context) (int, error) {
	total := 0
	for {
		n, err := p.store.DrainOutbox(ctx, batchSize, func(rec crdb.OutboxRecord) error {
			return p.broker.Publish(ctx, rec.EventType, amqp.Publishing{
				MessageId:    rec.DedupeKey,
				ContentType:  "application/json",
				DeliveryMode: amqp.Persistent,
				Timestamp:    rec.CreatedAt,
				Type:         rec.EventType,
				Body:         rec.Payload,
			})
		})
		total += n
		if err != nil {
			return total, err
		}
		if n < batchSize {
			break
		}
	}
	p.recordLag(ctx)
	if total > 0 {
		p.logger.WithField("published", total).Debug("outbox flushed")
	}
	return total, nil
}

func (p *Publisher) recordLag(ctx context.Context) {
	oldest, ok, err := p.store.OldestPending(ctx)
	if err != nil {
		p.logger.Warn("failed to read outbox lag: ", err)
		return
	}
	if !ok {
		observability.OutboxLag.Set(0)
		return
	}
	observability.OutboxLag.Set(time.Since(oldest).Seconds())
}
