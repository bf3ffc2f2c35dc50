package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/robertarktes/rental-reservations/internal/booking"
	"github.com/robertarktes/rental-reservations/internal/domain"
)

// QuoteCache stores quotes under a per-property version. Invalidate bumps the
// version so every older entry becomes unreachable and expires by TTL.
type QuoteCache struct {
	client *redis.Client
	ttl    time.Duration
}

func NewQuoteCache(client *redis.Client, ttl time.Duration) *QuoteCache {
	return &QuoteCache{client: client, ttl: ttl}
}

func versionKey(propertyID uuid.UUID) string {
	return "quote:ver:" + propertyID.String()
}

func quoteKey(key booking.QuoteKey) string {
	return fmt.Sprintf("quote:%s:%d:%s:%s:%s:%s:%d", key.PropertyID, key.Version,
		key.Currency, key.BasePrice,
		domain.FormatDate(key.Range.Start), domain.FormatDate(key.Range.End), key.Guests)
}

func (c *QuoteCache) Version(ctx context.Context, propertyID uuid.UUID) (int64, error) {
	v, err := c.client.Get(ctx, versionKey(propertyID)).Int64()
	if err == redis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, errors.Wrap(err, "read quote version")
	}
	return v, nil
}

func (c *QuoteCache) GetQuote(ctx context.Context, key booking.QuoteKey) (booking.Quote, bool, error) {
	val, err := c.client.Get(ctx, quoteKey(key)).Bytes()
	if err == redis.Nil {
		return booking.Quote{}, false, nil
	}
	if err != nil {
		return booking.Quote{}, false, errors.Wrap(err, "read quote")
	}
	var q booking.Quote
	if err := json.Unmarshal(val, &q); err != nil {
		return booking.Quote{}, false, errors.Wrap(err, "decode quote")
	}
	return q, true, nil
}

func (c *QuoteCache) SetQuote(ctx context.Context, key booking.QuoteKey, q booking.Quote) error {
	data, err := json.Marshal(q)
	if err != nil {
		return errors.Wrap(err, "encode quote")
	}
	return c.client.Set(ctx, quoteKey(key), data, c.ttl).Err()
}

func (c *QuoteCache) Invalidate(ctx context.Context, propertyID uuid.UUID) error {
	return c.client.Incr(ctx, versionKey(propertyID)).Err()
}
