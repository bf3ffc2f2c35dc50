// Package idempotency replays stored responses for repeated Idempotency-Key
// requests.
package idempotency

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
)

// ErrInProgress is returned when another request holds the same key.
var ErrInProgress = errors.New("request with this idempotency key is in progress")

const lockTTL = 30 * time.Second

type Store interface {
	Get(ctx context.Context, key string) (*Response, error)
	Set(ctx context.Context, key string, resp Response, ttl time.Duration) error
	Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Release(ctx context.Context, key string) error
}

type Idempotency struct {
	store Store
	ttl   time.Duration
}

func NewIdempotency(store Store, ttl time.Duration) *Idempotency {
	return &Idempotency{store: store, ttl: ttl}
}

type Response struct {
	Status int
	Result []byte
}

// Get returns the stored response for key, or nil when there is none.
func (i *Idempotency) Get(ctx context.Context, key string) (*Response, error) {
	return i.store.Get(ctx, key)
}

// Set stores resp for the configured TTL. Server errors are not stored so the
// client can retry them.
func (i *Idempotency) Set(ctx context.Context, key string, resp Response) error {
	if resp.Status >= 500 {
		return nil
	}
	return i.store.Set(ctx, key, resp, i.ttl)
}

// Begin claims key for the duration of one request. The returned release
// func must be called when the request finishes.
func (i *Idempotency) Begin(ctx context.Context, key string) (func(), error) {
	ok, err := i.store.Acquire(ctx, key, lockTTL)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrInProgress
	}
	return func() {
		_ = i.store.Release(context.Background(), key)
	}, nil
}
