package memory

import (
	"context"
	"sync"
	"time"

	"github.com/robertarktes/rental-reservations/internal/idempotency"
)

// Idempotency is an idempotency.Store for tests and single-process runs.
// Records never expire.
type Idempotency struct {
	mu      sync.Mutex
	records map[string]idempotency.Response
	locks   map[string]struct{}
}

func NewIdempotency() *Idempotency {
	return &Idempotency{
		records: make(map[string]idempotency.Response),
		locks:   make(map[string]struct{}),
	}
}

func (i *Idempotency) Get(ctx context.Context, key string) (*idempotency.Response, error) {
	i.mu.Lock()
	defer i.mu.Unlock()
	resp, ok := i.records[key]
	if !ok {
		return nil, nil
	}
	return &resp, nil
}

func (i *Idempotency) Set(ctx context.Context, key string, resp idempotency.Response, ttl time.Duration) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.records[key] = resp
	return nil
}

func (i *Idempotency) Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	i.mu.Lock()
	defer i.mu.Unlock()
	if _, held := i.locks[key]; held {
		return false, nil
	}
	i.locks[key] = struct{}{}
	return true, nil
}

func (i *Idempotency) Release(ctx context.Context, key string) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	delete(i.locks, key)
	return nil
}
