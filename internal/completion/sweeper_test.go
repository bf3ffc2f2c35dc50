package completion

import (
	"context"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/robertarktes/rental-reservations/internal/adapters/memory"
	"github.com/robertarktes/rental-reservations/internal/domain"
	"github.com/robertarktes/rental-reservations/internal/observability"
)

type flakyStore struct {
	failures int
	calls    int
	batches  []int
}

func (s *flakyStore) MarkCompleted(ctx context.Context, now time.Time, limit int) (int, error) {
	s.calls++
	if s.failures > 0 {
		s.failures--
		return 0, errors.New("connection reset")
	}
	if len(s.batches) == 0 {
		return 0, nil
	}
	n := s.batches[0]
	s.batches = s.batches[1:]
	return n, nil
}

func newTestSweeper(store Store) *Sweeper {
	s := NewSweeper(store, observability.NewDiscardLogger())
	s.backoff = time.Millisecond
	return s
}

func TestSweep_DrainsBatches(t *testing.T) {
	store := &flakyStore{batches: []int{batchSize, batchSize, 7}}
	n, err := newTestSweeper(store).Sweep(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if n != 2*batchSize+7 {
		t.Errorf("expected %d, got %d", 2*batchSize+7, n)
	}
}

func TestSweep_RetriesTransientErrors(t *testing.T) {
	store := &flakyStore{failures: 2, batches: []int{3}}
	n, err := newTestSweeper(store).Sweep(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if n != 3 || store.calls != 3 {
		t.Errorf("expected 3 completed in 3 calls, got %d in %d", n, store.calls)
	}

	store = &flakyStore{failures: maxRetries}
	if _, err := newTestSweeper(store).Sweep(context.Background()); err == nil {
		t.Error("expected error after exhausting retries")
	}
}

func TestSweep_MemoryLedger(t *testing.T) {
	ledger := memory.NewLedger()
	created := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	past, _ := domain.ParseDateRange("2025-01-05", "2025-01-08")
	future, _ := domain.ParseDateRange("2025-03-01", "2025-03-04")

	done, _ := domain.NewReservation(uuid.New(), uuid.New(), past, 1, domain.MustMoney("10"), "", "", created)
	upcoming, _ := domain.NewReservation(uuid.New(), uuid.New(), future, 1, domain.MustMoney("10"), "", "", created)
	ledger.Insert(done)
	ledger.Insert(upcoming)

	s := newTestSweeper(ledger)
	s.now = func() time.Time { return time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC) }
	n, err := s.Sweep(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Fatalf("expected one completed reservation, got %d", n)
	}

	got, _ := ledger.Get(context.Background(), done.ID)
	if got.Status != domain.StatusCompleted {
		t.Errorf("expected completed, got %s", got.Status)
	}
	got, _ = ledger.Get(context.Background(), upcoming.ID)
	if got.Status != domain.StatusPending {
		t.Errorf("expected pending, got %s", got.Status)
	}
}
