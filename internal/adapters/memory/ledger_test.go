package memory

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/robertarktes/rental-reservations/internal/domain"
)

func mustRange(t *testing.T, start, end string) domain.DateRange {
	t.Helper()
	r, err := domain.ParseDateRange(start, end)
	if err != nil {
		t.Fatal(err)
	}
	return r
}

func pending(t *testing.T, propertyID, clientID uuid.UUID, r domain.DateRange) domain.Reservation {
	t.Helper()
	res, err := domain.NewReservation(propertyID, clientID, r, 2, domain.MustMoney("100"), "", "", time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatal(err)
	}
	return res
}

func TestLedger_CommitConflicts(t *testing.T) {
	ctx := context.Background()
	ledger := NewLedger()
	propertyID := uuid.New()

	if _, err := ledger.Commit(ctx, pending(t, propertyID, uuid.New(), mustRange(t, "2025-02-01", "2025-02-05"))); err != nil {
		t.Fatal(err)
	}
	// Touching the checkout day is fine.
	if _, err := ledger.Commit(ctx, pending(t, propertyID, uuid.New(), mustRange(t, "2025-02-05", "2025-02-10"))); err != nil {
		t.Fatalf("touching range: %v", err)
	}

	_, err := ledger.Commit(ctx, pending(t, propertyID, uuid.New(), mustRange(t, "2025-02-04", "2025-02-06")))
	var conflict *domain.ConflictError
	if !errors.As(err, &conflict) {
		t.Fatalf("expected ConflictError, got %v", err)
	}

	// Another property is unaffected.
	if _, err := ledger.Commit(ctx, pending(t, uuid.New(), uuid.New(), mustRange(t, "2025-02-04", "2025-02-06"))); err != nil {
		t.Fatalf("other property: %v", err)
	}
}

func TestLedger_CancelledDoesNotBlock(t *testing.T) {
	ctx := context.Background()
	ledger := NewLedger()
	propertyID, clientID := uuid.New(), uuid.New()
	r := mustRange(t, "2025-02-01", "2025-02-05")

	res, err := ledger.Commit(ctx, pending(t, propertyID, clientID, r))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := ledger.Cancel(ctx, res.ID, clientID, time.Date(2025, 1, 10, 0, 0, 0, 0, time.UTC)); err != nil {
		t.Fatal(err)
	}

	conflict, err := ledger.HasConflict(ctx, propertyID, r)
	if err != nil {
		t.Fatal(err)
	}
	if conflict {
		t.Error("cancelled reservation must not block")
	}
	ranges, _ := ledger.BlockingRanges(ctx, propertyID)
	if len(ranges) != 0 {
		t.Errorf("expected no blocking ranges, got %v", ranges)
	}
}

func TestLedger_CancelChecksOwner(t *testing.T) {
	ctx := context.Background()
	ledger := NewLedger()
	res, err := ledger.Commit(ctx, pending(t, uuid.New(), uuid.New(), mustRange(t, "2025-02-01", "2025-02-05")))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := ledger.Cancel(ctx, res.ID, uuid.New(), time.Date(2025, 1, 10, 0, 0, 0, 0, time.UTC)); !errors.Is(err, domain.ErrNotOwner) {
		t.Errorf("expected ErrNotOwner, got %v", err)
	}
	if _, err := ledger.Get(ctx, uuid.New()); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestLedger_ConcurrentOverlappingCommits(t *testing.T) {
	ctx := context.Background()
	ledger := NewLedger()
	propertyID := uuid.New()
	r := mustRange(t, "2025-03-01", "2025-03-04")

	const workers = 16
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
		conflicts int
	)
	start := make(chan struct{})
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			_, err := ledger.Commit(ctx, pending(t, propertyID, uuid.New(), r))
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				successes++
			case errors.Is(err, domain.ErrConflict):
				conflicts++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	close(start)
	wg.Wait()

	if successes != 1 || conflicts != workers-1 {
		t.Errorf("expected 1 success and %d conflicts, got %d and %d", workers-1, successes, conflicts)
	}
	ranges, _ := ledger.BlockingRanges(ctx, propertyID)
	if len(ranges) != 1 {
		t.Errorf("expected exactly one blocking range, got %d", len(ranges))
	}
}

func TestLedger_ConcurrentDisjointCommits(t *testing.T) {
	ctx := context.Background()
	ledger := NewLedger()
	propertyID := uuid.New()
	ranges := []domain.DateRange{
		mustRange(t, "2025-03-01", "2025-03-04"),
		mustRange(t, "2025-03-04", "2025-03-08"),
		mustRange(t, "2025-03-10", "2025-03-12"),
	}

	var wg sync.WaitGroup
	errs := make([]error, len(ranges))
	for i, r := range ranges {
		wg.Add(1)
		go func(i int, r domain.DateRange) {
			defer wg.Done()
			_, errs[i] = ledger.Commit(ctx, pending(t, propertyID, uuid.New(), r))
		}(i, r)
	}
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			t.Errorf("range %s: %v", ranges[i], err)
		}
	}
}

func TestOverrides_Queries(t *testing.T) {
	ctx := context.Background()
	store := NewOverrides()
	propertyID := uuid.New()
	price := domain.MustMoney("3000")
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	open, err := domain.NewAvailabilityOverride(propertyID, mustRange(t, "2025-01-03", "2025-01-05"), true, &price, "", now)
	if err != nil {
		t.Fatal(err)
	}
	closed, err := domain.NewAvailabilityOverride(propertyID, mustRange(t, "2025-01-04", "2025-01-06"), false, nil, "maintenance", now)
	if err != nil {
		t.Fatal(err)
	}
	store.SaveOverride(ctx, open)
	store.SaveOverride(ctx, closed)

	stay := mustRange(t, "2025-01-01", "2025-01-10")
	got, _ := store.OverridesOverlapping(ctx, propertyID, stay)
	if len(got) != 1 || got[0].ID != open.ID {
		t.Errorf("expected only the available override, got %v", got)
	}
	got, _ = store.ClosedOverlapping(ctx, propertyID, stay)
	if len(got) != 1 || got[0].ID != closed.ID {
		t.Errorf("expected only the closed override, got %v", got)
	}

	if err := store.DeleteOverride(ctx, propertyID, open.ID); err != nil {
		t.Fatal(err)
	}
	if err := store.DeleteOverride(ctx, propertyID, open.ID); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}
