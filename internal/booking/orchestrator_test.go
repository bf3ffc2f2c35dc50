package booking_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/robertarktes/rental-reservations/internal/adapters/memory"
	"github.com/robertarktes/rental-reservations/internal/booking"
	"github.com/robertarktes/rental-reservations/internal/domain"
	"github.com/robertarktes/rental-reservations/internal/observability"
	"github.com/robertarktes/rental-reservations/internal/pricing"
)

var today = time.Date(2025, 1, 1, 9, 0, 0, 0, time.UTC)

type fixture struct {
	property  domain.Property
	catalog   *memory.Catalog
	ledger    *countingLedger
	overrides *memory.Overrides
	cache     *mapCache
	svc       *booking.Orchestrator
	clock     *time.Time
}

// countingLedger records calls so tests can assert which checks touched the ledger.
type countingLedger struct {
	*memory.Ledger
	mu    sync.Mutex
	calls int
}

func (l *countingLedger) HasConflict(ctx context.Context, propertyID uuid.UUID, r domain.DateRange) (bool, error) {
	l.mu.Lock()
	l.calls++
	l.mu.Unlock()
	return l.Ledger.HasConflict(ctx, propertyID, r)
}

func (l *countingLedger) Calls() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.calls
}

type mapCache struct {
	mu       sync.Mutex
	versions map[uuid.UUID]int64
	quotes   map[booking.QuoteKey]booking.Quote
	hits     int
	// invalidateErr simulates a cache that cannot bump versions.
	invalidateErr error
}

func newMapCache() *mapCache {
	return &mapCache{versions: map[uuid.UUID]int64{}, quotes: map[booking.QuoteKey]booking.Quote{}}
}

func (c *mapCache) Version(ctx context.Context, propertyID uuid.UUID) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.versions[propertyID], nil
}

func (c *mapCache) GetQuote(ctx context.Context, key booking.QuoteKey) (booking.Quote, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	q, ok := c.quotes[key]
	if ok {
		c.hits++
	}
	return q, ok, nil
}

func (c *mapCache) SetQuote(ctx context.Context, key booking.QuoteKey, q booking.Quote) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.quotes[key] = q
	return nil
}

func (c *mapCache) Invalidate(ctx context.Context, propertyID uuid.UUID) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.invalidateErr != nil {
		return c.invalidateErr
	}
	c.versions[propertyID]++
	return nil
}

func newFixture(t *testing.T, opts ...pricing.Option) *fixture {
	t.Helper()
	prop := domain.Property{
		ID:                uuid.New(),
		OwnerID:           uuid.New(),
		PricePerNightBase: domain.MustMoney("5000"),
		Currency:          "DZD",
		MaxGuests:         4,
		IsActive:          true,
	}
	now := today
	f := &fixture{
		property:  prop,
		catalog:   memory.NewCatalog(prop),
		ledger:    &countingLedger{Ledger: memory.NewLedger()},
		overrides: memory.NewOverrides(),
		cache:     newMapCache(),
		clock:     &now,
	}
	f.svc = booking.NewOrchestrator(
		f.catalog,
		f.ledger,
		f.overrides,
		pricing.NewEngine(opts...),
		observability.NewDiscardLogger(),
		booking.WithClock(func() time.Time { return *f.clock }),
		booking.WithQuoteCache(f.cache),
	)
	return f
}

func mustRange(t *testing.T, start, end string) domain.DateRange {
	t.Helper()
	r, err := domain.ParseDateRange(start, end)
	if err != nil {
		t.Fatal(err)
	}
	return r
}

func (f *fixture) addOverride(t *testing.T, start, end, price string) {
	t.Helper()
	p := domain.MustMoney(price)
	o, err := domain.NewAvailabilityOverride(f.property.ID, mustRange(t, start, end), true, &p, "", today)
	if err != nil {
		t.Fatal(err)
	}
	f.overrides.SaveOverride(context.Background(), o)
	f.svc.InvalidateQuotes(context.Background(), f.property.ID)
}

func (f *fixture) commit(t *testing.T, clientID uuid.UUID, start, end string) domain.Reservation {
	t.Helper()
	res, err := f.svc.Commit(context.Background(), booking.CommitRequest{
		PropertyID: f.property.ID,
		ClientID:   clientID,
		Range:      mustRange(t, start, end),
		Guests:     2,
	})
	if err != nil {
		t.Fatalf("commit %s..%s: %v", start, end, err)
	}
	return res
}

func TestQuote_Prices(t *testing.T) {
	cases := []struct {
		name      string
		start     string
		end       string
		overrides [][3]string
		want      string
	}{
		{"no overrides", "2025-02-01", "2025-02-04", nil, "15000"},
		{"full range override", "2025-02-01", "2025-02-04", [][3]string{{"2025-02-01", "2025-02-04", "4000"}}, "12000"},
		{"partial override", "2025-02-01", "2025-02-06", [][3]string{{"2025-02-03", "2025-02-05", "3000"}}, "21000"},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			f := newFixture(t)
			for _, o := range c.overrides {
				f.addOverride(t, o[0], o[1], o[2])
			}
			q, err := f.svc.Quote(context.Background(), f.property.ID, mustRange(t, c.start, c.end), 2)
			if err != nil {
				t.Fatal(err)
			}
			if !q.TotalPrice.Equal(domain.MustMoney(c.want)) {
				t.Errorf("expected %s, got %s", c.want, q.TotalPrice)
			}
			if !q.PricePerNight.Equal(f.property.PricePerNightBase) {
				t.Errorf("expected base price per night, got %s", q.PricePerNight)
			}
		})
	}
}

func TestQuote_CapacityRejectedBeforeLedger(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.Quote(context.Background(), f.property.ID, mustRange(t, "2025-02-01", "2025-02-04"), 5)

	var capacity *domain.CapacityError
	if !errors.As(err, &capacity) {
		t.Fatalf("expected CapacityError, got %v", err)
	}
	if capacity.Max != 4 || capacity.Requested != 5 {
		t.Errorf("unexpected capacity error %+v", capacity)
	}
	if f.ledger.Calls() != 0 {
		t.Errorf("expected no ledger queries, got %d", f.ledger.Calls())
	}
}

func TestQuote_InvalidInputs(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if _, err := f.svc.Quote(ctx, f.property.ID, domain.DateRange{}, 2); !errors.Is(err, domain.ErrInvalidRange) {
		t.Errorf("expected ErrInvalidRange, got %v", err)
	}
	if _, err := f.svc.Quote(ctx, f.property.ID, mustRange(t, "2025-02-01", "2025-02-04"), 0); !errors.Is(err, domain.ErrInvalidGuests) {
		t.Errorf("expected ErrInvalidGuests, got %v", err)
	}
	if _, err := f.svc.Quote(ctx, uuid.New(), mustRange(t, "2025-02-01", "2025-02-04"), 2); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestQuote_UnavailableListsBlockedDates(t *testing.T) {
	f := newFixture(t)
	f.commit(t, uuid.New(), "2025-02-03", "2025-02-05")
	f.commit(t, uuid.New(), "2025-02-06", "2025-02-08")

	_, err := f.svc.Quote(context.Background(), f.property.ID, mustRange(t, "2025-02-01", "2025-02-07"), 2)
	var unavailable *domain.UnavailableError
	if !errors.As(err, &unavailable) {
		t.Fatalf("expected UnavailableError, got %v", err)
	}
	want := []string{"2025-02-03", "2025-02-04", "2025-02-06"}
	if len(unavailable.BlockedDates) != len(want) {
		t.Fatalf("expected %v, got %v", want, unavailable.BlockedDates)
	}
	for i, d := range unavailable.BlockedDates {
		if domain.FormatDate(d) != want[i] {
			t.Errorf("blocked date %d: got %s, want %s", i, domain.FormatDate(d), want[i])
		}
	}
}

func TestQuote_IdempotentAndCached(t *testing.T) {
	f := newFixture(t)
	f.addOverride(t, "2025-02-02", "2025-02-03", "1000")
	r := mustRange(t, "2025-02-01", "2025-02-04")

	first, err := f.svc.Quote(context.Background(), f.property.ID, r, 2)
	if err != nil {
		t.Fatal(err)
	}
	second, err := f.svc.Quote(context.Background(), f.property.ID, r, 2)
	if err != nil {
		t.Fatal(err)
	}
	if !first.TotalPrice.Equal(second.TotalPrice) || first.Nights != second.Nights || first.Range != second.Range {
		t.Errorf("quotes differ: %+v vs %+v", first, second)
	}
	if f.cache.hits != 1 {
		t.Errorf("expected second quote from cache, hits=%d", f.cache.hits)
	}

	// A commit on the property invalidates cached quotes.
	f.commit(t, uuid.New(), "2025-02-02", "2025-02-03")
	if _, err := f.svc.Quote(context.Background(), f.property.ID, r, 2); !errors.Is(err, domain.ErrUnavailable) {
		t.Errorf("expected ErrUnavailable after commit, got %v", err)
	}
}

func TestQuote_CachedPriceNeverHidesBooking(t *testing.T) {
	f := newFixture(t)
	f.cache.invalidateErr = errors.New("redis down")
	r := mustRange(t, "2025-02-01", "2025-02-04")

	if _, err := f.svc.Quote(context.Background(), f.property.ID, r, 2); err != nil {
		t.Fatal(err)
	}
	f.commit(t, uuid.New(), "2025-02-01", "2025-02-04")

	_, err := f.svc.Quote(context.Background(), f.property.ID, r, 2)
	var unavailable *domain.UnavailableError
	if !errors.As(err, &unavailable) {
		t.Fatalf("expected UnavailableError despite stale cache entry, got %v", err)
	}
	if len(unavailable.BlockedDates) != 3 {
		t.Errorf("expected 3 blocked dates, got %v", unavailable.BlockedDates)
	}
}

func TestQuote_BasePriceChangeMissesCache(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	r := mustRange(t, "2025-02-01", "2025-02-04")

	q, err := f.svc.Quote(ctx, f.property.ID, r, 2)
	if err != nil {
		t.Fatal(err)
	}
	if !q.TotalPrice.Equal(domain.MustMoney("15000")) {
		t.Fatalf("expected 15000, got %s", q.TotalPrice)
	}

	repriced := f.property
	repriced.PricePerNightBase = domain.MustMoney("6000")
	f.catalog.Put(repriced)

	q, err = f.svc.Quote(ctx, f.property.ID, r, 2)
	if err != nil {
		t.Fatal(err)
	}
	if !q.TotalPrice.Equal(domain.MustMoney("18000")) {
		t.Errorf("expected quote at new base price 18000, got %s", q.TotalPrice)
	}
	if f.cache.hits != 0 {
		t.Errorf("expected no cache hits after repricing, got %d", f.cache.hits)
	}
	res := f.commit(t, uuid.New(), "2025-02-01", "2025-02-04")
	if !res.TotalPrice.Equal(q.TotalPrice) {
		t.Errorf("commit charged %s, quote said %s", res.TotalPrice, q.TotalPrice)
	}
}

func TestQuote_RoundsToCurrencyMinorUnits(t *testing.T) {
	cases := []struct {
		currency string
		base     string
		want     string
	}{
		{"DZD", "1000.005", "3000.02"},
		{"KWD", "10.0004", "30.001"},
		{"JPY", "1000.4", "3001"},
	}
	for _, c := range cases {
		t.Run(c.currency, func(t *testing.T) {
			f := newFixture(t)
			prop := f.property
			prop.Currency = c.currency
			prop.PricePerNightBase = domain.MustMoney(c.base)
			f.catalog.Put(prop)

			q, err := f.svc.Quote(context.Background(), prop.ID, mustRange(t, "2025-02-01", "2025-02-04"), 2)
			if err != nil {
				t.Fatal(err)
			}
			if !q.TotalPrice.Equal(domain.MustMoney(c.want)) {
				t.Errorf("expected %s, got %s", c.want, q.TotalPrice)
			}
			if q.Currency != c.currency {
				t.Errorf("expected currency %s, got %s", c.currency, q.Currency)
			}
		})
	}
}

func TestAvailability_ReportsEvenWhenTaken(t *testing.T) {
	f := newFixture(t)
	f.commit(t, uuid.New(), "2025-02-02", "2025-02-03")
	closed, err := domain.NewAvailabilityOverride(f.property.ID, mustRange(t, "2025-02-03", "2025-02-04"), false, nil, "repairs", today)
	if err != nil {
		t.Fatal(err)
	}
	f.overrides.SaveOverride(context.Background(), closed)

	report, err := f.svc.Availability(context.Background(), f.property.ID, mustRange(t, "2025-02-01", "2025-02-05"), 2)
	if err != nil {
		t.Fatal(err)
	}
	if report.Available {
		t.Error("expected unavailable")
	}
	if !report.TotalPrice.Equal(domain.MustMoney("20000")) {
		t.Errorf("expected 20000, got %s", report.TotalPrice)
	}
	if len(report.BookedDates) != 1 || domain.FormatDate(report.BookedDates[0]) != "2025-02-02" {
		t.Errorf("unexpected booked dates %v", report.BookedDates)
	}
	if len(report.ClosedDates) != 1 || domain.FormatDate(report.ClosedDates[0]) != "2025-02-03" {
		t.Errorf("unexpected closed dates %v", report.ClosedDates)
	}
}

func TestCommit_TouchingRanges(t *testing.T) {
	f := newFixture(t)
	f.commit(t, uuid.New(), "2025-02-01", "2025-02-05")
	res := f.commit(t, uuid.New(), "2025-02-05", "2025-02-10")
	if res.Status != domain.StatusPending {
		t.Errorf("expected pending, got %s", res.Status)
	}
	if !res.TotalPrice.Equal(domain.MustMoney("25000")) {
		t.Errorf("expected 25000, got %s", res.TotalPrice)
	}
}

func TestCommit_RecomputesPrice(t *testing.T) {
	f := newFixture(t)
	r := mustRange(t, "2025-02-01", "2025-02-04")
	if _, err := f.svc.Quote(context.Background(), f.property.ID, r, 2); err != nil {
		t.Fatal(err)
	}
	// Owner reprices after the quote; the commit must charge the new price.
	f.addOverride(t, "2025-02-01", "2025-02-04", "4000")
	res := f.commit(t, uuid.New(), "2025-02-01", "2025-02-04")
	if !res.TotalPrice.Equal(domain.MustMoney("12000")) {
		t.Errorf("expected 12000, got %s", res.TotalPrice)
	}
}

func TestCommit_Rejections(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.commit(t, uuid.New(), "2025-02-01", "2025-02-05")

	_, err := f.svc.Commit(ctx, booking.CommitRequest{PropertyID: f.property.ID, ClientID: uuid.New(), Range: mustRange(t, "2025-02-03", "2025-02-05"), Guests: 2})
	var conflict *domain.ConflictError
	if !errors.As(err, &conflict) {
		t.Fatalf("overlap: expected ConflictError, got %v", err)
	}
	if errors.Is(err, domain.ErrUnavailable) {
		t.Errorf("overlap: commit must not report ErrUnavailable, got %v", err)
	}
	if len(conflict.BlockedDates) != 2 || domain.FormatDate(conflict.BlockedDates[0]) != "2025-02-03" {
		t.Errorf("overlap: unexpected blocked dates %v", conflict.BlockedDates)
	}

	_, err = f.svc.Commit(ctx, booking.CommitRequest{PropertyID: f.property.ID, ClientID: uuid.New(), Range: mustRange(t, "2025-03-01", "2025-03-04"), Guests: 9})
	if !errors.Is(err, domain.ErrCapacity) {
		t.Errorf("capacity: expected ErrCapacity, got %v", err)
	}

	_, err = f.svc.Commit(ctx, booking.CommitRequest{PropertyID: f.property.ID, ClientID: uuid.New(), Range: mustRange(t, "2025-01-01", "2025-01-03"), Guests: 2})
	if !errors.Is(err, domain.ErrCheckInNotFuture) {
		t.Errorf("today: expected ErrCheckInNotFuture, got %v", err)
	}
}

func TestCommit_InactiveProperty(t *testing.T) {
	prop := domain.Property{ID: uuid.New(), PricePerNightBase: domain.MustMoney("100"), MaxGuests: 2}
	svc := booking.NewOrchestrator(memory.NewCatalog(prop), memory.NewLedger(), memory.NewOverrides(), pricing.NewEngine(),
		observability.NewDiscardLogger(), booking.WithClock(func() time.Time { return today }))

	_, err := svc.Commit(context.Background(), booking.CommitRequest{PropertyID: prop.ID, ClientID: uuid.New(), Range: mustRange(t, "2025-02-01", "2025-02-03"), Guests: 1})
	if !errors.Is(err, domain.ErrPropertyInactive) {
		t.Errorf("expected ErrPropertyInactive, got %v", err)
	}
}

func TestCommit_ConcurrentOverlappingRace(t *testing.T) {
	f := newFixture(t)
	r := mustRange(t, "2025-04-01", "2025-04-05")

	var wg sync.WaitGroup
	results := make([]error, 2)
	start := make(chan struct{})
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			_, results[i] = f.svc.Commit(context.Background(), booking.CommitRequest{
				PropertyID: f.property.ID,
				ClientID:   uuid.New(),
				Range:      r,
				Guests:     2,
			})
		}(i)
	}
	close(start)
	wg.Wait()

	var ok, rejected int
	for _, err := range results {
		switch {
		case err == nil:
			ok++
		// The loser sees ErrConflict whether it lost in the pre-check or inside the ledger.
		case errors.Is(err, domain.ErrConflict):
			rejected++
		default:
			t.Errorf("unexpected error %v", err)
		}
	}
	if ok != 1 || rejected != 1 {
		t.Errorf("expected exactly one success, got %d successes and %d rejections", ok, rejected)
	}
	ranges, err := f.ledger.BlockingRanges(context.Background(), f.property.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(ranges) != 1 {
		t.Errorf("expected one blocking range, got %d", len(ranges))
	}
}

func TestCommit_LedgerConflictPropagates(t *testing.T) {
	f := newFixture(t)
	r := mustRange(t, "2025-04-01", "2025-04-05")
	svc := booking.NewOrchestrator(memory.NewCatalog(f.property), &racingLedger{Ledger: memory.NewLedger()}, f.overrides,
		pricing.NewEngine(), observability.NewDiscardLogger(), booking.WithClock(func() time.Time { return today }))

	_, err := svc.Commit(context.Background(), booking.CommitRequest{PropertyID: f.property.ID, ClientID: uuid.New(), Range: r, Guests: 2})
	var conflict *domain.ConflictError
	if !errors.As(err, &conflict) {
		t.Fatalf("expected ConflictError, got %v", err)
	}
}

// racingLedger lets a rival commit land between the pre-check and the insert.
type racingLedger struct {
	*memory.Ledger
}

func (l *racingLedger) Commit(ctx context.Context, res domain.Reservation) (domain.Reservation, error) {
	rival := res
	rival.ID = uuid.New()
	if _, err := l.Ledger.Commit(ctx, rival); err != nil {
		return domain.Reservation{}, err
	}
	return l.Ledger.Commit(ctx, res)
}

func TestCancel_Window(t *testing.T) {
	f := newFixture(t)
	clientID := uuid.New()
	res := f.commit(t, clientID, "2025-02-01", "2025-02-04")

	if _, err := f.svc.Cancel(context.Background(), res.ID, uuid.New()); !errors.Is(err, domain.ErrNotOwner) {
		t.Errorf("expected ErrNotOwner, got %v", err)
	}

	*f.clock = time.Date(2025, 2, 2, 12, 0, 0, 0, time.UTC)
	if _, err := f.svc.Cancel(context.Background(), res.ID, clientID); !errors.Is(err, domain.ErrNotCancellable) {
		t.Errorf("past check-in: expected ErrNotCancellable, got %v", err)
	}

	*f.clock = today
	cancelled, err := f.svc.Cancel(context.Background(), res.ID, clientID)
	if err != nil {
		t.Fatal(err)
	}
	if cancelled.Status != domain.StatusCancelled || cancelled.CancelledAt == nil {
		t.Errorf("unexpected %+v", cancelled)
	}
	if _, err := f.svc.Cancel(context.Background(), res.ID, clientID); !errors.Is(err, domain.ErrNotCancellable) {
		t.Errorf("already cancelled: expected ErrNotCancellable, got %v", err)
	}

	// The freed range can be booked again.
	f.commit(t, uuid.New(), "2025-02-01", "2025-02-04")
}

func TestConfirmAndReads(t *testing.T) {
	f := newFixture(t)
	clientID := uuid.New()
	first := f.commit(t, clientID, "2025-02-01", "2025-02-04")
	*f.clock = today.Add(time.Hour)
	second := f.commit(t, clientID, "2025-03-01", "2025-03-04")

	confirmed, err := f.svc.Confirm(context.Background(), first.ID)
	if err != nil {
		t.Fatal(err)
	}
	if confirmed.Status != domain.StatusConfirmed {
		t.Errorf("expected confirmed, got %s", confirmed.Status)
	}
	if _, err := f.svc.Confirm(context.Background(), first.ID); !errors.Is(err, domain.ErrNotConfirmable) {
		t.Errorf("expected ErrNotConfirmable, got %v", err)
	}

	list, err := f.svc.ClientReservations(context.Background(), clientID)
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 2 || list[0].ID != second.ID {
		t.Errorf("expected newest first, got %v", list)
	}

	got, err := f.svc.Reservation(context.Background(), first.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.EffectiveStatus(time.Date(2025, 2, 10, 0, 0, 0, 0, time.UTC)) != domain.StatusCompleted {
		t.Error("expected completed after checkout")
	}
}

func TestQuote_LastWinsPolicy(t *testing.T) {
	f := newFixture(t, pricing.WithPolicy(pricing.PolicyLastWins))
	f.addOverride(t, "2025-02-01", "2025-02-03", "4000")
	f.addOverride(t, "2025-02-02", "2025-02-04", "3000")

	q, err := f.svc.Quote(context.Background(), f.property.ID, mustRange(t, "2025-02-01", "2025-02-05"), 2)
	if err != nil {
		t.Fatal(err)
	}
	if !q.TotalPrice.Equal(domain.MustMoney("15000")) {
		t.Errorf("expected 15000, got %s", q.TotalPrice)
	}
}
