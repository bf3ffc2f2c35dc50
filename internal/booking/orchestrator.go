// Package booking answers "is this range bookable, and at what price" for a
// property and commits reservations without double-booking.
package booking

import (
	"context"
	"sort"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/robertarktes/rental-reservations/internal/domain"
	"github.com/robertarktes/rental-reservations/internal/observability"
	"github.com/robertarktes/rental-reservations/internal/pricing"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
)

var tracer = otel.Tracer("booking")

type Quote struct {
	PropertyID    uuid.UUID        `json:"property_id"`
	Range         domain.DateRange `json:"range"`
	Guests        int              `json:"guests"`
	Nights        int              `json:"nights"`
	PricePerNight domain.Money     `json:"price_per_night"`
	TotalPrice    domain.Money     `json:"total_price"`
	Currency      string           `json:"currency"`
}

// AvailabilityReport is a quote that is returned even when the range is
// taken, together with the nights that block it.
type AvailabilityReport struct {
	Quote
	Available   bool
	BookedDates []time.Time
	ClosedDates []time.Time
}

type CommitRequest struct {
	PropertyID      uuid.UUID
	ClientID        uuid.UUID
	Range           domain.DateRange
	Guests          int
	SpecialRequests string
}

type Orchestrator struct {
	catalog   PropertyCatalog
	ledger    Ledger
	overrides OverrideStore
	engine    *pricing.Engine
	cache     QuoteCache
	audit     AuditLog
	logger    observability.Logger
	now       func() time.Time
	currency  string
}

type Option func(*Orchestrator)

func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) {
		o.now = now
	}
}

func WithQuoteCache(cache QuoteCache) Option {
	return func(o *Orchestrator) {
		o.cache = cache
	}
}

// WithDefaultCurrency sets the currency for properties that carry none.
func WithDefaultCurrency(currency string) Option {
	return func(o *Orchestrator) {
		if currency != "" {
			o.currency = currency
		}
	}
}

// WithAuditLog records commits, cancellations and confirmations. Audit
// failures are logged and never fail the operation.
func WithAuditLog(audit AuditLog) Option {
	return func(o *Orchestrator) {
		o.audit = audit
	}
}

func NewOrchestrator(catalog PropertyCatalog, ledger Ledger, overrides OverrideStore, engine *pricing.Engine, logger observability.Logger, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		catalog:   catalog,
		ledger:    ledger,
		overrides: overrides,
		engine:    engine,
		logger:    logger,
		now:       time.Now,
		currency:  domain.DefaultCurrency,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Now is the orchestrator's clock, used by callers to derive effective statuses.
func (o *Orchestrator) Now() time.Time {
	return o.now()
}

// Quote prices r for guests. It has no side effects on the ledger.
func (o *Orchestrator) Quote(ctx context.Context, propertyID uuid.UUID, r domain.DateRange, guests int) (Quote, error) {
	ctx, span := tracer.Start(ctx, "booking.Quote", trace.WithAttributes(
		attribute.String("property.id", propertyID.String()),
		attribute.String("range", r.String()),
	))
	defer span.End()

	prop, err := o.admit(ctx, propertyID, r, guests)
	if err != nil {
		return Quote{}, err
	}

	// The cache only holds prices; availability always comes from the ledger.
	var (
		conflict  bool
		overrides []domain.AvailabilityOverride
		key       *QuoteKey
		cached    Quote
		hit       bool
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		c, err := o.ledger.HasConflict(gctx, propertyID, r)
		conflict = c
		return err
	})
	g.Go(func() error {
		key, cached, hit = o.cachedQuote(gctx, prop, r, guests)
		if hit {
			return nil
		}
		ov, err := o.overrides.OverridesOverlapping(gctx, propertyID, r)
		overrides = ov
		return err
	})
	if err := g.Wait(); err != nil {
		return Quote{}, err
	}

	if conflict {
		observability.QuotesTotal.WithLabelValues("unavailable").Inc()
		return Quote{}, o.unavailable(ctx, propertyID, r)
	}
	if hit {
		observability.QuotesTotal.WithLabelValues("cached").Inc()
		return cached, nil
	}

	q, err := o.price(prop, r, guests, overrides)
	if err != nil {
		return Quote{}, err
	}
	observability.QuotesTotal.WithLabelValues("available").Inc()

	if key != nil {
		if err := o.cache.SetQuote(ctx, *key, q); err != nil {
			o.logger.WithField("property_id", propertyID).Warn("failed to cache quote: ", err)
		}
	}
	return q, nil
}

// Availability reports price and blocked nights for r whether or not it is
// free. Capacity and range validation still fail with typed errors.
func (o *Orchestrator) Availability(ctx context.Context, propertyID uuid.UUID, r domain.DateRange, guests int) (AvailabilityReport, error) {
	ctx, span := tracer.Start(ctx, "booking.Availability")
	defer span.End()

	prop, err := o.admit(ctx, propertyID, r, guests)
	if err != nil {
		return AvailabilityReport{}, err
	}

	var (
		conflict  bool
		overrides []domain.AvailabilityOverride
		closed    []domain.AvailabilityOverride
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		c, err := o.ledger.HasConflict(gctx, propertyID, r)
		conflict = c
		return err
	})
	g.Go(func() error {
		ov, err := o.overrides.OverridesOverlapping(gctx, propertyID, r)
		overrides = ov
		return err
	})
	g.Go(func() error {
		cl, err := o.overrides.ClosedOverlapping(gctx, propertyID, r)
		closed = cl
		return err
	})
	if err := g.Wait(); err != nil {
		return AvailabilityReport{}, err
	}

	q, err := o.price(prop, r, guests, overrides)
	if err != nil {
		return AvailabilityReport{}, err
	}
	report := AvailabilityReport{
		Quote:       q,
		Available:   !conflict,
		BookedDates: []time.Time{},
		ClosedDates: datesWithin(r, rangesOf(closed)),
	}
	if conflict {
		report.BookedDates, err = o.BookedDatesWithin(ctx, propertyID, r)
		if err != nil {
			return AvailabilityReport{}, err
		}
	}
	return report, nil
}

// BookedDatesWithin expands every blocking reservation into its nights,
// clipped to r, de-duplicated and sorted.
func (o *Orchestrator) BookedDatesWithin(ctx context.Context, propertyID uuid.UUID, r domain.DateRange) ([]time.Time, error) {
	ranges, err := o.ledger.BlockingRanges(ctx, propertyID)
	if err != nil {
		return nil, err
	}
	return datesWithin(r, ranges), nil
}

// Commit re-validates, re-prices and stores a pending reservation. A quote
// obtained earlier is never trusted.
func (o *Orchestrator) Commit(ctx context.Context, req CommitRequest) (domain.Reservation, error) {
	ctx, span := tracer.Start(ctx, "booking.Commit", trace.WithAttributes(
		attribute.String("property.id", req.PropertyID.String()),
		attribute.String("range", req.Range.String()),
	))
	defer span.End()

	now := o.now()
	prop, err := o.admit(ctx, req.PropertyID, req.Range, req.Guests)
	if err != nil {
		return domain.Reservation{}, err
	}
	if !req.Range.Start.After(domain.Day(now)) {
		return domain.Reservation{}, errors.Wrapf(domain.ErrCheckInNotFuture, "check-in %s", domain.FormatDate(req.Range.Start))
	}

	conflict, err := o.ledger.HasConflict(ctx, req.PropertyID, req.Range)
	if err != nil {
		return domain.Reservation{}, err
	}
	if conflict {
		observability.CommitConflicts.Inc()
		dates, err := o.BookedDatesWithin(ctx, req.PropertyID, req.Range)
		if err != nil {
			return domain.Reservation{}, err
		}
		return domain.Reservation{}, &domain.ConflictError{PropertyID: req.PropertyID, Range: req.Range, BlockedDates: dates}
	}

	overrides, err := o.overrides.OverridesOverlapping(ctx, req.PropertyID, req.Range)
	if err != nil {
		return domain.Reservation{}, err
	}
	q, err := o.price(prop, req.Range, req.Guests, overrides)
	if err != nil {
		return domain.Reservation{}, err
	}

	res, err := domain.NewReservation(req.PropertyID, req.ClientID, req.Range, req.Guests, q.TotalPrice, q.Currency, req.SpecialRequests, now)
	if err != nil {
		return domain.Reservation{}, err
	}
	committed, err := o.ledger.Commit(ctx, res)
	if err != nil {
		if errors.Is(err, domain.ErrConflict) {
			observability.CommitConflicts.Inc()
		}
		return domain.Reservation{}, err
	}
	o.InvalidateQuotes(ctx, req.PropertyID)
	o.record(ctx, domain.EventReservationCreated, committed)

	o.logger.WithField("reservation_id", committed.ID).
		WithField("property_id", committed.PropertyID).
		WithField("range", committed.Range.String()).
		Info("reservation committed")
	return committed, nil
}

// Cancel cancels a reservation on behalf of its owning client.
func (o *Orchestrator) Cancel(ctx context.Context, reservationID, actorID uuid.UUID) (domain.Reservation, error) {
	ctx, span := tracer.Start(ctx, "booking.Cancel")
	defer span.End()

	res, err := o.ledger.Get(ctx, reservationID)
	if err != nil {
		return domain.Reservation{}, err
	}
	if res.ClientID != actorID {
		return domain.Reservation{}, errors.Wrapf(domain.ErrNotOwner, "reservation %s", reservationID)
	}
	cancelled, err := o.ledger.Cancel(ctx, reservationID, actorID, o.now())
	if err != nil {
		return domain.Reservation{}, err
	}
	o.InvalidateQuotes(ctx, cancelled.PropertyID)
	o.record(ctx, domain.EventReservationCancelled, cancelled)

	o.logger.WithField("reservation_id", reservationID).Info("reservation cancelled")
	return cancelled, nil
}

// Confirm marks a pending reservation as paid.
func (o *Orchestrator) Confirm(ctx context.Context, reservationID uuid.UUID) (domain.Reservation, error) {
	confirmed, err := o.ledger.Confirm(ctx, reservationID, o.now())
	if err != nil {
		return domain.Reservation{}, err
	}
	o.InvalidateQuotes(ctx, confirmed.PropertyID)
	o.record(ctx, domain.EventReservationConfirmed, confirmed)
	o.logger.WithField("reservation_id", reservationID).Info("reservation confirmed")
	return confirmed, nil
}

func (o *Orchestrator) Reservation(ctx context.Context, reservationID uuid.UUID) (domain.Reservation, error) {
	return o.ledger.Get(ctx, reservationID)
}

// ClientReservations lists a client's reservations, newest first.
func (o *Orchestrator) ClientReservations(ctx context.Context, clientID uuid.UUID) ([]domain.Reservation, error) {
	list, err := o.ledger.ListByClient(ctx, clientID)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(list, func(i, j int) bool {
		return list[i].CreatedAt.After(list[j].CreatedAt)
	})
	return list, nil
}

// InvalidateQuotes drops cached quotes for a property. Cache failures are
// logged, never returned.
func (o *Orchestrator) InvalidateQuotes(ctx context.Context, propertyID uuid.UUID) {
	if o.cache == nil {
		return
	}
	if err := o.cache.Invalidate(ctx, propertyID); err != nil {
		o.logger.WithField("property_id", propertyID).Warn("failed to invalidate quotes: ", err)
	}
}

func (o *Orchestrator) record(ctx context.Context, action string, res domain.Reservation) {
	if o.audit == nil {
		return
	}
	if err := o.audit.Record(ctx, action, res); err != nil {
		o.logger.WithField("reservation_id", res.ID).Warn("failed to write audit log: ", err)
	}
}

// admit runs the checks that need no ledger access: range, guests,
// property state and capacity.
func (o *Orchestrator) admit(ctx context.Context, propertyID uuid.UUID, r domain.DateRange, guests int) (domain.Property, error) {
	if _, err := r.Nights(); err != nil {
		return domain.Property{}, err
	}
	if guests < 1 {
		return domain.Property{}, domain.ErrInvalidGuests
	}
	prop, err := o.catalog.Property(ctx, propertyID)
	if err != nil {
		return domain.Property{}, err
	}
	if !prop.IsActive {
		return domain.Property{}, errors.Wrapf(domain.ErrPropertyInactive, "property %s", propertyID)
	}
	if guests > prop.MaxGuests {
		return domain.Property{}, &domain.CapacityError{Requested: guests, Max: prop.MaxGuests}
	}
	return prop, nil
}

func (o *Orchestrator) price(prop domain.Property, r domain.DateRange, guests int, overrides []domain.AvailabilityOverride) (Quote, error) {
	total, err := o.engine.Total(prop.PricePerNightBase, r, overrides)
	if err != nil {
		return Quote{}, err
	}
	nights, err := r.Nights()
	if err != nil {
		return Quote{}, err
	}
	currency := o.currencyOf(prop)
	return Quote{
		PropertyID:    prop.ID,
		Range:         r,
		Guests:        guests,
		Nights:        nights,
		PricePerNight: prop.PricePerNightBase,
		TotalPrice:    domain.RoundMinor(total, currency),
		Currency:      currency,
	}, nil
}

func (o *Orchestrator) unavailable(ctx context.Context, propertyID uuid.UUID, r domain.DateRange) error {
	dates, err := o.BookedDatesWithin(ctx, propertyID, r)
	if err != nil {
		return err
	}
	return &domain.UnavailableError{PropertyID: propertyID, Range: r, BlockedDates: dates}
}

func (o *Orchestrator) currencyOf(prop domain.Property) string {
	if prop.Currency != "" {
		return prop.Currency
	}
	return o.currency
}

// cachedQuote keys the lookup on the property's current pricing inputs so a
// catalog change is never answered from a stale entry.
func (o *Orchestrator) cachedQuote(ctx context.Context, prop domain.Property, r domain.DateRange, guests int) (*QuoteKey, Quote, bool) {
	if o.cache == nil {
		return nil, Quote{}, false
	}
	version, err := o.cache.Version(ctx, prop.ID)
	if err != nil {
		o.logger.WithField("property_id", prop.ID).Warn("quote cache unavailable: ", err)
		return nil, Quote{}, false
	}
	key := QuoteKey{
		PropertyID: prop.ID,
		Version:    version,
		BasePrice:  prop.PricePerNightBase.String(),
		Currency:   o.currencyOf(prop),
		Range:      r,
		Guests:     guests,
	}
	q, ok, err := o.cache.GetQuote(ctx, key)
	if err != nil {
		o.logger.WithField("property_id", prop.ID).Warn("failed to read cached quote: ", err)
		return &key, Quote{}, false
	}
	return &key, q, ok
}

func rangesOf(overrides []domain.AvailabilityOverride) []domain.DateRange {
	ranges := make([]domain.DateRange, len(overrides))
	for i, ov := range overrides {
		ranges[i] = ov.Range
	}
	return ranges
}

func datesWithin(r domain.DateRange, ranges []domain.DateRange) []time.Time {
	seen := make(map[int64]struct{})
	dates := []time.Time{}
	for _, br := range ranges {
		overlap, ok := r.Intersect(br)
		if !ok {
			continue
		}
		for _, d := range overlap.Dates() {
			if _, dup := seen[d.Unix()]; dup {
				continue
			}
			seen[d.Unix()] = struct{}{}
			dates = append(dates, d)
		}
	}
	sort.Slice(dates, func(i, j int) bool { return dates[i].Before(dates[j]) })
	return dates
}
