package booking

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/robertarktes/rental-reservations/internal/domain"
)

// Ledger is the authority for committed reservations of a property.
type Ledger interface {
	// BlockingRanges returns the ranges of every pending or confirmed
	// reservation of the property. It may be called repeatedly.
	BlockingRanges(ctx context.Context, propertyID uuid.UUID) ([]domain.DateRange, error)
	// HasConflict reports whether any blocking reservation overlaps r.
	HasConflict(ctx context.Context, propertyID uuid.UUID, r domain.DateRange) (bool, error)
	// Commit stores a pending reservation. The overlap re-check and the insert
	// are atomic per property; a lost race returns *domain.ConflictError.
	Commit(ctx context.Context, res domain.Reservation) (domain.Reservation, error)
	Cancel(ctx context.Context, reservationID, actorID uuid.UUID, now time.Time) (domain.Reservation, error)
	Confirm(ctx context.Context, reservationID uuid.UUID, now time.Time) (domain.Reservation, error)
	Get(ctx context.Context, reservationID uuid.UUID) (domain.Reservation, error)
	ListByClient(ctx context.Context, clientID uuid.UUID) ([]domain.Reservation, error)
}

// OverrideStore is the read side of owner availability overrides.
type OverrideStore interface {
	// OverridesOverlapping returns available overrides intersecting r, in
	// query order.
	OverridesOverlapping(ctx context.Context, propertyID uuid.UUID, r domain.DateRange) ([]domain.AvailabilityOverride, error)
	// ClosedOverlapping returns unavailable overrides intersecting r.
	ClosedOverlapping(ctx context.Context, propertyID uuid.UUID, r domain.DateRange) ([]domain.AvailabilityOverride, error)
}

type PropertyCatalog interface {
	Property(ctx context.Context, id uuid.UUID) (domain.Property, error)
}

// QuoteKey addresses a cached price. Version changes whenever the property's
// ledger or overrides change; BasePrice and Currency capture catalog edits.
type QuoteKey struct {
	PropertyID uuid.UUID
	Version    int64
	BasePrice  string
	Currency   string
	Range      domain.DateRange
	Guests     int
}

type QuoteCache interface {
	Version(ctx context.Context, propertyID uuid.UUID) (int64, error)
	GetQuote(ctx context.Context, key QuoteKey) (Quote, bool, error)
	SetQuote(ctx context.Context, key QuoteKey, q Quote) error
	Invalidate(ctx context.Context, propertyID uuid.UUID) error
}

// AuditLog records reservation lifecycle actions outside the ledger.
type AuditLog interface {
	Record(ctx context.Context, action string, res domain.Reservation) error
}
