package domain

import (
	"time"

	"github.com/google/uuid"
)

// Property is the price basis snapshot used for one quote or commit.
type Property struct {
	ID                uuid.UUID
	OwnerID           uuid.UUID
	PricePerNightBase Money
	Currency          string
	MaxGuests         int
	IsActive          bool
}

// AvailabilityOverride is an owner-authored exception for a sub-range of
// dates. A nil PriceOverride leaves the base price in place.
type AvailabilityOverride struct {
	ID            uuid.UUID
	PropertyID    uuid.UUID
	Range         DateRange
	IsAvailable   bool
	PriceOverride *Money
	Notes         string
	CreatedAt     time.Time
}

// NewAvailabilityOverride validates an owner override.
func NewAvailabilityOverride(propertyID uuid.UUID, r DateRange, isAvailable bool, price *Money, notes string, now time.Time) (AvailabilityOverride, error) {
	if _, err := r.Nights(); err != nil {
		return AvailabilityOverride{}, err
	}
	if price != nil && price.IsNegative() {
		return AvailabilityOverride{}, ErrNegativePrice
	}
	return AvailabilityOverride{
		ID:            uuid.New(),
		PropertyID:    propertyID,
		Range:         r,
		IsAvailable:   isAvailable,
		PriceOverride: price,
		Notes:         notes,
		CreatedAt:     now.UTC(),
	}, nil
}

// Prices reports whether the override takes part in pricing.
func (o AvailabilityOverride) Prices() bool {
	return o.IsAvailable && o.PriceOverride != nil
}
