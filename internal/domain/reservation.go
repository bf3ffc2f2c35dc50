package domain

import (
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusConfirmed Status = "confirmed"
	StatusCancelled Status = "cancelled"
	StatusCompleted Status = "completed"
)

// BlockingStatuses are the statuses that occupy a date range exclusively.
var BlockingStatuses = []Status{StatusPending, StatusConfirmed}

func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusConfirmed, StatusCancelled, StatusCompleted:
		return true
	}
	return false
}

func (s Status) Blocking() bool {
	return s == StatusPending || s == StatusConfirmed
}

const maxSpecialRequests = 1000

type Reservation struct {
	ID              uuid.UUID
	PropertyID      uuid.UUID
	ClientID        uuid.UUID
	Range           DateRange
	Status          Status
	Guests          int
	TotalPrice      Money
	Currency        string
	SpecialRequests string
	CreatedAt       time.Time
	ConfirmedAt     *time.Time
	CancelledAt     *time.Time
}

// NewReservation builds a pending reservation ready to be committed.
func NewReservation(propertyID, clientID uuid.UUID, r DateRange, guests int, total Money, currency, specialRequests string, now time.Time) (Reservation, error) {
	if guests < 1 {
		return Reservation{}, ErrInvalidGuests
	}
	if len(specialRequests) > maxSpecialRequests {
		return Reservation{}, InvalidInputf("special requests exceed %d characters", maxSpecialRequests)
	}
	if total.IsNegative() {
		return Reservation{}, ErrNegativePrice
	}
	if currency == "" {
		currency = DefaultCurrency
	}
	return Reservation{
		ID:              uuid.New(),
		PropertyID:      propertyID,
		ClientID:        clientID,
		Range:           r,
		Status:          StatusPending,
		Guests:          guests,
		TotalPrice:      RoundMinor(total, currency),
		Currency:        currency,
		SpecialRequests: specialRequests,
		CreatedAt:       now.UTC(),
	}, nil
}

// IsBlocking reports whether the stored status occupies the range.
func (r Reservation) IsBlocking() bool {
	return r.Status.Blocking()
}

// IsCompleted is true once the stored status is completed or the checkout
// date is in the past, whichever comes first.
func (r Reservation) IsCompleted(now time.Time) bool {
	return r.Status == StatusCompleted || r.Range.End.Before(now)
}

// CanBeCancelled requires a blocking status and a check-in strictly in the future.
func (r Reservation) CanBeCancelled(now time.Time) bool {
	return r.Status.Blocking() && r.Range.Start.After(now)
}

// EffectiveStatus is the status callers should observe at now.
func (r Reservation) EffectiveStatus(now time.Time) Status {
	if r.Status == StatusCancelled {
		return StatusCancelled
	}
	if r.IsCompleted(now) {
		return StatusCompleted
	}
	return r.Status
}

// Cancel transitions a blocking reservation to cancelled.
func (r Reservation) Cancel(now time.Time) (Reservation, error) {
	if !r.CanBeCancelled(now) {
		return r, &NotCancellableError{ReservationID: r.ID, Status: r.Status, CheckIn: r.Range.Start}
	}
	at := now.UTC()
	r.Status = StatusCancelled
	r.CancelledAt = &at
	return r, nil
}

// Confirm transitions a pending reservation to confirmed.
func (r Reservation) Confirm(now time.Time) (Reservation, error) {
	if r.Status != StatusPending || r.IsCompleted(now) {
		return r, errors.Wrapf(ErrNotConfirmable, "reservation %s is %s", r.ID, r.EffectiveStatus(now))
	}
	at := now.UTC()
	r.Status = StatusConfirmed
	r.ConfirmedAt = &at
	return r, nil
}
