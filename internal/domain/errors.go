package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
)

var (
	ErrSerializationFailure = errors.New("serialization failure")
	ErrNotFound             = errors.New("not found")
	ErrConflict             = errors.New("conflicting reservation")
	ErrInvalidInput         = errors.New("invalid input")

	ErrInvalidRange     = errors.New("invalid date range")
	ErrCapacity         = errors.New("guest count exceeds property capacity")
	ErrUnavailable      = errors.New("property unavailable for requested dates")
	ErrNotCancellable   = errors.New("reservation cannot be cancelled")
	ErrNotConfirmable   = errors.New("reservation cannot be confirmed")
	ErrInvalidGuests    = errors.New("guest count must be at least one")
	ErrNegativePrice    = errors.New("price must not be negative")
	ErrPropertyInactive = errors.New("property is not active")
	ErrNotOwner         = errors.New("actor does not own reservation")
	ErrCheckInNotFuture = errors.New("check-in date must be after today")
)

// InvalidRangeError reports a range whose end is not after its start.
type InvalidRangeError struct {
	Start time.Time
	End   time.Time
}

func (e *InvalidRangeError) Error() string {
	return fmt.Sprintf("invalid date range: end %s is not after start %s", FormatDate(e.End), FormatDate(e.Start))
}

func (e *InvalidRangeError) Is(target error) bool { return target == ErrInvalidRange }

// CapacityError reports a guest count above the property's maximum.
type CapacityError struct {
	Requested int
	Max       int
}

func (e *CapacityError) Error() string {
	return fmt.Sprintf("property can only accommodate %d guests, %d requested", e.Max, e.Requested)
}

func (e *CapacityError) Is(target error) bool { return target == ErrCapacity }

// UnavailableError is returned by a quote when blocking reservations overlap
// the requested range. BlockedDates lists the occupied nights inside it.
type UnavailableError struct {
	PropertyID   uuid.UUID
	Range        DateRange
	BlockedDates []time.Time
}

func (e *UnavailableError) Error() string {
	dates := make([]string, len(e.BlockedDates))
	for i, d := range e.BlockedDates {
		dates[i] = FormatDate(d)
	}
	return fmt.Sprintf("property %s unavailable for %s: blocked %s", e.PropertyID, e.Range, strings.Join(dates, ","))
}

func (e *UnavailableError) Is(target error) bool { return target == ErrUnavailable }

// ConflictError is returned by a commit that lost a race against another
// blocking reservation. Callers should re-quote.
type ConflictError struct {
	PropertyID uuid.UUID
	Range      DateRange
	// BlockedDates is filled when the conflict was seen before the insert.
	BlockedDates []time.Time
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("conflicting reservation on property %s for %s", e.PropertyID, e.Range)
}

func (e *ConflictError) Is(target error) bool { return target == ErrConflict }

// NotCancellableError reports a cancellation outside the allowed window.
type NotCancellableError struct {
	ReservationID uuid.UUID
	Status        Status
	CheckIn       time.Time
}

func (e *NotCancellableError) Error() string {
	return fmt.Sprintf("reservation %s (%s, check-in %s) cannot be cancelled", e.ReservationID, e.Status, FormatDate(e.CheckIn))
}

func (e *NotCancellableError) Is(target error) bool { return target == ErrNotCancellable }

func wrapInput(err error, format string, args ...interface{}) error {
	return errors.Mark(errors.Wrapf(err, format, args...), ErrInvalidInput)
}

// InvalidInputf builds an ErrInvalidInput-marked error.
func InvalidInputf(format string, args ...interface{}) error {
	return errors.Mark(errors.Newf(format, args...), ErrInvalidInput)
}
