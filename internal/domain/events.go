package domain

import (
	"time"

	"github.com/google/uuid"
)

const (
	EventReservationCreated   = "reservation.created"
	EventReservationCancelled = "reservation.cancelled"
	EventReservationConfirmed = "reservation.confirmed"
	EventReservationCompleted = "reservation.completed"
)

// ReservationEvent is the payload of every reservation lifecycle event.
type ReservationEvent struct {
	ReservationID uuid.UUID `json:"reservation_id"`
	PropertyID    uuid.UUID `json:"property_id"`
	ClientID      uuid.UUID `json:"client_id"`
	CheckIn       string    `json:"check_in"`
	CheckOut      string    `json:"check_out"`
	Status        Status    `json:"status"`
	Guests        int       `json:"guests"`
	TotalPrice    string    `json:"total_price"`
	Currency      string    `json:"currency"`
	OccurredAt    time.Time `json:"occurred_at"`
}

func NewReservationEvent(res Reservation, at time.Time) ReservationEvent {
	return ReservationEvent{
		ReservationID: res.ID,
		PropertyID:    res.PropertyID,
		ClientID:      res.ClientID,
		CheckIn:       FormatDate(res.Range.Start),
		CheckOut:      FormatDate(res.Range.End),
		Status:        res.Status,
		Guests:        res.Guests,
		TotalPrice:    FormatMoney(res.TotalPrice, res.Currency),
		Currency:      res.Currency,
		OccurredAt:    at.UTC(),
	}
}
