// Package payments confirms reservations from payment outcome messages.
package payments

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/robertarktes/rental-reservations/internal/domain"
	"github.com/robertarktes/rental-reservations/internal/observability"
)

type Event struct {
	ReservationID uuid.UUID `json:"reservation_id"`
	Status        string    `json:"status"`
	TransactionID string    `json:"transaction_id"`
}

type Confirmer interface {
	Confirm(ctx context.Context, reservationID uuid.UUID) (domain.Reservation, error)
}

type Handler struct {
	confirmer Confirmer
	logger    observability.Logger
}

func NewHandler(confirmer Confirmer, logger observability.Logger) *Handler {
	return &Handler{confirmer: confirmer, logger: logger}
}

// Handle confirms the reservation named by a succeeded payment. Other
// outcomes are logged and dropped; the reservation stays pending.
func (h *Handler) Handle(ctx context.Context, body []byte) error {
	var ev Event
	if err := json.Unmarshal(body, &ev); err != nil {
		return domain.InvalidInputf("decode payment event: %v", err)
	}
	if ev.ReservationID == uuid.Nil {
		return domain.InvalidInputf("payment event without reservation_id")
	}

	log := h.logger.WithField("reservation_id", ev.ReservationID).WithField("transaction_id", ev.TransactionID)
	if !strings.EqualFold(ev.Status, "succeeded") {
		log.WithField("status", ev.Status).Info("payment not successful, reservation left pending")
		return nil
	}
	if _, err := h.confirmer.Confirm(ctx, ev.ReservationID); err != nil {
		return errors.Wrapf(err, "confirm reservation %s", ev.ReservationID)
	}
	return nil
}

// permanent errors are acknowledged; redelivery would fail the same way.
func permanent(err error) bool {
	return errors.Is(err, domain.ErrInvalidInput) ||
		errors.Is(err, domain.ErrNotFound) ||
		errors.Is(err, domain.ErrNotConfirmable)
}

// Run handles deliveries until ctx is done or the channel closes.
func (h *Handler) Run(ctx context.Context, deliveries <-chan amqp.Delivery) {
	for {
		select {
		case <-ctx.Done():
			return
		case d, ok := <-deliveries:
			if !ok {
				return
			}
			err := h.Handle(ctx, d.Body)
			switch {
			case err == nil:
				d.Ack(false)
			case permanent(err):
				h.logger.WithField("message_id", d.MessageId).Warn("dropping payment event: ", err)
				d.Ack(false)
			default:
				h.logger.WithField("message_id", d.MessageId).Error("payment event failed, requeueing: ", err)
				d.Nack(false, true)
			}
		}
	}
}
