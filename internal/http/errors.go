package http

import (
	"net/http"

	"github.com/cockroachdb/errors"
	"github.com/robertarktes/rental-reservations/internal/auth"
	"github.com/robertarktes/rental-reservations/internal/domain"
	"github.com/robertarktes/rental-reservations/internal/idempotency"
)

type errorResponse struct {
	Error        string   `json:"error"`
	Message      string   `json:"message"`
	BlockedDates []string `json:"blocked_dates,omitempty"`
	MaxGuests    int      `json:"max_guests,omitempty"`
}

var errorStatuses = []struct {
	target error
	status int
	code   string
}{
	{domain.ErrInvalidRange, http.StatusBadRequest, "invalid_range"},
	{domain.ErrCapacity, http.StatusBadRequest, "capacity_exceeded"},
	{domain.ErrUnavailable, http.StatusBadRequest, "unavailable"},
	{domain.ErrNotCancellable, http.StatusBadRequest, "not_cancellable"},
	{domain.ErrNotConfirmable, http.StatusBadRequest, "not_confirmable"},
	{domain.ErrInvalidGuests, http.StatusBadRequest, "invalid_guests"},
	{domain.ErrNegativePrice, http.StatusBadRequest, "negative_price"},
	{domain.ErrPropertyInactive, http.StatusBadRequest, "property_inactive"},
	{domain.ErrCheckInNotFuture, http.StatusBadRequest, "check_in_not_future"},
	{domain.ErrInvalidInput, http.StatusBadRequest, "invalid_input"},
	{domain.ErrConflict, http.StatusConflict, "conflict"},
	{domain.ErrSerializationFailure, http.StatusConflict, "conflict"},
	{idempotency.ErrInProgress, http.StatusConflict, "request_in_progress"},
	{domain.ErrNotOwner, http.StatusForbidden, "forbidden"},
	{domain.ErrNotFound, http.StatusNotFound, "not_found"},
	{auth.ErrInvalidToken, http.StatusUnauthorized, "unauthorized"},
	{auth.ErrExpiredToken, http.StatusUnauthorized, "unauthorized"},
	{errUnauthenticated, http.StatusUnauthorized, "unauthorized"},
}

var errUnauthenticated = errors.New("authentication required")

func idempotencyKeyError(msg string) error {
	return domain.InvalidInputf("%s", msg)
}

func errorStatus(err error) (int, string) {
	for _, e := range errorStatuses {
		if errors.Is(err, e.target) {
			return e.status, e.code
		}
	}
	return http.StatusInternalServerError, "internal"
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, code := errorStatus(err)
	resp := errorResponse{Error: code, Message: err.Error()}

	var unavailable *domain.UnavailableError
	if errors.As(err, &unavailable) {
		resp.BlockedDates = formatDates(unavailable.BlockedDates)
	}
	var conflict *domain.ConflictError
	if errors.As(err, &conflict) && len(conflict.BlockedDates) > 0 {
		resp.BlockedDates = formatDates(conflict.BlockedDates)
	}
	var capacity *domain.CapacityError
	if errors.As(err, &capacity) {
		resp.MaxGuests = capacity.Max
	}
	if status == http.StatusInternalServerError {
		loggerFrom(r.Context()).Error("request failed: ", err)
		resp.Message = "internal error"
	}
	writeJSON(w, status, resp)
}
