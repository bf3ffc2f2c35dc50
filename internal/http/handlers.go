package http

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/robertarktes/rental-reservations/internal/booking"
	"github.com/robertarktes/rental-reservations/internal/domain"
	"github.com/robertarktes/rental-reservations/internal/observability"
)

// ReadinessCheck is probed by /v1/readyz.
type ReadinessCheck struct {
	Name  string
	Check func(ctx context.Context) error
}

type Handlers struct {
	svc       *booking.Orchestrator
	overrides *booking.OverrideManager
	logger    observability.Logger
	checks    []ReadinessCheck
}

func NewHandlers(svc *booking.Orchestrator, overrides *booking.OverrideManager, logger observability.Logger, checks ...ReadinessCheck) *Handlers {
	return &Handlers{
		svc:       svc,
		overrides: overrides,
		logger:    logger,
		checks:    checks,
	}
}

type quoteResponse struct {
	PropertyID    uuid.UUID `json:"property_id"`
	CheckIn       string    `json:"check_in"`
	CheckOut      string    `json:"check_out"`
	Nights        int       `json:"nights"`
	Guests        int       `json:"guests"`
	PricePerNight string    `json:"price_per_night"`
	TotalPrice    string    `json:"total_price"`
	Currency      string    `json:"currency"`
}

type availabilityResponse struct {
	quoteResponse
	Available   bool     `json:"available"`
	BookedDates []string `json:"booked_dates"`
	ClosedDates []string `json:"closed_dates"`
}

type reservationResponse struct {
	ID              uuid.UUID  `json:"id"`
	PropertyID      uuid.UUID  `json:"property_id"`
	ClientID        uuid.UUID  `json:"client_id"`
	CheckIn         string     `json:"check_in"`
	CheckOut        string     `json:"check_out"`
	Nights          int        `json:"nights"`
	Guests          int        `json:"guests"`
	Status          string     `json:"status"`
	TotalPrice      string     `json:"total_price"`
	Currency        string     `json:"currency"`
	SpecialRequests string     `json:"special_requests,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	ConfirmedAt     *time.Time `json:"confirmed_at,omitempty"`
	CancelledAt     *time.Time `json:"cancelled_at,omitempty"`
}

type overrideResponse struct {
	ID            uuid.UUID `json:"id"`
	PropertyID    uuid.UUID `json:"property_id"`
	StartDate     string    `json:"start_date"`
	EndDate       string    `json:"end_date"`
	IsAvailable   bool      `json:"is_available"`
	PriceOverride *string   `json:"price_override"`
	Notes         string    `json:"notes,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

func newQuoteResponse(q booking.Quote) quoteResponse {
	return quoteResponse{
		PropertyID:    q.PropertyID,
		CheckIn:       domain.FormatDate(q.Range.Start),
		CheckOut:      domain.FormatDate(q.Range.End),
		Nights:        q.Nights,
		Guests:        q.Guests,
		PricePerNight: domain.FormatMoney(q.PricePerNight, q.Currency),
		TotalPrice:    domain.FormatMoney(q.TotalPrice, q.Currency),
		Currency:      q.Currency,
	}
}

func (h *Handlers) newReservationResponse(res domain.Reservation) reservationResponse {
	nights, _ := res.Range.Nights()
	return reservationResponse{
		ID:              res.ID,
		PropertyID:      res.PropertyID,
		ClientID:        res.ClientID,
		CheckIn:         domain.FormatDate(res.Range.Start),
		CheckOut:        domain.FormatDate(res.Range.End),
		Nights:          nights,
		Guests:          res.Guests,
		Status:          string(res.EffectiveStatus(h.svc.Now())),
		TotalPrice:      domain.FormatMoney(res.TotalPrice, res.Currency),
		Currency:        res.Currency,
		SpecialRequests: res.SpecialRequests,
		CreatedAt:       res.CreatedAt,
		ConfirmedAt:     res.ConfirmedAt,
		CancelledAt:     res.CancelledAt,
	}
}

func newOverrideResponse(o domain.AvailabilityOverride) overrideResponse {
	resp := overrideResponse{
		ID:          o.ID,
		PropertyID:  o.PropertyID,
		StartDate:   domain.FormatDate(o.Range.Start),
		EndDate:     domain.FormatDate(o.Range.End),
		IsAvailable: o.IsAvailable,
		Notes:       o.Notes,
		CreatedAt:   o.CreatedAt,
	}
	if o.PriceOverride != nil {
		// Overrides carry no currency; keep the digits the owner entered.
		s := domain.FormatMoney(*o.PriceOverride, "")
		resp.PriceOverride = &s
	}
	return resp
}

// stayQuery reads check_in, check_out and guests (default 1) from the query string.
func stayQuery(r *http.Request) (domain.DateRange, int, error) {
	q := r.URL.Query()
	dr, err := domain.ParseDateRange(q.Get("check_in"), q.Get("check_out"))
	if err != nil {
		return domain.DateRange{}, 0, err
	}
	guests := 1
	if raw := q.Get("guests"); raw != "" {
		guests, err = strconv.Atoi(raw)
		if err != nil {
			return domain.DateRange{}, 0, domain.InvalidInputf("guests must be an integer, got %q", raw)
		}
	}
	return dr, guests, nil
}

func (h *Handlers) Availability(w http.ResponseWriter, r *http.Request) {
	propertyID, err := uuidParam(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	dr, guests, err := stayQuery(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	report, err := h.svc.Availability(r.Context(), propertyID, dr, guests)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, availabilityResponse{
		quoteResponse: newQuoteResponse(report.Quote),
		Available:     report.Available,
		BookedDates:   formatDates(report.BookedDates),
		ClosedDates:   formatDates(report.ClosedDates),
	})
}

func (h *Handlers) Quote(w http.ResponseWriter, r *http.Request) {
	propertyID, err := uuidParam(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	dr, guests, err := stayQuery(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	q, err := h.svc.Quote(r.Context(), propertyID, dr, guests)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newQuoteResponse(q))
}

func (h *Handlers) CreateReservation(w http.ResponseWriter, r *http.Request) {
	actorID, err := requireActor(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	var req struct {
		PropertyID      uuid.UUID `json:"property_id"`
		CheckIn         string    `json:"check_in"`
		CheckOut        string    `json:"check_out"`
		Guests          int       `json:"guests"`
		SpecialRequests string    `json:"special_requests"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, r, domain.InvalidInputf("decode body: %v", err))
		return
	}
	dr, err := domain.ParseDateRange(req.CheckIn, req.CheckOut)
	if err != nil {
		writeError(w, r, err)
		return
	}

	res, err := h.svc.Commit(r.Context(), booking.CommitRequest{
		PropertyID:      req.PropertyID,
		ClientID:        actorID,
		Range:           dr,
		Guests:          req.Guests,
		SpecialRequests: req.SpecialRequests,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, h.newReservationResponse(res))
}

func (h *Handlers) GetReservation(w http.ResponseWriter, r *http.Request) {
	actorID, err := requireActor(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	id, err := uuidParam(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}

	res, err := h.svc.Reservation(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if res.ClientID != actorID {
		writeError(w, r, domain.ErrNotOwner)
		return
	}
	writeJSON(w, http.StatusOK, h.newReservationResponse(res))
}

func (h *Handlers) CancelReservation(w http.ResponseWriter, r *http.Request) {
	actorID, err := requireActor(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	id, err := uuidParam(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}

	res, err := h.svc.Cancel(r.Context(), id, actorID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, h.newReservationResponse(res))
}

func (h *Handlers) ClientReservations(w http.ResponseWriter, r *http.Request) {
	actorID, err := requireActor(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	clientID, err := uuidParam(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	if clientID != actorID {
		writeError(w, r, domain.ErrNotOwner)
		return
	}

	list, err := h.svc.ClientReservations(r.Context(), clientID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	resp := make([]reservationResponse, len(list))
	for i, res := range list {
		resp[i] = h.newReservationResponse(res)
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handlers) ListOverrides(w http.ResponseWriter, r *http.Request) {
	propertyID, err := uuidParam(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	list, err := h.overrides.List(r.Context(), propertyID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	resp := make([]overrideResponse, len(list))
	for i, o := range list {
		resp[i] = newOverrideResponse(o)
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handlers) CreateOverride(w http.ResponseWriter, r *http.Request) {
	actorID, err := requireActor(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	propertyID, err := uuidParam(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}

	var req struct {
		StartDate     string  `json:"start_date"`
		EndDate       string  `json:"end_date"`
		IsAvailable   *bool   `json:"is_available"`
		PriceOverride *string `json:"price_override"`
		Notes         string  `json:"notes"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, r, domain.InvalidInputf("decode body: %v", err))
		return
	}
	dr, err := domain.ParseDateRange(req.StartDate, req.EndDate)
	if err != nil {
		writeError(w, r, err)
		return
	}
	in := booking.OverrideInput{Range: dr, IsAvailable: true, Notes: req.Notes}
	if req.IsAvailable != nil {
		in.IsAvailable = *req.IsAvailable
	}
	if req.PriceOverride != nil {
		price, err := domain.ParseMoney(*req.PriceOverride)
		if err != nil {
			writeError(w, r, err)
			return
		}
		in.PriceOverride = &price
	}

	o, err := h.overrides.Create(r.Context(), actorID, propertyID, in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, newOverrideResponse(o))
}

func (h *Handlers) DeleteOverride(w http.ResponseWriter, r *http.Request) {
	actorID, err := requireActor(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	propertyID, err := uuidParam(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	overrideID, err := uuidParam(r, "overrideID")
	if err != nil {
		writeError(w, r, err)
		return
	}

	if err := h.overrides.Delete(r.Context(), actorID, propertyID, overrideID); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handlers) Healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

func (h *Handlers) Readyz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	failing := map[string]string{}
	for _, c := range h.checks {
		if err := c.Check(ctx); err != nil {
			failing[c.Name] = err.Error()
		}
	}
	if len(failing) > 0 {
		h.logger.WithField("checks", failing).Warn("readiness check failed")
		writeJSON(w, http.StatusServiceUnavailable, failing)
		return
	}
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("Ready"))
}

func uuidParam(r *http.Request, name string) (uuid.UUID, error) {
	raw := chi.URLParam(r, name)
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, domain.InvalidInputf("invalid %s %q", name, raw)
	}
	return id, nil
}

func formatDates(dates []time.Time) []string {
	out := make([]string, len(dates))
	for i, d := range dates {
		out[i] = domain.FormatDate(d)
	}
	return out
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
