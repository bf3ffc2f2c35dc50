// Package memory holds process-local implementations of the booking ports.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/robertarktes/rental-reservations/internal/domain"
)

// Ledger keeps reservations in memory. Commits on one property are serialised
// by that property's lock; different properties never contend.
type Ledger struct {
	mu         sync.Mutex
	properties map[uuid.UUID]*propertyBook
	index      map[uuid.UUID]uuid.UUID // reservation -> property
}

type propertyBook struct {
	mu           sync.Mutex
	reservations []domain.Reservation
}

func NewLedger() *Ledger {
	return &Ledger{
		properties: make(map[uuid.UUID]*propertyBook),
		index:      make(map[uuid.UUID]uuid.UUID),
	}
}

func (l *Ledger) book(propertyID uuid.UUID) *propertyBook {
	l.mu.Lock()
	defer l.mu.Unlock()
	b, ok := l.properties[propertyID]
	if !ok {
		b = &propertyBook{}
		l.properties[propertyID] = b
	}
	return b
}

func (l *Ledger) bookOf(reservationID uuid.UUID) (*propertyBook, error) {
	l.mu.Lock()
	propertyID, ok := l.index[reservationID]
	l.mu.Unlock()
	if !ok {
		return nil, errors.Wrapf(domain.ErrNotFound, "reservation %s", reservationID)
	}
	return l.book(propertyID), nil
}

func (l *Ledger) BlockingRanges(ctx context.Context, propertyID uuid.UUID) ([]domain.DateRange, error) {
	b := l.book(propertyID)
	b.mu.Lock()
	defer b.mu.Unlock()
	var ranges []domain.DateRange
	for _, r := range b.reservations {
		if r.IsBlocking() {
			ranges = append(ranges, r.Range)
		}
	}
	return ranges, nil
}

func (l *Ledger) HasConflict(ctx context.Context, propertyID uuid.UUID, r domain.DateRange) (bool, error) {
	b := l.book(propertyID)
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.conflicts(r), nil
}

func (b *propertyBook) conflicts(r domain.DateRange) bool {
	for _, res := range b.reservations {
		if res.IsBlocking() && res.Range.Overlaps(r) {
			return true
		}
	}
	return false
}

func (l *Ledger) Commit(ctx context.Context, res domain.Reservation) (domain.Reservation, error) {
	b := l.book(res.PropertyID)
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.conflicts(res.Range) {
		return domain.Reservation{}, &domain.ConflictError{PropertyID: res.PropertyID, Range: res.Range}
	}
	b.reservations = append(b.reservations, res)

	l.mu.Lock()
	l.index[res.ID] = res.PropertyID
	l.mu.Unlock()
	return res, nil
}

// Insert stores a reservation as-is, bypassing conflict checks. It seeds
// historical data in tests.
func (l *Ledger) Insert(res domain.Reservation) {
	b := l.book(res.PropertyID)
	b.mu.Lock()
	b.reservations = append(b.reservations, res)
	b.mu.Unlock()

	l.mu.Lock()
	l.index[res.ID] = res.PropertyID
	l.mu.Unlock()
}

func (l *Ledger) update(reservationID uuid.UUID, fn func(domain.Reservation) (domain.Reservation, error)) (domain.Reservation, error) {
	b, err := l.bookOf(reservationID)
	if err != nil {
		return domain.Reservation{}, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, res := range b.reservations {
		if res.ID != reservationID {
			continue
		}
		updated, err := fn(res)
		if err != nil {
			return domain.Reservation{}, err
		}
		b.reservations[i] = updated
		return updated, nil
	}
	return domain.Reservation{}, errors.Wrapf(domain.ErrNotFound, "reservation %s", reservationID)
}

func (l *Ledger) Cancel(ctx context.Context, reservationID, actorID uuid.UUID, now time.Time) (domain.Reservation, error) {
	return l.update(reservationID, func(res domain.Reservation) (domain.Reservation, error) {
		if res.ClientID != actorID {
			return res, errors.Wrapf(domain.ErrNotOwner, "reservation %s", reservationID)
		}
		return res.Cancel(now)
	})
}

func (l *Ledger) Confirm(ctx context.Context, reservationID uuid.UUID, now time.Time) (domain.Reservation, error) {
	return l.update(reservationID, func(res domain.Reservation) (domain.Reservation, error) {
		return res.Confirm(now)
	})
}

func (l *Ledger) Get(ctx context.Context, reservationID uuid.UUID) (domain.Reservation, error) {
	b, err := l.bookOf(reservationID)
	if err != nil {
		return domain.Reservation{}, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, res := range b.reservations {
		if res.ID == reservationID {
			return res, nil
		}
	}
	return domain.Reservation{}, errors.Wrapf(domain.ErrNotFound, "reservation %s", reservationID)
}

func (l *Ledger) ListByClient(ctx context.Context, clientID uuid.UUID) ([]domain.Reservation, error) {
	l.mu.Lock()
	books := make([]*propertyBook, 0, len(l.properties))
	for _, b := range l.properties {
		books = append(books, b)
	}
	l.mu.Unlock()

	var out []domain.Reservation
	for _, b := range books {
		b.mu.Lock()
		for _, res := range b.reservations {
			if res.ClientID == clientID {
				out = append(out, res)
			}
		}
		b.mu.Unlock()
	}
	return out, nil
}

// MarkCompleted persists the completed status for up to limit blocking
// reservations whose checkout has passed.
func (l *Ledger) MarkCompleted(ctx context.Context, now time.Time, limit int) (int, error) {
	l.mu.Lock()
	books := make([]*propertyBook, 0, len(l.properties))
	for _, b := range l.properties {
		books = append(books, b)
	}
	l.mu.Unlock()

	done := 0
	for _, b := range books {
		b.mu.Lock()
		for i, res := range b.reservations {
			if done == limit {
				break
			}
			if res.IsBlocking() && res.IsCompleted(now) {
				b.reservations[i].Status = domain.StatusCompleted
				done++
			}
		}
		b.mu.Unlock()
	}
	return done, nil
}
