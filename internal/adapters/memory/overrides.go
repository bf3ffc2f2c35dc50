package memory

import (
	"context"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/robertarktes/rental-reservations/internal/domain"
)

// Overrides keeps owner overrides in insertion order, which is the query
// order seen by the pricing engine.
type Overrides struct {
	mu        sync.RWMutex
	overrides []domain.AvailabilityOverride
}

func NewOverrides() *Overrides {
	return &Overrides{}
}

func (s *Overrides) OverridesOverlapping(ctx context.Context, propertyID uuid.UUID, r domain.DateRange) ([]domain.AvailabilityOverride, error) {
	return s.matching(propertyID, r, true), nil
}

func (s *Overrides) ClosedOverlapping(ctx context.Context, propertyID uuid.UUID, r domain.DateRange) ([]domain.AvailabilityOverride, error) {
	return s.matching(propertyID, r, false), nil
}

func (s *Overrides) matching(propertyID uuid.UUID, r domain.DateRange, available bool) []domain.AvailabilityOverride {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.AvailabilityOverride
	for _, o := range s.overrides {
		if o.PropertyID == propertyID && o.IsAvailable == available && o.Range.Overlaps(r) {
			out = append(out, o)
		}
	}
	return out
}

func (s *Overrides) SaveOverride(ctx context.Context, o domain.AvailabilityOverride) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.overrides = append(s.overrides, o)
	return nil
}

func (s *Overrides) ListOverrides(ctx context.Context, propertyID uuid.UUID) ([]domain.AvailabilityOverride, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.AvailabilityOverride
	for _, o := range s.overrides {
		if o.PropertyID == propertyID {
			out = append(out, o)
		}
	}
	return out, nil
}

func (s *Overrides) DeleteOverride(ctx context.Context, propertyID, overrideID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, o := range s.overrides {
		if o.ID == overrideID && o.PropertyID == propertyID {
			s.overrides = append(s.overrides[:i], s.overrides[i+1:]...)
			return nil
		}
	}
	return errors.Wrapf(domain.ErrNotFound, "override %s", overrideID)
}
