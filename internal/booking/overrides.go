package booking

import (
	"context"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/robertarktes/rental-reservations/internal/domain"
)

// OverrideRepository is the full owner-facing override store.
type OverrideRepository interface {
	OverrideStore
	SaveOverride(ctx context.Context, o domain.AvailabilityOverride) error
	ListOverrides(ctx context.Context, propertyID uuid.UUID) ([]domain.AvailabilityOverride, error)
	DeleteOverride(ctx context.Context, propertyID, overrideID uuid.UUID) error
}

type OverrideInput struct {
	Range         domain.DateRange
	IsAvailable   bool
	PriceOverride *domain.Money
	Notes         string
}

// OverrideManager lets property owners manage their overrides. Every write
// drops the property's cached quotes.
type OverrideManager struct {
	orchestrator *Orchestrator
	catalog      PropertyCatalog
	store        OverrideRepository
}

func NewOverrideManager(orchestrator *Orchestrator, catalog PropertyCatalog, store OverrideRepository) *OverrideManager {
	return &OverrideManager{orchestrator: orchestrator, catalog: catalog, store: store}
}

func (m *OverrideManager) Create(ctx context.Context, actorID, propertyID uuid.UUID, in OverrideInput) (domain.AvailabilityOverride, error) {
	if err := m.authorize(ctx, actorID, propertyID); err != nil {
		return domain.AvailabilityOverride{}, err
	}
	o, err := domain.NewAvailabilityOverride(propertyID, in.Range, in.IsAvailable, in.PriceOverride, in.Notes, m.orchestrator.Now())
	if err != nil {
		return domain.AvailabilityOverride{}, err
	}
	if err := m.store.SaveOverride(ctx, o); err != nil {
		return domain.AvailabilityOverride{}, err
	}
	m.orchestrator.InvalidateQuotes(ctx, propertyID)
	return o, nil
}

func (m *OverrideManager) List(ctx context.Context, propertyID uuid.UUID) ([]domain.AvailabilityOverride, error) {
	if _, err := m.catalog.Property(ctx, propertyID); err != nil {
		return nil, err
	}
	return m.store.ListOverrides(ctx, propertyID)
}

func (m *OverrideManager) Delete(ctx context.Context, actorID, propertyID, overrideID uuid.UUID) error {
	if err := m.authorize(ctx, actorID, propertyID); err != nil {
		return err
	}
	if err := m.store.DeleteOverride(ctx, propertyID, overrideID); err != nil {
		return err
	}
	m.orchestrator.InvalidateQuotes(ctx, propertyID)
	return nil
}

func (m *OverrideManager) authorize(ctx context.Context, actorID, propertyID uuid.UUID) error {
	prop, err := m.catalog.Property(ctx, propertyID)
	if err != nil {
		return err
	}
	if prop.OwnerID != actorID {
		return errors.Wrapf(domain.ErrNotOwner, "property %s", propertyID)
	}
	return nil
}
