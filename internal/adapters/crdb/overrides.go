package crdb

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/robertarktes/rental-reservations/internal/domain"
)

const overrideColumns = `id, property_id, start_date, end_date, is_available, price_override::STRING, notes, created_at`

// OverridesOverlapping returns available overrides intersecting dr in
// creation order.
func (r *Repository) OverridesOverlapping(ctx context.Context, propertyID uuid.UUID, dr domain.DateRange) ([]domain.AvailabilityOverride, error) {
	return r.queryOverrides(ctx, `
		SELECT `+overrideColumns+` FROM availability_overrides
		WHERE property_id = $1 AND is_available AND start_date < $3 AND end_date > $2
		ORDER BY created_at, id
	`, propertyID, dr.Start, dr.End)
}

func (r *Repository) ClosedOverlapping(ctx context.Context, propertyID uuid.UUID, dr domain.DateRange) ([]domain.AvailabilityOverride, error) {
	return r.queryOverrides(ctx, `
		SELECT `+overrideColumns+` FROM availability_overrides
		WHERE property_id = $1 AND NOT is_available AND start_date < $3 AND end_date > $2
		ORDER BY created_at, id
	`, propertyID, dr.Start, dr.End)
}

func (r *Repository) ListOverrides(ctx context.Context, propertyID uuid.UUID) ([]domain.AvailabilityOverride, error) {
	return r.queryOverrides(ctx, `
		SELECT `+overrideColumns+` FROM availability_overrides
		WHERE property_id = $1 ORDER BY start_date, created_at
	`, propertyID)
}

func (r *Repository) SaveOverride(ctx context.Context, o domain.AvailabilityOverride) error {
	var price *string
	if o.PriceOverride != nil {
		s := o.PriceOverride.String()
		price = &s
	}
	_, err := r.pool.Exec(ctx, `
		INSERT INTO availability_overrides (id, property_id, start_date, end_date, is_available, price_override, notes, created_at)
		VALUES ($1, $2, $3, $4, $5, $6::DECIMAL, $7, $8)
	`, o.ID, o.PropertyID, o.Range.Start, o.Range.End, o.IsAvailable, price, o.Notes, o.CreatedAt)
	return errors.Wrap(err, "insert override")
}

func (r *Repository) DeleteOverride(ctx context.Context, propertyID, overrideID uuid.UUID) error {
	result, err := r.pool.Exec(ctx, `
		DELETE FROM availability_overrides WHERE id = $1 AND property_id = $2
	`, overrideID, propertyID)
	if err != nil {
		return errors.Wrap(err, "delete override")
	}
	if result.RowsAffected() == 0 {
		return errors.Wrapf(domain.ErrNotFound, "override %s", overrideID)
	}
	return nil
}

func (r *Repository) queryOverrides(ctx context.Context, sql string, args ...any) ([]domain.AvailabilityOverride, error) {
	rows, err := r.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, errors.Wrap(err, "query overrides")
	}
	defer rows.Close()

	var list []domain.AvailabilityOverride
	for rows.Next() {
		var (
			o          domain.AvailabilityOverride
			start, end time.Time
			price      *string
		)
		if err := rows.Scan(&o.ID, &o.PropertyID, &start, &end, &o.IsAvailable, &price, &o.Notes, &o.CreatedAt); err != nil {
			return nil, err
		}
		o.Range = domain.DateRange{Start: domain.Day(start), End: domain.Day(end)}
		if price != nil {
			m, err := domain.ParseMoney(*price)
			if err != nil {
				return nil, err
			}
			o.PriceOverride = &m
		}
		list = append(list, o)
	}
	return list, rows.Err()
}
