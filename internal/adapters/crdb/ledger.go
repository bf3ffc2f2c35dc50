package crdb

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/robertarktes/rental-reservations/internal/domain"
)

const reservationColumns = `id, property_id, client_id, check_in, check_out, status, guests,
	total_price::STRING, currency, special_requests, created_at, confirmed_at, cancelled_at`

func scanReservation(row pgx.Row) (domain.Reservation, error) {
	var (
		res               domain.Reservation
		checkIn, checkOut time.Time
		status, total     string
	)
	err := row.Scan(&res.ID, &res.PropertyID, &res.ClientID, &checkIn, &checkOut, &status, &res.Guests,
		&total, &res.Currency, &res.SpecialRequests, &res.CreatedAt, &res.ConfirmedAt, &res.CancelledAt)
	if err != nil {
		return domain.Reservation{}, err
	}
	res.Range = domain.DateRange{Start: domain.Day(checkIn), End: domain.Day(checkOut)}
	res.Status = domain.Status(status)
	if res.TotalPrice, err = domain.ParseMoney(total); err != nil {
		return domain.Reservation{}, err
	}
	return res, nil
}

func (r *Repository) BlockingRanges(ctx context.Context, propertyID uuid.UUID) ([]domain.DateRange, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT check_in, check_out FROM reservations
		WHERE property_id = $1 AND status IN ('pending', 'confirmed')
		ORDER BY check_in
	`, propertyID)
	if err != nil {
		return nil, errors.Wrap(err, "query blocking ranges")
	}
	defer rows.Close()

	var ranges []domain.DateRange
	for rows.Next() {
		var start, end time.Time
		if err := rows.Scan(&start, &end); err != nil {
			return nil, err
		}
		ranges = append(ranges, domain.DateRange{Start: domain.Day(start), End: domain.Day(end)})
	}
	return ranges, rows.Err()
}

func (r *Repository) HasConflict(ctx context.Context, propertyID uuid.UUID, dr domain.DateRange) (bool, error) {
	return hasConflict(ctx, r.pool, propertyID, dr)
}

type querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func hasConflict(ctx context.Context, q querier, propertyID uuid.UUID, dr domain.DateRange) (bool, error) {
	var exists bool
	err := q.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM reservations
			WHERE property_id = $1 AND status IN ('pending', 'confirmed')
			  AND check_in < $3 AND check_out > $2
		)
	`, propertyID, dr.Start, dr.End).Scan(&exists)
	if err != nil {
		return false, errors.Wrap(err, "check overlap")
	}
	return exists, nil
}

// lockProperty serialises writers of one property for the rest of tx.
func lockProperty(ctx context.Context, tx pgx.Tx, propertyID uuid.UUID) error {
	if _, err := tx.Exec(ctx, `
		INSERT INTO property_locks (property_id) VALUES ($1) ON CONFLICT DO NOTHING
	`, propertyID); err != nil {
		return err
	}
	var locked uuid.UUID
	return tx.QueryRow(ctx, `
		SELECT property_id FROM property_locks WHERE property_id = $1 FOR UPDATE
	`, propertyID).Scan(&locked)
}

// Commit re-checks the overlap under the property lock and inserts the
// reservation together with its reservation.created outbox row.
func (r *Repository) Commit(ctx context.Context, res domain.Reservation) (domain.Reservation, error) {
	err := r.WithTx(ctx, func(tx pgx.Tx) error {
		if err := lockProperty(ctx, tx, res.PropertyID); err != nil {
			return err
		}
		conflict, err := hasConflict(ctx, tx, res.PropertyID, res.Range)
		if err != nil {
			return err
		}
		if conflict {
			return &domain.ConflictError{PropertyID: res.PropertyID, Range: res.Range}
		}

		_, err = tx.Exec(ctx, `
			INSERT INTO reservations (id, property_id, client_id, check_in, check_out, status, guests,
				total_price, currency, special_requests, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8::DECIMAL, $9, $10, $11)
		`, res.ID, res.PropertyID, res.ClientID, res.Range.Start, res.Range.End, string(res.Status), res.Guests,
			res.TotalPrice.String(), res.Currency, res.SpecialRequests, res.CreatedAt)
		if err != nil {
			return errors.Wrap(err, "insert reservation")
		}
		return r.insertEvent(ctx, tx, domain.EventReservationCreated, res, res.CreatedAt)
	})
	if err != nil {
		return domain.Reservation{}, err
	}
	return res, nil
}

func (r *Repository) Cancel(ctx context.Context, reservationID, actorID uuid.UUID, now time.Time) (domain.Reservation, error) {
	return r.transition(ctx, reservationID, domain.EventReservationCancelled, now, func(res domain.Reservation) (domain.Reservation, error) {
		if res.ClientID != actorID {
			return res, errors.Wrapf(domain.ErrNotOwner, "reservation %s", reservationID)
		}
		return res.Cancel(now)
	})
}

func (r *Repository) Confirm(ctx context.Context, reservationID uuid.UUID, now time.Time) (domain.Reservation, error) {
	return r.transition(ctx, reservationID, domain.EventReservationConfirmed, now, func(res domain.Reservation) (domain.Reservation, error) {
		return res.Confirm(now)
	})
}

func (r *Repository) transition(ctx context.Context, reservationID uuid.UUID, event string, now time.Time, fn func(domain.Reservation) (domain.Reservation, error)) (domain.Reservation, error) {
	var updated domain.Reservation
	err := r.WithTx(ctx, func(tx pgx.Tx) error {
		res, err := scanReservation(tx.QueryRow(ctx, `
			SELECT `+reservationColumns+` FROM reservations WHERE id = $1 FOR UPDATE
		`, reservationID))
		if errors.Is(err, pgx.ErrNoRows) {
			return errors.Wrapf(domain.ErrNotFound, "reservation %s", reservationID)
		}
		if err != nil {
			return err
		}
		if updated, err = fn(res); err != nil {
			return err
		}
		if err := updateStatus(ctx, tx, updated); err != nil {
			return err
		}
		return r.insertEvent(ctx, tx, event, updated, now)
	})
	if err != nil {
		return domain.Reservation{}, err
	}
	return updated, nil
}

func updateStatus(ctx context.Context, tx pgx.Tx, res domain.Reservation) error {
	_, err := tx.Exec(ctx, `
		UPDATE reservations SET status = $2, confirmed_at = $3, cancelled_at = $4 WHERE id = $1
	`, res.ID, string(res.Status), res.ConfirmedAt, res.CancelledAt)
	return errors.Wrap(err, "update reservation status")
}

func (r *Repository) Get(ctx context.Context, reservationID uuid.UUID) (domain.Reservation, error) {
	res, err := scanReservation(r.pool.QueryRow(ctx, `
		SELECT `+reservationColumns+` FROM reservations WHERE id = $1
	`, reservationID))
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Reservation{}, errors.Wrapf(domain.ErrNotFound, "reservation %s", reservationID)
	}
	return res, err
}

func (r *Repository) ListByClient(ctx context.Context, clientID uuid.UUID) ([]domain.Reservation, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+reservationColumns+` FROM reservations WHERE client_id = $1 ORDER BY created_at DESC
	`, clientID)
	if err != nil {
		return nil, errors.Wrap(err, "list reservations")
	}
	defer rows.Close()

	var list []domain.Reservation
	for rows.Next() {
		res, err := scanReservation(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, res)
	}
	return list, rows.Err()
}

// MarkCompleted persists the completed status for blocking reservations
// whose checkout has passed and returns how many rows it changed.
func (r *Repository) MarkCompleted(ctx context.Context, now time.Time, limit int) (int, error) {
	var done int
	err := r.WithTx(ctx, func(tx pgx.Tx) error {
		done = 0
		rows, err := tx.Query(ctx, `
			SELECT `+reservationColumns+` FROM reservations
			WHERE status IN ('pending', 'confirmed') AND check_out <= $1
			ORDER BY check_out LIMIT $2 FOR UPDATE
		`, domain.Day(now), limit)
		if err != nil {
			return errors.Wrap(err, "query finished reservations")
		}
		var finished []domain.Reservation
		for rows.Next() {
			res, err := scanReservation(rows)
			if err != nil {
				rows.Close()
				return err
			}
			if res.IsCompleted(now) {
				finished = append(finished, res)
			}
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return err
		}

		for _, res := range finished {
			res.Status = domain.StatusCompleted
			if err := updateStatus(ctx, tx, res); err != nil {
				return err
			}
			if err := r.insertEvent(ctx, tx, domain.EventReservationCompleted, res, now); err != nil {
				return err
			}
		}
		done = len(finished)
		return nil
	})
	return done, err
}
