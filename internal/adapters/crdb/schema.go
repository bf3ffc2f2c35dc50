package crdb

import (
	"context"

	"github.com/cockroachdb/errors"
	"github.com/jackc/pgx/v5/pgxpool"
)

const schema = `
CREATE TABLE IF NOT EXISTS reservations (
	id UUID PRIMARY KEY,
	property_id UUID NOT NULL,
	client_id UUID NOT NULL,
	check_in DATE NOT NULL,
	check_out DATE NOT NULL,
	status STRING NOT NULL CHECK (status IN ('pending', 'confirmed', 'cancelled', 'completed')),
	guests INT NOT NULL CHECK (guests >= 1),
	total_price DECIMAL(18, 3) NOT NULL CHECK (total_price >= 0),
	currency STRING NOT NULL,
	special_requests STRING NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL,
	confirmed_at TIMESTAMPTZ,
	cancelled_at TIMESTAMPTZ,
	CHECK (check_out > check_in),
	INDEX reservations_property_range_idx (property_id, check_in, check_out),
	INDEX reservations_client_idx (client_id, created_at DESC)
);

CREATE TABLE IF NOT EXISTS availability_overrides (
	id UUID PRIMARY KEY,
	property_id UUID NOT NULL,
	start_date DATE NOT NULL,
	end_date DATE NOT NULL,
	is_available BOOL NOT NULL,
	price_override DECIMAL(18, 6) CHECK (price_override >= 0),
	notes STRING NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL,
	CHECK (end_date > start_date),
	INDEX overrides_property_range_idx (property_id, start_date, end_date)
);

CREATE TABLE IF NOT EXISTS property_locks (
	property_id UUID PRIMARY KEY
);

CREATE TABLE IF NOT EXISTS outbox (
	id UUID PRIMARY KEY,
	aggregate_type STRING NOT NULL,
	aggregate_id UUID NOT NULL,
	event_type STRING NOT NULL,
	payload_json JSONB NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	published_at TIMESTAMPTZ,
	status STRING NOT NULL DEFAULT 'NEW' CHECK (status IN ('NEW', 'PUBLISHED', 'FAILED')),
	dedupe_key STRING NOT NULL DEFAULT '',
	INDEX outbox_status_idx (status, created_at)
);
`

// Migrate creates the tables the adapter needs. It is idempotent.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, schema); err != nil {
		return errors.Wrap(err, "migrate schema")
	}
	return nil
}
