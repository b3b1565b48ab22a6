package journal

import (
	"context"
	"fmt"
)

const createOrderEvents = `
CREATE TABLE IF NOT EXISTS order_events (
	id          BIGSERIAL PRIMARY KEY,
	received_at TIMESTAMPTZ NOT NULL,
	seqnum      BIGINT NOT NULL,
	event       TEXT NOT NULL,
	order_id    TEXT,
	cl_ord_id   TEXT,
	symbol      TEXT,
	ord_status  TEXT,
	text        TEXT,
	payload     JSONB NOT NULL
)`

const createOrderEventsIndex = `
CREATE INDEX IF NOT EXISTS order_events_order_id_idx ON order_events (order_id, received_at)`

const insertOrderEvent = `
INSERT INTO order_events (received_at, seqnum, event, order_id, cl_ord_id, symbol, ord_status, text, payload)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

// EnsureSchema creates the order_events table if it does not exist.
func EnsureSchema(ctx context.Context, db DB) error {
	for _, stmt := range []string{createOrderEvents, createOrderEventsIndex} {
		if _, err := db.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}
