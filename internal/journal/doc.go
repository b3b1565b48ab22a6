// Package journal persists trading channel events to PostgreSQL.
//
// The journal is an append-only audit trail of order updates and rejections
// as the venue reported them. It is never consulted for subscription or
// order state. Events are queued in memory and written in batches, either
// when BatchSize rows are pending or every FlushInterval.
package journal
