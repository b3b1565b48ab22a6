// Package database opens the PostgreSQL pool that backs the order event journal.
package database
