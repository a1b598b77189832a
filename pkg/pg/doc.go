// Package pg bootstraps the PostgreSQL layer: a pgx/v5 connection pool
// with startup retries, embedded goose migrations for the subscription and
// dispatch-ledger schema, and a health check closure for readiness probes.
//
// Configuration comes from environment variables; see the field tags on
// Config for names and defaults.
package pg
