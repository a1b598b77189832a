// Package mongo manages the MongoDB connection used by the document-store
// variant of the dispatch ledger. New retries until the server is
// reachable; Healthcheck plugs into readiness probes.
//
// Configuration comes from environment variables; see the field tags on
// Config for names and defaults.
package mongo
