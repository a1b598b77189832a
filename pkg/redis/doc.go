// Package redis connects the engine to Redis, which backs the distributed
// session store. Connect retries until the server is ready; Healthcheck
// plugs into readiness probes.
//
// Configuration comes from environment variables; see the field tags on
// Config for names and defaults.
package redis
