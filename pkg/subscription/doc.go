// Package subscription holds the engine's data model: the durable
// subscription record, the plan catalog, and the pure lifecycle resolution
// that derives a status from stored fields and the current time.
//
// Two billing models share one status computation. A days-model
// subscription expires when its calendar window ends. An hours-model
// subscription carries a finite budget of connected time that only drains
// while a metering window is open; with no session connected it cannot
// expire. Status is never stored - every read derives it, so display and
// enforcement cannot drift:
//
//	lc := subscription.DefaultLifecycle()
//	status := lc.Resolve(sub, time.Now())
//
// Stores persist the record plus its append-only renewal history in one
// atomic Save. The package ships an in-memory store for tests and a
// PostgreSQL store for production; the session registry and dispatch ledger
// live in their own packages.
package subscription
