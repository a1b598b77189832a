// Package notifier emits expiry warnings for subscriptions approaching
// their deadline.
//
// A Scheduler sweeps on an interval, derives each subscription's deadline,
// and fires the thresholds already crossed. Deduplication is delegated to
// a Ledger keyed by (user, threshold, deadline): in-memory, Postgres and
// MongoDB implementations are provided. Delivery goes through a Transport;
// failures are retried on later sweeps up to a bounded attempt budget.
package notifier
