// Package meterkit implements subscription lifecycle management with usage
// metering: calendar-window (days) and hour-budget (hours) billing models,
// concurrent-session caps, atomic renewals and exactly-once expiry
// notifications.
//
// The Engine facade wires the parts together; each part is also usable on
// its own:
//
//   - pkg/subscription: the data model, pure status derivation and stores.
//   - pkg/sessions: live-session tracking and hour metering.
//   - pkg/renewal: paid extensions.
//   - pkg/notifier: threshold sweeps with a deduplicating dispatch ledger.
//
// Status is always derived, never stored: a subscription expires the
// instant its window or budget runs out, whether or not anything observed
// it. Hour budgets are metered through a shared window per subscription, so
// overlapping sessions consume wall-clock time once.
package meterkit
