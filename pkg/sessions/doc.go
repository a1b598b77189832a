// Package sessions tracks live user sessions and meters their presence
// against a subscription's hour budget.
//
// The Meter is the entry point. It enforces the plan's concurrent-session
// cap at admission time and maintains a single shared metering window per
// subscription: the first session opens it, the last one closing commits
// the elapsed time. Session records themselves live in a Store; in-memory
// and Redis implementations are provided.
//
// Presence refreshes (Touch) are best-effort: failures are reported to a
// Sink and logged, never returned to the request path.
package sessions
