// Package renewal applies paid extensions to subscriptions.
//
// A renewal is atomic: the new expiry or budget, the cleared cancellation
// mark and the appended history record are persisted in a single store
// write, so a crash can never leave a paid-for extension half-applied.
package renewal
