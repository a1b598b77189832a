// Package clock provides an injectable time source.
//
// Every component in this module that compares timestamps or measures elapsed
// intervals takes a clock.Clock instead of calling time.Now directly, so tests
// can simulate expiry windows and metering sessions without sleeping.
package clock
