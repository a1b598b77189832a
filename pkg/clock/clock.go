package clock

import "time"

// Clock supplies the current time to components that need to reason about
// elapsed intervals. Injecting it keeps status derivation and metering
// deterministic under test.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time {
	return time.Now().UTC()
}

// System returns a Clock backed by the wall clock, normalized to UTC.
func System() Clock {
	return systemClock{}
}

// Func adapts a plain function to the Clock interface.
type Func func() time.Time

func (f Func) Now() time.Time {
	return f()
}

// Fixed returns a Clock frozen at t. Useful for one-shot assertions.
func Fixed(t time.Time) Clock {
	return Func(func() time.Time { return t })
}
