package domain

import "github.com/jonboulle/clockwork"

// clock is the package time source for assessment timestamps. Tests freeze
// it via SetClock for deterministic ComputedAt values.
var clock = clockwork.NewRealClock()

// SetClock swaps the package time source. Pass nil to reset to real time.
func SetClock(c clockwork.Clock) {
	if c == nil {
		clock = clockwork.NewRealClock()
		return
	}
	clock = c
}
