package segment

import "time"

// Clock abstracts timer creation so the silence deadline can be driven
// deterministically in tests.
type Clock interface {
	AfterFunc(d time.Duration, f func()) Timer
}

// Timer is the resettable handle returned by Clock.AfterFunc.
type Timer interface {
	Stop() bool
}

type systemClock struct{}

func (systemClock) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

// SystemClock returns a Clock backed by the wall clock.
func SystemClock() Clock {
	return systemClock{}
}
