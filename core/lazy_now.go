package core

import (
	"time"

	"k8s.io/utils/clock"
)

// LazyNow samples the clock at most once. Scheduling paths that may or may
// not need "now" several times share one LazyNow per pass so a single
// control-loop decision sees a single consistent timestamp.
type LazyNow struct {
	clock clock.PassiveClock
	now   time.Time
	valid bool
}

func NewLazyNow(c clock.PassiveClock) *LazyNow {
	return &LazyNow{clock: c}
}

// Now returns the sampled time, sampling on first use.
func (l *LazyNow) Now() time.Time {
	if !l.valid {
		l.now = l.clock.Now()
		l.valid = true
	}
	return l.now
}
