package worker

import "time"

// Scheduler is the subset of timer.Timer the procedures need: arm a
// new deadline carrying an opaque token. Kept as an interface so
// procedure tests can use a fake without pulling in real wall-clock
// timers.
type Scheduler interface {
	ScheduleIn(delay time.Duration, token interface{})
}
