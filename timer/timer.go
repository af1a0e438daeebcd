// Package timer implements the one-shot, non-cancellable monotonic
// delay queue described in spec.md §4.4: callers schedule a token for
// some delay out, and are notified, in deadline order, only once that
// deadline has passed. There is no cancellation; stale firings for
// procedures that have already completed are filtered by the handler
// via ActionID-registry absence, per spec.md §9.
//
// No repo in the retrieved pack implements a timer wheel or delay
// queue, so this is built on the standard library's container/heap
// (a minimum-deadline priority queue) wrapped around a single
// time.Timer, matching how the original Rust implementation exposes
// one logical "next deadline" stream rather than one OS timer per
// scheduled event.
package timer

import (
	"container/heap"
	"time"
)

type scheduledEntry struct {
	deadline time.Time
	token    interface{}
}

type entryHeap []scheduledEntry

func (h entryHeap) Len() int            { return len(h) }
func (h entryHeap) Less(i, j int) bool  { return h[i].deadline.Before(h[j].deadline) }
func (h entryHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *entryHeap) Push(x interface{}) { *h = append(*h, x.(scheduledEntry)) }
func (h *entryHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

// Timer is a single logical delay queue. It is not safe for
// concurrent use: per spec.md §5, it is owned exclusively by the
// handler's single-threaded select loop.
type Timer struct {
	pending entryHeap
	clock   *time.Timer
}

// New returns an empty, disarmed Timer.
func New() *Timer {
	return &Timer{}
}

// ScheduleIn arms a new deadline delay out, carrying token, and
// rearms the underlying clock if this is now the earliest pending
// deadline.
func (t *Timer) ScheduleIn(delay time.Duration, token interface{}) {
	heap.Push(&t.pending, scheduledEntry{deadline: time.Now().Add(delay), token: token})
	t.rearm()
}

func (t *Timer) rearm() {
	if t.clock != nil {
		t.clock.Stop()
		t.clock = nil
	}
	if len(t.pending) == 0 {
		return
	}
	d := time.Until(t.pending[0].deadline)
	if d < 0 {
		d = 0
	}
	t.clock = time.NewTimer(d)
}

// C returns the channel to select on. It is nil (and therefore never
// selectable) when nothing is scheduled, matching spec.md §4.8's
// "when empty, only socket+command are awaited".
func (t *Timer) C() <-chan time.Time {
	if t.clock == nil {
		return nil
	}
	return t.clock.C
}

// Pop removes and returns the token at the head of the queue after C
// has fired, rearming the clock for whatever is next. ok is false if
// the queue was empty (the caller raced an empty timer, which should
// not happen given C()'s nil-channel behavior, but is handled safely
// regardless).
func (t *Timer) Pop() (token interface{}, ok bool) {
	if len(t.pending) == 0 {
		return nil, false
	}
	e := heap.Pop(&t.pending).(scheduledEntry)
	t.rearm()
	return e.token, true
}

// Len reports how many deadlines are pending.
func (t *Timer) Len() int { return len(t.pending) }
