package worker

import (
	"time"

	"mldht/id"
	"mldht/logger"
	"mldht/routingtable"
	"mldht/transaction"
)

// RefreshInterval is the period between refresh firings, per
// spec.md §4.7.
const RefreshInterval = 6 * time.Second

// Refresh is the periodic background task of spec.md §4.7: on each
// firing, ping the closest Questionable node to a rotating target and
// reschedule, regardless of whether a node was found to ping.
// Grounded directly on
// _examples/original_source/src/worker/refresh.rs's continue_refresh.
type Refresh struct {
	mid    *transaction.MIDGenerator
	self   id.NodeID
	period time.Duration
	cursor int
	log    logger.DebugLogger
}

// NewRefresh constructs a Refresh bound to mid's ActionID, firing every
// period (RefreshInterval if period is zero).
func NewRefresh(mid *transaction.MIDGenerator, self id.NodeID, period time.Duration, log logger.DebugLogger) *Refresh {
	if period <= 0 {
		period = RefreshInterval
	}
	return &Refresh{mid: mid, self: self, period: period, log: log}
}

// ActionID returns the ActionID this refresh's transactions carry.
func (r *Refresh) ActionID() transaction.ActionID { return r.mid.ActionID() }

// Continue performs one refresh tick: ping the closest Questionable
// node to flip_bit(cursor), then always advance the cursor (wrapping
// at MaxBucketIndex) and reschedule, whether or not a node was found.
func (r *Refresh) Continue(table *routingtable.RoutingTable, sender Sender, tm Scheduler) {
	if r.cursor >= MaxBucketIndex {
		r.cursor = 0
	}
	target := r.self.FlipBit(r.cursor)

	var pingNode *routingtable.Node
	for _, n := range table.ClosestNodes(target) {
		if n.Status() == routingtable.Questionable {
			pingNode = n
			break
		}
	}

	if pingNode != nil {
		tid := r.mid.Generate()
		sendFindNode(sender, pingNode.Addr, string(tid.Bytes()), string(r.self[:]), string(target[:]), r.log)
		pingNode.LocalRequest()
	}

	marker := r.mid.Generate()
	tm.ScheduleIn(r.period, marker)
	r.cursor++
}
