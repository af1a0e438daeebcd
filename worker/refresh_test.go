package worker

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mldht/id"
	"mldht/krpc"
	"mldht/transaction"
)

func TestRefreshPingsClosestQuestionableNodeAndReschedules(t *testing.T) {
	self := id.Random()
	table, nodes := seedTable(t, self, 4)
	// Force every node Questionable by giving each one a timeout strike
	// without any recent message, so Refresh has someone to ping.
	for _, n := range nodes {
		n.LocalTimeout()
	}

	sender := &fakeSender{}
	sched := &fakeScheduler{}
	aid := transaction.NewAIDGenerator()
	r := NewRefresh(aid.Generate(), self, RefreshInterval, testLogger())

	r.Continue(table, sender, sched)

	require.Len(t, sender.sent, 1)
	q, ok := sender.sent[0].msg.(krpc.OutQuery)
	require.True(t, ok)
	assert.Equal(t, krpc.FindNode, q.Q)
	assert.Len(t, sched.scheduled, 1)
	assert.Equal(t, 1, r.cursor)
}

func TestRefreshReschedulesEvenWithNoQuestionableNode(t *testing.T) {
	self := id.Random()
	table, _ := seedTable(t, self, 0)

	sender := &fakeSender{}
	sched := &fakeScheduler{}
	aid := transaction.NewAIDGenerator()
	r := NewRefresh(aid.Generate(), self, RefreshInterval, testLogger())

	r.Continue(table, sender, sched)

	assert.Empty(t, sender.sent)
	require.Len(t, sched.scheduled, 1)
	assert.Equal(t, 1, r.cursor)
}

func TestRefreshCursorWrapsAtMaxBucketIndex(t *testing.T) {
	self := id.Random()
	table, _ := seedTable(t, self, 0)
	sender := &fakeSender{}
	sched := &fakeScheduler{}
	aid := transaction.NewAIDGenerator()
	r := NewRefresh(aid.Generate(), self, RefreshInterval, testLogger())
	r.cursor = MaxBucketIndex

	r.Continue(table, sender, sched)

	assert.Equal(t, 1, r.cursor)
}
