package routingtable

import (
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mldht/id"
)

func addr(t *testing.T, i int) *net.UDPAddr {
	t.Helper()
	return &net.UDPAddr{IP: net.IPv4(127, 0, 0, byte(i%256)), Port: 6881 + i}
}

func idAt(i int) id.ID {
	var out id.ID
	out[id.Len-1] = byte(i)
	return out
}

func TestAddNodeFillsBucketBeforeSplitting(t *testing.T) {
	local := idAt(0)
	rt := New(local)

	for i := 1; i <= BucketSize; i++ {
		n := NewNode(Handle{ID: idAt(i), Addr: addr(t, i)})
		toPing := rt.AddNode(n)
		assert.Nil(t, toPing)
	}
	assert.Equal(t, BucketSize, rt.Buckets()[0].Len())
}

func TestAddNodeSplitsOnlyFinalBucket(t *testing.T) {
	local := idAt(0)
	rt := New(local)

	for i := 1; i <= BucketSize+1; i++ {
		n := NewNode(Handle{ID: idAt(i), Addr: addr(t, i)})
		rt.AddNode(n)
	}
	require.True(t, rt.NumBuckets() > 1, "expected a split after exceeding bucket capacity")
}

func TestAddNodeRejectsLocalID(t *testing.T) {
	local := idAt(0)
	rt := New(local)
	toPing := rt.AddNode(NewNode(Handle{ID: local, Addr: addr(t, 1)}))
	assert.Nil(t, toPing)
	assert.Equal(t, 0, rt.Buckets()[0].Len())
}

func TestFindNodeMut(t *testing.T) {
	local := idAt(0)
	rt := New(local)
	h := Handle{ID: idAt(5), Addr: addr(t, 5)}
	rt.AddNode(NewNode(h))

	found := rt.FindNodeMut(h)
	require.NotNil(t, found)
	assert.Equal(t, h, found.Handle)
}

func TestKillRemovesNode(t *testing.T) {
	local := idAt(0)
	rt := New(local)
	h := Handle{ID: idAt(5), Addr: addr(t, 5)}
	rt.AddNode(NewNode(h))

	assert.True(t, rt.Kill(h))
	assert.Nil(t, rt.FindNodeMut(h))
	assert.False(t, rt.Kill(h))
}

func TestClosestNodesOrderedByDistance(t *testing.T) {
	local := idAt(0)
	rt := New(local)
	for i := 1; i <= 6; i++ {
		rt.AddNode(NewNode(Handle{ID: idAt(i), Addr: addr(t, i)}))
	}

	target := idAt(4)
	nodes := rt.ClosestNodes(target)
	require.Len(t, nodes, 6)
	for i := 1; i < len(nodes); i++ {
		prevDist := nodes[i-1].ID.Distance(target)
		curDist := nodes[i].ID.Distance(target)
		assert.False(t, curDist.Less(prevDist), "nodes must be non-decreasing in distance")
	}
}

func TestInsertionMonotonicity(t *testing.T) {
	local := idAt(0)
	rt := New(local)
	before := len(rt.ClosestNodes(idAt(1)))
	rt.AddNode(NewNode(Handle{ID: idAt(9), Addr: addr(t, 9)}))
	after := rt.ClosestNodes(idAt(1))
	assert.GreaterOrEqual(t, len(after), before)
}
