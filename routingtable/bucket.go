package routingtable

import "mldht/id"

// BucketSize is the maximum number of Nodes a Bucket holds, per
// spec.md §3.
const BucketSize = 8

// Bucket is a bounded ordered sequence of Nodes plus an optional
// pending-replacement node, following the insertion policy in
// spec.md §3: if not full, append; if full and a Bad node exists,
// evict it for the newcomer; otherwise queue the newcomer as pending
// and ping the least-recently-seen Questionable node, promoting the
// pending node on that ping's timeout and discarding it on its reply.
type Bucket struct {
	nodes   []*Node
	pending *Node
}

func newBucket() *Bucket {
	return &Bucket{nodes: make([]*Node, 0, BucketSize)}
}

// Len returns the number of live nodes in the bucket.
func (b *Bucket) Len() int { return len(b.nodes) }

// Nodes returns the bucket's nodes in insertion order.
func (b *Bucket) Nodes() []*Node { return b.nodes }

// Find returns the node matching the handle, if any.
func (b *Bucket) Find(h Handle) *Node {
	for _, n := range b.nodes {
		if n.Handle == h {
			return n
		}
	}
	return nil
}

// insertResult communicates what Add did so the owning table can
// decide whether to ping a Questionable node on the caller's behalf.
type insertResult int

const (
	inserted insertResult = iota
	rejected
	queuedPending
)

// add inserts n following the bucket policy. When the result is
// queuedPending, the caller (RoutingTable) is responsible for pinging
// the returned "least recently seen Questionable" node.
func (b *Bucket) add(n *Node) (insertResult, *Node) {
	if existing := b.Find(n.Handle); existing != nil {
		return inserted, nil
	}
	if len(b.nodes) < BucketSize {
		b.nodes = append(b.nodes, n)
		return inserted, nil
	}
	for i, cur := range b.nodes {
		if cur.Status() == Bad {
			b.nodes[i] = n
			return inserted, nil
		}
	}
	b.pending = n
	var oldest *Node
	for _, cur := range b.nodes {
		if cur.Status() != Questionable {
			continue
		}
		if oldest == nil || cur.lastReceived.Before(oldest.lastReceived) {
			oldest = cur
		}
	}
	return queuedPending, oldest
}

// resolvePendingTimeout promotes the pending node into the slot held
// by the node that just timed out, per spec.md §3.
func (b *Bucket) resolvePendingTimeout(timedOut *Node) {
	if b.pending == nil {
		return
	}
	for i, cur := range b.nodes {
		if cur == timedOut {
			b.nodes[i] = b.pending
			b.pending = nil
			return
		}
	}
}

// resolvePendingReply discards the pending replacement, since the
// probed node proved itself alive.
func (b *Bucket) resolvePendingReply() {
	b.pending = nil
}

// remove deletes a node from the bucket, if present.
func (b *Bucket) remove(h Handle) bool {
	for i, n := range b.nodes {
		if n.Handle == h {
			b.nodes = append(b.nodes[:i], b.nodes[i+1:]...)
			return true
		}
	}
	return false
}

// split partitions the bucket's nodes by their id's bit at position
// cpl (the bucket's own prefix length): nodes whose bit differs from
// the local id's (common prefix length exactly cpl) stay in b, and a
// new bucket is returned holding those that share it (common prefix
// longer than cpl). Used only to split the final bucket, per
// spec.md §3/§4.1.
func (b *Bucket) split(cpl int, local id.NodeID) *Bucket {
	out := newBucket()
	keep := b.nodes[:0:0]
	for _, n := range b.nodes {
		if bitAt(n.ID, cpl) != bitAt(local, cpl) {
			keep = append(keep, n)
		} else {
			out.nodes = append(out.nodes, n)
		}
	}
	b.nodes = keep
	return out
}

func bitAt(x id.ID, i int) byte {
	if i < 0 || i >= id.Len*8 {
		return 0
	}
	return (x[i/8] >> uint(7-i%8)) & 1
}
