package transaction

import "github.com/golang/groupcache/lru"

// SeenSet bounds the set of recently-completed transaction ids the
// handler remembers, so a duplicate or replayed response for a
// transaction that already finished can be recognized and dropped
// instead of silently re-processed. Capacity-bounded the same way
// peer.PeerStore bounds its per-infohash contact sets in the teacher
// repo (github.com/golang/groupcache/lru), since an unbounded map
// would grow for the life of a long-running node.
type SeenSet struct {
	cache *lru.Cache
}

// NewSeenSet returns a SeenSet holding at most maxEntries transaction
// ids, evicting least-recently-used entries once full.
func NewSeenSet(maxEntries int) *SeenSet {
	return &SeenSet{cache: lru.New(maxEntries)}
}

// MarkSeen records t as completed. Returns true if t was already
// present.
func (s *SeenSet) MarkSeen(t ID) bool {
	if _, ok := s.cache.Get(t); ok {
		return true
	}
	s.cache.Add(t, struct{}{})
	return false
}
