package network

import (
	"sync"

	"github.com/libp2p/go-libp2p/core/peer"
)

// peerRing is the Network Actor's peer selection strategy for explicit
// quorum replication: evenly distributes Q picks across the set of
// currently connected peers, round-robin, rather than always hammering the
// first few peers in iteration order.
//
// This generalizes the teacher's bucket-placement round robin: where that
// placer cycled through registered storage buckets to spread shard uploads,
// this one cycles through connected peers to spread explicit-replication
// store requests, so repeated puts don't concentrate load on the same
// handful of peers.
type peerRing struct {
	mu   sync.Mutex
	next int
}

// pick returns up to want distinct peers from connected, starting from the
// ring's current rotation position and advancing it. If want >= len(connected),
// all connected peers are returned.
func (r *peerRing) pick(connected []peer.ID, want int) []peer.ID {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := len(connected)
	if n == 0 || want <= 0 {
		return nil
	}
	if want > n {
		want = n
	}

	picked := make([]peer.ID, 0, want)
	seen := make(map[peer.ID]bool, want)
	for len(picked) < want {
		idx := r.next % n
		r.next++
		candidate := connected[idx]
		if seen[candidate] {
			continue
		}
		seen[candidate] = true
		picked = append(picked, candidate)
	}
	return picked
}
