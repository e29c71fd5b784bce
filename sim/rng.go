package sim

import (
	"hash/fnv"
	"math/rand"
	"sync"
)

// NodeStreams hands out one deterministic random stream per endpoint.
//
// The stream of node id is seeded with seed XOR fnv1a64("node_" + id), so two
// sessions with the same seed observe the same sequence on every node, and
// registering another node never perturbs the sequence of an existing one.
type NodeStreams struct {
	seed int64

	mu      sync.Mutex
	streams map[string]*rand.Rand
}

// NewNodeStreams creates an empty stream set for seed.
func NewNodeStreams(seed int64) *NodeStreams {
	return &NodeStreams{seed: seed, streams: make(map[string]*rand.Rand)}
}

// Seed returns the master seed.
func (n *NodeStreams) Seed() int64 {
	return n.seed
}

// For returns the stream of id, creating it on first use. Repeated calls
// return the same *rand.Rand, which is not safe for concurrent use; callers
// draw from it inside task bodies only.
func (n *NodeStreams) For(id string) *rand.Rand {
	n.mu.Lock()
	defer n.mu.Unlock()
	if r, ok := n.streams[id]; ok {
		return r
	}
	r := rand.New(rand.NewSource(n.derive(id)))
	n.streams[id] = r
	return r
}

// Forget drops the stream of id. A node registered again under the same id
// starts its sequence from the beginning.
func (n *NodeStreams) Forget(id string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	delete(n.streams, id)
}

// Reset drops every stream.
func (n *NodeStreams) Reset() {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.streams = make(map[string]*rand.Rand)
}

func (n *NodeStreams) derive(id string) int64 {
	return n.seed ^ fnv1a64("node_"+id)
}

// fnv1a64 computes a 64-bit FNV-1a hash of the input string.
func fnv1a64(s string) int64 {
	h := fnv.New64a()
	h.Write([]byte(s))
	return int64(h.Sum64())
}
