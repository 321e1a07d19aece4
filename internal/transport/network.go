package transport

import (
	"math/rand"
	"sync"

	"gossipd/internal/member"
)

// Stats counts traffic for one emulated node.
type Stats struct {
	Sent     uint64
	Received uint64
	Dropped  uint64
}

// Network is an in-memory emulated network. Every attached node owns an
// inbound Queue; Send copies the payload into the destination queue unless
// the destination is detached, the queue is full, or the message is lost
// to the configured drop rate.
type Network struct {
	mu       sync.Mutex
	queues   map[member.Key]*Queue
	stats    map[member.Key]*Stats
	dropRate float64
	rng      *rand.Rand
}

// NewNetwork creates an emulated network that loses each message with
// probability dropRate, using seed for reproducibility.
func NewNetwork(dropRate float64, seed int64) *Network {
	if dropRate < 0 {
		dropRate = 0
	}
	if dropRate > 1 {
		dropRate = 1
	}
	return &Network{
		queues:   make(map[member.Key]*Queue),
		stats:    make(map[member.Key]*Stats),
		dropRate: dropRate,
		rng:      rand.New(rand.NewSource(seed)),
	}
}

// Attach connects a node's inbound queue to the network, replacing any
// previous queue for the same key.
func (n *Network) Attach(key member.Key, q *Queue) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.queues[key] = q
	if _, ok := n.stats[key]; !ok {
		n.stats[key] = &Stats{}
	}
}

// Detach disconnects a node; messages addressed to it are lost.
func (n *Network) Detach(key member.Key) {
	n.mu.Lock()
	defer n.mu.Unlock()
	delete(n.queues, key)
}

// SetDropRate changes the loss probability.
func (n *Network) SetDropRate(rate float64) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.dropRate = rate
}

// Send implements Sender.
func (n *Network) Send(from, to member.Key, payload []byte) {
	n.mu.Lock()
	defer n.mu.Unlock()

	if s, ok := n.stats[from]; ok {
		s.Sent++
	}
	dst, ok := n.queues[to]
	if !ok {
		return
	}
	st := n.stats[to]
	if n.dropRate > 0 && n.rng.Float64() < n.dropRate {
		st.Dropped++
		return
	}

	buf := make([]byte, len(payload))
	copy(buf, payload)
	if !dst.Push(buf) {
		st.Dropped++
		return
	}
	st.Received++
}

// Stats returns a copy of the counters for key.
func (n *Network) Stats(key member.Key) Stats {
	n.mu.Lock()
	defer n.mu.Unlock()
	if s, ok := n.stats[key]; ok {
		return *s
	}
	return Stats{}
}
