package it

import (
	"fmt"
	"sync"

	"go.uber.org/zap"

	"gossipd/internal/clock"
	"gossipd/internal/gossip"
	"gossipd/internal/logging"
	"gossipd/internal/member"
	"gossipd/internal/transport"
)

// Options configures a test cluster.
type Options struct {
	Introducer      member.Key
	TFail           clock.Tick
	TRemove         clock.Tick
	JoinTimeout     clock.Tick
	MaxJoinAttempts int
	DropRate        float64
	Seed            int64
	QueueSize       int
	Logger          *zap.Logger
}

// Event is a membership change observed by one node.
type Event struct {
	At    clock.Tick
	Self  member.Key
	Peer  member.Key
	Added bool
}

// Cluster runs several engines in one process over an emulated network,
// driven by a shared manual clock. Every Tick advances the clock by one
// and steps each live node once, in start order.
type Cluster struct {
	opts  Options
	clock *clock.Manual
	net   *transport.Network

	mu    sync.Mutex
	nodes []*Node

	eventsMu sync.Mutex
	events   []Event
}

// Node is a single member of the test cluster.
type Node struct {
	Key    member.Key
	Engine *gossip.Engine
	inbox  *transport.Queue
	killed bool
}

// NewCluster creates an empty cluster at tick 0.
func NewCluster(opts Options) *Cluster {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Cluster{
		opts:  opts,
		clock: clock.NewManual(0),
		net:   transport.NewNetwork(opts.DropRate, opts.Seed),
	}
}

// Now returns the current cluster tick.
func (c *Cluster) Now() clock.Tick {
	return c.clock.Now()
}

// Network returns the emulated network.
func (c *Cluster) Network() *transport.Network {
	return c.net
}

// StartNode starts a node with the given address. It fails if a live node
// already uses the address.
func (c *Cluster) StartNode(addr string) (*Node, error) {
	key, err := member.ParseKey(addr)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	index := -1
	for i, n := range c.nodes {
		if n.Key == key {
			if !n.killed {
				return nil, fmt.Errorf("node %s already running", key)
			}
			index = i
		}
	}

	node := c.newNode(key)
	if index >= 0 {
		c.nodes[index] = node
	} else {
		c.nodes = append(c.nodes, node)
	}
	node.Engine.Start()
	return node, nil
}

func (c *Cluster) newNode(key member.Key) *Node {
	inbox := transport.NewQueue(c.opts.QueueSize)
	c.net.Attach(key, inbox)

	logger := c.opts.Logger.Named(key.String())
	engine := gossip.New(gossip.Config{
		Self:            key,
		Introducer:      c.opts.Introducer,
		TFail:           c.opts.TFail,
		TRemove:         c.opts.TRemove,
		JoinTimeout:     c.opts.JoinTimeout,
		MaxJoinAttempts: c.opts.MaxJoinAttempts,
	}, c.net, inbox, c.clock, logger)
	engine.SetObserver(gossip.Observers{logging.NewObserver(logger), c})

	return &Node{Key: key, Engine: engine, inbox: inbox}
}

// KillNode crashes a node: it stops stepping and its traffic is lost.
func (c *Cluster) KillNode(addr string) error {
	key, err := member.ParseKey(addr)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	for _, n := range c.nodes {
		if n.Key == key && !n.killed {
			n.Engine.Fail()
			c.net.Detach(key)
			n.killed = true
			return nil
		}
	}
	return fmt.Errorf("node %s not found", key)
}

// RestartNode kills the node if it is still running and starts a fresh
// process with the same address and no memory of the old one.
func (c *Cluster) RestartNode(addr string) (*Node, error) {
	if n := c.GetNode(addr); n != nil && !n.killed {
		if err := c.KillNode(addr); err != nil {
			return nil, err
		}
	}
	return c.StartNode(addr)
}

// Tick advances the clock by one and steps every live node.
func (c *Cluster) Tick() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.clock.Advance(1)
	for _, n := range c.nodes {
		if n.killed {
			continue
		}
		// Join failures are kept by the engine and read through Err.
		_ = n.Engine.Step()
	}
}

// Run ticks the cluster n times.
func (c *Cluster) Run(n int) {
	for i := 0; i < n; i++ {
		c.Tick()
	}
}

// RunUntil ticks until cond holds or max ticks have run. It returns the
// number of ticks run and whether cond was met.
func (c *Cluster) RunUntil(max int, cond func() bool) (int, bool) {
	for i := 0; i < max; i++ {
		if cond() {
			return i, true
		}
		c.Tick()
	}
	return max, cond()
}

// Drain lets every live node handle its pending messages without ticking.
func (c *Cluster) Drain() {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, n := range c.nodes {
		if !n.killed {
			n.Engine.Drain()
		}
	}
}

// GetNode returns the node with the given address, or nil.
func (c *Cluster) GetNode(addr string) *Node {
	key, err := member.ParseKey(addr)
	if err != nil {
		return nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	for _, n := range c.nodes {
		if n.Key == key {
			return n
		}
	}
	return nil
}

// Live returns the nodes that have not been killed, in start order.
func (c *Cluster) Live() []*Node {
	c.mu.Lock()
	defer c.mu.Unlock()

	live := make([]*Node, 0, len(c.nodes))
	for _, n := range c.nodes {
		if !n.killed {
			live = append(live, n)
		}
	}
	return live
}

// Table returns the latest published table of a node.
func (n *Node) Table() []member.Entry {
	return n.Engine.View().Entries
}

// Lookup returns the node's entry for key.
func (n *Node) Lookup(key member.Key) (member.Entry, bool) {
	for _, e := range n.Table() {
		if e.Key == key {
			return e, true
		}
	}
	return member.Entry{}, false
}

// Heartbeat returns the node's own heartbeat.
func (n *Node) Heartbeat() int64 {
	t := n.Table()
	if len(t) == 0 {
		return 0
	}
	return t[0].Heartbeat
}

// Converged reports whether every live node knows exactly the live nodes.
func (c *Cluster) Converged() bool {
	live := c.Live()
	for _, n := range live {
		table := n.Table()
		if len(table) != len(live) {
			return false
		}
		for _, other := range live {
			if _, ok := n.Lookup(other.Key); !ok {
				return false
			}
		}
	}
	return true
}

// Events returns every membership change observed so far.
func (c *Cluster) Events() []Event {
	c.eventsMu.Lock()
	defer c.eventsMu.Unlock()
	out := make([]Event, len(c.events))
	copy(out, c.events)
	return out
}

// NodeAdded implements gossip.Observer.
func (c *Cluster) NodeAdded(self, peer member.Key) {
	c.record(Event{At: c.clock.Now(), Self: self, Peer: peer, Added: true})
}

// NodeRemoved implements gossip.Observer.
func (c *Cluster) NodeRemoved(self, peer member.Key) {
	c.record(Event{At: c.clock.Now(), Self: self, Peer: peer})
}

func (c *Cluster) record(e Event) {
	c.eventsMu.Lock()
	defer c.eventsMu.Unlock()
	c.events = append(c.events, e)
}
