package gossip

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"gossipd/internal/clock"
	"gossipd/internal/member"
	"gossipd/internal/transport"
	"gossipd/internal/wire"
)

// ErrJoinFailed is returned once the introducer has not answered any of the
// allowed join attempts.
var ErrJoinFailed = errors.New("join failed")

// State is the join state of a node.
type State int

const (
	Uninitialized State = iota
	Joining
	Joined
)

// String returns the string representation of State.
func (s State) String() string {
	switch s {
	case Uninitialized:
		return "UNINITIALIZED"
	case Joining:
		return "JOINING"
	case Joined:
		return "MEMBER"
	default:
		return "UNKNOWN"
	}
}

// Config holds the protocol parameters of one node.
type Config struct {
	Self       member.Key
	Introducer member.Key

	// TFail is the number of ticks between gossip rounds.
	TFail clock.Tick
	// TRemove is the number of ticks without a fresher heartbeat after which
	// a peer is evicted.
	TRemove clock.Tick

	// JoinTimeout is the number of ticks to wait for a JoinReply before the
	// first retry. Later waits double, up to 8x.
	JoinTimeout clock.Tick
	// MaxJoinAttempts bounds the JoinRequests sent before giving up with
	// ErrJoinFailed. Zero sends a single request and waits forever.
	MaxJoinAttempts int
}

const (
	defaultTFail   = 5
	defaultTRemove = 20
	maxJoinBackoff = 8
)

func (c *Config) setDefaults() {
	if c.TFail <= 0 {
		c.TFail = defaultTFail
	}
	if c.TRemove <= 0 {
		c.TRemove = defaultTRemove
	}
	if c.JoinTimeout <= 0 {
		c.JoinTimeout = 2 * c.TRemove
	}
}

// View is an immutable snapshot of a node's state, safe to read from any
// goroutine.
type View struct {
	Self    member.Key
	State   State
	Entries []member.Entry
	At      clock.Tick
}

// Engine runs the membership protocol for one node. All protocol state is
// owned by the goroutine calling Start, Step, Drain, Tick and Run; only
// View, Fail and Shutdown may be called from elsewhere.
type Engine struct {
	cfg      Config
	sender   transport.Sender
	inbox    *transport.Queue
	clock    clock.Clock
	logger   *zap.Logger
	observer Observer
	recorder Recorder

	state            State
	table            *member.Table
	ticksUntilGossip clock.Tick
	join             joinAttempt
	err              error

	failed  atomic.Bool
	stopped atomic.Bool
	view    atomic.Pointer[View]
}

// New creates an engine. It does nothing until Start is called.
func New(cfg Config, sender transport.Sender, inbox *transport.Queue, clk clock.Clock, logger *zap.Logger) *Engine {
	cfg.setDefaults()
	if logger == nil {
		logger = zap.NewNop()
	}
	e := &Engine{
		cfg:      cfg,
		sender:   sender,
		inbox:    inbox,
		clock:    clk,
		logger:   logger.With(zap.Stringer("self", cfg.Self)),
		observer: nopObserver{},
		recorder: nopRecorder{},
	}
	e.publish()
	return e
}

// SetObserver installs the membership change observer. Must be called
// before Start.
func (e *Engine) SetObserver(o Observer) {
	if o == nil {
		o = nopObserver{}
	}
	e.observer = o
}

// SetRecorder installs the protocol counter recorder. Must be called before
// Start.
func (e *Engine) SetRecorder(r Recorder) {
	if r == nil {
		r = nopRecorder{}
	}
	e.recorder = r
}

// Config returns the effective configuration.
func (e *Engine) Config() Config {
	return e.cfg
}

// Start seeds the table with the node's own entry and either bootstraps the
// group, when this node is the introducer, or asks the introducer to join.
func (e *Engine) Start() {
	now := e.clock.Now()
	e.table = member.NewTable(e.cfg.Self, now)
	e.ticksUntilGossip = e.cfg.TFail

	if e.cfg.Self == e.cfg.Introducer {
		e.state = Joined
		e.logger.Info("starting up group")
	} else {
		e.state = Joining
		e.join = joinAttempt{wait: e.cfg.JoinTimeout}
		e.sendJoinRequest(now)
	}
	e.publish()
}

// Step runs one scheduling cycle: drain every pending inbound message, then
// run one periodic tick if the node is a member. It returns ErrJoinFailed
// once the join retry budget is exhausted.
func (e *Engine) Step() error {
	if e.err != nil {
		return e.err
	}
	if e.stopped.Load() {
		e.finish()
		return nil
	}
	if !e.active() {
		return nil
	}

	e.drain()

	switch e.state {
	case Joining:
		e.checkJoin(e.clock.Now())
	case Joined:
		e.Tick()
	}
	e.publish()
	return e.err
}

// Drain handles every queued inbound message without blocking and
// publishes the resulting view. It does not tick.
func (e *Engine) Drain() {
	e.drain()
	e.publish()
}

func (e *Engine) drain() {
	if !e.active() {
		return
	}
	for {
		payload, ok := e.inbox.TryPop()
		if !ok {
			return
		}
		e.HandleMessage(payload)
	}
}

// Run drives the engine until ctx is done, Shutdown is called, or the join
// fails. Inbound messages are handled as they arrive; every interval a full
// Step runs. Stopping through ctx or Shutdown leaves the same final view.
func (e *Engine) Run(ctx context.Context, interval time.Duration) error {
	if e.state == Uninitialized {
		e.Start()
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if e.stopped.Load() {
			e.finish()
			return nil
		}
		select {
		case <-ctx.Done():
			e.finish()
			return nil
		case payload := <-e.inbox.C():
			if e.active() {
				e.HandleMessage(payload)
			}
		case <-ticker.C:
			if err := e.Step(); err != nil {
				return err
			}
		}
	}
}

// Fail makes the node stop participating as if it had crashed: it no longer
// drains messages nor ticks.
func (e *Engine) Fail() {
	if e.failed.CompareAndSwap(false, true) {
		e.logger.Warn("node failed")
	}
}

// Shutdown stops the engine. Run returns at its next loop iteration; the
// loop then drops every peer from the table and Step becomes a no-op.
func (e *Engine) Shutdown() {
	e.stopped.Store(true)
}

// Err returns the terminal error, if any.
func (e *Engine) Err() error {
	return e.err
}

// View returns the latest published snapshot.
func (e *Engine) View() *View {
	return e.view.Load()
}

func (e *Engine) active() bool {
	return e.state != Uninitialized && !e.failed.Load() && !e.stopped.Load()
}

// finish runs on the loop goroutine after Shutdown.
func (e *Engine) finish() {
	if e.table != nil && e.table.Len() > 1 {
		e.table.Reset()
		e.logger.Info("left group")
	}
	e.publish()
}

func (e *Engine) publish() {
	v := &View{Self: e.cfg.Self, State: e.state, At: e.clock.Now()}
	if e.table != nil {
		v.Entries = e.table.Entries()
		e.recorder.TableSize(len(v.Entries))
	}
	e.view.Store(v)
}

func (e *Engine) send(to member.Key, msg *wire.Message) {
	e.sender.Send(e.cfg.Self, to, wire.Encode(msg))
	e.recorder.MessageSent(msg.Kind)
}

func (e *Engine) insert(entry member.Entry, now clock.Tick) {
	if e.table.Insert(entry, now) {
		e.logger.Debug("node added", zap.Stringer("peer", entry.Key))
		e.observer.NodeAdded(e.cfg.Self, entry.Key)
	}
}
