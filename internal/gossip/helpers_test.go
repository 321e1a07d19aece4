package gossip

import (
	"testing"

	"gossipd/internal/clock"
	"gossipd/internal/member"
	"gossipd/internal/transport"
	"gossipd/internal/wire"
)

var (
	introducer = member.MustParseKey("10.0.0.1:7946")
	nodeB      = member.MustParseKey("10.0.0.2:7946")
	nodeC      = member.MustParseKey("10.0.0.3:7946")
	nodeD      = member.MustParseKey("10.0.0.4:7946")
)

type sent struct {
	from, to member.Key
	msg      *wire.Message
}

// captureSender decodes and keeps every message sent through it.
type captureSender struct {
	t    *testing.T
	sent []sent
}

func (c *captureSender) Send(from, to member.Key, payload []byte) {
	msg, err := wire.Decode(payload)
	if err != nil {
		c.t.Fatalf("engine sent an undecodable payload: %v", err)
	}
	c.sent = append(c.sent, sent{from: from, to: to, msg: msg})
}

func (c *captureSender) ofKind(k wire.Kind) []sent {
	var out []sent
	for _, s := range c.sent {
		if s.msg.Kind == k {
			out = append(out, s)
		}
	}
	return out
}

func (c *captureSender) reset() {
	c.sent = nil
}

type event struct {
	added bool
	peer  member.Key
}

type recordingObserver struct {
	events []event
}

func (r *recordingObserver) NodeAdded(_, peer member.Key) {
	r.events = append(r.events, event{added: true, peer: peer})
}

func (r *recordingObserver) NodeRemoved(_, peer member.Key) {
	r.events = append(r.events, event{added: false, peer: peer})
}

type harness struct {
	engine   *Engine
	sender   *captureSender
	inbox    *transport.Queue
	clock    *clock.Manual
	observer *recordingObserver
}

func newHarness(t *testing.T, cfg Config) *harness {
	t.Helper()
	h := &harness{
		sender:   &captureSender{t: t},
		inbox:    transport.NewQueue(64),
		clock:    clock.NewManual(0),
		observer: &recordingObserver{},
	}
	h.engine = New(cfg, h.sender, h.inbox, h.clock, nil)
	h.engine.SetObserver(h.observer)
	h.engine.Start()
	return h
}

// newMember returns a started engine that is already part of the group.
func newMember(t *testing.T, self member.Key) *harness {
	return newHarness(t, Config{Self: self, Introducer: self, TFail: 5, TRemove: 20})
}

func (h *harness) deliver(msg *wire.Message) {
	h.inbox.Push(wire.Encode(msg))
}

// step runs one cycle at the current time and then advances the clock.
func (h *harness) step(t *testing.T) {
	t.Helper()
	if err := h.engine.Step(); err != nil {
		t.Fatalf("Step: %v", err)
	}
	h.clock.Advance(1)
}

func (h *harness) entry(k member.Key) (member.Entry, bool) {
	for _, e := range h.engine.View().Entries {
		if e.Key == k {
			return e, true
		}
	}
	return member.Entry{}, false
}
