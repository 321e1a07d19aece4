package gossip

import (
	"go.uber.org/zap"

	"gossipd/internal/clock"
	"gossipd/internal/wire"
)

// Tick runs the periodic duties of a member: evict silent peers, then, every
// TFail ticks, raise the own heartbeat and push the table to every peer.
//
// Eviction runs before the push so an entry is never disseminated on the
// tick it times out; otherwise a peer that evicts one tick earlier would
// re-learn it from this push as a fresh entry.
func (e *Engine) Tick() {
	if e.state != Joined {
		return
	}
	now := e.clock.Now()

	e.detectFailures(now)

	e.ticksUntilGossip--
	if e.ticksUntilGossip <= 0 {
		e.gossipRound(now)
		e.ticksUntilGossip = e.cfg.TFail
	}
}

func (e *Engine) detectFailures(now clock.Tick) {
	for _, gone := range e.table.Evict(now, e.cfg.TRemove) {
		e.logger.Info("node removed",
			zap.Stringer("peer", gone.Key),
			zap.Int64("heartbeat", gone.Heartbeat),
			zap.Int64("silent_ticks", int64(now-gone.Timestamp)))
		e.observer.NodeRemoved(e.cfg.Self, gone.Key)
	}
}

func (e *Engine) gossipRound(now clock.Tick) {
	hb := e.table.BumpSelf(now)
	e.recorder.GossipRound(hb)

	peers := e.table.Peers()
	if len(peers) == 0 {
		return
	}

	payload := wire.Encode(&wire.Message{
		Kind:      wire.Ping,
		Source:    e.cfg.Self,
		Heartbeat: hb,
		Entries:   e.table.Entries(),
	})
	for _, peer := range peers {
		e.sender.Send(e.cfg.Self, peer, payload)
		e.recorder.MessageSent(wire.Ping)
	}
}
