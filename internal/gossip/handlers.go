package gossip

import (
	"go.uber.org/zap"

	"gossipd/internal/member"
	"gossipd/internal/wire"
)

// HandleMessage decodes one inbound payload and dispatches it by kind.
// Malformed payloads and unknown kinds are dropped without touching the
// table.
func (e *Engine) HandleMessage(payload []byte) {
	if e.table == nil {
		e.recorder.MessageDropped("not_started")
		return
	}

	msg, err := wire.Decode(payload)
	if err != nil {
		e.logger.Debug("dropping malformed message", zap.Int("bytes", len(payload)), zap.Error(err))
		e.recorder.MessageDropped("malformed")
		return
	}

	switch msg.Kind {
	case wire.JoinRequest:
		e.onJoinRequest(msg)
	case wire.JoinReply:
		e.onJoinReply(msg)
	case wire.Ping:
		e.onPing(msg)
	default:
		e.logger.Debug("ignoring unknown message kind", zap.Stringer("kind", msg.Kind), zap.Stringer("from", msg.Source))
		e.recorder.MessageDropped("unknown_kind")
		return
	}
	e.recorder.MessageReceived(msg.Kind)
}

// onJoinRequest admits the requester and acknowledges it. Only members
// answer; a node still joining cannot vouch for the group.
func (e *Engine) onJoinRequest(msg *wire.Message) {
	if e.state != Joined {
		e.logger.Debug("ignoring join request while not a member", zap.Stringer("from", msg.Source))
		return
	}
	if msg.Source == e.cfg.Self {
		return
	}

	e.insert(member.Entry{Key: msg.Source, Heartbeat: msg.Heartbeat}, e.clock.Now())
	e.send(msg.Source, &wire.Message{
		Kind:      wire.JoinReply,
		Source:    e.cfg.Self,
		Heartbeat: e.table.Self().Heartbeat,
	})
}

// onJoinReply records the replying member and completes the join.
func (e *Engine) onJoinReply(msg *wire.Message) {
	e.insert(member.Entry{Key: msg.Source, Heartbeat: msg.Heartbeat}, e.clock.Now())

	if e.state == Joining {
		e.state = Joined
		e.logger.Info("joined group",
			zap.Stringer("via", msg.Source),
			zap.Int("attempts", e.join.attempts))
	}
}

// onPing merges the sender's table snapshot into the local table.
func (e *Engine) onPing(msg *wire.Message) {
	now := e.clock.Now()
	for _, entry := range msg.Entries {
		if e.table.Merge(entry, msg.Source, now) == member.Inserted {
			e.logger.Debug("node added", zap.Stringer("peer", entry.Key), zap.Stringer("via", msg.Source))
			e.observer.NodeAdded(e.cfg.Self, entry.Key)
		}
	}
}
