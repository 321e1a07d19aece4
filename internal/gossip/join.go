package gossip

import (
	"fmt"

	"go.uber.org/zap"

	"gossipd/internal/clock"
	"gossipd/internal/wire"
)

// joinAttempt tracks outstanding JoinRequests while the node is Joining.
type joinAttempt struct {
	attempts int
	sentAt   clock.Tick
	wait     clock.Tick
}

func (e *Engine) sendJoinRequest(now clock.Tick) {
	e.join.attempts++
	e.join.sentAt = now
	e.logger.Info("trying to join",
		zap.Stringer("introducer", e.cfg.Introducer),
		zap.Int("attempt", e.join.attempts))
	e.send(e.cfg.Introducer, &wire.Message{
		Kind:      wire.JoinRequest,
		Source:    e.cfg.Self,
		Heartbeat: e.table.Self().Heartbeat,
	})
}

// checkJoin resends the JoinRequest with exponential backoff and records
// ErrJoinFailed once every attempt has gone unanswered.
func (e *Engine) checkJoin(now clock.Tick) {
	if e.cfg.MaxJoinAttempts == 0 {
		return
	}
	if now-e.join.sentAt <= e.join.wait {
		return
	}
	if e.join.attempts >= e.cfg.MaxJoinAttempts {
		e.err = fmt.Errorf("%w: no reply from introducer %s after %d attempts",
			ErrJoinFailed, e.cfg.Introducer, e.join.attempts)
		e.logger.Error("unable to join self to group", zap.Error(e.err))
		return
	}

	e.join.wait *= 2
	if limit := e.cfg.JoinTimeout * maxJoinBackoff; e.join.wait > limit {
		e.join.wait = limit
	}
	e.sendJoinRequest(now)
}
