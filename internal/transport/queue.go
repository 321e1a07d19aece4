package transport

import (
	"sync/atomic"

	"gossipd/internal/member"
)

// Sender delivers a payload from one node to another. Implementations must
// not block the caller. Callers must not modify payload after Send.
type Sender interface {
	Send(from, to member.Key, payload []byte)
}

// Queue is the bounded hand-off between a delivery context and the engine
// loop. Push never blocks; when the queue is full the payload is dropped.
type Queue struct {
	ch      chan []byte
	dropped atomic.Uint64
}

// NewQueue creates a queue holding at most size payloads.
func NewQueue(size int) *Queue {
	if size <= 0 {
		size = 1024
	}
	return &Queue{ch: make(chan []byte, size)}
}

// Push enqueues payload and reports whether it was accepted.
func (q *Queue) Push(payload []byte) bool {
	select {
	case q.ch <- payload:
		return true
	default:
		q.dropped.Add(1)
		return false
	}
}

// TryPop dequeues one payload without blocking.
func (q *Queue) TryPop() ([]byte, bool) {
	select {
	case p := <-q.ch:
		return p, true
	default:
		return nil, false
	}
}

// C exposes the receive side for consumers that block in a select.
func (q *Queue) C() <-chan []byte {
	return q.ch
}

// Len returns the number of queued payloads.
func (q *Queue) Len() int {
	return len(q.ch)
}

// Dropped returns how many payloads were rejected because the queue was full.
func (q *Queue) Dropped() uint64 {
	return q.dropped.Load()
}
