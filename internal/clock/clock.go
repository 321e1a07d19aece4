package clock

import (
	"fmt"
	"sync/atomic"
	"time"
)

// Tick is a point in, or a span of, protocol time.
type Tick int64

// String returns the string representation of a Tick.
func (t Tick) String() string {
	return fmt.Sprintf("t%d", int64(t))
}

// Clock returns the current protocol time.
type Clock interface {
	Now() Tick
}

// Elapsed returns the number of ticks between since and c.Now().
func Elapsed(c Clock, since Tick) Tick {
	return c.Now() - since
}

// Manual is a logical clock that only moves when told to. It is safe for
// concurrent use.
type Manual struct {
	now atomic.Int64
}

// NewManual creates a manual clock reading start.
func NewManual(start Tick) *Manual {
	m := &Manual{}
	m.now.Store(int64(start))
	return m
}

// Now returns the current reading.
func (m *Manual) Now() Tick {
	return Tick(m.now.Load())
}

// Advance moves the clock forward by d ticks and returns the new reading.
// Negative d is ignored.
func (m *Manual) Advance(d Tick) Tick {
	if d < 0 {
		d = 0
	}
	return Tick(m.now.Add(int64(d)))
}

// Set moves the clock to t if t is not earlier than the current reading.
func (m *Manual) Set(t Tick) {
	for {
		cur := m.now.Load()
		if int64(t) <= cur || m.now.CompareAndSwap(cur, int64(t)) {
			return
		}
	}
}

// Ticks derives ticks from wall time: the number of whole intervals elapsed
// since the clock was created.
type Ticks struct {
	start    time.Time
	interval time.Duration
	now      func() time.Time
}

// NewTicks creates a wall clock with the given tick interval.
// Non-positive intervals fall back to 100ms.
func NewTicks(interval time.Duration) *Ticks {
	return newTicks(interval, time.Now)
}

func newTicks(interval time.Duration, now func() time.Time) *Ticks {
	if interval <= 0 {
		interval = 100 * time.Millisecond
	}
	return &Ticks{
		start:    now(),
		interval: interval,
		now:      now,
	}
}

// Now returns the number of intervals since creation.
func (t *Ticks) Now() Tick {
	return Tick(t.now().Sub(t.start) / t.interval)
}

// Interval returns the wall duration of one tick.
func (t *Ticks) Interval() time.Duration {
	return t.interval
}

// Duration converts a tick span to wall time.
func (t *Ticks) Duration(d Tick) time.Duration {
	return time.Duration(d) * t.interval
}
