package transport

import (
	"testing"
)

func TestQueue_PushPop(t *testing.T) {
	q := NewQueue(2)

	if !q.Push([]byte("a")) || !q.Push([]byte("b")) {
		t.Fatal("Expected both pushes to succeed")
	}
	if q.Push([]byte("c")) {
		t.Error("Expected push to a full queue to fail")
	}
	if q.Dropped() != 1 {
		t.Errorf("Expected 1 drop, got %d", q.Dropped())
	}
	if q.Len() != 2 {
		t.Errorf("Expected len 2, got %d", q.Len())
	}

	for _, want := range []string{"a", "b"} {
		p, ok := q.TryPop()
		if !ok || string(p) != want {
			t.Errorf("Expected %q, got %q (ok=%v)", want, p, ok)
		}
	}
	if _, ok := q.TryPop(); ok {
		t.Error("Expected empty queue")
	}
}

func TestQueue_DefaultSize(t *testing.T) {
	q := NewQueue(0)
	if cap(q.ch) != 1024 {
		t.Errorf("Expected default capacity 1024, got %d", cap(q.ch))
	}
}

func TestQueue_ChannelConsumer(t *testing.T) {
	q := NewQueue(1)
	q.Push([]byte("x"))

	select {
	case p := <-q.C():
		if string(p) != "x" {
			t.Errorf("Expected x, got %q", p)
		}
	default:
		t.Fatal("Expected a payload on the channel")
	}
}
