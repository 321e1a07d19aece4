package member

import (
	"gossipd/internal/clock"
)

// Entry is the most recent liveness evidence held for one node.
type Entry struct {
	Key       Key
	Heartbeat int64
	// Timestamp is the local clock reading when the current heartbeat was
	// observed, never a remote node's clock.
	Timestamp clock.Tick
}

// MergeResult describes what Merge did with an incoming entry.
type MergeResult int

const (
	Unchanged MergeResult = iota
	Inserted
	Updated
)

// String returns the string representation of MergeResult.
func (r MergeResult) String() string {
	switch r {
	case Unchanged:
		return "UNCHANGED"
	case Inserted:
		return "INSERTED"
	case Updated:
		return "UPDATED"
	default:
		return "UNKNOWN"
	}
}

// Table is the ordered set of known nodes. Index 0 always holds the owner's
// own entry and keys are unique.
type Table struct {
	entries []Entry
}

// NewTable creates a table seeded with the owner's entry at heartbeat 0.
func NewTable(self Key, now clock.Tick) *Table {
	return &Table{
		entries: []Entry{{Key: self, Heartbeat: 0, Timestamp: now}},
	}
}

// Self returns the owner's entry.
func (t *Table) Self() Entry {
	return t.entries[0]
}

// Len returns the number of entries, including the owner.
func (t *Table) Len() int {
	return len(t.entries)
}

// Entries returns a copy of the table in order, owner first.
func (t *Table) Entries() []Entry {
	out := make([]Entry, len(t.entries))
	copy(out, t.entries)
	return out
}

// Peers returns the keys of every entry except the owner.
func (t *Table) Peers() []Key {
	peers := make([]Key, 0, len(t.entries)-1)
	for _, e := range t.entries[1:] {
		peers = append(peers, e.Key)
	}
	return peers
}

// Lookup returns the entry for k, if present.
func (t *Table) Lookup(k Key) (Entry, bool) {
	if i := t.index(k); i >= 0 {
		return t.entries[i], true
	}
	return Entry{}, false
}

// Contains reports whether k has an entry.
func (t *Table) Contains(k Key) bool {
	return t.index(k) >= 0
}

func (t *Table) index(k Key) int {
	for i := range t.entries {
		if t.entries[i].Key == k {
			return i
		}
	}
	return -1
}

// Insert appends e stamped with now. It is a no-op, returning false, when e
// is the owner or is already known.
func (t *Table) Insert(e Entry, now clock.Tick) bool {
	if e.Key == t.entries[0].Key || t.index(e.Key) >= 0 {
		return false
	}
	e.Timestamp = now
	t.entries = append(t.entries, e)
	return true
}

// Merge folds one gossiped entry into the table. sender is the node whose
// snapshot carried e: its report about itself is adopted as is, any other
// report only when it raises the heartbeat. The owner's entry is never
// touched by remote reports.
func (t *Table) Merge(e Entry, sender Key, now clock.Tick) MergeResult {
	i := t.index(e.Key)
	switch {
	case i < 0:
		if t.Insert(e, now) {
			return Inserted
		}
		return Unchanged
	case i == 0:
		return Unchanged
	}

	local := &t.entries[i]
	if e.Key == sender || e.Heartbeat > local.Heartbeat {
		local.Heartbeat = e.Heartbeat
		local.Timestamp = now
		return Updated
	}
	return Unchanged
}

// BumpSelf increments the owner's heartbeat, stamps it with now and returns
// the new value.
func (t *Table) BumpSelf(now clock.Tick) int64 {
	t.entries[0].Heartbeat++
	t.entries[0].Timestamp = now
	return t.entries[0].Heartbeat
}

// Evict removes every non-owner entry whose timestamp is more than
// threshold ticks older than now and returns the removed entries.
func (t *Table) Evict(now, threshold clock.Tick) []Entry {
	var removed []Entry
	kept := t.entries[:1]
	for _, e := range t.entries[1:] {
		if now-e.Timestamp > threshold {
			removed = append(removed, e)
			continue
		}
		kept = append(kept, e)
	}
	// Clear the tail so evicted entries do not linger in the backing array.
	for i := len(kept); i < len(t.entries); i++ {
		t.entries[i] = Entry{}
	}
	t.entries = kept
	return removed
}

// Reset drops every peer, keeping only the owner's entry.
func (t *Table) Reset() {
	t.entries = t.entries[:1]
}
