package wire

import (
	"fmt"

	"gossipd/internal/member"
)

// Kind is the message type tag.
type Kind int32

const (
	JoinRequest Kind = 0
	JoinReply   Kind = 1
	// 2 is reserved.
	Ping Kind = 3
)

// String returns the string representation of Kind.
func (k Kind) String() string {
	switch k {
	case JoinRequest:
		return "JOIN_REQUEST"
	case JoinReply:
		return "JOIN_REPLY"
	case Ping:
		return "PING"
	default:
		return fmt.Sprintf("KIND(%d)", int32(k))
	}
}

// Known reports whether k is a kind the protocol handles.
func (k Kind) Known() bool {
	return k == JoinRequest || k == JoinReply || k == Ping
}

// Message is a single protocol message. Entries is only populated for Ping,
// where it carries the sender's whole table.
type Message struct {
	Kind      Kind
	Source    member.Key
	Heartbeat int64
	Entries   []member.Entry
}
