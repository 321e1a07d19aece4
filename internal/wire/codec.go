package wire

import (
	"errors"
	"fmt"
	"math"

	"google.golang.org/protobuf/encoding/protowire"

	"gossipd/internal/clock"
	"gossipd/internal/member"
)

// ErrMalformed wraps every decode failure.
var ErrMalformed = errors.New("malformed message")

// Message fields.
const (
	fieldKind       protowire.Number = 1
	fieldSourceID   protowire.Number = 2
	fieldSourcePort protowire.Number = 3
	fieldHeartbeat  protowire.Number = 4
	fieldEntry      protowire.Number = 5
)

// Entry fields.
const (
	entryID        protowire.Number = 1
	entryPort      protowire.Number = 2
	entryHeartbeat protowire.Number = 3
	entryTimestamp protowire.Number = 4
)

// Encode serializes m.
func Encode(m *Message) []byte {
	return Append(nil, m)
}

// Append appends the encoding of m to b.
func Append(b []byte, m *Message) []byte {
	b = protowire.AppendTag(b, fieldKind, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(uint32(m.Kind)))
	b = protowire.AppendTag(b, fieldSourceID, protowire.Fixed32Type)
	b = protowire.AppendFixed32(b, m.Source.ID)
	b = protowire.AppendTag(b, fieldSourcePort, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(m.Source.Port))
	b = protowire.AppendTag(b, fieldHeartbeat, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(m.Heartbeat))

	var scratch []byte
	for i := range m.Entries {
		scratch = appendEntry(scratch[:0], &m.Entries[i])
		b = protowire.AppendTag(b, fieldEntry, protowire.BytesType)
		b = protowire.AppendBytes(b, scratch)
	}
	return b
}

func appendEntry(b []byte, e *member.Entry) []byte {
	b = protowire.AppendTag(b, entryID, protowire.Fixed32Type)
	b = protowire.AppendFixed32(b, e.Key.ID)
	b = protowire.AppendTag(b, entryPort, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(e.Key.Port))
	b = protowire.AppendTag(b, entryHeartbeat, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(e.Heartbeat))
	b = protowire.AppendTag(b, entryTimestamp, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(e.Timestamp))
	return b
}

// Decode parses a message. Unknown fields are skipped; unknown kinds are
// returned as is for the caller to ignore. Any structural problem yields an
// error wrapping ErrMalformed.
func Decode(b []byte) (*Message, error) {
	m := &Message{}
	var haveID, havePort bool

	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return nil, malformed("tag", protowire.ParseError(n))
		}
		b = b[n:]

		switch num {
		case fieldKind:
			v, err := consumeVarint(&b, typ, "kind")
			if err != nil {
				return nil, err
			}
			m.Kind = Kind(int32(v))
		case fieldSourceID:
			v, err := consumeFixed32(&b, typ, "source id")
			if err != nil {
				return nil, err
			}
			m.Source.ID = v
			haveID = true
		case fieldSourcePort:
			v, err := consumePort(&b, typ, "source port")
			if err != nil {
				return nil, err
			}
			m.Source.Port = v
			havePort = true
		case fieldHeartbeat:
			v, err := consumeVarint(&b, typ, "heartbeat")
			if err != nil {
				return nil, err
			}
			m.Heartbeat = int64(v)
		case fieldEntry:
			if typ != protowire.BytesType {
				return nil, malformed("entry", fmt.Errorf("wire type %d", typ))
			}
			raw, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return nil, malformed("entry", protowire.ParseError(n))
			}
			b = b[n:]
			e, err := decodeEntry(raw)
			if err != nil {
				return nil, err
			}
			m.Entries = append(m.Entries, e)
		default:
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return nil, malformed("unknown field", protowire.ParseError(n))
			}
			b = b[n:]
		}
	}

	if !haveID || !havePort {
		return nil, fmt.Errorf("%w: missing source address", ErrMalformed)
	}
	return m, nil
}

func decodeEntry(b []byte) (member.Entry, error) {
	var e member.Entry
	var haveID, havePort bool

	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return e, malformed("entry tag", protowire.ParseError(n))
		}
		b = b[n:]

		switch num {
		case entryID:
			v, err := consumeFixed32(&b, typ, "entry id")
			if err != nil {
				return e, err
			}
			e.Key.ID = v
			haveID = true
		case entryPort:
			v, err := consumePort(&b, typ, "entry port")
			if err != nil {
				return e, err
			}
			e.Key.Port = v
			havePort = true
		case entryHeartbeat:
			v, err := consumeVarint(&b, typ, "entry heartbeat")
			if err != nil {
				return e, err
			}
			e.Heartbeat = int64(v)
		case entryTimestamp:
			v, err := consumeVarint(&b, typ, "entry timestamp")
			if err != nil {
				return e, err
			}
			e.Timestamp = clock.Tick(v)
		default:
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return e, malformed("entry unknown field", protowire.ParseError(n))
			}
			b = b[n:]
		}
	}

	if !haveID || !havePort {
		return e, fmt.Errorf("%w: entry missing address", ErrMalformed)
	}
	return e, nil
}

func consumeVarint(b *[]byte, typ protowire.Type, field string) (uint64, error) {
	if typ != protowire.VarintType {
		return 0, malformed(field, fmt.Errorf("wire type %d", typ))
	}
	v, n := protowire.ConsumeVarint(*b)
	if n < 0 {
		return 0, malformed(field, protowire.ParseError(n))
	}
	*b = (*b)[n:]
	return v, nil
}

func consumeFixed32(b *[]byte, typ protowire.Type, field string) (uint32, error) {
	if typ != protowire.Fixed32Type {
		return 0, malformed(field, fmt.Errorf("wire type %d", typ))
	}
	v, n := protowire.ConsumeFixed32(*b)
	if n < 0 {
		return 0, malformed(field, protowire.ParseError(n))
	}
	*b = (*b)[n:]
	return v, nil
}

func consumePort(b *[]byte, typ protowire.Type, field string) (uint16, error) {
	v, err := consumeVarint(b, typ, field)
	if err != nil {
		return 0, err
	}
	if v > math.MaxUint16 {
		return 0, malformed(field, fmt.Errorf("port %d out of range", v))
	}
	return uint16(v), nil
}

func malformed(field string, err error) error {
	return fmt.Errorf("%w: %s: %v", ErrMalformed, field, err)
}
