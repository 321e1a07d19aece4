package member

import (
	"encoding/binary"
	"errors"
	"fmt"
	"net"
	"strconv"
)

// ErrInvalidAddress is returned when an address cannot be turned into a Key.
var ErrInvalidAddress = errors.New("invalid address")

// Key identifies a node by its IPv4 address and port.
type Key struct {
	ID   uint32
	Port uint16
}

// ParseKey derives a Key from an "a.b.c.d:port" address.
func ParseKey(addr string) (Key, error) {
	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return Key{}, fmt.Errorf("%w %q: %v", ErrInvalidAddress, addr, err)
	}
	ip := net.ParseIP(host).To4()
	if ip == nil {
		return Key{}, fmt.Errorf("%w %q: host must be an IPv4 literal", ErrInvalidAddress, addr)
	}
	port, err := strconv.ParseUint(portStr, 10, 16)
	if err != nil {
		return Key{}, fmt.Errorf("%w %q: bad port: %v", ErrInvalidAddress, addr, err)
	}
	return Key{ID: binary.BigEndian.Uint32(ip), Port: uint16(port)}, nil
}

// MustParseKey is like ParseKey but panics on error. Intended for tests and
// constants.
func MustParseKey(addr string) Key {
	k, err := ParseKey(addr)
	if err != nil {
		panic(err)
	}
	return k
}

// IP returns the IPv4 address encoded in the key.
func (k Key) IP() net.IP {
	ip := make(net.IP, net.IPv4len)
	binary.BigEndian.PutUint32(ip, k.ID)
	return ip
}

// String renders the key as a dialable "a.b.c.d:port" address.
func (k Key) String() string {
	return net.JoinHostPort(k.IP().String(), strconv.Itoa(int(k.Port)))
}

// IsZero reports whether k is the zero Key.
func (k Key) IsZero() bool {
	return k == Key{}
}
