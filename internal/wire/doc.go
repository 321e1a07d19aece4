// Package wire defines the messages exchanged by the membership protocol and
// their encoding. Messages are encoded with the protobuf wire format so that
// unknown fields are skipped and new ones can be added without breaking
// older nodes.
package wire
