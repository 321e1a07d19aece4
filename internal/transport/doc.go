// Package transport moves encoded protocol messages between nodes. Sends are
// best effort and never report failure to the caller; received payloads are
// handed to the protocol engine through a bounded Queue, which is the only
// point where the network side and the engine loop meet.
//
// Two implementations are provided: Network, an in-memory emulated network
// used by simulations and tests, and GRPC, which carries payloads between
// processes as a single unary RPC.
package transport
