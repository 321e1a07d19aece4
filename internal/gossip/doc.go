// Package gossip implements a heartbeat gossip membership protocol with
// timeout-based failure detection.
//
// A node joins by sending a JoinRequest to a single well-known introducer.
// Once it is a member it periodically raises its own heartbeat and pushes its
// whole membership table to every peer it knows; receivers keep the highest
// heartbeat seen for each node, stamped with their own clock. Peers whose
// heartbeat has not advanced for TRemove ticks are evicted.
//
// Limitations:
// - Every round pushes the full table to every peer (O(n^2) messages)
// - Single-threshold detection, no suspect phase
// - No authentication and no persistence across restarts
package gossip
