// Package member holds the per-node membership table: peer keys derived
// from network addresses, the liveness entries kept for each peer, and the
// insert, merge and eviction rules applied to them. A Table is not safe for
// concurrent use; it is owned by a single protocol engine.
package member
