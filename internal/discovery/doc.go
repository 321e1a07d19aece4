// Package discovery resolves the introducer through etcd so that nodes do
// not need a statically configured introducer address.
//
// The first node to claim <prefix>/introducer under a lease becomes the
// introducer; every later node reads the stored address. When the
// introducer dies its lease expires and the next starting node takes over.
package discovery
