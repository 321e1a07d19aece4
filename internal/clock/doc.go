// Package clock provides the time source used by the membership protocol.
// Time is measured in ticks: every timestamp and threshold in the protocol
// (gossip interval, eviction threshold) is expressed in the same unit, so
// a logical clock driven by a simulator and a wall clock sliced into fixed
// intervals are interchangeable.
package clock
