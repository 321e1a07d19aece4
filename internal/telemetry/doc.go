// Package telemetry exposes Prometheus metrics for the membership protocol.
package telemetry
