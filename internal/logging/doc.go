// Package logging builds the zap loggers used across the daemon and adapts
// them to the membership event hooks.
package logging
