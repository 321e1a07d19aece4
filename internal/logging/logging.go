package logging

import (
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"gossipd/internal/member"
)

// New builds a logger at the given level. Development loggers write
// human-readable console output; production loggers write JSON.
func New(level string, development bool) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}

	var cfg zap.Config
	if development {
		cfg = zap.NewDevelopmentConfig()
	} else {
		cfg = zap.NewProductionConfig()
	}
	cfg.Level = zap.NewAtomicLevelAt(lvl)

	logger, err := cfg.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build logger: %w", err)
	}
	return logger, nil
}

// Observer logs membership changes.
type Observer struct {
	logger *zap.Logger
}

// NewObserver creates an Observer writing to logger.
func NewObserver(logger *zap.Logger) *Observer {
	return &Observer{logger: logger}
}

// NodeAdded logs a peer entering the local table.
func (o *Observer) NodeAdded(self, peer member.Key) {
	o.logger.Info("node added", zap.Stringer("self", self), zap.Stringer("peer", peer))
}

// NodeRemoved logs a peer being evicted from the local table.
func (o *Observer) NodeRemoved(self, peer member.Key) {
	o.logger.Info("node removed", zap.Stringer("self", self), zap.Stringer("peer", peer))
}
