package logging

import (
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"gossipd/internal/member"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name        string
		level       string
		development bool
		wantErr     bool
	}{
		{name: "production info", level: "info"},
		{name: "development debug", level: "debug", development: true},
		{name: "invalid level", level: "loud", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger, err := New(tt.level, tt.development)
			if (err != nil) != tt.wantErr {
				t.Fatalf("New() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			want, _ := zapcore.ParseLevel(tt.level)
			if !logger.Core().Enabled(want) {
				t.Errorf("Expected level %s to be enabled", tt.level)
			}
			if want > zapcore.DebugLevel && logger.Core().Enabled(want-1) {
				t.Errorf("Expected level below %s to be disabled", tt.level)
			}
		})
	}
}

func TestObserver_LogsMembershipEvents(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	o := NewObserver(zap.New(core))

	self := member.MustParseKey("10.0.0.1:7946")
	peer := member.MustParseKey("10.0.0.2:7946")

	o.NodeAdded(self, peer)
	o.NodeRemoved(self, peer)

	entries := logs.AllUntimed()
	if len(entries) != 2 {
		t.Fatalf("Expected 2 log lines, got %d", len(entries))
	}
	if entries[0].Message != "node added" || entries[1].Message != "node removed" {
		t.Errorf("Unexpected messages %q, %q", entries[0].Message, entries[1].Message)
	}
	fields := entries[0].ContextMap()
	if fields["self"] != "10.0.0.1:7946" || fields["peer"] != "10.0.0.2:7946" {
		t.Errorf("Unexpected fields %v", fields)
	}
}
