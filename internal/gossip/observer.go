package gossip

import (
	"gossipd/internal/member"
	"gossipd/internal/wire"
)

// Observer receives membership changes. Calls are made from the engine loop
// and must not block.
type Observer interface {
	NodeAdded(self, peer member.Key)
	NodeRemoved(self, peer member.Key)
}

// Recorder receives protocol counters. Calls are made from the engine loop
// and must not block.
type Recorder interface {
	MessageReceived(kind wire.Kind)
	MessageSent(kind wire.Kind)
	MessageDropped(reason string)
	GossipRound(heartbeat int64)
	TableSize(n int)
}

// Observers fans events out to several observers in order.
type Observers []Observer

// NodeAdded implements Observer.
func (o Observers) NodeAdded(self, peer member.Key) {
	for _, obs := range o {
		obs.NodeAdded(self, peer)
	}
}

// NodeRemoved implements Observer.
func (o Observers) NodeRemoved(self, peer member.Key) {
	for _, obs := range o {
		obs.NodeRemoved(self, peer)
	}
}

type nopObserver struct{}

func (nopObserver) NodeAdded(member.Key, member.Key)   {}
func (nopObserver) NodeRemoved(member.Key, member.Key) {}

type nopRecorder struct{}

func (nopRecorder) MessageReceived(wire.Kind) {}
func (nopRecorder) MessageSent(wire.Kind)     {}
func (nopRecorder) MessageDropped(string)     {}
func (nopRecorder) GossipRound(int64)         {}
func (nopRecorder) TableSize(int)             {}
