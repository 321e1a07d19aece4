package node

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	"gossipd/internal/gossip"
)

type infoResponse struct {
	Instance   string `json:"instance"`
	Version    string `json:"version"`
	Self       string `json:"self"`
	Introducer string `json:"introducer,omitempty"`
	State      string `json:"state"`
	Members    int    `json:"members"`
	Tick       int64  `json:"tick"`
}

type entryResponse struct {
	Address   string `json:"address"`
	Heartbeat int64  `json:"heartbeat"`
	Timestamp int64  `json:"timestamp"`
}

type membershipResponse struct {
	Self    string          `json:"self"`
	State   string          `json:"state"`
	Tick    int64           `json:"tick"`
	Members []entryResponse `json:"members"`
}

// Handler returns the HTTP debug surface.
func (n *Node) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", n.handleHealth)
	mux.HandleFunc("GET /info", n.handleInfo)
	mux.HandleFunc("GET /membership", n.handleMembership)
	mux.Handle("GET /metrics", n.metrics.Handler())
	return mux
}

func (n *Node) handleHealth(w http.ResponseWriter, r *http.Request) {
	v := n.View()
	if v == nil || v.State != gossip.Joined {
		http.Error(w, "not a member", http.StatusServiceUnavailable)
		return
	}
	w.Write([]byte("ok\n"))
}

func (n *Node) handleInfo(w http.ResponseWriter, r *http.Request) {
	resp := infoResponse{
		Instance: n.instanceID,
		Version:  Version,
		Self:     n.self.String(),
		State:    gossip.Uninitialized.String(),
	}
	if intro := n.introducer.Load(); intro != nil {
		resp.Introducer = intro.String()
	}
	if v := n.View(); v != nil {
		resp.State = v.State.String()
		resp.Members = len(v.Entries)
		resp.Tick = int64(v.At)
	}
	n.writeJSON(w, resp)
}

func (n *Node) handleMembership(w http.ResponseWriter, r *http.Request) {
	resp := membershipResponse{
		Self:    n.self.String(),
		State:   gossip.Uninitialized.String(),
		Members: []entryResponse{},
	}
	if v := n.View(); v != nil {
		resp.State = v.State.String()
		resp.Tick = int64(v.At)
		for _, e := range v.Entries {
			resp.Members = append(resp.Members, entryResponse{
				Address:   e.Key.String(),
				Heartbeat: e.Heartbeat,
				Timestamp: int64(e.Timestamp),
			})
		}
	}
	n.writeJSON(w, resp)
}

func (n *Node) writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		n.logger.Debug("failed to write response", zap.Error(err))
	}
}
