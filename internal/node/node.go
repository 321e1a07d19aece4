package node

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	clientv3 "go.etcd.io/etcd/client/v3"
	"go.uber.org/zap"

	"gossipd/internal/clock"
	"gossipd/internal/config"
	"gossipd/internal/discovery"
	"gossipd/internal/gossip"
	"gossipd/internal/logging"
	"gossipd/internal/member"
	"gossipd/internal/telemetry"
	"gossipd/internal/transport"
)

// Version is reported in /info and the build_info metric.
var Version = "dev"

const (
	resolveTimeout  = 10 * time.Second
	shutdownTimeout = 5 * time.Second
)

// Node is a single gossipd process: gRPC transport, protocol engine and
// HTTP debug surface.
type Node struct {
	cfg        config.Config
	self       member.Key
	instanceID string
	logger     *zap.Logger

	inbox     *transport.Queue
	transport *transport.GRPC
	metrics   *telemetry.Metrics
	etcd      *clientv3.Client

	engine     atomic.Pointer[gossip.Engine]
	introducer atomic.Pointer[member.Key]

	mu         sync.Mutex
	httpServer *http.Server
	stopped    bool
}

// New creates a node. Nothing listens until Start.
func New(cfg config.Config, logger *zap.Logger) (*Node, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	self := member.MustParseKey(cfg.Listen)
	instanceID := uuid.NewString()
	logger = logger.With(zap.Stringer("self", self), zap.String("instance", instanceID))

	n := &Node{
		cfg:        cfg,
		self:       self,
		instanceID: instanceID,
		logger:     logger,
		inbox:      transport.NewQueue(cfg.QueueSize),
		metrics:    telemetry.New(),
	}
	n.transport = transport.NewGRPC(self, n.inbox, logger.Named("transport"))
	n.transport.SetDropRecorder(n.metrics)
	n.metrics.SetBuildInfo(Version, instanceID)

	if len(cfg.EtcdEndpoints) > 0 {
		cli, err := discovery.NewClient(cfg.EtcdEndpoints, 5*time.Second, logger.Named("etcd"))
		if err != nil {
			return nil, err
		}
		n.etcd = cli
	}

	return n, nil
}

// Start resolves the introducer, starts serving and runs the protocol until
// ctx is cancelled, Stop is called, or the join fails.
func (n *Node) Start(ctx context.Context) error {
	intro, err := n.resolveIntroducer(ctx)
	if err != nil {
		return err
	}
	n.introducer.Store(&intro)

	engine := gossip.New(n.cfg.EngineConfig(intro), n.transport, n.inbox, clock.NewTicks(n.cfg.TickInterval), n.logger.Named("gossip"))
	engine.SetObserver(gossip.Observers{
		logging.NewObserver(n.logger),
		n.metrics,
		peerForgetter{n.transport},
	})
	engine.SetRecorder(n.metrics)
	n.engine.Store(engine)

	n.mu.Lock()
	stopped := n.stopped
	n.mu.Unlock()
	if stopped {
		return nil
	}

	lis, err := net.Listen("tcp", n.cfg.Listen)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", n.cfg.Listen, err)
	}
	go func() {
		if err := n.transport.Serve(lis); err != nil {
			n.logger.Error("transport stopped", zap.Error(err))
		}
	}()

	if err := n.startHTTP(); err != nil {
		n.transport.Stop()
		return err
	}

	n.logger.Info("starting node",
		zap.Stringer("introducer", intro),
		zap.Duration("tick", n.cfg.TickInterval))

	err = engine.Run(ctx, n.cfg.TickInterval)
	if errors.Is(err, gossip.ErrJoinFailed) {
		n.logger.Error("could not join group", zap.Stringer("introducer", intro), zap.Error(err))
	}
	return err
}

func (n *Node) resolveIntroducer(ctx context.Context) (member.Key, error) {
	if n.etcd == nil {
		return member.ParseKey(n.cfg.Introducer)
	}
	rctx, cancel := context.WithTimeout(ctx, resolveTimeout)
	defer cancel()
	claim, err := discovery.Resolve(rctx, n.etcd, n.cfg.EtcdPrefix, n.self, discovery.DefaultTTL, n.logger.Named("discovery"))
	if err != nil {
		return member.Key{}, fmt.Errorf("failed to resolve introducer: %w", err)
	}
	return claim.Introducer, nil
}

func (n *Node) startHTTP() error {
	if n.cfg.HTTPAddr == "" {
		return nil
	}
	lis, err := net.Listen("tcp", n.cfg.HTTPAddr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", n.cfg.HTTPAddr, err)
	}

	srv := &http.Server{
		Handler:           n.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	n.mu.Lock()
	if n.stopped {
		n.mu.Unlock()
		lis.Close()
		return nil
	}
	n.httpServer = srv
	n.mu.Unlock()

	go func() {
		n.logger.Info("http listening", zap.String("addr", lis.Addr().String()))
		if err := srv.Serve(lis); err != nil && !errors.Is(err, http.ErrServerClosed) {
			n.logger.Error("http server stopped", zap.Error(err))
		}
	}()
	return nil
}

// Stop leaves the group and stops every server. It is safe to call more
// than once.
func (n *Node) Stop() {
	n.mu.Lock()
	if n.stopped {
		n.mu.Unlock()
		return
	}
	n.stopped = true
	srv := n.httpServer
	n.mu.Unlock()

	n.logger.Info("stopping node")
	if e := n.engine.Load(); e != nil {
		e.Shutdown()
	}
	n.transport.Stop()

	if srv != nil {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			n.logger.Warn("http shutdown", zap.Error(err))
		}
	}
	if n.etcd != nil {
		if err := n.etcd.Close(); err != nil {
			n.logger.Warn("etcd close", zap.Error(err))
		}
	}
}

// Self returns the node's address.
func (n *Node) Self() member.Key {
	return n.self
}

// InstanceID identifies this process; it changes on every restart.
func (n *Node) InstanceID() string {
	return n.instanceID
}

// View returns the engine's latest snapshot, or nil before Start.
func (n *Node) View() *gossip.View {
	e := n.engine.Load()
	if e == nil {
		return nil
	}
	return e.View()
}

// Metrics returns the node's metrics.
func (n *Node) Metrics() *telemetry.Metrics {
	return n.metrics
}

// peerForgetter drops cached connections to evicted peers.
type peerForgetter struct {
	t *transport.GRPC
}

func (peerForgetter) NodeAdded(_, _ member.Key) {}

func (f peerForgetter) NodeRemoved(_, peer member.Key) {
	f.t.Forget(peer)
}
