package transport

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"gossipd/internal/member"
)

const (
	serviceName   = "gossipd.Transport"
	deliverMethod = "/" + serviceName + "/Deliver"
	// Per-send deadline. Sends are fire-and-forget so this only bounds how
	// long a goroutine may linger on an unreachable peer.
	sendTimeout = 2 * time.Second
	// Sends beyond this many outstanding RPCs are dropped.
	maxInFlightSends = 256
)

// DropRecorder is notified when a payload is lost inside the transport.
type DropRecorder interface {
	MessageDropped(reason string)
}

type nopDrops struct{}

func (nopDrops) MessageDropped(string) {}

// deliverer is the server side of the Transport service.
type deliverer interface {
	Deliver(context.Context, *wrapperspb.BytesValue) (*emptypb.Empty, error)
}

func deliverHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(wrapperspb.BytesValue)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(deliverer).Deliver(ctx, in)
	}
	info := &grpc.UnaryServerInfo{
		Server:     srv,
		FullMethod: deliverMethod,
	}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(deliverer).Deliver(ctx, req.(*wrapperspb.BytesValue))
	}
	return interceptor(ctx, in, info, handler)
}

var transportServiceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*deliverer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "Deliver",
			Handler:    deliverHandler,
		},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "gossipd/transport",
}

// GRPC carries payloads between processes. Inbound payloads are pushed onto
// the node's Queue; outbound sends run on their own goroutine and their
// failures are only logged.
type GRPC struct {
	self    member.Key
	inbox   *Queue
	clients *ClientManager
	logger  *zap.Logger
	drops   DropRecorder

	server   *grpc.Server
	inflight chan struct{}
}

// NewGRPC creates a transport for the node identified by self.
func NewGRPC(self member.Key, inbox *Queue, logger *zap.Logger) *GRPC {
	if logger == nil {
		logger = zap.NewNop()
	}
	g := &GRPC{
		self:     self,
		inbox:    inbox,
		clients:  NewClientManager(),
		logger:   logger,
		drops:    nopDrops{},
		server:   grpc.NewServer(),
		inflight: make(chan struct{}, maxInFlightSends),
	}
	g.server.RegisterService(&transportServiceDesc, g)
	return g
}

// SetDropRecorder installs a recorder for lost payloads.
func (g *GRPC) SetDropRecorder(r DropRecorder) {
	if r == nil {
		r = nopDrops{}
	}
	g.drops = r
}

// Serve accepts connections on lis and blocks until Stop is called.
func (g *GRPC) Serve(lis net.Listener) error {
	g.logger.Info("transport listening", zap.String("addr", lis.Addr().String()))
	if err := g.server.Serve(lis); err != nil {
		return fmt.Errorf("failed to serve: %w", err)
	}
	return nil
}

// Stop gracefully stops the server and closes peer connections.
func (g *GRPC) Stop() {
	g.server.GracefulStop()
	g.clients.Close()
}

// Deliver handles an inbound payload.
func (g *GRPC) Deliver(ctx context.Context, in *wrapperspb.BytesValue) (*emptypb.Empty, error) {
	if !g.inbox.Push(in.GetValue()) {
		g.logger.Debug("inbound queue full, dropping payload", zap.Int("bytes", len(in.GetValue())))
		g.drops.MessageDropped("queue_full")
	}
	return &emptypb.Empty{}, nil
}

// Forget drops the cached connection to a peer.
func (g *GRPC) Forget(peer member.Key) {
	g.clients.Forget(peer.String())
}

// Send implements Sender.
func (g *GRPC) Send(from, to member.Key, payload []byte) {
	select {
	case g.inflight <- struct{}{}:
	default:
		g.logger.Debug("too many sends in flight, dropping payload", zap.Stringer("to", to))
		g.drops.MessageDropped("backlog")
		return
	}
	go func() {
		defer func() { <-g.inflight }()
		g.send(to, payload)
	}()
}

func (g *GRPC) send(to member.Key, payload []byte) {
	conn, err := g.clients.Get(to.String())
	if errors.Is(err, ErrClosed) {
		g.drops.MessageDropped("stopped")
		return
	}
	if err != nil {
		g.logger.Debug("dial failed", zap.Stringer("to", to), zap.Error(err))
		g.drops.MessageDropped("dial")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), sendTimeout)
	defer cancel()

	err = conn.Invoke(ctx, deliverMethod, wrapperspb.Bytes(payload), new(emptypb.Empty))
	if err != nil {
		g.logger.Debug("send failed", zap.Stringer("to", to), zap.Error(err))
		g.drops.MessageDropped("send")
	}
}
