package transport

import (
	"errors"
	"fmt"
	"sync"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

// ErrClosed is returned by Get once the manager has been closed.
var ErrClosed = errors.New("client manager closed")

// ClientManager caches one gRPC connection per peer address.
type ClientManager struct {
	mu     sync.RWMutex
	conns  map[string]*grpc.ClientConn
	closed bool
}

// NewClientManager creates an empty connection cache.
func NewClientManager() *ClientManager {
	return &ClientManager{
		conns: make(map[string]*grpc.ClientConn),
	}
}

// Get returns the connection for addr, creating it on first use.
// Connections are established lazily so Get never blocks on the network.
func (cm *ClientManager) Get(addr string) (*grpc.ClientConn, error) {
	cm.mu.RLock()
	conn, exists := cm.conns[addr]
	closed := cm.closed
	cm.mu.RUnlock()

	if closed {
		return nil, ErrClosed
	}
	if exists {
		return conn, nil
	}

	cm.mu.Lock()
	defer cm.mu.Unlock()

	if cm.closed {
		return nil, ErrClosed
	}
	// Double-check after acquiring write lock
	if conn, exists := cm.conns[addr]; exists {
		return conn, nil
	}

	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("failed to create client for %s: %w", addr, err)
	}
	cm.conns[addr] = conn
	return conn, nil
}

// Forget closes and drops the connection for addr, if any.
func (cm *ClientManager) Forget(addr string) {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	if conn, ok := cm.conns[addr]; ok {
		conn.Close()
		delete(cm.conns, addr)
	}
}

// Close closes all connections. Later calls to Get fail with ErrClosed.
func (cm *ClientManager) Close() {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	cm.closed = true
	for addr, conn := range cm.conns {
		conn.Close()
		delete(cm.conns, addr)
	}
}
