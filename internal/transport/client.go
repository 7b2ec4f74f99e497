package transport

import (
	"fmt"
	"sync"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

// ClientPool caches one *grpc.ClientConn per peer address, grounded in
// ChuLiYu-raft-recovery's GrpcTransport.conns / getClient: dialing is lazy
// and connections are reused across every RPC a broadcast fans out.
type ClientPool struct {
	mu    sync.Mutex
	conns map[string]*grpc.ClientConn
}

// NewClientPool returns an empty, ready-to-use pool.
func NewClientPool() *ClientPool {
	return &ClientPool{conns: make(map[string]*grpc.ClientConn)}
}

// Dial returns a cached *grpc.ClientConn for addr, dialing lazily on first
// use. Exported so other packages with their own RPC surface on the same
// wire (internal/poolsvc's Raft RPCs) can reuse the connection cache instead
// of keeping a second one.
func (c *ClientPool) Dial(addr string) (*grpc.ClientConn, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if conn, ok := c.conns[addr]; ok {
		return conn, nil
	}
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("transport: dial %s: %w", addr, err)
	}
	c.conns[addr] = conn
	return conn, nil
}

// Close tears down every cached connection. Safe to call once at process
// shutdown.
func (c *ClientPool) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	var firstErr error
	for addr, conn := range c.conns {
		if err := conn.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("transport: close %s: %w", addr, err)
		}
		delete(c.conns, addr)
	}
	return firstErr
}
