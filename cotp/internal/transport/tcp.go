// Package transport provides the ISO-on-TCP stream transport for COTP
package transport

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/edgeo/drivers/cotp/tpkt"
)

// TCPTransport carries TPKT framed messages over a TCP connection
type TCPTransport struct {
	address      string
	conn         net.Conn
	reader       *tpkt.Reader
	writer       *tpkt.Writer
	mu           sync.RWMutex
	readMu       sync.Mutex
	dialTimeout  time.Duration
	readTimeout  time.Duration
	writeTimeout time.Duration
	closed       bool
}

// NewTCPTransport creates a new TCP transport for address (host:port)
func NewTCPTransport(address string) *TCPTransport {
	return &TCPTransport{
		address:      address,
		dialTimeout:  3 * time.Second,
		readTimeout:  3 * time.Second,
		writeTimeout: 3 * time.Second,
	}
}

// SetTimeouts sets the dial, read and write timeouts used when a context
// carries no deadline
func (t *TCPTransport) SetTimeouts(d time.Duration) {
	t.mu.Lock()
	t.dialTimeout = d
	t.readTimeout = d
	t.writeTimeout = d
	t.mu.Unlock()
}

// Open dials the peer
func (t *TCPTransport) Open(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.conn != nil && !t.closed {
		return nil
	}

	dialer := net.Dialer{Timeout: t.dialTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", t.address)
	if err != nil {
		return fmt.Errorf("dial %s: %w", t.address, err)
	}

	t.conn = conn
	t.reader = tpkt.NewReader(conn)
	t.writer = tpkt.NewWriter(conn)
	t.closed = false
	return nil
}

// Close closes the TCP connection
func (t *TCPTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.conn == nil || t.closed {
		return nil
	}

	t.closed = true
	return t.conn.Close()
}

// LocalAddr returns the local address
func (t *TCPTransport) LocalAddr() net.Addr {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if t.conn == nil {
		return nil
	}
	return t.conn.LocalAddr()
}

// RemoteAddr returns the peer address
func (t *TCPTransport) RemoteAddr() net.Addr {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if t.conn == nil {
		return nil
	}
	return t.conn.RemoteAddr()
}

// Send writes one TPKT message carrying data
func (t *TCPTransport) Send(ctx context.Context, data []byte) error {
	t.mu.RLock()
	conn := t.conn
	writer := t.writer
	writeTimeout := t.writeTimeout
	closed := t.closed
	t.mu.RUnlock()

	if conn == nil || closed {
		return fmt.Errorf("transport not open")
	}

	// Set deadline from context or default timeout
	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Now().Add(writeTimeout)
	}
	if err := conn.SetWriteDeadline(deadline); err != nil {
		return fmt.Errorf("set write deadline: %w", err)
	}

	return writer.WriteMessage(data)
}

// Receive reads one TPKT message and returns its payload
func (t *TCPTransport) Receive(ctx context.Context) ([]byte, error) {
	t.mu.RLock()
	conn := t.conn
	reader := t.reader
	readTimeout := t.readTimeout
	closed := t.closed
	t.mu.RUnlock()

	if conn == nil || closed {
		return nil, fmt.Errorf("transport not open")
	}

	t.readMu.Lock()
	defer t.readMu.Unlock()

	// Set deadline from context or default timeout
	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Now().Add(readTimeout)
	}
	if err := conn.SetReadDeadline(deadline); err != nil {
		return nil, fmt.Errorf("set read deadline: %w", err)
	}

	return reader.ReadMessage()
}

// IsClosed returns true if the transport is closed
func (t *TCPTransport) IsClosed() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.closed
}
