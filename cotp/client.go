package cotp

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/edgeo/drivers/cotp/capture"
	"github.com/edgeo/drivers/cotp/cotp/internal/transport"
	"github.com/edgeo/drivers/cotp/tpkt"
)

// ConnectionState represents the client connection state
type ConnectionState int32

const (
	StateDisconnected ConnectionState = iota
	StateConnecting
	StateConnected
)

func (s ConnectionState) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	default:
		return "unknown"
	}
}

// Client is an ISO-on-TCP client that establishes a class 0 transport
// connection and exchanges raw data PDU payloads with the peer.
//
// The client does no flow control, retransmission or reassembly: every
// payload is sent as a single TPDU with the end-of-message flag set.
type Client struct {
	opts      *clientOptions
	transport *transport.TCPTransport
	codec     *Codec[[]byte]

	state atomic.Int32

	mu         sync.RWMutex
	connID     string
	negotiated *ConnectConfirm

	metrics *Metrics
	logger  *slog.Logger
}

// NewClient creates a new COTP client
func NewClient(opts ...Option) (*Client, error) {
	options := defaultOptions()
	for _, opt := range opts {
		opt(options)
	}

	if options.address == "" {
		return nil, fmt.Errorf("cotp: no address configured")
	}
	address := options.address
	if _, _, err := net.SplitHostPort(address); err != nil {
		address = net.JoinHostPort(address, strconv.Itoa(DefaultPort))
	}
	if options.logger == nil {
		options.logger = slog.Default()
	}
	if options.recorder == nil {
		options.recorder = capture.NoopRecorder{}
	}

	c := &Client{
		opts:    options,
		codec:   NewCodec[[]byte](BytesCodec{}),
		metrics: NewMetrics(),
		logger:  options.logger,
	}

	c.transport = transport.NewTCPTransport(address)
	c.transport.SetTimeouts(options.timeout)

	return c, nil
}

// Connect dials the peer and performs the connect request / connect
// confirm exchange.
func (c *Client) Connect(ctx context.Context) error {
	if !c.state.CompareAndSwap(int32(StateDisconnected), int32(StateConnecting)) {
		return ErrAlreadyConnected
	}

	c.metrics.ConnectAttempts.Inc()
	start := time.Now()

	c.mu.Lock()
	c.connID = uuid.New().String()
	c.negotiated = nil
	c.mu.Unlock()

	if err := c.transport.Open(ctx); err != nil {
		return c.connectFailed(fmt.Errorf("open transport: %w", err))
	}

	cr := NewConnectBuilder().
		SourceRef(c.opts.sourceRef).
		TPDUSize(c.opts.tpduSize).
		SrcTSAP(c.opts.localTSAP).
		DstTSAP(c.opts.remoteTSAP).
		Request()

	if err := c.sendFrame(ctx, NewFrame[[]byte](cr)); err != nil {
		return c.connectFailed(fmt.Errorf("send connect request: %w", err))
	}

	frame, err := c.receiveFrame(ctx)
	if err != nil {
		if IsUnsupported(err) {
			err = fmt.Errorf("%w: %v", ErrConnectionRefused, err)
		}
		return c.connectFailed(fmt.Errorf("receive connect confirm: %w", err))
	}

	cc, ok := frame.ConnectConfirm()
	if !ok {
		return c.connectFailed(fmt.Errorf("%w: got %s", ErrConnectionRefused, frame.Type()))
	}

	return c.finishConnect(cc, start)
}

// finishConnect moves the client from connecting to connected. It fails if
// Close ran during the handshake.
func (c *Client) finishConnect(cc *ConnectConfirm, start time.Time) error {
	c.mu.Lock()
	if !c.state.CompareAndSwap(int32(StateConnecting), int32(StateConnected)) {
		c.mu.Unlock()
		c.metrics.ConnectFailures.Inc()
		return fmt.Errorf("%w: closed during connect", ErrNotConnected)
	}
	c.negotiated = cc
	c.mu.Unlock()

	c.metrics.ConnectSuccesses.Inc()
	c.metrics.ConnectLatency.Record(time.Since(start))

	size, _ := cc.TPDUSize()
	c.logger.Info("connected",
		slog.String("conn_id", c.ConnectionID()),
		slog.String("remote_addr", c.remoteAddr()),
		slog.String("tpdu_size", size.String()),
	)

	return nil
}

func (c *Client) connectFailed(err error) error {
	c.metrics.ConnectFailures.Inc()
	c.transport.Close()
	c.state.Store(int32(StateDisconnected))
	c.logger.Debug("connect failed", slog.String("error", err.Error()))
	return err
}

// Close closes the connection
func (c *Client) Close() error {
	if c.state.Load() == int32(StateDisconnected) {
		return nil
	}

	c.state.Store(int32(StateDisconnected))
	c.metrics.Disconnects.Inc()

	if err := c.transport.Close(); err != nil {
		return fmt.Errorf("close transport: %w", err)
	}

	c.logger.Info("disconnected", slog.String("conn_id", c.ConnectionID()))
	return nil
}

// State returns the current connection state
func (c *Client) State() ConnectionState {
	return ConnectionState(c.state.Load())
}

// Metrics returns the client metrics
func (c *Client) Metrics() *Metrics {
	return c.metrics
}

// ConnectionID returns the ID of the current or last connection
func (c *Client) ConnectionID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.connID
}

// Negotiated returns the connect confirm received from the peer
func (c *Client) Negotiated() (*ConnectConfirm, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.negotiated, c.negotiated != nil
}

// Send sends payload in a single data PDU
func (c *Client) Send(ctx context.Context, payload []byte) error {
	if c.State() != StateConnected {
		return ErrNotConnected
	}
	return c.sendFrame(ctx, NewDtData(payload).Build(0, true))
}

// Receive waits for the next data PDU from the peer
func (c *Client) Receive(ctx context.Context) (*DtData[[]byte], error) {
	if c.State() != StateConnected {
		return nil, ErrNotConnected
	}

	frame, err := c.receiveFrame(ctx)
	if err != nil {
		return nil, err
	}
	dt, ok := frame.DtData()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnexpectedPDU, frame.Type())
	}
	return dt, nil
}

// Exchange sends payload and returns the payload of the next data PDU
func (c *Client) Exchange(ctx context.Context, payload []byte) ([]byte, error) {
	if err := c.Send(ctx, payload); err != nil {
		return nil, err
	}
	dt, err := c.Receive(ctx)
	if err != nil {
		return nil, err
	}
	return dt.Payload, nil
}

func (c *Client) sendFrame(ctx context.Context, frame *Frame[[]byte]) error {
	data, err := c.codec.EncodeToBytes(frame)
	if err != nil {
		return err
	}
	if err := c.transport.Send(ctx, data); err != nil {
		return NewIOError(err)
	}

	c.metrics.FramesSent.Inc()
	c.metrics.BytesSent.Add(int64(tpkt.HeaderLen + len(data)))
	c.metrics.RecordActivity()
	c.record(capture.DirectionOut, frame, data, nil)

	c.logger.Debug("frame sent",
		slog.String("conn_id", c.ConnectionID()),
		slog.String("frame", frame.String()),
		slog.Int("bytes", len(data)),
	)
	return nil
}

func (c *Client) receiveFrame(ctx context.Context) (*Frame[[]byte], error) {
	msg, err := c.transport.Receive(ctx)
	if err != nil {
		return nil, NewIOError(err)
	}

	c.metrics.BytesReceived.Add(int64(tpkt.HeaderLen + len(msg)))
	c.metrics.RecordActivity()

	frame, n, err := c.codec.DecodeFrom(msg)
	if err == nil && frame == nil {
		err = newError(KindInsufficientData, fmt.Sprintf("message of %d bytes holds no complete frame", len(msg)))
	}
	if err != nil {
		c.metrics.DecodeErrors.Inc()
		c.record(capture.DirectionIn, nil, msg, err)
		return nil, err
	}
	if n < len(msg) {
		c.logger.Debug("trailing bytes after frame",
			slog.String("conn_id", c.ConnectionID()),
			slog.Int("bytes", len(msg)-n),
		)
	}

	c.metrics.FramesReceived.Inc()
	c.record(capture.DirectionIn, frame, msg, nil)

	c.logger.Debug("frame received",
		slog.String("conn_id", c.ConnectionID()),
		slog.String("frame", frame.String()),
		slog.Int("bytes", len(msg)),
	)
	return frame, nil
}

func (c *Client) record(dir capture.Direction, frame *Frame[[]byte], data []byte, err error) {
	event := capture.Event{
		Timestamp:    time.Now(),
		ConnectionID: c.ConnectionID(),
		Direction:    dir,
		Data:         data,
	}
	event.RemoteAddr = c.remoteAddr()
	if frame != nil {
		event.PDUType = uint8(frame.Type())
		if dt, ok := frame.DtData(); ok {
			event.TPDUNumber = dt.TPDUNumber
			event.LastDataUnit = dt.LastDataUnit
		}
	}
	if err != nil {
		event.Error = err.Error()
	}
	c.opts.recorder.Record(event)
}

func (c *Client) remoteAddr() string {
	if addr := c.transport.RemoteAddr(); addr != nil {
		return addr.String()
	}
	return ""
}
