package cotp

import (
	"context"
	"io"
	"log/slog"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edgeo/drivers/cotp/capture"
	"github.com/edgeo/drivers/cotp/tpkt"
)

type memoryRecorder struct {
	mu     sync.Mutex
	events []capture.Event
}

func (r *memoryRecorder) Record(event capture.Event) {
	r.mu.Lock()
	r.events = append(r.events, event)
	r.mu.Unlock()
}

func (r *memoryRecorder) Events() []capture.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]capture.Event(nil), r.events...)
}

// plcConn is the server side of one accepted connection
type plcConn struct {
	r     *tpkt.Reader
	w     *tpkt.Writer
	codec *Codec[[]byte]
}

func (c *plcConn) receive() (*Frame[[]byte], error) {
	msg, err := c.r.ReadMessage()
	if err != nil {
		return nil, err
	}
	frame, _, err := c.codec.DecodeFrom(msg)
	return frame, err
}

func (c *plcConn) send(frame *Frame[[]byte]) error {
	data, err := c.codec.EncodeToBytes(frame)
	if err != nil {
		return err
	}
	return c.w.WriteMessage(data)
}

// confirm answers a connect request the way an S7 CPU does
func (c *plcConn) confirm() error {
	frame, err := c.receive()
	if err != nil {
		return err
	}
	cr, ok := frame.ConnectRequest()
	if !ok {
		return ErrUnexpectedPDU
	}
	b := NewConnectBuilder().SourceRef(0x0044)
	b.comm.DestinationRef = cr.SourceRef
	if size, ok := cr.TPDUSize(); ok {
		b.TPDUSize(size)
	}
	if src, ok := cr.SrcTSAP(); ok {
		b.SrcTSAP(src)
	}
	if dst, ok := cr.DstTSAP(); ok {
		b.DstTSAP(dst)
	}
	return c.send(NewFrame[[]byte](b.Confirm()))
}

// echo answers every data PDU with its own payload
func (c *plcConn) echo() {
	for {
		frame, err := c.receive()
		if err != nil {
			return
		}
		dt, ok := frame.DtData()
		if !ok {
			return
		}
		if err := c.send(NewDtData(dt.Payload).Build(0, true)); err != nil {
			return
		}
	}
}

func startFakePLC(t *testing.T, serve func(c *plcConn)) string {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { ln.Close() })

	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		serve(&plcConn{
			r:     tpkt.NewReader(conn),
			w:     tpkt.NewWriter(conn),
			codec: NewCodec[[]byte](BytesCodec{}),
		})
	}()

	return ln.Addr().String()
}

func newTestClient(t *testing.T, addr string, opts ...Option) *Client {
	t.Helper()

	opts = append([]Option{
		WithAddress(addr),
		WithTimeout(2 * time.Second),
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	}, opts...)

	client, err := NewClient(opts...)
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })
	return client
}

func TestClientConnectAndExchange(t *testing.T) {
	addr := startFakePLC(t, func(c *plcConn) {
		if c.confirm() != nil {
			return
		}
		c.echo()
	})

	rec := &memoryRecorder{}
	client := newTestClient(t, addr,
		WithRackSlot(ConnectionTypePG, 0, 1),
		WithTPDUSize(TPDUSize512),
		WithSourceRef(0x0007),
		WithRecorder(rec),
	)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	require.NoError(t, client.Connect(ctx))
	assert.Equal(t, StateConnected, client.State())

	_, err := uuid.Parse(client.ConnectionID())
	assert.NoError(t, err)

	cc, ok := client.Negotiated()
	require.True(t, ok)
	assert.Equal(t, [2]byte{0x00, 0x07}, cc.DestinationRef)
	assert.Equal(t, [2]byte{0x00, 0x44}, cc.SourceRef)
	size, ok := cc.TPDUSize()
	require.True(t, ok)
	assert.Equal(t, TPDUSize512, size)
	dst, ok := cc.DstTSAP()
	require.True(t, ok)
	assert.Equal(t, DstTSAP{0x01, 0x01}, dst)

	reply, err := client.Exchange(ctx, []byte{0x32, 0x01, 0x00, 0x00})
	require.NoError(t, err)
	assert.Equal(t, []byte{0x32, 0x01, 0x00, 0x00}, reply)

	require.NoError(t, client.Close())
	assert.Equal(t, StateDisconnected, client.State())

	snap := client.Metrics().Snapshot()
	assert.Equal(t, int64(1), snap.ConnectAttempts)
	assert.Equal(t, int64(1), snap.ConnectSuccesses)
	assert.Equal(t, int64(1), snap.Disconnects)
	assert.Equal(t, int64(2), snap.FramesSent)
	assert.Equal(t, int64(2), snap.FramesReceived)
	assert.Equal(t, int64(1), snap.ConnectLatency.Count)

	events := rec.Events()
	require.Len(t, events, 4)
	assert.Equal(t, capture.DirectionOut, events[0].Direction)
	assert.Equal(t, uint8(PDUTypeConnectRequest), events[0].PDUType)
	assert.Equal(t, capture.DirectionIn, events[1].Direction)
	assert.Equal(t, uint8(PDUTypeConnectConfirm), events[1].PDUType)
	assert.Equal(t, uint8(PDUTypeDtData), events[2].PDUType)
	assert.True(t, events[3].LastDataUnit)
	for _, e := range events {
		assert.Equal(t, client.ConnectionID(), e.ConnectionID)
		assert.Equal(t, addr, e.RemoteAddr)
		assert.Empty(t, e.Error)
	}
}

func TestClientConnectRefused(t *testing.T) {
	tests := []struct {
		name  string
		reply []byte
	}{
		{"data instead of confirm", []byte{0x02, 0xF0, 0x80}},
		{"disconnect request", []byte{0x06, 0x80, 0x00, 0x07, 0x00, 0x44, 0x00}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			addr := startFakePLC(t, func(c *plcConn) {
				if _, err := c.receive(); err != nil {
					return
				}
				c.w.WriteMessage(tt.reply)
				c.receive()
			})

			rec := &memoryRecorder{}
			client := newTestClient(t, addr, WithRecorder(rec))

			err := client.Connect(context.Background())
			assert.ErrorIs(t, err, ErrConnectionRefused)
			assert.Equal(t, StateDisconnected, client.State())
			assert.Equal(t, int64(1), client.Metrics().ConnectFailures.Value())

			events := rec.Events()
			require.Len(t, events, 2)
			assert.Equal(t, tt.reply, events[1].Data)
		})
	}
}

func TestClientConnectDialError(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	ln.Close()

	client := newTestClient(t, addr)
	err = client.Connect(context.Background())
	assert.Error(t, err)
	assert.Equal(t, StateDisconnected, client.State())
	assert.Equal(t, int64(1), client.Metrics().ConnectFailures.Value())
}

func TestClientAlreadyConnected(t *testing.T) {
	addr := startFakePLC(t, func(c *plcConn) {
		if c.confirm() != nil {
			return
		}
		c.echo()
	})

	client := newTestClient(t, addr)
	require.NoError(t, client.Connect(context.Background()))
	assert.ErrorIs(t, client.Connect(context.Background()), ErrAlreadyConnected)
}

func TestClientNotConnected(t *testing.T) {
	client := newTestClient(t, "127.0.0.1")

	assert.ErrorIs(t, client.Send(context.Background(), []byte{0x01}), ErrNotConnected)

	_, err := client.Receive(context.Background())
	assert.ErrorIs(t, err, ErrNotConnected)

	_, err = client.Exchange(context.Background(), []byte{0x01})
	assert.ErrorIs(t, err, ErrNotConnected)

	assert.NoError(t, client.Close())
}

func TestNewClientRequiresAddress(t *testing.T) {
	_, err := NewClient()
	assert.Error(t, err)
}

func TestClientReceiveUnexpectedPDU(t *testing.T) {
	addr := startFakePLC(t, func(c *plcConn) {
		if c.confirm() != nil {
			return
		}
		c.send(NewFrame[[]byte](NewConnectBuilder().Confirm()))
		c.receive()
	})

	client := newTestClient(t, addr)
	require.NoError(t, client.Connect(context.Background()))

	_, err := client.Receive(context.Background())
	assert.ErrorIs(t, err, ErrUnexpectedPDU)
}

func TestClientCloseDuringConnect(t *testing.T) {
	gotRequest := make(chan struct{})
	release := make(chan struct{})
	addr := startFakePLC(t, func(c *plcConn) {
		if _, err := c.receive(); err != nil {
			return
		}
		close(gotRequest)
		<-release
		c.send(NewFrame[[]byte](NewConnectBuilder().Confirm()))
	})

	client := newTestClient(t, addr)
	result := make(chan error, 1)
	go func() {
		result <- client.Connect(context.Background())
	}()

	<-gotRequest
	require.NoError(t, client.Close())
	close(release)

	assert.Error(t, <-result)
	assert.Equal(t, StateDisconnected, client.State())
	_, ok := client.Negotiated()
	assert.False(t, ok)
}

func TestClientFinishConnectLosesToClose(t *testing.T) {
	client := newTestClient(t, "127.0.0.1:1")
	cc := NewConnectBuilder().TPDUSize(TPDUSize512).Confirm()

	// Close already moved the client back to disconnected
	err := client.finishConnect(cc, time.Now())
	assert.ErrorIs(t, err, ErrNotConnected)
	assert.Equal(t, StateDisconnected, client.State())
	_, ok := client.Negotiated()
	assert.False(t, ok)
	assert.Equal(t, int64(1), client.Metrics().ConnectFailures.Value())

	client.state.Store(int32(StateConnecting))
	require.NoError(t, client.finishConnect(cc, time.Now()))
	assert.Equal(t, StateConnected, client.State())
	got, ok := client.Negotiated()
	require.True(t, ok)
	assert.Same(t, cc, got)
}
