package tpkt

import (
	"bytes"
	"errors"
	"io"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncode(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Encode(&buf, []byte{0x02, 0xF0, 0x80}))
	assert.Equal(t, []byte{0x03, 0x00, 0x00, 0x07, 0x02, 0xF0, 0x80}, buf.Bytes())

	assert.ErrorIs(t, Encode(&buf, nil), ErrMessageEmpty)
	assert.ErrorIs(t, Encode(&buf, make([]byte, MaxPayloadSize+1)), ErrMessageTooLarge)
}

func TestDecodeHeader(t *testing.T) {
	h, err := DecodeHeader([]byte{0x03, 0x00, 0x00, 0x16})
	require.NoError(t, err)
	assert.Equal(t, uint16(22), h.Length)
	assert.Equal(t, 18, h.PayloadLen())

	_, err = DecodeHeader([]byte{0x03, 0x00})
	assert.ErrorIs(t, err, ErrFrameTruncated)

	_, err = DecodeHeader([]byte{0x02, 0x00, 0x00, 0x16})
	assert.ErrorIs(t, err, ErrInvalidVersion)

	_, err = DecodeHeader([]byte{0x03, 0x00, 0x00, 0x04})
	assert.ErrorIs(t, err, ErrInvalidLength)
}

func TestDecodeBuffer(t *testing.T) {
	msg := []byte{0x03, 0x00, 0x00, 0x07, 0x02, 0xF0, 0x80}

	for i := 0; i < len(msg); i++ {
		buf := bytes.NewBuffer(bytes.Clone(msg[:i]))
		payload, err := Decode(buf)
		require.NoError(t, err)
		assert.Nil(t, payload)
		assert.Equal(t, i, buf.Len())
	}

	buf := bytes.NewBuffer(append(bytes.Clone(msg), 0x03))
	payload, err := Decode(buf)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x02, 0xF0, 0x80}, payload)
	assert.Equal(t, []byte{0x03}, buf.Bytes())
}

func TestReaderWriter(t *testing.T) {
	var stream bytes.Buffer
	w := NewWriter(&stream)
	require.NoError(t, w.WriteMessage([]byte{0x11, 0xE0}))
	require.NoError(t, w.WriteMessage([]byte{0x02, 0xF0, 0x80, 0x32}))

	r := NewReader(&stream)
	payload, err := r.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, []byte{0x11, 0xE0}, payload)

	payload, err = r.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, []byte{0x02, 0xF0, 0x80, 0x32}, payload)

	_, err = r.ReadMessage()
	assert.Equal(t, io.EOF, err)
}

func TestReaderTruncated(t *testing.T) {
	r := NewReader(bytes.NewReader([]byte{0x03, 0x00}))
	_, err := r.ReadMessage()
	assert.ErrorIs(t, err, ErrFrameTruncated)

	r = NewReader(bytes.NewReader([]byte{0x03, 0x00, 0x00, 0x08, 0x02}))
	_, err = r.ReadMessage()
	assert.ErrorIs(t, err, ErrFrameTruncated)
}

func TestReaderMaxSize(t *testing.T) {
	var stream bytes.Buffer
	require.NoError(t, NewWriter(&stream).WriteMessage(make([]byte, 32)))

	_, err := NewReaderWithMaxSize(&stream, 16).ReadMessage()
	assert.ErrorIs(t, err, ErrMessageTooLarge)
}

func TestReaderResumesAfterTimeout(t *testing.T) {
	tests := []struct {
		name  string
		first []byte
		rest  []byte
	}{
		{"inside header", []byte{0x03, 0x00}, []byte{0x00, 0x07, 0x02, 0xF0, 0x80}},
		{"inside payload", []byte{0x03, 0x00, 0x00, 0x07, 0x02}, []byte{0xF0, 0x80}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			local, remote := net.Pipe()
			defer local.Close()
			defer remote.Close()

			r := NewReader(local)

			type result struct {
				payload []byte
				err     error
			}
			results := make(chan result, 1)
			go func() {
				payload, err := r.ReadMessage()
				results <- result{payload, err}
			}()

			// Write returns once the reader has taken every byte
			_, err := remote.Write(tt.first)
			require.NoError(t, err)
			require.NoError(t, local.SetReadDeadline(time.Now()))

			res := <-results
			var netErr net.Error
			require.ErrorAs(t, res.err, &netErr)
			assert.True(t, netErr.Timeout())

			require.NoError(t, local.SetReadDeadline(time.Now().Add(2*time.Second)))
			written := make(chan error, 1)
			go func() {
				_, err := remote.Write(tt.rest)
				written <- err
			}()

			payload, err := r.ReadMessage()
			require.NoError(t, err)
			assert.Equal(t, []byte{0x02, 0xF0, 0x80}, payload)
			require.NoError(t, <-written)
		})
	}
}

func TestReaderNextMessageAfterResume(t *testing.T) {
	var stream bytes.Buffer
	w := NewWriter(&stream)
	require.NoError(t, w.WriteMessage([]byte{0x02, 0xF0, 0x80}))
	require.NoError(t, w.WriteMessage([]byte{0x02, 0xF0, 0x01}))

	r := NewReader(&stutterReader{data: stream.Bytes(), failAt: 3})

	_, err := r.ReadMessage()
	assert.ErrorIs(t, err, errInterrupted)

	payload, err := r.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, []byte{0x02, 0xF0, 0x80}, payload)

	payload, err = r.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, []byte{0x02, 0xF0, 0x01}, payload)
}

var errInterrupted = errors.New("interrupted")

// stutterReader fails once after failAt bytes and then continues
type stutterReader struct {
	data   []byte
	failAt int
	failed bool
}

func (s *stutterReader) Read(p []byte) (int, error) {
	if len(s.data) == 0 {
		return 0, io.EOF
	}
	limit := len(s.data)
	if !s.failed {
		if s.failAt == 0 {
			s.failed = true
			return 0, errInterrupted
		}
		limit = min(limit, s.failAt)
	}
	n := copy(p, s.data[:limit])
	s.data = s.data[n:]
	if !s.failed {
		s.failAt -= n
	}
	return n, nil
}
