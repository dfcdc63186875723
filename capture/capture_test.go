package capture

import (
	"bytes"
	"io"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testEvents() []Event {
	ts := time.Date(2025, 3, 1, 12, 0, 0, 123456789, time.UTC)
	return []Event{
		{Timestamp: ts, ConnectionID: "a", Direction: DirectionOut, RemoteAddr: "10.0.0.1:102", PDUType: 0xE0, Data: []byte{0x06, 0xE0, 0, 0, 0, 1, 0}},
		{Timestamp: ts, ConnectionID: "a", Direction: DirectionIn, RemoteAddr: "10.0.0.1:102", PDUType: 0xD0, Data: []byte{0x06, 0xD0, 0, 1, 0, 2, 0}},
		{Timestamp: ts, ConnectionID: "b", Direction: DirectionIn, Data: []byte{0x02, 0x80, 0x00}, Error: "cotp: unsupported PDU: type 0x80"},
		{Timestamp: ts, ConnectionID: "a", Direction: DirectionIn, PDUType: 0xF0, TPDUNumber: 3, LastDataUnit: true, Data: []byte{0x02, 0xF0, 0x83}},
	}
}

func TestEncodeDecodeEvent(t *testing.T) {
	for _, e := range testEvents() {
		data, err := EncodeEvent(e)
		require.NoError(t, err)

		got, err := DecodeEvent(data)
		require.NoError(t, err)
		assert.True(t, e.Timestamp.Equal(got.Timestamp))
		got.Timestamp = e.Timestamp
		assert.Equal(t, e, got)
	}
}

func TestStreamRecorderAndReader(t *testing.T) {
	var buf bytes.Buffer
	rec := NewStreamRecorder(&buf)
	for _, e := range testEvents() {
		rec.Record(e)
	}
	require.NoError(t, rec.Close())
	rec.Record(testEvents()[0])

	in := DirectionIn
	dt := uint8(0xF0)

	tests := []struct {
		name   string
		filter Filter
		want   int
	}{
		{"all", Filter{}, 4},
		{"connection", Filter{ConnectionID: "a"}, 3},
		{"direction", Filter{Direction: &in}, 3},
		{"pdu type", Filter{PDUType: &dt}, 1},
		{"errors only", Filter{ErrorsOnly: true}, 1},
		{"combined", Filter{ConnectionID: "a", Direction: &in}, 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewReader(bytes.NewReader(buf.Bytes()), tt.filter)
			n := 0
			for {
				_, err := r.Next()
				if err == io.EOF {
					break
				}
				require.NoError(t, err)
				n++
			}
			assert.Equal(t, tt.want, n)
		})
	}
}

func TestFileRecorder(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.cbor")

	rec, err := NewFileRecorder(path)
	require.NoError(t, err)
	for _, e := range testEvents() {
		rec.Record(e)
	}
	require.NoError(t, rec.Close())
	require.NoError(t, rec.Close())

	r, err := OpenFile(path, Filter{ErrorsOnly: true})
	require.NoError(t, err)
	defer r.Close()

	e, err := r.Next()
	require.NoError(t, err)
	assert.Equal(t, "b", e.ConnectionID)
	assert.Equal(t, []byte{0x02, 0x80, 0x00}, e.Data)

	_, err = r.Next()
	assert.Equal(t, io.EOF, err)
}

func TestDirection(t *testing.T) {
	assert.Equal(t, "IN", DirectionIn.String())
	assert.Equal(t, "OUT", DirectionOut.String())
	assert.Equal(t, "UNKNOWN", Direction(7).String())

	d, ok := ParseDirection("out")
	assert.True(t, ok)
	assert.Equal(t, DirectionOut, d)

	_, ok = ParseDirection("sideways")
	assert.False(t, ok)
}
