package cotp

import (
	"bytes"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeConnectRequest(t *testing.T) {
	cr := NewConnectBuilder().
		DestinationRef(0x0001).
		SourceRef(0x0002).
		TPDUSize(TPDUSize1024).
		SrcTSAP([]byte{0x01, 0x00}).
		Request()

	out, err := NewEncoder[[]byte](BytesCodec{}).EncodeToBytes(NewFrame[[]byte](cr))
	require.NoError(t, err)
	assert.Equal(t, connectRequestBytes, out)
}

func TestEncodeDropsUnknownParameter(t *testing.T) {
	cc := NewConnectBuilder().
		Parameter(UnknownParameter{}).
		TPDUSize(TPDUSize512).
		Confirm()

	out, err := NewEncoder[[]byte](BytesCodec{}).EncodeToBytes(NewFrame[[]byte](cc))
	require.NoError(t, err)
	assert.Equal(t, []byte{0x09, 0xD0, 0x00, 0x00, 0x00, 0x00, 0x00, 0xC0, 0x01, 0x09}, out)
}

func TestEncodeDtData(t *testing.T) {
	enc := NewEncoder[[]byte](BytesCodec{})

	out, err := enc.EncodeToBytes(NewDtData([]byte{0x32, 0x01}).Build(0, true))
	require.NoError(t, err)
	assert.Equal(t, []byte{0x02, 0xF0, 0x80, 0x32, 0x01}, out)

	out, err = enc.EncodeToBytes(NewDtData([]byte{}).Build(5, false))
	require.NoError(t, err)
	assert.Equal(t, []byte{0x02, 0xF0, 0x05}, out)
}

func TestEncodeControlByte(t *testing.T) {
	codec := NewCodec[[]byte](BytesCodec{})

	for n := 0; n <= MaxTPDUNumber; n++ {
		for _, last := range []bool{false, true} {
			out, err := codec.EncodeToBytes(NewDtData([]byte{0xAB}).Build(uint8(n), last))
			require.NoError(t, err)

			want := byte(n)
			if last {
				want |= 0x80
			}
			require.Equal(t, want, out[2], "tpdu %d last %t", n, last)

			frame, _, err := codec.DecodeFrom(out)
			require.NoError(t, err)
			dt, ok := frame.DtData()
			require.True(t, ok)
			assert.Equal(t, uint8(n), dt.TPDUNumber)
			assert.Equal(t, last, dt.LastDataUnit)
		}
	}
}

func TestEncodeErrors(t *testing.T) {
	enc := NewEncoder[[]byte](BytesCodec{})

	tests := []struct {
		name  string
		frame *Frame[[]byte]
	}{
		{"nil frame", nil},
		{"empty frame", &Frame[[]byte]{}},
		{"tpdu number out of range", NewDtData([]byte{0x01}).Build(128, true)},
		{"class out of range", NewFrame[[]byte](NewConnectBuilder().Class(16).Request())},
		{"length byte overflow", NewFrame[[]byte](NewConnectBuilder().SrcTSAP(make([]byte, 250)).Request())},
		{"payload type mismatch", NewFrame[[]byte](&DtData[string]{Payload: "x"})},
		{"nil parameter", NewFrame[[]byte](NewConnectBuilder().TPDUSize(TPDUSize1024).Parameter(nil).Request())},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dst := bytes.NewBufferString("prefix")
			err := enc.Encode(tt.frame, dst)
			assert.ErrorIs(t, err, ErrOther)
			assert.Equal(t, "prefix", dst.String())
		})
	}
}

func TestEncodeLargestConnectPDU(t *testing.T) {
	// 6 + 2 + 246 = 254
	cr := NewConnectBuilder().SrcTSAP(make([]byte, 246)).Request()
	out, err := NewEncoder[[]byte](BytesCodec{}).EncodeToBytes(NewFrame[[]byte](cr))
	require.NoError(t, err)
	assert.Equal(t, byte(254), out[0])
	assert.Len(t, out, 255)
}

func TestEncodeInvalidParameterRollsBack(t *testing.T) {
	cr := NewConnectBuilder().
		SrcTSAP([]byte{0x01, 0x00}).
		Parameter(TPDUSizeParameter{Size: 0x03}).
		Request()

	var dst bytes.Buffer
	dst.Write([]byte{0xAA})
	err := NewEncoder[[]byte](BytesCodec{}).Encode(NewFrame[[]byte](cr), &dst)
	assert.ErrorIs(t, err, ErrInvalidEnumValue)
	assert.Equal(t, []byte{0xAA}, dst.Bytes())
}

func TestEncodePayloadError(t *testing.T) {
	frame := NewDtData([]byte{0x01}).Build(0, true)

	t.Run("converter", func(t *testing.T) {
		var dst bytes.Buffer
		err := NewEncoder[[]byte](lengthPrefixed{err: functionCodeError{}}).Encode(frame, &dst)
		assert.ErrorIs(t, err, ErrInvalidEnumValue)
		assert.Zero(t, dst.Len())
	})

	t.Run("plain error", func(t *testing.T) {
		inner := errors.New("too long")
		var dst bytes.Buffer
		err := NewEncoder[[]byte](lengthPrefixed{err: inner}).Encode(frame, &dst)
		assert.ErrorIs(t, err, ErrOther)
		assert.ErrorIs(t, err, inner)
		assert.Zero(t, dst.Len())
	})
}

func TestEncodeAppends(t *testing.T) {
	enc := NewEncoder[[]byte](BytesCodec{})

	var dst bytes.Buffer
	require.NoError(t, enc.Encode(NewDtData([]byte{0x01}).Build(0, false), &dst))
	require.NoError(t, enc.Encode(NewDtData([]byte{0x02}).Build(1, true), &dst))
	assert.Equal(t, []byte{0x02, 0xF0, 0x00, 0x01, 0x02, 0xF0, 0x81, 0x02}, dst.Bytes())
}
