package cotp

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeParameter(t *testing.T) {
	tests := []struct {
		name   string
		data   []byte
		want   Parameter
		n      int
		length int
	}{
		{
			name:   "tpdu size",
			data:   []byte{0xC0, 0x01, 0x0A},
			want:   TPDUSizeParameter{Size: TPDUSize1024},
			n:      3,
			length: 3,
		},
		{
			name:   "src tsap",
			data:   []byte{0xC1, 0x02, 0x01, 0x00},
			want:   SrcTSAP{0x01, 0x00},
			n:      4,
			length: 4,
		},
		{
			name:   "dst tsap",
			data:   []byte{0xC2, 0x02, 0x01, 0x02},
			want:   DstTSAP{0x01, 0x02},
			n:      4,
			length: 4,
		},
		{
			name:   "empty tsap",
			data:   []byte{0xC1, 0x00},
			want:   SrcTSAP{},
			n:      2,
			length: 2,
		},
		{
			name:   "s7-200 unknown parameter",
			data:   []byte{0x02, 0x01, 0x01},
			want:   UnknownParameter{},
			n:      3,
			length: 0,
		},
		{
			name:   "trailing bytes are left alone",
			data:   []byte{0xC0, 0x01, 0x09, 0xC1},
			want:   TPDUSizeParameter{Size: TPDUSize512},
			n:      3,
			length: 3,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, n, err := DecodeParameter(tt.data)
			require.NoError(t, err)
			assert.Equal(t, tt.want, p)
			assert.Equal(t, tt.n, n)
			assert.Equal(t, tt.length, p.Length())
		})
	}
}

func TestDecodeParameterEndOfList(t *testing.T) {
	p, n, err := DecodeParameter(nil)
	require.NoError(t, err)
	assert.Nil(t, p)
	assert.Zero(t, n)
}

func TestDecodeParameterTruncatedDstTSAP(t *testing.T) {
	p, _, err := DecodeParameter([]byte{0xC2})
	require.NoError(t, err)
	assert.Nil(t, p)
}

func TestDecodeParameterErrors(t *testing.T) {
	tests := []struct {
		name string
		data []byte
		want error
	}{
		{"single non-dst byte", []byte{0xC1}, ErrInsufficientData},
		{"value shorter than length", []byte{0xC1, 0x04, 0x01}, ErrInsufficientData},
		{"tpdu size without value", []byte{0xC0, 0x00}, ErrInsufficientData},
		{"unknown tpdu size", []byte{0xC0, 0x01, 0x06}, ErrInvalidEnumValue},
		{"unsupported code", []byte{0xC5, 0x01, 0x00}, ErrUnsupportedParameter},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, _, err := DecodeParameter(tt.data)
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.want)
			assert.Nil(t, p)
		})
	}
}

func TestDecodeParameterCopiesValue(t *testing.T) {
	data := []byte{0xC1, 0x02, 0x01, 0x00}
	p, _, err := DecodeParameter(data)
	require.NoError(t, err)

	data[2] = 0xFF
	assert.Equal(t, SrcTSAP{0x01, 0x00}, p)
}

func TestEncodeParameter(t *testing.T) {
	tests := []struct {
		name string
		p    Parameter
		want []byte
	}{
		{"tpdu size", TPDUSizeParameter{Size: TPDUSize1024}, []byte{0xC0, 0x01, 0x0A}},
		{"src tsap", SrcTSAP{0x01, 0x00}, []byte{0xC1, 0x02, 0x01, 0x00}},
		{"dst tsap", DstTSAP{0x01, 0x02}, []byte{0xC2, 0x02, 0x01, 0x02}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			require.NoError(t, EncodeParameter(&buf, tt.p))
			assert.Equal(t, tt.want, buf.Bytes())
			assert.Equal(t, tt.p.Length(), buf.Len())
		})
	}
}

func TestUnknownParameterIsNotReEncoded(t *testing.T) {
	p, n, err := DecodeParameter([]byte{0x02, 0x01, 0x01})
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Equal(t, UnknownParameter{}, p)
	assert.Zero(t, p.Length())

	var buf bytes.Buffer
	require.NoError(t, EncodeParameter(&buf, p))
	assert.Zero(t, buf.Len())
}

func TestEncodeParameterErrors(t *testing.T) {
	var buf bytes.Buffer

	err := EncodeParameter(&buf, TPDUSizeParameter{Size: 0x03})
	assert.ErrorIs(t, err, ErrInvalidEnumValue)

	err = EncodeParameter(&buf, DstTSAP(make([]byte, 256)))
	assert.ErrorIs(t, err, ErrOther)

	err = EncodeParameter(&buf, nil)
	assert.ErrorIs(t, err, ErrOther)
}

func TestTPDUSizeParameterRoundTrip(t *testing.T) {
	for b := 0; b <= 0xFF; b++ {
		data := []byte{0xC0, 0x01, byte(b)}
		p, _, err := DecodeParameter(data)

		size := TPDUSize(b)
		if !size.Valid() {
			assert.ErrorIs(t, err, ErrInvalidEnumValue, "byte 0x%02x", b)
			continue
		}

		require.NoError(t, err, "byte 0x%02x", b)
		var buf bytes.Buffer
		require.NoError(t, EncodeParameter(&buf, p))
		assert.Equal(t, data, buf.Bytes())
	}
}
