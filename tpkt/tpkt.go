// Copyright 2025 Edgeo SCADA
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package tpkt implements RFC 1006 TPKT framing, which delimits COTP
// messages on a TCP stream.
//
//	+---------+----------+-----------------+
//	| version | reserved | length (BE u16) |  payload ...
//	|  0x03   |   0x00   | incl. 4B header |
//	+---------+----------+-----------------+
package tpkt

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"sync"
)

// Framing constants
const (
	// HeaderLen is the size of the TPKT header in bytes
	HeaderLen = 4

	// Version is the only TPKT version defined by RFC 1006
	Version = 0x03

	// MaxPayloadSize is the largest payload the 16-bit length can describe
	MaxPayloadSize = 0xFFFF - HeaderLen

	// DefaultMaxPayloadSize limits reads to the largest class 0 TPDU plus headroom
	DefaultMaxPayloadSize = 8192 + 256
)

// Framing errors
var (
	ErrInvalidVersion  = errors.New("tpkt: invalid version")
	ErrInvalidLength   = errors.New("tpkt: invalid length")
	ErrMessageEmpty    = errors.New("tpkt: message is empty")
	ErrMessageTooLarge = errors.New("tpkt: message too large")
	ErrFrameTruncated  = errors.New("tpkt: frame truncated")
)

// Header is the 4 byte TPKT header
type Header struct {
	Version  uint8
	Reserved uint8
	Length   uint16
}

// PayloadLen returns the number of payload bytes following the header
func (h Header) PayloadLen() int {
	return int(h.Length) - HeaderLen
}

// DecodeHeader decodes and validates a TPKT header
func DecodeHeader(data []byte) (Header, error) {
	if len(data) < HeaderLen {
		return Header{}, fmt.Errorf("%w: header needs %d bytes, have %d", ErrFrameTruncated, HeaderLen, len(data))
	}
	h := Header{
		Version:  data[0],
		Reserved: data[1],
		Length:   binary.BigEndian.Uint16(data[2:4]),
	}
	if h.Version != Version {
		return Header{}, fmt.Errorf("%w: %d", ErrInvalidVersion, h.Version)
	}
	if h.Length <= HeaderLen {
		return Header{}, fmt.Errorf("%w: %d", ErrInvalidLength, h.Length)
	}
	return h, nil
}

// Encode appends payload wrapped in a TPKT header to dst
func Encode(dst *bytes.Buffer, payload []byte) error {
	if len(payload) == 0 {
		return ErrMessageEmpty
	}
	if len(payload) > MaxPayloadSize {
		return fmt.Errorf("%w: %d > %d", ErrMessageTooLarge, len(payload), MaxPayloadSize)
	}
	var hdr [HeaderLen]byte
	hdr[0] = Version
	binary.BigEndian.PutUint16(hdr[2:], uint16(HeaderLen+len(payload)))
	dst.Write(hdr[:])
	dst.Write(payload)
	return nil
}

// Decode takes one TPKT message off the front of buf and returns its payload.
// A nil payload with a nil error means buf does not hold a complete message
// yet; buf is then left untouched.
func Decode(buf *bytes.Buffer) ([]byte, error) {
	data := buf.Bytes()
	if len(data) < HeaderLen {
		return nil, nil
	}
	h, err := DecodeHeader(data)
	if err != nil {
		return nil, err
	}
	if len(data) < int(h.Length) {
		return nil, nil
	}
	msg := buf.Next(int(h.Length))
	return bytes.Clone(msg[HeaderLen:]), nil
}

// Writer writes TPKT framed messages to an underlying writer.
// It is safe for concurrent use.
type Writer struct {
	w   io.Writer
	mu  sync.Mutex
	buf bytes.Buffer
}

// NewWriter creates a new TPKT writer
func NewWriter(w io.Writer) *Writer {
	return &Writer{w: w}
}

// WriteMessage writes payload as one TPKT message with a single Write call
func (tw *Writer) WriteMessage(payload []byte) error {
	tw.mu.Lock()
	defer tw.mu.Unlock()

	tw.buf.Reset()
	if err := Encode(&tw.buf, payload); err != nil {
		return err
	}
	if _, err := tw.w.Write(tw.buf.Bytes()); err != nil {
		return fmt.Errorf("write tpkt message: %w", err)
	}
	return nil
}

// Reader reads TPKT framed messages from an underlying reader.
//
// A read that fails part way through a message, such as on a deadline,
// keeps the bytes read so far and the next ReadMessage call continues
// the same message.
type Reader struct {
	r              io.Reader
	maxPayloadSize int

	header   [HeaderLen]byte
	headerN  int
	payload  []byte
	payloadN int
}

// NewReader creates a TPKT reader with the default payload limit
func NewReader(r io.Reader) *Reader {
	return NewReaderWithMaxSize(r, DefaultMaxPayloadSize)
}

// NewReaderWithMaxSize creates a TPKT reader with a custom payload limit
func NewReaderWithMaxSize(r io.Reader, maxSize int) *Reader {
	return &Reader{
		r:              r,
		maxPayloadSize: maxSize,
	}
}

// ReadMessage reads one TPKT message and returns its payload.
// It returns io.EOF if the stream ends cleanly between messages.
func (tr *Reader) ReadMessage() ([]byte, error) {
	if tr.payload == nil {
		n, err := io.ReadFull(tr.r, tr.header[tr.headerN:])
		tr.headerN += n
		if err != nil {
			if err == io.EOF && tr.headerN == 0 {
				return nil, err
			}
			if err == io.EOF || errors.Is(err, io.ErrUnexpectedEOF) {
				tr.reset()
				return nil, ErrFrameTruncated
			}
			return nil, fmt.Errorf("read tpkt header: %w", err)
		}

		h, err := DecodeHeader(tr.header[:])
		if err != nil {
			tr.reset()
			return nil, err
		}
		if h.PayloadLen() > tr.maxPayloadSize {
			tr.reset()
			return nil, fmt.Errorf("%w: %d > %d", ErrMessageTooLarge, h.PayloadLen(), tr.maxPayloadSize)
		}
		tr.payload = make([]byte, h.PayloadLen())
	}

	n, err := io.ReadFull(tr.r, tr.payload[tr.payloadN:])
	tr.payloadN += n
	if err != nil {
		if err == io.EOF || errors.Is(err, io.ErrUnexpectedEOF) {
			tr.reset()
			return nil, ErrFrameTruncated
		}
		return nil, fmt.Errorf("read tpkt payload: %w", err)
	}

	payload := tr.payload
	tr.reset()
	return payload, nil
}

func (tr *Reader) reset() {
	tr.headerN = 0
	tr.payload = nil
	tr.payloadN = 0
}
