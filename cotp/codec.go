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

package cotp

import (
	"bytes"
	"errors"
)

// ErrIncompletePayload is returned by a PayloadDecoder when src does not yet
// hold a complete payload.
var ErrIncompletePayload = errors.New("cotp: incomplete payload")

// PayloadDecoder decodes the application payload embedded in data PDUs.
//
// DecodePayload decodes one payload from the front of src and returns the
// number of bytes it consumed. It must not retain src.
type PayloadDecoder[P any] interface {
	DecodePayload(src []byte) (P, int, error)
}

// PayloadEncoder appends the wire form of an application payload to dst
type PayloadEncoder[P any] interface {
	EncodePayload(p P, dst *bytes.Buffer) error
}

// PayloadCodec is a payload decoder and encoder pair
type PayloadCodec[P any] interface {
	PayloadDecoder[P]
	PayloadEncoder[P]
}

// Codec bundles a frame decoder and encoder for one connection
type Codec[P any] struct {
	*Decoder[P]
	*Encoder[P]
}

// NewCodec creates a frame codec around a payload codec
func NewCodec[P any](inner PayloadCodec[P]) *Codec[P] {
	return &Codec[P]{
		Decoder: NewDecoder[P](inner),
		Encoder: NewEncoder[P](inner),
	}
}

// BytesCodec passes payloads through as raw bytes. Decoding consumes the
// whole window, so it is only correct when the layer below delivers exactly
// one message at a time (as TPKT does).
type BytesCodec struct{}

// DecodePayload copies all of src
func (BytesCodec) DecodePayload(src []byte) ([]byte, int, error) {
	return bytes.Clone(src), len(src), nil
}

// EncodePayload appends p unchanged
func (BytesCodec) EncodePayload(p []byte, dst *bytes.Buffer) error {
	dst.Write(p)
	return nil
}

var _ PayloadCodec[[]byte] = BytesCodec{}
