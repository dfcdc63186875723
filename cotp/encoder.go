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
	"fmt"
)

// Encoder encodes COTP frames, delegating data PDU payloads to a PayloadEncoder
type Encoder[P any] struct {
	payload PayloadEncoder[P]
}

// NewEncoder creates a frame encoder around a payload encoder
func NewEncoder[P any](payload PayloadEncoder[P]) *Encoder[P] {
	return &Encoder[P]{payload: payload}
}

// Encode appends the wire form of f to dst. The payload of a data PDU is
// written directly after the control byte without any length; the layer
// below delimits the message. On error dst is left as it was.
func (e *Encoder[P]) Encode(f *Frame[P], dst *bytes.Buffer) error {
	if f == nil || f.PDU == nil {
		return newError(KindOther, "empty frame")
	}

	length := f.Length()
	if length > maxLengthByte {
		return newError(KindOther, fmt.Sprintf("PDU length %d exceeds %d", length, maxLengthByte))
	}

	start := dst.Len()
	if err := e.encode(f, byte(length), dst); err != nil {
		dst.Truncate(start)
		return err
	}
	return nil
}

// EncodeToBytes encodes f into a new byte slice
func (e *Encoder[P]) EncodeToBytes(f *Frame[P]) ([]byte, error) {
	var buf bytes.Buffer
	if err := e.Encode(f, &buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (e *Encoder[P]) encode(f *Frame[P], length byte, dst *bytes.Buffer) error {
	switch pdu := f.PDU.(type) {
	case *ConnectRequest:
		dst.WriteByte(length)
		dst.WriteByte(byte(PDUTypeConnectRequest))
		return pdu.Encode(dst)

	case *ConnectConfirm:
		dst.WriteByte(length)
		dst.WriteByte(byte(PDUTypeConnectConfirm))
		return pdu.Encode(dst)

	case *DtData[P]:
		control, err := pdu.controlByte()
		if err != nil {
			return err
		}
		dst.WriteByte(length)
		dst.WriteByte(byte(PDUTypeDtData))
		dst.WriteByte(control)
		return convertPayloadError(e.payload.EncodePayload(pdu.Payload, dst))

	default:
		return newError(KindOther, fmt.Sprintf("cannot encode %T with this encoder", f.PDU))
	}
}
