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
	"fmt"
)

// Decoder decodes COTP frames, delegating data PDU payloads to a PayloadDecoder.
// A Decoder holds no state between calls; use one per connection.
type Decoder[P any] struct {
	payload PayloadDecoder[P]
}

// NewDecoder creates a frame decoder around a payload decoder
func NewDecoder[P any](payload PayloadDecoder[P]) *Decoder[P] {
	return &Decoder[P]{payload: payload}
}

// Decode decodes one frame from the front of buf and consumes its bytes.
//
// A nil frame with a nil error means buf does not hold a complete frame yet;
// buf is left untouched so the caller can append more bytes and retry.
// Any error is fatal for the connection.
func (d *Decoder[P]) Decode(buf *bytes.Buffer) (*Frame[P], error) {
	frame, n, err := d.DecodeFrom(buf.Bytes())
	if err != nil || frame == nil {
		return nil, err
	}
	buf.Next(n)
	return frame, nil
}

// DecodeFrom decodes one frame from the front of data and returns the number
// of bytes it occupies. data is not modified. A nil frame with a nil error
// means more bytes are needed.
func (d *Decoder[P]) DecodeFrom(data []byte) (*Frame[P], int, error) {
	if len(data) < headerLen {
		return nil, 0, nil
	}

	// The length byte does not count itself. A zero length byte never
	// becomes a frame, no matter how many bytes follow.
	total := int(data[0]) + 1
	if total < headerLen || len(data) < total {
		return nil, 0, nil
	}

	switch pduType := PDUType(data[1]); pduType {
	case PDUTypeConnectRequest:
		c, err := DecodeConnectComm(data[headerLen:total])
		if err != nil {
			return nil, 0, err
		}
		return &Frame[P]{PDU: &ConnectRequest{ConnectComm: *c}}, total, nil

	case PDUTypeConnectConfirm:
		c, err := DecodeConnectComm(data[headerLen:total])
		if err != nil {
			return nil, 0, err
		}
		return &Frame[P]{PDU: &ConnectConfirm{ConnectComm: *c}}, total, nil

	case PDUTypeDtData:
		return d.decodeDtData(data, total)

	default:
		return nil, 0, newError(KindUnsupportedPDU, fmt.Sprintf("type 0x%02x", uint8(pduType)))
	}
}

// decodeDtData decodes a data PDU whose header spans data[:total].
//
// Class 0 carries no payload length: the payload runs until whatever the
// payload decoder consumes. An incomplete payload is therefore an error and
// not a request for more bytes; the layer below must deliver whole messages.
func (d *Decoder[P]) decodeDtData(data []byte, total int) (*Frame[P], int, error) {
	if total <= headerLen {
		return nil, 0, newError(KindInsufficientData, "data PDU has no control byte")
	}
	control := data[headerLen]

	window := data[total:]
	payload, n, err := d.payload.DecodePayload(window)
	if err != nil {
		if errors.Is(err, ErrIncompletePayload) {
			return nil, 0, &Error{Kind: KindOther, Msg: "payload decode failed", Err: err}
		}
		return nil, 0, convertPayloadError(err)
	}
	if n < 0 || n > len(window) {
		return nil, 0, newError(KindOther,
			fmt.Sprintf("payload decoder consumed %d of %d bytes", n, len(window)))
	}

	tpduNumber, last := parseControlByte(control)
	return &Frame[P]{PDU: &DtData[P]{
		TPDUNumber:   tpduNumber,
		LastDataUnit: last,
		Payload:      payload,
	}}, total + n, nil
}
