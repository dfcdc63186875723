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

// Package capture records COTP frames exchanged on a connection to a
// CBOR-encoded capture file and reads them back.
package capture

import "time"

// Event is one captured frame. CBOR encoding uses integer keys.
type Event struct {
	// Timestamp when the frame was sent or received (nanosecond precision)
	Timestamp time.Time `cbor:"1,keyasint"`

	// ConnectionID identifies the connection (UUID)
	ConnectionID string `cbor:"2,keyasint"`

	Direction Direction `cbor:"3,keyasint"`

	// RemoteAddr is the peer address (IP:port)
	RemoteAddr string `cbor:"4,keyasint,omitempty"`

	// PDUType is the COTP PDU type code, 0 if the frame did not decode
	PDUType uint8 `cbor:"5,keyasint,omitempty"`

	TPDUNumber   uint8 `cbor:"6,keyasint,omitempty"`
	LastDataUnit bool  `cbor:"7,keyasint,omitempty"`

	// Data is the raw COTP frame (without the TPKT header)
	Data []byte `cbor:"8,keyasint,omitempty"`

	// Error is set when the frame could not be decoded
	Error string `cbor:"9,keyasint,omitempty"`
}

// Direction indicates the direction of a frame
type Direction uint8

const (
	DirectionIn  Direction = 0
	DirectionOut Direction = 1
)

func (d Direction) String() string {
	switch d {
	case DirectionIn:
		return "IN"
	case DirectionOut:
		return "OUT"
	default:
		return "UNKNOWN"
	}
}

// ParseDirection parses "in" or "out", case-insensitively
func ParseDirection(s string) (Direction, bool) {
	switch s {
	case "in", "IN", "In":
		return DirectionIn, true
	case "out", "OUT", "Out":
		return DirectionOut, true
	default:
		return 0, false
	}
}
