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

// Package cotp provides ISO 8073 class 0 (COTP) framing for industrial
// protocols such as Siemens S7 running over ISO-on-TCP (RFC 1006).
//
// The frame codec is generic over the embedded application payload: a
// Decoder or Encoder is built around a caller supplied PayloadDecoder or
// PayloadEncoder and delegates the payload bytes of data transfer PDUs to it.
package cotp

import "fmt"

// DefaultPort is the standard ISO-on-TCP port
const DefaultPort = 102

// Header sizes
const (
	// headerLen is the length byte plus the PDU type byte
	headerLen = 2

	// connectHeaderLen is dest ref, src ref and the class/options byte
	connectHeaderLen = 5

	// dtDataLength is the value of the length byte for a data PDU
	dtDataLength = 2

	// maxLengthByte is the largest PDU body length the length byte can carry
	maxLengthByte = 254
)

// Control byte masks for data PDUs
const (
	lastDataUnitMask = 0x80
	tpduNumberMask   = 0x7F

	// MaxTPDUNumber is the largest 7-bit TPDU sequence number
	MaxTPDUNumber = tpduNumberMask
)

// Class/options byte bits of connect PDUs
const (
	extendedFormatsBit       = 0x02
	noExplicitFlowControlBit = 0x01

	// MaxClass is the largest transport class that fits the high nibble
	MaxClass = 0x0F
)

// PDUType is the COTP PDU type code
type PDUType uint8

const (
	PDUTypeConnectRequest PDUType = 0xE0
	PDUTypeConnectConfirm PDUType = 0xD0
	PDUTypeDtData         PDUType = 0xF0
)

func (t PDUType) String() string {
	switch t {
	case PDUTypeConnectRequest:
		return "connect-request"
	case PDUTypeConnectConfirm:
		return "connect-confirm"
	case PDUTypeDtData:
		return "dt-data"
	default:
		return fmt.Sprintf("pdu-type(0x%02x)", uint8(t))
	}
}

// ParameterCode is the code of a connect PDU parameter
type ParameterCode uint8

const (
	ParameterTPDUSize ParameterCode = 0xC0
	ParameterSrcTSAP  ParameterCode = 0xC1
	ParameterDstTSAP  ParameterCode = 0xC2

	// ParameterUnknown is sent by some S7-200 CPUs. Its content is skipped.
	ParameterUnknown ParameterCode = 0x02
)

func (c ParameterCode) String() string {
	names := map[ParameterCode]string{
		ParameterTPDUSize: "tpdu-size",
		ParameterSrcTSAP:  "src-tsap",
		ParameterDstTSAP:  "dst-tsap",
		ParameterUnknown:  "unknown",
	}
	if name, ok := names[c]; ok {
		return name
	}
	return fmt.Sprintf("parameter(0x%02x)", uint8(c))
}

// TPDUSize is the negotiated maximum TPDU size (RFC 905 13.3.4)
type TPDUSize uint8

const (
	TPDUSize128  TPDUSize = 0x07
	TPDUSize256  TPDUSize = 0x08
	TPDUSize512  TPDUSize = 0x09
	TPDUSize1024 TPDUSize = 0x0A
	TPDUSize2048 TPDUSize = 0x0B
	TPDUSize4096 TPDUSize = 0x0C // not allowed in class 0
	TPDUSize8192 TPDUSize = 0x0D // not allowed in class 0
)

// Bytes returns the size in octets, or 0 for an undefined value
func (s TPDUSize) Bytes() int {
	if !s.Valid() {
		return 0
	}
	return 1 << uint8(s)
}

// Valid reports whether s is one of the defined sizes
func (s TPDUSize) Valid() bool {
	return s >= TPDUSize128 && s <= TPDUSize8192
}

func (s TPDUSize) String() string {
	if !s.Valid() {
		return fmt.Sprintf("tpdu-size(0x%02x)", uint8(s))
	}
	return fmt.Sprintf("%d", s.Bytes())
}

// ParseTPDUSize converts a wire byte into a TPDUSize
func ParseTPDUSize(b byte) (TPDUSize, error) {
	s := TPDUSize(b)
	if !s.Valid() {
		return 0, newError(KindInvalidEnumValue, fmt.Sprintf("no TPDU size for value 0x%02x", b))
	}
	return s, nil
}

// TPDUSizeFor returns the TPDU size for a size in octets
func TPDUSizeFor(octets int) (TPDUSize, bool) {
	for s := TPDUSize128; s <= TPDUSize8192; s++ {
		if s.Bytes() == octets {
			return s, true
		}
	}
	return 0, false
}

// S7 connection types used in the first byte of a remote TSAP
const (
	ConnectionTypePG    uint8 = 0x01
	ConnectionTypeOP    uint8 = 0x02
	ConnectionTypeBasic uint8 = 0x03
)

// S7TSAP builds the two byte TSAP that Siemens CPUs expect for a rack and slot.
func S7TSAP(connType, rack, slot uint8) []byte {
	return []byte{connType, rack<<5 | slot&0x1F}
}
