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

// PDU is one COTP protocol data unit.
// It is implemented by *ConnectRequest, *ConnectConfirm and *DtData only.
type PDU interface {
	// Type returns the PDU type code
	Type() PDUType

	// Length returns the value of the length byte: the PDU length
	// excluding the length byte itself and, for data PDUs, the payload.
	Length() int

	pdu()
}

// Frame is one decoded or to-be-encoded COTP PDU carrying payloads of type P
type Frame[P any] struct {
	PDU PDU
}

// Length returns the value of the frame's length byte
func (f *Frame[P]) Length() int {
	if f.PDU == nil {
		return 0
	}
	return f.PDU.Length()
}

// Type returns the PDU type of the frame
func (f *Frame[P]) Type() PDUType {
	if f.PDU == nil {
		return 0
	}
	return f.PDU.Type()
}

// ConnectRequest returns the connect request carried by f, if any
func (f *Frame[P]) ConnectRequest() (*ConnectRequest, bool) {
	cr, ok := f.PDU.(*ConnectRequest)
	return cr, ok
}

// ConnectConfirm returns the connect confirm carried by f, if any
func (f *Frame[P]) ConnectConfirm() (*ConnectConfirm, bool) {
	cc, ok := f.PDU.(*ConnectConfirm)
	return cc, ok
}

// DtData returns the data PDU carried by f, if any
func (f *Frame[P]) DtData() (*DtData[P], bool) {
	dt, ok := f.PDU.(*DtData[P])
	return dt, ok
}

func (f *Frame[P]) String() string {
	switch pdu := f.PDU.(type) {
	case *ConnectRequest:
		return fmt.Sprintf("CR %s", &pdu.ConnectComm)
	case *ConnectConfirm:
		return fmt.Sprintf("CC %s", &pdu.ConnectComm)
	case *DtData[P]:
		return fmt.Sprintf("DT tpdu=%d last=%t", pdu.TPDUNumber, pdu.LastDataUnit)
	default:
		return "empty frame"
	}
}

// ConnectComm is the body shared by connect request and connect confirm PDUs
type ConnectComm struct {
	DestinationRef        [2]byte
	SourceRef             [2]byte
	Class                 uint8
	ExtendedFormats       bool
	NoExplicitFlowControl bool
	Parameters            []Parameter
}

// Length returns the length byte value of a connect PDU: the type byte,
// the 5 byte header and all parameters.
func (c *ConnectComm) Length() int {
	n := 1 + connectHeaderLen
	for _, p := range c.Parameters {
		// nil entries are rejected by Encode
		if p != nil {
			n += p.Length()
		}
	}
	return n
}

// TPDUSize returns the TPDU size parameter, if present
func (c *ConnectComm) TPDUSize() (TPDUSize, bool) {
	for _, p := range c.Parameters {
		if s, ok := p.(TPDUSizeParameter); ok {
			return s.Size, true
		}
	}
	return 0, false
}

// SrcTSAP returns the source TSAP parameter, if present
func (c *ConnectComm) SrcTSAP() (SrcTSAP, bool) {
	for _, p := range c.Parameters {
		if t, ok := p.(SrcTSAP); ok {
			return t, true
		}
	}
	return nil, false
}

// DstTSAP returns the destination TSAP parameter, if present
func (c *ConnectComm) DstTSAP() (DstTSAP, bool) {
	for _, p := range c.Parameters {
		if t, ok := p.(DstTSAP); ok {
			return t, true
		}
	}
	return nil, false
}

func (c *ConnectComm) String() string {
	s := fmt.Sprintf("dst-ref=%x src-ref=%x class=%d", c.DestinationRef, c.SourceRef, c.Class)
	for _, p := range c.Parameters {
		switch v := p.(type) {
		case TPDUSizeParameter:
			s += fmt.Sprintf(" tpdu-size=%s", v.Size)
		case SrcTSAP:
			s += fmt.Sprintf(" src-tsap=%x", []byte(v))
		case DstTSAP:
			s += fmt.Sprintf(" dst-tsap=%x", []byte(v))
		case UnknownParameter:
			s += " unknown"
		}
	}
	return s
}

// DecodeConnectComm decodes a connect PDU body (everything after the
// length and type bytes). data must hold the complete body.
func DecodeConnectComm(data []byte) (*ConnectComm, error) {
	if len(data) < connectHeaderLen {
		return nil, newError(KindInsufficientData,
			fmt.Sprintf("connect header needs %d bytes, have %d", connectHeaderLen, len(data)))
	}

	options := data[4]
	c := &ConnectComm{
		DestinationRef:        [2]byte{data[0], data[1]},
		SourceRef:             [2]byte{data[2], data[3]},
		Class:                 options >> 4,
		ExtendedFormats:       options&extendedFormatsBit != 0,
		NoExplicitFlowControl: options&noExplicitFlowControlBit != 0,
	}

	offset := connectHeaderLen
	for {
		p, n, err := DecodeParameter(data[offset:])
		if err != nil {
			return nil, err
		}
		if p == nil {
			break
		}
		c.Parameters = append(c.Parameters, p)
		offset += n
	}

	return c, nil
}

// Encode appends the connect PDU body to dst
func (c *ConnectComm) Encode(dst *bytes.Buffer) error {
	if c.Class > MaxClass {
		return newError(KindOther, fmt.Sprintf("class %d does not fit in 4 bits", c.Class))
	}

	dst.Write(c.DestinationRef[:])
	dst.Write(c.SourceRef[:])

	options := c.Class << 4
	if c.ExtendedFormats {
		options |= extendedFormatsBit
	}
	if c.NoExplicitFlowControl {
		options |= noExplicitFlowControlBit
	}
	dst.WriteByte(options)

	for _, p := range c.Parameters {
		if err := EncodeParameter(dst, p); err != nil {
			return err
		}
	}
	return nil
}

// ConnectRequest is a CR TPDU
type ConnectRequest struct {
	ConnectComm
}

func (*ConnectRequest) Type() PDUType { return PDUTypeConnectRequest }
func (*ConnectRequest) pdu()          {}

// ConnectConfirm is a CC TPDU
type ConnectConfirm struct {
	ConnectComm
}

func (*ConnectConfirm) Type() PDUType { return PDUTypeConnectConfirm }
func (*ConnectConfirm) pdu()          {}

// DtData is a DT TPDU. Payload is owned by the DtData until the caller takes it.
type DtData[P any] struct {
	// TPDUNumber is the 7-bit send sequence number
	TPDUNumber uint8

	// LastDataUnit marks the final TPDU of a logical message
	LastDataUnit bool

	Payload P
}

func (*DtData[P]) Type() PDUType { return PDUTypeDtData }

// Length is fixed: only the type byte and the control byte are counted.
func (*DtData[P]) Length() int { return dtDataLength }
func (*DtData[P]) pdu()        {}

// controlByte packs the sequence number and the end-of-message flag
func (d *DtData[P]) controlByte() (byte, error) {
	if d.TPDUNumber > MaxTPDUNumber {
		return 0, newError(KindOther, fmt.Sprintf("tpdu number %d exceeds %d", d.TPDUNumber, MaxTPDUNumber))
	}
	b := d.TPDUNumber & tpduNumberMask
	if d.LastDataUnit {
		b |= lastDataUnitMask
	}
	return b, nil
}

// parseControlByte is the inverse of controlByte
func parseControlByte(b byte) (tpduNumber uint8, lastDataUnit bool) {
	return b & tpduNumberMask, b&lastDataUnitMask != 0
}
