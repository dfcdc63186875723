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
	"encoding/binary"
	"slices"
)

// NewFrame wraps a PDU in a frame
func NewFrame[P any](pdu PDU) *Frame[P] {
	return &Frame[P]{PDU: pdu}
}

// ConnectBuilder assembles connect request and connect confirm PDUs
type ConnectBuilder struct {
	comm ConnectComm
}

// NewConnectBuilder returns a builder for a class 0 connect PDU with no parameters
func NewConnectBuilder() *ConnectBuilder {
	return &ConnectBuilder{}
}

// DestinationRef sets the destination reference
func (b *ConnectBuilder) DestinationRef(ref uint16) *ConnectBuilder {
	binary.BigEndian.PutUint16(b.comm.DestinationRef[:], ref)
	return b
}

// SourceRef sets the source reference
func (b *ConnectBuilder) SourceRef(ref uint16) *ConnectBuilder {
	binary.BigEndian.PutUint16(b.comm.SourceRef[:], ref)
	return b
}

// Class sets the transport protocol class
func (b *ConnectBuilder) Class(class uint8) *ConnectBuilder {
	b.comm.Class = class
	return b
}

// ExtendedFormats sets the extended formats option
func (b *ConnectBuilder) ExtendedFormats(enable bool) *ConnectBuilder {
	b.comm.ExtendedFormats = enable
	return b
}

// NoExplicitFlowControl sets the no explicit flow control option
func (b *ConnectBuilder) NoExplicitFlowControl(enable bool) *ConnectBuilder {
	b.comm.NoExplicitFlowControl = enable
	return b
}

// TPDUSize appends a TPDU size parameter
func (b *ConnectBuilder) TPDUSize(size TPDUSize) *ConnectBuilder {
	return b.Parameter(TPDUSizeParameter{Size: size})
}

// SrcTSAP appends a source TSAP parameter
func (b *ConnectBuilder) SrcTSAP(tsap []byte) *ConnectBuilder {
	return b.Parameter(SrcTSAP(bytes.Clone(tsap)))
}

// DstTSAP appends a destination TSAP parameter
func (b *ConnectBuilder) DstTSAP(tsap []byte) *ConnectBuilder {
	return b.Parameter(DstTSAP(bytes.Clone(tsap)))
}

// Parameter appends an arbitrary parameter
func (b *ConnectBuilder) Parameter(p Parameter) *ConnectBuilder {
	b.comm.Parameters = append(b.comm.Parameters, p)
	return b
}

func (b *ConnectBuilder) build() ConnectComm {
	c := b.comm
	c.Parameters = slices.Clone(b.comm.Parameters)
	return c
}

// Request returns a connect request PDU
func (b *ConnectBuilder) Request() *ConnectRequest {
	return &ConnectRequest{ConnectComm: b.build()}
}

// Confirm returns a connect confirm PDU
func (b *ConnectBuilder) Confirm() *ConnectConfirm {
	return &ConnectConfirm{ConnectComm: b.build()}
}

// DtDataBuilder assembles a data PDU around a payload
type DtDataBuilder[P any] struct {
	payload P
}

// NewDtData returns a builder for a data PDU carrying payload
func NewDtData[P any](payload P) *DtDataBuilder[P] {
	return &DtDataBuilder[P]{payload: payload}
}

// Build returns the frame with the given sequence number and end-of-message flag
func (b *DtDataBuilder[P]) Build(tpduNumber uint8, lastDataUnit bool) *Frame[P] {
	return &Frame[P]{PDU: &DtData[P]{
		TPDUNumber:   tpduNumber,
		LastDataUnit: lastDataUnit,
		Payload:      b.payload,
	}}
}
