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

// parameterHeaderLen is the code byte plus the length byte
const parameterHeaderLen = 2

// Parameter is one optional parameter of a connect PDU.
// It is implemented by TPDUSizeParameter, SrcTSAP, DstTSAP and
// UnknownParameter only.
type Parameter interface {
	// Code returns the parameter code
	Code() ParameterCode

	// Length returns the number of bytes the parameter occupies when encoded
	Length() int

	encode(dst *bytes.Buffer) error
}

// TPDUSizeParameter carries the proposed or negotiated maximum TPDU size
type TPDUSizeParameter struct {
	Size TPDUSize
}

func (p TPDUSizeParameter) Code() ParameterCode { return ParameterTPDUSize }
func (p TPDUSizeParameter) Length() int         { return parameterHeaderLen + 1 }

func (p TPDUSizeParameter) encode(dst *bytes.Buffer) error {
	if !p.Size.Valid() {
		return newError(KindInvalidEnumValue, fmt.Sprintf("no TPDU size for value 0x%02x", uint8(p.Size)))
	}
	dst.WriteByte(byte(ParameterTPDUSize))
	dst.WriteByte(1)
	dst.WriteByte(byte(p.Size))
	return nil
}

// SrcTSAP is the calling transport selector
type SrcTSAP []byte

func (p SrcTSAP) Code() ParameterCode { return ParameterSrcTSAP }
func (p SrcTSAP) Length() int         { return parameterHeaderLen + len(p) }

func (p SrcTSAP) encode(dst *bytes.Buffer) error {
	return encodeTSAP(dst, ParameterSrcTSAP, p)
}

// DstTSAP is the called transport selector
type DstTSAP []byte

func (p DstTSAP) Code() ParameterCode { return ParameterDstTSAP }
func (p DstTSAP) Length() int         { return parameterHeaderLen + len(p) }

func (p DstTSAP) encode(dst *bytes.Buffer) error {
	return encodeTSAP(dst, ParameterDstTSAP, p)
}

// UnknownParameter marks the 0x02 parameter some S7-200 CPUs send.
// Its content is dropped on decode and nothing is written on encode.
type UnknownParameter struct{}

func (p UnknownParameter) Code() ParameterCode        { return ParameterUnknown }
func (p UnknownParameter) Length() int                { return 0 }
func (p UnknownParameter) encode(*bytes.Buffer) error { return nil }

func encodeTSAP(dst *bytes.Buffer, code ParameterCode, tsap []byte) error {
	if len(tsap) > 0xFF {
		return newError(KindOther, fmt.Sprintf("%s too long: %d bytes", code, len(tsap)))
	}
	dst.WriteByte(byte(code))
	dst.WriteByte(byte(len(tsap)))
	dst.Write(tsap)
	return nil
}

// EncodeParameter appends the wire form of p to dst
func EncodeParameter(dst *bytes.Buffer, p Parameter) error {
	if p == nil {
		return newError(KindOther, "nil parameter")
	}
	return p.encode(dst)
}

// DecodeParameter decodes one parameter from the front of data and returns
// the number of bytes it consumed. A nil Parameter with a nil error means
// the parameter list is finished.
func DecodeParameter(data []byte) (Parameter, int, error) {
	if len(data) == 0 {
		return nil, 0, nil
	}

	// S7-200 CPUs that send the 0x02 parameter end the list with a bare
	// 0xC2 code that has neither length nor value.
	if len(data) == 1 && ParameterCode(data[0]) == ParameterDstTSAP {
		return nil, 1, nil
	}

	if len(data) < parameterHeaderLen {
		return nil, 0, newError(KindInsufficientData, "parameter header")
	}

	code := ParameterCode(data[0])
	total := parameterHeaderLen + int(data[1])
	if len(data) < total {
		return nil, 0, newError(KindInsufficientData,
			fmt.Sprintf("parameter %s needs %d bytes, have %d", code, total, len(data)))
	}
	value := data[parameterHeaderLen:total]

	switch code {
	case ParameterTPDUSize:
		if len(value) < 1 {
			return nil, 0, newError(KindInsufficientData, "tpdu-size parameter has no value")
		}
		size, err := ParseTPDUSize(value[0])
		if err != nil {
			return nil, 0, err
		}
		return TPDUSizeParameter{Size: size}, total, nil

	case ParameterSrcTSAP:
		return SrcTSAP(bytes.Clone(value)), total, nil

	case ParameterDstTSAP:
		return DstTSAP(bytes.Clone(value)), total, nil

	case ParameterUnknown:
		return UnknownParameter{}, total, nil

	default:
		return nil, 0, newError(KindUnsupportedParameter, fmt.Sprintf("code 0x%02x", uint8(code)))
	}
}
