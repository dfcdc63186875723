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
	"errors"
	"fmt"
)

// ErrorKind classifies codec errors
type ErrorKind uint8

const (
	KindOther ErrorKind = iota
	KindIO
	KindInsufficientData
	KindUnsupportedPDU
	KindUnsupportedParameter
	KindInvalidEnumValue
)

func (k ErrorKind) String() string {
	names := map[ErrorKind]string{
		KindOther:                "other",
		KindIO:                   "io",
		KindInsufficientData:     "insufficient data",
		KindUnsupportedPDU:       "unsupported PDU",
		KindUnsupportedParameter: "unsupported parameter",
		KindInvalidEnumValue:     "invalid enum value",
	}
	if name, ok := names[k]; ok {
		return name
	}
	return fmt.Sprintf("error-kind(%d)", k)
}

// Error is the error type returned by the frame codec.
// Any error it returns is fatal for the connection; "need more bytes" is
// never reported as an Error.
type Error struct {
	Kind ErrorKind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	s := "cotp: " + e.Kind.String()
	if e.Msg != "" {
		s += ": " + e.Msg
	}
	if e.Err != nil {
		s += ": " + e.Err.Error()
	}
	return s
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches any *Error of the same kind when target carries no detail,
// so errors.Is(err, ErrUnsupportedPDU) works on detailed errors.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t.Msg != "" || t.Err != nil {
		return false
	}
	return e.Kind == t.Kind
}

// Sentinel errors, one per kind
var (
	ErrOther                = &Error{Kind: KindOther}
	ErrIO                   = &Error{Kind: KindIO}
	ErrInsufficientData     = &Error{Kind: KindInsufficientData}
	ErrUnsupportedPDU       = &Error{Kind: KindUnsupportedPDU}
	ErrUnsupportedParameter = &Error{Kind: KindUnsupportedParameter}
	ErrInvalidEnumValue     = &Error{Kind: KindInvalidEnumValue}
)

// Client errors
var (
	ErrNotConnected      = errors.New("cotp: not connected")
	ErrAlreadyConnected  = errors.New("cotp: already connected")
	ErrConnectionRefused = errors.New("cotp: connection refused by peer")
	ErrUnexpectedPDU     = errors.New("cotp: unexpected PDU")
)

func newError(kind ErrorKind, msg string) *Error {
	return &Error{Kind: kind, Msg: msg}
}

// NewIOError wraps an error from the underlying byte source
func NewIOError(err error) *Error {
	return &Error{Kind: KindIO, Err: err}
}

// Converter is implemented by payload codec errors that know how to map
// themselves onto the COTP error taxonomy.
type Converter interface {
	ToCOTPError() *Error
}

// convertPayloadError absorbs an error returned by the payload codec
func convertPayloadError(err error) error {
	if err == nil {
		return nil
	}
	var c Converter
	if errors.As(err, &c) {
		if converted := c.ToCOTPError(); converted != nil {
			return converted
		}
	}
	var e *Error
	if errors.As(err, &e) {
		return err
	}
	return &Error{Kind: KindOther, Msg: "payload", Err: err}
}

// KindOf returns the kind of a codec error anywhere in err's chain
func KindOf(err error) (ErrorKind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return 0, false
}

// IsUnsupported returns true if err reports an unknown PDU type or parameter
func IsUnsupported(err error) bool {
	return errors.Is(err, ErrUnsupportedPDU) || errors.Is(err, ErrUnsupportedParameter)
}

// IsCodecError returns true if err originates from the frame codec
func IsCodecError(err error) bool {
	_, ok := KindOf(err)
	return ok
}
