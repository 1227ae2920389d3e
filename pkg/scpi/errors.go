// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package scpi

import (
	"errors"
	"fmt"
)

// Kind classifies an error by where it originated.
type Kind int

// Error kinds
const (
	KindValidation Kind = iota + 1
	KindTransport
	KindTimeout
	KindProtocol
	KindDevice
)

// String returns the kind name.
func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindTransport:
		return "transport"
	case KindTimeout:
		return "timeout"
	case KindProtocol:
		return "protocol"
	case KindDevice:
		return "device"
	default:
		return "unknown"
	}
}

// Return codes. Negative values are failures. Codes -11 and below are
// reported by the device itself in the reply status field.
const (
	CodeSuccess             = 0
	CodeInvalidArgument     = -1
	CodeNotOpen             = -2
	CodeOpenFailed          = -3
	CodeSendFailed          = -4
	CodeReceiveFailed       = -5
	CodeTimeout             = -6
	CodeInvalidResponse     = -7
	CodeResponseTooLong     = -8
	CodeBroadcastNotAllowed = -9
	CodeAddressMismatch     = -10
	CodeUnknownCommand      = -11
	CodeOutOfRange          = -12
	CodeBusy                = -13
	CodeNoCalibration       = -14
	CodeStoreFailed         = -15
	CodeHardwareFault       = -16
)

// ErrorMessage returns the description of a return code.
// Unknown codes yield "unknown error".
func ErrorMessage(code int) string {
	switch code {
	case CodeSuccess:
		return "success"
	case CodeInvalidArgument:
		return "invalid argument"
	case CodeNotOpen:
		return "connection not open"
	case CodeOpenFailed:
		return "failed to open connection"
	case CodeSendFailed:
		return "failed to send command"
	case CodeReceiveFailed:
		return "failed to receive response"
	case CodeTimeout:
		return "timed out waiting for response"
	case CodeInvalidResponse:
		return "invalid response from device"
	case CodeResponseTooLong:
		return "response exceeds buffer size"
	case CodeBroadcastNotAllowed:
		return "command not allowed on broadcast address"
	case CodeAddressMismatch:
		return "response from unexpected device"
	case CodeUnknownCommand:
		return "command not recognized by device"
	case CodeOutOfRange:
		return "parameter out of range"
	case CodeBusy:
		return "device busy"
	case CodeNoCalibration:
		return "calibration data unavailable"
	case CodeStoreFailed:
		return "failed to store configuration"
	case CodeHardwareFault:
		return "hardware fault"
	default:
		return "unknown error"
	}
}

// Error is the single error type returned by the codec, the transports and
// the session. Kind selects the taxonomy bucket, Code is the return code
// whose message is reported, Op names the failing operation and Err holds
// the underlying cause when there is one.
type Error struct {
	Kind Kind
	Code int
	Op   string
	Err  error
}

// Sentinels for errors.Is. They match any *Error of the same kind.
var (
	ErrValidation = &Error{Kind: KindValidation}
	ErrTransport  = &Error{Kind: KindTransport}
	ErrTimeout    = &Error{Kind: KindTimeout}
	ErrProtocol   = &Error{Kind: KindProtocol}
	ErrDevice     = &Error{Kind: KindDevice}
)

// Error implements the error interface
func (e *Error) Error() string {
	msg := ErrorMessage(e.Code)
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Kind == KindDevice {
		msg = fmt.Sprintf("%s (%d)", msg, e.Code)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Message returns the resolved code description without operation or cause.
func (e *Error) Message() string {
	return ErrorMessage(e.Code)
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches the kind sentinels.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t.Code != 0 || t.Op != "" || t.Err != nil {
		return false
	}
	return t.Kind == e.Kind
}

// WithOp returns a copy of e tagged with the operation name, unless it
// already names one.
func (e *Error) WithOp(op string) *Error {
	if e.Op != "" {
		return e
	}
	c := *e
	c.Op = op
	return &c
}

// Validationf builds a validation error. Validation errors are raised before
// any I/O takes place.
func Validationf(op string, format string, args ...interface{}) *Error {
	return &Error{
		Kind: KindValidation,
		Code: CodeInvalidArgument,
		Op:   op,
		Err:  fmt.Errorf(format, args...),
	}
}

// Protocolf builds an invalid-response error.
func Protocolf(op string, format string, args ...interface{}) *Error {
	return &Error{
		Kind: KindProtocol,
		Code: CodeInvalidResponse,
		Op:   op,
		Err:  fmt.Errorf(format, args...),
	}
}

// TransportError wraps an OS or hardware failure with the given code.
func TransportError(code int, op string, err error) *Error {
	return &Error{Kind: KindTransport, Code: code, Op: op, Err: err}
}

// TimeoutError reports a request that got no valid reply before its deadline.
func TimeoutError(op string, err error) *Error {
	return &Error{Kind: KindTimeout, Code: CodeTimeout, Op: op, Err: err}
}

// DeviceError reports a negative status returned by the device.
func DeviceError(op string, code int) *Error {
	return &Error{Kind: KindDevice, Code: code, Op: op}
}

// KindOf returns the kind of err, or zero when err is not an *Error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return 0
}

// CodeOf returns the return code carried by err. nil maps to CodeSuccess
// and errors of other types to CodeInvalidArgument.
func CodeOf(err error) int {
	if err == nil {
		return CodeSuccess
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeInvalidArgument
}
