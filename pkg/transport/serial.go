// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package transport

import (
	"bytes"
	"fmt"
	"io"
	"time"

	"github.com/Thermoquad/absctl/pkg/scpi"
	"go.bug.st/serial"
)

// Port is the byte stream a SerialLink drives. go.bug.st/serial ports
// satisfy it directly. Read must return (0, nil) when the read timeout
// expires without data.
type Port interface {
	io.ReadWriteCloser
	SetReadTimeout(t time.Duration) error
	ResetInputBuffer() error
}

// SerialLink talks to one unit, or to every unit, on an RS-485 multidrop bus.
// Each request carries the unit's device ID; only replies carrying the same
// ID are accepted. Half-duplex adapters that echo transmitted bytes are
// supported: a received line identical to the last request is skipped.
type SerialLink struct {
	port    Port
	name    string
	id      DeviceID
	decoder *Decoder
	buf     []byte
	pending []byte // received but not yet decoded
	sent    []byte // last request payload, to recognize adapter echo
}

// OpenSerial opens a serial port at 115200 8N1 and addresses unit id on it.
// IDs of BroadcastID and above address all units.
func OpenSerial(portName string, id DeviceID) (*SerialLink, error) {
	mode := &serial.Mode{
		BaudRate: DefaultBaudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}

	port, err := serial.Open(portName, mode)
	if err != nil {
		return nil, scpi.TransportError(scpi.CodeOpenFailed, "", fmt.Errorf("failed to open serial port %s: %w", portName, err))
	}

	return NewSerialLink(port, fmt.Sprintf("%s @%d", portName, DefaultBaudRate), id), nil
}

// NewSerialLink wraps an already open port. The link owns the port from
// here on and closes it on Close.
func NewSerialLink(port Port, name string, id DeviceID) *SerialLink {
	return &SerialLink{
		port:    port,
		name:    name,
		id:      id,
		decoder: NewDecoder(true),
		buf:     make([]byte, 128),
	}
}

// ID returns the addressed unit.
func (l *SerialLink) ID() DeviceID {
	return l.id
}

// Send writes one addressed request frame. Unread input from earlier
// exchanges is discarded first.
func (l *SerialLink) Send(frame []byte) error {
	if err := l.port.ResetInputBuffer(); err != nil {
		return scpi.TransportError(scpi.CodeSendFailed, "", err)
	}
	l.decoder.Reset()
	l.pending = l.pending[:0]
	l.sent = append(l.sent[:0], frame...)

	out := EncodeAddressed(l.id, frame)
	for len(out) > 0 {
		n, err := l.port.Write(out)
		if err != nil {
			return scpi.TransportError(scpi.CodeSendFailed, "", err)
		}
		if n == 0 {
			return scpi.TransportError(scpi.CodeSendFailed, "", io.ErrShortWrite)
		}
		out = out[n:]
	}
	return nil
}

// Receive accumulates partial reads until a reply line addressed from this
// link's unit is complete or the timeout expires. Bytes following that line
// stay buffered for the next Receive.
func (l *SerialLink) Receive(timeout time.Duration) ([]byte, error) {
	if l.id.IsBroadcast() {
		return nil, ErrNoReply
	}

	deadline := time.Now().Add(timeout)
	for {
		frame, err := l.decodePending()
		if frame != nil || err != nil {
			return frame, err
		}

		remaining := time.Until(deadline)
		if remaining <= 0 {
			l.decoder.Reset()
			return nil, scpi.TimeoutError("", fmt.Errorf("no reply from unit %s on %s within %v", l.id, l.name, timeout))
		}
		if err := l.port.SetReadTimeout(remaining); err != nil {
			return nil, scpi.TransportError(scpi.CodeReceiveFailed, "", err)
		}

		n, err := l.port.Read(l.buf)
		if err != nil {
			return nil, scpi.TransportError(scpi.CodeReceiveFailed, "", err)
		}
		l.pending = append(l.pending, l.buf[:n]...)
	}
}

// decodePending feeds buffered bytes through the decoder and returns the
// first reply line, skipping echoes of the request.
func (l *SerialLink) decodePending() ([]byte, error) {
	for len(l.pending) > 0 {
		b := l.pending[0]
		l.pending = l.pending[1:]

		frame, err := l.decoder.DecodeByte(b)
		if err != nil {
			return nil, scpi.Protocolf("", "%v", err)
		}
		if frame == nil {
			continue
		}
		if frame.Address == l.id && bytes.Equal(frame.Payload, l.sent) {
			continue
		}
		if frame.Address != l.id {
			return nil, &scpi.Error{
				Kind: scpi.KindProtocol,
				Code: scpi.CodeAddressMismatch,
				Err:  fmt.Errorf("reply from unit %s, expected %s", frame.Address, l.id),
			}
		}
		return frame.Payload, nil
	}
	return nil, nil
}

// Broadcast reports whether the link addresses all units.
func (l *SerialLink) Broadcast() bool {
	return l.id.IsBroadcast()
}

// Close releases the port.
func (l *SerialLink) Close() error {
	return l.port.Close()
}

// String describes the link.
func (l *SerialLink) String() string {
	return fmt.Sprintf("serial %s unit %s", l.name, l.id)
}
