// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package transport

import (
	"fmt"
	"net"
	"time"

	"github.com/Thermoquad/absctl/pkg/scpi"
)

// TCPLink carries the same line frames as UDP over a stream connection.
type TCPLink struct {
	conn    net.Conn
	target  string
	decoder *Decoder
	buf     []byte
	pending []byte // received but not yet decoded
	stale   bool
}

// OpenTCP dials the device at target from iface (any local address when
// empty). target may omit the port.
func OpenTCP(target, iface string) (*TCPLink, error) {
	addr := withDefaultPort(target)
	dialer := net.Dialer{Timeout: DefaultDialTimeout}
	if iface != "" {
		laddr, err := net.ResolveTCPAddr("tcp4", net.JoinHostPort(iface, "0"))
		if err != nil {
			return nil, scpi.TransportError(scpi.CodeOpenFailed, "", fmt.Errorf("invalid interface %q: %w", iface, err))
		}
		dialer.LocalAddr = laddr
	}

	conn, err := dialer.Dial("tcp4", addr)
	if err != nil {
		return nil, scpi.TransportError(scpi.CodeOpenFailed, "", err)
	}

	return &TCPLink{
		conn:    conn,
		target:  addr,
		decoder: NewDecoder(false),
		buf:     make([]byte, 128),
	}, nil
}

// Send writes one request frame.
func (l *TCPLink) Send(frame []byte) error {
	if l.stale {
		l.drain()
	}
	l.decoder.Reset()
	l.pending = l.pending[:0]
	if err := l.conn.SetWriteDeadline(time.Now().Add(DefaultDialTimeout)); err != nil {
		return scpi.TransportError(scpi.CodeSendFailed, "", err)
	}
	if _, err := l.conn.Write(frame); err != nil {
		return scpi.TransportError(scpi.CodeSendFailed, "", err)
	}
	return nil
}

// Receive accumulates stream bytes until a full reply line arrives. Bytes
// following that line stay buffered for the next Receive.
func (l *TCPLink) Receive(timeout time.Duration) ([]byte, error) {
	if frame, err := l.decodePending(); frame != nil || err != nil {
		return frame, err
	}
	if err := l.conn.SetReadDeadline(time.Now().Add(timeout)); err != nil {
		return nil, scpi.TransportError(scpi.CodeReceiveFailed, "", err)
	}

	for {
		n, err := l.conn.Read(l.buf)
		l.pending = append(l.pending, l.buf[:n]...)
		if frame, decodeErr := l.decodePending(); frame != nil || decodeErr != nil {
			return frame, decodeErr
		}
		if err != nil {
			if isTimeout(err) {
				l.stale = true
				return nil, scpi.TimeoutError("", fmt.Errorf("no reply from %s within %v", l.target, timeout))
			}
			return nil, scpi.TransportError(scpi.CodeReceiveFailed, "", err)
		}
	}
}

// decodePending feeds buffered bytes through the decoder up to the end of the
// first complete line.
func (l *TCPLink) decodePending() ([]byte, error) {
	for i, b := range l.pending {
		frame, err := l.decoder.DecodeByte(b)
		if err != nil {
			l.pending = l.pending[:0]
			l.stale = true
			return nil, &scpi.Error{Kind: scpi.KindProtocol, Code: scpi.CodeResponseTooLong, Err: err}
		}
		if frame != nil {
			l.pending = append(l.pending[:0], l.pending[i+1:]...)
			return frame.Payload, nil
		}
	}
	l.pending = l.pending[:0]
	return nil, nil
}

// drain discards bytes left over from an abandoned exchange.
func (l *TCPLink) drain() {
	l.stale = false
	for i := 0; i < maxDrain; i++ {
		if err := l.conn.SetReadDeadline(time.Now().Add(drainWindow)); err != nil {
			return
		}
		if _, err := l.conn.Read(l.buf); err != nil {
			return
		}
	}
}

// Broadcast is always false: TCP targets a single device.
func (l *TCPLink) Broadcast() bool {
	return false
}

// Close releases the connection.
func (l *TCPLink) Close() error {
	return l.conn.Close()
}

// String describes the link.
func (l *TCPLink) String() string {
	return fmt.Sprintf("tcp %s", l.target)
}
