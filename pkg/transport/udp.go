// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package transport

import (
	"fmt"
	"net"
	"time"

	"github.com/Thermoquad/absctl/pkg/scpi"
)

// drainWindow is how long a stale UDP link waits for late datagrams before
// the next request goes out. Replies arriving later are told apart by their
// sequence tag in the session.
const drainWindow = 2 * time.Millisecond

// maxDrain bounds how many late datagrams one drain discards.
const maxDrain = 16

// UDPLink exchanges one request datagram and one reply datagram per command.
// Lost datagrams are not retried here; they surface as timeouts.
type UDPLink struct {
	conn   *net.UDPConn
	target *net.UDPAddr
	buf    []byte

	// stale is set after a timeout: the reply may still arrive and must not
	// be taken for the answer to the next request.
	stale bool
}

// OpenUDP binds a socket on iface (any local address when empty) and
// targets the device at target. target may omit the port.
func OpenUDP(target, iface string) (*UDPLink, error) {
	raddr, err := net.ResolveUDPAddr("udp4", withDefaultPort(target))
	if err != nil {
		return nil, scpi.TransportError(scpi.CodeOpenFailed, "", fmt.Errorf("invalid target %q: %w", target, err))
	}

	var laddr *net.UDPAddr
	if iface != "" {
		laddr, err = net.ResolveUDPAddr("udp4", net.JoinHostPort(iface, "0"))
		if err != nil {
			return nil, scpi.TransportError(scpi.CodeOpenFailed, "", fmt.Errorf("invalid interface %q: %w", iface, err))
		}
	}

	conn, err := net.ListenUDP("udp4", laddr)
	if err != nil {
		return nil, scpi.TransportError(scpi.CodeOpenFailed, "", err)
	}

	return &UDPLink{
		conn:   conn,
		target: raddr,
		buf:    make([]byte, scpi.MaxFrameSize+1),
	}, nil
}

// Send writes one request datagram.
func (l *UDPLink) Send(frame []byte) error {
	if l.stale {
		l.drain()
	}
	if _, err := l.conn.WriteToUDP(frame, l.target); err != nil {
		return scpi.TransportError(scpi.CodeSendFailed, "", err)
	}
	return nil
}

// Receive waits for a datagram from the target. Datagrams from other peers
// are discarded.
func (l *UDPLink) Receive(timeout time.Duration) ([]byte, error) {
	deadline := time.Now().Add(timeout)
	if err := l.conn.SetReadDeadline(deadline); err != nil {
		return nil, scpi.TransportError(scpi.CodeReceiveFailed, "", err)
	}

	for {
		n, from, err := l.conn.ReadFromUDP(l.buf)
		if err != nil {
			if isTimeout(err) {
				l.stale = true
				return nil, scpi.TimeoutError("", fmt.Errorf("no reply from %s within %v", l.target, timeout))
			}
			return nil, scpi.TransportError(scpi.CodeReceiveFailed, "", err)
		}
		if !from.IP.Equal(l.target.IP) || from.Port != l.target.Port {
			continue
		}
		if n > scpi.MaxFrameSize {
			return nil, &scpi.Error{
				Kind: scpi.KindProtocol,
				Code: scpi.CodeResponseTooLong,
				Err:  fmt.Errorf("datagram of %d bytes", n),
			}
		}
		return append([]byte(nil), l.buf[:n]...), nil
	}
}

// drain discards datagrams that arrived after an earlier timeout.
func (l *UDPLink) drain() {
	l.stale = false
	for i := 0; i < maxDrain; i++ {
		if err := l.conn.SetReadDeadline(time.Now().Add(drainWindow)); err != nil {
			return
		}
		if _, _, err := l.conn.ReadFromUDP(l.buf); err != nil {
			return
		}
	}
}

// Broadcast is always false: UDP targets a single device.
func (l *UDPLink) Broadcast() bool {
	return false
}

// Close releases the socket.
func (l *UDPLink) Close() error {
	return l.conn.Close()
}

// LocalAddr returns the bound local address.
func (l *UDPLink) LocalAddr() net.Addr {
	return l.conn.LocalAddr()
}

// String describes the link.
func (l *UDPLink) String() string {
	return fmt.Sprintf("udp %s", l.target)
}
