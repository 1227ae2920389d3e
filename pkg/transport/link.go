// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package transport moves request and reply frames between the client and an
// ABS device. All link variants share the Link contract: one request frame
// out, at most one reply frame back, bounded by a timeout.
package transport

import (
	"errors"
	"net"
	"strconv"
	"time"
)

// Defaults
const (
	DefaultPort        = 5025
	DefaultBaudRate    = 115200
	DefaultDialTimeout = 2 * time.Second
)

// DeviceID addresses a unit on a serial multidrop bus.
type DeviceID uint

// Serial addressing
const (
	MaxUnitID   DeviceID = 255
	BroadcastID DeviceID = 256
)

// IsBroadcast reports whether the ID addresses every unit on the bus.
func (id DeviceID) IsBroadcast() bool {
	return id >= BroadcastID
}

// String returns the wire form of the ID.
func (id DeviceID) String() string {
	if id.IsBroadcast() {
		return string(AddressAll)
	}
	return strconv.FormatUint(uint64(id), 10)
}

// ErrNoReply is returned by Receive on links that address every unit.
var ErrNoReply = errors.New("broadcast frames get no reply")

// Link is a raw frame transport owned by exactly one session.
// Implementations are not safe for concurrent use.
type Link interface {
	// Send writes one complete request frame.
	Send(frame []byte) error

	// Receive returns the next reply frame addressed to this client, or a
	// timeout error once the deadline passes.
	Receive(timeout time.Duration) ([]byte, error)

	// Broadcast reports whether frames go to every unit on the bus. Such
	// links never produce replies.
	Broadcast() bool

	// Close releases the underlying handle.
	Close() error

	// String describes the link for logs.
	String() string
}

// Compile-time interface satisfaction checks.
var (
	_ Link = (*UDPLink)(nil)
	_ Link = (*TCPLink)(nil)
	_ Link = (*SerialLink)(nil)
)

// withDefaultPort appends DefaultPort to host when it carries no port.
func withDefaultPort(host string) string {
	if _, _, err := net.SplitHostPort(host); err == nil {
		return host
	}
	return net.JoinHostPort(host, strconv.Itoa(DefaultPort))
}

// isTimeout reports whether err is a deadline expiry.
func isTimeout(err error) bool {
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
