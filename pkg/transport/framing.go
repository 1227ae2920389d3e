// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package transport

import (
	"fmt"
	"strconv"

	"github.com/Thermoquad/absctl/pkg/scpi"
)

// Serial framing bytes
const (
	AddressMarker    = '@'
	AddressAll       = '*'
	AddressDelimiter = ' '
)

// maxAddressDigits bounds the decimal device ID in a frame header.
const maxAddressDigits = 3

// Decoder states (internal)
const (
	stateIdle = iota
	stateAddress
	statePayload
)

// Frame is a reply line pulled off a byte stream.
type Frame struct {
	Address DeviceID // only meaningful for addressed frames
	Payload []byte   // reply line including the terminator
}

// Decoder reassembles reply lines from a byte stream that may arrive in
// arbitrary fragments. In addressed mode every line must start with an
// "@<id> " header; bytes before the marker are dropped as bus noise.
type Decoder struct {
	addressed bool
	state     int
	address   []byte
	payload   []byte
	dropped   int
}

// NewDecoder creates a decoder. addressed selects multidrop framing.
func NewDecoder(addressed bool) *Decoder {
	d := &Decoder{
		addressed: addressed,
		address:   make([]byte, 0, maxAddressDigits),
		payload:   make([]byte, 0, scpi.MaxFrameSize+1),
	}
	d.Reset()
	return d
}

// Reset discards any partial frame.
func (d *Decoder) Reset() {
	d.address = d.address[:0]
	d.payload = d.payload[:0]
	if d.addressed {
		d.state = stateIdle
	} else {
		d.state = statePayload
	}
}

// Dropped returns how many noise bytes were skipped while idle.
func (d *Decoder) Dropped() int {
	return d.dropped
}

// DecodeByte feeds one byte through the decoder state machine.
// Returns a completed frame, or nil if the frame is incomplete.
// Returns an error when the stream cannot be a valid frame; the decoder is
// reset and ready for the next one.
func (d *Decoder) DecodeByte(b byte) (*Frame, error) {
	switch d.state {
	case stateIdle:
		if b == AddressMarker {
			d.state = stateAddress
		} else {
			d.dropped++
		}
		return nil, nil

	case stateAddress:
		if b == AddressDelimiter {
			if len(d.address) == 0 {
				d.Reset()
				return nil, fmt.Errorf("empty device address")
			}
			d.state = statePayload
			return nil, nil
		}
		if b == AddressAll && len(d.address) == 0 || b >= '0' && b <= '9' && len(d.address) < maxAddressDigits {
			d.address = append(d.address, b)
			return nil, nil
		}
		d.Reset()
		return nil, fmt.Errorf("invalid address byte 0x%02X", b)

	case statePayload:
		if len(d.payload) >= scpi.MaxFrameSize+1 {
			d.Reset()
			return nil, fmt.Errorf("frame exceeds %d bytes", scpi.MaxFrameSize)
		}
		d.payload = append(d.payload, b)
		if b != scpi.Terminator {
			return nil, nil
		}
		frame := &Frame{Payload: append([]byte(nil), d.payload...)}
		if d.addressed {
			id, err := parseAddress(d.address)
			if err != nil {
				d.Reset()
				return nil, err
			}
			frame.Address = id
		}
		d.Reset()
		return frame, nil

	default:
		d.Reset()
		return nil, fmt.Errorf("invalid state: %d", d.state)
	}
}

func parseAddress(b []byte) (DeviceID, error) {
	if len(b) == 1 && b[0] == AddressAll {
		return BroadcastID, nil
	}
	n, err := strconv.ParseUint(string(b), 10, 16)
	if err != nil || n > uint64(MaxUnitID) {
		return 0, fmt.Errorf("invalid device address %q", b)
	}
	return DeviceID(n), nil
}

// EncodeAddressed prefixes a request frame with the multidrop header.
func EncodeAddressed(id DeviceID, frame []byte) []byte {
	header := AddressHeader(id)
	out := make([]byte, 0, len(header)+len(frame))
	out = append(out, header...)
	return append(out, frame...)
}

// AddressHeader returns the "@<id> " prefix for id.
func AddressHeader(id DeviceID) string {
	return string(AddressMarker) + id.String() + string(AddressDelimiter)
}
