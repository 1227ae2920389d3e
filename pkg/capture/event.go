// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package capture records the frames a session exchanges with a device so a
// bench run can be replayed and inspected later. Events are written as a
// stream of CBOR maps with integer keys.
package capture

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Direction of a captured frame.
type Direction uint8

const (
	// DirectionOut is a request sent to the device.
	DirectionOut Direction = 0
	// DirectionIn is a reply received from the device.
	DirectionIn Direction = 1
)

// String returns the direction name.
func (d Direction) String() string {
	switch d {
	case DirectionOut:
		return "TX"
	case DirectionIn:
		return "RX"
	default:
		return fmt.Sprintf("DIR(%d)", d)
	}
}

// Event is one captured frame, or one failed receive when Frame is empty
// and Code is set.
type Event struct {
	Timestamp time.Time `cbor:"1,keyasint"`
	SessionID string    `cbor:"2,keyasint"`
	Link      string    `cbor:"3,keyasint,omitempty"`
	Direction Direction `cbor:"4,keyasint"`
	Op        string    `cbor:"5,keyasint"`
	Frame     []byte    `cbor:"6,keyasint,omitempty"`
	Code      int       `cbor:"7,keyasint,omitempty"`
	Error     string    `cbor:"8,keyasint,omitempty"`
}

// Format renders an event as a single human readable line.
func Format(e Event) string {
	var sb strings.Builder
	sb.WriteString(e.Timestamp.Format("15:04:05.000"))
	sb.WriteString(" ")
	sb.WriteString(e.Direction.String())
	sb.WriteString(" ")
	sb.WriteString(e.Op)
	if e.Link != "" {
		sb.WriteString(" [")
		sb.WriteString(e.Link)
		sb.WriteString("]")
	}
	if len(e.Frame) > 0 {
		sb.WriteString(" ")
		sb.WriteString(strconv.Quote(string(e.Frame)))
	}
	if e.Code != 0 || e.Error != "" {
		sb.WriteString(fmt.Sprintf(" error %d", e.Code))
		if e.Error != "" {
			sb.WriteString(": ")
			sb.WriteString(e.Error)
		}
	}
	return sb.String()
}

// Recorder receives captured events. Implementations must be safe for
// concurrent use; sessions on different goroutines may share one.
type Recorder interface {
	Record(event Event)
}

// Nop discards every event.
type Nop struct{}

// Record discards the event.
func (Nop) Record(Event) {}

// Compile-time interface satisfaction checks.
var (
	_ Recorder = Nop{}
	_ Recorder = (*FileRecorder)(nil)
)
