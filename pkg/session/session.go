// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package session binds one link to the ABS command vocabulary. A Session is
// safe for concurrent use: every exchange holds the session lock from send
// to receive, so concurrent callers never interleave on the wire.
package session

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/Thermoquad/absctl/pkg/capture"
	"github.com/Thermoquad/absctl/pkg/scpi"
	"github.com/Thermoquad/absctl/pkg/transport"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// DefaultTimeout bounds the wait for each reply.
const DefaultTimeout = time.Second

// State of a session's link.
type State int

const (
	// Unopened sessions hold no link.
	Unopened State = iota
	// Opened sessions hold exactly one link.
	Opened
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case Unopened:
		return "unopened"
	case Opened:
		return "opened"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Session is a handle to one device, or to every unit on a serial bus when
// opened with the broadcast ID.
type Session struct {
	mu       sync.Mutex
	link     transport.Link
	id       string
	timeout  time.Duration
	log      zerolog.Logger
	metrics  *Metrics
	recorder capture.Recorder

	// seq tags the next request; see scpi.WithSeq.
	seq uint16
}

// Option configures a Session.
type Option func(*Session)

// WithTimeout sets the per-exchange reply timeout.
func WithTimeout(d time.Duration) Option {
	return func(s *Session) {
		if d > 0 {
			s.timeout = d
		}
	}
}

// WithLogger sets the logger. Sessions log nothing by default.
func WithLogger(l zerolog.Logger) Option {
	return func(s *Session) {
		s.log = l
	}
}

// WithMetrics records exchange counts and durations into m.
func WithMetrics(m *Metrics) Option {
	return func(s *Session) {
		s.metrics = m
	}
}

// WithRecorder captures every frame sent and received.
func WithRecorder(r capture.Recorder) Option {
	return func(s *Session) {
		if r != nil {
			s.recorder = r
		}
	}
}

// New creates an unopened session.
func New(opts ...Option) *Session {
	s := &Session{
		id:       uuid.NewString(),
		timeout:  DefaultTimeout,
		log:      zerolog.Nop(),
		recorder: capture.Nop{},
	}
	for _, opt := range opts {
		opt(s)
	}
	s.log = s.log.With().Str("session", s.id).Logger()
	return s
}

// ID returns the session's unique identifier.
func (s *Session) ID() string {
	return s.id
}

// Timeout returns the per-exchange reply timeout.
func (s *Session) Timeout() time.Duration {
	return s.timeout
}

// State reports whether the session holds a link.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.link == nil {
		return Unopened
	}
	return Opened
}

// Link describes the current link, or returns "" when unopened.
func (s *Session) Link() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.link == nil {
		return ""
	}
	return s.link.String()
}

// OpenUDP opens a UDP link to the device at targetIP. ifaceIP selects the
// local interface and may be empty.
func (s *Session) OpenUDP(targetIP, ifaceIP string) error {
	return s.open("open_udp", func() (transport.Link, error) {
		return transport.OpenUDP(targetIP, ifaceIP)
	})
}

// OpenTCP opens a TCP link to the device at targetIP.
func (s *Session) OpenTCP(targetIP, ifaceIP string) error {
	return s.open("open_tcp", func() (transport.Link, error) {
		return transport.OpenTCP(targetIP, ifaceIP)
	})
}

// OpenSerial opens an RS-485 link on port addressing unit id. IDs above 255
// address every unit; such sessions only accept commands that expect no
// reply.
func (s *Session) OpenSerial(port string, id int) error {
	if id < 0 {
		return s.reject("open_serial", scpi.Validationf("open_serial", "negative device id %d", id))
	}
	return s.open("open_serial", func() (transport.Link, error) {
		return transport.OpenSerial(port, transport.DeviceID(id))
	})
}

// OpenBridge opens a serial link tunnelled over a WebSocket bridge.
func (s *Session) OpenBridge(url string, opts transport.BridgeOptions, id int) error {
	if id < 0 {
		return s.reject("open_bridge", scpi.Validationf("open_bridge", "negative device id %d", id))
	}
	return s.open("open_bridge", func() (transport.Link, error) {
		return transport.OpenBridge(url, opts, transport.DeviceID(id))
	})
}

// Attach installs an already open link, replacing any current one.
func (s *Session) Attach(link transport.Link) error {
	if link == nil {
		return s.reject("attach", scpi.Validationf("attach", "nil link"))
	}
	return s.open("attach", func() (transport.Link, error) {
		return link, nil
	})
}

// open releases the current link before dialing the new one. A failed open
// leaves the session unopened. A failure to close the old link is returned
// joined with the open result; when the dial succeeded the session is opened
// on the new link regardless.
func (s *Session) open(op string, dial func() (transport.Link, error)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var releaseErr error
	if s.link != nil {
		releaseErr = s.releaseLocked()
	}

	link, err := dial()
	if err != nil {
		err = tag(op, err)
		s.log.Warn().Err(err).Str("op", op).Msg("open failed")
		if releaseErr != nil {
			return errors.Join(err, releaseErr)
		}
		return err
	}
	s.link = link
	s.log.Info().Str("link", link.String()).Msg("link opened")
	return releaseErr
}

// Close releases the link. Closing an unopened session does nothing.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.link == nil {
		return nil
	}
	return s.releaseLocked()
}

func (s *Session) releaseLocked() error {
	name := s.link.String()
	err := s.link.Close()
	s.link = nil
	if err != nil {
		s.log.Warn().Err(err).Str("link", name).Msg("close failed")
		return fmt.Errorf("failed to close %s: %w", name, err)
	}
	s.log.Info().Str("link", name).Msg("link closed")
	return nil
}

// do runs one request/reply exchange under the session lock and hands the
// reply to decode. Broadcast commands are sent and never wait for a reply.
func (s *Session) do(cmd scpi.Command, decode func(frame []byte) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	start := time.Now()
	err := s.exchangeLocked(cmd, decode)
	s.metrics.observe(cmd.Op, time.Since(start), err)

	ev := s.log.Debug()
	if err != nil {
		ev = s.log.Warn().Err(err)
	}
	ev.Str("op", cmd.Op.String()).Str("request", cmd.Line).Dur("elapsed", time.Since(start)).Msg("exchange")
	return err
}

func (s *Session) exchangeLocked(cmd scpi.Command, decode func(frame []byte) error) error {
	op := cmd.Op.String()

	if s.link == nil {
		return scpi.TransportError(scpi.CodeNotOpen, op, nil)
	}
	broadcast := s.link.Broadcast()
	if broadcast && cmd.Op.Query() {
		return &scpi.Error{Kind: scpi.KindValidation, Code: scpi.CodeBroadcastNotAllowed, Op: op}
	}

	s.seq++
	seq := s.seq
	frame := cmd.FrameSeq(seq)
	s.record(capture.DirectionOut, op, frame, nil)
	if err := s.link.Send(frame); err != nil {
		return tag(op, err)
	}
	if broadcast {
		return nil
	}

	// Replies tagged with an earlier sequence number answer requests that
	// already timed out. They are dropped and the wait continues.
	deadline := time.Now().Add(s.timeout)
	for {
		reply, err := s.link.Receive(time.Until(deadline))
		s.record(capture.DirectionIn, op, reply, err)
		if err != nil {
			return tag(op, err)
		}
		got, body, err := scpi.SplitSeq(reply)
		if err != nil {
			return tag(op, err)
		}
		if got == seq {
			return decode(body)
		}
		s.log.Debug().Str("op", op).Uint16("want", seq).Uint16("got", got).Msg("dropped stale reply")
		if time.Until(deadline) <= 0 {
			return scpi.TimeoutError(op, fmt.Errorf("no reply tagged %d within %v", seq, s.timeout))
		}
	}
}

func (s *Session) record(dir capture.Direction, op string, frame []byte, err error) {
	ev := capture.Event{
		Timestamp: time.Now(),
		SessionID: s.id,
		Link:      s.link.String(),
		Direction: dir,
		Op:        op,
		Frame:     append([]byte(nil), frame...),
	}
	if err != nil {
		ev.Code = scpi.CodeOf(err)
		ev.Error = err.Error()
	}
	s.recorder.Record(ev)
}

// reject reports an error raised before any exchange started.
func (s *Session) reject(op string, err error) error {
	s.metrics.observeName(op, 0, err)
	s.log.Debug().Err(err).Str("op", op).Msg("rejected")
	return err
}

// tag names the failing operation on err. Foreign errors become transport
// errors.
func tag(op string, err error) error {
	var e *scpi.Error
	if errors.As(err, &e) {
		return e.WithOp(op)
	}
	return scpi.TransportError(scpi.CodeReceiveFailed, op, err)
}
