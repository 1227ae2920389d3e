// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strings"
	"syscall"

	"github.com/Thermoquad/absctl/pkg/capture"
	"github.com/Thermoquad/absctl/pkg/config"
	"github.com/Thermoquad/absctl/pkg/scpi"
	"github.com/Thermoquad/absctl/pkg/session"
	"github.com/Thermoquad/absctl/pkg/transport"
	"golang.org/x/term"
)

// Exit codes
const (
	ExitOK         = 0
	ExitFailure    = 1
	ExitConnection = 2
)

// exitError carries an explicit exit code.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string { return e.err.Error() }

func (e *exitError) Unwrap() error { return e.err }

// usageError marks err as a usage or connection problem.
func usageError(err error) error {
	return &exitError{code: ExitConnection, err: err}
}

// ExitCode maps a command error to the process exit code. Transport and
// usage errors exit with 2; everything else that failed exits with 1.
func ExitCode(err error) int {
	if err == nil {
		return ExitOK
	}
	var ee *exitError
	if errors.As(err, &ee) {
		return ee.code
	}
	switch scpi.KindOf(err) {
	case scpi.KindTransport, scpi.KindValidation:
		return ExitConnection
	default:
		return ExitFailure
	}
}

// GetPassword retrieves the bridge password from the environment or prompts
// the user
func GetPassword() (string, error) {
	if pw := os.Getenv("ABS_PASSWORD"); pw != "" {
		return pw, nil
	}

	fmt.Fprint(os.Stderr, "Password: ")

	passwordBytes, err := term.ReadPassword(int(syscall.Stdin))
	if err != nil {
		// Not a terminal: read a plain line
		reader := bufio.NewReader(os.Stdin)
		password, err := reader.ReadString('\n')
		if err != nil {
			return "", fmt.Errorf("failed to read password: %w", err)
		}
		fmt.Fprintln(os.Stderr)
		return strings.TrimSpace(password), nil
	}

	fmt.Fprintln(os.Stderr)
	return string(passwordBytes), nil
}

// sessionHandle is an open session plus whatever must be released with it.
type sessionHandle struct {
	*session.Session
	recorder *capture.FileRecorder
}

// Close closes the session and the capture file.
func (h *sessionHandle) Close() error {
	err := h.Session.Close()
	if h.recorder != nil {
		err = errors.Join(err, h.recorder.Close())
	}
	return err
}

// newSession builds an unopened session from the effective settings.
func newSession(extra ...session.Option) (*sessionHandle, error) {
	opts := []session.Option{
		session.WithTimeout(cfg.Connection.Timeout),
		session.WithLogger(logger),
	}

	h := &sessionHandle{}
	if cfg.Capture != "" {
		rec, err := capture.NewFileRecorder(cfg.Capture)
		if err != nil {
			return nil, usageError(err)
		}
		h.recorder = rec
		opts = append(opts, session.WithRecorder(rec))
	}

	h.Session = session.New(append(opts, extra...)...)
	return h, nil
}

// OpenSession opens the connection selected by flags and config.
func OpenSession(extra ...session.Option) (*sessionHandle, error) {
	h, err := newSession(extra...)
	if err != nil {
		return nil, err
	}

	conn := cfg.Connection
	switch conn.Transport() {
	case config.TransportUDP:
		err = h.OpenUDP(conn.UDP, conn.Iface)
	case config.TransportTCP:
		err = h.OpenTCP(conn.TCP, conn.Iface)
	case config.TransportSerial:
		err = h.OpenSerial(conn.Port, conn.ID)
	case config.TransportBridge:
		password := conn.Password
		if conn.Username != "" && password == "" {
			password, err = GetPassword()
			if err != nil {
				h.Close()
				return nil, usageError(err)
			}
		}
		err = h.OpenBridge(conn.Bridge, transport.BridgeOptions{
			Username:      conn.Username,
			Password:      password,
			SkipSSLVerify: conn.SkipSSLVerify,
		}, conn.ID)
	default:
		err = usageError(errors.New("one of --udp, --tcp, --port or --bridge must be specified"))
	}
	if err != nil {
		h.Close()
		return nil, err
	}

	logger.Debug().Str("link", h.Link()).Msg("connected")
	return h, nil
}

// withSession opens a session, runs fn and closes the session again.
func withSession(fn func(s *sessionHandle) error) error {
	s, err := OpenSession()
	if err != nil {
		return err
	}
	defer s.Close()
	return fn(s)
}
