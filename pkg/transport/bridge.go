// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package transport

import (
	"context"
	"crypto/tls"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/Thermoquad/absctl/pkg/scpi"
	"github.com/gorilla/websocket"
)

// ErrBridgeClosed is returned when reading from a closed bridge connection.
var ErrBridgeClosed = errors.New("bridge connection closed")

// BridgeOptions configures a WebSocket serial bridge connection.
type BridgeOptions struct {
	Username      string
	Password      string
	SkipSSLVerify bool
}

// bridgePort exposes a WebSocket serial bridge as a Port. Each binary
// message carries raw bus bytes in either direction.
//
// A gorilla connection cannot be read again after a read deadline fires, so
// a reader goroutine owns ReadMessage and Read waits on its channel instead.
type bridgePort struct {
	conn        *websocket.Conn
	msgs        chan []byte
	done        chan struct{} // closed when the reader exits
	closing     chan struct{}
	closeOnce   sync.Once
	readErr     error
	pending     []byte
	readTimeout time.Duration
}

// OpenBridge connects to a WebSocket serial bridge at rawURL and addresses
// unit id on the bus behind it.
func OpenBridge(rawURL string, opts BridgeOptions, id DeviceID) (*SerialLink, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, scpi.TransportError(scpi.CodeOpenFailed, "", fmt.Errorf("invalid URL: %w", err))
	}

	switch u.Scheme {
	case "ws", "wss":
		// OK
	default:
		return nil, scpi.TransportError(scpi.CodeOpenFailed, "", fmt.Errorf("unsupported URL scheme: %s (use ws:// or wss://)", u.Scheme))
	}

	dialer := websocket.Dialer{
		HandshakeTimeout: 10 * time.Second,
	}
	if u.Scheme == "wss" {
		dialer.TLSClientConfig = &tls.Config{
			InsecureSkipVerify: opts.SkipSSLVerify,
		}
	}

	headers := http.Header{}
	if opts.Username != "" && opts.Password != "" {
		credentials := base64.StdEncoding.EncodeToString([]byte(opts.Username + ":" + opts.Password))
		headers.Set("Authorization", "Basic "+credentials)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	conn, resp, err := dialer.DialContext(ctx, rawURL, headers)
	if err != nil {
		if resp != nil {
			return nil, scpi.TransportError(scpi.CodeOpenFailed, "", fmt.Errorf("bridge connection failed (HTTP %d): %w", resp.StatusCode, err))
		}
		return nil, scpi.TransportError(scpi.CodeOpenFailed, "", fmt.Errorf("bridge connection failed: %w", err))
	}

	return NewSerialLink(newBridgePort(conn), "bridge "+u.Host, id), nil
}

func newBridgePort(conn *websocket.Conn) *bridgePort {
	p := &bridgePort{
		conn:    conn,
		msgs:    make(chan []byte, 16),
		done:    make(chan struct{}),
		closing: make(chan struct{}),
	}
	go p.readLoop()
	return p
}

func (p *bridgePort) readLoop() {
	defer close(p.done)
	for {
		messageType, data, err := p.conn.ReadMessage()
		if err != nil {
			p.readErr = err
			return
		}
		// Only binary messages carry bus traffic
		if messageType != websocket.BinaryMessage {
			continue
		}
		select {
		case p.msgs <- data:
		case <-p.closing:
			return
		}
	}
}

// Read returns buffered bytes first, then waits up to the read timeout for
// the next message. A timeout yields (0, nil) like a serial port.
func (p *bridgePort) Read(b []byte) (int, error) {
	if len(p.pending) > 0 {
		n := copy(b, p.pending)
		p.pending = p.pending[n:]
		return n, nil
	}

	timer := time.NewTimer(p.readTimeout)
	defer timer.Stop()

	select {
	case data := <-p.msgs:
		n := copy(b, data)
		p.pending = data[n:]
		return n, nil
	case <-p.done:
		if p.readErr != nil {
			return 0, fmt.Errorf("%w: %v", ErrBridgeClosed, p.readErr)
		}
		return 0, ErrBridgeClosed
	case <-timer.C:
		return 0, nil
	}
}

func (p *bridgePort) Write(b []byte) (int, error) {
	if err := p.conn.WriteMessage(websocket.BinaryMessage, b); err != nil {
		return 0, err
	}
	return len(b), nil
}

func (p *bridgePort) SetReadTimeout(t time.Duration) error {
	p.readTimeout = t
	return nil
}

// ResetInputBuffer drops everything received but not yet read.
func (p *bridgePort) ResetInputBuffer() error {
	p.pending = nil
	for {
		select {
		case <-p.msgs:
		default:
			return nil
		}
	}
}

func (p *bridgePort) Close() error {
	var err error
	p.closeOnce.Do(func() {
		close(p.closing)
		err = p.conn.Close()
	})
	return err
}
