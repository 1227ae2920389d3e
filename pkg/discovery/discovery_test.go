// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package discovery

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/Thermoquad/absctl/pkg/scpi"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeConn replays scripted datagrams, then blocks until the read deadline.
type fakeConn struct {
	mu       sync.Mutex
	inbox    [][]byte
	written  [][]byte
	to       []net.Addr
	deadline time.Time
	readErr  error
	writeErr error
	reads    int
}

func (c *fakeConn) ReadFrom(b []byte) (int, net.Addr, error) {
	c.mu.Lock()
	c.reads++
	if c.readErr != nil {
		c.mu.Unlock()
		return 0, nil, c.readErr
	}
	if len(c.inbox) > 0 {
		msg := c.inbox[0]
		c.inbox = c.inbox[1:]
		c.mu.Unlock()
		return copy(b, msg), &net.UDPAddr{IP: net.IPv4(10, 0, 0, 9), Port: GroupPort}, nil
	}
	c.mu.Unlock()

	for {
		c.mu.Lock()
		d := c.deadline
		c.mu.Unlock()
		if !d.IsZero() && !time.Now().Before(d) {
			return 0, nil, os.ErrDeadlineExceeded
		}
		time.Sleep(time.Millisecond)
	}
}

func (c *fakeConn) WriteTo(b []byte, addr net.Addr) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.writeErr != nil {
		return 0, c.writeErr
	}
	c.written = append(c.written, append([]byte(nil), b...))
	c.to = append(c.to, addr)
	return len(b), nil
}

func (c *fakeConn) Close() error { return nil }

func (c *fakeConn) LocalAddr() net.Addr { return &net.UDPAddr{} }

func (c *fakeConn) SetDeadline(time.Time) error { return nil }

func (c *fakeConn) SetWriteDeadline(time.Time) error { return nil }

func (c *fakeConn) SetReadDeadline(t time.Time) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.deadline = t
	return nil
}

func reply(ip, serial string) []byte {
	return scpi.EncodeDiscoveryReply(scpi.DiscoveryResult{IP: ip, Serial: serial})
}

func TestDiscover_CollectsInArrivalOrder(t *testing.T) {
	conn := &fakeConn{inbox: [][]byte{
		reply("192.168.1.20", "SN-2"),
		reply("192.168.1.10", "SN-1"),
	}}

	got, err := Discover("192.168.1.2", Options{Conn: conn, Window: 30 * time.Millisecond})
	require.NoError(t, err)
	assert.Equal(t, []Result{
		{IP: "192.168.1.20", Serial: "SN-2"},
		{IP: "192.168.1.10", Serial: "SN-1"},
	}, got)

	require.Len(t, conn.written, 1)
	assert.Equal(t, "DISC?\n", string(conn.written[0]))
	assert.Equal(t, "239.255.50.25:5026", conn.to[0].String())
}

func TestDiscover_NoRepliesIsEmpty(t *testing.T) {
	conn := &fakeConn{}
	start := time.Now()
	got, err := Discover("", Options{Conn: conn, Window: 20 * time.Millisecond})
	require.NoError(t, err)
	assert.NotNil(t, got)
	assert.Empty(t, got)
	assert.GreaterOrEqual(t, time.Since(start), 20*time.Millisecond)
}

func TestDiscover_CapsAt32(t *testing.T) {
	conn := &fakeConn{}
	for i := 0; i < 40; i++ {
		conn.inbox = append(conn.inbox, reply(fmt.Sprintf("10.0.0.%d", i+1), fmt.Sprintf("SN-%d", i)))
	}

	got, err := Discover("", Options{Conn: conn, Window: time.Second})
	require.NoError(t, err)
	assert.Len(t, got, MaxResults)
	assert.Equal(t, "10.0.0.1", got[0].IP)
	assert.Equal(t, "10.0.0.32", got[31].IP)
	// Collection stops as soon as the cap is reached.
	assert.Equal(t, MaxResults, conn.reads)
}

func TestDiscover_MaxResults(t *testing.T) {
	tests := []struct {
		max  int
		want int
	}{
		{0, 5},
		{3, 3},
		{100, 5},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprint(tt.max), func(t *testing.T) {
			conn := &fakeConn{}
			for i := 0; i < 5; i++ {
				conn.inbox = append(conn.inbox, reply("10.0.0.1", fmt.Sprint(i)))
			}
			got, err := Discover("", Options{Conn: conn, Window: 20 * time.Millisecond, MaxResults: tt.max})
			require.NoError(t, err)
			assert.Len(t, got, tt.want)
		})
	}
}

func TestDiscover_SkipsMalformed(t *testing.T) {
	conn := &fakeConn{inbox: [][]byte{
		[]byte("DISC?\n"),
		[]byte("0\n"),
		[]byte("0,\"\",\"SN-0\"\n"),
		[]byte("-11\n"),
		reply("10.0.0.7", "SN-7"),
	}}

	got, err := Discover("", Options{Conn: conn, Window: 20 * time.Millisecond})
	require.NoError(t, err)
	assert.Equal(t, []Result{{IP: "10.0.0.7", Serial: "SN-7"}}, got)
}

func TestDiscover_Dedupe(t *testing.T) {
	inbox := func() [][]byte {
		return [][]byte{
			reply("10.0.0.7", "SN-7"),
			reply("10.0.0.7", "SN-7"),
			reply("10.0.0.8", "SN-8"),
		}
	}

	got, err := Discover("", Options{Conn: &fakeConn{inbox: inbox()}, Window: 20 * time.Millisecond})
	require.NoError(t, err)
	assert.Len(t, got, 3)

	got, err = Discover("", Options{Conn: &fakeConn{inbox: inbox()}, Window: 20 * time.Millisecond, Dedupe: true})
	require.NoError(t, err)
	assert.Equal(t, []Result{{IP: "10.0.0.7", Serial: "SN-7"}, {IP: "10.0.0.8", Serial: "SN-8"}}, got)
}

func TestDiscover_SendFailure(t *testing.T) {
	conn := &fakeConn{writeErr: errors.New("network unreachable")}
	_, err := Discover("", Options{Conn: conn})
	assert.ErrorIs(t, err, scpi.ErrTransport)
	assert.Equal(t, scpi.CodeSendFailed, scpi.CodeOf(err))
}

func TestDiscover_ReadFailure(t *testing.T) {
	conn := &fakeConn{readErr: errors.New("socket closed")}
	_, err := Discover("", Options{Conn: conn})
	assert.ErrorIs(t, err, scpi.ErrTransport)
	assert.Equal(t, scpi.CodeReceiveFailed, scpi.CodeOf(err))
}

func TestDiscover_InvalidInterface(t *testing.T) {
	_, err := Discover("not-an-ip", Options{Window: time.Millisecond})
	assert.ErrorIs(t, err, scpi.ErrTransport)
	assert.Equal(t, scpi.CodeOpenFailed, scpi.CodeOf(err))
}

func TestDiscoverContext_Cancel(t *testing.T) {
	conn := &fakeConn{inbox: [][]byte{reply("10.0.0.7", "SN-7")}}
	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(20*time.Millisecond, cancel)

	start := time.Now()
	got, err := DiscoverContext(ctx, "", Options{Conn: conn, Window: 10 * time.Second})
	require.NoError(t, err)
	assert.Len(t, got, 1)
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestInterfaceByIP(t *testing.T) {
	ifi, err := interfaceByIP(net.IPv4(127, 0, 0, 1))
	if err != nil {
		t.Skipf("no loopback interface: %v", err)
	}
	assert.NotEmpty(t, ifi.Name)

	_, err = interfaceByIP(net.IPv4(203, 0, 113, 254))
	assert.Error(t, err)
}
