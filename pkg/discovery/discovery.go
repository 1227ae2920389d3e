// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package discovery finds ABS devices on the local network. A probe goes out
// to a fixed multicast group and every device that hears it answers with its
// IP address and serial number.
package discovery

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/Thermoquad/absctl/pkg/scpi"
	"github.com/rs/zerolog"
	"golang.org/x/net/ipv4"
)

// Protocol constants
const (
	GroupAddress  = "239.255.50.25"
	GroupPort     = 5026
	MaxResults    = 32
	DefaultWindow = time.Second
)

// Result is one responding device.
type Result = scpi.DiscoveryResult

// Options tunes a discovery run. The zero value is ready to use.
type Options struct {
	// Window is how long replies are collected. Defaults to DefaultWindow.
	Window time.Duration

	// MaxResults lowers the result cap. Values outside 1..MaxResults mean
	// MaxResults.
	MaxResults int

	// Dedupe drops replies whose serial was already seen in this run.
	Dedupe bool

	// Group overrides the multicast destination.
	Group *net.UDPAddr

	// Conn replaces the multicast socket. Discover never closes it.
	Conn net.PacketConn

	Logger *zerolog.Logger
}

func (o Options) window() time.Duration {
	if o.Window <= 0 {
		return DefaultWindow
	}
	return o.Window
}

func (o Options) limit() int {
	if o.MaxResults <= 0 || o.MaxResults > MaxResults {
		return MaxResults
	}
	return o.MaxResults
}

func (o Options) group() *net.UDPAddr {
	if o.Group != nil {
		return o.Group
	}
	return &net.UDPAddr{IP: net.ParseIP(GroupAddress), Port: GroupPort}
}

func (o Options) logger() zerolog.Logger {
	if o.Logger != nil {
		return *o.Logger
	}
	return zerolog.Nop()
}

// Discover probes from the interface owning ifaceIP and collects replies in
// arrival order. No replies is not an error.
func Discover(ifaceIP string, opts Options) ([]Result, error) {
	return DiscoverContext(context.Background(), ifaceIP, opts)
}

// DiscoverContext is Discover with cancellation. Cancelling ctx ends the
// window early and returns what was collected so far.
func DiscoverContext(ctx context.Context, ifaceIP string, opts Options) ([]Result, error) {
	op := scpi.OpDiscovery.String()
	log := opts.logger()

	conn := opts.Conn
	if conn == nil {
		c, err := listen(ifaceIP)
		if err != nil {
			return nil, scpi.TransportError(scpi.CodeOpenFailed, op, err)
		}
		defer c.Close()
		conn = c
	}

	group := opts.group()
	probe := scpi.EncodeDiscoveryProbe().Frame()
	if _, err := conn.WriteTo(probe, group); err != nil {
		return nil, scpi.TransportError(scpi.CodeSendFailed, op, err)
	}
	log.Debug().Str("group", group.String()).Str("iface", ifaceIP).Msg("discovery probe sent")

	deadline := time.Now().Add(opts.window())
	if err := conn.SetReadDeadline(deadline); err != nil {
		return nil, scpi.TransportError(scpi.CodeReceiveFailed, op, err)
	}
	stop := context.AfterFunc(ctx, func() {
		conn.SetReadDeadline(time.Now())
	})
	defer stop()

	limit := opts.limit()
	results := make([]Result, 0, limit)
	seen := make(map[string]struct{})
	buf := make([]byte, scpi.MaxFrameSize+1)

	for len(results) < limit {
		n, from, err := conn.ReadFrom(buf)
		if err != nil {
			if isTimeout(err) {
				break
			}
			return results, scpi.TransportError(scpi.CodeReceiveFailed, op, err)
		}

		res, err := scpi.DecodeDiscoveryReply(buf[:n])
		if err != nil {
			log.Debug().Err(err).Stringer("from", from).Msg("skipping malformed discovery reply")
			continue
		}
		if opts.Dedupe {
			if _, dup := seen[res.Serial]; dup {
				continue
			}
			seen[res.Serial] = struct{}{}
		}
		results = append(results, res)
	}

	log.Debug().Int("found", len(results)).Msg("discovery finished")
	return results, nil
}

// listen binds a UDP socket on ifaceIP and points its multicast output at
// the interface owning that address. Replies are unicast back to the socket.
func listen(ifaceIP string) (*net.UDPConn, error) {
	var laddr *net.UDPAddr
	if ifaceIP != "" {
		ip := net.ParseIP(ifaceIP)
		if ip == nil || ip.To4() == nil {
			return nil, fmt.Errorf("invalid interface address %q", ifaceIP)
		}
		laddr = &net.UDPAddr{IP: ip}
	}

	conn, err := net.ListenUDP("udp4", laddr)
	if err != nil {
		return nil, err
	}

	pc := ipv4.NewPacketConn(conn)
	if err := pc.SetMulticastTTL(1); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to set multicast TTL: %w", err)
	}
	if laddr != nil {
		ifi, err := interfaceByIP(laddr.IP)
		if err != nil {
			conn.Close()
			return nil, err
		}
		if err := pc.SetMulticastInterface(ifi); err != nil {
			conn.Close()
			return nil, fmt.Errorf("failed to select multicast interface %s: %w", ifi.Name, err)
		}
	}
	return conn, nil
}

// interfaceByIP returns the interface carrying ip.
func interfaceByIP(ip net.IP) (*net.Interface, error) {
	ifaces, err := net.Interfaces()
	if err != nil {
		return nil, err
	}
	for i := range ifaces {
		addrs, err := ifaces[i].Addrs()
		if err != nil {
			continue
		}
		for _, a := range addrs {
			if ipnet, ok := a.(*net.IPNet); ok && ipnet.IP.Equal(ip) {
				return &ifaces[i], nil
			}
		}
	}
	return nil, fmt.Errorf("no interface has address %s", ip)
}

func isTimeout(err error) bool {
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
