// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package scpi

// DeviceInfo is the identification triple reported by *IDN?.
type DeviceInfo struct {
	PartNumber string
	Serial     string
	Version    string
}

// EthernetConfig is the device's IPv4 address and subnet mask.
//
// Setting it does not reconfigure an open link; reopen to talk to the new
// address. Whether a rejected set leaves the previous configuration intact is
// up to the device firmware.
type EthernetConfig struct {
	IP      string
	Netmask string
}

// ErrorRecord is one entry popped from the device's error queue. The code
// space is the device's own and is unrelated to the Code* return codes.
type ErrorRecord struct {
	Code    int16
	Message string
}

// DiscoveryResult is one reply to a multicast discovery probe.
type DiscoveryResult struct {
	IP     string
	Serial string
}
