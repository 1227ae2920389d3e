// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package scpi

import (
	"strconv"
	"strings"
)

// Reply encoders produce device-side frames. They are used by simulators and
// tests; a client never sends them.

// EncodeReply builds a reply frame from a status code and preformatted
// fields.
func EncodeReply(status int, fields ...string) []byte {
	var b strings.Builder
	b.WriteString(strconv.Itoa(status))
	for _, f := range fields {
		b.WriteByte(Separator)
		b.WriteString(f)
	}
	b.WriteByte(Terminator)
	return []byte(b.String())
}

// EncodeDeviceInfoReply builds a successful *IDN? reply.
func EncodeDeviceInfoReply(info DeviceInfo) []byte {
	return EncodeReply(CodeSuccess,
		QuoteString(info.PartNumber),
		QuoteString(info.Serial),
		QuoteString(info.Version))
}

// EncodeIPAddressReply builds a successful Ethernet configuration reply.
func EncodeIPAddressReply(conf EthernetConfig) []byte {
	return EncodeReply(CodeSuccess, QuoteString(conf.IP), QuoteString(conf.Netmask))
}

// EncodeNextErrorReply builds a successful error queue entry reply.
func EncodeNextErrorReply(rec ErrorRecord) []byte {
	return EncodeReply(CodeSuccess, strconv.Itoa(int(rec.Code)), QuoteString(rec.Message))
}

// EncodeVoltagesReply builds a successful reply carrying voltages.
func EncodeVoltagesReply(voltages ...float32) []byte {
	fields := make([]string, len(voltages))
	for i, v := range voltages {
		fields[i] = FormatFloat(v)
	}
	return EncodeReply(CodeSuccess, fields...)
}

// EncodeDiscoveryReply builds a discovery announcement.
func EncodeDiscoveryReply(res DiscoveryResult) []byte {
	return EncodeReply(CodeSuccess, QuoteString(res.IP), QuoteString(res.Serial))
}
