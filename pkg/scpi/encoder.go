// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package scpi

import (
	"fmt"
	"strings"
)

// Command is an encoded request, ready for a transport.
type Command struct {
	Op   Op
	Line string // without terminator
}

// Frame returns the wire bytes including the terminator.
func (c Command) Frame() []byte {
	b := make([]byte, 0, len(c.Line)+1)
	b = append(b, c.Line...)
	return append(b, Terminator)
}

// FrameSeq returns the wire bytes tagged with sequence number seq.
func (c Command) FrameSeq(seq uint16) []byte {
	return WithSeq(seq, c.Frame())
}

// String returns the request line.
func (c Command) String() string {
	return c.Line
}

func newCommand(op Op, line string) Command {
	return Command{Op: op, Line: line}
}

// EncodeGetDeviceInfo creates the identification query.
func EncodeGetDeviceInfo() Command {
	return newCommand(OpGetDeviceInfo, mnemIdentify)
}

// EncodeGetDeviceID creates the serial device ID query.
func EncodeGetDeviceID() Command {
	return newCommand(OpGetDeviceID, mnemDeviceID)
}

// EncodeGetIPAddress creates the Ethernet configuration query.
func EncodeGetIPAddress() Command {
	return newCommand(OpGetIPAddress, mnemLANAddr+"?")
}

// EncodeSetIPAddress creates the Ethernet configuration command.
// Both fields must fit their 31-byte width and carry no control bytes.
func EncodeSetIPAddress(conf EthernetConfig) (Command, error) {
	op := OpSetIPAddress.String()
	if err := checkText("ip", conf.IP, IPWidth); err != nil {
		return Command{}, Validationf(op, "%v", err)
	}
	if err := checkText("netmask", conf.Netmask, NetmaskWidth); err != nil {
		return Command{}, Validationf(op, "%v", err)
	}
	line := mnemLANAddr + " " + QuoteString(conf.IP) + string(Separator) + QuoteString(conf.Netmask)
	return newCommand(OpSetIPAddress, line), nil
}

// EncodeGetCalibrationDate creates the calibration date query.
func EncodeGetCalibrationDate() Command {
	return newCommand(OpGetCalibrationDate, mnemCalDate)
}

// EncodeGetErrorCount creates the error queue length query.
func EncodeGetErrorCount() Command {
	return newCommand(OpGetErrorCount, mnemErrCount)
}

// EncodeGetNextError creates the error queue pop query.
func EncodeGetNextError() Command {
	return newCommand(OpGetNextError, mnemErrNext)
}

// EncodeClearErrors creates the clear status command, which empties the
// device's error queue.
func EncodeClearErrors() Command {
	return newCommand(OpClearErrors, mnemClearStatus)
}

// EncodeSetCellVoltage creates a single channel voltage command.
func EncodeSetCellVoltage(channel uint, voltage float32) (Command, error) {
	op := OpSetCellVoltage.String()
	if err := checkChannel(op, channel); err != nil {
		return Command{}, err
	}
	if !validVoltage(voltage) {
		return Command{}, Validationf(op, "voltage %v is not finite", voltage)
	}
	line := fmt.Sprintf(mnemSourceVolt, channel) + " " + FormatFloat(voltage)
	return newCommand(OpSetCellVoltage, line), nil
}

// EncodeSetAllCellVoltages creates the bulk voltage command. Exactly
// CellCount values are required, in channel order.
func EncodeSetAllCellVoltages(voltages []float32) (Command, error) {
	op := OpSetAllCellVoltages.String()
	if len(voltages) != CellCount {
		return Command{}, Validationf(op, "got %d voltages, want %d", len(voltages), CellCount)
	}
	parts := make([]string, len(voltages))
	for i, v := range voltages {
		if !validVoltage(v) {
			return Command{}, Validationf(op, "voltage %v for channel %d is not finite", v, i)
		}
		parts[i] = FormatFloat(v)
	}
	line := mnemAllVolt + " " + strings.Join(parts, string(Separator))
	return newCommand(OpSetAllCellVoltages, line), nil
}

// EncodeGetCellVoltageTarget creates a single channel target query.
func EncodeGetCellVoltageTarget(channel uint) (Command, error) {
	op := OpGetCellVoltageTarget.String()
	if err := checkChannel(op, channel); err != nil {
		return Command{}, err
	}
	return newCommand(OpGetCellVoltageTarget, fmt.Sprintf(mnemSourceVolt, channel)+"?"), nil
}

// EncodeGetAllCellVoltageTargets creates the bulk target query.
func EncodeGetAllCellVoltageTargets() Command {
	return newCommand(OpGetAllCellVoltageTargets, mnemAllVolt+"?")
}

// EncodeDiscoveryProbe creates the multicast discovery request.
func EncodeDiscoveryProbe() Command {
	return newCommand(OpDiscovery, mnemDiscoveryReq)
}

func checkChannel(op string, channel uint) error {
	if channel > MaxChannel {
		return Validationf(op, "channel %d out of range [0,%d]", channel, MaxChannel)
	}
	return nil
}
