// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package scpi encodes and decodes the command set spoken by the ABS battery
// cell simulator.
//
// Requests are single ASCII lines: a SCPI mnemonic followed by optional
// comma-separated arguments. Replies are single lines starting with a signed
// status code, optionally followed by comma-separated data fields. Both carry
// a sequence tag in front (see WithSeq). Nothing in this package performs
// I/O; every function is deterministic.
package scpi

// Framing
const (
	Terminator = '\n'
	Separator  = ','
	Quote      = '"'
)

// Text field widths in data bytes, excluding the terminator.
const (
	PartNumberWidth  = 127
	SerialWidth      = 127
	VersionWidth     = 127
	IPWidth          = 31
	NetmaskWidth     = 31
	ErrorMsgWidth    = 255
	CalDateWidth     = 127
	DiscoveryIPWidth = 31
)

// MaxFrameSize bounds a single reply line, sequence tag included. The largest
// legal reply is get-device-info with three quoted 127-byte fields.
const MaxFrameSize = 512

// Cell channels
const (
	CellCount  = 8
	MaxChannel = CellCount - 1
)

// Command mnemonics
const (
	mnemIdentify     = "*IDN?"
	mnemDeviceID     = "SYST:DEV:ID?"
	mnemLANAddr      = "SYST:COMM:LAN:ADDR"
	mnemCalDate      = "CAL:DATE?"
	mnemErrCount     = "SYST:ERR:COUN?"
	mnemErrNext      = "SYST:ERR:NEXT?"
	mnemClearStatus  = "*CLS"
	mnemSourceVolt   = "SOUR%d:VOLT"
	mnemAllVolt      = "SOUR:VOLT:ALL"
	mnemDiscoveryReq = "DISC?"
)

// Op identifies one logical command of the fixed vocabulary.
type Op int

// Operation values
const (
	OpGetDeviceInfo Op = iota
	OpGetDeviceID
	OpGetIPAddress
	OpSetIPAddress
	OpGetCalibrationDate
	OpGetErrorCount
	OpGetNextError
	OpClearErrors
	OpSetCellVoltage
	OpSetAllCellVoltages
	OpGetCellVoltageTarget
	OpGetAllCellVoltageTargets
	OpDiscovery
)

// String returns the snake_case operation name used in logs and errors.
func (o Op) String() string {
	switch o {
	case OpGetDeviceInfo:
		return "get_device_info"
	case OpGetDeviceID:
		return "get_device_id"
	case OpGetIPAddress:
		return "get_ip_address"
	case OpSetIPAddress:
		return "set_ip_address"
	case OpGetCalibrationDate:
		return "get_calibration_date"
	case OpGetErrorCount:
		return "get_error_count"
	case OpGetNextError:
		return "get_next_error"
	case OpClearErrors:
		return "clear_errors"
	case OpSetCellVoltage:
		return "set_cell_voltage"
	case OpSetAllCellVoltages:
		return "set_all_cell_voltages"
	case OpGetCellVoltageTarget:
		return "get_cell_voltage_target"
	case OpGetAllCellVoltageTargets:
		return "get_all_cell_voltage_targets"
	case OpDiscovery:
		return "multicast_discovery"
	default:
		return "unknown"
	}
}

// Query reports whether the operation reads data back from the device.
// Broadcast addresses only accept operations that are not queries.
func (o Op) Query() bool {
	switch o {
	case OpSetIPAddress, OpClearErrors, OpSetCellVoltage, OpSetAllCellVoltages:
		return false
	default:
		return true
	}
}
