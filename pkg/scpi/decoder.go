// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package scpi

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"
)

// Reply is a parsed reply line: the status code and the raw data fields
// following it.
type Reply struct {
	Status int
	Fields []string
}

// ParseReply splits a reply frame into status and fields. Negative statuses
// are returned as device errors carrying the status as code.
func ParseReply(op Op, frame []byte) (Reply, error) {
	name := op.String()
	line := bytes.TrimRight(frame, "\r\n")
	if len(line) == 0 {
		return Reply{}, Protocolf(name, "empty reply")
	}
	if len(line) > MaxFrameSize {
		return Reply{}, &Error{
			Kind: KindProtocol,
			Code: CodeResponseTooLong,
			Op:   name,
			Err:  fmt.Errorf("%d bytes, max %d", len(line), MaxFrameSize),
		}
	}
	if i := bytes.IndexByte(line, Terminator); i >= 0 {
		return Reply{}, Protocolf(name, "embedded terminator at offset %d", i)
	}

	fields, err := splitFields(string(line))
	if err != nil {
		return Reply{}, Protocolf(name, "%v", err)
	}

	status, err := strconv.Atoi(fields[0])
	if err != nil {
		return Reply{}, Protocolf(name, "bad status %q", fields[0])
	}
	if status < 0 {
		return Reply{}, DeviceError(name, status)
	}
	return Reply{Status: status, Fields: fields[1:]}, nil
}

// need parses the reply and checks it carries exactly n data fields.
func need(op Op, frame []byte, n int) (Reply, error) {
	r, err := ParseReply(op, frame)
	if err != nil {
		return Reply{}, err
	}
	if len(r.Fields) != n {
		return Reply{}, Protocolf(op.String(), "got %d fields, want %d", len(r.Fields), n)
	}
	return r, nil
}

// DecodeStatus decodes the reply to a command that returns no data.
func DecodeStatus(op Op, frame []byte) error {
	_, err := need(op, frame, 0)
	return err
}

// DecodeDeviceInfo decodes the *IDN? reply.
func DecodeDeviceInfo(frame []byte) (DeviceInfo, error) {
	r, err := need(OpGetDeviceInfo, frame, 3)
	if err != nil {
		return DeviceInfo{}, err
	}
	return DeviceInfo{
		PartNumber: boundText(r.Fields[0], PartNumberWidth),
		Serial:     boundText(r.Fields[1], SerialWidth),
		Version:    boundText(r.Fields[2], VersionWidth),
	}, nil
}

// DecodeDeviceID decodes the serial device ID reply.
func DecodeDeviceID(frame []byte) (uint8, error) {
	r, err := need(OpGetDeviceID, frame, 1)
	if err != nil {
		return 0, err
	}
	id, err := strconv.ParseUint(r.Fields[0], 10, 8)
	if err != nil {
		return 0, Protocolf(OpGetDeviceID.String(), "bad device id %q", r.Fields[0])
	}
	return uint8(id), nil
}

// DecodeIPAddress decodes the Ethernet configuration reply.
func DecodeIPAddress(frame []byte) (EthernetConfig, error) {
	r, err := need(OpGetIPAddress, frame, 2)
	if err != nil {
		return EthernetConfig{}, err
	}
	return EthernetConfig{
		IP:      boundText(r.Fields[0], IPWidth),
		Netmask: boundText(r.Fields[1], NetmaskWidth),
	}, nil
}

// DecodeCalibrationDate decodes the calibration date reply.
func DecodeCalibrationDate(frame []byte) (string, error) {
	r, err := need(OpGetCalibrationDate, frame, 1)
	if err != nil {
		return "", err
	}
	return boundText(r.Fields[0], CalDateWidth), nil
}

// DecodeErrorCount decodes the error queue length reply.
func DecodeErrorCount(frame []byte) (int, error) {
	r, err := need(OpGetErrorCount, frame, 1)
	if err != nil {
		return 0, err
	}
	n, err := strconv.ParseInt(r.Fields[0], 10, 32)
	if err != nil || n < 0 {
		return 0, Protocolf(OpGetErrorCount.String(), "bad error count %q", r.Fields[0])
	}
	return int(n), nil
}

// DecodeNextError decodes an error queue entry. An empty queue is reported
// by the device as code 0.
func DecodeNextError(frame []byte) (ErrorRecord, error) {
	r, err := need(OpGetNextError, frame, 2)
	if err != nil {
		return ErrorRecord{}, err
	}
	code, err := strconv.ParseInt(r.Fields[0], 10, 16)
	if err != nil {
		return ErrorRecord{}, Protocolf(OpGetNextError.String(), "bad error code %q", r.Fields[0])
	}
	return ErrorRecord{
		Code:    int16(code),
		Message: boundText(r.Fields[1], ErrorMsgWidth),
	}, nil
}

// DecodeCellVoltageTarget decodes a single channel target reply.
func DecodeCellVoltageTarget(frame []byte) (float32, error) {
	r, err := need(OpGetCellVoltageTarget, frame, 1)
	if err != nil {
		return 0, err
	}
	v, err := ParseFloat(r.Fields[0])
	if err != nil {
		return 0, Protocolf(OpGetCellVoltageTarget.String(), "bad voltage %q", r.Fields[0])
	}
	return v, nil
}

// DecodeAllCellVoltageTargets decodes the bulk target reply. The result
// always has CellCount entries in channel order.
func DecodeAllCellVoltageTargets(frame []byte) ([]float32, error) {
	r, err := need(OpGetAllCellVoltageTargets, frame, CellCount)
	if err != nil {
		return nil, err
	}
	out := make([]float32, CellCount)
	for i := range out {
		v, err := ParseFloat(r.Fields[i])
		if err != nil {
			return nil, Protocolf(OpGetAllCellVoltageTargets.String(), "bad voltage %q for channel %d", r.Fields[i], i)
		}
		out[i] = v
	}
	return out, nil
}

// DecodeDiscoveryReply decodes one discovery announcement.
func DecodeDiscoveryReply(frame []byte) (DiscoveryResult, error) {
	r, err := need(OpDiscovery, frame, 2)
	if err != nil {
		return DiscoveryResult{}, err
	}
	ip := boundText(r.Fields[0], DiscoveryIPWidth)
	if strings.TrimSpace(ip) == "" {
		return DiscoveryResult{}, Protocolf(OpDiscovery.String(), "empty ip")
	}
	return DiscoveryResult{
		IP:     ip,
		Serial: boundText(r.Fields[1], SerialWidth),
	}, nil
}
