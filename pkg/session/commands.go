// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package session

import (
	"github.com/Thermoquad/absctl/pkg/scpi"
)

// GetDeviceInfo queries part number, serial and firmware version.
func (s *Session) GetDeviceInfo() (scpi.DeviceInfo, error) {
	var info scpi.DeviceInfo
	err := s.do(scpi.EncodeGetDeviceInfo(), func(frame []byte) (err error) {
		info, err = scpi.DecodeDeviceInfo(frame)
		return err
	})
	return info, err
}

// GetDeviceID queries the unit's serial bus address.
func (s *Session) GetDeviceID() (uint8, error) {
	var id uint8
	err := s.do(scpi.EncodeGetDeviceID(), func(frame []byte) (err error) {
		id, err = scpi.DecodeDeviceID(frame)
		return err
	})
	return id, err
}

// GetIPAddress queries the device's Ethernet configuration.
func (s *Session) GetIPAddress() (scpi.EthernetConfig, error) {
	var conf scpi.EthernetConfig
	err := s.do(scpi.EncodeGetIPAddress(), func(frame []byte) (err error) {
		conf, err = scpi.DecodeIPAddress(frame)
		return err
	})
	return conf, err
}

// SetIPAddress changes the device's Ethernet configuration. The open link
// keeps using the old address.
func (s *Session) SetIPAddress(conf scpi.EthernetConfig) error {
	cmd, err := scpi.EncodeSetIPAddress(conf)
	if err != nil {
		return s.reject(scpi.OpSetIPAddress.String(), err)
	}
	return s.do(cmd, status(cmd.Op))
}

// GetCalibrationDate queries the date of the last calibration.
func (s *Session) GetCalibrationDate() (string, error) {
	var date string
	err := s.do(scpi.EncodeGetCalibrationDate(), func(frame []byte) (err error) {
		date, err = scpi.DecodeCalibrationDate(frame)
		return err
	})
	return date, err
}

// GetErrorCount queries the length of the device's error queue.
func (s *Session) GetErrorCount() (int, error) {
	var n int
	err := s.do(scpi.EncodeGetErrorCount(), func(frame []byte) (err error) {
		n, err = scpi.DecodeErrorCount(frame)
		return err
	})
	return n, err
}

// GetNextError pops the oldest entry from the device's error queue.
func (s *Session) GetNextError() (scpi.ErrorRecord, error) {
	var rec scpi.ErrorRecord
	err := s.do(scpi.EncodeGetNextError(), func(frame []byte) (err error) {
		rec, err = scpi.DecodeNextError(frame)
		return err
	})
	return rec, err
}

// ClearErrors empties the device's error queue.
func (s *Session) ClearErrors() error {
	cmd := scpi.EncodeClearErrors()
	return s.do(cmd, status(cmd.Op))
}

// SetCellVoltage sets the target voltage of one cell channel (0-7).
func (s *Session) SetCellVoltage(channel int, voltage float32) error {
	op := scpi.OpSetCellVoltage.String()
	if err := checkChannel(op, channel); err != nil {
		return s.reject(op, err)
	}
	cmd, err := scpi.EncodeSetCellVoltage(uint(channel), voltage)
	if err != nil {
		return s.reject(op, err)
	}
	return s.do(cmd, status(cmd.Op))
}

// SetAllCellVoltages sets the target voltage of every channel at once.
// voltages must hold exactly one value per channel.
func (s *Session) SetAllCellVoltages(voltages []float32) error {
	cmd, err := scpi.EncodeSetAllCellVoltages(voltages)
	if err != nil {
		return s.reject(scpi.OpSetAllCellVoltages.String(), err)
	}
	return s.do(cmd, status(cmd.Op))
}

// GetCellVoltageTarget queries the target voltage of one cell channel.
func (s *Session) GetCellVoltageTarget(channel int) (float32, error) {
	op := scpi.OpGetCellVoltageTarget.String()
	if err := checkChannel(op, channel); err != nil {
		return 0, s.reject(op, err)
	}
	cmd, err := scpi.EncodeGetCellVoltageTarget(uint(channel))
	if err != nil {
		return 0, s.reject(op, err)
	}
	var v float32
	err = s.do(cmd, func(frame []byte) (err error) {
		v, err = scpi.DecodeCellVoltageTarget(frame)
		return err
	})
	return v, err
}

// GetAllCellVoltageTargets queries every channel's target voltage, in
// channel order.
func (s *Session) GetAllCellVoltageTargets() ([]float32, error) {
	var out []float32
	err := s.do(scpi.EncodeGetAllCellVoltageTargets(), func(frame []byte) (err error) {
		out, err = scpi.DecodeAllCellVoltageTargets(frame)
		return err
	})
	return out, err
}

func status(op scpi.Op) func([]byte) error {
	return func(frame []byte) error {
		return scpi.DecodeStatus(op, frame)
	}
}

// checkChannel rejects negative channels before they reach the unsigned
// encoder.
func checkChannel(op string, channel int) error {
	if channel < 0 || channel > scpi.MaxChannel {
		return scpi.Validationf(op, "channel %d out of range [0,%d]", channel, scpi.MaxChannel)
	}
	return nil
}
