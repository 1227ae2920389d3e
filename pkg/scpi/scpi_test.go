// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package scpi

import (
	"errors"
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ============================================================
// Encoder Tests
// ============================================================

func TestEncodeFixedQueries(t *testing.T) {
	tests := []struct {
		cmd  Command
		line string
		op   Op
	}{
		{EncodeGetDeviceInfo(), "*IDN?", OpGetDeviceInfo},
		{EncodeGetDeviceID(), "SYST:DEV:ID?", OpGetDeviceID},
		{EncodeGetIPAddress(), "SYST:COMM:LAN:ADDR?", OpGetIPAddress},
		{EncodeGetCalibrationDate(), "CAL:DATE?", OpGetCalibrationDate},
		{EncodeGetErrorCount(), "SYST:ERR:COUN?", OpGetErrorCount},
		{EncodeGetNextError(), "SYST:ERR:NEXT?", OpGetNextError},
		{EncodeClearErrors(), "*CLS", OpClearErrors},
		{EncodeGetAllCellVoltageTargets(), "SOUR:VOLT:ALL?", OpGetAllCellVoltageTargets},
		{EncodeDiscoveryProbe(), "DISC?", OpDiscovery},
	}

	for _, tt := range tests {
		t.Run(tt.op.String(), func(t *testing.T) {
			assert.Equal(t, tt.line, tt.cmd.Line)
			assert.Equal(t, tt.op, tt.cmd.Op)
			assert.Equal(t, tt.line+"\n", string(tt.cmd.Frame()))
		})
	}
}

func TestEncodeSetCellVoltage(t *testing.T) {
	cmd, err := EncodeSetCellVoltage(3, 4.2)
	require.NoError(t, err)
	assert.Equal(t, "SOUR3:VOLT 4.2", cmd.Line)
	assert.False(t, cmd.Op.Query())
}

func TestEncodeSetCellVoltage_ChannelOutOfRange(t *testing.T) {
	for _, ch := range []uint{8, 9, 100, math.MaxUint32} {
		_, err := EncodeSetCellVoltage(ch, 1.0)
		if !errors.Is(err, ErrValidation) {
			t.Errorf("channel %d: expected validation error, got %v", ch, err)
		}
	}
}

func TestEncodeSetCellVoltage_NotFinite(t *testing.T) {
	for _, v := range []float32{float32(math.NaN()), float32(math.Inf(1)), float32(math.Inf(-1))} {
		_, err := EncodeSetCellVoltage(0, v)
		assert.ErrorIs(t, err, ErrValidation)
	}
}

func TestEncodeSetAllCellVoltages(t *testing.T) {
	cmd, err := EncodeSetAllCellVoltages([]float32{1, 1.5, 2, 2.5, 3, 3.5, 4, 4.25})
	require.NoError(t, err)
	assert.Equal(t, "SOUR:VOLT:ALL 1,1.5,2,2.5,3,3.5,4,4.25", cmd.Line)
}

func TestEncodeSetAllCellVoltages_WrongLength(t *testing.T) {
	for _, n := range []int{0, 1, 7, 9, 16} {
		_, err := EncodeSetAllCellVoltages(make([]float32, n))
		assert.ErrorIs(t, err, ErrValidation, "length %d", n)
	}
}

func TestEncodeSetIPAddress(t *testing.T) {
	cmd, err := EncodeSetIPAddress(EthernetConfig{IP: "10.0.0.5", Netmask: "255.255.255.0"})
	require.NoError(t, err)
	assert.Equal(t, `SYST:COMM:LAN:ADDR "10.0.0.5","255.255.255.0"`, cmd.Line)
}

func TestEncodeSetIPAddress_Rejects(t *testing.T) {
	tests := []struct {
		name string
		conf EthernetConfig
	}{
		{"IPTooLong", EthernetConfig{IP: strings.Repeat("1", IPWidth+1), Netmask: "255.0.0.0"}},
		{"NetmaskTooLong", EthernetConfig{IP: "10.0.0.1", Netmask: strings.Repeat("2", NetmaskWidth+1)}},
		{"Newline", EthernetConfig{IP: "10.0.0.1\n", Netmask: "255.0.0.0"}},
		{"CarriageReturn", EthernetConfig{IP: "10.0.0.1", Netmask: "255.0.0.0\r"}},
		{"NUL", EthernetConfig{IP: "10.0\x00.0.1", Netmask: "255.0.0.0"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := EncodeSetIPAddress(tt.conf)
			assert.ErrorIs(t, err, ErrValidation)
			assert.Equal(t, CodeInvalidArgument, CodeOf(err))
		})
	}
}

func TestEncodeSetIPAddress_MaxWidthAccepted(t *testing.T) {
	_, err := EncodeSetIPAddress(EthernetConfig{
		IP:      strings.Repeat("1", IPWidth),
		Netmask: strings.Repeat("2", NetmaskWidth),
	})
	assert.NoError(t, err)
}

func TestEncodeGetCellVoltageTarget(t *testing.T) {
	cmd, err := EncodeGetCellVoltageTarget(7)
	require.NoError(t, err)
	assert.Equal(t, "SOUR7:VOLT?", cmd.Line)

	_, err = EncodeGetCellVoltageTarget(8)
	assert.ErrorIs(t, err, ErrValidation)
}

// ============================================================
// Decoder Tests
// ============================================================

func TestDeviceInfoRoundTrip(t *testing.T) {
	want := DeviceInfo{PartNumber: "PN-100", Serial: "SN-42", Version: "1.2.3"}
	got, err := DecodeDeviceInfo(EncodeDeviceInfoReply(want))
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestDecodeDeviceInfo_QuotedComma(t *testing.T) {
	frame := []byte(`0,"PN ""A"", rev 2","SN,42","1.0"` + "\r\n")
	got, err := DecodeDeviceInfo(frame)
	require.NoError(t, err)
	assert.Equal(t, `PN "A", rev 2`, got.PartNumber)
	assert.Equal(t, "SN,42", got.Serial)
	assert.Equal(t, "1.0", got.Version)
}

func TestDecodeDeviceInfo_TooFewFields(t *testing.T) {
	_, err := DecodeDeviceInfo([]byte(`0,"PN-100","SN-42"` + "\n"))
	assert.ErrorIs(t, err, ErrProtocol)
	assert.Equal(t, CodeInvalidResponse, CodeOf(err))
}

func TestDecodeText_StopsAtNUL(t *testing.T) {
	got, err := DecodeCalibrationDate([]byte("0,\"2024-03-01\x00garbage\"\n"))
	require.NoError(t, err)
	assert.Equal(t, "2024-03-01", got)
}

func TestDecodeText_BoundedToWidth(t *testing.T) {
	long := strings.Repeat("x", IPWidth+10)
	got, err := DecodeIPAddress(EncodeIPAddressReply(EthernetConfig{IP: long, Netmask: "255.0.0.0"}))
	require.NoError(t, err)
	assert.Len(t, got.IP, IPWidth)
	assert.Equal(t, "255.0.0.0", got.Netmask)
}

func TestDecodeStatus(t *testing.T) {
	assert.NoError(t, DecodeStatus(OpClearErrors, []byte("0\n")))

	err := DecodeStatus(OpSetCellVoltage, []byte("-12\n"))
	require.ErrorIs(t, err, ErrDevice)
	var e *Error
	require.True(t, errors.As(err, &e))
	assert.Equal(t, CodeOutOfRange, e.Code)
	assert.Equal(t, "parameter out of range", e.Message())
	assert.Equal(t, "set_cell_voltage: parameter out of range (-12)", e.Error())
}

func TestDecodeStatus_Malformed(t *testing.T) {
	tests := []struct {
		name  string
		frame string
	}{
		{"Empty", ""},
		{"OnlyTerminator", "\n"},
		{"NotANumber", "OK\n"},
		{"UnterminatedString", "0,\"abc\n"},
		{"JunkAfterString", "0,\"abc\"x\n"},
		{"EmbeddedTerminator", "0\n0\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := DecodeStatus(OpClearErrors, []byte(tt.frame))
			assert.ErrorIs(t, err, ErrProtocol)
		})
	}
}

func TestDecodeStatus_TooLong(t *testing.T) {
	frame := "0," + strings.Repeat("1", MaxFrameSize) + "\n"
	err := DecodeStatus(OpClearErrors, []byte(frame))
	assert.ErrorIs(t, err, ErrProtocol)
	assert.Equal(t, CodeResponseTooLong, CodeOf(err))
}

func TestDecodeNumbers(t *testing.T) {
	id, err := DecodeDeviceID([]byte("0,5\n"))
	require.NoError(t, err)
	assert.Equal(t, uint8(5), id)

	_, err = DecodeDeviceID([]byte("0,300\n"))
	assert.ErrorIs(t, err, ErrProtocol)

	n, err := DecodeErrorCount([]byte("0, 3\n"))
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	_, err = DecodeErrorCount([]byte("0,-1\n"))
	assert.ErrorIs(t, err, ErrProtocol)

	v, err := DecodeCellVoltageTarget([]byte("0,4.2\n"))
	require.NoError(t, err)
	assert.Equal(t, float32(4.2), v)

	_, err = DecodeCellVoltageTarget([]byte("0,volts\n"))
	assert.ErrorIs(t, err, ErrProtocol)
}

func TestDecodeNextError(t *testing.T) {
	rec, err := DecodeNextError(EncodeNextErrorReply(ErrorRecord{Code: -222, Message: "Data out of range"}))
	require.NoError(t, err)
	assert.Equal(t, int16(-222), rec.Code)
	assert.Equal(t, "Data out of range", rec.Message)

	_, err = DecodeNextError([]byte("0,40000,\"overflow\"\n"))
	assert.ErrorIs(t, err, ErrProtocol)
}

func TestDecodeAllCellVoltageTargets(t *testing.T) {
	want := []float32{0, 0.5, 1, 1.5, 2, 2.5, 3, 3.3}
	got, err := DecodeAllCellVoltageTargets(EncodeVoltagesReply(want...))
	require.NoError(t, err)
	assert.Equal(t, want, got)

	_, err = DecodeAllCellVoltageTargets(EncodeVoltagesReply(want[:7]...))
	assert.ErrorIs(t, err, ErrProtocol)
}

func TestDecodeDiscoveryReply(t *testing.T) {
	want := DiscoveryResult{IP: "192.168.1.70", Serial: "ABS-0042"}
	got, err := DecodeDiscoveryReply(EncodeDiscoveryReply(want))
	require.NoError(t, err)
	assert.Equal(t, want, got)

	_, err = DecodeDiscoveryReply([]byte("0,\"\",\"SN\"\n"))
	assert.ErrorIs(t, err, ErrProtocol)
}

func TestDecode_RejectsExtraFields(t *testing.T) {
	bulk := []byte("0,1,1,1,1,1,1,1,1\n")

	_, err := DecodeErrorCount(bulk)
	assert.ErrorIs(t, err, ErrProtocol)
	_, err = DecodeCellVoltageTarget(bulk)
	assert.ErrorIs(t, err, ErrProtocol)
	_, err = DecodeDeviceID([]byte("0,5,6\n"))
	assert.ErrorIs(t, err, ErrProtocol)
	_, err = DecodeNextError([]byte("0,0,\"No error\",1\n"))
	assert.ErrorIs(t, err, ErrProtocol)
	_, err = DecodeAllCellVoltageTargets([]byte("0,1,1,1,1,1,1,1,1,1\n"))
	assert.ErrorIs(t, err, ErrProtocol)
	assert.ErrorIs(t, DecodeStatus(OpClearErrors, []byte("0,2\n")), ErrProtocol)
}

// ============================================================
// Sequence Tag Tests
// ============================================================

func TestFrameSeq(t *testing.T) {
	cmd, err := EncodeSetCellVoltage(3, 4.2)
	require.NoError(t, err)
	assert.Equal(t, "17;SOUR3:VOLT 4.2\n", string(cmd.FrameSeq(17)))
	assert.Equal(t, "65535;*CLS\n", string(EncodeClearErrors().FrameSeq(65535)))
}

func TestSplitSeq(t *testing.T) {
	seq, body, err := SplitSeq(WithSeq(42, EncodeReply(CodeSuccess, "5")))
	require.NoError(t, err)
	assert.Equal(t, uint16(42), seq)
	assert.Equal(t, "0,5\n", string(body))

	// A quoted field may contain the separator; only the prefix counts.
	seq, body, err = SplitSeq([]byte("0;0,\"a;b\"\n"))
	require.NoError(t, err)
	assert.Equal(t, uint16(0), seq)
	assert.Equal(t, "0,\"a;b\"\n", string(body))
}

func TestSplitSeq_Malformed(t *testing.T) {
	tests := []struct {
		name  string
		frame string
	}{
		{"Untagged", "0,5\n"},
		{"Empty", ";0\n"},
		{"NotANumber", "ab;0\n"},
		{"Signed", "-1;0\n"},
		{"Overflow", "70000;0\n"},
		{"TooLong", "000001;0\n"},
		{"SeparatorInField", "0,\"a;b\"\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := SplitSeq([]byte(tt.frame))
			assert.ErrorIs(t, err, ErrProtocol)
		})
	}
}

// ============================================================
// Error Table Tests
// ============================================================

func TestErrorMessage_AllCodesMapped(t *testing.T) {
	for code := CodeHardwareFault; code <= CodeSuccess; code++ {
		if msg := ErrorMessage(code); msg == "unknown error" {
			t.Errorf("code %d has no message", code)
		}
	}
}

func TestErrorMessage_UnknownCodes(t *testing.T) {
	for _, code := range []int{1, 42, -17, -1000, math.MinInt32} {
		assert.Equal(t, "unknown error", ErrorMessage(code))
	}
}

func TestErrorIs_KindSentinels(t *testing.T) {
	err := TimeoutError("get_device_info", errors.New("i/o timeout"))
	assert.ErrorIs(t, err, ErrTimeout)
	assert.NotErrorIs(t, err, ErrTransport)
	assert.Equal(t, KindTimeout, KindOf(err))
	assert.Equal(t, CodeTimeout, CodeOf(err))
	assert.Equal(t, Kind(0), KindOf(errors.New("plain")))
	assert.Equal(t, CodeSuccess, CodeOf(nil))
}

func TestErrorWithOp(t *testing.T) {
	base := TransportError(CodeSendFailed, "", errors.New("broken pipe"))
	tagged := base.WithOp("clear_errors")
	assert.Equal(t, "clear_errors: failed to send command: broken pipe", tagged.Error())
	assert.Equal(t, "", base.Op)
	assert.Same(t, tagged, tagged.WithOp("other"))
}

func TestOpQuery(t *testing.T) {
	assert.True(t, OpGetDeviceInfo.Query())
	assert.True(t, OpGetAllCellVoltageTargets.Query())
	assert.False(t, OpSetCellVoltage.Query())
	assert.False(t, OpSetAllCellVoltages.Query())
	assert.False(t, OpSetIPAddress.Query())
	assert.False(t, OpClearErrors.Query())
}
