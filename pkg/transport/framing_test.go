// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package transport

import (
	"strings"
	"testing"

	"github.com/Thermoquad/absctl/pkg/scpi"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// decodeAll feeds data through d and collects frames and errors.
func decodeAll(d *Decoder, data string) ([]*Frame, []error) {
	var frames []*Frame
	var errs []error
	for i := 0; i < len(data); i++ {
		f, err := d.DecodeByte(data[i])
		if err != nil {
			errs = append(errs, err)
		}
		if f != nil {
			frames = append(frames, f)
		}
	}
	return frames, errs
}

func TestDecoder_AddressedFrame(t *testing.T) {
	frames, errs := decodeAll(NewDecoder(true), "@5 0,4.2\r\n")
	require.Empty(t, errs)
	require.Len(t, frames, 1)
	assert.Equal(t, DeviceID(5), frames[0].Address)
	assert.Equal(t, "0,4.2\r\n", string(frames[0].Payload))
}

func TestDecoder_FragmentedAcrossCalls(t *testing.T) {
	d := NewDecoder(true)
	var got []*Frame
	for _, chunk := range []string{"@1", "2", "7 0,", "\"SN-", "42\"", "\n"} {
		frames, errs := decodeAll(d, chunk)
		require.Empty(t, errs)
		got = append(got, frames...)
	}
	require.Len(t, got, 1)
	assert.Equal(t, DeviceID(127), got[0].Address)
	assert.Equal(t, "0,\"SN-42\"\n", string(got[0].Payload))
}

func TestDecoder_SkipsNoiseBeforeMarker(t *testing.T) {
	d := NewDecoder(true)
	frames, errs := decodeAll(d, "\x00\xff junk@3 0\n")
	require.Empty(t, errs)
	require.Len(t, frames, 1)
	assert.Equal(t, DeviceID(3), frames[0].Address)
	assert.Equal(t, 7, d.Dropped())
}

func TestDecoder_BroadcastAddress(t *testing.T) {
	frames, errs := decodeAll(NewDecoder(true), "@* 0\n")
	require.Empty(t, errs)
	require.Len(t, frames, 1)
	assert.True(t, frames[0].Address.IsBroadcast())
}

func TestDecoder_InvalidAddress(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"Letter", "@x 0\n"},
		{"TooManyDigits", "@1234 0\n"},
		{"Empty", "@ 0\n"},
		{"OutOfRange", "@300 0\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			frames, errs := decodeAll(NewDecoder(true), tt.data)
			assert.Empty(t, frames)
			assert.NotEmpty(t, errs)
		})
	}
}

func TestDecoder_RecoversAfterError(t *testing.T) {
	frames, errs := decodeAll(NewDecoder(true), "@x@2 0\n")
	assert.Len(t, errs, 1)
	require.Len(t, frames, 1)
	assert.Equal(t, DeviceID(2), frames[0].Address)
}

func TestDecoder_Overflow(t *testing.T) {
	d := NewDecoder(false)
	// The byte past the limit is rejected and resets the decoder.
	_, errs := decodeAll(d, strings.Repeat("9", scpi.MaxFrameSize+2))
	assert.Len(t, errs, 1)

	frames, errs := decodeAll(d, "0\n")
	assert.Empty(t, errs)
	require.Len(t, frames, 1)
	assert.Equal(t, "0\n", string(frames[0].Payload))
}

func TestDecoder_Unaddressed(t *testing.T) {
	frames, errs := decodeAll(NewDecoder(false), "0,1\n0,2\n")
	require.Empty(t, errs)
	require.Len(t, frames, 2)
	assert.Equal(t, "0,1\n", string(frames[0].Payload))
	assert.Equal(t, "0,2\n", string(frames[1].Payload))
}

func TestEncodeAddressed(t *testing.T) {
	assert.Equal(t, "@5 *CLS\n", string(EncodeAddressed(5, []byte("*CLS\n"))))
	assert.Equal(t, "@* *CLS\n", string(EncodeAddressed(BroadcastID, []byte("*CLS\n"))))
	assert.Equal(t, "@* *CLS\n", string(EncodeAddressed(1000, []byte("*CLS\n"))))
}

func TestDeviceID(t *testing.T) {
	assert.False(t, DeviceID(0).IsBroadcast())
	assert.False(t, DeviceID(255).IsBroadcast())
	assert.True(t, DeviceID(256).IsBroadcast())
	assert.True(t, DeviceID(4096).IsBroadcast())
	assert.Equal(t, "255", DeviceID(255).String())
}

func TestWithDefaultPort(t *testing.T) {
	assert.Equal(t, "10.0.0.5:5025", withDefaultPort("10.0.0.5"))
	assert.Equal(t, "10.0.0.5:6000", withDefaultPort("10.0.0.5:6000"))
}
