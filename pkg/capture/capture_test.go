// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package capture

import (
	"bytes"
	"io"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleEvents() []Event {
	ts := time.Date(2025, 3, 14, 9, 26, 53, 589793000, time.UTC)
	return []Event{
		{Timestamp: ts, SessionID: "s-1", Link: "udp 10.0.0.5:5025", Direction: DirectionOut, Op: "set_cell_voltage", Frame: []byte("SOUR3:VOLT 4.2\n")},
		{Timestamp: ts.Add(time.Millisecond), SessionID: "s-1", Direction: DirectionIn, Op: "set_cell_voltage", Frame: []byte("-12\n")},
		{Timestamp: ts.Add(2 * time.Millisecond), SessionID: "s-1", Direction: DirectionIn, Op: "get_device_info", Code: -6, Error: "timed out"},
	}
}

func TestFileRecorder_WriteRead(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bench.abscap")

	rec, err := NewFileRecorder(path)
	require.NoError(t, err)
	for _, e := range sampleEvents() {
		rec.Record(e)
	}
	require.NoError(t, rec.Close())
	require.NoError(t, rec.Close())

	r, err := Open(path)
	require.NoError(t, err)
	defer r.Close()

	var got []Event
	for {
		e, err := r.Next()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		got = append(got, e)
	}

	want := sampleEvents()
	require.Len(t, got, len(want))
	for i := range want {
		assert.True(t, want[i].Timestamp.Equal(got[i].Timestamp))
		assert.Equal(t, want[i].Op, got[i].Op)
		assert.Equal(t, want[i].Direction, got[i].Direction)
		assert.Equal(t, want[i].Frame, got[i].Frame)
		assert.Equal(t, want[i].Code, got[i].Code)
		assert.Equal(t, want[i].Link, got[i].Link)
	}
}

func TestFileRecorder_Appends(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bench.abscap")
	events := sampleEvents()

	for _, e := range events[:2] {
		rec, err := NewFileRecorder(path)
		require.NoError(t, err)
		rec.Record(e)
		require.NoError(t, rec.Close())
	}

	r, err := Open(path)
	require.NoError(t, err)
	defer r.Close()

	count := 0
	for {
		if _, err := r.Next(); err == io.EOF {
			break
		}
		count++
	}
	assert.Equal(t, 2, count)
}

func TestFileRecorder_DropsAfterClose(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bench.abscap")
	rec, err := NewFileRecorder(path)
	require.NoError(t, err)
	require.NoError(t, rec.Close())

	rec.Record(sampleEvents()[0])
	assert.NoError(t, rec.Err())
}

func TestFileRecorder_Concurrent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bench.abscap")
	rec, err := NewFileRecorder(path)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for _, e := range sampleEvents() {
				rec.Record(e)
			}
		}()
	}
	wg.Wait()
	require.NoError(t, rec.Close())

	r, err := Open(path)
	require.NoError(t, err)
	defer r.Close()
	count := 0
	for {
		_, err := r.Next()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		count++
	}
	assert.Equal(t, 24, count)
}

func TestReader_FilterOp(t *testing.T) {
	var buf bytes.Buffer
	for _, e := range sampleEvents() {
		data, err := EncodeEvent(e)
		require.NoError(t, err)
		buf.Write(data)
	}

	r := NewReader(&buf)
	r.FilterOp("get_device_info")
	e, err := r.Next()
	require.NoError(t, err)
	assert.Equal(t, -6, e.Code)

	_, err = r.Next()
	assert.Equal(t, io.EOF, err)
	assert.NoError(t, r.Close())
}

func TestReader_Corrupt(t *testing.T) {
	r := NewReader(bytes.NewReader([]byte{0xa1, 0x01}))
	_, err := r.Next()
	assert.Error(t, err)
	assert.NotEqual(t, io.EOF, err)
}

func TestDecodeEvent_Invalid(t *testing.T) {
	_, err := DecodeEvent([]byte{0xff})
	assert.Error(t, err)
}

func TestFormat(t *testing.T) {
	events := sampleEvents()
	assert.Equal(t, `09:26:53.589 TX set_cell_voltage [udp 10.0.0.5:5025] "SOUR3:VOLT 4.2\n"`, Format(events[0]))
	assert.Equal(t, `09:26:53.591 RX get_device_info error -6: timed out`, Format(events[2]))
}

func TestDirectionString(t *testing.T) {
	assert.Equal(t, "TX", DirectionOut.String())
	assert.Equal(t, "RX", DirectionIn.String())
	assert.Equal(t, "DIR(9)", Direction(9).String())
}
