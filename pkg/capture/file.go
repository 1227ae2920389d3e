// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package capture

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/fxamacker/cbor/v2"
)

// FileRecorder appends events to a capture file.
type FileRecorder struct {
	mu      sync.Mutex
	file    *os.File
	encoder *cbor.Encoder
	closed  bool
	failed  error
}

// NewFileRecorder opens path for appending, creating it with mode 0644 when
// missing.
func NewFileRecorder(path string) (*FileRecorder, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open capture file: %w", err)
	}
	return &FileRecorder{
		file:    f,
		encoder: newEncoder(f),
	}, nil
}

// Record writes one event. Write failures never reach the session; the
// first one is kept and reported by Err and Close.
func (r *FileRecorder) Record(event Event) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed || r.failed != nil {
		return
	}
	if err := r.encoder.Encode(event); err != nil {
		r.failed = err
	}
}

// Err returns the first write failure, if any.
func (r *FileRecorder) Err() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.failed
}

// Close closes the file. Further events are dropped. Calling Close twice is
// harmless.
func (r *FileRecorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil
	}
	r.closed = true
	return errors.Join(r.failed, r.file.Close())
}

// Reader streams events back out of a capture.
type Reader struct {
	closer  io.Closer
	decoder *cbor.Decoder
	op      string
}

// Open opens a capture file for reading.
func Open(path string) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open capture file: %w", err)
	}
	return &Reader{closer: f, decoder: newDecoder(f)}, nil
}

// NewReader reads events from r.
func NewReader(r io.Reader) *Reader {
	return &Reader{decoder: newDecoder(r)}
}

// FilterOp restricts Next to events for one operation name.
func (r *Reader) FilterOp(op string) {
	r.op = op
}

// Next returns the next matching event, or io.EOF at the end of the capture.
func (r *Reader) Next() (Event, error) {
	for {
		var event Event
		if err := r.decoder.Decode(&event); err != nil {
			if errors.Is(err, io.EOF) {
				return Event{}, io.EOF
			}
			return Event{}, fmt.Errorf("corrupt capture: %w", err)
		}
		if r.op == "" || event.Op == r.op {
			return event, nil
		}
	}
}

// Close closes the underlying file when the reader owns one.
func (r *Reader) Close() error {
	if r.closer == nil {
		return nil
	}
	return r.closer.Close()
}
