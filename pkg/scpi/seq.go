// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package scpi

import (
	"bytes"
	"strconv"
)

// Every request line carries a sequence tag, "<seq>;", in front of the
// mnemonic, and the device echoes the same tag in front of the status of its
// reply. A reply that arrives after its request timed out therefore never
// passes for the answer to a later request.

// SeqSeparator ends the sequence tag.
const SeqSeparator = ';'

// maxSeqDigits is the width of the largest uint16 in decimal.
const maxSeqDigits = 5

// WithSeq prefixes frame with the sequence tag seq.
func WithSeq(seq uint16, frame []byte) []byte {
	b := make([]byte, 0, len(frame)+maxSeqDigits+1)
	b = strconv.AppendUint(b, uint64(seq), 10)
	b = append(b, SeqSeparator)
	return append(b, frame...)
}

// SplitSeq separates the sequence tag from the rest of a request or reply
// frame.
func SplitSeq(frame []byte) (uint16, []byte, error) {
	i := bytes.IndexByte(frame, SeqSeparator)
	if i < 0 || i > maxSeqDigits {
		return 0, nil, Protocolf("", "missing sequence tag")
	}
	seq, err := strconv.ParseUint(string(frame[:i]), 10, 16)
	if err != nil {
		return 0, nil, Protocolf("", "bad sequence tag %q", frame[:i])
	}
	return uint16(seq), frame[i+1:], nil
}
