// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package r502

import (
	"encoding/binary"
	"time"
)

// DecodePacket decodes the packet at the start of window.
//
// It does not consume or modify window. On success it returns the packet and
// the number of bytes it occupied, so trailing bytes can be kept for the next
// call. ErrIncomplete means window holds a valid prefix and more bytes are
// needed; ErrBadMagic and *ChecksumError mean the bytes are corrupt. The
// decoder never scans forward for the next magic; see Scanner for that.
func DecodePacket(window []byte) (*Packet, int, error) {
	// Magic
	if len(window) == 0 {
		return nil, 0, ErrIncomplete
	}
	if window[0] != MagicHigh {
		return nil, 0, ErrBadMagic
	}
	if len(window) < 2 {
		return nil, 0, ErrIncomplete
	}
	if window[1] != MagicLow {
		return nil, 0, ErrBadMagic
	}

	// Header
	if len(window) < HeaderSize {
		return nil, 0, ErrIncomplete
	}
	address := binary.BigEndian.Uint32(window[2:6])
	pid := PackageID(window[6])
	length := binary.BigEndian.Uint16(window[7:9])
	if length < ChecksumSize {
		return nil, 0, ErrBadLength
	}

	// Payload and checksum
	total := HeaderSize + int(length)
	if len(window) < total {
		return nil, 0, ErrIncomplete
	}
	payloadEnd := total - ChecksumSize
	payload := window[HeaderSize:payloadEnd]

	received := binary.BigEndian.Uint16(window[payloadEnd:total])
	computed := Checksum(pid, length, payload)
	if received != computed {
		return nil, 0, &ChecksumError{Expected: computed, Actual: received}
	}

	// Copy so the packet does not alias the caller's read buffer
	owned := make([]byte, len(payload))
	copy(owned, payload)

	return &Packet{
		address:   address,
		pid:       pid,
		payload:   owned,
		checksum:  received,
		timestamp: time.Now(),
	}, total, nil
}
