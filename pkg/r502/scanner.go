// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package r502

import (
	"bytes"
	"errors"
)

var magic = []byte{MagicHigh, MagicLow}

// Scanner extracts packets from a passively captured byte stream, such as a
// tap on the line between a host and a module. Unlike Session it resyncs
// after corruption by skipping to the next magic.
type Scanner struct {
	buf     []byte
	skipped uint64
}

// NewScanner creates an empty scanner.
func NewScanner() *Scanner {
	return &Scanner{}
}

// Feed appends captured bytes.
func (s *Scanner) Feed(data []byte) {
	s.buf = append(s.buf, data...)
}

// Next returns the next packet in the stream.
//
// ErrIncomplete means Feed more bytes. ErrBadMagic or a *ChecksumError is
// returned once for each corrupt region, after which the scanner has already
// moved past it; calling Next again continues with the following packet.
func (s *Scanner) Next() (*Packet, error) {
	p, n, err := DecodePacket(s.buf)
	switch {
	case err == nil:
		s.consume(n)
		return p, nil

	case errors.Is(err, ErrIncomplete):
		return nil, err

	case errors.Is(err, ErrBadMagic):
		s.resync(0)
		return nil, err

	default:
		// Checksum or length failure: the magic at offset 0 was a false start
		s.resync(1)
		return nil, err
	}
}

// Skipped returns the number of bytes discarded while resyncing.
func (s *Scanner) Skipped() uint64 {
	return s.skipped
}

// Buffered returns the number of bytes waiting to be decoded.
func (s *Scanner) Buffered() int {
	return len(s.buf)
}

// resync drops bytes up to the next magic at or after from. A trailing
// 0xEF is kept since it may be the first half of a magic.
func (s *Scanner) resync(from int) {
	if from > len(s.buf) {
		from = len(s.buf)
	}
	idx := bytes.Index(s.buf[from:], magic)
	if idx >= 0 {
		s.skip(from + idx)
		return
	}
	drop := len(s.buf)
	if drop > 0 && s.buf[drop-1] == MagicHigh {
		drop--
	}
	s.skip(drop)
}

func (s *Scanner) skip(n int) {
	s.skipped += uint64(n)
	s.consume(n)
}

func (s *Scanner) consume(n int) {
	s.buf = append(s.buf[:0], s.buf[n:]...)
}
