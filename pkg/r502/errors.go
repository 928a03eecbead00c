// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package r502

import (
	"errors"
	"fmt"
)

// Frame and exchange errors
var (
	// ErrBadMagic means the window does not start with 0xEF01.
	ErrBadMagic = errors.New("bad magic: packet does not start with 0xEF01")

	// ErrIncomplete means more bytes are needed before a packet can be decoded.
	// It never escapes a Session call.
	ErrIncomplete = errors.New("incomplete packet")

	// ErrBadLength means the length field is too small to hold the checksum.
	ErrBadLength = errors.New("invalid length field")

	// ErrChecksum is matched by every *ChecksumError.
	ErrChecksum = errors.New("checksum mismatch")

	// ErrPayloadTooLarge means the payload cannot be described by the length field.
	ErrPayloadTooLarge = fmt.Errorf("payload too large (max %d bytes)", MaxPayloadSize)

	// ErrTimeout is matched by every *TimeoutError.
	ErrTimeout = errors.New("timed out waiting for reply")

	// ErrShortResponse means a reply carried fewer data bytes than its layout needs.
	ErrShortResponse = errors.New("response payload too short")

	// ErrUnexpectedPacket is matched by every *UnexpectedPacketError.
	ErrUnexpectedPacket = errors.New("unexpected packet")
)

// ChecksumError reports a checksum mismatch on a received packet.
type ChecksumError struct {
	Expected uint16 // computed over the received bytes
	Actual   uint16 // carried in the packet trailer
}

func (e *ChecksumError) Error() string {
	return fmt.Sprintf("checksum mismatch: expected 0x%04X, got 0x%04X", e.Expected, e.Actual)
}

// Is reports whether target is ErrChecksum.
func (e *ChecksumError) Is(target error) bool {
	return target == ErrChecksum
}

// TransportError wraps an I/O failure of the underlying byte stream.
type TransportError struct {
	Op  string // "read", "write" or "configure"
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// TimeoutError reports that no complete reply arrived within the read bound.
type TimeoutError struct {
	State    State // state the exchange was in when the bound expired
	Buffered int   // bytes discarded with the reassembly buffer
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("timed out in state %s (%d bytes discarded)", e.State, e.Buffered)
}

// Is reports whether target is ErrTimeout.
func (e *TimeoutError) Is(target error) bool {
	return target == ErrTimeout
}

// UnexpectedPacketError reports a packet whose identifier does not fit the
// current exchange state.
type UnexpectedPacketError struct {
	PID   PackageID
	State State
}

func (e *UnexpectedPacketError) Error() string {
	return fmt.Sprintf("unexpected %s packet in state %s", FormatPackageID(e.PID), e.State)
}

// Is reports whether target is ErrUnexpectedPacket.
func (e *UnexpectedPacketError) Is(target error) bool {
	return target == ErrUnexpectedPacket
}

// ParamError reports a command parameter outside the range the module accepts.
type ParamError struct {
	Instruction Instruction
	Param       string
	Value       int
	Reason      string
}

func (e *ParamError) Error() string {
	return fmt.Sprintf("%s: invalid %s=%d: %s", FormatInstruction(e.Instruction), e.Param, e.Value, e.Reason)
}

// ExchangeError is returned by Session when a command fails to complete.
// It records the command and the state the exchange failed in.
type ExchangeError struct {
	Instruction Instruction
	State       State
	Err         error
}

func (e *ExchangeError) Error() string {
	return fmt.Sprintf("%s failed in state %s: %v", FormatInstruction(e.Instruction), e.State, e.Err)
}

func (e *ExchangeError) Unwrap() error {
	return e.Err
}
