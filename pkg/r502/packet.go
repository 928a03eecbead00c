// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package r502

import "time"

// Packet represents a decoded or outgoing R502 protocol packet
type Packet struct {
	address   uint32
	pid       PackageID
	payload   []byte
	checksum  uint16
	timestamp time.Time
}

// NewPacket creates a packet ready for encoding. The checksum is computed
// when the packet is encoded.
func NewPacket(address uint32, pid PackageID, payload []byte) *Packet {
	return &Packet{
		address:   address,
		pid:       pid,
		payload:   payload,
		timestamp: time.Now(),
	}
}

// NewCommandPacket wraps an encoded command payload in a command packet.
func NewCommandPacket(address uint32, cmd Command) *Packet {
	return NewPacket(address, PIDCommand, cmd.Encode())
}

// Address returns the packet's module address
func (p *Packet) Address() uint32 {
	return p.address
}

// PID returns the packet's package identifier
func (p *Packet) PID() PackageID {
	return p.pid
}

// Payload returns the payload bytes (between the length and checksum fields)
func (p *Packet) Payload() []byte {
	return p.payload
}

// Length returns the value of the wire length field (payload + checksum)
func (p *Packet) Length() uint16 {
	return uint16(len(p.payload) + ChecksumSize)
}

// Checksum returns the checksum carried by a decoded packet, or the computed
// checksum for a packet built locally.
func (p *Packet) Checksum() uint16 {
	if p.checksum == 0 {
		return Checksum(p.pid, p.Length(), p.payload)
	}
	return p.checksum
}

// Timestamp returns the packet's creation or decode time
func (p *Packet) Timestamp() time.Time {
	return p.timestamp
}

// IsFinal reports whether p ends a logical reply: an acknowledgement or an
// end-of-data packet.
func (p *Packet) IsFinal() bool {
	return p.pid == PIDAck || p.pid == PIDEndOfData
}

// ConfirmationCode returns the first payload byte of an acknowledgement.
// ok is false for other packet kinds or an empty payload.
func (p *Packet) ConfirmationCode() (code ConfirmationCode, ok bool) {
	if p.pid != PIDAck || len(p.payload) == 0 {
		return 0, false
	}
	return ConfirmationCode(p.payload[0]), true
}
