// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package r502

import (
	"encoding/binary"
	"fmt"
)

// EncodePacket creates a complete wire-formatted packet:
// magic, address, package identifier, length, payload and checksum.
func EncodePacket(p *Packet) ([]byte, error) {
	return EncodePacketFromValues(p.Address(), p.PID(), p.Payload())
}

// EncodePacketFromValues frames payload for transmission.
// Returns ErrPayloadTooLarge when the length field would overflow.
func EncodePacketFromValues(address uint32, pid PackageID, payload []byte) ([]byte, error) {
	if len(payload) > MaxPayloadSize {
		return nil, fmt.Errorf("%w: %d bytes", ErrPayloadTooLarge, len(payload))
	}

	length := uint16(len(payload) + ChecksumSize)
	data := make([]byte, HeaderSize, HeaderSize+len(payload)+ChecksumSize)

	data[0] = MagicHigh
	data[1] = MagicLow
	binary.BigEndian.PutUint32(data[2:6], address)
	data[6] = byte(pid)
	binary.BigEndian.PutUint16(data[7:9], length)
	data = append(data, payload...)

	sum := Checksum(pid, length, payload)
	data = binary.BigEndian.AppendUint16(data, sum)

	return data, nil
}

// MustEncodePacket encodes p and panics on error.
// Only use with payloads known to fit, such as encoded commands.
func MustEncodePacket(p *Packet) []byte {
	data, err := EncodePacket(p)
	if err != nil {
		panic(fmt.Sprintf("r502: encode error: %v", err))
	}
	return data
}

// SplitData frames an outbound bulk payload as a sequence of data packets of
// at most chunkSize payload bytes, the last one tagged end-of-data.
// An empty payload produces a single empty end-of-data packet.
func SplitData(address uint32, payload []byte, chunkSize int) ([][]byte, error) {
	if chunkSize <= 0 {
		return nil, fmt.Errorf("invalid chunk size %d", chunkSize)
	}

	var frames [][]byte
	for offset := 0; ; offset += chunkSize {
		end := offset + chunkSize
		pid := PIDData
		if end >= len(payload) {
			end = len(payload)
			pid = PIDEndOfData
		}

		frame, err := EncodePacketFromValues(address, pid, payload[offset:end])
		if err != nil {
			return nil, err
		}
		frames = append(frames, frame)

		if pid == PIDEndOfData {
			return frames, nil
		}
	}
}
