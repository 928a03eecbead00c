// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package r502

import (
	"encoding/binary"
	"fmt"
	"strings"
)

// FormatPacket formats a packet into a human-readable string
func FormatPacket(p *Packet) string {
	timestamp := p.timestamp.Format("15:04:05.000")

	result := fmt.Sprintf("[%s] %s (0x%02X) addr=%08X len=%d\n",
		timestamp, FormatPackageID(p.pid), uint8(p.pid), p.address, p.Length())

	if len(p.payload) > 0 {
		result += FormatPayload(p.pid, p.payload)
	}

	return result
}

// FormatPackageID returns the human-readable name for a package identifier
func FormatPackageID(pid PackageID) string {
	switch pid {
	case PIDCommand:
		return "COMMAND"
	case PIDData:
		return "DATA"
	case PIDAck:
		return "ACK"
	case PIDEndOfData:
		return "END_OF_DATA"
	default:
		return "UNKNOWN"
	}
}

// FormatInstruction returns the command name for an instruction code
func FormatInstruction(ins Instruction) string {
	if spec, ok := commandTable[ins]; ok {
		return spec.Name
	}
	return fmt.Sprintf("UNKNOWN(0x%02X)", uint8(ins))
}

// FormatPayload formats the payload based on package identifier
func FormatPayload(pid PackageID, payload []byte) string {
	if len(payload) == 0 {
		return "  (no payload)\n"
	}

	switch pid {
	case PIDCommand:
		ins := Instruction(payload[0])
		result := fmt.Sprintf("  Instruction: %s (0x%02X)\n", FormatInstruction(ins), payload[0])
		if args := formatArgs(ins, payload[1:]); args != "" {
			result += "  " + args + "\n"
		}
		return result

	case PIDAck:
		code := ConfirmationCode(payload[0])
		result := fmt.Sprintf("  Confirmation: %s\n", code)
		if len(payload) > 1 {
			result += fmt.Sprintf("  Data: %s\n", formatHex(payload[1:]))
		}
		return result

	case PIDData, PIDEndOfData:
		return fmt.Sprintf("  Chunk: %d bytes %s\n", len(payload), formatHex(payload))
	}

	return fmt.Sprintf("  Raw: %s\n", formatHex(payload))
}

// formatArgs renders command parameters using the command table widths.
func formatArgs(ins Instruction, params []byte) string {
	spec, ok := commandTable[ins]
	if !ok {
		if len(params) == 0 {
			return ""
		}
		return "Params: " + formatHex(params)
	}

	var parts []string
	offset := 0
	for _, p := range spec.Params {
		if offset+p.Width > len(params) {
			parts = append(parts, p.Name+"=<missing>")
			break
		}
		field := params[offset : offset+p.Width]
		var v uint32
		switch p.Width {
		case 1:
			v = uint32(field[0])
		case 2:
			v = uint32(binary.BigEndian.Uint16(field))
		case 4:
			v = binary.BigEndian.Uint32(field)
		}
		parts = append(parts, fmt.Sprintf("%s=%d", p.Name, v))
		offset += p.Width
	}
	if spec.Block > 0 && offset < len(params) {
		parts = append(parts, "block="+formatHex(params[offset:]))
	}

	return strings.Join(parts, ", ")
}

// formatHex renders bytes as space-separated hex, truncated for long chunks
func formatHex(data []byte) string {
	const limit = 32
	var sb strings.Builder
	for i, b := range data {
		if i == limit {
			fmt.Fprintf(&sb, " ... (+%d)", len(data)-limit)
			break
		}
		if i > 0 {
			sb.WriteByte(' ')
		}
		fmt.Fprintf(&sb, "%02X", b)
	}
	return sb.String()
}
