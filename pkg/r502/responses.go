// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package r502

import (
	"encoding/binary"
	"fmt"
	"math/bits"
)

// Reply is the outcome of one successful exchange.
type Reply struct {
	Instruction Instruction
	Code        ConfirmationCode
	Data        []byte // acknowledgement payload after the confirmation code
	Bulk        []byte // reassembled data packets, nil when none were sent
}

// DecodeReply interprets an acknowledgement packet for the command that is
// waiting on it. A non-zero confirmation code yields a *DeviceError, never a
// decode failure, so undocumented codes still reach the caller. Data is
// exposed as received; field widths are checked by the typed parsers.
func DecodeReply(ins Instruction, p *Packet) (*Reply, error) {
	if p.PID() != PIDAck {
		return nil, &UnexpectedPacketError{PID: p.PID(), State: StateComplete}
	}

	payload := p.Payload()
	if len(payload) == 0 {
		return nil, fmt.Errorf("%s: %w: missing confirmation code", FormatInstruction(ins), ErrShortResponse)
	}

	code := ConfirmationCode(payload[0])
	if code != CodeOK {
		return nil, NewDeviceError(code)
	}

	return &Reply{
		Instruction: ins,
		Code:        code,
		Data:        payload[1:],
	}, nil
}

// Short reports whether Data holds fewer bytes than the command's reply
// layout. The typed parsers reject short data with ErrShortResponse.
func (r *Reply) Short() bool {
	spec, ok := LookupCommand(r.Instruction)
	return ok && len(r.Data) < spec.Reply
}

// SystemParameters holds the module status and configuration returned by
// ReadSysPara.
type SystemParameters struct {
	StatusRegister  uint16 `json:"status_register" yaml:"status_register"`
	SystemID        uint16 `json:"system_id" yaml:"system_id"`
	LibraryCapacity uint16 `json:"library_capacity" yaml:"library_capacity"`
	SecurityLevel   uint16 `json:"security_level" yaml:"security_level"`
	DeviceAddress   uint32 `json:"device_address" yaml:"device_address"`
	PacketSizeCode  uint16 `json:"packet_size_code" yaml:"packet_size_code"`
	BaudRateCode    uint16 `json:"baud_rate_code" yaml:"baud_rate_code"`
}

// ParseSystemParameters decodes the 16 data bytes of a ReadSysPara reply.
func ParseSystemParameters(data []byte) (SystemParameters, error) {
	if len(data) < 16 {
		return SystemParameters{}, fmt.Errorf("system parameters: %w: got %d bytes, want 16", ErrShortResponse, len(data))
	}
	return SystemParameters{
		StatusRegister:  binary.BigEndian.Uint16(data[0:2]),
		SystemID:        binary.BigEndian.Uint16(data[2:4]),
		LibraryCapacity: binary.BigEndian.Uint16(data[4:6]),
		SecurityLevel:   binary.BigEndian.Uint16(data[6:8]),
		DeviceAddress:   binary.BigEndian.Uint32(data[8:12]),
		PacketSizeCode:  binary.BigEndian.Uint16(data[12:14]),
		BaudRateCode:    binary.BigEndian.Uint16(data[14:16]),
	}, nil
}

// Busy reports whether the module is executing a command.
func (sp SystemParameters) Busy() bool {
	return sp.StatusRegister&StatusBusy != 0
}

// HasFingerMatch reports whether the last match succeeded. Always check the
// reply of the matching command itself.
func (sp SystemParameters) HasFingerMatch() bool {
	return sp.StatusRegister&StatusPass != 0
}

// PasswordOK reports whether the handshake password has been verified.
func (sp SystemParameters) PasswordOK() bool {
	return sp.StatusRegister&StatusPassword != 0
}

// HasValidImage reports whether the image buffer holds a valid image.
func (sp SystemParameters) HasValidImage() bool {
	return sp.StatusRegister&StatusImageBuffer != 0
}

// PacketSizeBytes returns the data packet payload size in bytes, or 0 for an
// unknown size code.
func (sp SystemParameters) PacketSizeBytes() int {
	if int(sp.PacketSizeCode) >= len(packetSizes) {
		return 0
	}
	return packetSizes[sp.PacketSizeCode]
}

// BaudRate returns the configured serial speed in baud.
func (sp SystemParameters) BaudRate() int {
	return int(sp.BaudRateCode) * BaudUnit
}

// SearchResult is the outcome of a library search.
type SearchResult struct {
	PageID uint16
	Score  uint16
}

// ParseSearchResult decodes the page id and match score of a Search reply.
func ParseSearchResult(data []byte) (SearchResult, error) {
	if len(data) < 4 {
		return SearchResult{}, fmt.Errorf("search result: %w: got %d bytes, want 4", ErrShortResponse, len(data))
	}
	return SearchResult{
		PageID: binary.BigEndian.Uint16(data[0:2]),
		Score:  binary.BigEndian.Uint16(data[2:4]),
	}, nil
}

// ParseMatchScore decodes the score of a Match reply.
func ParseMatchScore(data []byte) (uint16, error) {
	return parseWord("match score", data)
}

// ParseTemplateCount decodes the number of stored templates in a TemplateNum
// reply.
func ParseTemplateCount(data []byte) (uint16, error) {
	return parseWord("template count", data)
}

// ParseRandomCode decodes a GetRandomCode reply.
func ParseRandomCode(data []byte) (uint32, error) {
	if len(data) < 4 {
		return 0, fmt.Errorf("random code: %w: got %d bytes, want 4", ErrShortResponse, len(data))
	}
	return binary.BigEndian.Uint32(data[0:4]), nil
}

// ParseNotepad returns a copy of the 32-byte page of a ReadNotepad reply.
func ParseNotepad(data []byte) ([]byte, error) {
	if len(data) < NotepadPageSize {
		return nil, fmt.Errorf("notepad: %w: got %d bytes, want %d", ErrShortResponse, len(data), NotepadPageSize)
	}
	page := make([]byte, NotepadPageSize)
	copy(page, data)
	return page, nil
}

func parseWord(field string, data []byte) (uint16, error) {
	if len(data) < 2 {
		return 0, fmt.Errorf("%s: %w: got %d bytes, want 2", field, ErrShortResponse, len(data))
	}
	return binary.BigEndian.Uint16(data[0:2]), nil
}

// IndexTable is one page of the template occupancy bitmap.
type IndexTable struct {
	Page   uint8
	Bitmap [IndexTableSize]byte
}

// ParseIndexTable decodes a ReadIndexTable reply for page.
// Bit n of byte k marks slot page*256 + k*8 + n as occupied.
func ParseIndexTable(page uint8, data []byte) (IndexTable, error) {
	if len(data) < IndexTableSize {
		return IndexTable{}, fmt.Errorf("index table: %w: got %d bytes, want %d", ErrShortResponse, len(data), IndexTableSize)
	}
	t := IndexTable{Page: page}
	copy(t.Bitmap[:], data)
	return t, nil
}

// Occupied returns the library slots marked as used, in ascending order.
func (t IndexTable) Occupied() []uint16 {
	base := uint16(t.Page) * SlotsPerIndexPage
	var slots []uint16
	for k, b := range t.Bitmap {
		for n := 0; n < 8; n++ {
			if b&(1<<n) != 0 {
				slots = append(slots, base+uint16(k*8+n))
			}
		}
	}
	return slots
}

// Count returns the number of occupied slots on the page.
func (t IndexTable) Count() int {
	count := 0
	for _, b := range t.Bitmap {
		count += bits.OnesCount8(b)
	}
	return count
}
