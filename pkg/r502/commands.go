// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package r502

import (
	"encoding/binary"
	"fmt"
)

// Command builders create Command values ready for encoding. Every command is
// described by a CommandSpec in the command table; the encoder serialises
// parameters from that entry, so adding a command means adding a table entry.

// Transfer describes the bulk data phase that follows a command's
// acknowledgement.
type Transfer int

// Transfer kinds
const (
	TransferNone     Transfer = iota
	TransferUpload            // module sends data packets after a successful ack
	TransferDownload          // host sends data packets after a successful ack
)

// Param describes one fixed-width big-endian command parameter.
type Param struct {
	Name  string
	Width int // 1, 2 or 4 bytes
	Min   int
	Max   int // 0 disables range checking
}

// CommandSpec is the encoding recipe for one instruction.
type CommandSpec struct {
	Name     string
	Params   []Param
	Block    int // size of a trailing raw byte block, 0 if none
	Transfer Transfer
	Reply    int // data bytes expected after the confirmation code
}

var (
	paramBuffer = Param{Name: "buffer", Width: 1, Min: 1, Max: 2}
	paramPage   = Param{Name: "page", Width: 2}
)

var commandTable = map[Instruction]CommandSpec{
	InsGenImg:   {Name: "GenImg"},
	InsImg2Tz:   {Name: "Img2Tz", Params: []Param{paramBuffer}},
	InsMatch:    {Name: "Match", Reply: 2},
	InsSearch:   {Name: "Search", Params: []Param{paramBuffer, {Name: "start", Width: 2}, {Name: "count", Width: 2}}, Reply: 4},
	InsRegModel: {Name: "RegModel"},
	InsStore:    {Name: "Store", Params: []Param{paramBuffer, paramPage}},
	InsLoadChar: {Name: "LoadChar", Params: []Param{paramBuffer, paramPage}},
	InsUpChar:   {Name: "UpChar", Params: []Param{paramBuffer}, Transfer: TransferUpload},
	InsDownChar: {Name: "DownChar", Params: []Param{paramBuffer}, Transfer: TransferDownload},
	InsUpImage:  {Name: "UpImage", Transfer: TransferUpload},

	InsDeletChar:      {Name: "DeletChar", Params: []Param{paramPage, {Name: "count", Width: 2, Min: 1, Max: 0xFFFF}}},
	InsEmpty:          {Name: "Empty"},
	InsTemplateNum:    {Name: "TemplateNum", Reply: 2},
	InsReadIndexTable: {Name: "ReadIndexTable", Params: []Param{{Name: "page", Width: 1, Min: 0, Max: IndexTablePages - 1}}, Reply: IndexTableSize},

	InsSetSysPara:    {Name: "SetSysPara", Params: []Param{{Name: "param", Width: 1, Min: 4, Max: 6}, {Name: "value", Width: 1}}},
	InsReadSysPara:   {Name: "ReadSysPara", Reply: 16},
	InsSetPwd:        {Name: "SetPwd", Params: []Param{{Name: "password", Width: 4}}},
	InsVfyPwd:        {Name: "VfyPwd", Params: []Param{{Name: "password", Width: 4}}},
	InsGetRandomCode: {Name: "GetRandomCode", Reply: 4},
	InsWriteNotepad:  {Name: "WriteNotepad", Params: []Param{{Name: "page", Width: 1, Min: 0, Max: NotepadPages - 1}}, Block: NotepadPageSize},
	InsReadNotepad:   {Name: "ReadNotepad", Params: []Param{{Name: "page", Width: 1, Min: 0, Max: NotepadPages - 1}}, Reply: NotepadPageSize},
	InsCancel:        {Name: "Cancel"},
	InsAuraLedConfig: {Name: "AuraLedConfig", Params: []Param{{Name: "control", Width: 1, Min: 1, Max: 6}, {Name: "speed", Width: 1}, {Name: "color", Width: 1, Min: 1, Max: 7}, {Name: "times", Width: 1}}},
	InsCheckSensor:   {Name: "CheckSensor"},
	InsHandShake:     {Name: "HandShake"},
}

// RegisterCommand adds or replaces a table entry. Call it during program
// initialisation, before any Session is used.
func RegisterCommand(ins Instruction, spec CommandSpec) {
	commandTable[ins] = spec
}

// LookupCommand returns the table entry for ins.
func LookupCommand(ins Instruction) (CommandSpec, bool) {
	spec, ok := commandTable[ins]
	return spec, ok
}

// Command is an instruction with its parameter values, in table order.
type Command struct {
	Instruction Instruction
	Args        []uint32
	Block       []byte
}

// Spec returns the command's table entry. Unregistered instructions get a
// parameterless spec.
func (c Command) Spec() CommandSpec {
	if spec, ok := commandTable[c.Instruction]; ok {
		return spec
	}
	return CommandSpec{Name: fmt.Sprintf("0x%02X", uint8(c.Instruction))}
}

// Encode serialises the command payload: instruction code followed by each
// parameter at its table width, then the trailing block if any. Missing
// arguments encode as zero and the block is zero-padded to its size.
func (c Command) Encode() []byte {
	spec := c.Spec()

	data := make([]byte, 0, 1+4*len(spec.Params)+spec.Block)
	data = append(data, byte(c.Instruction))

	for i, p := range spec.Params {
		var v uint32
		if i < len(c.Args) {
			v = c.Args[i]
		}
		switch p.Width {
		case 1:
			data = append(data, byte(v))
		case 2:
			data = binary.BigEndian.AppendUint16(data, uint16(v))
		case 4:
			data = binary.BigEndian.AppendUint32(data, v)
		}
	}

	if spec.Block > 0 {
		block := make([]byte, spec.Block)
		copy(block, c.Block)
		data = append(data, block...)
	}

	return data
}

// Validate checks parameters against the ranges the module accepts.
func (c Command) Validate() error {
	spec := c.Spec()

	if len(c.Args) != len(spec.Params) {
		return &ParamError{
			Instruction: c.Instruction,
			Param:       "args",
			Value:       len(c.Args),
			Reason:      fmt.Sprintf("expected %d parameters", len(spec.Params)),
		}
	}

	for i, p := range spec.Params {
		v := int(c.Args[i])
		limit := 1<<(8*p.Width) - 1
		if p.Width < 4 && v > limit {
			return &ParamError{Instruction: c.Instruction, Param: p.Name, Value: v, Reason: fmt.Sprintf("exceeds %d-byte field", p.Width)}
		}
		if p.Max > 0 && (v < p.Min || v > p.Max) {
			return &ParamError{Instruction: c.Instruction, Param: p.Name, Value: v, Reason: fmt.Sprintf("valid range %d-%d", p.Min, p.Max)}
		}
	}

	if spec.Block > 0 && len(c.Block) != spec.Block {
		return &ParamError{Instruction: c.Instruction, Param: "block", Value: len(c.Block), Reason: fmt.Sprintf("must be %d bytes", spec.Block)}
	}

	return nil
}

func (c Command) String() string {
	return fmt.Sprintf("%s%v", c.Spec().Name, c.Args)
}

// NewVerifyPassword creates a VfyPwd command (0x13).
// The factory password is DefaultPassword.
func NewVerifyPassword(password uint32) Command {
	return Command{Instruction: InsVfyPwd, Args: []uint32{password}}
}

// NewSetPassword creates a SetPwd command (0x12).
func NewSetPassword(password uint32) Command {
	return Command{Instruction: InsSetPwd, Args: []uint32{password}}
}

// NewReadSysPara creates a ReadSysPara command (0x0F).
func NewReadSysPara() Command {
	return Command{Instruction: InsReadSysPara}
}

// NewSetSysPara creates a SetSysPara command (0x0E).
// param is one of SysParamBaudRate, SysParamSecurityLevel, SysParamPacketSize.
func NewSetSysPara(param, value uint8) Command {
	return Command{Instruction: InsSetSysPara, Args: []uint32{uint32(param), uint32(value)}}
}

// NewGenImg creates a GenImg command (0x01).
// Captures a finger image into the image buffer.
func NewGenImg() Command {
	return Command{Instruction: InsGenImg}
}

// NewImg2Tz creates an Img2Tz command (0x02).
// Generates a character file from the image buffer into buffer 1 or 2.
func NewImg2Tz(buffer uint8) Command {
	return Command{Instruction: InsImg2Tz, Args: []uint32{uint32(buffer)}}
}

// NewMatch creates a Match command (0x03) comparing both character buffers.
func NewMatch() Command {
	return Command{Instruction: InsMatch}
}

// NewSearch creates a Search command (0x04) over count pages starting at start.
func NewSearch(buffer uint8, start, count uint16) Command {
	return Command{Instruction: InsSearch, Args: []uint32{uint32(buffer), uint32(start), uint32(count)}}
}

// NewRegModel creates a RegModel command (0x05).
// Merges both character buffers into a template stored in both buffers.
func NewRegModel() Command {
	return Command{Instruction: InsRegModel}
}

// NewStore creates a Store command (0x06) writing buffer to library page.
func NewStore(buffer uint8, page uint16) Command {
	return Command{Instruction: InsStore, Args: []uint32{uint32(buffer), uint32(page)}}
}

// NewLoadChar creates a LoadChar command (0x07) reading library page into buffer.
func NewLoadChar(buffer uint8, page uint16) Command {
	return Command{Instruction: InsLoadChar, Args: []uint32{uint32(buffer), uint32(page)}}
}

// NewUpChar creates an UpChar command (0x08).
// The module answers with an ack followed by the template in data packets.
func NewUpChar(buffer uint8) Command {
	return Command{Instruction: InsUpChar, Args: []uint32{uint32(buffer)}}
}

// NewDownChar creates a DownChar command (0x09).
// After a successful ack the host sends the template in data packets.
func NewDownChar(buffer uint8) Command {
	return Command{Instruction: InsDownChar, Args: []uint32{uint32(buffer)}}
}

// NewUpImage creates an UpImage command (0x0A).
func NewUpImage() Command {
	return Command{Instruction: InsUpImage}
}

// NewDeletChar creates a DeletChar command (0x0C) removing count templates from page.
func NewDeletChar(page, count uint16) Command {
	return Command{Instruction: InsDeletChar, Args: []uint32{uint32(page), uint32(count)}}
}

// NewEmpty creates an Empty command (0x0D) clearing the whole library.
func NewEmpty() Command {
	return Command{Instruction: InsEmpty}
}

// NewTemplateNum creates a TemplateNum command (0x1D).
func NewTemplateNum() Command {
	return Command{Instruction: InsTemplateNum}
}

// NewReadIndexTable creates a ReadIndexTable command (0x1F) for index page 0-3.
func NewReadIndexTable(page uint8) Command {
	return Command{Instruction: InsReadIndexTable, Args: []uint32{uint32(page)}}
}

// NewGetRandomCode creates a GetRandomCode command (0x14).
func NewGetRandomCode() Command {
	return Command{Instruction: InsGetRandomCode}
}

// NewWriteNotepad creates a WriteNotepad command (0x18).
// content must be exactly NotepadPageSize bytes.
func NewWriteNotepad(page uint8, content []byte) Command {
	return Command{Instruction: InsWriteNotepad, Args: []uint32{uint32(page)}, Block: content}
}

// NewReadNotepad creates a ReadNotepad command (0x19).
func NewReadNotepad(page uint8) Command {
	return Command{Instruction: InsReadNotepad, Args: []uint32{uint32(page)}}
}

// NewCancel creates a Cancel command (0x30) aborting a pending auto operation.
func NewCancel() Command {
	return Command{Instruction: InsCancel}
}

// NewAuraLedConfig creates an AuraLedConfig command (0x35), R503 only.
func NewAuraLedConfig(control, speed, color, times uint8) Command {
	return Command{Instruction: InsAuraLedConfig, Args: []uint32{uint32(control), uint32(speed), uint32(color), uint32(times)}}
}

// NewCheckSensor creates a CheckSensor command (0x36).
func NewCheckSensor() Command {
	return Command{Instruction: InsCheckSensor}
}

// NewHandShake creates a HandShake command (0x40).
func NewHandShake() Command {
	return Command{Instruction: InsHandShake}
}
