// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package r502 implements the serial protocol spoken by R502, R503 and AS608
// family fingerprint modules.
//
// The package provides packet framing and checksum validation, a table-driven
// command encoder, confirmation-code interpretation, and a Session that drives
// one command/response exchange at a time over a byte transport, including
// multi-packet template and image transfers.
package r502

// Protocol framing bytes
const (
	MagicHigh = 0xEF
	MagicLow  = 0x01
	Magic     = 0xEF01
)

// Packet layout
const (
	HeaderSize    = 9 // magic(2) + address(4) + pid(1) + length(2)
	ChecksumSize  = 2
	AddressSize   = 4
	MinPacketSize = HeaderSize + ChecksumSize

	// MaxPayloadSize is the largest payload the 2-byte length field can describe.
	MaxPayloadSize = 0xFFFF - ChecksumSize
)

// DefaultAddress is the factory address of every module.
const DefaultAddress uint32 = 0xFFFFFFFF

// DefaultPassword is the factory handshake password.
const DefaultPassword uint32 = 0x00000000

// PackageID tags the role of a packet on the wire.
type PackageID uint8

// Package identifiers
const (
	PIDCommand   PackageID = 0x01
	PIDData      PackageID = 0x02
	PIDAck       PackageID = 0x07
	PIDEndOfData PackageID = 0x08
)

// Instruction is the first payload byte of a command packet.
type Instruction uint8

// Instruction codes - image and template processing
const (
	InsGenImg   Instruction = 0x01
	InsImg2Tz   Instruction = 0x02
	InsMatch    Instruction = 0x03
	InsSearch   Instruction = 0x04
	InsRegModel Instruction = 0x05
	InsStore    Instruction = 0x06
	InsLoadChar Instruction = 0x07
	InsUpChar   Instruction = 0x08
	InsDownChar Instruction = 0x09
	InsUpImage  Instruction = 0x0A
)

// Instruction codes - library management
const (
	InsDeletChar      Instruction = 0x0C
	InsEmpty          Instruction = 0x0D
	InsTemplateNum    Instruction = 0x1D
	InsReadIndexTable Instruction = 0x1F
)

// Instruction codes - system
const (
	InsSetSysPara    Instruction = 0x0E
	InsReadSysPara   Instruction = 0x0F
	InsSetPwd        Instruction = 0x12
	InsVfyPwd        Instruction = 0x13
	InsGetRandomCode Instruction = 0x14
	InsWriteNotepad  Instruction = 0x18
	InsReadNotepad   Instruction = 0x19
	InsCancel        Instruction = 0x30
	InsAuraLedConfig Instruction = 0x35
	InsCheckSensor   Instruction = 0x36
	InsHandShake     Instruction = 0x40
)

// Character file buffers
const (
	CharBuffer1 uint8 = 1
	CharBuffer2 uint8 = 2
)

// Notepad and index table geometry
const (
	NotepadPages      = 16
	NotepadPageSize   = 32
	IndexTablePages   = 4
	IndexTableSize    = 32
	SlotsPerIndexPage = IndexTableSize * 8
)

// SetSysPara parameter numbers
const (
	SysParamBaudRate      uint8 = 4
	SysParamSecurityLevel uint8 = 5
	SysParamPacketSize    uint8 = 6
)

// Status register bits reported by ReadSysPara
const (
	StatusBusy        uint16 = 1 << 0
	StatusPass        uint16 = 1 << 1
	StatusPassword    uint16 = 1 << 2
	StatusImageBuffer uint16 = 1 << 3
)

// Aura LED control codes (R503)
const (
	LedBreathing  uint8 = 0x01
	LedFlashing   uint8 = 0x02
	LedOn         uint8 = 0x03
	LedOff        uint8 = 0x04
	LedGradualOn  uint8 = 0x05
	LedGradualOff uint8 = 0x06
)

// Aura LED colors (R503)
const (
	LedRed    uint8 = 0x01
	LedBlue   uint8 = 0x02
	LedPurple uint8 = 0x03
)

// BaudUnit is the multiplier applied to the baud-rate code.
const BaudUnit = 9600

// packetSizes maps the packet-size code to the data payload size in bytes.
var packetSizes = [...]int{32, 64, 128, 256}

// DefaultPacketSize is the factory data packet size (code 2).
const DefaultPacketSize = 128
