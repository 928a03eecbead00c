// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package r502

import (
	"bytes"
	"encoding/hex"
	"errors"
	"testing"
)

// ============================================================
// Test Helpers
// ============================================================

// mustHex decodes a hex string, ignoring spaces
func mustHex(t *testing.T, s string) []byte {
	t.Helper()
	data, err := hex.DecodeString(string(bytes.ReplaceAll([]byte(s), []byte(" "), nil)))
	if err != nil {
		t.Fatalf("bad hex %q: %v", s, err)
	}
	return data
}

// statusReply16 is a 16-byte acknowledgement payload with a truncated
// parameter block.
var statusReply16 = []byte{
	0x00, 0x00, 0x00, 0x00, 0x00, 0xC8, 0x00, 0x03,
	0xFF, 0xFF, 0xFF, 0xFF, 0x00, 0x02, 0x00, 0x06,
}

// statusReply17 is a complete ReadSysPara acknowledgement payload:
// code 0 followed by the 16-byte parameter block.
var statusReply17 = []byte{
	0x00,
	0x00, 0x00, 0x00, 0x00, 0x00, 0xC8, 0x00, 0x03,
	0xFF, 0xFF, 0xFF, 0xFF, 0x00, 0x02, 0x00, 0x06,
}

// ============================================================
// Checksum Tests
// ============================================================

func TestChecksum_Empty(t *testing.T) {
	// pid 0x07 + length 0x0002
	if sum := Checksum(PIDAck, 2, nil); sum != 0x0009 {
		t.Errorf("Checksum = 0x%04X, want 0x0009", sum)
	}
}

func TestChecksum_KnownValues(t *testing.T) {
	tests := []struct {
		name     string
		pid      PackageID
		length   uint16
		payload  []byte
		expected uint16
	}{
		{"ReadSysPara", PIDCommand, 0x0003, []byte{0x0F}, 0x0013},
		{"VfyPwd", PIDCommand, 0x0007, []byte{0x13, 0, 0, 0, 0}, 0x001B},
		{"ack ok", PIDAck, 0x0003, []byte{0x00}, 0x000A},
		{"status 16 bytes", PIDAck, 0x0012, statusReply16, 0x04E8},
		{"status 17 bytes", PIDAck, 0x0013, statusReply17, 0x04E9},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if sum := Checksum(tt.pid, tt.length, tt.payload); sum != tt.expected {
				t.Errorf("Checksum = 0x%04X, want 0x%04X", sum, tt.expected)
			}
		})
	}
}

func TestChecksum_Wraps(t *testing.T) {
	payload := bytes.Repeat([]byte{0xFF}, 300)
	want := uint16((0x02 + 0x01 + 0x2E + 300*0xFF) & 0xFFFF)
	if sum := Checksum(PIDData, uint16(len(payload)+2), payload); sum != want {
		t.Errorf("Checksum = 0x%04X, want 0x%04X", sum, want)
	}
}

func TestSumBytes(t *testing.T) {
	if sum := SumBytes([]byte{0xC0, 0xC1}); sum != 0x0181 {
		t.Errorf("SumBytes = 0x%04X, want 0x0181", sum)
	}
}

// ============================================================
// Encoder Tests
// ============================================================

func TestEncodePacket_StatusVector(t *testing.T) {
	data, err := EncodePacketFromValues(DefaultAddress, PIDAck, statusReply16)
	if err != nil {
		t.Fatalf("EncodePacketFromValues failed: %v", err)
	}

	want := mustHex(t, "ef01 ffffffff 07 0012 0000000000c80003ffffffff00020006 04e8")
	if !bytes.Equal(data, want) {
		t.Errorf("encoded = % X\nwant      % X", data, want)
	}
}

func TestEncodePacket_Layout(t *testing.T) {
	p := NewPacket(0x12345678, PIDData, []byte{0xAA, 0xBB, 0xCC})
	data := MustEncodePacket(p)

	if len(data) != MinPacketSize+3 {
		t.Fatalf("len = %d, want %d", len(data), MinPacketSize+3)
	}
	if data[0] != MagicHigh || data[1] != MagicLow {
		t.Errorf("magic = %02X%02X, want EF01", data[0], data[1])
	}
	if !bytes.Equal(data[2:6], []byte{0x12, 0x34, 0x56, 0x78}) {
		t.Errorf("address = % X, want big-endian 12345678", data[2:6])
	}
	if PackageID(data[6]) != PIDData {
		t.Errorf("pid = 0x%02X, want 0x02", data[6])
	}
	if data[7] != 0x00 || data[8] != 0x05 {
		t.Errorf("length = %02X%02X, want 0005", data[7], data[8])
	}
}

func TestEncodePacket_PayloadTooLarge(t *testing.T) {
	_, err := EncodePacketFromValues(DefaultAddress, PIDData, make([]byte, MaxPayloadSize+1))
	if !errors.Is(err, ErrPayloadTooLarge) {
		t.Errorf("expected ErrPayloadTooLarge, got %v", err)
	}

	if _, err := EncodePacketFromValues(DefaultAddress, PIDData, make([]byte, MaxPayloadSize)); err != nil {
		t.Errorf("max payload should encode, got %v", err)
	}
}

func TestMustEncodePacket_Panics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("expected panic for oversized payload")
		}
	}()
	MustEncodePacket(NewPacket(DefaultAddress, PIDData, make([]byte, MaxPayloadSize+1)))
}

func TestSplitData(t *testing.T) {
	tests := []struct {
		name      string
		size      int
		chunk     int
		wantPIDs  []PackageID
		wantSizes []int
	}{
		{"empty", 0, 128, []PackageID{PIDEndOfData}, []int{0}},
		{"single short", 10, 128, []PackageID{PIDEndOfData}, []int{10}},
		{"exact chunk", 128, 128, []PackageID{PIDEndOfData}, []int{128}},
		{"two chunks", 129, 128, []PackageID{PIDData, PIDEndOfData}, []int{128, 1}},
		{"template", 512, 128, []PackageID{PIDData, PIDData, PIDData, PIDEndOfData}, []int{128, 128, 128, 128}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			payload := make([]byte, tt.size)
			for i := range payload {
				payload[i] = byte(i)
			}

			frames, err := SplitData(DefaultAddress, payload, tt.chunk)
			if err != nil {
				t.Fatalf("SplitData failed: %v", err)
			}
			if len(frames) != len(tt.wantPIDs) {
				t.Fatalf("got %d frames, want %d", len(frames), len(tt.wantPIDs))
			}

			var joined []byte
			for i, frame := range frames {
				p, n, err := DecodePacket(frame)
				if err != nil {
					t.Fatalf("frame %d does not decode: %v", i, err)
				}
				if n != len(frame) {
					t.Errorf("frame %d consumed %d of %d bytes", i, n, len(frame))
				}
				if p.PID() != tt.wantPIDs[i] {
					t.Errorf("frame %d pid = %s, want %s", i, FormatPackageID(p.PID()), FormatPackageID(tt.wantPIDs[i]))
				}
				if len(p.Payload()) != tt.wantSizes[i] {
					t.Errorf("frame %d size = %d, want %d", i, len(p.Payload()), tt.wantSizes[i])
				}
				joined = append(joined, p.Payload()...)
			}
			if !bytes.Equal(joined, payload) {
				t.Error("reassembled payload differs from input")
			}
		})
	}
}

func TestSplitData_InvalidChunk(t *testing.T) {
	if _, err := SplitData(DefaultAddress, []byte{1}, 0); err == nil {
		t.Error("expected error for zero chunk size")
	}
}

// ============================================================
// Decoder Tests
// ============================================================

func TestDecodePacket_StatusVector(t *testing.T) {
	data := mustHex(t, "ef01 ffffffff 07 0012 0000000000c80003ffffffff00020006 04e8")

	p, n, err := DecodePacket(data)
	if err != nil {
		t.Fatalf("DecodePacket failed: %v", err)
	}
	if n != len(data) {
		t.Errorf("consumed = %d, want %d", n, len(data))
	}
	if p.Address() != 0xFFFFFFFF {
		t.Errorf("address = 0x%08X, want 0xFFFFFFFF", p.Address())
	}
	if p.PID() != PIDAck {
		t.Errorf("pid = %s, want ACK", FormatPackageID(p.PID()))
	}
	if p.Length() != 0x12 {
		t.Errorf("length = 0x%04X, want 0x0012", p.Length())
	}
	if p.Checksum() != 0x04E8 {
		t.Errorf("checksum = 0x%04X, want 0x04E8", p.Checksum())
	}
	code, ok := p.ConfirmationCode()
	if !ok || code != CodeOK {
		t.Errorf("confirmation = %v/%v, want OK", code, ok)
	}
}

func TestDecodePacket_KeepsTrailingBytes(t *testing.T) {
	first := MustEncodePacket(NewPacket(DefaultAddress, PIDData, []byte{1, 2, 3}))
	second := MustEncodePacket(NewPacket(DefaultAddress, PIDEndOfData, []byte{4}))
	stream := append(append([]byte{}, first...), second...)

	p, n, err := DecodePacket(stream)
	if err != nil {
		t.Fatalf("first decode failed: %v", err)
	}
	if n != len(first) {
		t.Fatalf("consumed = %d, want %d", n, len(first))
	}
	if p.PID() != PIDData {
		t.Errorf("first pid = %s, want DATA", FormatPackageID(p.PID()))
	}

	p, n, err = DecodePacket(stream[n:])
	if err != nil {
		t.Fatalf("second decode failed: %v", err)
	}
	if n != len(second) || p.PID() != PIDEndOfData {
		t.Errorf("second packet = %s/%d bytes", FormatPackageID(p.PID()), n)
	}
}

func TestDecodePacket_DoesNotAliasInput(t *testing.T) {
	data := MustEncodePacket(NewPacket(DefaultAddress, PIDData, []byte{0x10, 0x20}))
	p, _, err := DecodePacket(data)
	if err != nil {
		t.Fatalf("DecodePacket failed: %v", err)
	}
	data[HeaderSize] = 0x99
	if p.Payload()[0] != 0x10 {
		t.Error("decoded payload aliases the input window")
	}
}

func TestDecodePacket_Errors(t *testing.T) {
	valid := MustEncodePacket(NewPacket(DefaultAddress, PIDAck, []byte{0x00}))

	badSum := append([]byte{}, valid...)
	badSum[len(badSum)-1] ^= 0x01

	shortLen := append([]byte{}, valid[:HeaderSize]...)
	shortLen[7], shortLen[8] = 0x00, 0x01

	tests := []struct {
		name   string
		window []byte
		want   error
	}{
		{"empty", nil, ErrIncomplete},
		{"magic high only", []byte{0xEF}, ErrIncomplete},
		{"header only", valid[:HeaderSize], ErrIncomplete},
		{"missing checksum byte", valid[:len(valid)-1], ErrIncomplete},
		{"wrong first byte", []byte{0x00, 0x01}, ErrBadMagic},
		{"wrong second byte", []byte{0xEF, 0x02}, ErrBadMagic},
		{"wrong first byte alone", []byte{0x55}, ErrBadMagic},
		{"length below checksum", shortLen, ErrBadLength},
		{"checksum mismatch", badSum, ErrChecksum},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, n, err := DecodePacket(tt.window)
			if !errors.Is(err, tt.want) {
				t.Errorf("err = %v, want %v", err, tt.want)
			}
			if p != nil || n != 0 {
				t.Errorf("failed decode returned packet=%v consumed=%d", p, n)
			}
		})
	}
}

func TestDecodePacket_ChecksumErrorFields(t *testing.T) {
	data := mustHex(t, "ef01 ffffffff 07 0003 00 000b")
	_, _, err := DecodePacket(data)

	var ce *ChecksumError
	if !errors.As(err, &ce) {
		t.Fatalf("expected *ChecksumError, got %v", err)
	}
	if ce.Expected != 0x000A || ce.Actual != 0x000B {
		t.Errorf("ChecksumError = %+v, want expected 0x000A actual 0x000B", ce)
	}
}

func TestDecodePacket_EveryPrefixIncomplete(t *testing.T) {
	packets := [][]byte{
		MustEncodePacket(NewPacket(DefaultAddress, PIDAck, statusReply16)),
		MustEncodePacket(NewPacket(0x01020304, PIDCommand, []byte{0x0F})),
		MustEncodePacket(NewPacket(DefaultAddress, PIDEndOfData, nil)),
	}

	for _, data := range packets {
		for i := 0; i < len(data); i++ {
			if _, _, err := DecodePacket(data[:i]); !errors.Is(err, ErrIncomplete) {
				t.Errorf("prefix %d of % X: err = %v, want ErrIncomplete", i, data, err)
			}
		}
	}
}

// Flipping any bit outside the address must be detected. The address is not
// covered by the checksum and passes through unchanged.
func TestDecodePacket_SingleBitFlips(t *testing.T) {
	data := MustEncodePacket(NewPacket(DefaultAddress, PIDAck, statusReply17))

	for i := 0; i < len(data); i++ {
		if i >= 2 && i < 2+AddressSize {
			continue
		}
		for bit := 0; bit < 8; bit++ {
			corrupt := append([]byte{}, data...)
			corrupt[i] ^= 1 << bit

			_, _, err := DecodePacket(corrupt)
			switch {
			case i < 2:
				if !errors.Is(err, ErrBadMagic) {
					t.Errorf("byte %d bit %d: err = %v, want ErrBadMagic", i, bit, err)
				}
			case i == 7 || i == 8:
				// A corrupted length shifts where the checksum is read from,
				// or claims more bytes than are present.
				if err == nil {
					t.Errorf("byte %d bit %d: length corruption not detected", i, bit)
				}
			default:
				if !errors.Is(err, ErrChecksum) {
					t.Errorf("byte %d bit %d: err = %v, want ErrChecksum", i, bit, err)
				}
			}
		}
	}
}

func TestDecodePacket_AddressPassThrough(t *testing.T) {
	for _, addr := range []uint32{0, 1, 0xDEADBEEF, DefaultAddress} {
		data := MustEncodePacket(NewPacket(addr, PIDCommand, []byte{0x01}))
		p, _, err := DecodePacket(data)
		if err != nil {
			t.Fatalf("DecodePacket failed: %v", err)
		}
		if p.Address() != addr {
			t.Errorf("address = 0x%08X, want 0x%08X", p.Address(), addr)
		}
	}
}

func TestRoundTrip_PayloadSizes(t *testing.T) {
	for _, size := range []int{0, 1, 2, 31, 32, 128, 256, 1000, MaxPayloadSize} {
		payload := make([]byte, size)
		for i := range payload {
			payload[i] = byte(i * 7)
		}

		data, err := EncodePacketFromValues(DefaultAddress, PIDData, payload)
		if err != nil {
			t.Fatalf("size %d: encode failed: %v", size, err)
		}
		p, n, err := DecodePacket(data)
		if err != nil {
			t.Fatalf("size %d: decode failed: %v", size, err)
		}
		if n != len(data) || !bytes.Equal(p.Payload(), payload) {
			t.Errorf("size %d: round trip mismatch", size)
		}
	}
}

// ============================================================
// Packet Tests
// ============================================================

func TestPacket_IsFinal(t *testing.T) {
	tests := []struct {
		pid  PackageID
		want bool
	}{
		{PIDCommand, false},
		{PIDData, false},
		{PIDAck, true},
		{PIDEndOfData, true},
	}
	for _, tt := range tests {
		if got := NewPacket(DefaultAddress, tt.pid, nil).IsFinal(); got != tt.want {
			t.Errorf("%s.IsFinal() = %v, want %v", FormatPackageID(tt.pid), got, tt.want)
		}
	}
}

func TestPacket_ConfirmationCodeOnlyForAck(t *testing.T) {
	if _, ok := NewPacket(DefaultAddress, PIDData, []byte{0x00}).ConfirmationCode(); ok {
		t.Error("data packet should not carry a confirmation code")
	}
	if _, ok := NewPacket(DefaultAddress, PIDAck, nil).ConfirmationCode(); ok {
		t.Error("empty ack should not carry a confirmation code")
	}
	code, ok := NewPacket(DefaultAddress, PIDAck, []byte{0x09}).ConfirmationCode()
	if !ok || code != CodeNotFound {
		t.Errorf("code = %v/%v, want 0x09", code, ok)
	}
}
