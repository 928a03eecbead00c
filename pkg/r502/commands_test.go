// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package r502

import (
	"bytes"
	"errors"
	"testing"
)

// ============================================================
// Command Encoding Tests
// ============================================================

func TestCommandFrames(t *testing.T) {
	tests := []struct {
		name string
		cmd  Command
		want string
	}{
		{"ReadSysPara", NewReadSysPara(), "ef01ffffffff0100030f0013"},
		{"VfyPwd", NewVerifyPassword(DefaultPassword), "ef01ffffffff0100071300000000001b"},
		{"GenImg", NewGenImg(), "ef01ffffffff010003010005"},
		{"Img2Tz", NewImg2Tz(CharBuffer1), "ef01ffffffff01000402010008"},
		{"Search", NewSearch(CharBuffer1, 0, 0xFFFF), "ef01ffffffff01000804010000ffff020c"},
		{"LoadChar", NewLoadChar(CharBuffer2, 0), "ef01ffffffff010006070200000010"},
		{"Match", NewMatch(), "ef01ffffffff010003030007"},
		{"TemplateNum", NewTemplateNum(), "ef01ffffffff0100031d0021"},
		{"RegModel", NewRegModel(), "ef01ffffffff010003050009"},
		{"Store", NewStore(CharBuffer1, 4), "ef01ffffffff010006060100040012"},
		{"DeletChar", NewDeletChar(4, 1), "ef01ffffffff0100070c000400010019"},
		{"UpChar", NewUpChar(CharBuffer1), "ef01ffffffff0100040801000e"},
		{"AuraLedConfig", NewAuraLedConfig(LedBreathing, 0x80, LedBlue, 0), "ef01ffffffff010007350180020000c0"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := MustEncodePacket(NewCommandPacket(DefaultAddress, tt.cmd))
			want := mustHex(t, tt.want)
			if !bytes.Equal(got, want) {
				t.Errorf("frame = %x\nwant    %x", got, want)
			}
		})
	}
}

func TestCommandEncode_ParamWidths(t *testing.T) {
	got := NewSetPassword(0x01020304).Encode()
	want := []byte{byte(InsSetPwd), 0x01, 0x02, 0x03, 0x04}
	if !bytes.Equal(got, want) {
		t.Errorf("SetPwd = % X, want % X", got, want)
	}

	got = NewSearch(CharBuffer2, 0x0102, 0x0304).Encode()
	want = []byte{byte(InsSearch), 0x02, 0x01, 0x02, 0x03, 0x04}
	if !bytes.Equal(got, want) {
		t.Errorf("Search = % X, want % X", got, want)
	}
}

func TestCommandEncode_NotepadBlock(t *testing.T) {
	content := bytes.Repeat([]byte{0xAB}, NotepadPageSize)
	got := NewWriteNotepad(3, content).Encode()

	if len(got) != 2+NotepadPageSize {
		t.Fatalf("len = %d, want %d", len(got), 2+NotepadPageSize)
	}
	if got[0] != byte(InsWriteNotepad) || got[1] != 3 {
		t.Errorf("header = % X", got[:2])
	}
	if !bytes.Equal(got[2:], content) {
		t.Error("notepad content not copied")
	}
}

func TestCommandEncode_UnregisteredInstruction(t *testing.T) {
	cmd := Command{Instruction: 0x7F}
	if got := cmd.Encode(); !bytes.Equal(got, []byte{0x7F}) {
		t.Errorf("Encode = % X, want 7F", got)
	}
	if name := cmd.Spec().Name; name != "0x7F" {
		t.Errorf("Spec().Name = %q", name)
	}
}

func TestRegisterCommand(t *testing.T) {
	const insSoftReset Instruction = 0x3D
	RegisterCommand(insSoftReset, CommandSpec{Name: "SoftReset"})
	defer delete(commandTable, insSoftReset)

	spec, ok := LookupCommand(insSoftReset)
	if !ok || spec.Name != "SoftReset" {
		t.Fatalf("LookupCommand = %+v/%v", spec, ok)
	}
	if FormatInstruction(insSoftReset) != "SoftReset" {
		t.Errorf("FormatInstruction = %q", FormatInstruction(insSoftReset))
	}
}

// ============================================================
// Validation Tests
// ============================================================

func TestCommandValidate(t *testing.T) {
	tests := []struct {
		name    string
		cmd     Command
		wantErr bool
		param   string
	}{
		{"buffer 1", NewImg2Tz(1), false, ""},
		{"buffer 2", NewImg2Tz(2), false, ""},
		{"buffer 0", NewImg2Tz(0), true, "buffer"},
		{"buffer 3", NewImg2Tz(3), true, "buffer"},
		{"store page max", NewStore(1, 0xFFFF), false, ""},
		{"delete zero count", NewDeletChar(0, 0), true, "count"},
		{"index page 3", NewReadIndexTable(3), false, ""},
		{"index page 4", NewReadIndexTable(4), true, "page"},
		{"notepad page 15", NewReadNotepad(15), false, ""},
		{"notepad page 16", NewReadNotepad(16), true, "page"},
		{"notepad short", NewWriteNotepad(0, []byte{1, 2, 3}), true, "block"},
		{"notepad exact", NewWriteNotepad(0, make([]byte, NotepadPageSize)), false, ""},
		{"sys param baud", NewSetSysPara(SysParamBaudRate, 6), false, ""},
		{"sys param 3", NewSetSysPara(3, 1), true, "param"},
		{"led color 8", NewAuraLedConfig(LedOn, 0, 8, 0), true, "color"},
		{"missing args", Command{Instruction: InsSearch, Args: []uint32{1}}, true, "args"},
		{"byte overflow", Command{Instruction: InsSetSysPara, Args: []uint32{4, 0x100}}, true, "value"},
		{"word overflow", Command{Instruction: InsStore, Args: []uint32{1, 0x10000}}, true, "page"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cmd.Validate()
			if !tt.wantErr {
				if err != nil {
					t.Errorf("unexpected error: %v", err)
				}
				return
			}

			var pe *ParamError
			if !errors.As(err, &pe) {
				t.Fatalf("expected *ParamError, got %v", err)
			}
			if pe.Param != tt.param {
				t.Errorf("Param = %q, want %q", pe.Param, tt.param)
			}
		})
	}
}

func TestCommandTable_Complete(t *testing.T) {
	instructions := []Instruction{
		InsGenImg, InsImg2Tz, InsMatch, InsSearch, InsRegModel, InsStore,
		InsLoadChar, InsUpChar, InsDownChar, InsUpImage, InsDeletChar, InsEmpty,
		InsSetSysPara, InsReadSysPara, InsSetPwd, InsVfyPwd, InsGetRandomCode,
		InsWriteNotepad, InsReadNotepad, InsTemplateNum, InsReadIndexTable,
		InsCancel, InsAuraLedConfig, InsCheckSensor, InsHandShake,
	}

	for _, ins := range instructions {
		if _, ok := LookupCommand(ins); !ok {
			t.Errorf("instruction 0x%02X missing from command table", uint8(ins))
		}
	}

	transfers := map[Instruction]Transfer{
		InsUpChar:   TransferUpload,
		InsUpImage:  TransferUpload,
		InsDownChar: TransferDownload,
		InsSearch:   TransferNone,
	}
	for ins, want := range transfers {
		if spec, _ := LookupCommand(ins); spec.Transfer != want {
			t.Errorf("%s transfer = %d, want %d", FormatInstruction(ins), spec.Transfer, want)
		}
	}
}

func TestCommandString(t *testing.T) {
	if s := NewStore(1, 4).String(); s != "Store[1 4]" {
		t.Errorf("String = %q", s)
	}
}
