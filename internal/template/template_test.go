// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package template

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/fxamacker/cbor/v2"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSaveLoad(t *testing.T) {
	data := make([]byte, 512)
	for i := range data {
		data[i] = byte(i)
	}
	f := New(0xFFFFFFFF, 7, 1, data)
	path := filepath.Join(t.TempDir(), "thumb.tpl")

	require.NoError(t, Save(path, f))
	got, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, f.ID, got.ID)
	assert.True(t, f.Created.Equal(got.Created))
	assert.Equal(t, uint32(0xFFFFFFFF), got.Address)
	assert.Equal(t, uint16(7), got.Page)
	assert.Equal(t, uint8(1), got.Buffer)
	assert.Equal(t, data, got.Data)
}

func TestNew_AssignsUUID(t *testing.T) {
	a := New(0, 0, 1, []byte{1})
	b := New(0, 0, 1, []byte{1})

	_, err := uuid.Parse(a.ID)
	require.NoError(t, err)
	assert.NotEqual(t, a.ID, b.ID)
}

func TestIntegerKeys(t *testing.T) {
	encoded, err := Marshal(New(1, 2, 1, []byte{0xAA}))
	require.NoError(t, err)

	var raw map[int]interface{}
	require.NoError(t, cbor.Unmarshal(encoded, &raw))
	for key := 1; key <= 6; key++ {
		assert.Contains(t, raw, key)
	}
}

func TestEmptyData(t *testing.T) {
	_, err := Marshal(&File{ID: uuid.New().String()})
	assert.ErrorIs(t, err, ErrEmptyTemplate)

	encoded, err := cbor.Marshal(map[int]interface{}{1: uuid.New().String(), 6: []byte{}})
	require.NoError(t, err)
	_, err = Unmarshal(encoded)
	assert.ErrorIs(t, err, ErrEmptyTemplate)
}

func TestLoad_Errors(t *testing.T) {
	dir := t.TempDir()

	_, err := Load(filepath.Join(dir, "missing.tpl"))
	assert.Error(t, err)

	garbage := filepath.Join(dir, "garbage.tpl")
	require.NoError(t, os.WriteFile(garbage, []byte{0xFF, 0x00, 0x13}, 0o600))
	_, err = Load(garbage)
	assert.Error(t, err)

	encoded, err := cbor.Marshal(map[int]interface{}{1: "not-a-uuid", 6: []byte{1}})
	require.NoError(t, err)
	_, err = Unmarshal(encoded)
	assert.ErrorContains(t, err, "invalid template id")
}
