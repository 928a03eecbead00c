// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package template stores character files downloaded from a module so they
// can be uploaded again, to the same module or another one.
package template

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/google/uuid"
)

// ErrEmptyTemplate is returned when a file carries no template data.
var ErrEmptyTemplate = errors.New("template file has no data")

// File is a template with the context it was downloaded in.
// Encoded as a CBOR map with integer keys.
type File struct {
	ID      string    `cbor:"1,keyasint"`
	Created time.Time `cbor:"2,keyasint"`
	Address uint32    `cbor:"3,keyasint"`
	Page    uint16    `cbor:"4,keyasint"`
	Buffer  uint8     `cbor:"5,keyasint"`
	Data    []byte    `cbor:"6,keyasint"`
}

// New wraps template data downloaded from page of the module at address.
func New(address uint32, page uint16, buffer uint8, data []byte) *File {
	return &File{
		ID:      uuid.New().String(),
		Created: time.Now().UTC().Truncate(time.Second),
		Address: address,
		Page:    page,
		Buffer:  buffer,
		Data:    data,
	}
}

var encMode = func() cbor.EncMode {
	em, err := cbor.EncOptions{Time: cbor.TimeRFC3339}.EncMode()
	if err != nil {
		panic(err)
	}
	return em
}()

// Marshal encodes f.
func Marshal(f *File) ([]byte, error) {
	if len(f.Data) == 0 {
		return nil, ErrEmptyTemplate
	}
	return encMode.Marshal(f)
}

// Unmarshal decodes and checks a template file.
func Unmarshal(data []byte) (*File, error) {
	var f File
	if err := cbor.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to decode template: %w", err)
	}
	if len(f.Data) == 0 {
		return nil, ErrEmptyTemplate
	}
	if f.ID != "" {
		if _, err := uuid.Parse(f.ID); err != nil {
			return nil, fmt.Errorf("invalid template id %q: %w", f.ID, err)
		}
	}
	return &f, nil
}

// Save writes f to path.
func Save(path string, f *File) error {
	data, err := Marshal(f)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}

// Load reads a template file from path.
func Load(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return Unmarshal(data)
}
