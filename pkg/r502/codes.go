// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package r502

import (
	"errors"
	"fmt"
)

// ConfirmationCode is the first payload byte of every acknowledgement.
type ConfirmationCode uint8

// Confirmation codes documented in the module command reference.
// The set is open: codes missing here decode as CategoryUnknown.
const (
	CodeOK                 ConfirmationCode = 0x00
	CodePacketError        ConfirmationCode = 0x01
	CodeNoFinger           ConfirmationCode = 0x02
	CodeImageFail          ConfirmationCode = 0x03
	CodeImageMessy         ConfirmationCode = 0x06
	CodeFeatureFail        ConfirmationCode = 0x07
	CodeNoMatch            ConfirmationCode = 0x08
	CodeNotFound           ConfirmationCode = 0x09
	CodeEnrollMismatch     ConfirmationCode = 0x0A
	CodeBadLocation        ConfirmationCode = 0x0B
	CodeInvalidTemplate    ConfirmationCode = 0x0C
	CodeUploadFeatureFail  ConfirmationCode = 0x0D
	CodePacketResponseFail ConfirmationCode = 0x0E
	CodeUploadImageFail    ConfirmationCode = 0x0F
	CodeDeleteFail         ConfirmationCode = 0x10
	CodeClearFail          ConfirmationCode = 0x11
	CodeWrongPassword      ConfirmationCode = 0x13
	CodeInvalidImage       ConfirmationCode = 0x15
	CodeFlashError         ConfirmationCode = 0x18
	CodeInvalidRegister    ConfirmationCode = 0x1A
	CodeBadRegisterConfig  ConfirmationCode = 0x1B
	CodeBadNotepadPage     ConfirmationCode = 0x1C
	CodePortOperationFail  ConfirmationCode = 0x1D
	CodeLibraryFull        ConfirmationCode = 0x1F
	CodeAddressIncorrect   ConfirmationCode = 0x20
	CodePasswordRequired   ConfirmationCode = 0x21
	CodeTemplateEmpty      ConfirmationCode = 0x22
	CodeLibraryEmpty       ConfirmationCode = 0x24
	CodeTimeout            ConfirmationCode = 0x26
	CodeAlreadyExists      ConfirmationCode = 0x27
	CodeSensorError        ConfirmationCode = 0x29
	CodeUnsupported        ConfirmationCode = 0xFC
	CodeHardwareError      ConfirmationCode = 0xFD
	CodeExecutionFail      ConfirmationCode = 0xFE
)

// Category groups confirmation codes by what the caller can do about them.
type Category int

// Device error categories
const (
	CategoryUnknown Category = iota
	CategoryCommunication
	CategoryNoFinger
	CategoryImage
	CategoryMismatch
	CategoryNotFound
	CategoryEnroll
	CategoryLibrary
	CategoryLibraryFull
	CategoryLibraryEmpty
	CategoryTemplate
	CategoryTransfer
	CategoryPassword
	CategoryConfiguration
	CategoryHardware
	CategoryTimeout
	CategoryDuplicate
	CategoryUnsupported
)

var categoryNames = map[Category]string{
	CategoryUnknown:       "unknown",
	CategoryCommunication: "communication error",
	CategoryNoFinger:      "no finger detected",
	CategoryImage:         "image error",
	CategoryMismatch:      "fingerprint mismatch",
	CategoryNotFound:      "fingerprint not found",
	CategoryEnroll:        "enrollment error",
	CategoryLibrary:       "library error",
	CategoryLibraryFull:   "library full",
	CategoryLibraryEmpty:  "library empty",
	CategoryTemplate:      "template error",
	CategoryTransfer:      "transfer error",
	CategoryPassword:      "password error",
	CategoryConfiguration: "configuration error",
	CategoryHardware:      "hardware error",
	CategoryTimeout:       "device timeout",
	CategoryDuplicate:     "duplicate fingerprint",
	CategoryUnsupported:   "unsupported command",
}

func (c Category) String() string {
	if name, ok := categoryNames[c]; ok {
		return name
	}
	return fmt.Sprintf("category(%d)", int(c))
}

type codeInfo struct {
	category    Category
	description string
}

var codeTable = map[ConfirmationCode]codeInfo{
	CodeOK:                 {CategoryUnknown, "ok"},
	CodePacketError:        {CategoryCommunication, "error receiving packet"},
	CodeNoFinger:           {CategoryNoFinger, "no finger on sensor"},
	CodeImageFail:          {CategoryImage, "failed to capture image"},
	CodeImageMessy:         {CategoryImage, "image too disorderly to generate features"},
	CodeFeatureFail:        {CategoryImage, "too few feature points"},
	CodeNoMatch:            {CategoryMismatch, "fingerprints do not match"},
	CodeNotFound:           {CategoryNotFound, "no matching fingerprint in library"},
	CodeEnrollMismatch:     {CategoryEnroll, "failed to combine character files"},
	CodeBadLocation:        {CategoryLibrary, "page id beyond library"},
	CodeInvalidTemplate:    {CategoryTemplate, "error reading template or template invalid"},
	CodeUploadFeatureFail:  {CategoryTransfer, "error uploading template"},
	CodePacketResponseFail: {CategoryTransfer, "module cannot receive following data packets"},
	CodeUploadImageFail:    {CategoryTransfer, "error uploading image"},
	CodeDeleteFail:         {CategoryLibrary, "failed to delete template"},
	CodeClearFail:          {CategoryLibrary, "failed to clear library"},
	CodeWrongPassword:      {CategoryPassword, "wrong password"},
	CodeInvalidImage:       {CategoryImage, "no valid primary image in buffer"},
	CodeFlashError:         {CategoryHardware, "error writing flash"},
	CodeInvalidRegister:    {CategoryConfiguration, "invalid register number"},
	CodeBadRegisterConfig:  {CategoryConfiguration, "incorrect register configuration"},
	CodeBadNotepadPage:     {CategoryConfiguration, "wrong notepad page number"},
	CodePortOperationFail:  {CategoryCommunication, "failed to operate communication port"},
	CodeLibraryFull:        {CategoryLibraryFull, "fingerprint library full"},
	CodeAddressIncorrect:   {CategoryCommunication, "address incorrect"},
	CodePasswordRequired:   {CategoryPassword, "password must be verified"},
	CodeTemplateEmpty:      {CategoryTemplate, "template empty"},
	CodeLibraryEmpty:       {CategoryLibraryEmpty, "fingerprint library empty"},
	CodeTimeout:            {CategoryTimeout, "operation timed out"},
	CodeAlreadyExists:      {CategoryDuplicate, "fingerprint already exists"},
	CodeSensorError:        {CategoryHardware, "sensor hardware error"},
	CodeUnsupported:        {CategoryUnsupported, "unsupported command"},
	CodeHardwareError:      {CategoryHardware, "hardware error"},
	CodeExecutionFail:      {CategoryHardware, "command execution failure"},
}

// Description returns the documented meaning of c, or "unknown" when c is
// not in the table.
func (c ConfirmationCode) Description() string {
	if info, ok := codeTable[c]; ok {
		return info.description
	}
	return "unknown"
}

// Category returns the category of c.
func (c ConfirmationCode) Category() Category {
	return codeTable[c].category
}

// Known reports whether c appears in the documented table.
func (c ConfirmationCode) Known() bool {
	_, ok := codeTable[c]
	return ok
}

func (c ConfirmationCode) String() string {
	return fmt.Sprintf("0x%02X (%s)", uint8(c), c.Description())
}

// DeviceError is returned when the module completed the exchange but
// rejected or could not satisfy the command.
type DeviceError struct {
	Code     ConfirmationCode
	Category Category
}

// NewDeviceError classifies a non-zero confirmation code.
func NewDeviceError(code ConfirmationCode) *DeviceError {
	return &DeviceError{Code: code, Category: code.Category()}
}

func (e *DeviceError) Error() string {
	if !e.Code.Known() {
		return fmt.Sprintf("device error 0x%02X: unknown code", uint8(e.Code))
	}
	return fmt.Sprintf("device error 0x%02X: %s", uint8(e.Code), e.Code.Description())
}

// Unknown reports whether the code is outside the documented table.
func (e *DeviceError) Unknown() bool {
	return e.Category == CategoryUnknown
}

// IsDeviceCode reports whether err is a *DeviceError carrying code.
func IsDeviceCode(err error, code ConfirmationCode) bool {
	var de *DeviceError
	return errors.As(err, &de) && de.Code == code
}

// IsCategory reports whether err is a *DeviceError in category c.
func IsCategory(err error, c Category) bool {
	var de *DeviceError
	return errors.As(err, &de) && de.Category == c
}
