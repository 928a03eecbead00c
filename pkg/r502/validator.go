// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package r502

import "fmt"

// AnomalyType represents different kinds of suspicious module state
type AnomalyType int

const (
	AnomalySecurityLevel AnomalyType = iota
	AnomalyPacketSize
	AnomalyBaudRate
	AnomalyCapacity
	AnomalyBusy
)

// ValidationError represents a system parameter that is out of range
type ValidationError struct {
	Type    AnomalyType
	Message string
	Details map[string]interface{}
}

// Error implements the error interface
func (v *ValidationError) Error() string {
	return v.Message
}

// ValidateSystemParameters checks ReadSysPara values against the ranges the
// module documents. Returns a slice of validation errors (empty if sane).
func ValidateSystemParameters(sp SystemParameters) []ValidationError {
	errors := []ValidationError{}

	if sp.SecurityLevel < 1 || sp.SecurityLevel > 5 {
		errors = append(errors, ValidationError{
			Type:    AnomalySecurityLevel,
			Message: fmt.Sprintf("Invalid security_level=%d (valid 1-5)", sp.SecurityLevel),
			Details: map[string]interface{}{"security_level": sp.SecurityLevel, "min": 1, "max": 5},
		})
	}

	if int(sp.PacketSizeCode) >= len(packetSizes) {
		errors = append(errors, ValidationError{
			Type:    AnomalyPacketSize,
			Message: fmt.Sprintf("Invalid packet_size_code=%d (max %d)", sp.PacketSizeCode, len(packetSizes)-1),
			Details: map[string]interface{}{"packet_size_code": sp.PacketSizeCode, "max": len(packetSizes) - 1},
		})
	}

	if sp.BaudRateCode < 1 || sp.BaudRateCode > 12 {
		errors = append(errors, ValidationError{
			Type:    AnomalyBaudRate,
			Message: fmt.Sprintf("Invalid baud_rate_code=%d (valid 1-12)", sp.BaudRateCode),
			Details: map[string]interface{}{"baud_rate_code": sp.BaudRateCode, "min": 1, "max": 12},
		})
	}

	if sp.LibraryCapacity == 0 {
		errors = append(errors, ValidationError{
			Type:    AnomalyCapacity,
			Message: "Library capacity is zero",
			Details: map[string]interface{}{"library_capacity": sp.LibraryCapacity},
		})
	}

	// Idle module between commands should never report busy
	if sp.Busy() {
		errors = append(errors, ValidationError{
			Type:    AnomalyBusy,
			Message: "Module reports busy while idle",
			Details: map[string]interface{}{"status_register": sp.StatusRegister},
		})
	}

	return errors
}
