// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package r502

// Checksum computes the packet checksum: the 16-bit wrapping sum of the
// package identifier, both length bytes and every payload byte.
func Checksum(pid PackageID, length uint16, payload []byte) uint16 {
	sum := uint16(pid) + length>>8 + length&0xFF
	return sum + SumBytes(payload)
}

// SumBytes returns the 16-bit wrapping sum of data.
func SumBytes(data []byte) uint16 {
	var sum uint16
	for _, b := range data {
		sum += uint16(b)
	}
	return sum
}
