// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package xgt

import "math/bits"

// CalculateChecksum computes the XGT long message checksum: the 16-bit
// wrapping sum of every byte.
func CalculateChecksum(data []byte) uint16 {
	var sum uint16
	for _, b := range data {
		sum += uint16(b)
	}
	return sum
}

// ReverseBits converts between wire order (MSB first) and logical order.
// The operation is its own inverse.
func ReverseBits(data []byte) []byte {
	out := make([]byte, len(data))
	for i, b := range data {
		out[i] = bits.Reverse8(b)
	}
	return out
}
