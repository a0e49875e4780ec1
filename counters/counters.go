// Copyright © by the dnsdiff-fuzzer authors.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.
// SPDX-License-Identifier: Apache-2.0

// Package counters implements the fixed-length saturating coverage
// vector shared by the sandbox executor (C5), the fuzzing loop's
// coverage accounting (C10), and the fuzzee control protocol (C4).
package counters

import (
	"crypto/sha256"
	"encoding/binary"
	"fmt"
)

// Counters is a fixed-length vector of non-negative 32-bit saturating
// values. Every binary operation requires both operands to share the
// same length; a mismatch is a programmer error and panics rather than
// returning an error.
type Counters struct {
	values []uint32
}

// New returns a Counters of the given length, every slot initialized to
// init.
func New(length int, init uint32) Counters {
	v := make([]uint32, length)
	if init != 0 {
		for i := range v {
			v[i] = init
		}
	}
	return Counters{values: v}
}

// FromSlice wraps an existing slice without copying it.
func FromSlice(values []uint32) Counters {
	return Counters{values: values}
}

// Len returns the number of counter slots.
func (c Counters) Len() int {
	return len(c.values)
}

// Slice exposes the underlying values. Callers must not mutate the
// returned slice.
func (c Counters) Slice() []uint32 {
	return c.values
}

func requireSameLength(a, b Counters) {
	if len(a.values) != len(b.values) {
		panic(fmt.Sprintf("counters: length mismatch: %d vs %d", len(a.values), len(b.values)))
	}
}

// Add returns the element-wise saturating sum of a and b.
func Add(a, b Counters) Counters {
	requireSameLength(a, b)
	out := make([]uint32, len(a.values))
	for i := range out {
		out[i] = saturatingAdd(a.values[i], b.values[i])
	}
	return Counters{values: out}
}

func saturatingAdd(a, b uint32) uint32 {
	sum := uint64(a) + uint64(b)
	if sum > uint64(^uint32(0)) {
		return ^uint32(0)
	}
	return uint32(sum)
}

// Min returns the element-wise minimum of a and b.
func Min(a, b Counters) Counters {
	requireSameLength(a, b)
	out := make([]uint32, len(a.values))
	for i := range out {
		if a.values[i] < b.values[i] {
			out[i] = a.values[i]
		} else {
			out[i] = b.values[i]
		}
	}
	return Counters{values: out}
}

// Max returns the element-wise maximum of a and b.
func Max(a, b Counters) Counters {
	requireSameLength(a, b)
	out := make([]uint32, len(a.values))
	for i := range out {
		if a.values[i] > b.values[i] {
			out[i] = a.values[i]
		} else {
			out[i] = b.values[i]
		}
	}
	return Counters{values: out}
}

// DiscardByPattern zeroes every slot of c for which pattern is non-zero,
// returning the result. c and pattern must share the same length.
func (c Counters) DiscardByPattern(pattern Counters) Counters {
	requireSameLength(c, pattern)
	out := make([]uint32, len(c.values))
	copy(out, c.values)
	for i, p := range pattern.values {
		if p > 0 {
			out[i] = 0
		}
	}
	return Counters{values: out}
}

// ShrinkByPattern returns a new, shorter Counters containing only the
// positions where pattern is non-zero, in order. c and pattern must
// share the same length.
func (c Counters) ShrinkByPattern(pattern Counters) Counters {
	requireSameLength(c, pattern)
	out := make([]uint32, 0, len(c.values))
	for i, p := range pattern.values {
		if p > 0 {
			out = append(out, c.values[i])
		}
	}
	return Counters{values: out}
}

// ToBinary maps every value greater than zero to 1, leaving zero as
// zero.
func (c Counters) ToBinary() Counters {
	out := make([]uint32, len(c.values))
	for i, v := range c.values {
		if v > 0 {
			out[i] = 1
		}
	}
	return Counters{values: out}
}

// HasAny reports whether any slot is greater than zero.
func (c Counters) HasAny() bool {
	for _, v := range c.values {
		if v > 0 {
			return true
		}
	}
	return false
}

// CountNonzero returns the number of slots greater than zero.
func (c Counters) CountNonzero() int {
	n := 0
	for _, v := range c.values {
		if v > 0 {
			n++
		}
	}
	return n
}

// Equal reports element-wise equality. Counters of different lengths
// are never equal.
func (c Counters) Equal(other Counters) bool {
	if len(c.values) != len(other.values) {
		return false
	}
	for i, v := range c.values {
		if other.values[i] != v {
			return false
		}
	}
	return true
}

// Hash returns the SHA-256 digest over the little-endian bytes of every
// counter value, in order.
func (c Counters) Hash() [32]byte {
	h := sha256.New()
	var buf [4]byte
	for _, v := range c.values {
		binary.LittleEndian.PutUint32(buf[:], v)
		h.Write(buf[:])
	}
	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out
}

// Clone returns an independent copy.
func (c Counters) Clone() Counters {
	out := make([]uint32, len(c.values))
	copy(out, c.values)
	return Counters{values: out}
}
