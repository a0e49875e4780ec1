// Copyright © by the dnsdiff-fuzzer authors.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.
// SPDX-License-Identifier: Apache-2.0

package kv

import (
	"sort"
	"strconv"
	"strings"
)

// ValueMap is a flat, dotted-key projection of a fuzzing outcome. Keys
// are ordinary strings ("answer.0.ttl"); iteration order is the
// natural collation order defined by Keys, not insertion order, so
// that two ValueMaps built from structurally identical data always
// render identically regardless of traversal order.
type ValueMap struct {
	entries map[string]Value
}

// NewValueMap returns an empty ValueMap.
func NewValueMap() *ValueMap {
	return &ValueMap{entries: make(map[string]Value)}
}

// Set stores value under key, overwriting any previous entry.
func (m *ValueMap) Set(key string, value Value) {
	m.entries[key] = value
}

// SetCount records a "<prefix>.#count" auxiliary key, the convention
// used for the length of a variable-length sequence projected under
// prefix.
func (m *ValueMap) SetCount(prefix string, n int) {
	m.Set(prefix+".#count", Integer(int64(n)))
}

// SetSize records a "<prefix>.#size" auxiliary key, used for the byte
// length of a wire-encoded field projected under prefix.
func (m *ValueMap) SetSize(prefix string, n int) {
	m.Set(prefix+".#size", Integer(int64(n)))
}

// Get looks up key, returning Missing if absent.
func (m *ValueMap) Get(key string) Value {
	if v, ok := m.entries[key]; ok {
		return v
	}
	return Missing
}

// Has reports whether key is present (even if its value's kind is
// not what the caller expects).
func (m *ValueMap) Has(key string) bool {
	_, ok := m.entries[key]
	return ok
}

// Len returns the number of stored keys.
func (m *ValueMap) Len() int { return len(m.entries) }

// Keys returns every stored key in natural collation order: dotted
// segments compare as integers when both sides parse as one, and as
// plain strings otherwise. This keeps "answer.2.ttl" sorting before
// "answer.10.ttl", an ordering guarantee relied upon by zipsort's
// merge (see diffmatch.ZipSorted).
func (m *ValueMap) Keys() []string {
	out := make([]string, 0, len(m.entries))
	for k := range m.entries {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool { return NaturalLess(out[i], out[j]) })
	return out
}

// Merge copies every entry of other into m, prefixing each key with
// prefix (prefix is used as-is; callers pass "" for no prefix, or a
// dotted segment like "resolver" to nest a sub-projection).
func (m *ValueMap) Merge(prefix string, other *ValueMap) {
	for k, v := range other.entries {
		if prefix == "" {
			m.entries[k] = v
		} else {
			m.entries[prefix+"."+k] = v
		}
	}
}

// NaturalLess implements the natural-order comparison used by Keys and
// by ZipSorted to merge two independently-sorted key sequences: split
// both strings on '.', then on digit/non-digit runs within each
// segment, and compare segment-by-segment, numerically where both
// sides are numeric.
func NaturalLess(a, b string) bool {
	as := splitNatural(a)
	bs := splitNatural(b)
	for i := 0; i < len(as) && i < len(bs); i++ {
		if as[i] == bs[i] {
			continue
		}
		an, aerr := strconv.ParseUint(as[i], 10, 64)
		bn, berr := strconv.ParseUint(bs[i], 10, 64)
		if aerr == nil && berr == nil {
			if an != bn {
				return an < bn
			}
			continue
		}
		return as[i] < bs[i]
	}
	return len(as) < len(bs)
}

// splitNatural splits s on '.' and, within each dotted segment, on the
// boundary between digit and non-digit runs, so "rrset10" and
// "rrset2" compare by the numeric suffix.
func splitNatural(s string) []string {
	var parts []string
	for _, seg := range strings.Split(s, ".") {
		parts = append(parts, splitDigitRuns(seg)...)
	}
	return parts
}

func splitDigitRuns(seg string) []string {
	if seg == "" {
		return []string{seg}
	}
	var parts []string
	start := 0
	digit := isDigit(seg[0])
	for i := 1; i < len(seg); i++ {
		d := isDigit(seg[i])
		if d != digit {
			parts = append(parts, seg[start:i])
			start = i
			digit = d
		}
	}
	parts = append(parts, seg[start:])
	return parts
}

func isDigit(c byte) bool { return c >= '0' && c <= '9' }
