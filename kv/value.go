// Copyright © by the dnsdiff-fuzzer authors.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.
// SPDX-License-Identifier: Apache-2.0

// Package kv implements the key-value projection (C6): a deterministic
// flattening of a (FuzzCase, ResolverName, FuzzResult) tuple into a
// stable, naturally-sorted map of dotted keys to typed values.
package kv

import "fmt"

// Kind discriminates the tagged union a Value holds.
type Kind uint8

const (
	KindMissing Kind = iota
	KindString
	KindInteger
	KindBoolean
)

// Value is the leaf type of a ValueMap: String, Integer, Boolean, or
// Missing. Indexing a key absent from the map yields Missing rather
// than a lookup failure.
type Value struct {
	kind Kind
	str  string
	i    int64
	b    bool
}

// Missing is the value returned for any key not present in a ValueMap.
var Missing = Value{kind: KindMissing}

// String constructs a string-valued Value. Used for names, enum tags,
// classes, types, and canonically-rendered rdata.
func String(s string) Value { return Value{kind: KindString, str: s} }

// Integer constructs an integer-valued Value. Used for TTLs, counts,
// ports, and the "usize::MAX" sentinel rendered as a string instead
// (see StringSentinelMax).
func Integer(i int64) Value { return Value{kind: KindInteger, i: i} }

// Boolean constructs a boolean-valued Value.
func Boolean(b bool) Value { return Value{kind: KindBoolean, b: b} }

// Kind reports which variant v holds.
func (v Value) Kind() Kind { return v.kind }

// IsMissing reports whether v is the Missing sentinel.
func (v Value) IsMissing() bool { return v.kind == KindMissing }

// AsString returns the string payload; only meaningful when Kind() ==
// KindString.
func (v Value) AsString() string { return v.str }

// AsInteger returns the integer payload; only meaningful when Kind() ==
// KindInteger.
func (v Value) AsInteger() int64 { return v.i }

// AsBoolean returns the boolean payload; only meaningful when Kind() ==
// KindBoolean.
func (v Value) AsBoolean() bool { return v.b }

// Equal reports whether two values are the same kind and payload.
func (v Value) Equal(other Value) bool {
	if v.kind != other.kind {
		return false
	}
	switch v.kind {
	case KindString:
		return v.str == other.str
	case KindInteger:
		return v.i == other.i
	case KindBoolean:
		return v.b == other.b
	default:
		return true // both Missing
	}
}

func (v Value) String() string {
	switch v.kind {
	case KindMissing:
		return "<missing>"
	case KindString:
		return v.str
	case KindInteger:
		return fmt.Sprintf("%d", v.i)
	case KindBoolean:
		return fmt.Sprintf("%t", v.b)
	default:
		return "<invalid>"
	}
}

// StringSentinelMax is how ResponseIndexNone (model.ResponseIndexNone)
// is rendered by the key-value projection.
const StringSentinelMax = "usize::MAX"
