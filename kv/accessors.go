// Copyright © by the dnsdiff-fuzzer authors.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.
// SPDX-License-Identifier: Apache-2.0

package kv

// GetString returns the string at key, or "" if absent or not a
// string. Convenience for rule guards that only care about a default.
func (m *ValueMap) GetString(key string) string {
	v := m.Get(key)
	if v.Kind() != KindString {
		return ""
	}
	return v.AsString()
}

// GetInteger returns the integer at key, or 0 if absent or not an
// integer.
func (m *ValueMap) GetInteger(key string) int64 {
	v := m.Get(key)
	if v.Kind() != KindInteger {
		return 0
	}
	return v.AsInteger()
}

// GetBoolean returns the boolean at key, or false if absent or not a
// boolean.
func (m *ValueMap) GetBoolean(key string) bool {
	v := m.Get(key)
	if v.Kind() != KindBoolean {
		return false
	}
	return v.AsBoolean()
}
