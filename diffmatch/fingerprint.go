// Copyright © by the dnsdiff-fuzzer authors.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.
// SPDX-License-Identifier: Apache-2.0

package diffmatch

import (
	"sort"
	"strings"

	"github.com/dnsdiff/fuzzer/kv"
)

// headerFieldCount is the number of response-header fields captured
// in a fingerprint's special fields: additional_count,
// answer_count, authentic_data, authoritative, checking_disabled,
// message_type, name_server_count, op_code, query_count,
// recursion_available, recursion_desired, response_code, truncated.
// The DNS id is deliberately excluded.
const headerFieldCount = 13

var headerFieldKeys = [headerFieldCount]string{
	"response.additional.#count",
	"response.answer.#count",
	"response.flags.authenticated_data",
	"response.flags.authoritative",
	"response.flags.checking_disabled",
	"response.flags.response",
	"response.authority.#count",
	"response.opcode",
	"response.question.#count",
	"response.flags.recursion_available",
	"response.flags.recursion_desired",
	"response.rcode",
	"response.flags.truncated",
}

// headerTuple is the fixed-size snapshot of the 13 header fields for
// one side of a comparison.
type headerTuple [headerFieldCount]kv.Value

func extractHeaderTuple(m *kv.ValueMap) headerTuple {
	var t headerTuple
	for i, k := range headerFieldKeys {
		t[i] = m.Get(k)
	}
	return t
}

func (t headerTuple) equal(other headerTuple) bool {
	for i := range t {
		if !t[i].Equal(other[i]) {
			return false
		}
	}
	return true
}

func (t headerTuple) less(other headerTuple) bool {
	for i := range t {
		if t[i].Equal(other[i]) {
			continue
		}
		return t[i].String() < other[i].String()
	}
	return false
}

// UnorderedHeaderPair holds the two sides' header tuples with equality
// and ordering that do not care which side is "left" and which is
// "right" — swapping left and right yields the same fingerprint,
// since a resolver pair is unordered.
type UnorderedHeaderPair struct {
	a, b headerTuple
}

func newUnorderedHeaderPair(left, right headerTuple) UnorderedHeaderPair {
	if left.less(right) {
		return UnorderedHeaderPair{a: left, b: right}
	}
	return UnorderedHeaderPair{a: right, b: left}
}

// Equal reports whether two unordered pairs hold the same two tuples,
// regardless of which was originally "left" or "right".
func (p UnorderedHeaderPair) Equal(other UnorderedHeaderPair) bool {
	return p.a.equal(other.a) && p.b.equal(other.b)
}

// Fingerprint is the stable identity assigned to an unexplained
// difference: the sorted set of dotted keys that no rule explained
// (with cache_state entries excluded), plus the
// unordered pair of 13-field response header snapshots.
type Fingerprint struct {
	KeyDiffs      []string
	SpecialFields UnorderedHeaderPair
}

// NewFingerprint builds a Fingerprint from the unexplained keys and
// the two sides' projections. cache_state keys are excluded from
// KeyDiffs by definition.
func NewFingerprint(unexplained []string, left, right *kv.ValueMap) Fingerprint {
	keys := make([]string, 0, len(unexplained))
	for _, k := range unexplained {
		if strings.Contains(k, "cache_state.") {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	return Fingerprint{
		KeyDiffs:      keys,
		SpecialFields: newUnorderedHeaderPair(extractHeaderTuple(left), extractHeaderTuple(right)),
	}
}

// Equal reports whether two fingerprints are the same: same sorted
// key-diff set, and header tuples equal as an unordered pair.
func (f Fingerprint) Equal(other Fingerprint) bool {
	if len(f.KeyDiffs) != len(other.KeyDiffs) {
		return false
	}
	for i := range f.KeyDiffs {
		if f.KeyDiffs[i] != other.KeyDiffs[i] {
			return false
		}
	}
	return f.SpecialFields.Equal(other.SpecialFields)
}

// CacheKey renders a Fingerprint into a single comparable string
// suitable for use as a key of the fuzzing loop's fingerprints map and
// as the value fed into its Stable Bloom Filter.
func (f Fingerprint) CacheKey() string {
	var b strings.Builder
	for _, k := range f.KeyDiffs {
		b.WriteString(k)
		b.WriteByte('\x1f')
	}
	b.WriteByte('\x00')
	for _, v := range f.SpecialFields.a {
		b.WriteString(v.String())
		b.WriteByte('\x1f')
	}
	b.WriteByte('\x00')
	for _, v := range f.SpecialFields.b {
		b.WriteString(v.String())
		b.WriteByte('\x1f')
	}
	return b.String()
}

// ReplicationScore maps a fingerprint's case-set size to the
// replicated-finding score ladder used during verification.
func ReplicationScore(setSize int) float64 {
	switch {
	case setSize <= 9:
		return 50
	case setSize <= 14:
		return 20
	case setSize <= 19:
		return 10
	case setSize <= 29:
		return 5
	case setSize <= 49:
		return 1
	case setSize <= 59:
		return 0.1
	default:
		return 0.001
	}
}
