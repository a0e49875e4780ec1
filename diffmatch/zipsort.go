// Copyright © by the dnsdiff-fuzzer authors.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.
// SPDX-License-Identifier: Apache-2.0

// Package diffmatch implements the differential matcher (C7): the
// zip-sort merge of two key-value projections, the rule-based
// classifier that explains known benign differences, and the stable
// fingerprint produced for whatever a resolver pair leaves unexplained.
package diffmatch

import "github.com/dnsdiff/fuzzer/kv"

// Joined is one step of a ZipSorted merge: a key present on at least
// one side, with the side(s) it was present on.
type Joined struct {
	Key   string
	Left  kv.Value
	Right kv.Value
	HasL  bool
	HasR  bool
}

// ZipSorted merges two naturally-ordered key sequences into a single
// strictly-increasing sequence of Joined triples: a key present on
// both sides is emitted once with both values; a key present on only
// one side is emitted alone. Every input pair appears exactly once,
// grounded on the merge-join behavior of zip_sorted in the original
// implementation.
func ZipSorted(left, right *kv.ValueMap) []Joined {
	lk := left.Keys()
	rk := right.Keys()
	out := make([]Joined, 0, len(lk)+len(rk))

	i, j := 0, 0
	for i < len(lk) && j < len(rk) {
		switch {
		case lk[i] == rk[j]:
			out = append(out, Joined{Key: lk[i], Left: left.Get(lk[i]), Right: right.Get(rk[j]), HasL: true, HasR: true})
			i++
			j++
		case kv.NaturalLess(lk[i], rk[j]):
			out = append(out, Joined{Key: lk[i], Left: left.Get(lk[i]), HasL: true})
			i++
		default:
			out = append(out, Joined{Key: rk[j], Right: right.Get(rk[j]), HasR: true})
			j++
		}
	}
	for ; i < len(lk); i++ {
		out = append(out, Joined{Key: lk[i], Left: left.Get(lk[i]), HasL: true})
	}
	for ; j < len(rk); j++ {
		out = append(out, Joined{Key: rk[j], Right: right.Get(rk[j]), HasR: true})
	}
	return out
}

// DiffKeys runs ZipSorted and returns the subset of keys where the two
// sides disagree: present on only one side, or present on both with
// unequal values.
func DiffKeys(left, right *kv.ValueMap) []string {
	var keys []string
	for _, j := range ZipSorted(left, right) {
		if !j.HasL || !j.HasR || !j.Left.Equal(j.Right) {
			keys = append(keys, j.Key)
		}
	}
	return keys
}
