// Copyright © by the dnsdiff-fuzzer authors.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.
// SPDX-License-Identifier: Apache-2.0

package diffmatch

import (
	"testing"

	"github.com/dnsdiff/fuzzer/kv"
)

func vm(pairs ...interface{}) *kv.ValueMap {
	m := kv.NewValueMap()
	for i := 0; i+1 < len(pairs); i += 2 {
		m.Set(pairs[i].(string), kv.Integer(int64(pairs[i+1].(int))))
	}
	return m
}

func TestZipSortedEmpty(t *testing.T) {
	if got := ZipSorted(kv.NewValueMap(), kv.NewValueMap()); len(got) != 0 {
		t.Fatalf("expected empty merge, got %d", len(got))
	}
}

func TestZipSortedOnlyLeft(t *testing.T) {
	left := vm("0", 0, "1", 11, "2", 22, "5", 55, "9", 99)
	got := ZipSorted(left, kv.NewValueMap())
	if len(got) != 5 {
		t.Fatalf("got %d entries want 5", len(got))
	}
	for _, j := range got {
		if !j.HasL || j.HasR {
			t.Fatalf("entry %q: expected left-only", j.Key)
		}
	}
}

func TestZipSortedMergeRightLonger(t *testing.T) {
	left := vm("0", 0, "1", 11, "2", 22, "5", 55, "9", 99)
	right := vm("0", 0, "2", 222, "3", 333, "5", 555, "7", 777, "9", 999, "10", 0)
	got := ZipSorted(left, right)

	wantKeys := []string{"0", "1", "2", "3", "5", "7", "9", "10"}
	if len(got) != len(wantKeys) {
		t.Fatalf("got %d entries want %d", len(got), len(wantKeys))
	}
	for i, w := range wantKeys {
		if got[i].Key != w {
			t.Fatalf("index %d: got key %q want %q", i, got[i].Key, w)
		}
	}
	if !got[0].HasL || !got[0].HasR {
		t.Fatalf("key 0 should be present on both sides")
	}
	if !got[1].HasL || got[1].HasR {
		t.Fatalf("key 1 should be left-only")
	}
	if got[3].HasL || !got[3].HasR {
		t.Fatalf("key 3 should be right-only")
	}
}

func TestDiffKeysOnlyReportsDisagreement(t *testing.T) {
	left := vm("a", 1, "b", 2, "c", 3)
	right := vm("a", 1, "b", 20)
	diffs := DiffKeys(left, right)
	want := map[string]bool{"b": true, "c": true}
	if len(diffs) != len(want) {
		t.Fatalf("got %v want keys %v", diffs, want)
	}
	for _, k := range diffs {
		if !want[k] {
			t.Fatalf("unexpected diff key %q", k)
		}
	}
}
