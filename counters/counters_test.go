// Copyright © by the dnsdiff-fuzzer authors.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.
// SPDX-License-Identifier: Apache-2.0

package counters

import (
	"math"
	"testing"

	"github.com/fxamacker/cbor/v2"
)

func TestAddSaturates(t *testing.T) {
	a := FromSlice([]uint32{1, math.MaxUint32 - 1, 0})
	b := FromSlice([]uint32{2, 5, 0})

	got := Add(a, b)
	want := []uint32{3, math.MaxUint32, 0}
	for i, w := range want {
		if got.Slice()[i] != w {
			t.Fatalf("index %d: got %d want %d", i, got.Slice()[i], w)
		}
	}
}

func TestAddLengthMismatchPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic on length mismatch")
		}
	}()
	Add(New(2, 0), New(3, 0))
}

func TestShrinkByPatternMatchesFilter(t *testing.T) {
	c := FromSlice([]uint32{10, 20, 30, 40})
	pattern := FromSlice([]uint32{0, 1, 0, 7})

	shrunk := c.ShrinkByPattern(pattern)
	want := []uint32{20, 40}
	if shrunk.Len() != len(want) {
		t.Fatalf("got len %d want %d", shrunk.Len(), len(want))
	}
	for i, w := range want {
		if shrunk.Slice()[i] != w {
			t.Fatalf("index %d: got %d want %d", i, shrunk.Slice()[i], w)
		}
	}
}

func TestDiscardByPatternLeavesZerosUnchanged(t *testing.T) {
	c := FromSlice([]uint32{10, 20, 30})
	pattern := FromSlice([]uint32{0, 5, 0})

	discarded := c.DiscardByPattern(pattern)
	want := []uint32{10, 0, 30}
	for i, w := range want {
		if discarded.Slice()[i] != w {
			t.Fatalf("index %d: got %d want %d", i, discarded.Slice()[i], w)
		}
	}
}

func TestToBinary(t *testing.T) {
	c := FromSlice([]uint32{0, 1, 5, 0})
	bin := c.ToBinary()
	want := []uint32{0, 1, 1, 0}
	for i, w := range want {
		if bin.Slice()[i] != w {
			t.Fatalf("index %d: got %d want %d", i, bin.Slice()[i], w)
		}
	}
}

func TestHasAnyAndCountNonzero(t *testing.T) {
	if New(4, 0).HasAny() {
		t.Fatal("all-zero counters should not HasAny")
	}
	c := FromSlice([]uint32{0, 0, 3, 0, 9})
	if !c.HasAny() {
		t.Fatal("expected HasAny true")
	}
	if n := c.CountNonzero(); n != 2 {
		t.Fatalf("got %d want 2", n)
	}
}

func TestEqual(t *testing.T) {
	a := FromSlice([]uint32{1, 2, 3})
	b := FromSlice([]uint32{1, 2, 3})
	c := FromSlice([]uint32{1, 2, 4})
	if !a.Equal(b) {
		t.Fatal("expected equal")
	}
	if a.Equal(c) {
		t.Fatal("expected not equal")
	}
	if a.Equal(FromSlice([]uint32{1, 2})) {
		t.Fatal("different lengths must not be equal")
	}
}

func TestCBORRoundTrip(t *testing.T) {
	c := FromSlice([]uint32{7, 0, 1 << 20, math.MaxUint32})

	data, err := cbor.Marshal(c)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var got Counters
	if err := cbor.Unmarshal(data, &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !got.Equal(c) {
		t.Fatalf("round-trip mismatch: got %v want %v", got.Slice(), c.Slice())
	}
}
