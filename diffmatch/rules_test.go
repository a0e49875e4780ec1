// Copyright © by the dnsdiff-fuzzer authors.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.
// SPDX-License-Identifier: Apache-2.0

package diffmatch

import (
	"testing"

	"github.com/dnsdiff/fuzzer/kv"
	"github.com/dnsdiff/fuzzer/model"
)

func TestCompareNoDifferenceWhenMapsIdentical(t *testing.T) {
	left := kv.NewValueMap()
	left.Set("response.rcode", kv.String("NOERROR"))
	right := kv.NewValueMap()
	right.Set("response.rcode", kv.String("NOERROR"))

	out := Compare(model.ResolverName("Bind9"), model.ResolverName("Unbound"), left, right)
	if out.Kind != NoDifference {
		t.Fatalf("got %v want NoDifference", out.Kind)
	}
}

func TestCompareExplainsResolverNameAndId(t *testing.T) {
	left := kv.NewValueMap()
	left.Set("resolver_name", kv.String("Bind9"))
	left.Set("response.header.id", kv.Integer(1))
	right := kv.NewValueMap()
	right.Set("resolver_name", kv.String("Unbound"))
	right.Set("response.header.id", kv.Integer(2))

	out := Compare(model.ResolverName("Bind9"), model.ResolverName("Unbound"), left, right)
	if out.Kind != KnownDifference {
		t.Fatalf("got %v want KnownDifference", out.Kind)
	}
}

func TestCompareReturnsFingerprintForUnexplainedDiff(t *testing.T) {
	left := kv.NewValueMap()
	left.Set("response.answer.0.rdata", kv.String("10.0.0.1"))
	right := kv.NewValueMap()
	right.Set("response.answer.0.rdata", kv.String("10.0.0.2"))

	out := Compare(model.ResolverName("Bind9"), model.ResolverName("Unbound"), left, right)
	if out.Kind != NewDifference {
		t.Fatalf("got %v want NewDifference", out.Kind)
	}
	if len(out.Fingerprint.KeyDiffs) != 1 || out.Fingerprint.KeyDiffs[0] != "response.answer.0.rdata" {
		t.Fatalf("unexpected key diffs: %v", out.Fingerprint.KeyDiffs)
	}
}

func TestCompareSwapsToCanonicalOrder(t *testing.T) {
	left := kv.NewValueMap()
	left.Set("marker", kv.String("left-as-passed"))
	right := kv.NewValueMap()
	right.Set("marker", kv.String("right-as-passed"))

	outA := Compare(model.ResolverName("Zeta"), model.ResolverName("Alpha"), left, right)
	outB := Compare(model.ResolverName("Alpha"), model.ResolverName("Zeta"), right, left)

	if !outA.Fingerprint.Equal(outB.Fingerprint) {
		t.Fatalf("expected swapped-argument comparisons to produce the same fingerprint")
	}
}

func TestFingerprintUnorderedAcrossSwap(t *testing.T) {
	l := kv.NewValueMap()
	l.Set("response.rcode", kv.String("NOERROR"))
	r := kv.NewValueMap()
	r.Set("response.rcode", kv.String("SERVFAIL"))

	fp1 := NewFingerprint([]string{"x"}, l, r)
	fp2 := NewFingerprint([]string{"x"}, r, l)
	if !fp1.Equal(fp2) {
		t.Fatalf("fingerprint should be invariant under left/right exchange")
	}
}

func TestReplicationScoreLadder(t *testing.T) {
	cases := []struct {
		size int
		want float64
	}{
		{1, 50}, {9, 50}, {10, 20}, {14, 20}, {15, 10}, {19, 10},
		{20, 5}, {29, 5}, {30, 1}, {49, 1}, {50, 0.1}, {59, 0.1}, {60, 0.001},
	}
	for _, tc := range cases {
		if got := ReplicationScore(tc.size); got != tc.want {
			t.Fatalf("size %d: got %v want %v", tc.size, got, tc.want)
		}
	}
}
