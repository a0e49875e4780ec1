// Copyright © by the dnsdiff-fuzzer authors.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.
// SPDX-License-Identifier: Apache-2.0

package mutator

import (
	"math/rand/v2"
	"strings"
	"testing"
)

func newRNG(seed uint64) *rand.Rand {
	return rand.New(rand.NewPCG(seed, seed^0xabcdef))
}

func TestNewFuzzCaseIsMinimalAndSeedless(t *testing.T) {
	meta := NewFuzzCase(newRNG(1))
	if meta.HasParent {
		t.Fatal("a freshly generated case should have no parent")
	}
	if len(meta.LabelSet) != 5 {
		t.Fatalf("got %d labels want 5", len(meta.LabelSet))
	}
	fc := meta.FuzzCase
	if fc.ClientQuery == nil || len(fc.ClientQuery.Question) != 1 {
		t.Fatal("expected exactly one client query")
	}
	if fc.ClientQuery.Question[0].Qtype != 0x1 { // dns.TypeA
		t.Fatalf("got qtype %d want A", fc.ClientQuery.Question[0].Qtype)
	}
	if len(fc.ServerResponses) != 1 {
		t.Fatalf("got %d scripted responses want 1", len(fc.ServerResponses))
	}
	if len(fc.CheckCache) == 0 {
		t.Fatal("expected check_cache to be populated from the seed")
	}
}

func TestMutateStampsLineage(t *testing.T) {
	parent := NewFuzzCase(newRNG(2))
	child := Mutate(parent, newRNG(3))

	if !child.HasParent {
		t.Fatal("a mutated case must carry has_parent")
	}
	if child.DerivedFrom != parent.FuzzCase.ID {
		t.Fatal("derived_from must point at the parent's id")
	}
	if child.FuzzCase.ID == parent.FuzzCase.ID {
		t.Fatal("mutation must allocate a fresh id")
	}
}

func TestMutateLeavesParentUntouched(t *testing.T) {
	parent := NewFuzzCase(newRNG(4))
	originalName := parent.FuzzCase.ClientQuery.Question[0].Name

	for i := 0; i < 20; i++ {
		Mutate(parent, newRNG(uint64(100+i)))
	}

	if parent.FuzzCase.ClientQuery.Question[0].Name != originalName {
		t.Fatal("mutation must not modify the parent's FuzzCase in place")
	}
}

func TestRecomputeCheckCacheCoversAllOwnerNames(t *testing.T) {
	meta := NewFuzzCase(newRNG(5))
	fc := meta.FuzzCase
	fc.CheckCache = nil
	RecomputeCheckCache(fc)

	want := fc.ClientQuery.Question[0].Name
	found := false
	for _, k := range fc.CheckCache {
		if strings.EqualFold(k.Name, want) {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected check_cache to include the client query name %q", want)
	}
}

func TestMutateNameOfZoneApexIsNonEmpty(t *testing.T) {
	rng := newRNG(6)
	name := mutateName(rng, zoneSuffix)
	if name == "" {
		t.Fatal("mutateName should never return empty")
	}
}
