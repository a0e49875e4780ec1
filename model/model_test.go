// Copyright © by the dnsdiff-fuzzer authors.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.
// SPDX-License-Identifier: Apache-2.0

package model

import (
	"testing"

	"github.com/dnsdiff/fuzzer/ids"
	"github.com/miekg/dns"
)

func TestCheckCacheSetDedupsCaseInsensitiveNames(t *testing.T) {
	fc := &FuzzCase{
		CheckCache: []CacheKey{
			{Name: "Example.Com.", Type: dns.TypeA, Class: dns.ClassINET},
			{Name: "example.com.", Type: dns.TypeA, Class: dns.ClassINET},
			{Name: "example.com.", Type: dns.TypeAAAA, Class: dns.ClassINET},
		},
	}

	s := fc.CheckCacheSet()
	defer s.Close()
	if n := len(s.Slice()); n != 2 {
		t.Fatalf("expected 2 distinct cache keys, got %d", n)
	}
}

func TestFuzzResultValidatePanicsOnMismatch(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected Validate to panic on length mismatch")
		}
	}()
	r := &FuzzResult{
		FuzzeeQueries: []*dns.Msg{{}},
		ResponseIdxs:  nil,
	}
	r.Validate()
}

func TestFuzzResultSetResultFor(t *testing.T) {
	id := ids.New()
	rs := &FuzzResultSet{Results: []*FuzzResult{
		{ID: ids.New()},
		{ID: id},
	}}

	found, ok := rs.ResultFor(id)
	if !ok || found.ID != id {
		t.Fatalf("expected to find result for %s", id)
	}

	if _, ok := rs.ResultFor(ids.New()); ok {
		t.Fatal("expected no result for an unrelated id")
	}
}
