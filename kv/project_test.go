// Copyright © by the dnsdiff-fuzzer authors.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.
// SPDX-License-Identifier: Apache-2.0

package kv

import (
	"testing"

	"github.com/dnsdiff/fuzzer/ids"
	"github.com/dnsdiff/fuzzer/model"
	"github.com/miekg/dns"
)

func TestNaturalLessOrdersNumericSegments(t *testing.T) {
	keys := []string{"answer.10.ttl", "answer.2.ttl", "answer.1.ttl"}
	if !NaturalLess(keys[2], keys[1]) {
		t.Fatalf("expected %q < %q", keys[2], keys[1])
	}
	if !NaturalLess(keys[1], keys[0]) {
		t.Fatalf("expected %q < %q", keys[1], keys[0])
	}
}

func TestValueMapKeysAreSortedNaturally(t *testing.T) {
	m := NewValueMap()
	m.Set("answer.10.ttl", Integer(1))
	m.Set("answer.2.ttl", Integer(2))
	m.Set("answer.1.ttl", Integer(3))

	keys := m.Keys()
	want := []string{"answer.1.ttl", "answer.2.ttl", "answer.10.ttl"}
	for i, w := range want {
		if keys[i] != w {
			t.Fatalf("index %d: got %q want %q", i, keys[i], w)
		}
	}
}

func TestProjectBasicFields(t *testing.T) {
	query := new(dns.Msg)
	query.SetQuestion("example.com.", dns.TypeA)
	query.RecursionDesired = true

	fc := &model.FuzzCase{ID: ids.New(), ClientQuery: query}

	resp := new(dns.Msg)
	resp.SetReply(query)
	resp.Authoritative = false
	resp.Answer = append(resp.Answer, &dns.A{
		Hdr: dns.RR_Header{Name: "example.com.", Rrtype: dns.TypeA, Class: dns.ClassINET, Ttl: 300},
		A:   []byte{93, 184, 216, 34},
	})

	fr := &model.FuzzResult{
		ID:             fc.ID,
		FuzzeeResponse: resp,
		Oracles:        model.OracleResults{},
	}

	m := Project(fc, model.ResolverName("Unbound"), fr, nil)

	if got := m.Get("resolver_name"); got.AsString() != "Unbound" {
		t.Fatalf("got resolver_name %v want Unbound", got)
	}
	if got := m.Get("client_query.question.0.name"); got.AsString() != "example.com." {
		t.Fatalf("got question name %v", got)
	}
	if got := m.Get("response.answer.0.ttl"); got.AsInteger() != 300 {
		t.Fatalf("got ttl %v want 300", got)
	}
	if got := m.Get("response.#count"); !got.IsMissing() {
		t.Fatalf("unexpected response.#count entry: %v", got)
	}
	if got := m.Get("response.answer.#count"); got.AsInteger() != 1 {
		t.Fatalf("got answer count %v want 1", got)
	}
	if got := m.Get("no.such.key"); !got.IsMissing() {
		t.Fatalf("expected Missing for absent key, got %v", got)
	}
}

func TestResponseIndexNoneRendersAsSentinel(t *testing.T) {
	v := responseIndexValue(model.ResponseIndexNone)
	if v.Kind() != KindString || v.AsString() != StringSentinelMax {
		t.Fatalf("got %v want sentinel string", v)
	}
	v2 := responseIndexValue(3)
	if v2.Kind() != KindInteger || v2.AsInteger() != 3 {
		t.Fatalf("got %v want integer 3", v2)
	}
}
