// Copyright © by the dnsdiff-fuzzer authors.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.
// SPDX-License-Identifier: Apache-2.0

package dnsauth

import (
	"testing"

	"github.com/dnsdiff/fuzzer/model"
	"github.com/miekg/dns"
)

// TestScriptedMatch mirrors scenario S1: a scripted response for
// ex.example. IN A should be served, with its id stamped to the
// incoming request's, and the served index recorded as 0.
func TestScriptedMatch(t *testing.T) {
	s := NewScripted(nil)

	scripted := new(dns.Msg)
	scripted.SetQuestion("ex.example.", dns.TypeA)
	scripted.Answer = append(scripted.Answer, &dns.A{
		Hdr: dns.RR_Header{Name: "ex.example.", Rrtype: dns.TypeA, Class: dns.ClassINET, Ttl: 60},
	})
	s.SetFuzzingResponse([]*dns.Msg{scripted})

	req := new(dns.Msg)
	req.SetQuestion("ex.example.", dns.TypeA)
	req.Id = 123

	resp, err := s.createResponse(req)
	if err != nil {
		t.Fatalf("createResponse: %v", err)
	}
	if resp.Id != 123 {
		t.Fatalf("got id %d want 123", resp.Id)
	}
	if len(resp.Answer) != 1 {
		t.Fatalf("expected the scripted answer to be copied, got %d RRs", len(resp.Answer))
	}

	_, idxs := s.GetQueryList()
	if len(idxs) != 1 || idxs[0] != 0 {
		t.Fatalf("got answer_index %v want [0]", idxs)
	}
}

// TestScriptedDefaultNODATA mirrors scenario S2.
func TestScriptedDefaultNODATA(t *testing.T) {
	s := NewScripted(nil)
	s.SetFuzzingResponse(nil)

	req := new(dns.Msg)
	req.SetQuestion("foo.bar.0001.fuzz.", dns.TypeAAAA)
	req.Id = 42

	resp, err := s.createResponse(req)
	if err != nil {
		t.Fatalf("createResponse: %v", err)
	}
	if resp.Rcode != dns.RcodeSuccess {
		t.Fatalf("got rcode %d want NoError", resp.Rcode)
	}
	if len(resp.Answer) != 0 {
		t.Fatalf("expected empty answer section, got %d", len(resp.Answer))
	}
	if len(resp.Ns) != 1 {
		t.Fatalf("expected exactly one SOA in authority, got %d", len(resp.Ns))
	}
	soa, ok := resp.Ns[0].(*dns.SOA)
	if !ok {
		t.Fatalf("expected SOA, got %T", resp.Ns[0])
	}
	if soa.Hdr.Name != "0001.fuzz." {
		t.Fatalf("got SOA owner %q want 0001.fuzz.", soa.Hdr.Name)
	}
	if soa.Hdr.Ttl != 300 {
		t.Fatalf("got TTL %d want 300", soa.Hdr.Ttl)
	}
	if soa.Ns != "private.server." || soa.Mbox != "testing.test." {
		t.Fatalf("unexpected SOA rdata: %+v", soa)
	}

	_, idxs := s.GetQueryList()
	if len(idxs) != 1 || idxs[0] != model.ResponseIndexNone {
		t.Fatalf("got answer_index %v want [ResponseIndexNone]", idxs)
	}
}

func TestGetQueryListDrainsAtomically(t *testing.T) {
	s := NewScripted(nil)
	req := new(dns.Msg)
	req.SetQuestion("a.test.", dns.TypeA)
	if _, err := s.createResponse(req); err != nil {
		t.Fatal(err)
	}

	queries, idxs := s.GetQueryList()
	if len(queries) != 1 || len(idxs) != 1 {
		t.Fatalf("expected one drained query, got %d/%d", len(queries), len(idxs))
	}

	queries2, idxs2 := s.GetQueryList()
	if len(queries2) != 0 || len(idxs2) != 0 {
		t.Fatal("expected the second drain to be empty")
	}
}
