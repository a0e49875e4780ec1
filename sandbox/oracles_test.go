// Copyright © by the dnsdiff-fuzzer authors.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.
// SPDX-License-Identifier: Apache-2.0

package sandbox

import (
	"testing"

	"github.com/dnsdiff/fuzzer/model"
	"github.com/miekg/dns"
)

func TestOraclesCrashedResolver(t *testing.T) {
	o := Oracles(&model.FuzzResult{FuzzeeResponse: nil})
	if !o.CrashedResolver {
		t.Fatal("expected crashed_resolver when no response was produced")
	}
}

func TestOraclesExcessiveQueries(t *testing.T) {
	queries := make([]*dns.Msg, 16)
	for i := range queries {
		queries[i] = new(dns.Msg)
	}
	resp := new(dns.Msg)
	o := Oracles(&model.FuzzResult{FuzzeeResponse: resp, FuzzeeQueries: queries})
	if !o.ExcessiveQueries {
		t.Fatal("expected excessive_queries beyond the threshold")
	}
}

func TestOraclesDuplicateRecords(t *testing.T) {
	rr := &dns.A{Hdr: dns.RR_Header{Name: "a.example.", Rrtype: dns.TypeA, Class: dns.ClassINET, Ttl: 60}, A: []byte{1, 2, 3, 4}}
	resp := new(dns.Msg)
	resp.Answer = []dns.RR{rr, dns.Copy(rr)}
	o := Oracles(&model.FuzzResult{FuzzeeResponse: resp})
	if !o.DuplicateRecords {
		t.Fatal("expected duplicate_records for two identical answer RRs")
	}
}

func TestOraclesRespondsToResponse(t *testing.T) {
	q := new(dns.Msg)
	q.Response = true
	o := Oracles(&model.FuzzResult{FuzzeeResponse: new(dns.Msg), FuzzeeQueries: []*dns.Msg{q}})
	if !o.RespondsToResponse {
		t.Fatal("expected responds_to_response when an upstream message has QR=1")
	}
}

func TestOraclesCleanResultHasNoFlags(t *testing.T) {
	resp := new(dns.Msg)
	resp.Answer = []dns.RR{&dns.A{Hdr: dns.RR_Header{Name: "a.example.", Rrtype: dns.TypeA, Class: dns.ClassINET, Ttl: 60}, A: []byte{1, 2, 3, 4}}}
	o := Oracles(&model.FuzzResult{FuzzeeResponse: resp})
	if o.CrashedResolver || o.ExcessiveQueries || o.ExcessiveAnswerRecords || o.DuplicateRecords || o.RespondsToResponse {
		t.Fatalf("expected no oracle flags, got %+v", o)
	}
}
