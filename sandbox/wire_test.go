// Copyright © by the dnsdiff-fuzzer authors.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.
// SPDX-License-Identifier: Apache-2.0

package sandbox

import (
	"testing"

	"github.com/dnsdiff/fuzzer/ids"
	"github.com/dnsdiff/fuzzer/model"
	"github.com/miekg/dns"
)

func TestToWireSuiteRoundTripsThroughWirePack(t *testing.T) {
	query := new(dns.Msg)
	query.SetQuestion("example.test.fuzz.", dns.TypeA)

	fc := &model.FuzzCase{ID: ids.New(), ClientQuery: query}
	suite := &model.FuzzSuite{ID: ids.New(), TestCases: []*model.FuzzCase{fc}}

	ws, err := ToWireSuite(suite)
	if err != nil {
		t.Fatalf("toWireSuite: %v", err)
	}
	if len(ws.Cases) != 1 {
		t.Fatalf("got %d cases want 1", len(ws.Cases))
	}

	back, err := UnpackMsg(ws.Cases[0].ClientQuery)
	if err != nil {
		t.Fatalf("UnpackMsg: %v", err)
	}
	if back.Question[0].Name != "example.test.fuzz." {
		t.Fatalf("got name %q", back.Question[0].Name)
	}
}

func TestFromWireResultSetDecodesQueries(t *testing.T) {
	resp := new(dns.Msg)
	resp.SetQuestion("x.test.fuzz.", dns.TypeA)
	resp.Response = true
	packed, err := resp.Pack()
	if err != nil {
		t.Fatalf("pack: %v", err)
	}

	wrs := &WireResultSet{
		ID: ids.New(),
		Results: []WireResult{
			{ID: ids.New(), FuzzeeResponse: packed, ResponseIdxs: []uint{0}},
		},
	}
	rs, err := FromWireResultSet(wrs)
	if err != nil {
		t.Fatalf("FromWireResultSet: %v", err)
	}
	if len(rs.Results) != 1 || rs.Results[0].FuzzeeResponse == nil {
		t.Fatal("expected one decoded result with a response")
	}
	if !rs.Results[0].FuzzeeResponse.Response {
		t.Fatal("expected decoded response to preserve QR bit")
	}
}
