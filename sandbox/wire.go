// Copyright © by the dnsdiff-fuzzer authors.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.
// SPDX-License-Identifier: Apache-2.0

package sandbox

import (
	"fmt"

	"github.com/dnsdiff/fuzzer/counters"
	"github.com/dnsdiff/fuzzer/ids"
	"github.com/dnsdiff/fuzzer/model"
	"github.com/miekg/dns"
)

// The Wire* types below are what actually crosses the sandbox
// boundary: every dns.Msg is packed to its wire bytes first, since
// dns.RR is an interface and the CBOR codec has no way to know which
// concrete record type to allocate on decode without one. Framing
// (suite in, result set out) stays CBOR; the DNS messages inside ride
// as opaque blobs re-parsed with dns.Msg.Unpack on each side.
//
// Both the orchestrating side (Pool.Run) and the in-sandbox agent
// (cmd/fuzzee-agent) decode and encode these same shapes, so they are
// exported rather than kept private to this package.

type WireCase struct {
	ID              ids.FuzzCaseId
	ClientQuery     []byte
	ServerResponses [][]byte
	CheckCache      []model.CacheKey
}

type WireSuite struct {
	ID    ids.FuzzSuiteId
	Cases []WireCase
}

type WireResult struct {
	ID             ids.FuzzCaseId
	Counters       []uint32
	CacheState     model.CacheState
	FuzzeeResponse []byte
	FuzzeeQueries  [][]byte
	ResponseIdxs   []uint
}

type WireResultSet struct {
	ID      ids.FuzzSuiteId
	Results []WireResult
}

// PackMsg packs msg to wire bytes, or returns nil for a nil message.
func PackMsg(msg *dns.Msg) ([]byte, error) {
	if msg == nil {
		return nil, nil
	}
	return msg.Pack()
}

// UnpackMsg parses wire bytes back into a dns.Msg, or returns nil for
// an empty byte slice.
func UnpackMsg(data []byte) (*dns.Msg, error) {
	if len(data) == 0 {
		return nil, nil
	}
	msg := new(dns.Msg)
	if err := msg.Unpack(data); err != nil {
		return nil, err
	}
	return msg, nil
}

// ToWireSuite packs every DNS message in suite for transport across
// the sandbox boundary.
func ToWireSuite(suite *model.FuzzSuite) (*WireSuite, error) {
	ws := &WireSuite{ID: suite.ID, Cases: make([]WireCase, 0, len(suite.TestCases))}
	for _, fc := range suite.TestCases {
		query, err := PackMsg(fc.ClientQuery)
		if err != nil {
			return nil, fmt.Errorf("sandbox: pack client query for %s: %w", fc.ID, err)
		}
		responses := make([][]byte, 0, len(fc.ServerResponses))
		for _, r := range fc.ServerResponses {
			data, err := PackMsg(r)
			if err != nil {
				return nil, fmt.Errorf("sandbox: pack scripted response for %s: %w", fc.ID, err)
			}
			responses = append(responses, data)
		}
		ws.Cases = append(ws.Cases, WireCase{
			ID:              fc.ID,
			ClientQuery:     query,
			ServerResponses: responses,
			CheckCache:      fc.CheckCache,
		})
	}
	return ws, nil
}

// FromWireSuite is ToWireSuite's inverse, used by the in-sandbox agent
// to recover the FuzzCases it must run.
func FromWireSuite(ws *WireSuite) (*model.FuzzSuite, error) {
	suite := &model.FuzzSuite{ID: ws.ID, TestCases: make([]*model.FuzzCase, 0, len(ws.Cases))}
	for _, wc := range ws.Cases {
		query, err := UnpackMsg(wc.ClientQuery)
		if err != nil {
			return nil, fmt.Errorf("sandbox: unpack client query for %s: %w", wc.ID, err)
		}
		responses := make([]*dns.Msg, 0, len(wc.ServerResponses))
		for _, data := range wc.ServerResponses {
			r, err := UnpackMsg(data)
			if err != nil {
				return nil, fmt.Errorf("sandbox: unpack scripted response for %s: %w", wc.ID, err)
			}
			responses = append(responses, r)
		}
		suite.TestCases = append(suite.TestCases, &model.FuzzCase{
			ID:              wc.ID,
			ClientQuery:     query,
			ServerResponses: responses,
			CheckCache:      wc.CheckCache,
		})
	}
	return suite, nil
}

// ToWireResultSet is FromWireResultSet's inverse, used by the
// in-sandbox agent to encode its FuzzResultSet for the orchestrator.
func ToWireResultSet(rs *model.FuzzResultSet) (*WireResultSet, error) {
	wrs := &WireResultSet{ID: rs.ID, Results: make([]WireResult, 0, len(rs.Results))}
	for _, r := range rs.Results {
		response, err := PackMsg(r.FuzzeeResponse)
		if err != nil {
			return nil, fmt.Errorf("sandbox: pack fuzzee response for %s: %w", r.ID, err)
		}
		queries := make([][]byte, 0, len(r.FuzzeeQueries))
		for _, q := range r.FuzzeeQueries {
			data, err := PackMsg(q)
			if err != nil {
				return nil, fmt.Errorf("sandbox: pack fuzzee query for %s: %w", r.ID, err)
			}
			queries = append(queries, data)
		}
		var counterValues []uint32
		if r.Counters != nil {
			counterValues = r.Counters.Slice()
		}
		wrs.Results = append(wrs.Results, WireResult{
			ID:             r.ID,
			Counters:       counterValues,
			CacheState:     r.CacheState,
			FuzzeeResponse: response,
			FuzzeeQueries:  queries,
			ResponseIdxs:   r.ResponseIdxs,
		})
	}
	return wrs, nil
}

// FromWireResultSet is ToWireResultSet's inverse, used by the
// orchestrating Pool to decode what the in-sandbox agent wrote.
func FromWireResultSet(wrs *WireResultSet) (*model.FuzzResultSet, error) {
	rs := &model.FuzzResultSet{ID: wrs.ID, Results: make([]*model.FuzzResult, 0, len(wrs.Results))}
	for _, wr := range wrs.Results {
		response, err := UnpackMsg(wr.FuzzeeResponse)
		if err != nil {
			return nil, fmt.Errorf("sandbox: unpack fuzzee response for %s: %w", wr.ID, err)
		}
		queries := make([]*dns.Msg, 0, len(wr.FuzzeeQueries))
		for _, data := range wr.FuzzeeQueries {
			q, err := UnpackMsg(data)
			if err != nil {
				return nil, fmt.Errorf("sandbox: unpack fuzzee query for %s: %w", wr.ID, err)
			}
			queries = append(queries, q)
		}
		cnt := counters.FromSlice(wr.Counters)
		rs.Results = append(rs.Results, &model.FuzzResult{
			ID:             wr.ID,
			Counters:       &cnt,
			CacheState:     wr.CacheState,
			FuzzeeResponse: response,
			FuzzeeQueries:  queries,
			ResponseIdxs:   wr.ResponseIdxs,
		})
	}
	return rs, nil
}
