// Copyright © by the dnsdiff-fuzzer authors.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.
// SPDX-License-Identifier: Apache-2.0

// Package model holds the fuzzer's core data model: FuzzCase, FuzzSuite,
// FuzzResult, FuzzResultSet, and their supporting types shared across
// the fuzzer's components.
package model

import (
	"time"

	"github.com/caffix/stringset"
	"github.com/dnsdiff/fuzzer/counters"
	"github.com/dnsdiff/fuzzer/ids"
	"github.com/miekg/dns"
)

// ResponseIndexNone is the sentinel value denoting "no scripted response
// matched the incoming query"; it maps to the string "usize::MAX" in the
// key-value projection (C6).
const ResponseIndexNone = ^uint(0)

// ResolverName identifies a resolver under test (e.g. "Bind9", "Unbound",
// "PowerDNS", "MaraDNS", "Resolved", "trust-dns"). It is intentionally an
// open string type: resolvers the differential matcher's rule catalogue
// does not special-case simply accumulate unexplained diffs instead of
// failing.
type ResolverName string

// CacheKey identifies a (Name, Type, Class) tuple that the fuzzing loop
// should track cache state for.
type CacheKey struct {
	Name  string
	Type  uint16
	Class uint16
}

// FuzzCase is one client query plus the scripted authoritative responses
// available to answer whatever upstream queries the resolver issues
// while processing it.
type FuzzCase struct {
	ID              ids.FuzzCaseId
	ClientQuery     *dns.Msg
	ServerResponses []*dns.Msg
	CheckCache      []CacheKey
}

// CheckCacheSet returns CheckCache as a set of canonical strings,
// suitable for deduplicated membership testing. Callers must Close the
// returned set once done with it.
func (c *FuzzCase) CheckCacheSet() *stringset.Set {
	s := stringset.New()
	for _, k := range c.CheckCache {
		s.Insert(cacheKeyString(k))
	}
	return s
}

func cacheKeyString(k CacheKey) string {
	return dns.CanonicalName(k.Name) + "|" + dns.TypeToString[k.Type] + "|" + dns.ClassToString[k.Class]
}

// FuzzSuite is a batch of FuzzCases executed together in a single
// sandbox invocation.
type FuzzSuite struct {
	ID        ids.FuzzSuiteId
	TestCases []*FuzzCase
}

// OracleResults carries the oracle flags computed in sandbox.Oracles
// for a single FuzzResult.
type OracleResults struct {
	CrashedResolver        bool
	ExcessiveQueries       bool
	ExcessiveAnswerRecords bool
	DuplicateRecords       bool
	RespondsToResponse     bool
}

// CacheState reports, per tracked CacheKey, whatever observation the
// sandbox's coverage/cache inspection made. The value "error" is a
// sentinel meaning the cache state could not be determined (classified
// away by the TodoCacheIgnoredForNow rule, C7 rule 7).
type CacheState map[CacheKey]string

// FuzzResult is the per-case outcome of running one FuzzCase against one
// resolver sandbox.
//
// Invariant: len(FuzzeeQueries) == len(ResponseIdxs).
type FuzzResult struct {
	ID             ids.FuzzCaseId
	Counters       *counters.Counters
	CacheState     CacheState
	FuzzeeResponse *dns.Msg
	FuzzeeQueries  []*dns.Msg
	ResponseIdxs   []uint
	Oracles        OracleResults
}

// Validate enforces the FuzzResult invariant; callers that assemble a
// FuzzResult outside of sandbox decoding should call this before use.
func (r *FuzzResult) Validate() {
	if len(r.FuzzeeQueries) != len(r.ResponseIdxs) {
		panic("model: FuzzResult invariant violated: len(FuzzeeQueries) != len(ResponseIdxs)")
	}
}

// FuzzResultSet is the full output of running a FuzzSuite against a
// single resolver sandbox.
type FuzzResultSet struct {
	ID                 ids.FuzzSuiteId
	Fuzzee             ResolverName
	Results            []*FuzzResult
	BackgroundActivity *counters.Counters
	TimeStart          time.Time
	TimeEnd            time.Time
	Meta               map[string][]byte
}

// ResultFor returns the FuzzResult for the given case id, if present.
func (rs *FuzzResultSet) ResultFor(id ids.FuzzCaseId) (*FuzzResult, bool) {
	for _, r := range rs.Results {
		if r.ID == id {
			return r, true
		}
	}
	return nil, false
}

// FuzzCaseMeta is the loop-owned bookkeeping record for a FuzzCase: its
// content, the short labels classifying how it was produced, and its
// lineage. It lives as long as its id is reachable from the priority
// queue or a fingerprint's case set.
type FuzzCaseMeta struct {
	FuzzCase    *FuzzCase
	LabelSet    []string
	DerivedFrom ids.FuzzCaseId
	HasParent   bool
}
