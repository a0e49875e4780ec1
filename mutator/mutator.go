// Copyright © by the dnsdiff-fuzzer authors.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.
// SPDX-License-Identifier: Apache-2.0

// Package mutator implements the DNS message mutator (C9): building a
// minimal seed FuzzCase and deriving new cases from an existing one by
// nudging header bits, question sections, resource records, and names.
package mutator

import (
	"math/rand/v2"

	"github.com/dnsdiff/fuzzer/ids"
	"github.com/dnsdiff/fuzzer/model"
	"github.com/miekg/dns"
)

// zoneSuffix is the delegated test zone every generated query lives
// under.
const zoneSuffix = "test.fuzz."

// recordTypePool is the set of RR types a freshly generated scripted
// response is allowed to carry.
var recordTypePool = []uint16{dns.TypeA, dns.TypeAAAA, dns.TypeNULL, dns.TypeTXT}

// NewFuzzCase builds a minimal seed case: a random 5-label alphabet, a
// single client query (class IN, type A) against a name drawn from it,
// and one scripted server response carrying one record of a random
// type with random rdata.
func NewFuzzCase(rng *rand.Rand) *model.FuzzCaseMeta {
	alphabet := randomAlphabet(rng)
	qname := alphabet[0] + "." + zoneSuffix

	query := new(dns.Msg)
	query.SetQuestion(qname, dns.TypeA)
	query.Id = uint16(rng.IntN(1 << 16))
	query.RecursionDesired = true

	rrtype := recordTypePool[rng.IntN(len(recordTypePool))]
	response := new(dns.Msg)
	response.SetQuestion(qname, dns.TypeA)
	response.Response = true
	response.Authoritative = true
	response.Answer = append(response.Answer, randomRecord(rng, qname, rrtype))

	fc := &model.FuzzCase{
		ID:              ids.New(),
		ClientQuery:     query,
		ServerResponses: []*dns.Msg{response},
	}
	RecomputeCheckCache(fc)

	return &model.FuzzCaseMeta{
		FuzzCase: fc,
		LabelSet: alphabet,
		HasParent: false,
	}
}

// mutationKind names the four top-level mutations mutate chooses among,
// weighted 1, 2, 2, 5.
type mutationKind int

const (
	mutAddResponse mutationKind = iota
	mutRemoveResponse
	mutMutateResponse
	mutMutateClientQuery
)

var mutationWeights = []int{1, 2, 2, 5}

// Mutate derives a new FuzzCaseMeta from parent: it copies the parent's
// FuzzCase, applies one weighted mutation, recomputes check_cache, and
// stamps DerivedFrom/HasParent to parent's id.
func Mutate(parent *model.FuzzCaseMeta, rng *rand.Rand) *model.FuzzCaseMeta {
	fc := cloneFuzzCase(parent.FuzzCase)

	switch pickWeighted(rng, mutationWeights) {
	case mutAddResponse:
		i := rng.IntN(len(fc.ServerResponses) + 1)
		msg := randomScriptedMessage(rng, fc)
		fc.ServerResponses = insertMsg(fc.ServerResponses, i, msg)
	case mutRemoveResponse:
		if len(fc.ServerResponses) > 0 {
			i := rng.IntN(len(fc.ServerResponses))
			fc.ServerResponses = append(fc.ServerResponses[:i], fc.ServerResponses[i+1:]...)
		}
	case mutMutateResponse:
		if len(fc.ServerResponses) > 0 {
			i := rng.IntN(len(fc.ServerResponses))
			mutateMessage(rng, fc.ServerResponses[i])
		}
	case mutMutateClientQuery:
		mutateClientQuery(rng, fc)
	}

	RecomputeCheckCache(fc)

	return &model.FuzzCaseMeta{
		FuzzCase:    fc,
		LabelSet:    parent.LabelSet,
		DerivedFrom: parent.FuzzCase.ID,
		HasParent:   true,
	}
}

// RecomputeCheckCache rebuilds fc.CheckCache from every owner name
// appearing in the client query and scripted response sections: after
// mutation, check_cache is recomputed from all owner names appearing
// in the query and response sections.
func RecomputeCheckCache(fc *model.FuzzCase) {
	seen := map[model.CacheKey]bool{}
	var keys []model.CacheKey

	add := func(name string, qtype, class uint16) {
		k := model.CacheKey{Name: dns.CanonicalName(name), Type: qtype, Class: class}
		if !seen[k] {
			seen[k] = true
			keys = append(keys, k)
		}
	}

	if fc.ClientQuery != nil {
		for _, q := range fc.ClientQuery.Question {
			add(q.Name, q.Qtype, q.Qclass)
		}
	}
	for _, msg := range fc.ServerResponses {
		for _, q := range msg.Question {
			add(q.Name, q.Qtype, q.Qclass)
		}
		for _, section := range [][]dns.RR{msg.Answer, msg.Ns, msg.Extra} {
			for _, rr := range section {
				if rr.Header().Rrtype == dns.TypeOPT {
					continue
				}
				add(rr.Header().Name, rr.Header().Rrtype, rr.Header().Class)
			}
		}
	}

	fc.CheckCache = keys
}

func cloneFuzzCase(fc *model.FuzzCase) *model.FuzzCase {
	clone := &model.FuzzCase{ID: ids.New()}
	if fc.ClientQuery != nil {
		clone.ClientQuery = fc.ClientQuery.Copy()
	}
	for _, msg := range fc.ServerResponses {
		clone.ServerResponses = append(clone.ServerResponses, msg.Copy())
	}
	clone.CheckCache = append([]model.CacheKey(nil), fc.CheckCache...)
	return clone
}

func randomScriptedMessage(rng *rand.Rand, fc *model.FuzzCase) *dns.Msg {
	name := zoneSuffix
	if fc.ClientQuery != nil && len(fc.ClientQuery.Question) > 0 {
		name = fc.ClientQuery.Question[0].Name
	}
	msg := new(dns.Msg)
	msg.SetQuestion(name, dns.TypeA)
	msg.Response = true
	msg.Authoritative = true
	rrtype := recordTypePool[rng.IntN(len(recordTypePool))]
	msg.Answer = append(msg.Answer, randomRecord(rng, name, rrtype))
	return msg
}

func insertMsg(msgs []*dns.Msg, i int, msg *dns.Msg) []*dns.Msg {
	out := make([]*dns.Msg, 0, len(msgs)+1)
	out = append(out, msgs[:i]...)
	out = append(out, msg)
	out = append(out, msgs[i:]...)
	return out
}

func mutateClientQuery(rng *rand.Rand, fc *model.FuzzCase) {
	if fc.ClientQuery == nil || len(fc.ClientQuery.Question) == 0 {
		return
	}
	q := &fc.ClientQuery.Question[0]
	switch rng.IntN(3) {
	case 0:
		q.Name = mutateName(rng, q.Name)
	case 1:
		q.Qtype = recordTypePool[rng.IntN(len(recordTypePool))]
	case 2:
		classes := []uint16{dns.ClassINET, dns.ClassCSNET, dns.ClassCHAOS, dns.ClassNONE, dns.ClassANY}
		q.Qclass = classes[rng.IntN(len(classes))]
	}
}
