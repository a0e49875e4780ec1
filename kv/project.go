// Copyright © by the dnsdiff-fuzzer authors.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.
// SPDX-License-Identifier: Apache-2.0

package kv

import (
	"fmt"

	"github.com/dnsdiff/fuzzer/model"
	"github.com/miekg/dns"
)

// Project flattens one resolver's outcome for one FuzzCase into a
// ValueMap: a deterministic, total function from
// (fuzz_case, resolver_name, fuzz_result) onto a sorted map of dotted
// keys to scalar values." The returned map is ready to be compared,
// key by key, against another resolver's projection of the same case
// by diffmatch.Compare.
func Project(fc *model.FuzzCase, resolver model.ResolverName, fr *model.FuzzResult, interner *Interner) *ValueMap {
	if interner == nil {
		interner = NewInterner()
	}
	m := NewValueMap()
	m.Set("resolver_name", String(string(resolver)))

	if fc != nil && fc.ClientQuery != nil {
		projectMessage(m, "client_query", fc.ClientQuery, interner)
	}

	if fr == nil {
		return m
	}

	if fr.FuzzeeResponse != nil {
		projectMessage(m, "response", fr.FuzzeeResponse, interner)
	}

	m.SetCount("fuzzee_queries", len(fr.FuzzeeQueries))
	for i, q := range fr.FuzzeeQueries {
		prefix := fmt.Sprintf("fuzzee_queries.%d", i)
		projectMessage(m, prefix, q, interner)
		if i < len(fr.ResponseIdxs) {
			m.Set(prefix+".response_idx", responseIndexValue(fr.ResponseIdxs[i]))
		}
	}

	for key, state := range fr.CacheState {
		m.Set("cache_state."+cacheStateKey(key), String(state))
	}

	m.Set("oracles.crashed_resolver", Boolean(fr.Oracles.CrashedResolver))
	m.Set("oracles.excessive_queries", Boolean(fr.Oracles.ExcessiveQueries))
	m.Set("oracles.excessive_answer_records", Boolean(fr.Oracles.ExcessiveAnswerRecords))
	m.Set("oracles.duplicate_records", Boolean(fr.Oracles.DuplicateRecords))
	m.Set("oracles.responds_to_response", Boolean(fr.Oracles.RespondsToResponse))

	return m
}

// responseIndexValue renders model.ResponseIndexNone as the
// StringSentinelMax string, and every other index as an Integer,
// matching how an absent index is otherwise rendered.
func responseIndexValue(idx uint) Value {
	if idx == model.ResponseIndexNone {
		return String(StringSentinelMax)
	}
	return Integer(int64(idx))
}

func cacheStateKey(k model.CacheKey) string {
	return dns.CanonicalName(k.Name) + "|" + TypeName(k.Type) + "|" + ClassName(k.Class)
}

func projectMessage(m *ValueMap, prefix string, msg *dns.Msg, interner *Interner) {
	if msg == nil {
		return
	}

	h := msg.MsgHdr
	m.Set(prefix+".id", Integer(int64(h.Id)))
	m.Set(prefix+".opcode", String(OpcodeName(h.Opcode)))
	m.Set(prefix+".rcode", String(RcodeName(h.Rcode)))
	m.Set(prefix+".flags.response", Boolean(h.Response))
	m.Set(prefix+".flags.authoritative", Boolean(h.Authoritative))
	m.Set(prefix+".flags.truncated", Boolean(h.Truncated))
	m.Set(prefix+".flags.recursion_desired", Boolean(h.RecursionDesired))
	m.Set(prefix+".flags.recursion_available", Boolean(h.RecursionAvailable))
	m.Set(prefix+".flags.zero", Boolean(h.Zero))
	m.Set(prefix+".flags.authenticated_data", Boolean(h.AuthenticatedData))
	m.Set(prefix+".flags.checking_disabled", Boolean(h.CheckingDisabled))

	projectQuestions(m, prefix+".question", msg.Question, interner)
	projectRRSet(m, prefix+".answer", msg.Answer, interner)
	projectRRSet(m, prefix+".authority", msg.Ns, interner)
	projectRRSet(m, prefix+".additional", nonOptRRs(msg.Extra), interner)

	if opt := msg.IsEdns0(); opt != nil {
		projectEDNS(m, prefix+".edns", opt, interner)
	} else {
		m.Set(prefix+".edns.present", Boolean(false))
	}
}

func nonOptRRs(rrs []dns.RR) []dns.RR {
	out := make([]dns.RR, 0, len(rrs))
	for _, rr := range rrs {
		if rr.Header().Rrtype != dns.TypeOPT {
			out = append(out, rr)
		}
	}
	return out
}

func projectQuestions(m *ValueMap, prefix string, qs []dns.Question, interner *Interner) {
	m.SetCount(prefix, len(qs))
	for i, q := range qs {
		p := fmt.Sprintf("%s.%d", prefix, i)
		m.Set(p+".name", internedString(interner, dns.CanonicalName(q.Name)))
		m.Set(p+".type", String(TypeName(q.Qtype)))
		m.Set(p+".class", String(ClassName(q.Qclass)))
	}
}

func projectRRSet(m *ValueMap, prefix string, rrs []dns.RR, interner *Interner) {
	m.SetCount(prefix, len(rrs))
	for i, rr := range rrs {
		p := fmt.Sprintf("%s.%d", prefix, i)
		hdr := rr.Header()
		m.Set(p+".owner", internedString(interner, dns.CanonicalName(hdr.Name)))
		m.Set(p+".type", String(TypeName(hdr.Rrtype)))
		m.Set(p+".class", String(ClassName(hdr.Class)))
		m.Set(p+".ttl", Integer(int64(hdr.Ttl)))
		m.Set(p+".rdata", internedString(interner, canonicalRdata(rr)))
	}
}

// canonicalRdata renders an RR's data portion only, stripping the
// owner/ttl/class/type header so that differences in the header
// (already projected separately) don't get double-counted inside a
// single opaque rdata comparison.
func canonicalRdata(rr dns.RR) string {
	full := rr.String()
	hdr := rr.Header().String()
	if len(full) >= len(hdr) && full[:len(hdr)] == hdr {
		return full[len(hdr):]
	}
	return full
}

func projectEDNS(m *ValueMap, prefix string, opt *dns.OPT, interner *Interner) {
	m.Set(prefix+".present", Boolean(true))
	m.Set(prefix+".udp_size", Integer(int64(opt.UDPSize())))
	m.Set(prefix+".version", Integer(int64(opt.Version())))
	m.Set(prefix+".extended_rcode", Integer(int64(opt.ExtendedRcode())))
	m.Set(prefix+".do", Boolean(opt.Do()))

	m.SetCount(prefix+".options", len(opt.Option))
	for i, o := range opt.Option {
		p := fmt.Sprintf("%s.options.%d", prefix, i)
		m.Set(p+".name", String(EDNSOptionName(o.Option())))
		m.Set(p+".value", internedString(interner, ednsOptionValue(o)))
	}
}

func ednsOptionValue(o dns.EDNS0) string {
	switch v := o.(type) {
	case *dns.EDNS0_NSID:
		return v.Nsid
	case *dns.EDNS0_COOKIE:
		return v.Cookie
	case *dns.EDNS0_EDE:
		return fmt.Sprintf("%d:%s", v.InfoCode, v.ExtraText)
	case *dns.EDNS0_SUBNET:
		return fmt.Sprintf("%s/%d", v.Address, v.SourceNetmask)
	default:
		return o.String()
	}
}

func internedString(interner *Interner, s string) Value {
	interner.Intern(s)
	return String(s)
}
