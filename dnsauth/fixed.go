// Copyright © by the dnsdiff-fuzzer authors.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.
// SPDX-License-Identifier: Apache-2.0

package dnsauth

import (
	"sort"
	"strings"

	"github.com/miekg/dns"
)

// Zone is a static RFC 6672-style zone served by Fixed. Records is keyed
// by owner name (lower-cased, FQDN) to every RR at that owner.
type Zone struct {
	Origin  string
	Records map[string][]dns.RR
	SOA     *dns.SOA
}

// Fixed serves a static zone using the RFC 6672 §3.2 descent algorithm.
// The background-activity warm-up does not use it; that runs an empty
// FuzzSuite.
type Fixed struct {
	zone *Zone
	nsid string
}

// NewFixed returns a server for the given static zone.
func NewFixed(zone *Zone, nsid string) *Fixed {
	if nsid == "" {
		nsid = "Static Server"
	}
	return &Fixed{zone: zone, nsid: nsid}
}

// Lookup answers a single question against the static zone, returning
// the answer/authority/additional sections and response code to use.
func (f *Fixed) Lookup(q dns.Question) (answer, authority, additional []dns.RR, rcode int) {
	qname := dns.CanonicalName(q.Name)
	origin := dns.CanonicalName(f.zone.Origin)

	if !dns.IsSubDomain(origin, qname) {
		return nil, nil, nil, dns.RcodeRefused
	}

	labels := dns.SplitDomainName(qname)
	originLabels := dns.SplitDomainName(origin)

	// Walk from the origin down to qname, one label at a time,
	// checking for a delegation (NS records not at the origin) at
	// every step first, per RFC 6672 §3.2.
	for depth := len(originLabels); depth < len(labels); depth++ {
		owner := dns.Fqdn(strings.Join(labels[len(labels)-depth-1:], "."))
		if owner == qname {
			break
		}
		if rrs, ok := f.zone.Records[owner]; ok {
			var ns []dns.RR
			for _, rr := range rrs {
				if rr.Header().Rrtype == dns.TypeNS {
					ns = append(ns, rr)
				}
			}
			if len(ns) > 0 {
				authority = append(authority, ns...)
				additional = append(additional, f.glueFor(ns)...)
				return nil, authority, additional, dns.RcodeSuccess
			}
		}
	}

	if rrs, ok := f.zone.Records[qname]; ok {
		for _, rr := range rrs {
			if rr.Header().Rrtype == dns.TypeCNAME {
				answer = append(answer, rr)
				f.appendSOAAuthority(&authority)
				return answer, authority, additional, dns.RcodeSuccess
			}
		}
		for _, rr := range rrs {
			if q.Qtype == dns.TypeANY || rr.Header().Rrtype == q.Qtype {
				answer = append(answer, rr)
			}
		}
		if len(answer) > 0 {
			return answer, authority, additional, dns.RcodeSuccess
		}
		// Exact owner exists but not this type: NODATA.
		f.appendSOAAuthority(&authority)
		return nil, authority, additional, dns.RcodeSuccess
	}

	// Wildcard at "*" directly under the origin.
	wildcard := dns.Fqdn("*." + origin)
	if rrs, ok := f.zone.Records[wildcard]; ok {
		for _, rr := range rrs {
			if q.Qtype == dns.TypeANY || rr.Header().Rrtype == q.Qtype {
				clone := dns.Copy(rr)
				clone.Header().Name = qname
				answer = append(answer, clone)
			}
		}
		if len(answer) > 0 {
			return answer, authority, additional, dns.RcodeSuccess
		}
	}

	f.appendSOAAuthority(&authority)
	return nil, authority, additional, dns.RcodeNameError
}

func (f *Fixed) appendSOAAuthority(authority *[]dns.RR) {
	if f.zone.SOA != nil {
		*authority = append(*authority, f.zone.SOA)
	}
}

func (f *Fixed) glueFor(ns []dns.RR) []dns.RR {
	var glue []dns.RR
	for _, rr := range ns {
		nsRR, ok := rr.(*dns.NS)
		if !ok {
			continue
		}
		if rrs, ok := f.zone.Records[dns.CanonicalName(nsRR.Ns)]; ok {
			for _, g := range rrs {
				if g.Header().Rrtype == dns.TypeA || g.Header().Rrtype == dns.TypeAAAA {
					glue = append(glue, g)
				}
			}
		}
	}
	sort.Slice(glue, func(i, j int) bool {
		return glue[i].String() < glue[j].String()
	})
	return glue
}
