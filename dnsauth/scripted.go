// Copyright © by the dnsdiff-fuzzer authors.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.
// SPDX-License-Identifier: Apache-2.0

// Package dnsauth implements the per-test authoritative name server
// oracle (C3): a deterministic server that answers from a scripted list
// of responses and records exactly which scripted response served which
// incoming query, plus a second "fixed zone" mode used for background
// warm-up traffic.
package dnsauth

import (
	"context"
	"log/slog"
	"net"
	"strings"
	"sync"

	"github.com/dnsdiff/fuzzer/model"
	"github.com/miekg/dns"
)

// Scripted is the per-test authoritative server that answers from a
// script of canned responses. A single instance can serve many
// loopback addresses (one per
// test id); all of them share the same locked state.
type Scripted struct {
	log *slog.Logger

	mu              sync.Mutex
	fuzzingResponse []*dns.Msg
	queryList       []*dns.Msg
	answerIndex     []uint

	servers []*dns.Server
}

// NewScripted returns a Scripted server with no bound listeners yet.
func NewScripted(log *slog.Logger) *Scripted {
	if log == nil {
		log = slog.Default()
	}
	return &Scripted{log: log.With("component", "dnsauth.scripted")}
}

// SetFuzzingResponse installs the scripted response list used to answer
// future queries, taken from FuzzCase.ServerResponses.
func (s *Scripted) SetFuzzingResponse(responses []*dns.Msg) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fuzzingResponse = responses
}

// Listen binds UDP and TCP listeners on addr:53 and starts serving
// immediately. It may be called multiple times with sequential loopback
// addresses, one per test id, all sharing this Scripted's state.
func (s *Scripted) Listen(ctx context.Context, addr net.IP) error {
	mux := dns.NewServeMux()
	mux.HandleFunc(".", s.handle)

	address := net.JoinHostPort(addr.String(), "53")

	udp := &dns.Server{Addr: address, Net: "udp", Handler: mux}
	tcp := &dns.Server{Addr: address, Net: "tcp", Handler: mux}

	errs := make(chan error, 2)
	go func() { errs <- udp.ListenAndServe() }()
	go func() { errs <- tcp.ListenAndServe() }()

	s.mu.Lock()
	s.servers = append(s.servers, udp, tcp)
	s.mu.Unlock()

	select {
	case err := <-errs:
		return err
	case <-ctx.Done():
		return nil
	}
}

// Shutdown stops every listener bound via Listen.
func (s *Scripted) Shutdown(ctx context.Context) {
	s.mu.Lock()
	servers := s.servers
	s.mu.Unlock()
	for _, srv := range servers {
		_ = srv.ShutdownContext(ctx)
	}
}

// handle parses an incoming request, appends a
// round-tripped copy of the request to query_list, linearly scan
// fuzzing_response for a question-section match, and on no match
// synthesize a NODATA/SOA response.
func (s *Scripted) handle(w dns.ResponseWriter, req *dns.Msg) {
	resp, err := s.createResponse(req)
	if err != nil {
		s.log.Error("failed to build scripted response", "error", err)
		fail := new(dns.Msg)
		fail.SetRcode(req, dns.RcodeServerFailure)
		_ = w.WriteMsg(fail)
		return
	}
	if err := w.WriteMsg(resp); err != nil {
		s.log.Warn("failed to write scripted response", "error", err)
	}
}

func (s *Scripted) createResponse(req *dns.Msg) (*dns.Msg, error) {
	roundTripped, err := roundTrip(req)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.queryList = append(s.queryList, roundTripped)

	if len(req.Question) > 0 {
		q := req.Question[0]
		for idx, candidate := range s.fuzzingResponse {
			if questionMatches(candidate, q) {
				resp := candidate.Copy()
				resp.Id = req.Id
				s.answerIndex = append(s.answerIndex, uint(idx))
				return resp, nil
			}
		}
	}

	s.answerIndex = append(s.answerIndex, model.ResponseIndexNone)
	return nodataWithSOA(req), nil
}

// questionMatches implements "exact match on owner, type, class,
// lower-cased" against every question section entry of candidate; any
// one matching entry is enough.
func questionMatches(candidate *dns.Msg, q dns.Question) bool {
	for _, cq := range candidate.Question {
		if strings.EqualFold(dns.CanonicalName(cq.Name), dns.CanonicalName(q.Name)) &&
			cq.Qtype == q.Qtype && cq.Qclass == q.Qclass {
			return true
		}
	}
	return false
}

// nodataWithSOA builds the synthesized NODATA response used when the
// script runs dry: the apex SOA is owned by the last two labels of the
// query name, TTL 300, mname "private.server.", rname "testing.test.".
func nodataWithSOA(req *dns.Msg) *dns.Msg {
	resp := new(dns.Msg)
	resp.SetReply(req)
	resp.Authoritative = true
	resp.Rcode = dns.RcodeSuccess

	var owner string
	if len(req.Question) > 0 {
		owner = lastTwoLabels(req.Question[0].Name)
	}

	soa := &dns.SOA{
		Hdr: dns.RR_Header{
			Name:   owner,
			Rrtype: dns.TypeSOA,
			Class:  dns.ClassINET,
			Ttl:    300,
		},
		Ns:      "private.server.",
		Mbox:    "testing.test.",
		Serial:  15337002,
		Refresh: 1800,
		Retry:   900,
		Expire:  604800,
		Minttl:  1800,
	}
	resp.Ns = append(resp.Ns, soa)
	return resp
}

// lastTwoLabels returns the zone implied by trimming name to its final
// two labels, e.g. "foo.bar.0001.fuzz." -> "0001.fuzz.".
func lastTwoLabels(name string) string {
	labels := dns.SplitDomainName(name)
	if len(labels) <= 2 {
		return dns.Fqdn(name)
	}
	return dns.Fqdn(strings.Join(labels[len(labels)-2:], "."))
}

func roundTrip(req *dns.Msg) (*dns.Msg, error) {
	packed, err := req.Pack()
	if err != nil {
		return nil, err
	}
	out := new(dns.Msg)
	if err := out.Unpack(packed); err != nil {
		return nil, err
	}
	return out, nil
}

// GetQueryList atomically swaps the query list and answer index with
// empty slices and returns the previous contents. The two returned
// slices always have equal length.
func (s *Scripted) GetQueryList() ([]*dns.Msg, []uint) {
	s.mu.Lock()
	defer s.mu.Unlock()

	queries := s.queryList
	idxs := s.answerIndex
	s.queryList = nil
	s.answerIndex = nil
	return queries, idxs
}

// NextLoopbackAddr returns the loopback address allocated to test index
// idx: scripted AuthNS per-test addresses start at 127.250.0.1 and
// count up by test index.
func NextLoopbackAddr(idx int) net.IP {
	base := net.IPv4(127, 250, 0, 1).To4()
	v := uint32(base[0])<<24 | uint32(base[1])<<16 | uint32(base[2])<<8 | uint32(base[3])
	v += uint32(idx)
	return net.IPv4(byte(v>>24), byte(v>>16), byte(v>>8), byte(v))
}

// FuzzeeListenAddrBase is the first address of the sequential loopback
// block, the same address NextLoopbackAddr(0) returns.
const FuzzeeListenAddrBase = "127.250.0.1"
