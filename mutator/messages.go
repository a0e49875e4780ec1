// Copyright © by the dnsdiff-fuzzer authors.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.
// SPDX-License-Identifier: Apache-2.0

package mutator

import (
	"math/rand/v2"

	"github.com/miekg/dns"
)

// headerBitKind enumerates the full header-bit list a mutation can
// flip: message type, opcode, AA, TC, RD, RA, AD, CD, rcode.
type headerBitKind int

const (
	bitMessageType headerBitKind = iota
	bitOpcode
	bitAA
	bitTC
	bitRD
	bitRA
	bitAD
	bitCD
	bitRcode
	headerBitCount
)

var rcodePool = []int{
	dns.RcodeSuccess, dns.RcodeFormatError, dns.RcodeServerFailure, dns.RcodeNameError,
	dns.RcodeNotImplemented, dns.RcodeRefused,
}

var opcodePool = []int{dns.OpcodeQuery, dns.OpcodeIQuery, dns.OpcodeStatus, dns.OpcodeNotify, dns.OpcodeUpdate}

// mutateMessage applies one of three structural mutations to msg: its
// header bits, its question section, or a record Add/Remove/Modify in
// one of its three RR sections.
func mutateMessage(rng *rand.Rand, msg *dns.Msg) {
	switch rng.IntN(3) {
	case 0:
		mutateHeaderBit(rng, msg)
	case 1:
		mutateQuestion(rng, msg)
	case 2:
		mutateRecordSection(rng, msg)
	}
}

func mutateHeaderBit(rng *rand.Rand, msg *dns.Msg) {
	switch headerBitKind(rng.IntN(int(headerBitCount))) {
	case bitMessageType:
		msg.Response = !msg.Response
	case bitOpcode:
		msg.Opcode = opcodePool[rng.IntN(len(opcodePool))]
	case bitAA:
		msg.Authoritative = !msg.Authoritative
	case bitTC:
		msg.Truncated = !msg.Truncated
	case bitRD:
		msg.RecursionDesired = !msg.RecursionDesired
	case bitRA:
		msg.RecursionAvailable = !msg.RecursionAvailable
	case bitAD:
		msg.AuthenticatedData = !msg.AuthenticatedData
	case bitCD:
		msg.CheckingDisabled = !msg.CheckingDisabled
	case bitRcode:
		msg.Rcode = rcodePool[rng.IntN(len(rcodePool))]
	}
}

func mutateQuestion(rng *rand.Rand, msg *dns.Msg) {
	if len(msg.Question) == 0 {
		return
	}
	q := &msg.Question[0]
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

type recordOp int

const (
	recordAdd recordOp = iota
	recordRemove
	recordModify
)

func mutateRecordSection(rng *rand.Rand, msg *dns.Msg) {
	sections := []*[]dns.RR{&msg.Answer, &msg.Ns, &msg.Extra}
	section := sections[rng.IntN(len(sections))]

	owner := zoneSuffix
	if len(msg.Question) > 0 {
		owner = msg.Question[0].Name
	}

	switch recordOp(rng.IntN(3)) {
	case recordAdd:
		rrtype := recordTypePool[rng.IntN(len(recordTypePool))]
		*section = append(*section, randomRecord(rng, owner, rrtype))
	case recordRemove:
		if len(*section) > 0 {
			i := rng.IntN(len(*section))
			*section = append((*section)[:i], (*section)[i+1:]...)
		}
	case recordModify:
		if len(*section) > 0 {
			i := rng.IntN(len(*section))
			modifyRecord(rng, (*section)[i])
		}
	}
}

func modifyRecord(rng *rand.Rand, rr dns.RR) {
	hdr := rr.Header()
	switch rng.IntN(3) {
	case 0:
		hdr.Name = mutateName(rng, hdr.Name)
	case 1:
		hdr.Ttl = uint32(rng.IntN(1 << 20))
	case 2:
		if a, ok := rr.(*dns.A); ok {
			a.A = randomIPv4(rng)
		} else if aaaa, ok := rr.(*dns.AAAA); ok {
			aaaa.AAAA = randomIPv6(rng)
		} else if txt, ok := rr.(*dns.TXT); ok {
			txt.Txt = []string{randomTxt(rng)}
		}
	}
}

func randomRecord(rng *rand.Rand, owner string, rrtype uint16) dns.RR {
	hdr := dns.RR_Header{Name: owner, Rrtype: rrtype, Class: dns.ClassINET, Ttl: uint32(60 + rng.IntN(3600))}
	switch rrtype {
	case dns.TypeAAAA:
		return &dns.AAAA{Hdr: hdr, AAAA: randomIPv6(rng)}
	case dns.TypeNULL:
		return &dns.NULL{Hdr: hdr, Data: randomTxt(rng)}
	case dns.TypeTXT:
		return &dns.TXT{Hdr: hdr, Txt: []string{randomTxt(rng)}}
	default:
		return &dns.A{Hdr: hdr, A: randomIPv4(rng)}
	}
}

func randomIPv4(rng *rand.Rand) []byte {
	b := make([]byte, 4)
	for i := range b {
		b[i] = byte(rng.IntN(256))
	}
	return b
}

func randomIPv6(rng *rand.Rand) []byte {
	b := make([]byte, 16)
	for i := range b {
		b[i] = byte(rng.IntN(256))
	}
	return b
}

const txtAlphabet = "abcdefghijklmnopqrstuvwxyz0123456789"

func randomTxt(rng *rand.Rand) string {
	n := 1 + rng.IntN(16)
	b := make([]byte, n)
	for i := range b {
		b[i] = txtAlphabet[rng.IntN(len(txtAlphabet))]
	}
	return string(b)
}

// pickWeighted returns an index into weights chosen with probability
// proportional to its weight.
func pickWeighted(rng *rand.Rand, weights []int) mutationKind {
	total := 0
	for _, w := range weights {
		total += w
	}
	target := rng.IntN(total)
	for i, w := range weights {
		if target < w {
			return mutationKind(i)
		}
		target -= w
	}
	return mutationKind(len(weights) - 1)
}
