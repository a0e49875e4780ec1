// Copyright © by the dnsdiff-fuzzer authors.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.
// SPDX-License-Identifier: Apache-2.0

package kv

import (
	"fmt"

	"github.com/miekg/dns"
)

// RcodeName renders an RCODE the way the projection does: the mnemonic
// from the wire-format registry when known, else "RCODE<n>" so that an
// unrecognized extended RCODE still participates in equality/diffing
// instead of collapsing to a blank string.
func RcodeName(code int) string {
	if name, ok := dns.RcodeToString[code]; ok {
		return name
	}
	return fmt.Sprintf("RCODE%d", code)
}

// OpcodeName renders an OPCODE by mnemonic, falling back to "OPCODE<n>".
func OpcodeName(code int) string {
	if name, ok := dns.OpcodeToString[code]; ok {
		return name
	}
	return fmt.Sprintf("OPCODE%d", code)
}

// ClassName renders a CLASS by mnemonic, falling back to "CLASS<n>".
func ClassName(class uint16) string {
	if name, ok := dns.ClassToString[class]; ok {
		return name
	}
	return fmt.Sprintf("CLASS%d", class)
}

// TypeName renders a TYPE by mnemonic, falling back to "TYPE<n>" using
// the library's own unknown-type rendering (already in that shape).
func TypeName(rrtype uint16) string {
	if name, ok := dns.TypeToString[rrtype]; ok {
		return name
	}
	return dns.Type(rrtype).String()
}

// EDNSOptionName renders an EDNS0 option code by its stable registry
// name, falling back to "OPT<n>" for anything this build of miekg/dns
// does not recognize by name.
func EDNSOptionName(code uint16) string {
	switch code {
	case dns.EDNS0NSID:
		return "NSID"
	case dns.EDNS0COOKIE:
		return "COOKIE"
	case dns.EDNS0EXPIRE:
		return "EXPIRE"
	case dns.EDNS0TCPKEEPALIVE:
		return "TCP_KEEPALIVE"
	case dns.EDNS0PADDING:
		return "PADDING"
	case dns.EDNS0EDE:
		return "EXTENDED_ERROR"
	case dns.EDNS0SUBNET:
		return "CLIENT_SUBNET"
	default:
		return fmt.Sprintf("OPT%d", code)
	}
}
