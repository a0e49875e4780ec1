// Copyright © by the dnsdiff-fuzzer authors.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.
// SPDX-License-Identifier: Apache-2.0

package diffmatch

import (
	"fmt"
	"strings"

	"github.com/dnsdiff/fuzzer/kv"
	"github.com/dnsdiff/fuzzer/model"
)

// context carries the state a rule needs: the two ordered sides
// (left.resolver_name < right.resolver_name lexicographically), the
// diff key set, and the accumulating known_diffs table rules mark into.
type context struct {
	leftName, rightName model.ResolverName
	left, right         *kv.ValueMap
	diffKeys            map[string]bool
	known               map[string][]Kind
}

func (c *context) mark(key string, k Kind) {
	if !c.diffKeys[key] {
		return
	}
	c.known[key] = append(c.known[key], k)
}

func (c *context) markPrefix(prefix string, k Kind) {
	for key := range c.diffKeys {
		if strings.HasPrefix(key, prefix) {
			c.mark(key, k)
		}
	}
}

func (c *context) markSuffix(suffix string, k Kind) {
	for key := range c.diffKeys {
		if strings.HasSuffix(key, suffix) {
			c.mark(key, k)
		}
	}
}

func (c *context) markContains(substr string, k Kind) {
	for key := range c.diffKeys {
		if strings.Contains(key, substr) {
			c.mark(key, k)
		}
	}
}

func (c *context) hasResolver(name string) bool {
	return string(c.leftName) == name || string(c.rightName) == name
}

func (c *context) sideFor(resolver model.ResolverName) (*kv.ValueMap, *kv.ValueMap) {
	if c.leftName == resolver {
		return c.left, c.right
	}
	return c.right, c.left
}

// OutcomeKind classifies the result of comparing two resolvers'
// projections of the same FuzzCase.
type OutcomeKind uint8

const (
	NoDifference OutcomeKind = iota
	KnownDifference
	NewDifference
)

// Outcome is the result of Compare.
type Outcome struct {
	Kind        OutcomeKind
	Kinds       []Kind              // populated for KnownDifference: the union of all kinds marked
	KnownDiffs  map[string][]Kind   // every diff key's assigned kinds, explained or not
	Fingerprint Fingerprint         // populated for NewDifference
}

// Compare runs the zip-sort diff between left and right, applies the
// rule catalogue, and returns whichever of NoDifference /
// KnownDifference / NewDifference results applies. leftName
// and rightName need not already be in sorted order: Compare swaps
// internally so "left.resolver_name < right.resolver_name" always
// holds while rules run, matching the precondition rules are written
// against.
func Compare(leftName, rightName model.ResolverName, left, right *kv.ValueMap) Outcome {
	if rightName < leftName {
		leftName, rightName = rightName, leftName
		left, right = right, left
	}

	diffKeys := map[string]bool{}
	for _, key := range DiffKeys(left, right) {
		diffKeys[key] = true
	}
	if len(diffKeys) == 0 {
		return Outcome{Kind: NoDifference}
	}

	ctx := &context{
		leftName: leftName, rightName: rightName,
		left: left, right: right,
		diffKeys: diffKeys,
		known:    make(map[string][]Kind, len(diffKeys)),
	}
	for key := range diffKeys {
		ctx.known[key] = nil
	}

	for _, rule := range ruleCatalogue {
		rule(ctx)
	}

	var unexplained []string
	kindSet := map[Kind]bool{}
	for key, kinds := range ctx.known {
		if len(kinds) == 0 {
			unexplained = append(unexplained, key)
			continue
		}
		for _, k := range kinds {
			kindSet[k] = true
		}
	}

	if len(unexplained) == 0 {
		kinds := make([]Kind, 0, len(kindSet))
		for k := range kindSet {
			kinds = append(kinds, k)
		}
		return Outcome{Kind: KnownDifference, Kinds: kinds, KnownDiffs: ctx.known}
	}

	return Outcome{
		Kind:        NewDifference,
		KnownDiffs:  ctx.known,
		Fingerprint: NewFingerprint(unexplained, left, right),
	}
}

// ruleCatalogue is the 34 benign-difference rules, applied in order;
// rules are additive, so later rules may mark a key
// an earlier rule already touched.
var ruleCatalogue = []func(*context){
	ruleResolverName,                 // 1
	ruleDnsId,                        // 2
	ruleIncomparableCounters,         // 3
	ruleMetaDiff,                     // 4
	ruleNonINRecursion,               // 5
	ruleCookies,                      // 6
	ruleTodoCacheIgnoredForNow,       // 7
	ruleServFailOnWrongAuthnsAnswer,  // 8
	ruleMaxTtlLimit,                  // 9
	ruleFormErrOnTruncatedQuery,      // 10
	ruleErrorClientNoRrInAnswer,      // 11
	ruleClientQueryWithoutRdBit,      // 12
	ruleExtendedErrorsUnsupported,    // 13
	ruleNoEdnsSupport,                // 14
	ruleMaradnsNoResponseServfail,    // 15
	ruleTrailingRetransmissions,      // 16
	ruleErrorClientQueryIncomparable, // 17
	ruleBind9NotImpMissingQuery,      // 18
	ruleMaradnsFakeSoaOnAAAA,         // 19
	ruleUnboundProbesUsingARecord,    // 20
	rulePdnsCheckingDisabled,         // 21
	ruleMaradnsQueryClassNotIn,       // 22
	rulePdnsEdnsClientBufsize,        // 23
	ruleBind9_11EdnsBufsize,          // 24
	ruleUnboundFormErrCopiesAdAndAa,  // 25
	ruleRefusedCanBeServFail,         // 26
	ruleQnameMinimalization,          // 27 (also marks cache_state per the closing note)
	ruleBindHsProhibited,             // 28
	ruleMaradnsNoRecursionDesired,    // 29
	ruleMaradnsEmbeddedZero,          // 30
	ruleBindErrorsHaveHardcodedValues, // 31
	rulePdnsRecursorsNonQueryNoResponse, // 32
	ruleResolvedServFailOnNoData,     // 33
	ruleBindExtraNsRecord,            // 34
}

func ruleResolverName(c *context) { c.mark("resolver_name", ResolverName) }

func ruleDnsId(c *context) { c.markSuffix(".id", DnsId) }

func ruleIncomparableCounters(c *context) {
	if c.leftName != c.rightName {
		c.markPrefix("fuzz_result.counters", IncomparableCounters)
	}
}

func ruleMetaDiff(c *context) { c.markContains(".#", MetaDiff) }

func ruleNonINRecursion(c *context) {
	if c.left.GetString("client_query.question.0.class") != "IN" {
		c.mark("response.flags.recursion_available", NonINRecursion)
	}
}

func ruleCookies(c *context) {
	leftHas := c.left.Has("response.edns.options.0.name") && c.left.GetString("response.edns.options.0.name") == "COOKIE"
	rightHas := c.right.Has("response.edns.options.0.name") && c.right.GetString("response.edns.options.0.name") == "COOKIE"
	switch {
	case leftHas && rightHas:
		c.mark("response.edns.options.0.value", CookiesUncomparable)
	case leftHas != rightHas:
		c.mark("response.edns.options.0.name", CookiesUnsupported)
		c.mark("response.edns.options.0.value", CookiesUnsupported)
	}
}

func ruleTodoCacheIgnoredForNow(c *context) {
	for key := range c.diffKeys {
		if !strings.Contains(key, "cache_state.") {
			continue
		}
		if c.left.GetString(key) == "error" || c.right.GetString(key) == "error" {
			c.mark(key, TodoCacheIgnoredForNow)
		}
	}
}

func ruleServFailOnWrongAuthnsAnswer(c *context) {
	lc, rc := c.left.GetString("response.rcode"), c.right.GetString("response.rcode")
	if !((lc == "SERVFAIL" && rc == "NOERROR") || (rc == "SERVFAIL" && lc == "NOERROR")) {
		return
	}
	c.mark("response.rcode", ServFailOnWrongAuthnsAnswerType)
	c.markPrefix("response.answer", ServFailOnWrongAuthnsAnswerType)
	c.markPrefix("response.answer", ServFailOnWrongAuthnsAnswerClass)
}

func ruleMaxTtlLimit(c *context) {
	if !c.hasResolver("Unbound") {
		return
	}
	unboundSide, otherSide := c.sideFor("Unbound")
	if unboundSide.GetInteger("response.answer.0.ttl") != 86400 {
		return
	}
	_ = otherSide // the matching original TTL lives on the other side; mark regardless of exact value
	c.mark("response.answer.0.ttl", MaxTtlLimit)
}

func ruleFormErrOnTruncatedQuery(c *context) {
	truncated := c.left.GetBoolean("client_query.flags.truncated") || c.right.GetBoolean("client_query.flags.truncated")
	if !truncated {
		return
	}
	if c.left.GetString("response.rcode") == "FORMERR" || c.right.GetString("response.rcode") == "FORMERR" {
		c.mark("response.flags.recursion_available", FormErrOnTruncatedQuery)
		c.mark("response.rcode", FormErrOnTruncatedQuery)
	}
}

var clientErrorRcodes = map[string]bool{"FORMERR": true, "NOTIMP": true, "REFUSED": true}

func ruleErrorClientNoRrInAnswer(c *context) {
	lc, rc := c.left.GetString("response.rcode"), c.right.GetString("response.rcode")
	if lc == rc {
		return
	}
	if !clientErrorRcodes[lc] && !clientErrorRcodes[rc] {
		return
	}
	for _, section := range []string{"response.answer", "response.authority", "response.additional"} {
		c.markPrefix(section, ErrorClientNoRrInAnswer)
	}
}

func ruleClientQueryWithoutRdBit(c *context) {
	upstreamSent := c.left.GetInteger("fuzzee_queries.#count") > 0 || c.right.GetInteger("fuzzee_queries.#count") > 0
	if upstreamSent {
		return
	}
	for _, side := range []*kv.ValueMap{c.left, c.right} {
		for _, section := range []string{"response.authority", "response.additional"} {
			n := int(side.GetInteger(section + ".#count"))
			for i := 0; i < n; i++ {
				prefix := fmt.Sprintf("%s.%d", section, i)
				if side.GetString(prefix+".type") == "NS" && side.GetInteger(prefix+".ttl") <= 86400 {
					c.markPrefix(section, ClientQueryWithoutRdBit)
				}
			}
		}
	}
}

func ruleExtendedErrorsUnsupported(c *context) {
	if c.hasResolver("Unbound") || c.hasResolver("PowerDNS") {
		c.markContains("EXTENDED_ERROR", ExtendedErrorsUnsupported)
	}
}

var noEdnsResolvers = map[string]bool{"MaraDNS": true, "Resolved": true, "trust-dns": true}

func ruleNoEdnsSupport(c *context) {
	if !noEdnsResolvers[string(c.leftName)] && !noEdnsResolvers[string(c.rightName)] {
		return
	}
	c.markContains(".edns.", NoEdnsSupport)
	c.mark("response.flags.checking_disabled", NoEdnsSupport)
	if n := c.left.GetInteger("response.additional.#count") - c.right.GetInteger("response.additional.#count"); n == 1 || n == -1 {
		c.mark("response.additional.#count", NoEdnsSupport)
	}
}

func ruleMaradnsNoResponseServfail(c *context) {
	if !c.hasResolver("MaraDNS") {
		return
	}
	maraSide, otherSide := c.sideFor("MaraDNS")
	if maraSide.Has("response.rcode") {
		return
	}
	rc := otherSide.GetString("response.rcode")
	if rc == "SERVFAIL" || rc == "NOERROR" {
		c.mark("response.rcode", MaradnsNoResponseServfail)
	}
}

func ruleTrailingRetransmissions(c *context) {
	ln := int(c.left.GetInteger("fuzzee_queries.#count"))
	rn := int(c.right.GetInteger("fuzzee_queries.#count"))
	if ln == 0 || rn == 0 || ln == rn {
		return
	}
	shorter, longer := ln, rn
	shorterMap, longerMap := c.left, c.right
	if rn < ln {
		shorter, longer = rn, ln
		shorterMap, longerMap = c.right, c.left
	}
	if shorter == 0 {
		return
	}
	lastShortQuestion := shorterMap.GetString(fmt.Sprintf("fuzzee_queries.%d.question.0.name", shorter-1))
	for i := shorter; i < longer; i++ {
		prefix := fmt.Sprintf("fuzzee_queries.%d", i)
		if longerMap.GetString(prefix+".question.0.name") == lastShortQuestion {
			c.markPrefix(prefix, TrailingRetransmissions)
		}
	}
}

func ruleErrorClientQueryIncomparable(c *context) {
	lc, rc := c.left.GetString("response.rcode"), c.right.GetString("response.rcode")
	var failSide, otherSide *kv.ValueMap
	switch {
	case clientErrorRcodes[lc] && !clientErrorRcodes[rc]:
		failSide, otherSide = c.left, c.right
	case clientErrorRcodes[rc] && !clientErrorRcodes[lc]:
		failSide, otherSide = c.right, c.left
	default:
		return
	}
	if failSide.GetInteger("fuzzee_queries.#count") == 0 && otherSide.GetInteger("fuzzee_queries.#count") > 0 {
		c.markPrefix("fuzzee_queries", ErrorClientQueryIncomparableFuzzeeQueries)
	}
}

func ruleBind9NotImpMissingQuery(c *context) {
	if !c.hasResolver("Bind9") {
		return
	}
	bindSide, _ := c.sideFor("Bind9")
	if bindSide.GetString("response.rcode") != "NOTIMP" {
		return
	}
	c.markPrefix("response.question", Bind9NotImpMissingQuerySection)
	c.mark("client_query.question.#count", Bind9NotImpMissingQuerySection)
	c.mark("response.flags.recursion_desired", Bind9NotImpMissingQuerySection)
}

func ruleMaradnsFakeSoaOnAAAA(c *context) {
	if !c.hasResolver("MaraDNS") {
		return
	}
	if c.left.GetString("client_query.question.0.type") != "AAAA" && c.right.GetString("client_query.question.0.type") != "AAAA" {
		return
	}
	maraSide, _ := c.sideFor("MaraDNS")
	if maraSide.GetInteger("response.authority.0.ttl") == 0 && strings.HasPrefix(maraSide.GetString("response.authority.0.rdata"), " z.") {
		c.markPrefix("response.authority", MaradnsFakeSoaOnAAAA)
	}
}

func ruleUnboundProbesUsingARecord(c *context) {
	if !c.hasResolver("Unbound") {
		return
	}
	unboundSide, otherSide := c.sideFor("Unbound")
	un := int(unboundSide.GetInteger("fuzzee_queries.#count"))
	on := int(otherSide.GetInteger("fuzzee_queries.#count"))
	if un != on+1 {
		return
	}
	last := fmt.Sprintf("fuzzee_queries.%d", un-1)
	if unboundSide.GetString(last+".question.0.type") == "A" {
		c.markPrefix(last, UnboundProbesUsingARecord)
		c.mark(fmt.Sprintf("fuzzee_queries.%d.question.0.type", un-2), UnboundProbesUsingARecord)
	}
}

func rulePdnsCheckingDisabled(c *context) {
	if !c.hasResolver("PowerDNS") {
		return
	}
	pdnsSide, _ := c.sideFor("PowerDNS")
	n := int(pdnsSide.GetInteger("fuzzee_queries.#count"))
	for i := 0; i < n; i++ {
		c.mark(fmt.Sprintf("fuzzee_queries.%d.flags.checking_disabled", i), PdnsCheckingDisabled)
	}
}

func ruleMaradnsQueryClassNotIn(c *context) {
	if !c.hasResolver("MaraDNS") {
		return
	}
	if c.left.GetString("client_query.question.0.class") == "IN" && c.right.GetString("client_query.question.0.class") == "IN" {
		return
	}
	maraSide, _ := c.sideFor("MaraDNS")
	if maraSide.GetString("response.question.0.class") == "IN" {
		c.mark("response.question.0.class", MaradnsQueryClassNotIn)
	}
}

func rulePdnsEdnsClientBufsize(c *context) {
	if !c.hasResolver("PowerDNS") {
		return
	}
	pdnsSide, _ := c.sideFor("PowerDNS")
	if pdnsSide.GetInteger("response.edns.udp_size") == 512 {
		c.mark("response.edns.udp_size", PdnsEdnsClientBufsize)
	}
}

func ruleBind9_11EdnsBufsize(c *context) {
	if !c.hasResolver("Bind9") {
		return
	}
	bindSide, _ := c.sideFor("Bind9")
	switch bindSide.GetInteger("client_query.edns.udp_size") {
	case 4096:
		c.mark("client_query.edns.udp_size", Bind9_11EdnsClientBufsize)
	}
	if bindSide.GetInteger("response.edns.udp_size") == 512 {
		c.mark("response.edns.udp_size", Bind9_11EdnsServerBufsize)
	}
}

func ruleUnboundFormErrCopiesAdAndAa(c *context) {
	if !c.hasResolver("Unbound") {
		return
	}
	unboundSide, _ := c.sideFor("Unbound")
	if unboundSide.GetString("response.rcode") != "FORMERR" {
		return
	}
	c.mark("response.flags.authoritative", UnboundFormErrCopiesAdAndAa)
	c.mark("response.flags.authenticated_data", UnboundFormErrCopiesAdAndAa)
}

func ruleRefusedCanBeServFail(c *context) {
	lc, rc := c.left.GetString("response.rcode"), c.right.GetString("response.rcode")
	pair := map[string]bool{"REFUSED": true, "SERVFAIL": true}
	if !pair[lc] || !pair[rc] || lc == rc {
		return
	}
	triggered := c.left.GetString("client_query.question.0.class") == "NONE" ||
		c.right.GetString("client_query.question.0.class") == "NONE" ||
		lc == "REFUSED" || rc == "REFUSED"
	if triggered {
		c.mark("response.rcode", RefusedCanBeServFail)
	}
}

func ruleQnameMinimalization(c *context) {
	n := int(c.left.GetInteger("fuzzee_queries.#count"))
	if rn := int(c.right.GetInteger("fuzzee_queries.#count")); rn > n {
		n = rn
	}
	marked := false
	for i := 0; i < n; i++ {
		prefix := fmt.Sprintf("fuzzee_queries.%d.question.0", i)
		name := c.left.GetString(prefix + ".name")
		if name == "" {
			name = c.right.GetString(prefix + ".name")
		}
		qtype := c.left.GetString(prefix + ".type")
		if qtype == "" {
			qtype = c.right.GetString(prefix + ".type")
		}
		if (qtype == "NS" || qtype == "A") && strings.HasPrefix(name, "_.") {
			c.markPrefix(fmt.Sprintf("fuzzee_queries.%d", i), QnameMinimalization)
			c.mark(fmt.Sprintf("fuzzee_queries.%d.response_idx", i), QnameMinimalization)
			marked = true
		}
	}
	if marked {
		for key := range c.diffKeys {
			if strings.Contains(key, "cache_state.") {
				c.mark(key, TodoCacheIgnoredForNow)
			}
		}
	}
}

func ruleBindHsProhibited(c *context) {
	if !c.hasResolver("Bind9") {
		return
	}
	bindSide, _ := c.sideFor("Bind9")
	if bindSide.GetString("response.rcode") == "REFUSED" {
		c.mark("response.rcode", BindHsProhibited)
	}
}

func ruleMaradnsNoRecursionDesired(c *context) {
	if !c.hasResolver("MaraDNS") {
		return
	}
	if c.left.GetBoolean("client_query.flags.recursion_desired") || c.right.GetBoolean("client_query.flags.recursion_desired") {
		return
	}
	maraSide, _ := c.sideFor("MaraDNS")
	if !maraSide.Has("response.rcode") {
		c.mark("response.rcode", MaradnsNoRecursionDesired)
	}
}

func ruleMaradnsEmbeddedZero(c *context) {
	if !c.hasResolver("MaraDNS") {
		return
	}
	name := c.left.GetString("client_query.question.0.name")
	if name == "" {
		name = c.right.GetString("client_query.question.0.name")
	}
	if !strings.Contains(name, "\x00") {
		return
	}
	maraSide, _ := c.sideFor("MaraDNS")
	if !maraSide.Has("response.rcode") {
		c.mark("response.rcode", MaradnsEmbeddedZero)
	}
}

func ruleBindErrorsHaveHardcodedValues(c *context) {
	if !c.hasResolver("Bind9") {
		return
	}
	bindSide, _ := c.sideFor("Bind9")
	rc := bindSide.GetString("response.rcode")
	if rc != "NOTIMP" && rc != "FORMERR" {
		return
	}
	if bindSide.GetInteger("response.edns.udp_size") == 1232 {
		c.mark("response.edns.udp_size", BindErrorsHaveHardcodedValues)
	}
	c.mark("response.flags.checking_disabled", BindErrorsHaveHardcodedValues)
	c.mark("response.flags.recursion_desired", BindErrorsHaveHardcodedValues)
}

func rulePdnsRecursorsNonQueryNoResponse(c *context) {
	if !c.hasResolver("PowerDNS") {
		return
	}
	if c.left.GetString("client_query.opcode") == "QUERY" && c.right.GetString("client_query.opcode") == "QUERY" {
		return
	}
	pdnsSide, _ := c.sideFor("PowerDNS")
	if !pdnsSide.Has("response.rcode") {
		c.mark("response.rcode", PdnsRecursorsNonQueryNoResponse)
	}
}

func ruleResolvedServFailOnNoData(c *context) {
	if !c.hasResolver("Resolved") {
		return
	}
	lc, rc := c.left.GetString("response.rcode"), c.right.GetString("response.rcode")
	if (lc == "SERVFAIL" && rc == "NOERROR") || (rc == "SERVFAIL" && lc == "NOERROR") {
		c.mark("response.rcode", ResolvedServFailOnNoData)
	}
}

func ruleBindExtraNsRecord(c *context) {
	if !c.hasResolver("Bind9") {
		return
	}
	bindSide, otherSide := c.sideFor("Bind9")
	bn := int(bindSide.GetInteger("response.authority.#count"))
	on := int(otherSide.GetInteger("response.authority.#count"))
	if bn <= on {
		return
	}
	for i := on; i < bn; i++ {
		c.mark(fmt.Sprintf("response.authority.%d.type", i), Bind9ExtraNsRecord)
		c.mark(fmt.Sprintf("response.authority.%d.type", i), Bind9_11ExtraNsRecord)
	}
	c.mark("response.authority.#count", Bind9ExtraNsRecord)
}
