// Copyright © by the dnsdiff-fuzzer authors.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.
// SPDX-License-Identifier: Apache-2.0

package mutator

import (
	"math/rand/v2"
	"strings"

	"github.com/miekg/dns"
)

// nameOp enumerates the name mutation operations, weighted toward push
// and pop.
type nameOp int

const (
	nameOpPushLabel nameOp = iota
	nameOpPopLabel
	nameOpReplaceLabel
	nameOpMergeLabels
	nameOpAppendZero
	nameOpAppendZeroDuplicate
)

var nameOpWeights = []int{3, 3, 2, 1, 1, 1}

var zoneLabels = dns.SplitDomainName(zoneSuffix)

// mutateName applies one weighted name operation to name and returns
// the resulting FQDN. pop_label is a no-op (falls back to
// replace_label) once name has shrunk down to the zone's own labels:
// these only apply inside the test.fuzz. zone.
func mutateName(rng *rand.Rand, name string) string {
	labels := dns.SplitDomainName(name)

	switch pickNameOp(rng) {
	case nameOpPushLabel:
		pos := rng.IntN(len(labels) + 1)
		labels = insertLabel(labels, pos, randomLabel(rng))
	case nameOpPopLabel:
		if len(labels) > len(zoneLabels) {
			pos := rng.IntN(len(labels) - len(zoneLabels))
			labels = append(labels[:pos], labels[pos+1:]...)
		} else {
			return replaceRandomLabel(rng, labels)
		}
	case nameOpReplaceLabel:
		return replaceRandomLabel(rng, labels)
	case nameOpMergeLabels:
		if len(labels) >= 2 {
			pos := rng.IntN(len(labels) - 1)
			merged := labels[pos] + `\.` + labels[pos+1]
			labels = append(append(append([]string{}, labels[:pos]...), merged), labels[pos+2:]...)
		}
	case nameOpAppendZero:
		labels = append(labels, `\000`)
	case nameOpAppendZeroDuplicate:
		labels = append(labels, `\000`, `\000`)
	}

	if len(labels) == 0 {
		return "."
	}
	return dns.Fqdn(strings.Join(labels, "."))
}

func replaceRandomLabel(rng *rand.Rand, labels []string) string {
	if len(labels) == 0 {
		return dns.Fqdn(randomLabel(rng))
	}
	pos := rng.IntN(len(labels))
	labels[pos] = randomLabel(rng)
	return dns.Fqdn(strings.Join(labels, "."))
}

func insertLabel(labels []string, pos int, label string) []string {
	out := make([]string, 0, len(labels)+1)
	out = append(out, labels[:pos]...)
	out = append(out, label)
	out = append(out, labels[pos:]...)
	return out
}

func pickNameOp(rng *rand.Rand) nameOp {
	total := 0
	for _, w := range nameOpWeights {
		total += w
	}
	target := rng.IntN(total)
	for i, w := range nameOpWeights {
		if target < w {
			return nameOp(i)
		}
		target -= w
	}
	return nameOpReplaceLabel
}

const labelAlphabet = "abcdefghijklmnopqrstuvwxyz"

func randomLabel(rng *rand.Rand) string {
	n := 1 + rng.IntN(8)
	b := make([]byte, n)
	for i := range b {
		b[i] = labelAlphabet[rng.IntN(len(labelAlphabet))]
	}
	return string(b)
}

// randomAlphabet builds the 5-string, 5-distinct-letter label
// alphabet a fresh FuzzCase draws its names from.
func randomAlphabet(rng *rand.Rand) []string {
	out := make([]string, 5)
	for i := range out {
		out[i] = distinctLetters(rng, 5)
	}
	return out
}

func distinctLetters(rng *rand.Rand, n int) string {
	perm := rng.Perm(len(labelAlphabet))
	b := make([]byte, n)
	for i := 0; i < n; i++ {
		b[i] = labelAlphabet[perm[i]]
	}
	return string(b)
}
