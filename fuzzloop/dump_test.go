// Copyright © by the dnsdiff-fuzzer authors.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.
// SPDX-License-Identifier: Apache-2.0

package fuzzloop

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/dnsdiff/fuzzer/counters"
	"github.com/dnsdiff/fuzzer/diffmatch"
	"github.com/dnsdiff/fuzzer/ids"
	"github.com/dnsdiff/fuzzer/kv"
	"github.com/dnsdiff/fuzzer/model"
	"github.com/miekg/dns"
)

func TestDumpDifferenceWritesExpectedFiles(t *testing.T) {
	dir := t.TempDir()
	loop := New(Config{SuiteSize: 1, MinRandom: 1}, nil, nil, 5, nil)
	loop.SetDumpDir(dir)

	q := new(dns.Msg)
	q.SetQuestion("example.com.", dns.TypeA)
	fc := &model.FuzzCase{ID: ids.New(), ClientQuery: q}

	cnt := counters.New(4, 0)
	left := &model.FuzzResult{ID: fc.ID, Counters: &cnt, FuzzeeResponse: new(dns.Msg)}
	right := &model.FuzzResult{ID: fc.ID, Counters: &cnt, FuzzeeResponse: new(dns.Msg)}

	pair := newResolverPair("Bind9", "Unbound")
	fp := diffmatch.NewFingerprint([]string{"response.rcode"}, kv.NewValueMap(), kv.NewValueMap())

	loop.dumpDifference(fc.ID, pair, fc, left, right, fp)

	caseDir := filepath.Join(dir, fc.ID.String(), "Bind9-Unbound")
	for _, name := range []string{
		"fuzz-suite.postcard",
		"fuzz-suite-full.postcard.gz",
		"Bind9.json.gz",
		"Unbound.json.gz",
		"fingerprint.json",
		"fulldiff.txt",
	} {
		if _, err := os.Stat(filepath.Join(caseDir, name)); err != nil {
			t.Errorf("expected %s to exist: %v", name, err)
		}
	}
}

func TestDumpDifferenceNoOpWithoutDumpDir(t *testing.T) {
	loop := New(Config{SuiteSize: 1, MinRandom: 1}, nil, nil, 5, nil)

	q := new(dns.Msg)
	q.SetQuestion("example.com.", dns.TypeA)
	fc := &model.FuzzCase{ID: ids.New(), ClientQuery: q}
	cnt := counters.New(4, 0)
	r := &model.FuzzResult{ID: fc.ID, Counters: &cnt, FuzzeeResponse: new(dns.Msg)}
	fp := diffmatch.NewFingerprint(nil, kv.NewValueMap(), kv.NewValueMap())

	loop.dumpDifference(fc.ID, newResolverPair("A", "B"), fc, r, r, fp)
}
