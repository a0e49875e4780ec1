// Copyright © by the dnsdiff-fuzzer authors.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.
// SPDX-License-Identifier: Apache-2.0

package fuzzloop

import (
	"context"
	"testing"
	"time"

	"github.com/dnsdiff/fuzzer/counters"
	"github.com/dnsdiff/fuzzer/diffmatch"
	"github.com/dnsdiff/fuzzer/ids"
	"github.com/dnsdiff/fuzzer/kv"
	"github.com/dnsdiff/fuzzer/model"
	"github.com/dnsdiff/fuzzer/reprocache"
	"github.com/miekg/dns"
)

// fakeExecutor answers every FuzzSuite with a clean, identical result
// for every resolver, so the differencing stages find nothing to
// report unless a test explicitly perturbs one resolver's answers.
type fakeExecutor struct {
	resolver model.ResolverName
	perturb  bool
	runs     int
}

func (e *fakeExecutor) Run(_ context.Context, suite *model.FuzzSuite) (*model.FuzzResultSet, error) {
	e.runs++
	rs := &model.FuzzResultSet{ID: suite.ID, Fuzzee: e.resolver}
	for _, fc := range suite.TestCases {
		resp := new(dns.Msg)
		resp.SetReply(fc.ClientQuery)
		if e.perturb {
			resp.Authoritative = true
		}
		cnt := counters.New(8, 0)
		rs.Results = append(rs.Results, &model.FuzzResult{
			ID:             fc.ID,
			Counters:       &cnt,
			FuzzeeResponse: resp,
		})
	}
	bg := counters.New(8, 0)
	rs.BackgroundActivity = &bg
	return rs, nil
}

func TestEpochRunsSuiteAgainstEveryExecutor(t *testing.T) {
	a := &fakeExecutor{resolver: "Bind9"}
	b := &fakeExecutor{resolver: "Unbound"}
	executors := map[model.ResolverName]reprocache.Executor{
		a.resolver: a,
		b.resolver: b,
	}

	loop := New(Config{SuiteSize: 4, MinRandom: 4}, executors, nil, 42, nil)
	loop.cache = reprocache.New(executors, loop.LookupCase, 100)
	loop.Seed(4)

	caseIDs, err := loop.Epoch(context.Background())
	if err != nil {
		t.Fatalf("Epoch: %v", err)
	}
	if len(caseIDs) != 4 {
		t.Fatalf("got %d case ids, want 4", len(caseIDs))
	}
	if a.runs != 1 || b.runs != 1 {
		t.Fatalf("expected each executor to run once, got a=%d b=%d", a.runs, b.runs)
	}
	// The 4 seeds stay queued and the 4 newcomers that ran are pushed
	// back alongside them.
	if loop.QueueLen() != 8 {
		t.Fatalf("expected queued population of 8, got %d", loop.QueueLen())
	}
	if loop.EpochNumber() != 1 {
		t.Fatalf("expected epoch counter 1, got %d", loop.EpochNumber())
	}
}

func TestEpochCompletesWithPerturbedExecutor(t *testing.T) {
	a := &fakeExecutor{resolver: "Bind9"}
	b := &fakeExecutor{resolver: "Unbound", perturb: true}
	executors := map[model.ResolverName]reprocache.Executor{
		a.resolver: a,
		b.resolver: b,
	}

	loop := New(Config{SuiteSize: 3, MinRandom: 3}, executors, nil, 7, nil)
	loop.cache = reprocache.New(executors, loop.LookupCase, 100)
	loop.Seed(3)

	caseIDs, err := loop.Epoch(context.Background())
	if err != nil {
		t.Fatalf("Epoch: %v", err)
	}
	if len(caseIDs) == 0 {
		t.Fatal("expected at least one case to run")
	}
}

func TestSelectAndMutateToppedUpToSuiteSize(t *testing.T) {
	executors := map[model.ResolverName]reprocache.Executor{}
	loop := New(Config{SuiteSize: 5, MinRandom: 1}, executors, nil, 1, nil)
	loop.Seed(1)

	caseIDs, _ := loop.selectAndMutate()
	if len(caseIDs) != 5 {
		t.Fatalf("got %d case ids, want 5", len(caseIDs))
	}
}

func TestRecordReplicationFollowsScoreLadder(t *testing.T) {
	loop := New(Config{SuiteSize: 1, MinRandom: 1}, nil, nil, 3, nil)

	left := kv.NewValueMap()
	right := kv.NewValueMap()
	fp := diffmatch.NewFingerprint(nil, left, right)

	var last float64
	for i := 0; i < 12; i++ {
		last = loop.recordReplication(ids.New(), fp)
	}
	if last != 20 && last != 10 {
		t.Fatalf("expected ladder score for set size ~12, got %v", last)
	}
}

func TestPruneSandboxesDoesNotPanicWithoutEngine(t *testing.T) {
	loop := New(Config{SuiteSize: 1, MinRandom: 1, ContainerEngine: "nonexistent-engine-binary"}, nil, nil, 9, nil)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	loop.pruneSandboxes(ctx)
}
