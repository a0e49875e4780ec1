// Copyright © by the dnsdiff-fuzzer authors.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.
// SPDX-License-Identifier: Apache-2.0

package reprocache

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/dnsdiff/fuzzer/ids"
	"github.com/dnsdiff/fuzzer/model"
)

type fakeExecutor struct {
	mu   sync.Mutex
	runs int
}

func (f *fakeExecutor) Run(_ context.Context, suite *model.FuzzSuite) (*model.FuzzResultSet, error) {
	f.mu.Lock()
	f.runs++
	f.mu.Unlock()

	rs := &model.FuzzResultSet{ID: suite.ID, Fuzzee: "Bind9"}
	for _, tc := range suite.TestCases {
		rs.Results = append(rs.Results, &model.FuzzResult{ID: tc.ID})
	}
	return rs, nil
}

func TestGetDispatchesOnceBatchFull(t *testing.T) {
	fc1 := &model.FuzzCase{ID: ids.New()}
	fc2 := &model.FuzzCase{ID: ids.New()}

	lookup := func(id ids.FuzzCaseId) (*model.FuzzCase, bool) {
		for _, fc := range []*model.FuzzCase{fc1, fc2} {
			if fc.ID == id {
				return fc, true
			}
		}
		return nil, false
	}

	exec := &fakeExecutor{}
	c := New(map[model.ResolverName]Executor{"Bind9": exec}, lookup, 2)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	var wg sync.WaitGroup
	results := make([]*model.FuzzResultSet, 2)
	wg.Add(2)
	go func() {
		defer wg.Done()
		rs, err := c.Get(ctx, fc1.ID, "Bind9")
		if err != nil {
			t.Error(err)
		}
		results[0] = rs
	}()
	go func() {
		defer wg.Done()
		rs, err := c.Get(ctx, fc2.ID, "Bind9")
		if err != nil {
			t.Error(err)
		}
		results[1] = rs
	}()
	wg.Wait()

	if results[0] == nil || results[1] == nil {
		t.Fatal("expected both Get calls to resolve")
	}
	if exec.runs != 1 {
		t.Fatalf("expected exactly one batch run, got %d", exec.runs)
	}
}

func TestFinishComputationFlushesPartialBatch(t *testing.T) {
	fc := &model.FuzzCase{ID: ids.New()}
	lookup := func(id ids.FuzzCaseId) (*model.FuzzCase, bool) {
		if fc.ID == id {
			return fc, true
		}
		return nil, false
	}

	exec := &fakeExecutor{}
	c := New(map[model.ResolverName]Executor{"Bind9": exec}, lookup, 10)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	done := make(chan *model.FuzzResultSet, 1)
	go func() {
		rs, _ := c.Get(ctx, fc.ID, "Bind9")
		done <- rs
	}()

	time.Sleep(20 * time.Millisecond)
	c.FinishComputation()

	select {
	case rs := <-done:
		if rs == nil {
			t.Fatal("expected a result after FinishComputation")
		}
	case <-ctx.Done():
		t.Fatal("timed out waiting for FinishComputation to flush the pending batch")
	}
}
