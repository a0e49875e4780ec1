// Copyright © by the dnsdiff-fuzzer authors.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.
// SPDX-License-Identifier: Apache-2.0

// Package reprocache implements the batch reproduction cache (C8):
// candidate new differences observed by the fuzzing loop must be
// re-run against the involved resolvers to confirm they reproduce;
// many candidates stack up within one epoch, so this package coalesces
// them into batches instead of re-running the sandbox once per
// candidate.
package reprocache

import (
	"context"
	"sync"

	"github.com/dnsdiff/fuzzer/ids"
	"github.com/dnsdiff/fuzzer/model"
)

// Executor runs a FuzzSuite against a single resolver and returns its
// result set. sandbox.Pool implements this.
type Executor interface {
	Run(ctx context.Context, suite *model.FuzzSuite) (*model.FuzzResultSet, error)
}

// CaseLookup resolves a previously-seen FuzzCaseId back to its
// FuzzCase, as the fuzzing loop's fuzz_cases map does.
type CaseLookup func(ids.FuzzCaseId) (*model.FuzzCase, bool)

type resultKey struct {
	Case     ids.FuzzCaseId
	Resolver model.ResolverName
}

// Cache is the batch reproduction cache. The zero value is not usable;
// construct with New.
type Cache struct {
	executors map[model.ResolverName]Executor
	lookup    CaseLookup

	mu        sync.Mutex
	computed  map[resultKey]*model.FuzzResultSet
	pendingSet map[ids.FuzzCaseId]bool
	pending   []ids.FuzzCaseId
	batchSize int
	notify    chan struct{}
}

// New returns a Cache dispatching batches across executors, looking up
// FuzzCase bodies via lookup, with the given initial batch size.
func New(executors map[model.ResolverName]Executor, lookup CaseLookup, batchSize int) *Cache {
	if batchSize < 1 {
		batchSize = 1
	}
	return &Cache{
		executors:  executors,
		lookup:     lookup,
		computed:   make(map[resultKey]*model.FuzzResultSet),
		pendingSet: make(map[ids.FuzzCaseId]bool),
		batchSize:  batchSize,
		notify:     make(chan struct{}),
	}
}

// Get returns the FuzzResultSet for (fcID, resolver), blocking until a
// batch run computes it via a three-step procedure:
// check the cache, enroll into the pending batch while holding the
// lock so the subscription can never miss the broadcast that follows,
// then wait.
func (c *Cache) Get(ctx context.Context, fcID ids.FuzzCaseId, resolver model.ResolverName) (*model.FuzzResultSet, error) {
	for {
		c.mu.Lock()
		if rs, ok := c.computed[resultKey{Case: fcID, Resolver: resolver}]; ok {
			c.mu.Unlock()
			return rs, nil
		}

		ch := c.notify
		if !c.pendingSet[fcID] {
			c.pendingSet[fcID] = true
			c.pending = append(c.pending, fcID)
			if len(c.pending) >= c.batchSize {
				c.drainLocked()
			}
		}
		c.mu.Unlock()

		select {
		case <-ch:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// FinishComputation sets the batch size to 1 and flushes whatever is
// pending, so that a partial batch left over at the end of an epoch's
// verification pass is not starved waiting for more candidates that
// will never arrive.
func (c *Cache) FinishComputation() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.batchSize = 1
	if len(c.pending) > 0 {
		c.drainLocked()
	}
}

// drainLocked must be called with c.mu held. It snapshots and clears
// the pending batch, then runs it against every executor in the
// background and broadcasts completion once all of them finish.
func (c *Cache) drainLocked() {
	batch := c.pending
	c.pending = nil
	c.pendingSet = make(map[ids.FuzzCaseId]bool)

	cases := make([]*model.FuzzCase, 0, len(batch))
	for _, id := range batch {
		if fc, ok := c.lookup(id); ok {
			cases = append(cases, fc)
		}
	}
	suite := &model.FuzzSuite{ID: ids.New(), TestCases: cases}

	go c.runBatch(suite)
}

func (c *Cache) runBatch(suite *model.FuzzSuite) {
	var wg sync.WaitGroup
	type outcome struct {
		resolver model.ResolverName
		rs       *model.FuzzResultSet
	}
	results := make(chan outcome, len(c.executors))

	for resolver, executor := range c.executors {
		wg.Add(1)
		go func(resolver model.ResolverName, executor Executor) {
			defer wg.Done()
			rs, err := executor.Run(context.Background(), suite)
			if err != nil {
				return
			}
			results <- outcome{resolver: resolver, rs: rs}
		}(resolver, executor)
	}

	go func() {
		wg.Wait()
		close(results)
	}()

	c.mu.Lock()
	for o := range results {
		for _, tc := range suite.TestCases {
			if r, ok := o.rs.ResultFor(tc.ID); ok {
				perCase := &model.FuzzResultSet{
					ID:                 o.rs.ID,
					Fuzzee:             o.resolver,
					Results:            []*model.FuzzResult{r},
					BackgroundActivity: o.rs.BackgroundActivity,
					TimeStart:          o.rs.TimeStart,
					TimeEnd:            o.rs.TimeEnd,
					Meta:               o.rs.Meta,
				}
				c.computed[resultKey{Case: tc.ID, Resolver: o.resolver}] = perCase
			}
		}
	}
	ch := c.notify
	c.notify = make(chan struct{})
	c.mu.Unlock()
	close(ch)
}

// Invalidate removes every cached result for fcID, forcing the next
// Get to enroll it in a fresh batch. Used when a case is mutated into
// a new id so a stale entry under the old id cannot leak forward.
func (c *Cache) Invalidate(fcID ids.FuzzCaseId) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for k := range c.computed {
		if k.Case == fcID {
			delete(c.computed, k)
		}
	}
}
