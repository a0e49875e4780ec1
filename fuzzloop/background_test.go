// Copyright © by the dnsdiff-fuzzer authors.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.
// SPDX-License-Identifier: Apache-2.0

package fuzzloop

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/dnsdiff/fuzzer/counters"
	"github.com/dnsdiff/fuzzer/model"
	"github.com/dnsdiff/fuzzer/reprocache"
)

type warmUpExecutor struct {
	resolver model.ResolverName
	runs     int
}

func (e *warmUpExecutor) Run(_ context.Context, suite *model.FuzzSuite) (*model.FuzzResultSet, error) {
	e.runs++
	bg := counters.New(4, 0)
	return &model.FuzzResultSet{ID: suite.ID, Fuzzee: e.resolver, BackgroundActivity: &bg}, nil
}

func TestWarmUpMeasuresOncePerResolverAndPersists(t *testing.T) {
	exec := &warmUpExecutor{resolver: "Bind9"}
	executors := map[model.ResolverName]reprocache.Executor{"Bind9": exec}
	loop := New(Config{SuiteSize: 1, MinRandom: 1}, executors, nil, 1, nil)

	path := filepath.Join(t.TempDir(), "background_activity_profile.postcard")
	if err := loop.WarmUp(context.Background(), path, false); err != nil {
		t.Fatalf("WarmUp: %v", err)
	}
	if exec.runs != 1 {
		t.Fatalf("expected exactly 1 probe run, got %d", exec.runs)
	}
	if loop.backgroundActivity["Bind9"] == nil {
		t.Fatal("expected a cached background activity profile for Bind9")
	}

	loop2 := New(Config{SuiteSize: 1, MinRandom: 1}, executors, nil, 1, nil)
	if err := loop2.WarmUp(context.Background(), path, false); err != nil {
		t.Fatalf("WarmUp (reload): %v", err)
	}
	if exec.runs != 1 {
		t.Fatalf("expected the persisted profile to be reused, not remeasured; got %d runs", exec.runs)
	}

	if err := loop2.WarmUp(context.Background(), path, true); err != nil {
		t.Fatalf("WarmUp (reset): %v", err)
	}
	if exec.runs != 2 {
		t.Fatalf("expected reset to force remeasurement; got %d runs", exec.runs)
	}
}
