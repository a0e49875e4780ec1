// Copyright © by the dnsdiff-fuzzer authors.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.
// SPDX-License-Identifier: Apache-2.0

package fuzzloop

import (
	"context"
	"fmt"
	"os"

	"github.com/fxamacker/cbor/v2"

	"github.com/dnsdiff/fuzzer/counters"
	"github.com/dnsdiff/fuzzer/ids"
	"github.com/dnsdiff/fuzzer/model"
)

// WarmUp determines each executor's background activity profile: the
// counters a resolver touches on its own, with no client queries in
// flight, so accountCoverage can discard that noise from every
// suite's coverage instead of crediting it as new. The profile is
// measured once per resolver, by running an empty FuzzSuite, and
// cached at path (background_activity_profile.postcard, keyed by
// resolver name) so restarts reuse it rather than paying for another
// sandbox spawn. reset forces every resolver to be remeasured.
func (l *Loop) WarmUp(ctx context.Context, path string, reset bool) error {
	profiles := make(map[model.ResolverName]*counters.Counters)
	if !reset {
		if data, err := os.ReadFile(path); err == nil {
			_ = cbor.Unmarshal(data, &profiles)
		}
	}

	dirty := false
	for resolver, executor := range l.executors {
		if _, ok := profiles[resolver]; ok {
			continue
		}
		l.log.Info("measuring background activity profile", "resolver", string(resolver))
		rs, err := executor.Run(ctx, &model.FuzzSuite{ID: ids.New()})
		if err != nil {
			return fmt.Errorf("fuzzloop: background activity probe for %s: %w", resolver, err)
		}
		if rs.BackgroundActivity == nil {
			return fmt.Errorf("fuzzloop: %s reported no background activity counters", resolver)
		}
		profiles[resolver] = rs.BackgroundActivity
		dirty = true
		l.log.Info("measured background activity profile", "resolver", string(resolver))
	}

	l.mu.Lock()
	l.backgroundActivity = profiles
	l.mu.Unlock()

	if !dirty {
		return nil
	}
	data, err := cbor.Marshal(profiles)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}
