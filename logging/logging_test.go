// Copyright © by the dnsdiff-fuzzer authors.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.
// SPDX-License-Identifier: Apache-2.0

package logging

import (
	"log/slog"
	"testing"
	"time"
)

func TestNewWithoutSyslogPublishesToPubSub(t *testing.T) {
	log, ps, err := New(Config{Level: slog.LevelInfo})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	sub := ps.Subscribe()

	log.Info("epoch complete", "epoch", 1)

	select {
	case msg := <-sub:
		if msg == nil || *msg == "" {
			t.Fatal("expected a non-empty log line")
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for a published log line")
	}
}
