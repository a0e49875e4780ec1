// Copyright © by the dnsdiff-fuzzer authors.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.
// SPDX-License-Identifier: Apache-2.0

package pubsub_test

import (
	"fmt"
	"testing"
	"time"

	"github.com/dnsdiff/fuzzer/pubsub"
)

func TestLoggersAreIndependent(t *testing.T) {
	logger1 := pubsub.NewLogger()
	logger2 := pubsub.NewLogger()

	sub1 := logger1.Subscribe()
	sub2 := logger2.Subscribe()

	logger1.Publish(fmt.Sprintf("message for logger1"))

	time.Sleep(50 * time.Millisecond)

	select {
	case msg := <-sub1:
		if *msg != "message for logger1" {
			t.Errorf("expected 'message for logger1', got: %s", *msg)
		}
	default:
		t.Error("expected a message on logger1's subscription")
	}

	select {
	case msg := <-sub2:
		t.Errorf("didn't expect a message on logger2, got: %s", *msg)
	default:
	}

	logger2.Publish("message for logger2")
	time.Sleep(50 * time.Millisecond)

	select {
	case msg := <-sub2:
		if *msg != "message for logger2" {
			t.Errorf("expected 'message for logger2', got: %s", *msg)
		}
	default:
		t.Error("expected a message on logger2's subscription")
	}

	select {
	case msg := <-sub1:
		t.Errorf("didn't expect another message on logger1, got: %s", *msg)
	default:
	}
}
