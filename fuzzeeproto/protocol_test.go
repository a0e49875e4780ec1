// Copyright © by the dnsdiff-fuzzer authors.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.
// SPDX-License-Identifier: Apache-2.0

package fuzzeeproto

import (
	"net"
	"testing"
	"time"
)

func TestClientServerRoundTrip(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()

	counter := NewCounterArray()
	counter.SetSize(4)
	counter.Increment(0)
	counter.Increment(0)
	counter.Increment(2)

	agent := NewAgent(counter, nil)
	done := make(chan int, 1)
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			done <- -1
			return
		}
		done <- agent.Serve(conn)
	}()

	client, err := Dial(ln.Addr().String(), 2*time.Second)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer client.Close()

	vals, err := client.Get()
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	want := []uint32{2, 0, 1, 0}
	for i, w := range want {
		if vals.Counter[i] != w {
			t.Fatalf("index %d: got %d want %d", i, vals.Counter[i], w)
		}
	}

	reset, err := client.GetAndReset()
	if err != nil {
		t.Fatalf("get_and_reset: %v", err)
	}
	for i, w := range want {
		if reset.Counter[i] != w {
			t.Fatalf("reset snapshot index %d: got %d want %d", i, reset.Counter[i], w)
		}
	}

	after, err := client.Get()
	if err != nil {
		t.Fatalf("get after reset: %v", err)
	}
	for i, v := range after.Counter {
		if v != 0 {
			t.Fatalf("index %d: expected 0 after reset, got %d", i, v)
		}
	}

	if err := client.Terminate(); err != nil {
		t.Fatalf("terminate: %v", err)
	}
	if code := <-done; code != TerminateExitCode {
		t.Fatalf("got exit code %d want %d", code, TerminateExitCode)
	}
}
