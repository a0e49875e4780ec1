// Copyright © by the dnsdiff-fuzzer authors.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.
// SPDX-License-Identifier: Apache-2.0

package fuzzeeproto

import (
	"bufio"
	"encoding/json"
	"log/slog"
	"net"
	"sync/atomic"
)

// CounterArrayCapacity is the fixed capacity of the global counter array
// maintained inside an instrumented resolver.
const CounterArrayCapacity = 1 << 20

// CounterArray is the sandbox-side global coverage counter array. Reads
// and resets use sequentially-consistent atomic operations on each
// word; the snapshot as a whole is not transactional: concurrent
// execution of instrumented code is permitted, and every word is
// atomically read.
type CounterArray struct {
	words []atomic.Uint32
	size  atomic.Uint32
}

// NewCounterArray allocates the fixed-capacity backing store. SetSize
// publishes the effective size once the SanCov init hooks have run.
func NewCounterArray() *CounterArray {
	return &CounterArray{words: make([]atomic.Uint32, CounterArrayCapacity)}
}

// SetSize publishes the effective counter array size, as the SanCov
// init hooks would.
func (c *CounterArray) SetSize(n uint32) {
	c.size.Store(n)
}

// Increment bumps the counter at idx; called from instrumented edges.
func (c *CounterArray) Increment(idx uint32) {
	if int(idx) >= len(c.words) {
		return
	}
	c.words[idx].Add(1)
}

func (c *CounterArray) effectiveSize() int {
	n := int(c.size.Load())
	if n == 0 || n > len(c.words) {
		return len(c.words)
	}
	return n
}

// Snapshot reads every active word with a sequentially-consistent load.
func (c *CounterArray) Snapshot() []uint32 {
	n := c.effectiveSize()
	out := make([]uint32, n)
	for i := 0; i < n; i++ {
		out[i] = c.words[i].Load()
	}
	return out
}

// SnapshotAndReset reads every active word and swaps it back to zero,
// word by word, with sequentially-consistent atomics.
func (c *CounterArray) SnapshotAndReset() []uint32 {
	n := c.effectiveSize()
	out := make([]uint32, n)
	for i := 0; i < n; i++ {
		out[i] = c.words[i].Swap(0)
	}
	return out
}

// Agent is the in-sandbox side of the control protocol. It is embedded
// into the instrumented resolver process via the coverage
// instrumentation runtime (an external collaborator).
type Agent struct {
	log     *slog.Logger
	counter *CounterArray
}

// NewAgent returns an Agent serving the given counter array.
func NewAgent(counter *CounterArray, log *slog.Logger) *Agent {
	if log == nil {
		log = slog.Default()
	}
	return &Agent{counter: counter, log: log.With("component", "fuzzeeproto.agent")}
}

// ExitCode is returned by Serve once the connection closes; callers
// should os.Exit with it. It is TerminateExitCode after a Terminate
// command, or 0 on a plain connection close.
func (a *Agent) Serve(conn net.Conn) int {
	defer conn.Close()

	scanner := bufio.NewScanner(conn)
	writer := bufio.NewWriter(conn)

	for scanner.Scan() {
		var cmd Command
		resp := Response{Type: ResponseUnknownCommand}

		if err := json.Unmarshal(scanner.Bytes(), &cmd); err != nil {
			a.log.Warn("malformed command line", "error", err)
		} else {
			switch cmd.Type {
			case CommandGet:
				resp = Response{Type: ResponseCounters, Values: &CountersValues{Counter: a.counter.Snapshot()}}
			case CommandGetAndReset:
				resp = Response{Type: ResponseCounters, Values: &CountersValues{Counter: a.counter.SnapshotAndReset()}}
			case CommandTerminate:
				a.writeResponse(writer, Response{Type: ResponseOk})
				return TerminateExitCode
			default:
				resp = Response{Type: ResponseUnknownCommand}
			}
		}

		a.writeResponse(writer, resp)
	}
	return 0
}

func (a *Agent) writeResponse(w *bufio.Writer, resp Response) {
	line, err := json.Marshal(resp)
	if err != nil {
		a.log.Error("failed to marshal response", "error", err)
		return
	}
	line = append(line, '\n')
	if _, err := w.Write(line); err != nil {
		a.log.Warn("failed to write response", "error", err)
		return
	}
	_ = w.Flush()
}
