// Copyright © by the dnsdiff-fuzzer authors.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.
// SPDX-License-Identifier: Apache-2.0

package fuzzloop

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/fxamacker/cbor/v2"

	"github.com/dnsdiff/fuzzer/ids"
	"github.com/dnsdiff/fuzzer/model"
)

const statsTimeFormat = "2006-01-02T15-04-05"

// Stats is the small, human-readable snapshot written every epoch:
// queue size, per-resolver coverage width, and
// the number of distinct fingerprints seen so far.
type Stats struct {
	Epoch            int                      `json:"epoch"`
	QueueLen         int                      `json:"queue_len"`
	FuzzCaseCount    int                      `json:"fuzz_case_count"`
	FingerprintCount int                      `json:"fingerprint_count"`
	CoverageWidth    map[model.ResolverName]int `json:"coverage_width"`
}

// Stats computes the current epoch's Stats snapshot.
func (l *Loop) Stats() Stats {
	l.mu.Lock()
	defer l.mu.Unlock()

	width := make(map[model.ResolverName]int, len(l.coverageMax))
	for resolver, c := range l.coverageMax {
		if c != nil {
			width[resolver] = c.CountNonzero()
		}
	}

	return Stats{
		Epoch:            l.epoch,
		QueueLen:         l.queue.Len(),
		FuzzCaseCount:    len(l.fuzzCases),
		FingerprintCount: len(l.fingerprints),
		CoverageWidth:    width,
	}
}

// WriteStats JSON-encodes the current Stats into dir as a new
// timestamped file, stats-YYYY-MM-DDTHH-MM-SS.json, so the sequence of
// snapshots forms a timeline rather than overwriting a single file.
func (l *Loop) WriteStats(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(l.Stats(), "", "  ")
	if err != nil {
		return err
	}
	name := fmt.Sprintf("stats-%s.json", time.Now().Format(statsTimeFormat))
	return os.WriteFile(filepath.Join(dir, name), data, 0o644)
}

// state is the full persisted snapshot of a Loop, written by
// SnapshotState as fuzzing_state.postcard (cmd/dnsdiff-fuzzer calls it
// every 10 epochs and on shutdown).
type state struct {
	Epoch        int
	QueueEntries []queueEntry
	FuzzCases    map[ids.FuzzCaseId]*model.FuzzCaseMeta
}

type queueEntry struct {
	ID               ids.FuzzCaseId
	OriginalPriority float64
}

// SnapshotState CBOR-encodes the loop's full resumable state to path,
// via a temp file plus rename so a crash mid-write never leaves a
// truncated fuzzing_state.postcard behind.
func (l *Loop) SnapshotState(path string) error {
	l.mu.Lock()
	fuzzCases := make(map[ids.FuzzCaseId]*model.FuzzCaseMeta, len(l.fuzzCases))
	for id, meta := range l.fuzzCases {
		fuzzCases[id] = meta
	}
	epoch := l.epoch
	l.mu.Unlock()

	var entries []queueEntry
	for id := range fuzzCases {
		if p, ok := l.queue.OriginalPriority(id); ok {
			entries = append(entries, queueEntry{ID: id, OriginalPriority: p})
		}
	}

	st := state{Epoch: epoch, QueueEntries: entries, FuzzCases: fuzzCases}
	data, err := cbor.Marshal(st)
	if err != nil {
		return err
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

// LoadState decodes a fuzzing_state.postcard snapshot and repopulates
// the loop's fuzz_cases table and priority queue, for --reset-state's
// opposite: resuming a previous run.
func (l *Loop) LoadState(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	var st state
	if err := cbor.Unmarshal(data, &st); err != nil {
		return err
	}

	l.mu.Lock()
	l.epoch = st.Epoch
	l.fuzzCases = st.FuzzCases
	l.mu.Unlock()

	for _, e := range st.QueueEntries {
		l.queue.Push(e.ID, e.OriginalPriority)
	}
	return nil
}
