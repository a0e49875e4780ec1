// Copyright © by the dnsdiff-fuzzer authors.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.
// SPDX-License-Identifier: Apache-2.0

package kv

import "sync"

// Interner deduplicates strings seen repeatedly while projecting a
// FuzzResultSet, returning a stable integer handle per distinct
// string. It exists because owner names and rdata strings repeat
// heavily across resolvers answering the same FuzzCase, and the
// projection otherwise re-allocates the same bytes for every RR in
// every resolver's response. It is safe for concurrent use.
type Interner struct {
	mu      sync.Mutex
	handles map[string]int
	strs    []string
}

// NewInterner returns an empty Interner.
func NewInterner() *Interner {
	return &Interner{handles: make(map[string]int)}
}

// Intern returns the stable handle for s, allocating a new one the
// first time s is seen.
func (in *Interner) Intern(s string) int {
	in.mu.Lock()
	defer in.mu.Unlock()
	if h, ok := in.handles[s]; ok {
		return h
	}
	h := len(in.strs)
	in.handles[s] = h
	in.strs = append(in.strs, s)
	return h
}

// Lookup returns the string for a previously-issued handle.
func (in *Interner) Lookup(handle int) (string, bool) {
	in.mu.Lock()
	defer in.mu.Unlock()
	if handle < 0 || handle >= len(in.strs) {
		return "", false
	}
	return in.strs[handle], true
}

// Len reports how many distinct strings have been interned.
func (in *Interner) Len() int {
	in.mu.Lock()
	defer in.mu.Unlock()
	return len(in.strs)
}
