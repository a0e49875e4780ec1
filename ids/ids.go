// Copyright © by the dnsdiff-fuzzer authors.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.
// SPDX-License-Identifier: Apache-2.0

// Package ids defines the 128-bit random identifiers used to name fuzz
// cases and fuzz suites. They are stable across persistence: the same
// uuid.UUID bytes round-trip through CBOR and JSON unchanged.
package ids

import "github.com/google/uuid"

// FuzzCaseId identifies a single FuzzCase for the lifetime of a fuzzing
// run (and across fuzzing_state.postcard snapshots).
type FuzzCaseId = uuid.UUID

// FuzzSuiteId identifies a batch of FuzzCases executed together in one
// sandbox invocation.
type FuzzSuiteId = uuid.UUID

// New returns a fresh random identifier.
func New() uuid.UUID {
	return uuid.New()
}

// Nil is the zero-value identifier; used as a sentinel for "no parent".
var Nil = uuid.Nil
