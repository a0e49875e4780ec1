// Copyright © by the dnsdiff-fuzzer authors.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.
// SPDX-License-Identifier: Apache-2.0

package sandbox

import (
	"github.com/dnsdiff/fuzzer/model"
)

// excessiveQueryThreshold and excessiveAnswerThreshold are the fixed
// bounds beyond which a resolver's behavior is
// suspicious regardless of which other resolver it is compared
// against.
const (
	excessiveQueryThreshold  = 15
	excessiveAnswerThreshold = 10
)

// Oracles evaluates the five crash/misbehavior checks against one
// resolver's FuzzResult, independent of any
// comparison with another resolver.
func Oracles(r *model.FuzzResult) model.OracleResults {
	return model.OracleResults{
		CrashedResolver:        crashedResolver(r),
		ExcessiveQueries:       len(r.FuzzeeQueries) > excessiveQueryThreshold,
		ExcessiveAnswerRecords: excessiveAnswerRecords(r),
		DuplicateRecords:       duplicateRecords(r),
		RespondsToResponse:     respondsToResponse(r),
	}
}

// crashedResolver treats the absence of any response as a crash
// signal, whether or not upstream queries were sent: the resolver
// accepted the client query but never produced an answer.
func crashedResolver(r *model.FuzzResult) bool {
	return r.FuzzeeResponse == nil
}

func excessiveAnswerRecords(r *model.FuzzResult) bool {
	if r.FuzzeeResponse == nil {
		return false
	}
	return len(r.FuzzeeResponse.Answer) > excessiveAnswerThreshold
}

// duplicateRecords reports whether the response's answer section
// contains two syntactically identical resource records.
func duplicateRecords(r *model.FuzzResult) bool {
	if r.FuzzeeResponse == nil {
		return false
	}
	seen := make(map[string]bool, len(r.FuzzeeResponse.Answer))
	for _, rr := range r.FuzzeeResponse.Answer {
		key := rr.String()
		if seen[key] {
			return true
		}
		seen[key] = true
	}
	return false
}

// respondsToResponse reports whether the resolver sent an upstream
// message with the QR bit already set to "response" — i.e. it tried
// to query using something that is itself shaped like a response,
// a telltale sign of confused state rather than a genuine query.
func respondsToResponse(r *model.FuzzResult) bool {
	for _, q := range r.FuzzeeQueries {
		if q != nil && q.Response {
			return true
		}
	}
	return false
}
