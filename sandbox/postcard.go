// Copyright © by the dnsdiff-fuzzer authors.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.
// SPDX-License-Identifier: Apache-2.0

package sandbox

import (
	"os"

	"github.com/fxamacker/cbor/v2"
)

// WritePostcard CBOR-encodes v and writes it to path. The ".postcard"
// extension is kept for artifact-name stability even though the wire
// codec underneath is CBOR rather than a literal postcard encoding.
// Both the orchestrator and the in-sandbox agent use
// this to exchange WireSuite/WireResultSet values across the shared
// volume.
func WritePostcard(path string, v interface{}) error {
	data, err := cbor.Marshal(v)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// ReadPostcard is WritePostcard's inverse.
func ReadPostcard(path string, v interface{}) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return cbor.Unmarshal(data, v)
}
