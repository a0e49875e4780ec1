// Copyright © by the dnsdiff-fuzzer authors.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.
// SPDX-License-Identifier: Apache-2.0

package counters

import "github.com/fxamacker/cbor/v2"

// MarshalCBOR encodes Counters as a plain CBOR array of uint32, the
// same field-order-sensitive shape fuzz-result-set.postcard and
// fuzz-suite.postcard artifacts use for every other struct.
func (c Counters) MarshalCBOR() ([]byte, error) {
	return cbor.Marshal(c.values)
}

// UnmarshalCBOR decodes the array produced by MarshalCBOR.
func (c *Counters) UnmarshalCBOR(data []byte) error {
	var values []uint32
	if err := cbor.Unmarshal(data, &values); err != nil {
		return err
	}
	c.values = values
	return nil
}
