// Copyright © by the dnsdiff-fuzzer authors.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.
// SPDX-License-Identifier: Apache-2.0

package fuzzloop

import (
	"compress/gzip"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/fxamacker/cbor/v2"

	"github.com/dnsdiff/fuzzer/diffmatch"
	"github.com/dnsdiff/fuzzer/ids"
	"github.com/dnsdiff/fuzzer/model"
	"github.com/dnsdiff/fuzzer/sandbox"
)

// SetDumpDir installs the directory a confirmed new difference's full
// context is written to. An empty dir (the default) disables dumping.
func (l *Loop) SetDumpDir(dir string) {
	l.dumpDir = dir
}

// dumpDifference writes <dumpDir>/<caseID>/<a>-<b>/ for a
// newly-confirmed unexplained difference: the single FuzzCase as a
// postcard, both sides' FuzzResults as gzipped JSON, the fingerprint
// as JSON, and a human-readable summary.
func (l *Loop) dumpDifference(caseID ids.FuzzCaseId, pair resolverPair, fc *model.FuzzCase, left, right *model.FuzzResult, fp diffmatch.Fingerprint) {
	if l.dumpDir == "" {
		return
	}

	dir := filepath.Join(l.dumpDir, caseID.String(), fmt.Sprintf("%s-%s", pair.a, pair.b))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		l.log.Warn("failed to create diff dump directory", "dir", dir, "error", err)
		return
	}

	suite := &model.FuzzSuite{ID: ids.New(), TestCases: []*model.FuzzCase{fc}}
	ws, err := sandbox.ToWireSuite(suite)
	if err != nil {
		l.log.Warn("failed to pack diff dump fuzz suite", "error", err)
		return
	}
	if err := sandbox.WritePostcard(filepath.Join(dir, "fuzz-suite.postcard"), ws.Cases[0]); err != nil {
		l.log.Warn("failed to write fuzz-suite.postcard", "error", err)
	}
	if err := writeGzipCBOR(filepath.Join(dir, "fuzz-suite-full.postcard.gz"), ws); err != nil {
		l.log.Warn("failed to write fuzz-suite-full.postcard.gz", "error", err)
	}

	if err := writeGzipJSON(filepath.Join(dir, fmt.Sprintf("%s.json.gz", pair.a)), left); err != nil {
		l.log.Warn("failed to dump left result", "error", err)
	}
	if err := writeGzipJSON(filepath.Join(dir, fmt.Sprintf("%s.json.gz", pair.b)), right); err != nil {
		l.log.Warn("failed to dump right result", "error", err)
	}

	if data, err := json.MarshalIndent(fp, "", "  "); err == nil {
		_ = os.WriteFile(filepath.Join(dir, "fingerprint.json"), data, 0o644)
	}

	summary := fmt.Sprintf("case %s: %s vs %s\nkey diffs: %v\n", caseID, pair.a, pair.b, fp.KeyDiffs)
	_ = os.WriteFile(filepath.Join(dir, "fulldiff.txt"), []byte(summary), 0o644)
}

func writeGzipCBOR(path string, v interface{}) error {
	data, err := cbor.Marshal(v)
	if err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	gw := gzip.NewWriter(f)
	if _, err := gw.Write(data); err != nil {
		gw.Close()
		return err
	}
	return gw.Close()
}

func writeGzipJSON(path string, v interface{}) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	gw := gzip.NewWriter(f)
	if err := json.NewEncoder(gw).Encode(v); err != nil {
		gw.Close()
		return err
	}
	return gw.Close()
}
