// Copyright © by the dnsdiff-fuzzer authors.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.
// SPDX-License-Identifier: Apache-2.0

// Command fuzzee-agent runs inside an instrumented resolver's sandbox.
// It drives one FuzzSuite against the resolver under test, serves the
// coverage control protocol (C4) to the orchestrator, and writes the
// resulting FuzzResultSet back to the shared volume.
package main

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/dnsdiff/fuzzer/counters"
	"github.com/dnsdiff/fuzzer/dnsauth"
	"github.com/dnsdiff/fuzzer/fuzzeeproto"
	"github.com/dnsdiff/fuzzer/logging"
	"github.com/dnsdiff/fuzzer/model"
	"github.com/dnsdiff/fuzzer/sandbox"
	"github.com/miekg/dns"
)

const readyHandshake = "Ready to load the FuzzSuite"

func main() {
	listenAddr := envOr("FUZZEE_LISTEN_ADDR", "127.0.0.1:45000")
	workDir := envOr("FUZZEE_WORK_DIR", "/work")
	resolverAddr := envOr("FUZZEE_RESOLVER_ADDR", "127.0.0.1:53")
	startupDebug := envBool("FUZZEE_STARTUP_DEBUG")
	counterOnExit := envBool("FUZZEE_COUNTER_ON_EXIT")

	level := slog.LevelInfo
	if startupDebug {
		level = slog.LevelDebug
	}
	log, _, err := logging.New(logging.Config{Level: level})
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to build logger: %v\n", err)
		os.Exit(70)
	}
	log = log.With("component", "fuzzee-agent")

	counterArray := fuzzeeproto.NewCounterArray()
	counterArray.SetSize(fuzzeeproto.CounterArrayCapacity)

	ln, err := net.Listen("tcp", listenAddr)
	if err != nil {
		log.Error("failed to bind control listener", "addr", listenAddr, "error", err)
		os.Exit(71)
	}

	exitCode := make(chan int, 1)
	go serveControl(ln, counterArray, log, exitCode)

	fmt.Println(readyHandshake)
	reader := bufio.NewReader(os.Stdin)
	if _, err := reader.ReadString('\n'); err != nil {
		log.Error("failed to read handshake acknowledgement", "error", err)
		os.Exit(70)
	}

	suitePath, err := waitForSuiteFile(workDir, 60*time.Second)
	if err != nil {
		log.Error("timed out waiting for a fuzz suite", "error", err)
		os.Exit(70)
	}

	var ws sandbox.WireSuite
	if err := sandbox.ReadPostcard(suitePath, &ws); err != nil {
		log.Error("failed to read fuzz suite", "path", suitePath, "error", err)
		os.Exit(70)
	}
	suite, err := sandbox.FromWireSuite(&ws)
	if err != nil {
		log.Error("failed to decode fuzz suite", "error", err)
		os.Exit(70)
	}

	rs := runSuite(suite, resolverAddr, counterArray, log)

	wrs, err := sandbox.ToWireResultSet(rs)
	if err != nil {
		log.Error("failed to encode result set", "error", err)
		os.Exit(70)
	}
	resultPath := filepath.Join(workDir, "fuzz-result-set.postcard")
	if err := sandbox.WritePostcard(resultPath, wrs); err != nil {
		log.Error("failed to write result set", "path", resultPath, "error", err)
		os.Exit(70)
	}

	if counterOnExit {
		log.Info("final counter snapshot", "nonzero", counterArray.Snapshot())
	}

	select {
	case code := <-exitCode:
		os.Exit(code)
	case <-time.After(5 * time.Second):
		os.Exit(0)
	}
}

// serveControl accepts fuzzeeproto connections until one of them sends
// Terminate, at which point its exit code is pushed to done.
func serveControl(ln net.Listener, counterArray *fuzzeeproto.CounterArray, log *slog.Logger, done chan<- int) {
	agent := fuzzeeproto.NewAgent(counterArray, log)
	for {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		go func(c net.Conn) {
			code := agent.Serve(c)
			if code == fuzzeeproto.TerminateExitCode {
				select {
				case done <- code:
				default:
				}
			}
		}(conn)
	}
}

// waitForSuiteFile polls workDir for the fuzz-suite-*.postcard file
// the orchestrator writes once this sandbox's handle is put to work.
func waitForSuiteFile(workDir string, timeout time.Duration) (string, error) {
	deadline := time.Now().Add(timeout)
	for {
		matches, err := filepath.Glob(filepath.Join(workDir, "fuzz-suite-*.postcard"))
		if err == nil && len(matches) > 0 {
			return matches[0], nil
		}
		if time.Now().After(deadline) {
			return "", fmt.Errorf("fuzzee-agent: no fuzz suite appeared under %s", workDir)
		}
		time.Sleep(100 * time.Millisecond)
	}
}

// runSuite drives every FuzzCase in suite against the resolver under
// test, one at a time: stand up a scripted authoritative server,
// send the client query, record the upstream queries it provoked, and
// attribute whatever coverage the resolver produced to that case.
func runSuite(suite *model.FuzzSuite, resolverAddr string, counterArray *fuzzeeproto.CounterArray, log *slog.Logger) *model.FuzzResultSet {
	rs := &model.FuzzResultSet{ID: suite.ID, Results: make([]*model.FuzzResult, 0, len(suite.TestCases))}

	client := &dns.Client{Net: "udp", Timeout: 5 * time.Second}

	for i, fc := range suite.TestCases {
		counterArray.SnapshotAndReset()

		auth := dnsauth.NewScripted(log)
		auth.SetFuzzingResponse(fc.ServerResponses)

		authAddr := dnsauth.NextLoopbackAddr(i)
		ctx, cancel := context.WithCancel(context.Background())
		go func() { _ = auth.Listen(ctx, authAddr) }()
		time.Sleep(20 * time.Millisecond)

		response, _, err := client.Exchange(fc.ClientQuery, resolverAddr)
		if err != nil {
			log.Warn("resolver exchange failed", "case", fc.ID, "error", err)
		}

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), time.Second)
		auth.Shutdown(shutdownCtx)
		shutdownCancel()
		cancel()

		queries, idxs := auth.GetQueryList()
		cnt := counters.FromSlice(counterArray.SnapshotAndReset())

		result := &model.FuzzResult{
			ID:             fc.ID,
			Counters:       &cnt,
			FuzzeeResponse: response,
			FuzzeeQueries:  queries,
			ResponseIdxs:   idxs,
		}
		rs.Results = append(rs.Results, result)
	}

	return rs
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envBool(key string) bool {
	v, err := strconv.ParseBool(os.Getenv(key))
	if err != nil {
		return false
	}
	return v
}
