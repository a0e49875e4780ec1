// Copyright © by the dnsdiff-fuzzer authors.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.
// SPDX-License-Identifier: Apache-2.0

// Command dnsdiff-fuzzer is the controller CLI: it drives the fuzzing
// loop against a set of resolver sandboxes, or runs a single suite
// once for debugging.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strconv"
	"syscall"
	"time"

	"github.com/dnsdiff/fuzzer/fuzzloop"
	"github.com/dnsdiff/fuzzer/logging"
	"github.com/dnsdiff/fuzzer/model"
	"github.com/dnsdiff/fuzzer/reprocache"
	"github.com/dnsdiff/fuzzer/sandbox"
)

// Exit codes.
const (
	exitOK                  = 0
	exitSandboxTerminated   = 55
	exitDoubleInterrupt     = 60
	exitCoverageInitFailure = 70
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(exitCoverageInitFailure)
	}

	switch os.Args[1] {
	case "single":
		runSingle(os.Args[2:])
	case "spawn":
		runSpawn(os.Args[2:])
	case "show-stats":
		runShowStats(os.Args[2:])
	default:
		usage()
		os.Exit(exitCoverageInitFailure)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: dnsdiff-fuzzer <single|spawn|show-stats> [flags]")
}

// commonFlags are shared across every subcommand.
type commonFlags struct {
	dumpDiffs  string
	resetState bool
	resolvers  stringList
	stateDir   string
	image      string
}

type stringList []string

func (s *stringList) String() string { return fmt.Sprint([]string(*s)) }
func (s *stringList) Set(v string) error {
	*s = append(*s, v)
	return nil
}

func bindCommon(fs *flag.FlagSet) *commonFlags {
	cf := &commonFlags{}
	fs.StringVar(&cf.dumpDiffs, "dump-diffs", "", "directory to dump unexplained differences to")
	fs.BoolVar(&cf.resetState, "reset-state", false, "ignore any existing fuzzing_state.postcard")
	fs.Var(&cf.resolvers, "resolvers", "resolver name to include (repeatable)")
	fs.StringVar(&cf.stateDir, "state-dir", ".", "directory holding fuzzing_state.postcard and stats")
	fs.StringVar(&cf.image, "image", "", "container image reference shared by every resolver sandbox")
	return cf
}

// runSpawn implements "spawn <suite-size> <fuzzee>...": the continuous
// fuzzing loop.
func runSpawn(args []string) {
	fs := flag.NewFlagSet("spawn", flag.ExitOnError)
	cf := bindCommon(fs)
	_ = fs.Parse(args)

	positional := fs.Args()
	if len(positional) < 1 {
		fmt.Fprintln(os.Stderr, "spawn requires a suite size and at least one fuzzee")
		os.Exit(exitCoverageInitFailure)
	}
	suiteSize, err := strconv.Atoi(positional[0])
	if err != nil || suiteSize <= 0 {
		fmt.Fprintln(os.Stderr, "spawn requires a positive integer suite size")
		os.Exit(exitCoverageInitFailure)
	}

	log, _, err := logging.New(logging.Config{})
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to build logger: %v\n", err)
		os.Exit(exitCoverageInitFailure)
	}

	resolvers := cf.resolvers
	if len(resolvers) == 0 {
		resolvers = positional[1:]
	}
	if len(resolvers) == 0 {
		fmt.Fprintln(os.Stderr, "spawn requires at least one fuzzee")
		os.Exit(exitCoverageInitFailure)
	}

	executors := make(map[model.ResolverName]reprocache.Executor, len(resolvers))
	var pools []*sandbox.Pool
	for _, name := range resolvers {
		resolver := model.ResolverName(name)
		pool := sandbox.NewPool(sandbox.Config{
			Resolver:   resolver,
			Image:      cf.image,
			PruneLabel: "dnsdiff-fuzzer",
			WorkDir:    filepath.Join(cf.stateDir, "work", name),
		}, log)
		pools = append(pools, pool)
		executors[resolver] = pool
	}
	defer func() {
		for _, p := range pools {
			p.Close()
		}
	}()

	loop := fuzzloop.New(fuzzloop.Config{SuiteSize: suiteSize, MinRandom: 8, PruneLabel: "dnsdiff-fuzzer"}, executors, nil, uint64(time.Now().UnixNano()), log)
	cache := reprocache.New(executors, loop.LookupCase, 8)
	loop.SetCache(cache)
	if cf.dumpDiffs != "" {
		loop.SetDumpDir(cf.dumpDiffs)
	}

	statePath := filepath.Join(cf.stateDir, "fuzzing_state.postcard")
	if !cf.resetState {
		if err := loop.LoadState(statePath); err != nil && !os.IsNotExist(err) {
			log.Warn("failed to load prior state, starting fresh", "error", err)
		}
	}
	if loop.QueueLen() == 0 {
		loop.Seed(64)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	interrupts := make(chan os.Signal, 2)
	signal.Notify(interrupts, os.Interrupt, syscall.SIGTERM)
	interruptCount := 0
	go func() {
		for range interrupts {
			interruptCount++
			if interruptCount >= 2 {
				os.Exit(exitDoubleInterrupt)
			}
			cancel()
		}
	}()

	profilePath := filepath.Join(cf.stateDir, "background_activity_profile.postcard")
	if err := loop.WarmUp(ctx, profilePath, cf.resetState); err != nil {
		log.Error("background activity warm-up failed", "error", err)
		os.Exit(exitCoverageInitFailure)
	}

	statsDir := filepath.Join(cf.stateDir, "stats")
	for {
		select {
		case <-ctx.Done():
			_ = loop.SnapshotState(statePath)
			os.Exit(exitOK)
		default:
		}

		if _, err := loop.Epoch(ctx); err != nil {
			log.Error("epoch failed", "error", err)
		}

		if err := loop.WriteStats(statsDir); err != nil {
			log.Warn("failed to write stats", "error", err)
		}
		if loop.EpochNumber()%10 == 0 {
			if err := loop.SnapshotState(statePath); err != nil {
				log.Warn("failed to snapshot state", "error", err)
			}
		}
	}
}

// runSingle implements "single <suite-size> <fuzzee>...": run one
// epoch against the named resolvers and print its stats, with no
// persistence.
func runSingle(args []string) {
	fs := flag.NewFlagSet("single", flag.ExitOnError)
	cf := bindCommon(fs)
	_ = fs.Parse(args)

	positional := fs.Args()
	if len(positional) < 1 {
		fmt.Fprintln(os.Stderr, "single requires a suite size and at least one fuzzee")
		os.Exit(exitCoverageInitFailure)
	}
	suiteSize, err := strconv.Atoi(positional[0])
	if err != nil || suiteSize <= 0 {
		fmt.Fprintln(os.Stderr, "single requires a positive integer suite size")
		os.Exit(exitCoverageInitFailure)
	}

	log, _, err := logging.New(logging.Config{})
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to build logger: %v\n", err)
		os.Exit(exitCoverageInitFailure)
	}

	resolvers := cf.resolvers
	if len(resolvers) == 0 {
		resolvers = positional[1:]
	}

	executors := make(map[model.ResolverName]reprocache.Executor, len(resolvers))
	var pools []*sandbox.Pool
	for _, name := range resolvers {
		resolver := model.ResolverName(name)
		pool := sandbox.NewPool(sandbox.Config{
			Resolver:   resolver,
			Image:      cf.image,
			PruneLabel: "dnsdiff-fuzzer",
			WorkDir:    filepath.Join(cf.stateDir, "work", name),
		}, log)
		pools = append(pools, pool)
		executors[resolver] = pool
	}
	defer func() {
		for _, p := range pools {
			p.Close()
		}
	}()

	loop := fuzzloop.New(fuzzloop.Config{SuiteSize: suiteSize, MinRandom: 8, PruneLabel: "dnsdiff-fuzzer"}, executors, nil, uint64(time.Now().UnixNano()), log)
	cache := reprocache.New(executors, loop.LookupCase, 8)
	loop.SetCache(cache)
	if cf.dumpDiffs != "" {
		loop.SetDumpDir(cf.dumpDiffs)
	}
	loop.Seed(8)

	profilePath := filepath.Join(cf.stateDir, "background_activity_profile.postcard")
	if err := loop.WarmUp(context.Background(), profilePath, cf.resetState); err != nil {
		fmt.Fprintf(os.Stderr, "background activity warm-up failed: %v\n", err)
		os.Exit(exitCoverageInitFailure)
	}

	if _, err := loop.Epoch(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "epoch failed: %v\n", err)
		os.Exit(exitSandboxTerminated)
	}

	stats := loop.Stats()
	fmt.Printf("%+v\n", stats)
}

// runShowStats implements "show-stats <stats-dir>": print the most
// recently written stats-*.json snapshot in the directory.
func runShowStats(args []string) {
	fs := flag.NewFlagSet("show-stats", flag.ExitOnError)
	_ = fs.Parse(args)
	if fs.NArg() < 1 {
		fmt.Fprintln(os.Stderr, "show-stats requires a stats directory")
		os.Exit(exitCoverageInitFailure)
	}

	matches, err := filepath.Glob(filepath.Join(fs.Arg(0), "stats-*.json"))
	if err != nil || len(matches) == 0 {
		fmt.Fprintf(os.Stderr, "no stats snapshots found under %s\n", fs.Arg(0))
		os.Exit(exitCoverageInitFailure)
	}
	sort.Strings(matches)
	latest := matches[len(matches)-1]

	data, err := os.ReadFile(latest)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to read stats: %v\n", err)
		os.Exit(exitCoverageInitFailure)
	}
	fmt.Println(string(data))
}
