// Copyright © by the dnsdiff-fuzzer authors.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.
// SPDX-License-Identifier: Apache-2.0

// Package fuzzloop implements the fuzzing loop (C10): the epoch
// procedure that ties the priority queue (C2), the mutator (C9), the
// sandbox executors (C5), the key-value projection (C6), the
// differential matcher (C7), and the batch reproduction cache (C8)
// together.
package fuzzloop

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"math/rand/v2"
	"os/exec"
	"sync"
	"time"

	"github.com/hashicorp/go-multierror"
	bf "github.com/tylertreat/BoomFilters"

	"github.com/dnsdiff/fuzzer/counters"
	"github.com/dnsdiff/fuzzer/diffmatch"
	"github.com/dnsdiff/fuzzer/ids"
	"github.com/dnsdiff/fuzzer/kv"
	"github.com/dnsdiff/fuzzer/model"
	"github.com/dnsdiff/fuzzer/mutator"
	"github.com/dnsdiff/fuzzer/prioqueue"
	"github.com/dnsdiff/fuzzer/reprocache"
)

// Fixed tuning constants of the epoch procedure.
const (
	verificationDelay        = 100 * time.Millisecond
	decayThresholdSetSize    = 20
	newCoverageBaselineScore = 10.0
)

// Config holds the epoch-shape parameters.
type Config struct {
	SuiteSize           int // fuzz_suite_size
	MinRandom           int // fuzz_suite_min_random
	SnapshotEveryEpochs int // full-state snapshot cadence, default 10; Loop itself does not read it, the caller schedules SnapshotState
	PruneEveryEpochs    int // sandbox pruning cadence, default 3
	ContainerEngine     string
	PruneLabel          string
}

func (c *Config) setDefaults() {
	if c.SuiteSize <= 0 {
		c.SuiteSize = 64
	}
	if c.MinRandom < 0 || c.MinRandom > c.SuiteSize {
		c.MinRandom = c.SuiteSize / 8
	}
	if c.SnapshotEveryEpochs <= 0 {
		c.SnapshotEveryEpochs = 10
	}
	if c.PruneEveryEpochs <= 0 {
		c.PruneEveryEpochs = 3
	}
	if c.ContainerEngine == "" {
		c.ContainerEngine = "docker"
	}
}

// fingerprintRecord tracks every FuzzCaseId that has reproduced a
// given unexplained difference, so that the replicated-finding score
// ladder can be computed from its set size.
type fingerprintRecord struct {
	Fingerprint diffmatch.Fingerprint
	Cases       map[ids.FuzzCaseId]bool
}

// Loop is the stateful driver of the epoch procedure. SnapshotState
// persists its epoch counter, its fuzz case table and the queue's
// original priorities.
type Loop struct {
	cfg       Config
	queue     *prioqueue.Queue[ids.FuzzCaseId]
	executors map[model.ResolverName]reprocache.Executor
	cache     *reprocache.Cache
	rng       *rand.Rand
	log       *slog.Logger
	interner  *kv.Interner

	mu                 sync.Mutex
	fuzzCases          map[ids.FuzzCaseId]*model.FuzzCaseMeta
	coverageMax        map[model.ResolverName]*counters.Counters
	backgroundActivity map[model.ResolverName]*counters.Counters
	fingerprints       map[string]*fingerprintRecord
	fpFilter           *bf.StableBloomFilter

	epoch   int
	dumpDir string
}

// New constructs a Loop. executors must contain every resolver the
// epoch procedure fans a suite out to; cache drives verification of
// candidate new differences found during the epoch.
func New(cfg Config, executors map[model.ResolverName]reprocache.Executor, cache *reprocache.Cache, seed uint64, log *slog.Logger) *Loop {
	cfg.setDefaults()
	if log == nil {
		log = slog.Default()
	}
	return &Loop{
		cfg:                cfg,
		queue:              prioqueue.New[ids.FuzzCaseId](),
		executors:          executors,
		cache:              cache,
		rng:                rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
		log:                log.With("component", "fuzzloop"),
		interner:           kv.NewInterner(),
		fuzzCases:          make(map[ids.FuzzCaseId]*model.FuzzCaseMeta),
		coverageMax:        make(map[model.ResolverName]*counters.Counters),
		backgroundActivity: make(map[model.ResolverName]*counters.Counters),
		fingerprints:       make(map[string]*fingerprintRecord),
		fpFilter:           bf.NewDefaultStableBloomFilter(100000, 0.01),
	}
}

// Seed populates the queue with an initial population of freshly
// generated FuzzCases, each pushed with the baseline priority 1.0.
func (l *Loop) Seed(n int) {
	for i := 0; i < n; i++ {
		meta := mutator.NewFuzzCase(l.rng)
		l.mu.Lock()
		l.fuzzCases[meta.FuzzCase.ID] = meta
		l.mu.Unlock()
		l.queue.Push(meta.FuzzCase.ID, 1.0)
	}
}

// Epoch runs exactly one iteration of the fuzzing loop's procedure:
// population selection and mutation, fan-out execution, coverage
// accounting, pairwise differencing, score aggregation, verification,
// and requeueing. It returns the set of FuzzCaseIds that ran this
// epoch, mostly for logging/snapshotting by the caller.
func (l *Loop) Epoch(ctx context.Context) ([]ids.FuzzCaseId, error) {
	l.epoch++

	caseIDs, parents := l.selectAndMutate()
	if len(caseIDs) == 0 {
		return nil, nil
	}

	resultSets, err := l.runSuite(ctx, caseIDs)
	if err != nil {
		return nil, err
	}

	newCoverage := l.accountCoverage(resultSets)

	scores := l.scoreCases(ctx, caseIDs, resultSets, newCoverage)

	l.requeue(caseIDs, parents, scores)

	if l.epoch%l.cfg.PruneEveryEpochs == 0 {
		l.pruneSandboxes(ctx)
	}

	return caseIDs, nil
}

// selectAndMutate implements step 1: pop fuzz_suite_size−fuzz_suite_min_random
// ids via GetAndRequeueN, mutate each, and top up to fuzz_suite_size
// with fresh random newcomers.
func (l *Loop) selectAndMutate() (caseIDs []ids.FuzzCaseId, parents map[ids.FuzzCaseId]ids.FuzzCaseId) {
	nMutate := l.cfg.SuiteSize - l.cfg.MinRandom
	if nMutate < 0 {
		nMutate = 0
	}
	parentIDs := l.queue.GetAndRequeueN(nMutate)
	parents = make(map[ids.FuzzCaseId]ids.FuzzCaseId, len(parentIDs))

	l.mu.Lock()
	for _, pid := range parentIDs {
		parentMeta, ok := l.fuzzCases[pid]
		if !ok {
			continue
		}
		child := mutator.Mutate(parentMeta, l.rng)
		l.fuzzCases[child.FuzzCase.ID] = child
		caseIDs = append(caseIDs, child.FuzzCase.ID)
		parents[child.FuzzCase.ID] = pid
	}
	l.mu.Unlock()

	for len(caseIDs) < l.cfg.SuiteSize {
		meta := mutator.NewFuzzCase(l.rng)
		l.mu.Lock()
		l.fuzzCases[meta.FuzzCase.ID] = meta
		l.mu.Unlock()
		caseIDs = append(caseIDs, meta.FuzzCase.ID)
	}

	return caseIDs, parents
}

// runSuite implements step 2: run the suite against every configured
// executor in parallel.
func (l *Loop) runSuite(ctx context.Context, caseIDs []ids.FuzzCaseId) (map[model.ResolverName]*model.FuzzResultSet, error) {
	l.mu.Lock()
	cases := make([]*model.FuzzCase, 0, len(caseIDs))
	for _, id := range caseIDs {
		if meta, ok := l.fuzzCases[id]; ok {
			cases = append(cases, meta.FuzzCase)
		}
	}
	l.mu.Unlock()

	suite := &model.FuzzSuite{ID: ids.New(), TestCases: cases}

	type outcome struct {
		resolver model.ResolverName
		rs       *model.FuzzResultSet
		err      error
	}
	out := make(chan outcome, len(l.executors))
	var wg sync.WaitGroup
	for resolver, executor := range l.executors {
		wg.Add(1)
		go func(resolver model.ResolverName, executor reprocache.Executor) {
			defer wg.Done()
			rs, err := executor.Run(ctx, suite)
			out <- outcome{resolver: resolver, rs: rs, err: err}
		}(resolver, executor)
	}
	go func() { wg.Wait(); close(out) }()

	results := make(map[model.ResolverName]*model.FuzzResultSet, len(l.executors))
	var runErr *multierror.Error
	for o := range out {
		if o.err != nil {
			l.log.Warn("executor run failed", "resolver", string(o.resolver), "error", o.err)
			runErr = multierror.Append(runErr, fmt.Errorf("%s: %w", o.resolver, o.err))
			continue
		}
		results[o.resolver] = o.rs
	}
	if len(results) == 0 && runErr.ErrorOrNil() != nil {
		return nil, fmt.Errorf("fuzzloop: every executor failed: %w", runErr)
	}
	return results, nil
}

// accountCoverage implements step 3: for each executor, a case's
// contribution is "new" when it covers something neither the
// background activity profile nor the running max coverage already
// accounts for.
func (l *Loop) accountCoverage(resultSets map[model.ResolverName]*model.FuzzResultSet) map[ids.FuzzCaseId]bool {
	newCoverage := make(map[ids.FuzzCaseId]bool)

	l.mu.Lock()
	defer l.mu.Unlock()

	for resolver, rs := range resultSets {
		if rs == nil {
			continue
		}
		running := l.coverageMax[resolver]
		for _, r := range rs.Results {
			if r.Counters == nil {
				continue
			}
			background := l.backgroundActivity[resolver]
			if background == nil {
				background = rs.BackgroundActivity
			}
			remainder := *r.Counters
			if background != nil && background.Len() == remainder.Len() {
				remainder = remainder.DiscardByPattern(*background)
			}
			if running != nil && running.Len() == remainder.Len() {
				remainder = remainder.DiscardByPattern(*running)
			}
			if remainder.HasAny() {
				newCoverage[r.ID] = true
			}

			if running == nil {
				c := r.Counters.Clone()
				l.coverageMax[resolver] = &c
			} else if running.Len() == r.Counters.Len() {
				m := counters.Max(*running, *r.Counters)
				l.coverageMax[resolver] = &m
			}
			running = l.coverageMax[resolver]
		}
	}
	return newCoverage
}

// resolverPair is an unordered pair of resolver names, canonicalized
// so (a, b) and (b, a) hash identically.
type resolverPair struct{ a, b model.ResolverName }

func newResolverPair(a, b model.ResolverName) resolverPair {
	if b < a {
		a, b = b, a
	}
	return resolverPair{a: a, b: b}
}

// scoreCases implements steps 4-6: pairwise differencing, score
// aggregation, and asynchronous verification of candidate new
// differences through the reproduction cache.
func (l *Loop) scoreCases(ctx context.Context, caseIDs []ids.FuzzCaseId, resultSets map[model.ResolverName]*model.FuzzResultSet, newCoverage map[ids.FuzzCaseId]bool) map[ids.FuzzCaseId]float64 {
	scores := make(map[ids.FuzzCaseId]float64, len(caseIDs))
	for _, id := range caseIDs {
		scores[id] = 1.0
	}

	resolvers := make([]model.ResolverName, 0, len(resultSets))
	for r := range resultSets {
		resolvers = append(resolvers, r)
	}

	var verifyWG sync.WaitGroup
	var scoreMu sync.Mutex

	for i := 0; i < len(resolvers); i++ {
		for j := i + 1; j < len(resolvers); j++ {
			left, right := resolvers[i], resolvers[j]
			lrs, rrs := resultSets[left], resultSets[right]
			if lrs == nil || rrs == nil {
				continue
			}

			for _, id := range caseIDs {
				lFC := l.fuzzCaseOf(id)
				lr, lok := lrs.ResultFor(id)
				rr, rok := rrs.ResultFor(id)
				if lFC == nil || !lok || !rok {
					continue
				}

				leftMap := kv.Project(lFC, left, lr, l.interner)
				rightMap := kv.Project(lFC, right, rr, l.interner)
				outcome := diffmatch.Compare(left, right, leftMap, rightMap)

				scoreMu.Lock()
				switch outcome.Kind {
				case diffmatch.NoDifference:
					// multiplier ×1, nothing to do
				case diffmatch.KnownDifference:
					mult := 1.0
					for _, k := range outcome.Kinds {
						mult *= float64(k.InterestLevel())
					}
					scores[id] *= mult
				case diffmatch.NewDifference:
					// ×1 immediately; verification may raise it later
					pair := newResolverPair(left, right)
					verifyWG.Add(1)
					go l.verify(ctx, id, pair, outcome.Fingerprint, scores, &scoreMu, &verifyWG)
				}
				scoreMu.Unlock()
			}
		}
	}

	verifyWG.Wait()

	for id := range newCoverage {
		if _, ok := scores[id]; ok {
			scores[id] = math.Max(scores[id], newCoverageBaselineScore)
		}
	}

	maxScore := 0.0
	for _, s := range scores {
		if s > maxScore {
			maxScore = s
		}
	}
	if maxScore > 0 {
		for id, s := range scores {
			scores[id] = s * 100 / maxScore
		}
	}

	return scores
}

// verify implements step 6: wait, finish the current batch so this
// candidate isn't left starved, re-run through the reproduction
// cache, and diff again.
func (l *Loop) verify(ctx context.Context, caseID ids.FuzzCaseId, pair resolverPair, original diffmatch.Fingerprint, scores map[ids.FuzzCaseId]float64, scoreMu *sync.Mutex, wg *sync.WaitGroup) {
	defer wg.Done()

	time.Sleep(verificationDelay)
	l.cache.FinishComputation()

	leftRS, err := l.cache.Get(ctx, caseID, pair.a)
	if err != nil {
		return
	}
	rightRS, err := l.cache.Get(ctx, caseID, pair.b)
	if err != nil {
		return
	}
	lr, lok := leftRS.ResultFor(caseID)
	rr, rok := rightRS.ResultFor(caseID)
	if !lok || !rok {
		return
	}

	fc := l.fuzzCaseOf(caseID)
	if fc == nil {
		return
	}
	leftMap := kv.Project(fc, pair.a, lr, l.interner)
	rightMap := kv.Project(fc, pair.b, rr, l.interner)
	outcome := diffmatch.Compare(pair.a, pair.b, leftMap, rightMap)

	var score float64
	switch outcome.Kind {
	case diffmatch.NewDifference:
		if outcome.Fingerprint.Equal(original) {
			score = l.recordReplication(caseID, outcome.Fingerprint)
			l.dumpDifference(caseID, pair, fc, lr, rr, outcome.Fingerprint)
		} else {
			score = 2
		}
	default:
		score = 1
	}

	scoreMu.Lock()
	if cur, ok := scores[caseID]; ok {
		scores[caseID] = math.Max(cur, score)
	}
	scoreMu.Unlock()
}

// recordReplication adds caseID to the fingerprint's case set, decays
// the whole set once it grows past decayThresholdSetSize, and returns
// the replicated-finding score ladder value for the new set size.
func (l *Loop) recordReplication(caseID ids.FuzzCaseId, fp diffmatch.Fingerprint) float64 {
	key := fp.CacheKey()

	l.mu.Lock()
	defer l.mu.Unlock()

	// A Stable Bloom Filter can answer "never seen" for a key it has
	// seen, so its answer is not trusted: l.fingerprints is always
	// consulted and the filter only records the key.
	l.fpFilter.TestAndAdd([]byte(key))
	rec, ok := l.fingerprints[key]
	if !ok {
		rec = &fingerprintRecord{Fingerprint: fp, Cases: make(map[ids.FuzzCaseId]bool)}
		l.fingerprints[key] = rec
	}
	rec.Cases[caseID] = true

	if len(rec.Cases) > decayThresholdSetSize {
		caseList := make([]ids.FuzzCaseId, 0, len(rec.Cases))
		for id := range rec.Cases {
			caseList = append(caseList, id)
		}
		l.queue.Decay(caseList)
	}

	return diffmatch.ReplicationScore(len(rec.Cases))
}

// requeue implements step 7: push every case back with its final
// priority.
func (l *Loop) requeue(caseIDs []ids.FuzzCaseId, parents map[ids.FuzzCaseId]ids.FuzzCaseId, scores map[ids.FuzzCaseId]float64) {
	for _, id := range caseIDs {
		score := scores[id]
		priority := score
		if parentID, ok := parents[id]; ok {
			if parentPriority, ok := l.queue.OriginalPriority(parentID); ok {
				priority = (score*2 + parentPriority) / 3
			}
		}
		l.queue.Push(id, priority)
	}
}

func (l *Loop) fuzzCaseOf(id ids.FuzzCaseId) *model.FuzzCase {
	l.mu.Lock()
	defer l.mu.Unlock()
	if meta, ok := l.fuzzCases[id]; ok {
		return meta.FuzzCase
	}
	return nil
}

// LookupCase implements reprocache.CaseLookup against this loop's
// fuzz_cases table.
func (l *Loop) LookupCase(id ids.FuzzCaseId) (*model.FuzzCase, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	meta, ok := l.fuzzCases[id]
	if !ok {
		return nil, false
	}
	return meta.FuzzCase, true
}

// pruneSandboxes calls the container engine's prune subcommand scoped
// to this run's label.
func (l *Loop) pruneSandboxes(ctx context.Context) {
	cmd := exec.CommandContext(ctx, l.cfg.ContainerEngine, "container", "prune", "-f",
		"--filter", "until=900s", "--filter", "label="+l.cfg.PruneLabel)
	if err := cmd.Run(); err != nil {
		l.log.Warn("sandbox prune failed", "error", err)
	}
}

// SetCache installs the reproduction cache used by verification tasks.
// It exists because the cache's CaseLookup callback is the loop's own
// LookupCase method, so the two are typically constructed in sequence
// rather than both passed to New.
func (l *Loop) SetCache(c *reprocache.Cache) {
	l.cache = c
}

// EpochNumber reports the number of epochs run so far.
func (l *Loop) EpochNumber() int { return l.epoch }

// QueueLen reports the number of cases currently resident in the
// population queue.
func (l *Loop) QueueLen() int { return l.queue.Len() }
