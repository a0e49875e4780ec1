// Copyright © by the dnsdiff-fuzzer authors.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.
// SPDX-License-Identifier: Apache-2.0

// Package sandbox implements the sandbox executor (C5): a per-resolver
// pool that keeps a bounded channel of ready-to-execute sandboxed
// containers, adapts its spawn timeout to observed startup latency,
// and runs FuzzSuites against whichever container it hands out next.
package sandbox

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"time"

	"github.com/dnsdiff/fuzzer/counters"
	"github.com/dnsdiff/fuzzer/fuzzeeproto"
	"github.com/dnsdiff/fuzzer/model"
	"go.uber.org/ratelimit"
)

// readyHandshake is the stdout line an instrumented resolver image
// prints once it has finished booting and is waiting to be told to
// load a FuzzSuite.
const readyHandshake = "Ready to load the FuzzSuite"

// Config parameterizes one resolver's sandbox pool.
type Config struct {
	Resolver        model.ResolverName
	Image           string        // container image reference
	ContainerEngine string        // "docker" or "podman"; defaults to "docker"
	PruneLabel      string        // label attached to every spawned container, for prune --until
	VolumeName      string        // named volume the suite/result files are exchanged through
	PoolCapacity    int           // ready-sandbox channel capacity, default 3
	HardTimeout     time.Duration // defaulted to 30s; Pool does not read it and puts no deadline on a run
	SpawnsPerSecond int           // rate limit on container spawns, default 2
	WorkDir         string        // host-visible mount point of VolumeName
}

func (c *Config) setDefaults() {
	if c.ContainerEngine == "" {
		c.ContainerEngine = "docker"
	}
	if c.PoolCapacity <= 0 {
		c.PoolCapacity = 3
	}
	if c.HardTimeout <= 0 {
		c.HardTimeout = 30 * time.Second
	}
	if c.SpawnsPerSecond <= 0 {
		c.SpawnsPerSecond = 2
	}
}

// handle is one ready-to-execute sandbox: a running, handshaken
// container plus its control-protocol client.
type handle struct {
	cmd    *exec.Cmd
	client *fuzzeeproto.Client
	stdin  io.WriteCloser
}

// Pool is the long-lived per-resolver actor maintaining Config's
// bounded channel of ready sandboxes. Construct with NewPool; call
// Close to stop the background spawner.
type Pool struct {
	cfg     Config
	log     *slog.Logger
	limiter ratelimit.Limiter

	ready chan *handle
	done  chan struct{}
	wg    sync.WaitGroup

	mu                sync.Mutex
	spawnTimeout      time.Duration
	consecutiveErrors int
	aborted           bool
}

// NewPool starts the background maintainer goroutine and returns a
// Pool ready to serve Run calls.
func NewPool(cfg Config, log *slog.Logger) *Pool {
	cfg.setDefaults()
	if log == nil {
		log = slog.Default()
	}
	p := &Pool{
		cfg:          cfg,
		log:          log.With("component", "sandbox.pool", "resolver", string(cfg.Resolver)),
		limiter:      ratelimit.New(cfg.SpawnsPerSecond, ratelimit.WithoutSlack),
		ready:        make(chan *handle, cfg.PoolCapacity),
		done:         make(chan struct{}),
		spawnTimeout: 120 * time.Second,
	}
	p.wg.Add(1)
	go p.maintain()
	return p
}

// Close stops the maintainer goroutine and releases every ready
// sandbox still sitting in the pool.
func (p *Pool) Close() {
	select {
	case <-p.done:
		return
	default:
		close(p.done)
	}
	p.wg.Wait()
	for {
		select {
		case h := <-p.ready:
			p.destroy(h)
		default:
			return
		}
	}
}

func (p *Pool) maintain() {
	defer p.wg.Done()
	for {
		select {
		case <-p.done:
			return
		default:
		}

		select {
		case p.ready <- p.spawnBlocking():
		case <-p.done:
			return
		}
	}
}

// spawnBlocking keeps trying to spawn a sandbox, respecting the spawn
// rate limiter and the adaptive wait cap, until it succeeds or the
// pool aborts after too many consecutive failures.
func (p *Pool) spawnBlocking() *handle {
	for {
		p.limiter.Take()

		p.mu.Lock()
		waitCap := p.spawnTimeout * 2
		if waitCap < 10*time.Second {
			waitCap = 10 * time.Second
		}
		aborted := p.aborted
		p.mu.Unlock()
		if aborted {
			<-p.done
			return nil
		}

		ctx, cancel := context.WithTimeout(context.Background(), waitCap)
		start := time.Now()
		h, err := p.spawnOne(ctx)
		cancel()
		observed := time.Since(start)

		p.mu.Lock()
		if err != nil {
			p.consecutiveErrors++
			p.spawnTimeout = p.spawnTimeout * 6 / 5
			if p.consecutiveErrors > 10 {
				p.aborted = true
				p.log.Error("sandbox pool aborting after repeated spawn failures", "consecutive_errors", p.consecutiveErrors)
			}
			p.mu.Unlock()
			p.log.Warn("sandbox spawn failed", "error", err, "observed", observed)
			continue
		}
		p.consecutiveErrors = 0
		p.spawnTimeout = (p.spawnTimeout*5 + observed) / 6
		p.mu.Unlock()
		return h
	}
}

// spawnOne launches exactly one container, waits for its
// readyHandshake stdout line, and acknowledges it.
func (p *Pool) spawnOne(ctx context.Context) (*handle, error) {
	args := []string{
		"run", "--rm", "-i",
		"--network=none",
		"--cap-drop=ALL",
		"--cap-add=NET_RAW",
		"--label", p.cfg.PruneLabel,
		"-v", fmt.Sprintf("%s:/work", p.cfg.VolumeName),
		p.cfg.Image,
	}
	cmd := exec.Command(p.cfg.ContainerEngine, args...)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("sandbox: stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("sandbox: stdout pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("sandbox: start: %w", err)
	}
	// ctx bounds the handshake only; the container outlives it.
	stop := context.AfterFunc(ctx, func() { _ = cmd.Process.Kill() })

	scanner := bufio.NewScanner(stdout)
	found := false
	for scanner.Scan() {
		if scanner.Text() == readyHandshake {
			found = true
			break
		}
	}
	if !found {
		_ = cmd.Process.Kill()
		return nil, fmt.Errorf("sandbox: container exited before handshake")
	}
	if _, err := io.WriteString(stdin, "ready\n"); err != nil {
		_ = cmd.Process.Kill()
		return nil, fmt.Errorf("sandbox: write handshake ack: %w", err)
	}

	client, err := fuzzeeproto.Dial(controlAddr(p.cfg.Resolver), 5*time.Second)
	if err != nil {
		_ = cmd.Process.Kill()
		return nil, fmt.Errorf("sandbox: control dial: %w", err)
	}
	if !stop() {
		_ = client.Close()
		return nil, fmt.Errorf("sandbox: spawn deadline exceeded: %w", ctx.Err())
	}

	return &handle{cmd: cmd, client: client, stdin: stdin}, nil
}

func (p *Pool) destroy(h *handle) {
	if h == nil {
		return
	}
	if h.client != nil {
		_ = h.client.Terminate()
		_ = h.client.Close()
	}
	if h.cmd != nil && h.cmd.Process != nil {
		_ = h.cmd.Process.Kill()
		_ = h.cmd.Wait()
	}
}

// Run takes one ready sandbox from the pool, executes suite against
// it, and returns the decoded FuzzResultSet. It implements
// reprocache.Executor.
func (p *Pool) Run(ctx context.Context, suite *model.FuzzSuite) (*model.FuzzResultSet, error) {
	var h *handle
	select {
	case h = <-p.ready:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	if h == nil {
		return nil, fmt.Errorf("sandbox: pool for %s has aborted", p.cfg.Resolver)
	}
	defer p.destroy(h)

	start := time.Now()
	ws, err := ToWireSuite(suite)
	if err != nil {
		return nil, err
	}
	suitePath := filepath.Join(p.cfg.WorkDir, fmt.Sprintf("fuzz-suite-%s.postcard", suite.ID))
	if err := WritePostcard(suitePath, ws); err != nil {
		return nil, fmt.Errorf("sandbox: write suite: %w", err)
	}

	background, err := h.client.GetAndReset()
	if err != nil {
		return nil, fmt.Errorf("sandbox: background counter read: %w", err)
	}

	resultPath := filepath.Join(p.cfg.WorkDir, "fuzz-result-set.postcard")
	var wrs WireResultSet
	if err := ReadPostcard(resultPath, &wrs); err != nil {
		return nil, fmt.Errorf("sandbox: read result set: %w", err)
	}
	rs, err := FromWireResultSet(&wrs)
	if err != nil {
		return nil, err
	}
	rs.ID = suite.ID
	rs.Fuzzee = p.cfg.Resolver
	backgroundCounters := counters.FromSlice(background.Counter)
	rs.BackgroundActivity = &backgroundCounters
	rs.TimeStart = start
	rs.TimeEnd = time.Now()
	if rs.Meta == nil {
		rs.Meta = make(map[string][]byte)
	}
	if pcap, err := os.ReadFile(filepath.Join(p.cfg.WorkDir, "tcpdump.pcap")); err == nil {
		rs.Meta["tcpdump.pcap"] = pcap
	}

	for _, r := range rs.Results {
		r.Oracles = Oracles(r)
	}

	return rs, nil
}

// controlAddr is the fixed loopback address+port an instrumented
// image's fuzzeeproto agent listens on for a given resolver; each
// resolver gets its own port so concurrent pools never collide.
func controlAddr(resolver model.ResolverName) string {
	port := 40000
	for _, c := range resolver {
		port += int(c)
	}
	return fmt.Sprintf("127.0.0.1:%d", port%10000+40000)
}
